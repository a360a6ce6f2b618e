/*
Copyright © 2024 the VDC authors.
This file is part of VDC.

VDC is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

VDC is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with VDC.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package sigmap implements the per-brick, per-LOD significance map: the
// ordered set of coefficient indices retained at one level of detail.
package sigmap

import (
	"encoding/binary"
	"io"

	"github.com/spatialmodel/vdc/vdcerr"
)

// Map is a compact, duplicate-free, insertion-ordered set of coefficient
// indices in [0, N), backed by a slice for iteration and a bitset for O(1)
// membership tests.
type Map struct {
	n      int // addressable range, i.e. the brick's B^3 (or B^2)
	order  []int
	bitset []uint64
}

// New creates an empty significance map addressing indices in [0, n).
func New(n int) *Map {
	return &Map{
		n:      n,
		bitset: make([]uint64, (n+63)/64),
	}
}

// Len returns the number of indices currently held.
func (m *Map) Len() int { return len(m.order) }

// Test reports whether index is present.
func (m *Map) Test(index int) bool {
	if index < 0 || index >= m.n {
		return false
	}
	return m.bitset[index/64]&(1<<uint(index%64)) != 0
}

// Append adds index to the end of the insertion order. It is a no-op (and
// returns false) if index is already present, preserving the "no
// duplicates" invariant.
func (m *Map) Append(index int) bool {
	if index < 0 || index >= m.n {
		return false
	}
	if m.Test(index) {
		return false
	}
	m.bitset[index/64] |= 1 << uint(index%64)
	m.order = append(m.order, index)
	return true
}

// Indices returns the indices in insertion order. The caller must not
// mutate the returned slice.
func (m *Map) Indices() []int { return m.order }

// Merge appends every index of other not already present, preserving
// other's insertion order; the decoder uses this to build the cumulative
// significance map for LODs 0..ell.
func (m *Map) Merge(other *Map) {
	for _, idx := range other.order {
		m.Append(idx)
	}
}

// Serialize writes the map using delta encoding of the ascending-sorted
// index order plus a separate permutation recovering the original
// insertion order.
func (m *Map) Serialize(w io.Writer) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(m.order))); err != nil {
		return vdcerr.Wrap(vdcerr.IOError, "sigmap: write count")
	}
	// sorted[i] = (value, original insertion position)
	sorted := make([]pair, len(m.order))
	for pos, v := range m.order {
		sorted[pos] = pair{v, pos}
	}
	insertionSortByVal(sorted)

	prev := 0
	for _, p := range sorted {
		delta := p.val - prev
		if err := binary.Write(w, binary.BigEndian, uint32(delta)); err != nil {
			return vdcerr.Wrap(vdcerr.IOError, "sigmap: write delta")
		}
		prev = p.val
	}
	for _, p := range sorted {
		if err := binary.Write(w, binary.BigEndian, uint32(p.pos)); err != nil {
			return vdcerr.Wrap(vdcerr.IOError, "sigmap: write permutation")
		}
	}
	return nil
}

// Deserialize reads a map previously written by Serialize, addressing
// indices in [0, n).
func Deserialize(r io.Reader, n int) (*Map, error) {
	var count uint32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, vdcerr.Wrap(vdcerr.Corrupt, "sigmap: truncated count")
	}
	deltas := make([]uint32, count)
	for i := range deltas {
		if err := binary.Read(r, binary.BigEndian, &deltas[i]); err != nil {
			return nil, vdcerr.Wrap(vdcerr.Corrupt, "sigmap: truncated deltas")
		}
	}
	positions := make([]uint32, count)
	for i := range positions {
		if err := binary.Read(r, binary.BigEndian, &positions[i]); err != nil {
			return nil, vdcerr.Wrap(vdcerr.Corrupt, "sigmap: truncated permutation")
		}
	}

	values := make([]int, count)
	prev := 0
	for i, d := range deltas {
		prev += int(d)
		values[i] = prev
	}

	order := make([]int, count)
	for i, pos := range positions {
		if int(pos) >= int(count) {
			return nil, vdcerr.Wrap(vdcerr.Corrupt, "sigmap: permutation out of range")
		}
		order[pos] = values[i]
	}

	m := New(n)
	for _, idx := range order {
		if !m.Append(idx) {
			return nil, vdcerr.Wrap(vdcerr.Corrupt, "sigmap: duplicate or out-of-range index %d", idx)
		}
	}
	return m, nil
}

// pair couples a coefficient index value with its insertion position.
type pair struct{ val, pos int }

func insertionSortByVal(s []pair) {
	for i := 1; i < len(s); i++ {
		j := i
		for j > 0 && s[j-1].val > s[j].val {
			s[j-1], s[j] = s[j], s[j-1]
			j--
		}
	}
}
