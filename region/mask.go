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

package region

import (
	"encoding/gob"
	"io"

	"github.com/spatialmodel/vdc/vdcerr"
)

// MissingMask is the persistent per-voxel missing-value bitmask, tracked
// independently of any particular slab's contents so a reader can
// reproduce the mask regardless of which bricks it touches.
type MissingMask struct {
	Nx, Ny, Nz int
	bits       []uint64
}

// NewMissingMask allocates a mask for a field of the given voxel
// dimensions; nz is 1 for 2-D orientations.
func NewMissingMask(nx, ny, nz int) *MissingMask {
	n := nx * ny * nz
	return &MissingMask{Nx: nx, Ny: ny, Nz: nz, bits: make([]uint64, (n+63)/64)}
}

func (m *MissingMask) index(x, y, z int) int { return (z*m.Ny+y)*m.Nx + x }

// Set marks voxel (x,y,z) missing.
func (m *MissingMask) Set(x, y, z int) {
	i := m.index(x, y, z)
	m.bits[i/64] |= 1 << uint(i%64)
}

// Get reports whether voxel (x,y,z) is marked missing.
func (m *MissingMask) Get(x, y, z int) bool {
	i := m.index(x, y, z)
	return m.bits[i/64]&(1<<uint(i%64)) != 0
}

type maskGob struct {
	Nx, Ny, Nz int
	Bits       []uint64
}

// Serialize gob-encodes the mask, mirroring internal/hash's use of
// encoding/gob for compact self-contained blobs.
func (m *MissingMask) Serialize(w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(maskGob{m.Nx, m.Ny, m.Nz, m.bits}); err != nil {
		return vdcerr.Wrap(vdcerr.IOError, "region: serialize missing-value mask")
	}
	return nil
}

// DeserializeMask is the inverse of (*MissingMask).Serialize.
func DeserializeMask(r io.Reader) (*MissingMask, error) {
	var g maskGob
	if err := gob.NewDecoder(r).Decode(&g); err != nil {
		return nil, vdcerr.Wrap(vdcerr.Corrupt, "region: deserialize missing-value mask")
	}
	return &MissingMask{Nx: g.Nx, Ny: g.Ny, Nz: g.Nz, bits: g.Bits}, nil
}
