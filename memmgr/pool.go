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

// Package memmgr implements a block-granularity memory pool: regions of
// pre-allocated brick-sized blocks, handed out by a
// first-fit scan and returned to the pool rather than freed to the
// runtime, so repeated brick decode avoids per-brick GC churn.
package memmgr

import (
	"github.com/sirupsen/logrus"

	"github.com/ctessum/sparse"

	"github.com/spatialmodel/vdc/vdcerr"
)

var log = logrus.WithField("component", "memmgr")

// region is one contiguous arena of BlkSize-element blocks. free[i] == 0
// means block i is unallocated; a nonzero value n at index i means blocks
// [i, i+n) are one live allocation, letting Alloc's scan skip the whole
// span in one step.
type region struct {
	mem  []float64
	free []int
}

func newRegion(blkSize, numBlks int) *region {
	return &region{
		mem:  make([]float64, blkSize*numBlks),
		free: make([]int, numBlks),
	}
}

func (r *region) numBlks() int { return len(r.free) }

// Block is a live allocation: a view into its region's backing array,
// shaped to the caller's brick geometry.
type Block struct {
	Array  *sparse.DenseArray
	region *region
	index  int
	length int
}

// Pool is a block memory manager for one fixed block size. Pool instances
// are independent, so callers (e.g. separate data managers in the same
// process) don't contend over one global free table; a pool lives as long
// as the data manager that created it, with no separate shutdown step.
type Pool struct {
	blkSize     int
	maxRegion   int // blocks in the first region; each later region doubles the previous one
	totalLimit  int // total blocks across all regions this pool will grow to
	pageAligned bool
	regions     []*region
}

// RequestMemSize configures the pool's per-block element count, the total
// block budget across all regions, and the pageAligned flag. The flag is
// recorded on the pool but does not change how region arrays are
// allocated.
func RequestMemSize(blkSize, totalBlks int, pageAligned bool) (*Pool, error) {
	if blkSize <= 0 || totalBlks <= 0 {
		return nil, vdcerr.Wrap(vdcerr.InvalidParam, "memmgr: blkSize and totalBlks must be positive")
	}
	return &Pool{
		blkSize:     blkSize,
		maxRegion:   totalBlks,
		totalLimit:  totalBlks,
		pageAligned: pageAligned,
	}, nil
}

// Alloc reserves n contiguous blocks, growing the pool with a new region
// if no existing region has a long-enough free run. shape describes the brick geometry the
// returned Block.Array should present (e.g. Side,Side,Side); its element
// count must equal n*blkSize.
func (p *Pool) Alloc(n int, shape ...int) (*Block, error) {
	if n <= 0 {
		return nil, vdcerr.Wrap(vdcerr.InvalidParam, "memmgr: alloc count must be positive")
	}
	for _, r := range p.regions {
		if idx := firstFit(r, n); idx >= 0 {
			return p.claim(r, idx, n, shape)
		}
	}
	r, err := p.grow(n)
	if err != nil {
		return nil, err
	}
	idx := firstFit(r, n)
	if idx < 0 {
		return nil, vdcerr.Wrap(vdcerr.OutOfMemory, "memmgr: grew region but still no room for %d blocks", n)
	}
	return p.claim(r, idx, n, shape)
}

// firstFit scans r's free table for the first run of n consecutive free
// blocks, skipping over live allocations in one step via their recorded
// length.
func firstFit(r *region, n int) int {
	i := 0
	for i < r.numBlks() {
		if r.free[i] != 0 {
			i += r.free[i]
			continue
		}
		j := 0
		for j < n && i+j < r.numBlks() && r.free[i+j] == 0 {
			j++
		}
		if j >= n {
			return i
		}
		i += j
	}
	return -1
}

func (p *Pool) claim(r *region, index, n int, shape []int) (*Block, error) {
	r.free[index] = n
	start := index * p.blkSize
	buf := r.mem[start : start+n*p.blkSize]
	for i := range buf {
		buf[i] = 0
	}
	var arr *sparse.DenseArray
	if len(shape) > 0 {
		arr = sparse.ZerosDense(shape...)
		if len(arr.Elements) != len(buf) {
			return nil, vdcerr.Wrap(vdcerr.InvalidParam, "memmgr: shape holds %d elements, allocation holds %d", len(arr.Elements), len(buf))
		}
		arr.Elements = buf
	} else {
		arr = sparse.ZerosDense(len(buf))
		arr.Elements = buf
	}
	return &Block{Array: arr, region: r, index: index, length: n}, nil
}

// grow adds a new region sized to at least n blocks, doubling the previous
// region's size, capped by the pool's total block budget. It fails with
// OutOfMemory if growing would exceed that budget.
func (p *Pool) grow(n int) (*region, error) {
	size := p.maxRegion
	if len(p.regions) > 0 {
		size = p.regions[len(p.regions)-1].numBlks() * 2
	}
	if size < n {
		size = n
	}
	total := 0
	for _, r := range p.regions {
		total += r.numBlks()
	}
	if total+size > p.totalLimit {
		size = p.totalLimit - total
	}
	if size < n {
		return nil, vdcerr.Wrap(vdcerr.OutOfMemory, "memmgr: pool exhausted: need %d blocks, %d remain of %d total", n, p.totalLimit-total, p.totalLimit)
	}
	r := newRegion(p.blkSize, size)
	p.regions = append(p.regions, r)
	log.WithField("blocks", size).Debug("grew memory pool region")
	return r, nil
}

// FreeMem returns b's blocks to its pool's free table. If the owning
// region becomes entirely free, it is dropped so its backing array can be
// garbage collected.
func (p *Pool) FreeMem(b *Block) error {
	r := b.region
	if r.free[b.index] != b.length {
		return vdcerr.Wrap(vdcerr.InvalidParam, "memmgr: double free or corrupt block at index %d", b.index)
	}
	r.free[b.index] = 0

	empty := true
	for _, f := range r.free {
		if f != 0 {
			empty = false
			break
		}
	}
	if empty {
		for i, reg := range p.regions {
			if reg == r {
				p.regions = append(p.regions[:i], p.regions[i+1:]...)
				break
			}
		}
	}
	return nil
}

// NumRegions reports how many regions the pool currently holds, mainly
// for tests exercising growth/garbage-collection behavior.
func (p *Pool) NumRegions() int { return len(p.regions) }
