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
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/spatialmodel/vdc/vdcerr"
)

// CollectiveWriter buffers sub-box writes from multiple ranks of the same
// variable-timestep and commits them through one Writer once every
// declared rank has contributed. When every sub-box starts and ends on
// brick boundaries (or the grid edge), the assembly of the staging volume
// fans out across ranks in parallel; otherwise the writer falls back to
// assembling independently, with identical on-disk results. Coverage of
// the volume is not checked.
type CollectiveWriter struct {
	cfg    *Config
	nRanks int
	boxes  []subBox
}

type subBox struct {
	rank     int
	min, max [3]int
	data     []float64
}

// EnableBuffering declares a collective write session across nRanks
// processes writing disjoint sub-boxes of one variable-timestep.
func EnableBuffering(cfg *Config, nRanks int) (*CollectiveWriter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if nRanks < 1 {
		return nil, vdcerr.Wrap(vdcerr.InvalidParam, "region: collective write needs at least one rank")
	}
	if cfg.Stagger[0] || cfg.Stagger[1] || cfg.Stagger[2] {
		return nil, vdcerr.Wrap(vdcerr.InvalidParam, "region: collective writes require unstaggered sources")
	}
	return &CollectiveWriter{cfg: cfg, nRanks: nRanks}, nil
}

// WriteSubRegion buffers one rank's contribution: an (x, y, z)-ordered
// buffer covering the inclusive voxel box [min, max]. Each rank may
// contribute exactly once.
func (c *CollectiveWriter) WriteSubRegion(rank int, min, max [3]int, data []float64) error {
	if rank < 0 || rank >= c.nRanks {
		return vdcerr.Wrap(vdcerr.InvalidParam, "region: rank %d out of range [0,%d)", rank, c.nRanks)
	}
	for _, b := range c.boxes {
		if b.rank == rank {
			return vdcerr.Wrap(vdcerr.Busy, "region: rank %d already contributed", rank)
		}
	}
	n := 1
	for i := 0; i < 3; i++ {
		if min[i] < 0 || max[i] < min[i] || max[i] >= c.cfg.Dims[i] {
			return vdcerr.Wrap(vdcerr.InvalidParam, "region: sub-box [%v,%v] outside grid %v", min, max, c.cfg.Dims)
		}
		n *= max[i] - min[i] + 1
	}
	if len(data) != n {
		return vdcerr.Wrap(vdcerr.InvalidParam, "region: sub-box holds %d samples, want %d", len(data), n)
	}
	c.boxes = append(c.boxes, subBox{rank: rank, min: min, max: max, data: data})
	return nil
}

// aligned reports whether every buffered sub-box starts and ends on brick
// boundaries (or the grid edge).
func (c *CollectiveWriter) aligned() bool {
	b := c.cfg.BrickSide
	for _, box := range c.boxes {
		for i := 0; i < 3; i++ {
			if box.min[i]%b != 0 {
				return false
			}
			if (box.max[i]+1)%b != 0 && box.max[i] != c.cfg.Dims[i]-1 {
				return false
			}
		}
	}
	return true
}

// Flush assembles the buffered sub-boxes into a staging volume and
// streams it through the region writer. Incomplete coverage leaves the
// uncovered voxels zero.
func (c *CollectiveWriter) Flush() error {
	if len(c.boxes) < c.nRanks {
		return vdcerr.Wrap(vdcerr.Busy, "region: only %d of %d ranks contributed", len(c.boxes), c.nRanks)
	}
	nx, ny, nz := c.cfg.Dims[0], c.cfg.Dims[1], c.cfg.Dims[2]
	vol := make([]float64, nx*ny*nz)

	sort.Slice(c.boxes, func(i, j int) bool { return c.boxes[i].rank < c.boxes[j].rank })

	if c.aligned() {
		// Disjoint block-aligned boxes never touch the same voxel, so
		// the scatter can run one goroutine per rank.
		g, _ := errgroup.WithContext(context.Background())
		for _, box := range c.boxes {
			box := box
			g.Go(func() error {
				scatterBox(vol, nx, ny, box)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	} else {
		log.WithField("var", c.cfg.Var).Debug("collective sub-boxes not block-aligned; using independent assembly")
		for _, box := range c.boxes {
			scatterBox(vol, nx, ny, box)
		}
	}
	return WriteRegion(c.cfg, vol)
}

func scatterBox(vol []float64, nx, ny int, box subBox) {
	n := 0
	bx := box.max[0] - box.min[0] + 1
	for z := box.min[2]; z <= box.max[2]; z++ {
		for y := box.min[1]; y <= box.max[1]; y++ {
			base := (z*ny+y)*nx + box.min[0]
			copy(vol[base:base+bx], box.data[n:n+bx])
			n += bx
		}
	}
}
