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

package datamgr

import (
	"github.com/spatialmodel/vdc/grid"
	"github.com/spatialmodel/vdc/metadata"
	"github.com/spatialmodel/vdc/vdcerr"
)

// regionField adapts a pool-resident decoded buffer to the grid sampling
// contract.
type regionField struct {
	data       []float64
	nx, ny, nz int
	missing    float64
	hasMissing bool
}

func (f *regionField) At(i, j, k int) float64 {
	return f.data[(k*f.ny+j)*f.nx+i]
}

func (f *regionField) IsMissing(i, j, k int) bool {
	return f.hasMissing && f.At(i, j, k) == f.missing
}

func (f *regionField) Dims() (int, int, int) { return f.nx, f.ny, f.nz }

// sampler wraps a decoded region in the grid variant the metadata
// declares: regular spacing, stretched coordinate arrays, or layered
// terrain-following Z through the ELEVATION variable.
func (d *DataManager) sampler(key Key, f *regionField) (grid.Sampler, error) {
	per := d.md.Periodic()
	periodic := grid.Periodic{X: per[0], Y: per[1], Z: per[2]}
	ts, err := d.md.Timestep(key.Timestep)
	if err != nil {
		return nil, err
	}

	switch d.md.Grid() {
	case metadata.GridStretched:
		x, y, z, err := d.regionCoords(key, ts)
		if err != nil {
			return nil, err
		}
		g := &grid.Stretched{Field: f, X: x, Y: y, Z: z, Periodic: periodic, Interp: d.cfg.Interp}
		if err := g.Validate(); err != nil {
			return nil, err
		}
		return g, nil

	case metadata.GridLayered:
		if key.Var == ElevationVar {
			break // ELEVATION itself samples on a regular grid
		}
		elev, err := d.fetch(Key{Var: ElevationVar, Timestep: key.Timestep,
			Level: key.Level, LOD: key.LOD, Min: key.Min, Max: key.Max})
		if err != nil {
			return nil, vdcerr.Wrap(err, "datamgr: layered grid needs %s", ElevationVar)
		}
		// Copy the elevation column store out of the cache so the layered
		// grid stays valid if the ELEVATION entry is evicted.
		ef := elev.field
		lookup := elevationLookup{
			data: append([]float64(nil), ef.data...),
			nx:   ef.nx, ny: ef.ny,
		}
		min, max := d.regionExtents(key, ts)
		return &grid.Layered{
			Field:     f,
			Elevation: lookup,
			MinX:      min[0], MaxX: max[0],
			MinY: min[1], MaxY: max[1],
			Periodic: periodic,
			Interp:   d.cfg.Interp,
		}, nil
	}

	min, max := d.regionExtents(key, ts)
	return &grid.Regular{Field: f, Min: min, Max: max, Periodic: periodic, Interp: d.cfg.Interp}, nil
}

// regionExtents computes the projected-coordinate bounding box of the
// requested sub-box by scaling the timestep extents to the region's level
// and offsets.
func (d *DataManager) regionExtents(key Key, ts *metadata.Timestep) (min, max [3]float64) {
	dims, err := d.varDims(key.Var, key.Timestep, key.Level)
	if err != nil {
		dims = [3]int{key.Max[0] + 1, key.Max[1] + 1, key.Max[2] + 1}
	}
	for i := 0; i < 3; i++ {
		lo, hi := ts.Extents[i], ts.Extents[i+3]
		n := dims[i]
		var sp float64
		if n > 1 {
			sp = (hi - lo) / float64(n-1)
		}
		min[i] = lo + sp*float64(key.Min[i])
		max[i] = lo + sp*float64(key.Max[i])
	}
	return min, max
}

// regionCoords slices the stretched-grid coordinate arrays down to the
// requested sub-box, downsampling for coarse levels.
func (d *DataManager) regionCoords(key Key, ts *metadata.Timestep) (x, y, z []float64, err error) {
	if !ts.HasCoords {
		return nil, nil, nil, vdcerr.Wrap(vdcerr.NotFound, "datamgr: timestep %d has no coordinate arrays", key.Timestep)
	}
	cs := d.md.Coords()
	axes := [3][]float64{}
	for i, axis := range []string{"x", "y", "z"} {
		full, err := cs.Read(metadata.CoordKey(axis, key.Timestep))
		if err != nil {
			return nil, nil, nil, err
		}
		axes[i] = sliceCoords(full, key.Min[i], key.Max[i], d.levelScale(key))
	}
	return axes[0], axes[1], axes[2], nil
}

// levelScale is the voxel stride between level-r samples and native ones.
func (d *DataManager) levelScale(key Key) int {
	return 1 << uint(d.md.NumLevels()-key.Level)
}

// sliceCoords picks the native coordinates corresponding to level-r
// voxels min..max.
func sliceCoords(full []float64, min, max, scale int) []float64 {
	out := make([]float64, 0, max-min+1)
	for v := min; v <= max; v++ {
		i := v * scale
		if i >= len(full) {
			i = len(full) - 1
		}
		out = append(out, full[i])
	}
	return out
}

// elevationLookup adapts a copied ELEVATION region to the layered-grid
// vertical coordinate contract.
type elevationLookup struct {
	data   []float64
	nx, ny int
}

func (e elevationLookup) Z(i, j, k int) float64 {
	return e.data[(k*e.ny+j)*e.nx+i]
}
