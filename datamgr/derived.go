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
	"math"

	"github.com/ctessum/sparse"

	"github.com/spatialmodel/vdc/vdcerr"
)

// ElevationVar is the terrain-following vertical coordinate variable that
// layered grids resolve Z against.
const ElevationVar = "ELEVATION"

// gravity is the WRF geopotential-to-height conversion constant [m s-2].
const gravity = 9.81

// Input names one pipeline input: a variable plus a refinement-level
// offset relative to the requested output level (clamped to the valid
// range at fetch time).
type Input struct {
	Var         string
	LevelOffset int
}

// ComputeFunc synthesizes a pipeline's outputs from its inputs. Inputs
// and outputs share one region shape; missing is the sentinel a compute
// function must propagate rather than operate on.
type ComputeFunc func(inputs []*sparse.DenseArray, dims [3]int, missing float64) ([]*sparse.DenseArray, error)

// Pipeline is one derived-variable registration: pure compute over named
// inputs. Pipelines may feed other pipelines but must not form cycles.
type Pipeline struct {
	Inputs  []Input
	Outputs []string
	Compute ComputeFunc
}

// RegisterPipeline adds a pipeline to the manager, rejecting duplicate
// outputs and registrations that would create an input cycle.
func (d *DataManager) RegisterPipeline(p *Pipeline) error {
	if len(p.Inputs) == 0 || len(p.Outputs) == 0 || p.Compute == nil {
		return vdcerr.Wrap(vdcerr.InvalidParam, "datamgr: pipeline needs inputs, outputs and a compute function")
	}
	for _, out := range p.Outputs {
		if _, dup := d.pipelines[out]; dup {
			return vdcerr.Wrap(vdcerr.InvalidParam, "datamgr: pipeline output %s already registered", out)
		}
	}
	for _, out := range p.Outputs {
		d.pipelines[out] = p
	}
	if err := d.checkPipelineCycles(); err != nil {
		for _, out := range p.Outputs {
			delete(d.pipelines, out)
		}
		return err
	}
	return nil
}

// checkPipelineCycles walks output -> input edges depth-first, failing on
// any back edge.
func (d *DataManager) checkPipelineCycles() error {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int)
	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case grey:
			return vdcerr.Wrap(vdcerr.InvalidParam, "datamgr: pipeline cycle through %s", name)
		case black:
			return nil
		}
		color[name] = grey
		if p, ok := d.pipelines[name]; ok {
			for _, in := range p.Inputs {
				if err := visit(in.Var); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}
	for name := range d.pipelines {
		if err := visit(name); err != nil {
			return err
		}
	}
	return nil
}

// derive runs a pipeline for one requested output region. Every input is
// fetched (unlocked) through the normal cache path, so shared inputs and
// repeated derivations hit the cache.
func (d *DataManager) derive(p *Pipeline, key Key) (*entry, error) {
	dims := [3]int{
		key.Max[0] - key.Min[0] + 1,
		key.Max[1] - key.Min[1] + 1,
		key.Max[2] - key.Min[2] + 1,
	}
	inputs := make([]*sparse.DenseArray, len(p.Inputs))
	hasMissing := false
	for i, in := range p.Inputs {
		level := clampInt(key.Level+in.LevelOffset, 0, d.md.NumLevels())
		ie, err := d.fetch(Key{Var: in.Var, Timestep: key.Timestep, Level: level,
			LOD: key.LOD, Min: key.Min, Max: key.Max})
		if err != nil {
			return nil, vdcerr.Wrap(err, "datamgr: derive %s: input %s", key.Var, in.Var)
		}
		f := ie.field
		hasMissing = hasMissing || f.hasMissing
		arr := sparse.ZerosDense(dims[2], dims[1], dims[0])
		copy(arr.Elements, f.data)
		inputs[i] = arr
	}

	outputs, err := p.Compute(inputs, dims, d.cfg.VDCMissing)
	if err != nil {
		return nil, err
	}
	if len(outputs) != len(p.Outputs) {
		return nil, vdcerr.Wrap(vdcerr.Corrupt, "datamgr: pipeline produced %d outputs, declared %d", len(outputs), len(p.Outputs))
	}
	for i, name := range p.Outputs {
		if name == key.Var {
			return d.wrap(key, outputs[i].Elements, hasMissing)
		}
	}
	return nil, vdcerr.Wrap(vdcerr.NotFound, "datamgr: pipeline does not produce %s", key.Var)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// mapElements applies f pointwise across the aligned elements of the
// inputs, propagating the missing sentinel when any operand is missing.
func mapElements(inputs []*sparse.DenseArray, missing float64, f func(v []float64) float64) *sparse.DenseArray {
	out := sparse.ZerosDense(inputs[0].Shape...)
	vals := make([]float64, len(inputs))
	for i := range out.Elements {
		miss := false
		for j, in := range inputs {
			vals[j] = in.Elements[i]
			if vals[j] == missing {
				miss = true
			}
		}
		if miss {
			out.Elements[i] = missing
			continue
		}
		out.Elements[i] = f(vals)
	}
	return out
}

// BuiltinPipelines returns the derived variables every data manager
// registers at construction: the WRF-style geopotential elevation, full
// pressure, potential and absolute temperature, and horizontal and 3-D
// wind magnitudes.
func BuiltinPipelines() []*Pipeline {
	return []*Pipeline{
		{
			// ELEVATION = (PH + PHB) / g: geopotential height above the
			// datum, the vertical coordinate of layered collections.
			Inputs:  []Input{{Var: "PH"}, {Var: "PHB"}},
			Outputs: []string{ElevationVar},
			Compute: func(in []*sparse.DenseArray, dims [3]int, missing float64) ([]*sparse.DenseArray, error) {
				return []*sparse.DenseArray{mapElements(in, missing, func(v []float64) float64 {
					return (v[0] + v[1]) / gravity
				})}, nil
			},
		},
		{
			// Full pressure is perturbation plus base-state pressure [Pa].
			Inputs:  []Input{{Var: "P"}, {Var: "PB"}},
			Outputs: []string{"P_FULL"},
			Compute: func(in []*sparse.DenseArray, dims [3]int, missing float64) ([]*sparse.DenseArray, error) {
				return []*sparse.DenseArray{mapElements(in, missing, func(v []float64) float64 {
					return v[0] + v[1]
				})}, nil
			},
		},
		{
			// Potential temperature: WRF stores T as the perturbation
			// from the 300 K reference.
			Inputs:  []Input{{Var: "T"}},
			Outputs: []string{"THETA"},
			Compute: func(in []*sparse.DenseArray, dims [3]int, missing float64) ([]*sparse.DenseArray, error) {
				return []*sparse.DenseArray{mapElements(in, missing, func(v []float64) float64 {
					return v[0] + 300
				})}, nil
			},
		},
		{
			// Absolute temperature from potential temperature and full
			// pressure via the Exner function.
			Inputs:  []Input{{Var: "THETA"}, {Var: "P_FULL"}},
			Outputs: []string{"TK"},
			Compute: func(in []*sparse.DenseArray, dims [3]int, missing float64) ([]*sparse.DenseArray, error) {
				return []*sparse.DenseArray{mapElements(in, missing, func(v []float64) float64 {
					return 0.037 * v[0] * math.Pow(v[1], 0.29)
				})}, nil
			},
		},
		{
			// Horizontal wind speed.
			Inputs:  []Input{{Var: "U"}, {Var: "V"}},
			Outputs: []string{"UV_MAG"},
			Compute: func(in []*sparse.DenseArray, dims [3]int, missing float64) ([]*sparse.DenseArray, error) {
				return []*sparse.DenseArray{mapElements(in, missing, func(v []float64) float64 {
					return math.Sqrt(v[0]*v[0] + v[1]*v[1])
				})}, nil
			},
		},
		{
			// 3-D wind speed.
			Inputs:  []Input{{Var: "U"}, {Var: "V"}, {Var: "W"}},
			Outputs: []string{"UVW_MAG"},
			Compute: func(in []*sparse.DenseArray, dims [3]int, missing float64) ([]*sparse.DenseArray, error) {
				return []*sparse.DenseArray{mapElements(in, missing, func(v []float64) float64 {
					return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
				})}, nil
			},
		},
	}
}

// NewOceanZPipeline builds the ROMS-style ocean_s_coordinate vertical
// coordinate pipeline: z(i,j,k) = eta*(1+s(k)) + depth_c*s(k) +
// (depth(i,j)-depth_c)*C(k), with the 1-D s and C arrays supplied at
// registration. DEPTH and ZETA are the stored bathymetry and free-surface
// variables.
func NewOceanZPipeline(s, c []float64, depthC float64) *Pipeline {
	return &Pipeline{
		Inputs:  []Input{{Var: "DEPTH"}, {Var: "ZETA"}},
		Outputs: []string{"OCEAN_Z"},
		Compute: func(in []*sparse.DenseArray, dims [3]int, missing float64) ([]*sparse.DenseArray, error) {
			if len(s) != len(c) {
				return nil, vdcerr.Wrap(vdcerr.InvalidParam, "datamgr: s and C arrays differ in length")
			}
			nx, ny := dims[0], dims[1]
			nz := len(s)
			out := sparse.ZerosDense(nz, ny, nx)
			depth, eta := in[0], in[1]
			for k := 0; k < nz; k++ {
				for j := 0; j < ny; j++ {
					for i := 0; i < nx; i++ {
						h := depth.Elements[j*nx+i]
						e := eta.Elements[j*nx+i]
						if h == missing || e == missing {
							out.Elements[(k*ny+j)*nx+i] = missing
							continue
						}
						out.Elements[(k*ny+j)*nx+i] = e*(1+s[k]) + depthC*s[k] + (h-depthC)*c[k]
					}
				}
			}
			return []*sparse.DenseArray{out}, nil
		},
	}
}
