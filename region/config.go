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

// Package region assembles and disassembles axis-aligned brick-wise
// subregions: slice-streaming and whole-region readers and writers over
// the brick codec and the block I/O layer, including edge-brick padding,
// missing-value sentinel tracking and staggered-grid resampling.
package region

import (
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/vdc/blockio"
	"github.com/spatialmodel/vdc/codec"
	"github.com/spatialmodel/vdc/metadata"
	"github.com/spatialmodel/vdc/vdcerr"
	"github.com/spatialmodel/vdc/wavelet"
)

var log = logrus.WithField("component", "region")

// Config carries everything the region engine needs from the metadata to
// address one (variable, timestep).
type Config struct {
	// Dims is the native voxel grid (Nz == 1 for 2-D orientations).
	Dims [3]int
	// BrickSide is the cubic brick side B, a power of two.
	BrickSide int
	// Levels is the number of refinement levels above the coarsest.
	Levels int
	// CRatios is the collection's compression-ratio list.
	CRatios []int
	// WaveletName selects the transform kernel, e.g. "bior3.3".
	WaveletName string
	// VDCType is the file-naming convention.
	VDCType blockio.VDCType
	// Boundary is the edge-brick padding policy.
	Boundary metadata.BoundaryMode
	// Dir is the timestep directory holding this variable's brick files.
	Dir string
	// Var is the variable name.
	Var string
	// NThreads bounds the transform worker count per brick.
	NThreads int
	// SrcMissing, if non-nil, is the source sentinel rewritten on write.
	SrcMissing *float64
	// VDCMissing is the stored sentinel written in place of SrcMissing.
	VDCMissing float64
	// Stagger flags source axes sampled on cell faces rather than
	// centers; the writer averages adjacent pairs before encoding.
	Stagger [3]bool
}

func (c *Config) is3D() bool { return c.Dims[2] > 1 }

func (c *Config) ndims() int {
	if c.is3D() {
		return 3
	}
	return 2
}

func (c *Config) validate() error {
	if c.BrickSide < 2 || c.BrickSide&(c.BrickSide-1) != 0 {
		return vdcerr.Wrap(vdcerr.InvalidParam, "region: brick side %d must be a power of two >= 2", c.BrickSide)
	}
	for i, n := range c.Dims {
		if n < 1 {
			return vdcerr.Wrap(vdcerr.InvalidParam, "region: dimension %d must be positive", i)
		}
	}
	if c.Levels < 0 || c.Levels > codec.MaxLevels(c.BrickSide) {
		return vdcerr.Wrap(vdcerr.InvalidParam, "region: %d levels exceed what a side-%d brick supports", c.Levels, c.BrickSide)
	}
	if c.VDCType == blockio.VDC1 && len(c.CRatios) != 1 {
		return vdcerr.Wrap(vdcerr.InvalidParam, "region: VDC-1 collections hold exactly one LOD")
	}
	return nil
}

// brick builds the codec configuration for this variable.
func (c *Config) brick() (*codec.Brick, error) {
	kern, err := wavelet.KernelForName(c.WaveletName)
	if err != nil {
		return nil, err
	}
	return &codec.Brick{
		Side:     c.BrickSide,
		Levels:   c.Levels,
		Dims:     c.ndims(),
		NThreads: c.NThreads,
		Kernel:   kern,
		CRatios:  append([]int(nil), c.CRatios...),
	}, nil
}

// geometry returns the brick-grid geometry at native resolution.
func (c *Config) geometry() blockio.BrickGeometry {
	return blockio.NewGeometry(c.Dims[0], c.Dims[1], c.Dims[2],
		c.BrickSide, c.BrickSide, c.BrickSide)
}

// DimsAt returns the voxel dimensions at refinement level r: each native
// extent shrinks by a factor of two per level still undone, rounding up.
func (c *Config) DimsAt(r int) [3]int {
	s := 1 << uint(c.Levels-r)
	out := [3]int{}
	for i, n := range c.Dims {
		out[i] = (n + s - 1) / s
	}
	if !c.is3D() {
		out[2] = 1
	}
	return out
}

// FromMetadata builds a Config for one (variable, timestep) from a frozen
// metadata object.
func FromMetadata(md *metadata.Metadata, varName string, ts int, vdcMissing float64, nthreads int) (*Config, error) {
	v, err := md.Variable(varName)
	if err != nil {
		return nil, err
	}
	if ts < 0 || ts >= md.NumTimesteps() {
		return nil, vdcerr.Wrap(vdcerr.NotFound, "region: timestep %d out of range", ts)
	}
	dims := md.Dims()
	switch v.Orientation {
	case metadata.VarXY:
		dims[2] = 1
	case metadata.VarXZ:
		dims = [3]int{dims[0], dims[2], 1}
	case metadata.VarYZ:
		dims = [3]int{dims[1], dims[2], 1}
	}
	vdcType := blockio.VDC2
	if md.VDCType() == 1 {
		vdcType = blockio.VDC1
	}
	cfg := &Config{
		Dims:        dims,
		BrickSide:   md.BrickSize()[0],
		Levels:      md.NumLevels(),
		CRatios:     md.CRatios(),
		WaveletName: md.Wavelet(),
		VDCType:     vdcType,
		Boundary:    md.Boundary(),
		Dir:         md.TimestepDir(ts),
		Var:         varName,
		NThreads:    nthreads,
		VDCMissing:  vdcMissing,
		Stagger:     v.Staggered,
	}
	if m, ok := v.MissingAt(ts); ok {
		cfg.SrcMissing = &m
	}
	return cfg, cfg.validate()
}
