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

// Package blockio is the per-variable/-timestep block I/O layer: file
// naming, brick seeking and the per-level/LOD file fan-out.
package blockio

import (
	"fmt"
	"path/filepath"
)

// VDCType distinguishes the two on-disk file-naming conventions: VDC-1
// addresses bricks by level only, VDC-2 by level and LOD.
type VDCType int

const (
	// VDC1 names files "<var>.wb<level>". A single-LOD (CRatios=[1])
	// write is stored identically to VDC2: one LOD whose file name simply
	// omits the LOD suffix, so one code path serves both types.
	VDC1 VDCType = iota
	// VDC2 names files "<var>.<level>.<lod>".
	VDC2
)

// FileName returns the on-disk name for one (variable, level, lod) brick
// file.
func FileName(vdcType VDCType, varName string, level, lod int) string {
	if vdcType == VDC1 {
		return fmt.Sprintf("%s.wb%d", varName, level)
	}
	return fmt.Sprintf("%s.%d.%d", varName, level, lod)
}

// VariableDir returns the directory holding one timestep's brick files.
func VariableDir(root string, timestep int) string {
	return filepath.Join(root, fmt.Sprintf("ts%04d", timestep))
}

// BrickGeometry captures the brick-grid shape used to compute per-brick
// linear indices and counts.
type BrickGeometry struct {
	// Side is the linear brick dimension B.
	Side int
	// Dims is 2 or 3.
	Dims int
	// NBx, NBy, NBz are the brick-grid dimensions: ceil(Ni/B) per axis.
	NBx, NBy, NBz int
}

// NumBricks returns the total brick count for the geometry.
func (g BrickGeometry) NumBricks() int {
	nz := g.NBz
	if g.Dims == 2 {
		nz = 1
	}
	return g.NBx * g.NBy * nz
}

// BrickIndex returns the row-major (z, y, x) linear brick index used to
// order bricks within a level's file.
func (g BrickGeometry) BrickIndex(bx, by, bz int) int {
	if g.Dims == 2 {
		return by*g.NBx + bx
	}
	return bz*g.NBx*g.NBy + by*g.NBx + bx
}

// NewGeometry computes the brick-grid dimensions for a variable of size
// (nx, ny, nz) with brick size (bx, by, bz): brick count is ceil(Ni/Bi)
// per axis.
func NewGeometry(nx, ny, nz, bx, by, bz int) BrickGeometry {
	dims := 3
	if nz <= 1 {
		dims = 2
		nz, bz = 1, 1
	}
	return BrickGeometry{
		Side: bx,
		Dims: dims,
		NBx:  ceilDiv(nx, bx),
		NBy:  ceilDiv(ny, by),
		NBz:  ceilDiv(nz, bz),
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
