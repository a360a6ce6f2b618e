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
	"os"

	"github.com/spatialmodel/vdc/blockio"
	"github.com/spatialmodel/vdc/codec"
	"github.com/spatialmodel/vdc/vdcerr"
)

// Reader serves brick-wise subregion reads of one variable-timestep at a
// fixed (level, LOD). A variable-timestep may be open for read any number
// of times serially per handle; the handle itself is not safe for
// concurrent use.
type Reader struct {
	cfg   *Config
	brick *codec.Brick
	geom  blockio.BrickGeometry
	v     *blockio.Variable
	level int
	lod   int

	sideR int    // brick side at level
	dimsR [3]int // voxel dims at level

	mask *MissingMask // nil when the variable carries no sentinel

	// slice-streaming state
	slab    []float64
	slabRow int // brick-row index currently decoded into slab, -1 if none
	zCursor int
}

// OpenReader validates (level, lod) against the collection configuration
// and opens the backing brick file. A level or LOD beyond what was written
// fails with NotAvailable; a missing variable file fails with NotFound.
func OpenReader(cfg *Config, level, lod int) (*Reader, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if level < 0 || level > cfg.Levels {
		return nil, vdcerr.Wrap(vdcerr.NotAvailable, "region: level %d exceeds %d stored levels", level, cfg.Levels)
	}
	if lod < 0 || lod >= len(cfg.CRatios) {
		return nil, vdcerr.Wrap(vdcerr.NotAvailable, "region: LOD %d exceeds %d stored LODs", lod, len(cfg.CRatios))
	}
	br, err := cfg.brick()
	if err != nil {
		return nil, err
	}
	geom := cfg.geometry()
	v, err := blockio.OpenVariableRead(cfg.Dir, cfg.Var, cfg.VDCType, geom, cfg.Levels, lod)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		cfg:     cfg,
		brick:   br,
		geom:    geom,
		v:       v,
		level:   level,
		lod:     lod,
		sideR:   br.SideAt(level),
		dimsR:   cfg.DimsAt(level),
		slabRow: -1,
	}
	if mf, err := os.Open(maskPath(cfg.Dir, cfg.Var)); err == nil {
		m, err := DeserializeMask(mf)
		mf.Close()
		if err != nil {
			r.Close()
			return nil, err
		}
		r.mask = m
	}
	return r, nil
}

// Dims returns the voxel dimensions at the reader's refinement level.
func (r *Reader) Dims() [3]int { return r.dimsR }

// Mask returns the variable's missing-value mask at native resolution, or
// nil when the variable carries no sentinel.
func (r *Reader) Mask() *MissingMask { return r.mask }

// decodeBrick reads and decodes one brick at the reader's (level, lod),
// returning a cube of side r.sideR (or a square for 2-D variables).
func (r *Reader) decodeBrick(bx, by, bz int) ([]float64, error) {
	payload, err := r.v.File().ReadBrick(r.geom.BrickIndex(bx, by, bz))
	if err != nil {
		return nil, err
	}
	enc, err := codec.UnmarshalEncoded(payload)
	if err != nil {
		return nil, err
	}
	return r.brick.Decode(enc, r.level, r.lod)
}

// BlockReadRegion reads the brick-aligned region [bmin, bmax] (inclusive
// brick coordinates) into a contiguous (x, y, z)-ordered buffer whose
// extents are whole bricks at the reader's level: edge-brick padding is
// exposed, not clipped.
func (r *Reader) BlockReadRegion(bmin, bmax [3]int) ([]float64, [3]int, error) {
	if err := r.checkBrickRange(bmin, bmax); err != nil {
		return nil, [3]int{}, err
	}
	b := r.sideR
	nbx := bmax[0] - bmin[0] + 1
	nby := bmax[1] - bmin[1] + 1
	nbz := bmax[2] - bmin[2] + 1
	zb := b
	if !r.cfg.is3D() {
		nbz, zb = 1, 1
	}
	dims := [3]int{nbx * b, nby * b, nbz * zb}
	out := make([]float64, dims[0]*dims[1]*dims[2])

	for bz := bmin[2]; bz <= bmax[2]; bz++ {
		for by := bmin[1]; by <= bmax[1]; by++ {
			for bx := bmin[0]; bx <= bmax[0]; bx++ {
				cube, err := r.decodeBrick(bx, by, bz)
				if err != nil {
					return nil, [3]int{}, err
				}
				r.placeBrick(out, dims, cube, bx-bmin[0], by-bmin[1], bz-bmin[2])
			}
		}
	}
	r.applyMask(out, dims, [3]int{bmin[0] * b, bmin[1] * b, bmin[2] * zb})
	return out, dims, nil
}

// applyMask re-imposes the stored missing-value sentinel onto a decoded
// buffer: a voxel written missing reads exactly VDCMissing at every level
// and LOD, regardless of what lossy reconstruction produced there. origin
// is the buffer's position in level-r voxel coordinates.
func (r *Reader) applyMask(buf []float64, dims, origin [3]int) {
	if r.mask == nil {
		return
	}
	scale := 1 << uint(r.cfg.Levels-r.level)
	i := 0
	for z := 0; z < dims[2]; z++ {
		gz := (origin[2] + z) * scale
		for y := 0; y < dims[1]; y++ {
			gy := (origin[1] + y) * scale
			for x := 0; x < dims[0]; x++ {
				gx := (origin[0] + x) * scale
				if gx < r.mask.Nx && gy < r.mask.Ny && gz < r.mask.Nz && r.mask.Get(gx, gy, gz) {
					buf[i] = r.cfg.VDCMissing
				}
				i++
			}
		}
	}
}

func (r *Reader) checkBrickRange(bmin, bmax [3]int) error {
	nb := [3]int{r.geom.NBx, r.geom.NBy, r.geom.NBz}
	if !r.cfg.is3D() {
		nb[2] = 1
	}
	for i := 0; i < 3; i++ {
		if bmin[i] < 0 || bmax[i] < bmin[i] || bmax[i] >= nb[i] {
			return vdcerr.Wrap(vdcerr.InvalidParam, "region: brick range [%v,%v] outside grid %v", bmin, bmax, nb)
		}
	}
	return nil
}

// placeBrick copies one decoded brick cube into a block-region buffer at
// brick offset (ox, oy, oz).
func (r *Reader) placeBrick(out []float64, dims [3]int, cube []float64, ox, oy, oz int) {
	b := r.sideR
	zb := b
	if !r.cfg.is3D() {
		zb = 1
	}
	n := 0
	for z := 0; z < zb; z++ {
		gz := oz*zb + z
		for y := 0; y < b; y++ {
			gy := oy*b + y
			base := (gz*dims[1]+gy)*dims[0] + ox*b
			copy(out[base:base+b], cube[n:n+b])
			n += b
		}
	}
}

// ReadRegion reads the voxel sub-box [min, max] (inclusive, in level-r
// voxel coordinates) into a contiguous (x, y, z)-ordered buffer of exactly
// the requested extents. Padding beyond the grid edge is never exposed.
func (r *Reader) ReadRegion(min, max [3]int) ([]float64, error) {
	for i := 0; i < 3; i++ {
		hi := r.dimsR[i] - 1
		if min[i] < 0 || max[i] < min[i] || max[i] > hi {
			return nil, vdcerr.Wrap(vdcerr.InvalidParam, "region: voxel range [%v,%v] outside grid %v", min, max, r.dimsR)
		}
	}
	b := r.sideR
	bmin := [3]int{min[0] / b, min[1] / b, 0}
	bmax := [3]int{max[0] / b, max[1] / b, 0}
	if r.cfg.is3D() {
		bmin[2], bmax[2] = min[2]/b, max[2]/b
	}
	block, bdims, err := r.BlockReadRegion(bmin, bmax)
	if err != nil {
		return nil, err
	}

	nx := max[0] - min[0] + 1
	ny := max[1] - min[1] + 1
	nz := max[2] - min[2] + 1
	out := make([]float64, nx*ny*nz)
	zb := b
	if !r.cfg.is3D() {
		zb = 1
	}
	n := 0
	for z := 0; z < nz; z++ {
		sz := min[2] + z - bmin[2]*zb
		for y := 0; y < ny; y++ {
			sy := min[1] + y - bmin[1]*b
			base := (sz*bdims[1]+sy)*bdims[0] + (min[0] - bmin[0]*b)
			copy(out[n:n+nx], block[base:base+nx])
			n += nx
		}
	}
	return out, nil
}

// ReadSlice streams Z slices in ascending order: each call returns the
// next (x, y) plane at the reader's level, decoding one brick row at a
// time and holding it until its slices are consumed. It fails with
// NotAvailable after the last slice.
func (r *Reader) ReadSlice() ([]float64, error) {
	if r.zCursor >= r.dimsR[2] {
		return nil, vdcerr.Wrap(vdcerr.NotAvailable, "region: all %d slices consumed", r.dimsR[2])
	}
	zb := r.sideR
	if !r.cfg.is3D() {
		zb = 1
	}
	row := r.zCursor / zb
	if row != r.slabRow {
		nbz := r.geom.NBz
		if !r.cfg.is3D() {
			nbz = 1
		}
		if row >= nbz {
			return nil, vdcerr.Wrap(vdcerr.NotAvailable, "region: all slices consumed")
		}
		block, _, err := r.BlockReadRegion(
			[3]int{0, 0, row}, [3]int{r.geom.NBx - 1, r.geom.NBy - 1, row})
		if err != nil {
			return nil, err
		}
		r.slab = block
		r.slabRow = row
	}

	bnx := r.geom.NBx * r.sideR
	bny := r.geom.NBy * r.sideR
	nx, ny := r.dimsR[0], r.dimsR[1]
	out := make([]float64, nx*ny)
	zInSlab := r.zCursor - row*zb
	for y := 0; y < ny; y++ {
		base := (zInSlab*bny+y)*bnx
		copy(out[y*nx:(y+1)*nx], r.slab[base:base+nx])
	}
	r.zCursor++
	return out, nil
}

// Close releases the underlying brick file. The reader may not be used
// afterwards.
func (r *Reader) Close() error {
	if r.v == nil {
		return nil
	}
	err := r.v.CloseVariable()
	r.v = nil
	return err
}
