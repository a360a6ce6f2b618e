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
	"math"
	"os"
	"path/filepath"

	"github.com/spatialmodel/vdc/blockio"
	"github.com/spatialmodel/vdc/codec"
	"github.com/spatialmodel/vdc/metadata"
	"github.com/spatialmodel/vdc/vdcerr"
)

// Writer streams one variable-timestep into its brick files. WriteSlice
// must be called once per Z slice (Nz times, or Nz+1 for Z-staggered
// sources); a full brick-height slab is encoded and committed whenever it
// completes, so bricks land on disk in strict Z-then-Y-then-X order.
// A variable-timestep is open for write exactly once; Close finalizes the
// brick files, the missing-value mask and the data statistics.
type Writer struct {
	cfg   *Config
	brick *codec.Brick
	geom  blockio.BrickGeometry
	files []*blockio.Variable // one per LOD

	slab     []float64 // BrickSide full-XY slices being accumulated
	slabZ    int       // number of slices currently in the slab
	zWritten int       // unstaggered slices committed or buffered so far
	slabRow  int       // brick-row (z) index of the next slab to flush

	prevSlice []float64 // last staggered slice, for Z averaging
	nSlices   int       // WriteSlice call count

	mask     *MissingMask
	min, max float64
	closed   bool
}

// NewWriter validates cfg, truncates/creates the per-LOD brick files and
// returns a Writer expecting cfg.Dims[2] slices (one more for Z-staggered
// sources).
func NewWriter(cfg *Config) (*Writer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	br, err := cfg.brick()
	if err != nil {
		return nil, err
	}
	geom := cfg.geometry()
	w := &Writer{
		cfg:   cfg,
		brick: br,
		geom:  geom,
		slab:  make([]float64, cfg.Dims[0]*cfg.Dims[1]*cfg.BrickSide),
		mask:  NewMissingMask(cfg.Dims[0], cfg.Dims[1], cfg.Dims[2]),
		min:   math.Inf(1),
		max:   math.Inf(-1),
	}
	for lod := range cfg.CRatios {
		f, err := blockio.OpenVariableWrite(cfg.Dir, cfg.Var, cfg.VDCType, geom, cfg.Levels, lod)
		if err != nil {
			w.abort()
			return nil, err
		}
		w.files = append(w.files, f)
	}
	return w, nil
}

func (w *Writer) abort() {
	for _, f := range w.files {
		f.CloseVariable()
	}
	w.files = nil
	w.closed = true
}

// expectedSlices returns how many WriteSlice calls the source must make:
// one per native Z slice, plus one when the source is staggered along Z.
func (w *Writer) expectedSlices() int {
	n := w.cfg.Dims[2]
	if w.cfg.Stagger[2] && w.cfg.is3D() {
		n++
	}
	return n
}

// sliceDims returns the caller-side dimensions of one incoming slice,
// including any X/Y staggering.
func (w *Writer) sliceDims() (int, int) {
	nx, ny := w.cfg.Dims[0], w.cfg.Dims[1]
	if w.cfg.Stagger[0] {
		nx++
	}
	if w.cfg.Stagger[1] {
		ny++
	}
	return nx, ny
}

// WriteSlice accepts the next Z slice in ascending-Z order. buf holds
// nx*ny samples per sliceDims; staggered axes carry one extra sample and
// are averaged down before encoding. A missing sample never averages
// into a valid one: any cell whose face pair touches the source sentinel
// stays missing.
func (w *Writer) WriteSlice(buf []float64) error {
	if w.closed {
		return vdcerr.Wrap(vdcerr.Busy, "region: writer already closed")
	}
	snx, sny := w.sliceDims()
	if len(buf) != snx*sny {
		return vdcerr.Wrap(vdcerr.InvalidParam, "region: slice has %d samples, want %d", len(buf), snx*sny)
	}
	if w.nSlices >= w.expectedSlices() {
		return vdcerr.Wrap(vdcerr.InvalidParam, "region: more than %d slices written", w.expectedSlices())
	}
	w.nSlices++

	// Sentinel samples become NaN before any averaging, so missing
	// status propagates through the stagger arithmetic on its own and
	// commitSlice can flag the result positionally.
	slice := buf
	if w.cfg.SrcMissing != nil {
		slice = make([]float64, len(buf))
		for i, v := range buf {
			if v == *w.cfg.SrcMissing {
				slice[i] = math.NaN()
			} else {
				slice[i] = v
			}
		}
	}

	// Average out in-plane staggering.
	if w.cfg.Stagger[0] || w.cfg.Stagger[1] {
		slice, _ = Unstagger(slice, [3]int{snx, sny, 1},
			[3]bool{w.cfg.Stagger[0], w.cfg.Stagger[1], false})
	}

	// Z staggering averages consecutive slice pairs, so the first slice
	// only primes the buffer.
	if w.cfg.Stagger[2] && w.cfg.is3D() {
		if w.prevSlice == nil {
			w.prevSlice = append([]float64(nil), slice...)
			return nil
		}
		avg := make([]float64, len(slice))
		for i, v := range slice {
			avg[i] = (w.prevSlice[i] + v) / 2
		}
		copy(w.prevSlice, slice)
		slice = avg
	}

	return w.commitSlice(slice)
}

// commitSlice records sentinels and statistics for one unstaggered slice
// and flushes the slab when it reaches brick height.
func (w *Writer) commitSlice(slice []float64) error {
	nx, ny := w.cfg.Dims[0], w.cfg.Dims[1]
	z := w.zWritten
	dst := w.slab[w.slabZ*nx*ny : (w.slabZ+1)*nx*ny]
	for i, v := range slice {
		if math.IsNaN(v) || (w.cfg.SrcMissing != nil && v == *w.cfg.SrcMissing) {
			// The sentinel is reproduced from the mask on read; the
			// coefficients get a neutral fill so a huge sentinel cannot
			// bleed into valid neighbors through the transform.
			dst[i] = 0
			w.mask.Set(i%nx, i/nx, z)
			continue
		}
		dst[i] = v
		if v < w.min {
			w.min = v
		}
		if v > w.max {
			w.max = v
		}
	}
	w.slabZ++
	w.zWritten++

	slabH := w.slabHeight()
	if w.slabZ == slabH {
		if err := w.flushSlab(); err != nil {
			return err
		}
	}
	return nil
}

// slabHeight is the brick height for 3-D variables and 1 for 2-D.
func (w *Writer) slabHeight() int {
	if w.cfg.is3D() {
		return w.cfg.BrickSide
	}
	return 1
}

// flushSlab encodes every brick of the buffered slab and appends its
// payloads to each LOD file in row-major order.
func (w *Writer) flushSlab() error {
	bz := w.slabRow
	for by := 0; by < w.geom.NBy; by++ {
		for bx := 0; bx < w.geom.NBx; bx++ {
			raw := w.gatherBrick(bx, by)
			enc, err := w.brick.Encode(raw)
			if err != nil {
				return err
			}
			idx := w.geom.BrickIndex(bx, by, bz)
			for lod, f := range w.files {
				blob, err := enc.Truncate(lod).MarshalBinary()
				if err != nil {
					return err
				}
				if err := f.File().WriteBrick(idx, blob); err != nil {
					return err
				}
			}
		}
	}
	log.WithField("var", w.cfg.Var).WithField("row", bz).Debug("flushed brick slab")
	w.slabZ = 0
	w.slabRow++
	for i := range w.slab {
		w.slab[i] = 0
	}
	return nil
}

// gatherBrick copies brick (bx, by) out of the slab, padding voxels beyond
// the grid edge per the configured boundary mode. Padded voxels are stored
// on disk; readers clip them unless a block read is requested.
func (w *Writer) gatherBrick(bx, by int) []float64 {
	b := w.cfg.BrickSide
	nx, ny := w.cfg.Dims[0], w.cfg.Dims[1]
	zmax := w.slabHeight()
	out := make([]float64, 0, b*b*zmax)
	for z := 0; z < zmax; z++ {
		sz := w.padIndex(z, w.slabZ)
		for y := 0; y < b; y++ {
			gy := w.padIndex(by*b+y, ny)
			for x := 0; x < b; x++ {
				gx := w.padIndex(bx*b+x, nx)
				if sz < 0 || gy < 0 || gx < 0 {
					out = append(out, 0)
					continue
				}
				out = append(out, w.slab[(sz*ny+gy)*nx+gx])
			}
		}
	}
	return out
}

// padIndex maps a possibly out-of-range index into [0, n) per the boundary
// mode: mirrored for PadMirror, -1 (meaning "store zero") for PadZero.
func (w *Writer) padIndex(i, n int) int {
	if i < n {
		return i
	}
	if w.cfg.Boundary == metadata.PadMirror {
		m := 2*n - i - 1
		if m < 0 {
			m = 0
		}
		return m
	}
	return -1
}

// Close flushes any partial tail slab, padded per the boundary mode
// (zeros for PadZero, mirrored slices for PadMirror), finalizes every LOD
// file and persists the missing-value mask. Close may be called once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var firstErr error
	if w.slabZ > 0 {
		if err := w.flushSlab(); err != nil {
			firstErr = err
		}
	}
	// Remaining brick rows for an aborted write are committed as empty
	// bricks so the file stays internally consistent.
	if firstErr == nil {
		for w.slabRow < w.zRows() {
			if err := w.flushSlab(); err != nil {
				firstErr = err
				break
			}
		}
	}
	for _, f := range w.files {
		if err := f.CloseVariable(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil && w.cfg.SrcMissing != nil {
		if err := w.saveMask(); err != nil {
			firstErr = err
		}
	}
	return firstErr
}

func (w *Writer) zRows() int {
	if !w.cfg.is3D() {
		return 1
	}
	return w.geom.NBz
}

// Stats returns the data range observed across all written slices,
// excluding missing samples. It is only meaningful after Close.
func (w *Writer) Stats() (min, max float64) { return w.min, w.max }

// Mask returns the missing-value mask accumulated during the write.
func (w *Writer) Mask() *MissingMask { return w.mask }

// maskPath is the on-disk location of a variable's missing-value mask.
func maskPath(dir, varName string) string {
	return filepath.Join(dir, varName+".mask")
}

func (w *Writer) saveMask() error {
	f, err := os.Create(maskPath(w.cfg.Dir, w.cfg.Var))
	if err != nil {
		return vdcerr.Wrap(vdcerr.IOError, "region: create mask file")
	}
	defer f.Close()
	return w.mask.Serialize(f)
}

// BlockWriteRegion writes an entire variable-timestep from a
// brick-aligned buffer: whole bricks at native resolution, including any
// edge padding the caller has already applied. No staggering, sentinel
// rewriting or re-padding happens on this path; it is the fast lane for
// data already in block layout.
func BlockWriteRegion(cfg *Config, buf []float64) error {
	w, err := NewWriter(cfg)
	if err != nil {
		return err
	}
	b := cfg.BrickSide
	zb := b
	nbz := w.geom.NBz
	if !cfg.is3D() {
		zb, nbz = 1, 1
	}
	bnx, bny := w.geom.NBx*b, w.geom.NBy*b
	if len(buf) != bnx*bny*nbz*zb {
		w.abort()
		return vdcerr.Wrap(vdcerr.InvalidParam, "region: block buffer has %d samples, want %d", len(buf), bnx*bny*nbz*zb)
	}
	for _, v := range buf {
		if v < w.min {
			w.min = v
		}
		if v > w.max {
			w.max = v
		}
	}
	raw := make([]float64, b*b*zb)
	for bz := 0; bz < nbz; bz++ {
		for by := 0; by < w.geom.NBy; by++ {
			for bx := 0; bx < w.geom.NBx; bx++ {
				n := 0
				for z := 0; z < zb; z++ {
					gz := bz*zb + z
					for y := 0; y < b; y++ {
						base := (gz*bny+by*b+y)*bnx + bx*b
						copy(raw[n:n+b], buf[base:base+b])
						n += b
					}
				}
				enc, err := w.brick.Encode(raw)
				if err != nil {
					w.abort()
					return err
				}
				idx := w.geom.BrickIndex(bx, by, bz)
				for lod, f := range w.files {
					blob, err := enc.Truncate(lod).MarshalBinary()
					if err != nil {
						w.abort()
						return err
					}
					if err := f.File().WriteBrick(idx, blob); err != nil {
						w.abort()
						return err
					}
				}
			}
		}
	}
	w.closed = true
	var firstErr error
	for _, f := range w.files {
		if err := f.CloseVariable(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WriteRegion writes an entire variable-timestep from one contiguous
// (x, y, z)-ordered buffer by streaming it through WriteSlice.
func WriteRegion(cfg *Config, buf []float64) error {
	w, err := NewWriter(cfg)
	if err != nil {
		return err
	}
	snx, sny := w.sliceDims()
	n := w.expectedSlices()
	if len(buf) != snx*sny*n {
		w.abort()
		return vdcerr.Wrap(vdcerr.InvalidParam, "region: buffer has %d samples, want %d", len(buf), snx*sny*n)
	}
	for z := 0; z < n; z++ {
		if err := w.WriteSlice(buf[z*snx*sny : (z+1)*snx*sny]); err != nil {
			w.abort()
			return err
		}
	}
	return w.Close()
}
