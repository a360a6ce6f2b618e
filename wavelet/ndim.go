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

package wavelet

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/ctessum/sparse"
)

// SubBrick identifies one of the (up to) eight octants one transform level
// produces: the low-pass Lambda plus seven Gamma high-pass bands named by
// which axes are in their high (gamma) half. 2-D transforms only ever
// populate Lambda, GammaX, GammaY and GammaXY.
type SubBrick int

const (
	Lambda SubBrick = iota
	GammaX
	GammaY
	GammaXY
	GammaZ
	GammaXZ
	GammaYZ
	GammaXYZ
)

// NumSubBricks returns the number of sub-bricks produced by one transform
// level for the given number of spatial dimensions (2 or 3).
func NumSubBricks(ndims int) int {
	if ndims == 2 {
		return 4
	}
	return 8
}

// Transform applies the separable N-D kernel to a cubic/square brick of
// side B: one 1-D pass per axis (X, then Y, then Z for 3-D bricks), each
// pass splitting every line along that axis into a low (lambda) half and a
// high (gamma) half written back in place, the standard in-place pyramid
// layout. NThreads partitions the lines of each pass across up to NThreads
// goroutines with a barrier (errgroup.Wait) between passes; the result is
// deterministic regardless of NThreads.
type Transform struct {
	Kernel   *Kernel1D
	NThreads int
	Dims     int // 2 or 3
}

// Forward runs one transform level over brick (a Dims-dimensional cube of
// side B, linear row-major (z,y,x) for 3-D or (y,x) for 2-D) and returns
// the NumSubBricks(Dims) sub-bricks, each a contiguous buffer of side B/2.
func (t *Transform) Forward(brick []float64, b int) (map[SubBrick][]float64, error) {
	work := append([]float64(nil), brick...)
	axes := t.axisSizes(b)

	for axis := 0; axis < t.Dims; axis++ {
		if err := t.passAxis(work, axes, axis, false); err != nil {
			return nil, err
		}
	}
	return splitOctants(work, axes, t.Dims), nil
}

// Inverse is the exact inverse of Forward: given the sub-bricks of one
// transform level, reconstruct the side-B brick.
func (t *Transform) Inverse(subs map[SubBrick][]float64, b int) ([]float64, error) {
	axes := t.axisSizes(b)
	work := joinOctants(subs, axes, t.Dims)

	for axis := t.Dims - 1; axis >= 0; axis-- {
		if err := t.passAxis(work, axes, axis, true); err != nil {
			return nil, err
		}
	}
	return work, nil
}

// axisSizes returns the per-dimension extents of a Dims-dimensional cube of
// side b, ordered (x, y, z) with z absent for 2-D.
func (t *Transform) axisSizes(b int) [3]int {
	if t.Dims == 2 {
		return [3]int{b, b, 1}
	}
	return [3]int{b, b, b}
}

// lineIndices returns the linear indices, in order, of the line through
// position (along axis) holding all other coordinates fixed at the values
// encoded by lineNum, for a buffer with extents sizes (x,y,z order) and
// strides (1, sx, sx*sy).
func lineIndices(sizes [3]int, axis, lineNum int) []int {
	sx, sy := sizes[0], sizes[1]
	stride := [3]int{1, sx, sx * sy}
	n := sizes[axis]
	// Decompose lineNum into the coordinates of the other two axes.
	other := [2]int{}
	var dims [2]int
	di := 0
	for a := 0; a < 3; a++ {
		if a == axis {
			continue
		}
		dims[di] = a
		di++
	}
	rem := lineNum
	c0 := rem % sizes[dims[0]]
	rem /= sizes[dims[0]]
	c1 := rem
	other[0], other[1] = c0, c1

	base := other[0]*stride[dims[0]] + other[1]*stride[dims[1]]
	idx := make([]int, n)
	for i := 0; i < n; i++ {
		idx[i] = base + i*stride[axis]
	}
	return idx
}

func numLines(sizes [3]int, axis int) int {
	n := 1
	for a := 0; a < 3; a++ {
		if a != axis {
			n *= sizes[a]
		}
	}
	return n
}

// passAxis transforms (or, if inverse, untransforms) every line along axis
// in place, fanning lines across goroutines.
func (t *Transform) passAxis(work []float64, sizes [3]int, axis int, inverse bool) error {
	n := numLines(sizes, axis)
	nthreads := t.NThreads
	if nthreads < 1 {
		nthreads = 1
	}
	chunk := (n + nthreads - 1) / nthreads
	if chunk < 1 {
		chunk = 1
	}
	g, _ := errgroup.WithContext(context.Background())
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		start, end := start, end
		g.Go(func() error {
			for ln := start; ln < end; ln++ {
				idx := lineIndices(sizes, axis, ln)
				line := make([]float64, len(idx))
				for i, p := range idx {
					line[i] = work[p]
				}
				var out []float64
				if !inverse {
					half := len(line) / 2
					lambda, gamma := t.Kernel.Forward(line)
					out = make([]float64, len(line))
					copy(out[:half], lambda)
					copy(out[half:], gamma)
				} else {
					half := len(line) / 2
					out = t.Kernel.Inverse(line[:half], line[half:])
				}
				for i, p := range idx {
					work[p] = out[i]
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// splitOctants copies the in-place pyramid buffer into the NumSubBricks
// contiguous octant buffers identified by SubBrick.
func splitOctants(work []float64, sizes [3]int, dims int) map[SubBrick][]float64 {
	hx, hy, hz := sizes[0]/2, sizes[1]/2, 1
	if dims == 3 {
		hz = sizes[2] / 2
	}
	sx, sy := sizes[0], sizes[1]

	extract := func(ox, oy, oz int) []float64 {
		out := make([]float64, hx*hy*hz)
		n := 0
		for z := 0; z < hz; z++ {
			for y := 0; y < hy; y++ {
				for x := 0; x < hx; x++ {
					p := (oz+z)*sx*sy + (oy+y)*sx + (ox + x)
					out[n] = work[p]
					n++
				}
			}
		}
		return out
	}

	out := map[SubBrick][]float64{
		Lambda:  extract(0, 0, 0),
		GammaX:  extract(hx, 0, 0),
		GammaY:  extract(0, hy, 0),
		GammaXY: extract(hx, hy, 0),
	}
	if dims == 3 {
		out[GammaZ] = extract(0, 0, hz)
		out[GammaXZ] = extract(hx, 0, hz)
		out[GammaYZ] = extract(0, hy, hz)
		out[GammaXYZ] = extract(hx, hy, hz)
	}
	return out
}

// joinOctants is the inverse of splitOctants.
func joinOctants(subs map[SubBrick][]float64, sizes [3]int, dims int) []float64 {
	sx, sy, sz := sizes[0], sizes[1], 1
	if dims == 3 {
		sz = sizes[2]
	}
	hx, hy, hz := sx/2, sy/2, 1
	if dims == 3 {
		hz = sz / 2
	}
	work := make([]float64, sx*sy*sz)

	place := func(buf []float64, ox, oy, oz int) {
		n := 0
		for z := 0; z < hz; z++ {
			for y := 0; y < hy; y++ {
				for x := 0; x < hx; x++ {
					p := (oz+z)*sx*sy + (oy+y)*sx + (ox + x)
					work[p] = buf[n]
					n++
				}
			}
		}
	}

	place(subs[Lambda], 0, 0, 0)
	place(subs[GammaX], hx, 0, 0)
	place(subs[GammaY], 0, hy, 0)
	place(subs[GammaXY], hx, hy, 0)
	if dims == 3 {
		place(subs[GammaZ], 0, 0, hz)
		place(subs[GammaXZ], hx, 0, hz)
		place(subs[GammaYZ], 0, hy, hz)
		place(subs[GammaXYZ], hx, hy, hz)
	}
	return work
}

// ToDenseArray wraps a flat brick buffer as a *sparse.DenseArray with the
// given cubic/square shape, the array type the block memory manager hands
// out. The transform, codec and region engine work on flat []float64
// buffers and do not call it.
func ToDenseArray(buf []float64, shape ...int) *sparse.DenseArray {
	a := sparse.ZerosDense(shape...)
	copy(a.Elements, buf)
	return a
}
