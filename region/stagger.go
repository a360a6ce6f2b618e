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

// Unstagger averages adjacent voxel pairs along every axis flagged true in
// stagger, converting a (Nx[+1], Ny[+1], Nz[+1]) source field into the
// (Nx, Ny, Nz) field the codec expects. in has the
// staggered dimensions inDims; the returned buffer has dimensions
// inDims with each staggered axis reduced by one.
func Unstagger(in []float64, inDims [3]int, stagger [3]bool) ([]float64, [3]int) {
	out, outDims := in, inDims
	if stagger[0] {
		out, outDims = averageAxis(out, outDims, 0)
	}
	if stagger[1] {
		out, outDims = averageAxis(out, outDims, 1)
	}
	if stagger[2] && outDims[2] > 1 {
		out, outDims = averageAxis(out, outDims, 2)
	}
	return out, outDims
}

// averageAxis shortens axis by one sample, replacing each adjacent pair
// with its mean.
func averageAxis(in []float64, dims [3]int, axis int) ([]float64, [3]int) {
	out := dims
	out[axis]--
	nx, ny := dims[0], dims[1]
	buf := make([]float64, out[0]*out[1]*maxInt(out[2], 1))
	n := 0
	for z := 0; z < maxInt(out[2], 1); z++ {
		for y := 0; y < out[1]; y++ {
			for x := 0; x < out[0]; x++ {
				a := index3(x, y, z, nx, ny, axis, 0)
				b := index3(x, y, z, nx, ny, axis, 1)
				buf[n] = (in[a] + in[b]) / 2
				n++
			}
		}
	}
	return buf, out
}

// index3 returns the linear index into a (nx,ny,*) row-major buffer for
// voxel (x,y,z), with a +delta offset applied along axis.
func index3(x, y, z, nx, ny, axis, delta int) int {
	switch axis {
	case 0:
		x += delta
	case 1:
		y += delta
	case 2:
		z += delta
	}
	return z*nx*ny + y*nx + x
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
