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
	"math"
	"testing"
)

func rampBrick(b int, dims int) []float64 {
	if dims == 2 {
		out := make([]float64, b*b)
		for y := 0; y < b; y++ {
			for x := 0; x < b; x++ {
				out[y*b+x] = float64(x) + 2*float64(y)
			}
		}
		return out
	}
	out := make([]float64, b*b*b)
	for z := 0; z < b; z++ {
		for y := 0; y < b; y++ {
			for x := 0; x < b; x++ {
				out[(z*b+y)*b+x] = float64(x) + 2*float64(y) + 3*float64(z)
			}
		}
	}
	return out
}

func TestTransformRoundTrip3D(t *testing.T) {
	k, _ := NewKernel1D(3, 3)
	tr := &Transform{Kernel: k, Dims: 3}
	b := 8
	src := rampBrick(b, 3)

	subs, err := tr.Forward(src, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != NumSubBricks(3) {
		t.Fatalf("got %d sub-bricks, want %d", len(subs), NumSubBricks(3))
	}
	for sb, buf := range subs {
		if len(buf) != b*b*b/8 {
			t.Fatalf("sub-brick %d has %d coefficients", sb, len(buf))
		}
	}
	dst, err := tr.Inverse(subs, b)
	if err != nil {
		t.Fatal(err)
	}
	for i := range src {
		if math.Abs(dst[i]-src[i]) > 1e-9 {
			t.Fatalf("index %d: got %g want %g", i, dst[i], src[i])
		}
	}
}

func TestTransformRoundTrip2D(t *testing.T) {
	k, _ := NewKernel1D(1, 1)
	tr := &Transform{Kernel: k, Dims: 2}
	b := 16
	src := rampBrick(b, 2)

	subs, err := tr.Forward(src, b)
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 4 {
		t.Fatalf("got %d sub-bricks, want 4", len(subs))
	}
	dst, err := tr.Inverse(subs, b)
	if err != nil {
		t.Fatal(err)
	}
	for i := range src {
		if math.Abs(dst[i]-src[i]) > 1e-10 {
			t.Fatalf("index %d: got %g want %g", i, dst[i], src[i])
		}
	}
}

func TestTransformDeterministicAcrossThreads(t *testing.T) {
	k, _ := NewKernel1D(3, 3)
	b := 8
	src := rampBrick(b, 3)

	var first map[SubBrick][]float64
	for _, nthreads := range []int{1, 2, 7} {
		tr := &Transform{Kernel: k, Dims: 3, NThreads: nthreads}
		subs, err := tr.Forward(src, b)
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = subs
			continue
		}
		for sb := range first {
			for i := range first[sb] {
				if subs[sb][i] != first[sb][i] {
					t.Fatalf("nthreads=%d sub-brick %d index %d differs", nthreads, sb, i)
				}
			}
		}
	}
}

func TestTransformSmoothFieldConcentratesInLambda(t *testing.T) {
	k, _ := NewKernel1D(3, 3)
	tr := &Transform{Kernel: k, Dims: 3}
	b := 8
	src := make([]float64, b*b*b)
	for i := range src {
		src[i] = 7.5
	}
	subs, err := tr.Forward(src, b)
	if err != nil {
		t.Fatal(err)
	}
	for sb, buf := range subs {
		if sb == Lambda {
			continue
		}
		for i, v := range buf {
			if math.Abs(v) > 1e-12 {
				t.Fatalf("sub-brick %d index %d: gamma %g for constant field", sb, i, v)
			}
		}
	}
}
