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

package grid

import (
	"math"
	"testing"
)

// sliceField is an in-memory Field for tests.
type sliceField struct {
	data       []float64
	nx, ny, nz int
	missing    float64
	hasMissing bool
}

func (f *sliceField) At(i, j, k int) float64 { return f.data[(k*f.ny+j)*f.nx+i] }
func (f *sliceField) IsMissing(i, j, k int) bool {
	return f.hasMissing && f.At(i, j, k) == f.missing
}
func (f *sliceField) Dims() (int, int, int) { return f.nx, f.ny, f.nz }

func rampField(nx, ny, nz int) *sliceField {
	f := &sliceField{nx: nx, ny: ny, nz: nz, data: make([]float64, nx*ny*nz)}
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				f.data[(k*ny+j)*nx+i] = float64(i) + 10*float64(j) + 100*float64(k)
			}
		}
	}
	return f
}

func TestRegularGridSampling(t *testing.T) {
	f := rampField(4, 4, 4)
	g := &Regular{Field: f, Min: [3]float64{0, 0, 0}, Max: [3]float64{3, 3, 3}}

	if v, missing := g.GetValue(1, 2, 3); missing || math.Abs(v-321) > 1e-12 {
		t.Errorf("GetValue(1,2,3) = %g (missing=%v), want 321", v, missing)
	}
	// Midpoints interpolate linearly.
	if v, _ := g.GetValue(0.5, 0, 0); math.Abs(v-0.5) > 1e-12 {
		t.Errorf("GetValue(0.5,0,0) = %g, want 0.5", v)
	}
	// Out-of-extent queries clamp.
	if v, _ := g.GetValue(-5, 0, 0); math.Abs(v-0) > 1e-12 {
		t.Errorf("clamped GetValue(-5,0,0) = %g, want 0", v)
	}
}

func TestStretchedGridScenario(t *testing.T) {
	// An 8x8x4 grid with Z coordinates [0, 1, 3, 7] and regular X/Y.
	f := rampField(8, 8, 4)
	g := &Stretched{
		Field: f,
		X:     coords(8, 1),
		Y:     coords(8, 1),
		Z:     []float64{0, 1, 3, 7},
	}
	if err := g.Validate(); err != nil {
		t.Fatal(err)
	}

	// Z = 3 lands exactly on slice 2.
	if v, missing := g.GetValue(0, 0, 3); missing || math.Abs(v-200) > 1e-12 {
		t.Errorf("GetValue(0,0,3) = %g (missing=%v), want voxel (0,0,2) = 200", v, missing)
	}
	// Z = 5 sits halfway between slices 2 and 3.
	if v, _ := g.GetValue(0, 0, 5); math.Abs(v-250) > 1e-12 {
		t.Errorf("GetValue(0,0,5) = %g, want 250", v)
	}

	i, j, k, frac := g.GetIJKIndexFloor(0, 0, 5)
	if i != 0 || j != 0 || k != 2 || math.Abs(frac[2]-0.5) > 1e-12 {
		t.Errorf("GetIJKIndexFloor(0,0,5) = (%d,%d,%d,%v)", i, j, k, frac)
	}
}

func TestStretchedGridRejectsNonMonotonic(t *testing.T) {
	g := &Stretched{Field: rampField(2, 2, 2), X: []float64{0, 1}, Y: []float64{1, 0}, Z: []float64{0, 1}}
	if err := g.Validate(); err == nil {
		t.Error("non-monotonic Y accepted")
	}
}

func TestMissingPropagation(t *testing.T) {
	f := rampField(2, 2, 2)
	f.missing = -999
	f.hasMissing = true
	f.data[0] = -999 // voxel (0,0,0)

	g := &Regular{Field: f, Min: [3]float64{0, 0, 0}, Max: [3]float64{1, 1, 1}}
	// Linear interpolation: one missing corner poisons the sample.
	if _, missing := g.GetValue(0.5, 0.5, 0.5); !missing {
		t.Error("trilinear sample touching a missing corner reported valid")
	}
	// Exactly on a valid voxel, no missing corner carries weight.
	if v, missing := g.GetValue(1, 1, 1); missing || v != 111 {
		t.Errorf("GetValue(1,1,1) = %g (missing=%v)", v, missing)
	}

	// Nearest-neighbor only consults the chosen corner.
	gn := &Regular{Field: f, Min: [3]float64{0, 0, 0}, Max: [3]float64{1, 1, 1}, Interp: Nearest}
	if _, missing := gn.GetValue(0.9, 0.9, 0.9); missing {
		t.Error("nearest sample far from missing corner reported missing")
	}
	if _, missing := gn.GetValue(0.1, 0.1, 0.1); !missing {
		t.Error("nearest sample on missing corner reported valid")
	}
}

func TestPeriodicWrap(t *testing.T) {
	f := rampField(4, 4, 1)
	g := &Regular{
		Field:    f,
		Min:      [3]float64{0, 0, 0},
		Max:      [3]float64{3, 3, 0},
		Periodic: Periodic{X: true},
	}
	// One spacing beyond the max X wraps to column 0.
	v, missing := g.GetValue(4, 0, 0)
	if missing || math.Abs(v-0) > 1e-12 {
		t.Errorf("periodic GetValue(4,0,0) = %g (missing=%v), want 0", v, missing)
	}
}

func TestLayeredGridLookup(t *testing.T) {
	f := rampField(4, 4, 4)
	g := &Layered{
		Field:     f,
		Elevation: rampElev{},
		MinX:      0, MaxX: 3,
		MinY: 0, MaxY: 3,
	}
	// rampElev spaces layers 50 apart: z=100 is layer 2 exactly.
	if v, missing := g.GetValue(0, 0, 100); missing || math.Abs(v-200) > 1e-12 {
		t.Errorf("GetValue(0,0,100) = %g (missing=%v), want 200", v, missing)
	}
	// z=125 interpolates halfway between layers 2 and 3.
	if v, _ := g.GetValue(0, 0, 125); math.Abs(v-250) > 1e-12 {
		t.Errorf("GetValue(0,0,125) = %g, want 250", v)
	}
}

type rampElev struct{}

func (rampElev) Z(i, j, k int) float64 { return float64(k) * 50 }

func coords(n int, spacing float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i) * spacing
	}
	return out
}
