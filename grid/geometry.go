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

// Package grid implements the regular, stretched and layered (i,j,k) <->
// (x,y,z) coordinate contracts shared by the data manager when it wraps a
// region buffer for sampling.
package grid

import (
	"sort"

	"github.com/spatialmodel/vdc/vdcerr"
)

// Interpolation selects how GetValue samples between grid points.
type Interpolation int

const (
	Trilinear Interpolation = iota
	Nearest
)

// Sampler is the common (i,j,k) <-> (x,y,z) contract every grid variant
// satisfies.
type Sampler interface {
	// GetValue samples the field at projected coordinates (x, y, z).
	// missing is true if the sample is undefined because of an
	// out-of-extent query outside periodic/clamped bounds, or because
	// missing-value propagation rendered it so.
	GetValue(x, y, z float64) (value float64, missing bool)
	// GetDimensions returns the voxel grid extents (Nx, Ny, Nz).
	GetDimensions() (nx, ny, nz int)
	// GetUserExtents returns the projected-coordinate bounding box.
	GetUserExtents() (min, max [3]float64)
	// GetIJKIndexFloor returns the integer cell containing (x,y,z) and
	// the fractional offset within that cell, for each axis in [0,1].
	GetIJKIndexFloor(x, y, z float64) (i, j, k int, frac [3]float64)
}

// Field supplies voxel values and a missing-value test; grid variants
// sample through this abstraction rather than owning storage themselves.
type Field interface {
	At(i, j, k int) float64
	IsMissing(i, j, k int) bool
	Dims() (nx, ny, nz int)
}

// Periodic holds independent per-axis periodic-boundary flags.
type Periodic struct{ X, Y, Z bool }

// clampOrWrap maps a candidate integer axis coordinate back into [0, n)
// according to the periodic flag: wrap if periodic, clamp otherwise.
func clampOrWrap(i, n int, periodic bool) int {
	if n <= 0 {
		return 0
	}
	if periodic {
		i %= n
		if i < 0 {
			i += n
		}
		return i
	}
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Regular is a constant-per-axis-spacing grid: spacing is derived from
// extents and dims.
type Regular struct {
	Field    Field
	Min, Max [3]float64
	Periodic Periodic
	Interp   Interpolation
}

func (g *Regular) spacing() [3]float64 {
	nx, ny, nz := g.Field.Dims()
	return [3]float64{
		axisSpacing(g.Min[0], g.Max[0], nx),
		axisSpacing(g.Min[1], g.Max[1], ny),
		axisSpacing(g.Min[2], g.Max[2], nz),
	}
}

func axisSpacing(min, max float64, n int) float64 {
	if n <= 1 {
		return 0
	}
	return (max - min) / float64(n-1)
}

func (g *Regular) GetDimensions() (int, int, int) { return g.Field.Dims() }
func (g *Regular) GetUserExtents() ([3]float64, [3]float64) { return g.Min, g.Max }

func (g *Regular) GetIJKIndexFloor(x, y, z float64) (int, int, int, [3]float64) {
	nx, ny, nz := g.Field.Dims()
	sp := g.spacing()
	fi := axisFloor(x, g.Min[0], sp[0])
	fj := axisFloor(y, g.Min[1], sp[1])
	fk := axisFloor(z, g.Min[2], sp[2])
	i, fx := splitFloor(fi, nx, g.Periodic.X)
	j, fy := splitFloor(fj, ny, g.Periodic.Y)
	k, fz := splitFloor(fk, nz, g.Periodic.Z)
	return i, j, k, [3]float64{fx, fy, fz}
}

func axisFloor(v, min, spacing float64) float64 {
	if spacing == 0 {
		return 0
	}
	return (v - min) / spacing
}

func splitFloor(f float64, n int, periodic bool) (int, float64) {
	i := int(f)
	frac := f - float64(i)
	if frac < 0 {
		i--
		frac += 1
	}
	return clampOrWrap(i, n, periodic), frac
}

func (g *Regular) GetValue(x, y, z float64) (float64, bool) {
	i, j, k, frac := g.GetIJKIndexFloor(x, y, z)
	nx, ny, nz := g.Field.Dims()
	if g.Interp == Nearest {
		return sampleNearest(g.Field, i, j, k, frac, nx, ny, nz, g.Periodic)
	}
	return sampleTrilinear(g.Field, i, j, k, frac, nx, ny, nz, g.Periodic)
}

// sampleNearest picks the closest corner along each axis: the sample is
// missing only when the selected corner is missing.
func sampleNearest(f Field, i, j, k int, frac [3]float64, nx, ny, nz int, p Periodic) (float64, bool) {
	ii, jj, kk := i, j, k
	if frac[0] >= 0.5 {
		ii = clampOrWrap(i+1, nx, p.X)
	}
	if frac[1] >= 0.5 {
		jj = clampOrWrap(j+1, ny, p.Y)
	}
	if nz > 1 && frac[2] >= 0.5 {
		kk = clampOrWrap(k+1, nz, p.Z)
	}
	if f.IsMissing(ii, jj, kk) {
		return 0, true
	}
	return f.At(ii, jj, kk), false
}

// sampleTrilinear performs trilinear (or bilinear, for nz==1) interpolation
// with missing-value propagation: a single missing corner yields a missing
// sample.
func sampleTrilinear(f Field, i, j, k int, frac [3]float64, nx, ny, nz int, p Periodic) (float64, bool) {
	i1 := clampOrWrap(i+1, nx, p.X)
	j1 := clampOrWrap(j+1, ny, p.Y)
	k1 := k
	zWeightless := nz <= 1
	if !zWeightless {
		k1 = clampOrWrap(k+1, nz, p.Z)
	}

	type corner struct {
		wi, wj, wk float64
		ci, cj, ck int
	}
	corners := []corner{
		{1 - frac[0], 1 - frac[1], 1, i, j, k},
		{frac[0], 1 - frac[1], 1, i1, j, k},
		{1 - frac[0], frac[1], 1, i, j1, k},
		{frac[0], frac[1], 1, i1, j1, k},
	}
	if !zWeightless {
		more := make([]corner, len(corners))
		for idx, c := range corners {
			more[idx] = corner{c.wi, c.wj, 1, c.ci, c.cj, k1}
		}
		for idx := range corners {
			corners[idx].wk = 1 - frac[2]
		}
		for idx := range more {
			more[idx].wk = frac[2]
		}
		corners = append(corners, more...)
	}

	var sum, wsum float64
	for _, c := range corners {
		w := c.wi * c.wj * c.wk
		if w == 0 {
			continue
		}
		if f.IsMissing(c.ci, c.cj, c.ck) {
			return 0, true
		}
		sum += w * f.At(c.ci, c.cj, c.ck)
		wsum += w
	}
	if wsum == 0 {
		return 0, true
	}
	return sum / wsum, false
}

// Stretched is a per-axis monotonic coordinate array grid: locates a cell
// by binary search in O(log N) and interpolates linearly within it.
type Stretched struct {
	Field    Field
	X, Y, Z  []float64 // monotonic per-axis coordinate arrays
	Periodic Periodic
	Interp   Interpolation
}

// Validate checks that every coordinate axis is monotonic; non-monotonic
// coordinates fail with Corrupt.
func (g *Stretched) Validate() error {
	for _, axis := range [][]float64{g.X, g.Y, g.Z} {
		if !sort.Float64sAreSorted(axis) {
			return vdcerr.Wrap(vdcerr.Corrupt, "grid: stretched-grid axis is not monotonically increasing")
		}
	}
	return nil
}

func (g *Stretched) GetDimensions() (int, int, int) { return g.Field.Dims() }

func (g *Stretched) GetUserExtents() ([3]float64, [3]float64) {
	min := [3]float64{g.X[0], g.Y[0], g.Z[0]}
	max := [3]float64{g.X[len(g.X)-1], g.Y[len(g.Y)-1], g.Z[len(g.Z)-1]}
	return min, max
}

func (g *Stretched) GetIJKIndexFloor(x, y, z float64) (int, int, int, [3]float64) {
	nx, ny, nz := g.Field.Dims()
	i, fx := searchAxis(g.X, x, nx, g.Periodic.X)
	j, fy := searchAxis(g.Y, y, ny, g.Periodic.Y)
	k, fz := searchAxis(g.Z, z, nz, g.Periodic.Z)
	return i, j, k, [3]float64{fx, fy, fz}
}

// searchAxis binary-searches a monotonic coordinate array for the cell
// containing v and returns the lower index plus the fractional offset
// within that cell.
func searchAxis(coords []float64, v float64, n int, periodic bool) (int, float64) {
	if len(coords) < 2 {
		return 0, 0
	}
	idx := sort.SearchFloat64s(coords, v)
	i := idx - 1
	if i < 0 {
		i = 0
	}
	if i > len(coords)-2 {
		i = len(coords) - 2
	}
	span := coords[i+1] - coords[i]
	var frac float64
	if span != 0 {
		frac = (v - coords[i]) / span
	}
	// Out-of-extent queries clamp to the first or last coordinate.
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return clampOrWrap(i, n, periodic), frac
}

func (g *Stretched) GetValue(x, y, z float64) (float64, bool) {
	i, j, k, frac := g.GetIJKIndexFloor(x, y, z)
	nx, ny, nz := g.Field.Dims()
	if g.Interp == Nearest {
		return sampleNearest(g.Field, i, j, k, frac, nx, ny, nz, g.Periodic)
	}
	return sampleTrilinear(g.Field, i, j, k, frac, nx, ny, nz, g.Periodic)
}

// Elevation supplies the per-(i,j,k) vertical coordinate a Layered grid
// looks up, typically the ELEVATION derived variable.
type Elevation interface {
	// Z returns the elevation at voxel (i, j, k); must be monotonically
	// non-decreasing in k for fixed (i, j).
	Z(i, j, k int) float64
}

// Layered is a terrain-following grid: X/Y are regular, Z is a per-(i,j)
// lookup into an Elevation field.
type Layered struct {
	Field      Field
	Elevation  Elevation
	MinX, MaxX float64
	MinY, MaxY float64
	Periodic   Periodic
	Interp     Interpolation
}

func (g *Layered) GetDimensions() (int, int, int) { return g.Field.Dims() }

func (g *Layered) GetUserExtents() ([3]float64, [3]float64) {
	_, _, nz := g.Field.Dims()
	min := [3]float64{g.MinX, g.MinY, g.Elevation.Z(0, 0, 0)}
	max := [3]float64{g.MaxX, g.MaxY, g.Elevation.Z(0, 0, nz-1)}
	return min, max
}

func (g *Layered) GetIJKIndexFloor(x, y, z float64) (int, int, int, [3]float64) {
	nx, ny, nz := g.Field.Dims()
	spx := axisSpacing(g.MinX, g.MaxX, nx)
	spy := axisSpacing(g.MinY, g.MaxY, ny)
	fi := axisFloor(x, g.MinX, spx)
	fj := axisFloor(y, g.MinY, spy)
	i, fx := splitFloor(fi, nx, g.Periodic.X)
	j, fy := splitFloor(fj, ny, g.Periodic.Y)
	k, fz := g.searchElevation(i, j, z, nz)
	return i, j, k, [3]float64{fx, fy, fz}
}

// searchElevation binary-searches the ELEVATION column at (i,j) for the
// layer containing z, relying on Z being monotonic in k.
func (g *Layered) searchElevation(i, j int, z float64, nz int) (int, float64) {
	lo, hi := 0, nz-1
	for lo < hi-1 {
		mid := (lo + hi) / 2
		if g.Elevation.Z(i, j, mid) <= z {
			lo = mid
		} else {
			hi = mid
		}
	}
	if nz < 2 {
		return 0, 0
	}
	z0, z1 := g.Elevation.Z(i, j, lo), g.Elevation.Z(i, j, lo+1)
	var frac float64
	if z1 != z0 {
		frac = (z - z0) / (z1 - z0)
	}
	if frac < 0 {
		frac, lo = 0, maxInt(lo-1, 0)
	}
	if frac > 1 {
		frac = 1
	}
	return lo, frac
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (g *Layered) GetValue(x, y, z float64) (float64, bool) {
	i, j, k, frac := g.GetIJKIndexFloor(x, y, z)
	nx, ny, nz := g.Field.Dims()
	if g.Interp == Nearest {
		return sampleNearest(g.Field, i, j, k, frac, nx, ny, nz, g.Periodic)
	}
	return sampleTrilinear(g.Field, i, j, k, frac, nx, ny, nz, g.Periodic)
}
