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

// Package source defines the contract an external data-collection reader
// (WRF, ROMS, MOM, CF-NetCDF and similar simulation outputs) must satisfy
// to be ingested into a volume data collection. Adaptor internals live
// with their formats; the conversion pipeline programs against these
// interfaces only.
package source

import (
	"github.com/ctessum/sparse"
	"github.com/ctessum/unit"

	"github.com/spatialmodel/vdc/metadata"
)

// NextSlice returns the next Z slice of an open variable as a dense
// (y, x) array. Along each axis that Collection.Staggered reports true the
// slices keep the face-sampled extent (one extra sample in X or Y, one
// extra slice in Z); the region writer averages them down. It returns an
// error satisfying vdcerr.NotAvailable after the last slice.
type NextSlice func() (*sparse.DenseArray, error)

// Collection is a read-only view of one external simulation output.
type Collection interface {
	// Dims returns the unstaggered voxel grid dimensions.
	Dims() (nx, ny, nz int, err error)

	// GridType reports the coordinate system the output is sampled on.
	GridType() metadata.GridType

	// Extents returns the projected bounding box
	// (xmin,ymin,zmin,xmax,ymax,zmax) for one timestep; collections with
	// static geometry return the same box for every timestep.
	Extents(ts int) ([6]float64, error)

	// MapProjection returns the output's Proj4 projection string, or ""
	// when the output carries none.
	MapProjection() string

	// Variables3D lists the ingestible 3-D variables; Variables2D lists
	// the 2-D variables of one orientation. Variables whose dimensions
	// do not match the collection grid are reported by Excluded and must
	// not appear in either list.
	Variables3D() []string
	Variables2D(orient metadata.Orientation) []string
	Excluded() []string

	// UserTimes returns the monotonically increasing user-time array,
	// dimensioned (typically seconds since the simulation epoch).
	UserTimes() []*unit.Unit

	// Timestamp returns the optional textual timestamp of one timestep.
	Timestamp(ts int) string

	// MissingValue returns the sentinel for one variable and whether the
	// variable uses one.
	MissingValue(varName string) (float64, bool)

	// Staggered reports the per-axis face-sampling flags of a variable;
	// adaptors that unstagger internally return all false.
	Staggered(varName string) [3]bool

	// OpenVariableRead starts streaming one variable-timestep. The
	// returned NextSlice is invalidated by CloseVariable.
	OpenVariableRead(ts int, varName string) (NextSlice, error)

	// CloseVariable releases the open variable's resources.
	CloseVariable() error
}

// Deriver is optionally implemented by adaptors that synthesize variables
// (e.g. a WRF reader advertising ELEVATION); synthesized names must also
// appear in the adaptor's variable lists.
type Deriver interface {
	DerivedVariables() []string
}
