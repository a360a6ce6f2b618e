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

package metadata

import (
	"fmt"
	"os"

	"github.com/ctessum/cdf"

	"github.com/spatialmodel/vdc/vdcerr"
)

// CoordStore is the NetCDF sidecar holding stretched-grid coordinate
// arrays, which are too bulky for the XML master document. Arrays are
// keyed by axis name plus timestep, e.g. "zcoords_ts0002".
type CoordStore struct {
	path string
}

// CoordKey builds the sidecar variable name for one axis of one timestep.
// axis is "x", "y" or "z".
func CoordKey(axis string, ts int) string {
	return fmt.Sprintf("%scoords_ts%04d", axis, ts)
}

// Write replaces the sidecar with the given named coordinate arrays. The
// NetCDF header must be defined before any data is written, so the store
// takes every array in one call rather than appending incrementally.
func (c *CoordStore) Write(arrays map[string][]float64) error {
	if c.path == "" {
		return vdcerr.Wrap(vdcerr.InvalidParam, "metadata: coordinate store has no path; Save the master first")
	}
	names := make([]string, 0, len(arrays))
	lengths := make([]int, 0, len(arrays))
	for name, a := range arrays {
		names = append(names, name)
		lengths = append(lengths, len(a))
	}
	h := cdf.NewHeader(names, lengths)
	for _, name := range names {
		h.AddVariable(name, []string{name}, []float64{0.})
	}
	h.Define()

	ff, err := os.Create(c.path)
	if err != nil {
		return vdcerr.Wrap(vdcerr.IOError, "metadata: create coordinate sidecar %s", c.path)
	}
	defer ff.Close()
	f, err := cdf.Create(ff, h)
	if err != nil {
		return vdcerr.Wrap(vdcerr.IOError, "metadata: write coordinate sidecar header")
	}
	for _, name := range names {
		w := f.Writer(name, []int{0}, []int{len(arrays[name])})
		if _, err := w.Write(arrays[name]); err != nil {
			return vdcerr.Wrap(vdcerr.IOError, "metadata: write coordinate array %s", name)
		}
	}
	return nil
}

// Read returns one named coordinate array from the sidecar.
func (c *CoordStore) Read(name string) ([]float64, error) {
	ff, err := os.Open(c.path)
	if err != nil {
		return nil, vdcerr.Wrap(vdcerr.NotFound, "metadata: open coordinate sidecar %s", c.path)
	}
	defer ff.Close()
	f, err := cdf.Open(ff)
	if err != nil {
		return nil, vdcerr.Wrap(vdcerr.Corrupt, "metadata: parse coordinate sidecar %s", c.path)
	}
	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, vdcerr.Wrap(vdcerr.Corrupt, "metadata: read coordinate array %s", name)
	}
	out, ok := buf.([]float64)
	if !ok {
		return nil, vdcerr.Wrap(vdcerr.Corrupt, "metadata: coordinate array %s has unexpected type", name)
	}
	return out, nil
}
