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

package blockio

import (
	"os"
	"path/filepath"

	"github.com/spatialmodel/vdc/vdcerr"
)

// Variable is one open (variable, level, LOD) brick file. Each brick's
// payload is a self-contained codec.Encoded blob holding every LOD up to
// the one requested at open time, so a single file per (level, lod) fully
// reconstructs that brick without consulting any other file; the region
// engine is the layer that, given a request for level r, opens the File
// and decodes each brick at r.
type Variable struct {
	dir     string
	name    string
	vdcType VDCType
	geom    BrickGeometry
	level   int
	lod     int
	file    *File
	write   bool
}

// OpenVariableRead opens the file holding (level, lod)'s bricks. It fails
// with NotFound if the file is missing.
func OpenVariableRead(dir, name string, vdcType VDCType, geom BrickGeometry, level, lod int) (*Variable, error) {
	if level < 0 || lod < 0 {
		return nil, vdcerr.Wrap(vdcerr.InvalidParam, "blockio: level and lod must be non-negative")
	}
	v := &Variable{dir: dir, name: name, vdcType: vdcType, geom: geom, level: level, lod: lod}
	f, err := OpenRead(v.path(level, lod))
	if err != nil {
		return nil, vdcerr.Wrap(vdcerr.NotFound, "blockio: variable %s has no file for level %d lod %d", name, level, lod)
	}
	v.file = f
	return v, nil
}

// OpenVariableWrite truncates/creates the file for (level, lod), sized for
// geom.NumBricks() bricks.
func OpenVariableWrite(dir, name string, vdcType VDCType, geom BrickGeometry, level, lod int) (*Variable, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, vdcerr.Wrap(vdcerr.IOError, "blockio: create variable dir %s", dir)
	}
	v := &Variable{dir: dir, name: name, vdcType: vdcType, geom: geom, level: level, lod: lod, write: true}
	f, err := Create(v.path(level, lod), geom.NumBricks())
	if err != nil {
		return nil, err
	}
	v.file = f
	return v, nil
}

func (v *Variable) path(level, lod int) string {
	return filepath.Join(v.dir, FileName(v.vdcType, v.name, level, lod))
}

// File returns the variable's open brick file.
func (v *Variable) File() *File { return v.file }

// Geometry returns the brick-grid geometry this variable was opened with.
func (v *Variable) Geometry() BrickGeometry { return v.geom }

// Level and LOD report the (level, lod) this variable was opened with.
func (v *Variable) Level() int { return v.level }
func (v *Variable) LOD() int   { return v.lod }

// CloseVariable flushes and closes the underlying file.
func (v *Variable) CloseVariable() error {
	if v.file == nil {
		return nil
	}
	err := v.file.Close()
	v.file = nil
	return err
}
