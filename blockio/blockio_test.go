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
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spatialmodel/vdc/vdcerr"
)

func TestFileNames(t *testing.T) {
	if got := FileName(VDC2, "TEMP", 3, 1); got != "TEMP.3.1" {
		t.Errorf("VDC2 name = %q", got)
	}
	if got := FileName(VDC1, "TEMP", 3, 0); got != "TEMP.wb3" {
		t.Errorf("VDC1 name = %q", got)
	}
}

func TestBrickIndexRowMajor(t *testing.T) {
	g := NewGeometry(64, 64, 64, 32, 32, 32)
	if g.NumBricks() != 8 {
		t.Fatalf("NumBricks = %d, want 8", g.NumBricks())
	}
	// (z, y, x) row-major: x fastest.
	want := 0
	for bz := 0; bz < 2; bz++ {
		for by := 0; by < 2; by++ {
			for bx := 0; bx < 2; bx++ {
				if got := g.BrickIndex(bx, by, bz); got != want {
					t.Errorf("BrickIndex(%d,%d,%d) = %d, want %d", bx, by, bz, got, want)
				}
				want++
			}
		}
	}
}

func TestGeometryCeilDivision(t *testing.T) {
	g := NewGeometry(100, 64, 33, 32, 32, 32)
	if g.NBx != 4 || g.NBy != 2 || g.NBz != 2 {
		t.Errorf("brick grid = (%d,%d,%d), want (4,2,2)", g.NBx, g.NBy, g.NBz)
	}
	g2 := NewGeometry(16, 16, 1, 8, 8, 8)
	if g2.Dims != 2 || g2.NumBricks() != 4 {
		t.Errorf("2-D geometry: dims=%d bricks=%d", g2.Dims, g2.NumBricks())
	}
}

func TestWriteReadBricks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.0.0")
	const n = 5
	f, err := Create(path, n)
	if err != nil {
		t.Fatal(err)
	}
	payloads := make([][]byte, n)
	for i := range payloads {
		payloads[i] = bytes.Repeat([]byte{byte(i + 1)}, 10+i*3)
	}
	if err := f.WriteBricks(0, payloads); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := OpenRead(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	if r.NumBricks() != n {
		t.Fatalf("NumBricks = %d, want %d", r.NumBricks(), n)
	}
	got, err := r.ReadBricks(0, n)
	if err != nil {
		t.Fatal(err)
	}
	for i := range payloads {
		if !bytes.Equal(got[i], payloads[i]) {
			t.Errorf("brick %d differs", i)
		}
	}
}

func TestWriteBrickEnforcesOrder(t *testing.T) {
	f, err := Create(filepath.Join(t.TempDir(), "v.0.0"), 3)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := f.WriteBrick(1, []byte{1}); !vdcerr.Is(err, vdcerr.InvalidParam) {
		t.Errorf("out-of-order write: got %v, want InvalidParam", err)
	}
}

func TestOpenReadMissingFile(t *testing.T) {
	if _, err := OpenRead(filepath.Join(t.TempDir(), "absent.0.0")); !vdcerr.Is(err, vdcerr.NotFound) {
		t.Errorf("got %v, want NotFound", err)
	}
}

func TestOpenVariableReadWrite(t *testing.T) {
	dir := t.TempDir()
	geom := NewGeometry(16, 16, 16, 8, 8, 8)
	v, err := OpenVariableWrite(dir, "TEMP", VDC2, geom, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < geom.NumBricks(); i++ {
		if err := v.File().WriteBrick(i, []byte(fmt.Sprintf("brick%02d", i))); err != nil {
			t.Fatal(err)
		}
	}
	if err := v.CloseVariable(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "TEMP.3.0")); err != nil {
		t.Fatalf("expected brick file on disk: %v", err)
	}

	r, err := OpenVariableRead(dir, "TEMP", VDC2, geom, 3, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer r.CloseVariable()
	got, err := r.File().ReadBrick(7)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "brick07" {
		t.Errorf("brick 7 = %q", got)
	}

	if _, err := OpenVariableRead(dir, "TEMP", VDC2, geom, 3, 1); !vdcerr.Is(err, vdcerr.NotFound) {
		t.Errorf("absent LOD: got %v, want NotFound", err)
	}
}
