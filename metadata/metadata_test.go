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
	"os"
	"path/filepath"
	"testing"

	"github.com/spatialmodel/vdc/vdcerr"
)

func testMetadata(t *testing.T) *Metadata {
	t.Helper()
	md, err := New([3]int{128, 64, 32}, [3]int{32, 32, 32}, 5,
		[]int{1, 10, 100}, "bior3.3", 2)
	if err != nil {
		t.Fatal(err)
	}
	return md
}

func TestSaveInitializeRoundTrip(t *testing.T) {
	md := testMetadata(t)
	md.SetGridType(GridStretched)
	md.SetBoundaryMode(PadMirror)
	md.SetMapProjection("+proj=lcc +lat_1=33 +lat_2=45 +lat_0=40 +lon_0=-97")
	md.SetPeriodic(true, false, false)
	md.SetNumTimesteps(2)
	md.SetUserTime(0, 0)
	md.SetUserTime(1, 3600)
	md.SetTimestamp(1, "2024-01-01_01:00:00")
	md.SetExtents(0, [6]float64{0, 0, 0, 1000, 500, 250})
	md.RootAttrs().SetText("source", "wrfout_d01")

	mv := 1e37
	if err := md.AddVariable(Variable{
		Name:         "T",
		Orientation:  Var3D,
		MissingValue: &mv,
		Staggered:    [3]bool{false, false, true},
	}); err != nil {
		t.Fatal(err)
	}
	if err := md.AddVariable(Variable{Name: "HGT", Orientation: VarXY}); err != nil {
		t.Fatal(err)
	}
	if err := md.EndDefine(); err != nil {
		t.Fatal(err)
	}
	if err := md.SetStats("T", 0, -5, 40); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "master.vdf")
	if err := md.Save(path); err != nil {
		t.Fatal(err)
	}

	got, err := Initialize(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Dims() != [3]int{128, 64, 32} || got.BrickSize() != [3]int{32, 32, 32} {
		t.Errorf("dims %v brick %v", got.Dims(), got.BrickSize())
	}
	if got.NumLevels() != 5 || got.VDCType() != 2 || got.Wavelet() != "bior3.3" {
		t.Errorf("levels=%d type=%d wavelet=%q", got.NumLevels(), got.VDCType(), got.Wavelet())
	}
	if cr := got.CRatios(); len(cr) != 3 || cr[2] != 100 {
		t.Errorf("CRatios = %v", cr)
	}
	if got.Grid() != GridStretched || got.Boundary() != PadMirror {
		t.Errorf("grid=%q boundary=%q", got.Grid(), got.Boundary())
	}
	if got.Periodic() != [3]bool{true, false, false} {
		t.Errorf("periodic = %v", got.Periodic())
	}
	if got.NumTimesteps() != 2 {
		t.Fatalf("timesteps = %d", got.NumTimesteps())
	}
	ts1, _ := got.Timestep(1)
	if ts1.UserTime != 3600 || ts1.Stamp != "2024-01-01_01:00:00" {
		t.Errorf("timestep 1 = %+v", ts1)
	}
	v, err := got.Variable("T")
	if err != nil {
		t.Fatal(err)
	}
	if m, ok := v.MissingAt(0); !ok || m != 1e37 {
		t.Errorf("missing = (%g, %v)", m, ok)
	}
	if !v.Staggered[2] || v.Staggered[0] {
		t.Errorf("staggered = %v", v.Staggered)
	}
	if len(v.Stats) != 1 || v.Stats[0].Min != -5 || v.Stats[0].Max != 40 {
		t.Errorf("stats = %+v", v.Stats)
	}
	if s, ok := got.RootAttrs().GetText("source"); !ok || s != "wrfout_d01" {
		t.Errorf("root attr source = (%q, %v)", s, ok)
	}
	if names := got.VariableNames(VarXY); len(names) != 1 || names[0] != "HGT" {
		t.Errorf("XY variables = %v", names)
	}
}

func TestEndDefineFreezesSchema(t *testing.T) {
	md := testMetadata(t)
	md.SetNumTimesteps(1)
	if err := md.EndDefine(); err != nil {
		t.Fatal(err)
	}
	if err := md.AddVariable(Variable{Name: "X"}); !vdcerr.Is(err, vdcerr.InvalidParam) {
		t.Errorf("AddVariable after EndDefine: got %v, want InvalidParam", err)
	}
	if err := md.SetGridType(GridLayered); !vdcerr.Is(err, vdcerr.InvalidParam) {
		t.Errorf("SetGridType after EndDefine: got %v, want InvalidParam", err)
	}
}

func TestEndDefineRejectsNonMonotonicTimes(t *testing.T) {
	md := testMetadata(t)
	md.SetNumTimesteps(2)
	md.SetUserTime(0, 100)
	md.SetUserTime(1, 50)
	if err := md.EndDefine(); !vdcerr.Is(err, vdcerr.Corrupt) {
		t.Errorf("got %v, want Corrupt", err)
	}
}

func TestSaveRequiresEndDefine(t *testing.T) {
	md := testMetadata(t)
	if err := md.Save(filepath.Join(t.TempDir(), "m.vdf")); !vdcerr.Is(err, vdcerr.InvalidParam) {
		t.Errorf("got %v, want InvalidParam", err)
	}
}

func TestSaveRollsBackup(t *testing.T) {
	md := testMetadata(t)
	md.EndDefine()
	dir := t.TempDir()
	path := filepath.Join(dir, "master.vdf")
	if err := md.Save(path); err != nil {
		t.Fatal(err)
	}
	if err := md.SetStats("nope", 0, 0, 0); !vdcerr.Is(err, vdcerr.NotFound) {
		t.Errorf("stats for unknown variable: got %v, want NotFound", err)
	}
	if err := md.Save(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".bak"); err != nil {
		t.Errorf("no .bak rolled on in-place save: %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New([3]int{0, 1, 1}, [3]int{8, 8, 8}, 3, []int{1}, "haar", 2); err == nil {
		t.Error("zero dimension accepted")
	}
	if _, err := New([3]int{8, 8, 8}, [3]int{12, 12, 12}, 3, []int{1}, "haar", 1); err == nil {
		t.Error("VDC-1 non-power-of-two brick accepted")
	}
	if _, err := New([3]int{8, 8, 8}, [3]int{8, 8, 8}, 3, []int{2, 4}, "haar", 2); err == nil {
		t.Error("CRatios not starting at 1 accepted")
	}
	if _, err := New([3]int{8, 8, 8}, [3]int{8, 8, 8}, 3, []int{1}, "haar", 3); err == nil {
		t.Error("VDC type 3 accepted")
	}
}

func TestInitializeMissingFile(t *testing.T) {
	if _, err := Initialize(filepath.Join(t.TempDir(), "absent.vdf")); !vdcerr.Is(err, vdcerr.NotFound) {
		t.Errorf("got %v, want NotFound", err)
	}
}

func TestCoordSidecarRoundTrip(t *testing.T) {
	md := testMetadata(t)
	md.SetNumTimesteps(1)
	md.EndDefine()
	path := filepath.Join(t.TempDir(), "master.vdf")
	if err := md.Save(path); err != nil {
		t.Fatal(err)
	}

	z := []float64{0, 1, 3, 7}
	err := md.Coords().Write(map[string][]float64{
		CoordKey("z", 0): z,
	})
	if err != nil {
		t.Fatal(err)
	}
	got, err := md.Coords().Read(CoordKey("z", 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(z) {
		t.Fatalf("read %d coordinates, want %d", len(got), len(z))
	}
	for i := range z {
		if got[i] != z[i] {
			t.Errorf("coordinate %d: got %g want %g", i, got[i], z[i])
		}
	}
}
