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

package codec

import (
	"bytes"
	"math"
	"testing"

	"github.com/spatialmodel/vdc/sigmap"
	"github.com/spatialmodel/vdc/vdcerr"
	"github.com/spatialmodel/vdc/wavelet"
)

func testBrick(t *testing.T, side, levels int, cratios []int, name string) *Brick {
	t.Helper()
	k, err := wavelet.KernelForName(name)
	if err != nil {
		t.Fatal(err)
	}
	return &Brick{Side: side, Levels: levels, Dims: 3, Kernel: k, CRatios: cratios}
}

func ramp(side int) []float64 {
	out := make([]float64, side*side*side)
	for z := 0; z < side; z++ {
		for y := 0; y < side; y++ {
			for x := 0; x < side; x++ {
				out[(z*side+y)*side+x] = float64(x) + 2*float64(y) + 3*float64(z)
			}
		}
	}
	return out
}

func TestEncodeDecodeConstant(t *testing.T) {
	b := testBrick(t, 32, 5, []int{1}, "bior3.3")
	raw := make([]float64, 32*32*32)
	for i := range raw {
		raw[i] = 7.5
	}
	enc, err := b.Encode(raw)
	if err != nil {
		t.Fatal(err)
	}
	got, err := b.Decode(enc, b.Levels, 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != 7.5 {
			t.Fatalf("index %d: got %g want 7.5", i, v)
		}
	}
}

func TestEncodeDecodeRampFullFidelity(t *testing.T) {
	b := testBrick(t, 16, 4, []int{1, 10, 100}, "bior3.3")
	raw := ramp(16)
	enc, err := b.Encode(raw)
	if err != nil {
		t.Fatal(err)
	}
	// The last LOD retains every coefficient.
	got, err := b.Decode(enc, b.Levels, len(b.CRatios)-1)
	if err != nil {
		t.Fatal(err)
	}
	for i := range raw {
		if math.Abs(got[i]-raw[i]) > 1e-3 {
			t.Fatalf("index %d: got %g want %g", i, got[i], raw[i])
		}
	}
}

func TestLODMonotonicity(t *testing.T) {
	b := testBrick(t, 16, 4, []int{1, 10, 100}, "bior3.3")
	raw := ramp(16)
	enc, err := b.Encode(raw)
	if err != nil {
		t.Fatal(err)
	}
	prev := math.Inf(1)
	for lod := 0; lod < len(b.CRatios); lod++ {
		got, err := b.Decode(enc, b.Levels, lod)
		if err != nil {
			t.Fatal(err)
		}
		var rms float64
		for i := range raw {
			d := got[i] - raw[i]
			rms += d * d
		}
		rms = math.Sqrt(rms / float64(len(raw)))
		if rms > prev+1e-12 {
			t.Errorf("LOD %d: RMS %g worse than LOD %d's %g", lod, rms, lod-1, prev)
		}
		prev = rms
	}
}

func TestDecodeAtCoarseLevel(t *testing.T) {
	b := testBrick(t, 16, 2, []int{1}, "haar")
	raw := make([]float64, 16*16*16)
	for i := range raw {
		raw[i] = 5
	}
	enc, err := b.Encode(raw)
	if err != nil {
		t.Fatal(err)
	}
	for level := 0; level <= b.Levels; level++ {
		got, err := b.Decode(enc, level, 0)
		if err != nil {
			t.Fatal(err)
		}
		side := b.SideAt(level)
		if len(got) != side*side*side {
			t.Fatalf("level %d: got %d voxels, want %d", level, len(got), side*side*side)
		}
		for i, v := range got {
			if math.Abs(v-5) > 1e-9 {
				t.Fatalf("level %d index %d: got %g want 5", level, i, v)
			}
		}
	}
}

func TestDCCoefficientAlwaysRetained(t *testing.T) {
	// A zero-mean checkerboard: the DC coefficient is ~0 while the
	// high-pass coefficients are large, so magnitude ranking alone would
	// drop the DC slot from the lossiest LOD.
	b := testBrick(t, 8, 3, []int{1, 512}, "haar")
	raw := make([]float64, 512)
	for i := range raw {
		if i%2 == 0 {
			raw[i] = 100
		} else {
			raw[i] = -100
		}
	}
	enc, err := b.Encode(raw)
	if err != nil {
		t.Fatal(err)
	}

	// LOD 0 retains exactly the floor: one coefficient, and it must be
	// the DC term.
	sm, err := sigmap.Deserialize(bytes.NewReader(enc.LODs[0].Sigmap), 512)
	if err != nil {
		t.Fatal(err)
	}
	if sm.Len() != 1 || !sm.Test(0) {
		t.Fatalf("LOD 0 sigmap = %v, want exactly the DC index", sm.Indices())
	}

	got, err := b.Decode(enc, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || math.Abs(got[0]) > 1e-9 {
		t.Errorf("level-0 decode = %v, want the ~0 DC average", got)
	}

	// The last LOD still round-trips the field.
	full, err := b.Decode(enc, b.Levels, 1)
	if err != nil {
		t.Fatal(err)
	}
	for i := range raw {
		if math.Abs(full[i]-raw[i]) > 1e-9 {
			t.Fatalf("index %d: got %g want %g", i, full[i], raw[i])
		}
	}
}

func TestSigmapCoverage(t *testing.T) {
	b := testBrick(t, 8, 3, []int{1, 8, 64}, "bior3.3")
	enc, err := b.Encode(ramp(8))
	if err != nil {
		t.Fatal(err)
	}
	n := 8 * 8 * 8
	seen := sigmap.New(n)
	total := 0
	for lod, l := range enc.LODs {
		sm, err := sigmap.Deserialize(bytes.NewReader(l.Sigmap), n)
		if err != nil {
			t.Fatal(err)
		}
		for _, idx := range sm.Indices() {
			if !seen.Append(idx) {
				t.Fatalf("coefficient %d appears in two LODs (second at LOD %d)", idx, lod)
			}
			total++
		}
		if len(l.Coeffs) != 4*sm.Len() {
			t.Errorf("LOD %d: %d coefficient bytes for %d indices", lod, len(l.Coeffs), sm.Len())
		}
	}
	counts := b.retentionCounts()
	if total != counts[len(counts)-1] {
		t.Errorf("union cardinality %d, want %d", total, counts[len(counts)-1])
	}
}

func TestRetentionCountsGrowWithLOD(t *testing.T) {
	b := testBrick(t, 8, 3, []int{1, 8, 64}, "bior3.3")
	counts := b.retentionCounts()
	want := []int{8, 64, 512}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("LOD %d: count %d, want %d", i, counts[i], want[i])
		}
	}
}

func TestEncodeRejectsBadCRatios(t *testing.T) {
	cases := [][]int{
		nil,
		{2, 10},      // must start at 1
		{1, 10, 10},  // not strictly increasing
		{1, 1 << 20}, // beyond the achievable maximum
	}
	for _, cr := range cases {
		b := testBrick(t, 8, 3, cr, "haar")
		if _, err := b.Encode(make([]float64, 512)); !vdcerr.Is(err, vdcerr.InvalidParam) {
			t.Errorf("CRatios %v: got %v, want InvalidParam", cr, err)
		}
	}
}

func TestDecodeBeyondStoredFails(t *testing.T) {
	b := testBrick(t, 8, 2, []int{1, 8}, "haar")
	enc, err := b.Encode(make([]float64, 512))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Decode(enc, b.Levels+1, 0); !vdcerr.Is(err, vdcerr.NotAvailable) {
		t.Errorf("level beyond stored: got %v, want NotAvailable", err)
	}
	if _, err := b.Decode(enc, b.Levels, 2); !vdcerr.Is(err, vdcerr.NotAvailable) {
		t.Errorf("LOD beyond stored: got %v, want NotAvailable", err)
	}
}

func TestMarshalRoundTripAndTruncation(t *testing.T) {
	b := testBrick(t, 8, 3, []int{1, 8}, "bior3.3")
	enc, err := b.Encode(ramp(8))
	if err != nil {
		t.Fatal(err)
	}
	blob, err := enc.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	back, err := UnmarshalEncoded(blob)
	if err != nil {
		t.Fatal(err)
	}
	if len(back.LODs) != len(enc.LODs) {
		t.Fatalf("got %d LODs, want %d", len(back.LODs), len(enc.LODs))
	}
	for i := range enc.LODs {
		if !bytes.Equal(back.LODs[i].Coeffs, enc.LODs[i].Coeffs) ||
			!bytes.Equal(back.LODs[i].Sigmap, enc.LODs[i].Sigmap) {
			t.Errorf("LOD %d differs after round trip", i)
		}
	}

	if _, err := UnmarshalEncoded(blob[:len(blob)-5]); !vdcerr.Is(err, vdcerr.Corrupt) {
		t.Errorf("truncated blob: got %v, want Corrupt", err)
	}

	tr := enc.Truncate(0)
	if len(tr.LODs) != 1 {
		t.Errorf("Truncate(0) kept %d LODs", len(tr.LODs))
	}
}

func TestMaxCompressionRatioQueryable(t *testing.T) {
	b := testBrick(t, 8, 3, []int{1}, "haar")
	if got := b.MaxCompressionRatio(); got != 512 {
		t.Errorf("MaxCompressionRatio = %d, want 512", got)
	}
}
