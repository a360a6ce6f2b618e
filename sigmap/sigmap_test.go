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

package sigmap

import (
	"bytes"
	"testing"

	"github.com/spatialmodel/vdc/vdcerr"
)

func TestAppendRejectsDuplicates(t *testing.T) {
	m := New(64)
	if !m.Append(5) {
		t.Fatal("first append of 5 rejected")
	}
	if m.Append(5) {
		t.Error("duplicate append of 5 accepted")
	}
	if m.Append(-1) || m.Append(64) {
		t.Error("out-of-range index accepted")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestTestAndIteration(t *testing.T) {
	m := New(1 << 15) // a 32^3 brick's coefficient range
	order := []int{1000, 3, 32767, 0, 512}
	for _, idx := range order {
		m.Append(idx)
	}
	for _, idx := range order {
		if !m.Test(idx) {
			t.Errorf("Test(%d) = false", idx)
		}
	}
	if m.Test(7) {
		t.Error("Test(7) = true for absent index")
	}
	got := m.Indices()
	for i, idx := range order {
		if got[i] != idx {
			t.Errorf("insertion order broken at %d: got %d want %d", i, got[i], idx)
		}
	}
}

func TestMergeKeepsOrderAndUniqueness(t *testing.T) {
	a := New(32)
	for _, i := range []int{4, 8} {
		a.Append(i)
	}
	b := New(32)
	for _, i := range []int{8, 15, 4, 16} {
		b.Append(i)
	}
	a.Merge(b)
	want := []int{4, 8, 15, 16}
	got := a.Indices()
	if len(got) != len(want) {
		t.Fatalf("merged length %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %d want %d", i, got[i], want[i])
		}
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	m := New(4096)
	order := []int{100, 1, 4095, 0, 2048, 77}
	for _, idx := range order {
		m.Append(idx)
	}
	var buf bytes.Buffer
	if err := m.Serialize(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := Deserialize(&buf, 4096)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != len(order) {
		t.Fatalf("Len = %d, want %d", got.Len(), len(order))
	}
	for i, idx := range got.Indices() {
		if idx != order[i] {
			t.Errorf("index %d: got %d want %d", i, idx, order[i])
		}
	}
}

func TestSerializeEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := New(8).Serialize(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := Deserialize(&buf, 8)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 0 {
		t.Errorf("Len = %d, want 0", got.Len())
	}
}

func TestDeserializeTruncated(t *testing.T) {
	m := New(64)
	m.Append(1)
	m.Append(2)
	var buf bytes.Buffer
	if err := m.Serialize(&buf); err != nil {
		t.Fatal(err)
	}
	short := buf.Bytes()[:buf.Len()-3]
	if _, err := Deserialize(bytes.NewReader(short), 64); !vdcerr.Is(err, vdcerr.Corrupt) {
		t.Errorf("truncated stream: got %v, want Corrupt", err)
	}
}
