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

package memmgr

import (
	"testing"

	"github.com/spatialmodel/vdc/vdcerr"
)

func TestAllocAndFree(t *testing.T) {
	p, err := RequestMemSize(8, 16, false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.Alloc(4, 4, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Array.Elements) != 32 {
		t.Fatalf("allocation holds %d elements, want 32", len(b.Array.Elements))
	}
	for i, v := range b.Array.Elements {
		if v != 0 {
			t.Fatalf("element %d not zeroed: %g", i, v)
		}
	}
	if err := p.FreeMem(b); err != nil {
		t.Fatal(err)
	}
	if err := p.FreeMem(b); !vdcerr.Is(err, vdcerr.InvalidParam) {
		t.Errorf("double free: got %v, want InvalidParam", err)
	}
}

func TestAllocExhaustion(t *testing.T) {
	p, err := RequestMemSize(8, 4, false)
	if err != nil {
		t.Fatal(err)
	}
	a, err := p.Alloc(3)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Alloc(2); !vdcerr.Is(err, vdcerr.OutOfMemory) {
		t.Fatalf("over-budget alloc: got %v, want OutOfMemory", err)
	}
	if err := p.FreeMem(a); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Alloc(2); err != nil {
		t.Errorf("alloc after free failed: %v", err)
	}
}

func TestFirstFitReusesGaps(t *testing.T) {
	p, _ := RequestMemSize(1, 8, false)
	a, _ := p.Alloc(2)
	b, _ := p.Alloc(2)
	c, _ := p.Alloc(2)
	if a == nil || b == nil || c == nil {
		t.Fatal("setup allocations failed")
	}
	if err := p.FreeMem(b); err != nil {
		t.Fatal(err)
	}
	d, err := p.Alloc(2)
	if err != nil {
		t.Fatal(err)
	}
	if &d.Array.Elements[0] != &b.Array.Elements[0] {
		t.Error("first-fit did not reuse the freed gap")
	}
}

func TestEmptyRegionsReleased(t *testing.T) {
	p, _ := RequestMemSize(4, 8, false)
	a, err := p.Alloc(2)
	if err != nil {
		t.Fatal(err)
	}
	if p.NumRegions() != 1 {
		t.Fatalf("NumRegions = %d, want 1", p.NumRegions())
	}
	if err := p.FreeMem(a); err != nil {
		t.Fatal(err)
	}
	if p.NumRegions() != 0 {
		t.Errorf("NumRegions = %d after freeing everything, want 0", p.NumRegions())
	}
}

func TestRequestMemSizeValidation(t *testing.T) {
	if _, err := RequestMemSize(0, 8, false); !vdcerr.Is(err, vdcerr.InvalidParam) {
		t.Errorf("zero block size: got %v, want InvalidParam", err)
	}
	if _, err := RequestMemSize(8, -1, true); !vdcerr.Is(err, vdcerr.InvalidParam) {
		t.Errorf("negative budget: got %v, want InvalidParam", err)
	}
}
