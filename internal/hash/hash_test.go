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

package hash

import (
	"math"
	"testing"
)

type stringerKey string

func (s stringerKey) String() string { return "key:" + string(s) }

func TestKeyUsesStringer(t *testing.T) {
	if got := Key(stringerKey("T_t0")); got != "key:T_t0" {
		t.Errorf("Key = %q, want the Stringer rendering", got)
	}
}

func TestDigestStable(t *testing.T) {
	type payload struct {
		Var   string
		Level int
	}
	a := Digest(payload{"T", 2})
	b := Digest(payload{"T", 2})
	if a != b {
		t.Errorf("equal payloads digest differently: %q vs %q", a, b)
	}
	if c := Digest(payload{"T", 3}); c == a {
		t.Error("different payloads share a digest")
	}
}

func TestDigestFallsBackWhenGobRefuses(t *testing.T) {
	// gob cannot encode a struct with no exported fields; the spew
	// fallback must still yield a stable key.
	type payload struct{ missing float64 }
	a := Digest(payload{math.NaN()})
	b := Digest(payload{math.NaN()})
	if a == "" || a != b {
		t.Errorf("fallback digests unstable: %q vs %q", a, b)
	}
}
