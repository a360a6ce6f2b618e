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

// Package hash derives stable string keys for the data manager's region
// cache and request deduplication.
package hash

import (
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"hash/fnv"

	"github.com/davecgh/go-spew/spew"
)

// Key returns the cache key for object. Region keys render themselves
// (fmt.Stringer), which keeps the key readable in eviction logs and on
// disk; anything else is digested. Two objects produce the same key iff
// their rendered or digested forms agree.
func Key(object interface{}) string {
	if s, ok := object.(fmt.Stringer); ok {
		return s.String()
	}
	return Digest(object)
}

// Digest folds object into a hex FNV-128a sum via gob. Values gob
// refuses (functions, channels, unexported-only structs) fall back to a
// deterministic spew dump appended to whatever gob managed to emit, so
// the digest stays stable for equal inputs.
func Digest(object interface{}) string {
	h := fnv.New128a()
	if err := gob.NewEncoder(h).Encode(object); err != nil {
		printer := spew.ConfigState{
			Indent:                  " ",
			SortKeys:                true,
			DisableMethods:          true,
			SpewKeys:                true,
			DisablePointerAddresses: true,
			DisableCapacities:       true,
		}
		printer.Fprintf(h, "%#v", object)
	}
	return hex.EncodeToString(h.Sum(nil))
}
