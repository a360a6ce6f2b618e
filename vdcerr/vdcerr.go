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

// Package vdcerr defines the error taxonomy shared by every VDC component:
// codec, block I/O, region engine, memory manager, data manager and
// metadata. Every public entry point returns one of these sentinels
// (possibly wrapped with call-site context via github.com/pkg/errors) so
// callers can classify failures with errors.Is/errors.As instead of
// string-matching a diagnostic message.
package vdcerr

import "github.com/pkg/errors"

// Sentinel errors corresponding to the taxonomy in the error handling design.
var (
	// InvalidParam indicates caller arguments are out of declared range:
	// a bad level, a bad LOD, a malformed bounding box, or compression
	// ratios that are not strictly increasing.
	InvalidParam = errors.New("vdc: invalid parameter")

	// NotFound indicates a variable or timestep is not present in the
	// metadata, or a file expected on disk is missing.
	NotFound = errors.New("vdc: not found")

	// NotAvailable indicates the requested (level, LOD) exceeds what was
	// written for this variable/timestep. It also marks the end of a
	// slice stream and a collection that carries no map projection.
	NotAvailable = errors.New("vdc: level/LOD not available")

	// Corrupt indicates a short read, a length mismatch between a
	// coefficient stream and its significance map, or non-monotonic
	// coordinates in a stretched or layered grid.
	Corrupt = errors.New("vdc: corrupt data")

	// OutOfMemory indicates the block memory manager's pools are
	// exhausted and growth failed.
	OutOfMemory = errors.New("vdc: out of memory")

	// IOError indicates an underlying file operation failed.
	IOError = errors.New("vdc: I/O error")

	// Busy indicates the variable is already open in the session with
	// an incompatible mode (e.g. read while open for write). It is also
	// returned for a write to a closed writer, a collective rank that
	// contributes twice, and a collective flush before every rank has
	// contributed.
	Busy = errors.New("vdc: variable busy")
)

// Wrap attaches call-site context to a sentinel error while preserving its
// identity for errors.Is. Wrap returns nil if err is nil.
func Wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}

// Is reports whether err (or any error it wraps) is sentinel.
func Is(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}
