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
	"encoding/binary"
	"io"
	"os"

	cdf "github.com/ctessum/cdf"
	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/vdc/vdcerr"
)

var log = logrus.WithField("component", "blockio")

// indexEntry is one brick's (offset, length) in the data region of a file.
type indexEntry struct {
	Offset uint64
	Length uint32
}

const indexEntrySize = 12 // 8 + 4 bytes

// File is one (variable, timestep, level[, LOD]) brick file: a header of
// NumBricks index entries followed by a data region of length-framed,
// row-major-ordered brick payloads. File holds its storage behind
// cdf.ReaderWriterAt, the same contract github.com/ctessum/cdf uses, so
// raw brick bitstreams here and the self-describing coordinate-array
// files elsewhere share one underlying I/O interface.
type File struct {
	rw        cdf.ReaderWriterAt
	closer    io.Closer
	numBricks int
	index     []indexEntry
	nextBrick int  // next brick index expected by WriteBrick, enforcing write order
	dataBase  int64
	writable  bool
}

func headerSize(numBricks int) int64 {
	return 4 + int64(numBricks)*indexEntrySize
}

// Create truncates/creates a new brick file for numBricks bricks.
func Create(path string, numBricks int) (*File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, vdcerr.Wrap(vdcerr.IOError, "blockio: create %s", path)
	}
	bf := &File{
		rw:        f,
		closer:    f,
		numBricks: numBricks,
		index:     make([]indexEntry, numBricks),
		dataBase:  headerSize(numBricks),
		writable:  true,
	}
	if err := bf.flushHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return bf, nil
}

// OpenRead opens an existing brick file for reading, validating and
// loading its index table.
func OpenRead(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, vdcerr.Wrap(vdcerr.NotFound, "blockio: open %s", path)
	}
	bf := &File{rw: f, closer: f}
	if err := bf.loadHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return bf, nil
}

func (f *File) loadHeader() error {
	var countBuf [4]byte
	if _, err := f.rw.ReadAt(countBuf[:], 0); err != nil {
		return vdcerr.Wrap(vdcerr.Corrupt, "blockio: truncated header")
	}
	f.numBricks = int(binary.BigEndian.Uint32(countBuf[:]))
	f.index = make([]indexEntry, f.numBricks)
	buf := make([]byte, f.numBricks*indexEntrySize)
	if f.numBricks > 0 {
		if _, err := f.rw.ReadAt(buf, 4); err != nil {
			return vdcerr.Wrap(vdcerr.Corrupt, "blockio: truncated index table")
		}
	}
	for i := 0; i < f.numBricks; i++ {
		off := i * indexEntrySize
		f.index[i] = indexEntry{
			Offset: binary.BigEndian.Uint64(buf[off : off+8]),
			Length: binary.BigEndian.Uint32(buf[off+8 : off+12]),
		}
	}
	f.dataBase = headerSize(f.numBricks)
	return nil
}

func (f *File) flushHeader() error {
	buf := make([]byte, headerSize(f.numBricks))
	binary.BigEndian.PutUint32(buf[0:4], uint32(f.numBricks))
	for i, e := range f.index {
		off := 4 + i*indexEntrySize
		binary.BigEndian.PutUint64(buf[off:off+8], e.Offset)
		binary.BigEndian.PutUint32(buf[off+8:off+12], e.Length)
	}
	if _, err := f.rw.WriteAt(buf, 0); err != nil {
		return vdcerr.Wrap(vdcerr.IOError, "blockio: write header")
	}
	return nil
}

// NumBricks returns the number of bricks this file addresses.
func (f *File) NumBricks() int { return f.numBricks }

// WriteBrick appends a brick's payload and records its index entry.
// Bricks must be written in strict row-major (Z, then Y, then X) order so
// the file on disk reflects that order on close.
func (f *File) WriteBrick(brickIdx int, payload []byte) error {
	if !f.writable {
		return vdcerr.Wrap(vdcerr.Busy, "blockio: file not open for write")
	}
	if brickIdx != f.nextBrick {
		return vdcerr.Wrap(vdcerr.InvalidParam, "blockio: bricks must be written in order, got %d want %d", brickIdx, f.nextBrick)
	}
	offset := f.dataBase
	for _, e := range f.index[:brickIdx] {
		offset += int64(e.Length)
	}
	if _, err := f.rw.WriteAt(payload, offset); err != nil {
		return vdcerr.Wrap(vdcerr.IOError, "blockio: write brick %d", brickIdx)
	}
	f.index[brickIdx] = indexEntry{Offset: uint64(offset), Length: uint32(len(payload))}
	f.nextBrick++
	return nil
}

// WriteBricks writes n consecutive bricks starting at startIdx.
func (f *File) WriteBricks(startIdx int, payloads [][]byte) error {
	for i, p := range payloads {
		if err := f.WriteBrick(startIdx+i, p); err != nil {
			return err
		}
	}
	return nil
}

// ReadBrick seeks directly to brickIdx via the index table (O(1)) and
// returns its payload.
func (f *File) ReadBrick(brickIdx int) ([]byte, error) {
	if brickIdx < 0 || brickIdx >= f.numBricks {
		return nil, vdcerr.Wrap(vdcerr.InvalidParam, "blockio: brick index %d out of range [0,%d)", brickIdx, f.numBricks)
	}
	e := f.index[brickIdx]
	buf := make([]byte, e.Length)
	if e.Length > 0 {
		if _, err := f.rw.ReadAt(buf, int64(e.Offset)); err != nil {
			return nil, vdcerr.Wrap(vdcerr.Corrupt, "blockio: short read on brick %d", brickIdx)
		}
	}
	return buf, nil
}

// ReadBricks reads n consecutive bricks' payloads starting at startIdx.
func (f *File) ReadBricks(startIdx, n int) ([][]byte, error) {
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		p, err := f.ReadBrick(startIdx + i)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// Close flushes the index table (write mode only) and closes the
// underlying file.
func (f *File) Close() error {
	if f.writable {
		if err := f.flushHeader(); err != nil {
			f.closer.Close()
			return err
		}
	}
	log.WithField("bricks", f.numBricks).Debug("closed brick file")
	if err := f.closer.Close(); err != nil {
		return vdcerr.Wrap(vdcerr.IOError, "blockio: close")
	}
	return nil
}
