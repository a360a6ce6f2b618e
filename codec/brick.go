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

// Package codec implements the full-brick wavelet compressor and
// decompressor: forward transform, coefficient ranking by descending
// magnitude, and the nested per-LOD bitstreams that make the output
// quality-scalable. Decoding accepts any (refinement level, LOD) pair
// at or below what was encoded.
package codec

import (
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/spatialmodel/vdc/sigmap"
	"github.com/spatialmodel/vdc/vdcerr"
	"github.com/spatialmodel/vdc/wavelet"
)

var log = logrus.WithField("component", "codec")

// Brick holds the per-brick codec configuration: brick side B, number of
// transform levels, wavelet kernel parameters, dimensionality (2 or 3) and
// the CRatios list defining LOD retention.
//
// Refinement levels count upward from coarse: level 0 is the single
// low-pass block left after all transform passes, level Levels is native
// resolution. SideAt reports the brick side at each level.
type Brick struct {
	Side     int
	Levels   int
	Dims     int
	NThreads int
	Kernel   *wavelet.Kernel1D
	CRatios  []int // strictly increasing, CRatios[0] == 1
}

// LOD holds one level-of-detail's encoded payload: the coefficient values
// (float32-framed) and their significance map, in the order the encoder
// selected them.
type LOD struct {
	Coeffs []byte
	Sigmap []byte
}

// Encoded is the full per-brick codec output: one LOD entry per CRatios
// entry.
type Encoded struct {
	LODs []LOD
}

// SideAt returns the brick side at refinement level r: the native side
// halved once per transform level still undone.
func (c *Brick) SideAt(r int) int {
	return c.Side >> uint(c.Levels-r)
}

// MaxLevels returns the largest number of transform levels a brick of the
// given side supports (the side must remain at least 1 after halving).
func MaxLevels(side int) int {
	n := 0
	for side > 1 {
		side >>= 1
		n++
	}
	return n
}

// MaxCompressionRatio returns the largest nominal ratio the brick can
// satisfy without retaining fewer coefficients than the DC floor. It is
// queryable before encode; asking Encode for more fails with InvalidParam.
func (c *Brick) MaxCompressionRatio() int {
	n := numCoeffs(c.Side, c.Dims)
	return n / retentionFloor(n)
}

func numCoeffs(side, dims int) int {
	if dims == 2 {
		return side * side
	}
	return side * side * side
}

// retentionFloor is the minimum number of coefficients ever retained for a
// brick: never fewer than the DC (lambda[0]) coefficient, which Encode's
// ranking pins to the front of the coefficient order.
func retentionFloor(n int) int {
	return 1
}

func (c *Brick) validate() error {
	if c.Side < 1 || c.Side&(c.Side-1) != 0 {
		return vdcerr.Wrap(vdcerr.InvalidParam, "codec: brick side %d must be a power of two", c.Side)
	}
	if c.Dims != 2 && c.Dims != 3 {
		return vdcerr.Wrap(vdcerr.InvalidParam, "codec: dims must be 2 or 3, got %d", c.Dims)
	}
	if c.Levels < 0 || c.Levels > MaxLevels(c.Side) {
		return vdcerr.Wrap(vdcerr.InvalidParam, "codec: %d transform levels exceed what a side-%d brick supports", c.Levels, c.Side)
	}
	if len(c.CRatios) == 0 {
		return vdcerr.Wrap(vdcerr.InvalidParam, "codec: CRatios must have at least one entry")
	}
	if c.CRatios[0] != 1 {
		return vdcerr.Wrap(vdcerr.InvalidParam, "codec: CRatios[0] must be 1, got %d", c.CRatios[0])
	}
	for i := 1; i < len(c.CRatios); i++ {
		if c.CRatios[i] <= c.CRatios[i-1] {
			return vdcerr.Wrap(vdcerr.InvalidParam, "codec: CRatios must be strictly increasing")
		}
	}
	if max := c.MaxCompressionRatio(); c.CRatios[len(c.CRatios)-1] > max {
		return vdcerr.Wrap(vdcerr.InvalidParam, "codec: ratio %d exceeds max achievable ratio %d", c.CRatios[len(c.CRatios)-1], max)
	}
	return nil
}

// retentionCounts returns the cumulative retention count per LOD. LOD 0
// is the lossiest, so it draws the largest ratio from the ascending
// CRatios list; the last LOD draws c[0] == 1 and retains everything.
// Counts are clamped below by the DC floor and above by N.
func (c *Brick) retentionCounts() []int {
	n := numCoeffs(c.Side, c.Dims)
	floor := retentionFloor(n)
	nLODs := len(c.CRatios)
	counts := make([]int, nLODs)
	for ell := 0; ell < nLODs; ell++ {
		ratio := c.CRatios[nLODs-1-ell]
		v := (n + ratio - 1) / ratio
		if v < floor {
			v = floor
		}
		if v > n {
			v = n
		}
		counts[ell] = v
	}
	return counts
}

type coeffRank struct {
	index int
	value float64
}

// Encode runs the forward transform pyramid, ranks all coefficients by
// descending magnitude (ties broken by lower linear index), and slices the
// ranking into nested per-LOD streams. Coefficients beyond the last LOD's
// retention count are dropped.
func (c *Brick) Encode(raw []float64) (*Encoded, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	n := numCoeffs(c.Side, c.Dims)
	if len(raw) != n {
		return nil, vdcerr.Wrap(vdcerr.InvalidParam, "codec: brick has %d voxels, want %d", len(raw), n)
	}

	flat, err := c.forwardPyramid(raw)
	if err != nil {
		return nil, err
	}

	ranked := make([]coeffRank, n)
	for i, v := range flat {
		ranked[i] = coeffRank{i, v}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		// The DC coefficient is pinned to rank 0 regardless of magnitude:
		// the retention floor guarantees it is present in every LOD, and
		// a level-0 decode returns exactly that slot.
		if ranked[i].index == 0 {
			return true
		}
		if ranked[j].index == 0 {
			return false
		}
		mi, mj := absf(ranked[i].value), absf(ranked[j].value)
		if mi != mj {
			return mi > mj
		}
		return ranked[i].index < ranked[j].index
	})

	counts := c.retentionCounts()
	enc := &Encoded{LODs: make([]LOD, len(counts))}
	prev := 0
	for ell, nEll := range counts {
		deltaN := nEll - prev
		if deltaN < 0 {
			deltaN = 0
		}
		chunk := ranked[prev : prev+deltaN]
		prev = nEll

		sm := sigmap.New(n)
		var coeffBuf bytes.Buffer
		for _, cr := range chunk {
			sm.Append(cr.index)
			if err := binary.Write(&coeffBuf, binary.BigEndian, float32(cr.value)); err != nil {
				return nil, vdcerr.Wrap(vdcerr.IOError, "codec: write coefficient")
			}
		}
		var smBuf bytes.Buffer
		if err := sm.Serialize(&smBuf); err != nil {
			return nil, err
		}
		enc.LODs[ell] = LOD{Coeffs: coeffBuf.Bytes(), Sigmap: smBuf.Bytes()}
	}
	log.WithField("side", c.Side).WithField("lods", len(enc.LODs)).Debug("encoded brick")
	return enc, nil
}

// Decode reconstructs a brick at (level, lod): it scatters the coefficients
// of LODs 0..lod into a zeroed buffer, inverts the deepest `level` transform
// steps, and returns the reconstructed sub-brick of side SideAt(level).
// Requesting a level or LOD beyond what was stored fails with NotAvailable;
// a truncated coefficient or sigmap stream fails with Corrupt.
func (c *Brick) Decode(enc *Encoded, level, lod int) ([]float64, error) {
	if level < 0 || level > c.Levels {
		return nil, vdcerr.Wrap(vdcerr.NotAvailable, "codec: level %d exceeds %d stored levels", level, c.Levels)
	}
	if lod < 0 || lod >= len(enc.LODs) {
		return nil, vdcerr.Wrap(vdcerr.NotAvailable, "codec: LOD %d exceeds %d stored LODs", lod, len(enc.LODs))
	}

	n := numCoeffs(c.Side, c.Dims)
	buf := make([]float64, n)

	for k := 0; k <= lod; k++ {
		sm, err := sigmap.Deserialize(bytes.NewReader(enc.LODs[k].Sigmap), n)
		if err != nil {
			return nil, err
		}
		r := bytes.NewReader(enc.LODs[k].Coeffs)
		for _, idx := range sm.Indices() {
			var v float32
			if err := binary.Read(r, binary.BigEndian, &v); err != nil {
				return nil, vdcerr.Wrap(vdcerr.Corrupt, "codec: truncated coefficient stream at LOD %d", k)
			}
			buf[idx] = float64(v)
		}
	}

	kern := &wavelet.Transform{Kernel: c.Kernel, NThreads: c.NThreads, Dims: c.Dims}
	// Invert the deepest `level` steps: step s operates on the sub-cube of
	// side Side>>s, deepest (smallest) first. Coefficients at shallower
	// steps stay untouched; they lie outside the returned sub-brick.
	for step := c.Levels - 1; step >= c.Levels-level; step-- {
		side := c.Side >> uint(step)
		sub := extractCube(buf, c.Side, side, c.Dims)
		rec, err := kern.Inverse(splitSubsLinear(sub, side, c.Dims), side)
		if err != nil {
			return nil, err
		}
		placeCube(buf, c.Side, rec, side, c.Dims)
	}
	return extractCube(buf, c.Side, c.SideAt(level), c.Dims), nil
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// forwardPyramid runs c.Levels transform steps, each recursing into the
// low-pass sub-cube of the previous step only, leaving the coefficient
// pyramid in place in a full-brick buffer.
func (c *Brick) forwardPyramid(raw []float64) ([]float64, error) {
	buf := append([]float64(nil), raw...)
	kern := &wavelet.Transform{Kernel: c.Kernel, NThreads: c.NThreads, Dims: c.Dims}

	side := c.Side
	for lvl := 0; lvl < c.Levels; lvl++ {
		sub := extractCube(buf, c.Side, side, c.Dims)
		subs, err := kern.Forward(sub, side)
		if err != nil {
			return nil, err
		}
		placeCube(buf, c.Side, joinSubsLinear(subs, side, c.Dims), side, c.Dims)
		side /= 2
	}
	return buf, nil
}

// extractCube copies the low corner sub-cube of side `side` out of a
// `full`-sided brick.
func extractCube(buf []float64, full, side, dims int) []float64 {
	sx, sy := full, full
	zmax := 1
	if dims == 3 {
		zmax = side
	}
	out := make([]float64, 0, numCoeffs(side, dims))
	for z := 0; z < zmax; z++ {
		for y := 0; y < side; y++ {
			base := z*sx*sy + y*sx
			out = append(out, buf[base:base+side]...)
		}
	}
	return out
}

// placeCube writes a side-cube back into the low corner of a full-sided
// brick.
func placeCube(buf []float64, full int, cube []float64, side, dims int) {
	sx, sy := full, full
	zmax := 1
	if dims == 3 {
		zmax = side
	}
	n := 0
	for z := 0; z < zmax; z++ {
		for y := 0; y < side; y++ {
			base := z*sx*sy + y*sx
			copy(buf[base:base+side], cube[n:n+side])
			n += side
		}
	}
}

// joinSubsLinear lays the transform's sub-brick map out as a single
// side-cube buffer in pyramid layout (lambda in the low corner, gammas in
// the remaining octants), so forwardPyramid can recurse into lambda alone.
func joinSubsLinear(subs map[wavelet.SubBrick][]float64, side, dims int) []float64 {
	half := side / 2
	out := make([]float64, numCoeffs(side, dims))
	place := func(buf []float64, ox, oy, oz int) {
		zmax := 1
		if dims == 3 {
			zmax = half
		}
		n := 0
		for z := 0; z < zmax; z++ {
			for y := 0; y < half; y++ {
				for x := 0; x < half; x++ {
					p := (oz+z)*side*side + (oy+y)*side + (ox + x)
					out[p] = buf[n]
					n++
				}
			}
		}
	}
	place(subs[wavelet.Lambda], 0, 0, 0)
	place(subs[wavelet.GammaX], half, 0, 0)
	place(subs[wavelet.GammaY], 0, half, 0)
	place(subs[wavelet.GammaXY], half, half, 0)
	if dims == 3 {
		place(subs[wavelet.GammaZ], 0, 0, half)
		place(subs[wavelet.GammaXZ], half, 0, half)
		place(subs[wavelet.GammaYZ], 0, half, half)
		place(subs[wavelet.GammaXYZ], half, half, half)
	}
	return out
}

// splitSubsLinear is the inverse of joinSubsLinear.
func splitSubsLinear(buf []float64, side, dims int) map[wavelet.SubBrick][]float64 {
	half := side / 2
	extract := func(ox, oy, oz int) []float64 {
		zmax := 1
		if dims == 3 {
			zmax = half
		}
		out := make([]float64, 0, half*half*zmax)
		for z := 0; z < zmax; z++ {
			for y := 0; y < half; y++ {
				for x := 0; x < half; x++ {
					p := (oz+z)*side*side + (oy+y)*side + (ox + x)
					out = append(out, buf[p])
				}
			}
		}
		return out
	}
	subs := map[wavelet.SubBrick][]float64{
		wavelet.Lambda:  extract(0, 0, 0),
		wavelet.GammaX:  extract(half, 0, 0),
		wavelet.GammaY:  extract(0, half, 0),
		wavelet.GammaXY: extract(half, half, 0),
	}
	if dims == 3 {
		subs[wavelet.GammaZ] = extract(0, 0, half)
		subs[wavelet.GammaXZ] = extract(half, 0, half)
		subs[wavelet.GammaYZ] = extract(0, half, half)
		subs[wavelet.GammaXYZ] = extract(half, half, half)
	}
	return subs
}

// Truncate returns a view of the encoded brick holding only LODs 0..lod,
// the self-contained payload written into the file for that LOD. The
// underlying byte slices are shared, not copied.
func (e *Encoded) Truncate(lod int) *Encoded {
	if lod >= len(e.LODs)-1 {
		return e
	}
	return &Encoded{LODs: e.LODs[:lod+1]}
}

// MarshalBinary serializes an Encoded brick as a length-tabled sequence of
// its LOD streams: each LOD's coefficient and sigmap byte lengths precede
// its payload so a truncated blob is detected as Corrupt rather than
// silently misaligned.
func (e *Encoded) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(e.LODs))); err != nil {
		return nil, vdcerr.Wrap(vdcerr.IOError, "codec: write LOD count")
	}
	for _, lod := range e.LODs {
		for _, part := range [][]byte{lod.Coeffs, lod.Sigmap} {
			if err := binary.Write(&buf, binary.BigEndian, uint32(len(part))); err != nil {
				return nil, vdcerr.Wrap(vdcerr.IOError, "codec: write LOD length")
			}
			buf.Write(part)
		}
	}
	return buf.Bytes(), nil
}

// UnmarshalEncoded is the inverse of (*Encoded).MarshalBinary.
func UnmarshalEncoded(data []byte) (*Encoded, error) {
	r := bytes.NewReader(data)
	var numLODs uint32
	if err := binary.Read(r, binary.BigEndian, &numLODs); err != nil {
		return nil, vdcerr.Wrap(vdcerr.Corrupt, "codec: truncated brick blob header")
	}
	enc := &Encoded{LODs: make([]LOD, numLODs)}
	for i := range enc.LODs {
		coeffs, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		sm, err := readLenPrefixed(r)
		if err != nil {
			return nil, err
		}
		enc.LODs[i] = LOD{Coeffs: coeffs, Sigmap: sm}
	}
	return enc, nil
}

func readLenPrefixed(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, vdcerr.Wrap(vdcerr.Corrupt, "codec: truncated brick blob section length")
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, vdcerr.Wrap(vdcerr.Corrupt, "codec: truncated brick blob section")
		}
	}
	return buf, nil
}
