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

// Package wavelet implements the one- and N-dimensional separable wavelet
// kernels used by the brick codec: a Haar transform for filter order 1 and
// a biorthogonal lifting transform for higher orders, applied separably
// across the axes of a brick.
package wavelet

import (
	"github.com/spatialmodel/vdc/vdcerr"
)

// Kernel1D performs in-place forward and inverse one-level transforms of a
// length-N buffer. N refers to the Haar mode (filter order 1); N/Ntilde>=3
// selects biorthogonal lifting with the given predict/update coefficient
// counts.
type Kernel1D struct {
	N      int // number of predict (dual) lifting coefficients; 1 selects Haar
	Ntilde int // number of update (primal) lifting coefficients
}

// NewKernel1D validates n and ntilde and returns a ready-to-use kernel.
func NewKernel1D(n, ntilde int) (*Kernel1D, error) {
	if n < 1 || (n%2 == 0 && n != 1) {
		return nil, vdcerr.Wrap(vdcerr.InvalidParam, "invalid number of filter coefficients n=%d", n)
	}
	if ntilde < 1 || (ntilde%2 == 0 && ntilde != 1) {
		return nil, vdcerr.Wrap(vdcerr.InvalidParam, "invalid number of lifting coefficients ntilde=%d", ntilde)
	}
	return &Kernel1D{N: n, Ntilde: ntilde}, nil
}

// IsHaar reports whether this kernel operates in Haar mode.
func (k *Kernel1D) IsHaar() bool { return k.N == 1 }

// Forward transforms src (length n) into lambda (low-pass, ceil(n/2)) and
// gamma (high-pass), de-interleaved per the kernel contract. Haar mode
// returns floor(n/2) gamma coefficients; lifting pads an odd n by one
// sample and returns ceil(n/2).
func (k *Kernel1D) Forward(src []float64) (lambda, gamma []float64) {
	if k.IsHaar() {
		return forwardHaar(src)
	}
	return k.forwardLifting(src)
}

// Inverse reconstructs a length-(len(lambda)+len(gamma)) buffer from the
// de-interleaved low-pass/high-pass coefficients.
func (k *Kernel1D) Inverse(lambda, gamma []float64) []float64 {
	if k.IsHaar() {
		return inverseHaar(lambda, gamma)
	}
	return k.inverseLifting(lambda, gamma)
}

// forwardHaar implements a mean-preserving Haar transform: for odd N the
// last low-pass sample is chosen so that N*mean(src) == sum(lambda).
func forwardHaar(src []float64) (lambda, gamma []float64) {
	n := len(src)
	nG := n >> 1
	nL := n - nG
	lambda = make([]float64, nL)
	gamma = make([]float64, nG)

	var lsum float64
	for i := 0; i < nG; i++ {
		g := src[2*i+1] - src[2*i]
		l := src[2*i] + g/2
		gamma[i] = g
		lambda[i] = l
		lsum += l
	}
	if n%2 == 1 {
		var total float64
		for _, v := range src {
			total += v
		}
		mean := total / float64(n)
		lambda[nL-1] = mean*float64(n) - lsum
	}
	return lambda, gamma
}

// inverseHaar is the exact inverse of forwardHaar.
func inverseHaar(lambda, gamma []float64) []float64 {
	nG := len(gamma)
	nL := len(lambda)
	n := nL + nG
	dst := make([]float64, n)

	var lsum float64
	for i := 0; i < nG; i++ {
		a := lambda[i] - gamma[i]/2
		b := gamma[i] + a
		dst[2*i] = a
		dst[2*i+1] = b
		lsum += a + b
	}
	if n%2 == 1 {
		// The lambda sum equals the input sum by construction, so the
		// tail sample is whatever the reconstructed pairs leave over.
		var ltot float64
		for i := 0; i < nL; i++ {
			ltot += lambda[i]
		}
		dst[n-1] = ltot - lsum
	}
	return dst
}

// forwardLifting pre-pads odd-length buffers to even length by symmetric
// extension, applies predict/update lifting steps, then de-interleaves the
// lifting library's in-place interleaved output.
func (k *Kernel1D) forwardLifting(src []float64) (lambda, gamma []float64) {
	padded, _ := symmetricPadEven(src)
	liftForward(padded, k.N, k.Ntilde)

	half := len(padded) / 2
	lambda = make([]float64, half)
	gamma = make([]float64, half)
	for i, j := 0, 0; i < len(padded); i, j = i+2, j+1 {
		lambda[j] = padded[i]
		gamma[j] = padded[i+1]
	}
	return lambda, gamma
}

// inverseLifting re-interleaves lambda/gamma and runs the inverse lifting
// steps; any padding applied on the forward path must be trimmed by the
// caller, which knows the original length from the brick geometry.
func (k *Kernel1D) inverseLifting(lambda, gamma []float64) []float64 {
	n := len(lambda) + len(gamma)
	buf := make([]float64, n)
	for i, j := 0, 0; i < n; i, j = i+2, j+1 {
		buf[i] = lambda[j]
		buf[i+1] = gamma[j]
	}
	liftInverse(buf, k.N, k.Ntilde)
	return buf
}

// symmetricPadEven appends one mirrored sample when src has odd length so
// that lifting operates on an even-length buffer.
func symmetricPadEven(src []float64) (padded []float64, origLen int) {
	origLen = len(src)
	if origLen%2 == 0 {
		return append([]float64(nil), src...), origLen
	}
	padded = make([]float64, origLen+1)
	copy(padded, src)
	if origLen >= 2 {
		padded[origLen] = src[origLen-2]
	} else {
		padded[origLen] = src[origLen-1]
	}
	return padded, origLen
}

// liftForward and liftInverse implement a biorthogonal predict/update
// lifting scheme (e.g. bior3.3 when n=ntilde=3) with symmetric extension at
// both buffer ends, operating in place on interleaved (even-index = even
// sample, odd-index = odd sample) data; Forward/Inverse de-interleave at
// the boundary so callers only ever see split lambda/gamma halves.
func liftForward(buf []float64, n, ntilde int) {
	half := len(buf) / 2
	evens := make([]float64, half)
	odds := make([]float64, half)
	for i := 0; i < half; i++ {
		evens[i] = buf[2*i]
		odds[i] = buf[2*i+1]
	}

	predictTaps := liftingTaps(n)
	updateTaps := liftingTaps(ntilde)

	// Predict: odds -= predicted from neighboring evens (symmetric extension).
	for i := range odds {
		odds[i] -= predict(evens, i, predictTaps)
	}
	// Update: evens += update from neighboring (already-predicted) odds.
	for i := range evens {
		evens[i] += predict(odds, i, updateTaps)
	}

	for i := 0; i < half; i++ {
		buf[2*i] = evens[i]
		buf[2*i+1] = odds[i]
	}
}

func liftInverse(buf []float64, n, ntilde int) {
	half := len(buf) / 2
	evens := make([]float64, half)
	odds := make([]float64, half)
	for i := 0; i < half; i++ {
		evens[i] = buf[2*i]
		odds[i] = buf[2*i+1]
	}

	predictTaps := liftingTaps(n)
	updateTaps := liftingTaps(ntilde)

	for i := range evens {
		evens[i] -= predict(odds, i, updateTaps)
	}
	for i := range odds {
		odds[i] += predict(evens, i, predictTaps)
	}

	for i := 0; i < half; i++ {
		buf[2*i] = evens[i]
		buf[2*i+1] = odds[i]
	}
}

// liftingTaps returns the symmetric averaging taps for an n-coefficient
// lifting step. n==1 degenerates to nearest-sample prediction, since a
// single coefficient carries no predictive power beyond it.
func liftingTaps(n int) []float64 {
	switch n {
	case 1:
		return []float64{1}
	case 3:
		return []float64{-1.0 / 16, 9.0 / 16, 9.0 / 16, -1.0 / 16}
	default:
		taps := make([]float64, n+1)
		for i := range taps {
			taps[i] = 1.0 / float64(n+1)
		}
		return taps
	}
}

// predict evaluates a centered tap filter against series at index i, using
// symmetric (mirror) extension at both ends so the transform is well
// defined for every brick boundary.
func predict(series []float64, i int, taps []float64) float64 {
	n := len(series)
	half := len(taps) / 2
	var acc float64
	for t, w := range taps {
		idx := i + t - half
		acc += w * mirror(series, idx, n)
	}
	return acc
}

// mirror reflects an out-of-range index back into [0, n) by symmetric
// extension.
func mirror(series []float64, idx, n int) float64 {
	if n == 1 {
		return series[0]
	}
	for idx < 0 || idx >= n {
		if idx < 0 {
			idx = -idx - 1
		}
		if idx >= n {
			idx = 2*n - idx - 1
		}
	}
	return series[idx]
}
