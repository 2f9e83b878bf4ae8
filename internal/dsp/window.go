// Package dsp holds the shared low-level signal-processing helpers used by
// every feature extractor: windowing, FFT magnitude spectra and the mel
// filterbank. Keeping them here (rather than duplicated per extractor, as the
// teacher repo did across analysis/features.go and audio/analyzer.go) means
// the window coefficients and FFT plan for a session are built once and
// shared by every analyzer attached to it.
package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowKind selects the analysis window applied before each FFT.
type WindowKind int

const (
	WindowHann WindowKind = iota
	WindowHamming
	WindowBlackman
	WindowRectangular
)

// ParseWindowKind maps a config string to a WindowKind. Unknown names fall
// back to Hann, the extractors' default.
func ParseWindowKind(name string) (WindowKind, bool) {
	switch name {
	case "", "hann":
		return WindowHann, true
	case "hamming":
		return WindowHamming, true
	case "blackman":
		return WindowBlackman, true
	case "rectangular", "rect":
		return WindowRectangular, true
	default:
		return WindowHann, false
	}
}

// Coefficients precomputes the window of the given kind and length. Computed
// once per session at construction time per §4.1 ("Window coefficients are
// precomputed once per session").
func Coefficients(kind WindowKind, n int) []float64 {
	coeffs := make([]float64, n)
	for i := range coeffs {
		coeffs[i] = 1
	}
	switch kind {
	case WindowHamming:
		window.Hamming(coeffs)
	case WindowBlackman:
		window.Blackman(coeffs)
	case WindowRectangular:
		// leave as all-ones
	case WindowHann:
		fallthrough
	default:
		window.Hann(coeffs)
	}
	return coeffs
}

// Apply multiplies frame by the precomputed window coefficients into dst.
// dst and frame must be the same length as the window; dst may alias frame.
func Apply(dst, frame, coeffs []float64) {
	for i := range frame {
		dst[i] = frame[i] * coeffs[i]
	}
}

// FlushDenormals implements the "denormal-flush policy" from §9: values with
// magnitude under 1e-30 are flushed to zero before they reach an FFT, which
// avoids subnormal-float CPU stalls on some platforms.
func FlushDenormals(samples []float64) {
	for i, v := range samples {
		if math.Abs(v) < 1e-30 {
			samples[i] = 0
		}
	}
}
