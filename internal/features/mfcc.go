// Package features implements the independent per-hop feature extractors of
// §4.2-§4.6: MFCC, pitch (YIN), harmonic analysis, cadence, and loudness.
// Each extractor is deliberately ignorant of the others, matching the
// "Feature extractors (parallel)" box in §2's pipeline diagram and the
// leaf-first dependency order of §2 item 2 — none of them know about
// sessions, segments, or scoring.
package features

import (
	"github.com/huntmaster-academy/gamecalls-engine/internal/dsp"
)

// MFCCConfig bundles the tunables from §6.4 relevant to the MFCC extractor.
type MFCCConfig struct {
	SampleRate   int
	FFTSize      int
	Coefficients int // C
	MelFilters   int // M, default 26 per the teacher's filterbank
	FMin, FMax   float64
	Lifter       float64 // L; <= 0 disables liftering
	Window       dsp.WindowKind
}

// DefaultMFCCConfig returns the extractor defaults for the given sample rate:
// a 2048-point FFT, 13 coefficients, 26 mel filters from 0 Hz to Nyquist, a
// Hann window, and no liftering.
func DefaultMFCCConfig(sampleRate int) MFCCConfig {
	return MFCCConfig{
		SampleRate:   sampleRate,
		FFTSize:      2048,
		Coefficients: 13,
		MelFilters:   26,
		FMin:         0,
		FMax:         0, // resolved to sampleRate/2
		Lifter:       0,
		Window:       dsp.WindowHann,
	}
}

// Vector is one MFCC observation: c0 is log-energy, c1..c(C-1) follow.
type Vector []float64

// Extractor produces C-dimensional cepstral vectors per hop (§4.2).
type Extractor struct {
	cfg        MFCCConfig
	fft        *dsp.FFT
	window     []float64
	filterbank *dsp.MelFilterbank

	// Scratch reused across calls for the windowed frame, spectrum, and mel
	// energies; the returned coefficient vector is still allocated per call.
	windowed     []float64
	spectrum     []float64
	melLogE      []float64
	lastSpectrum []float64
}

// NewExtractor builds an MFCC extractor for one session. frameSize is the
// time-domain window length (may be smaller than FFTSize; the frame is
// zero-padded to FFTSize before the FFT).
func NewExtractor(cfg MFCCConfig, frameSize int) *Extractor {
	fmax := cfg.FMax
	if fmax <= 0 {
		fmax = float64(cfg.SampleRate) / 2
	}
	return &Extractor{
		cfg:        cfg,
		fft:        dsp.NewFFT(cfg.FFTSize),
		window:     dsp.Coefficients(cfg.Window, frameSize),
		filterbank: dsp.NewMelFilterbank(cfg.MelFilters, cfg.FFTSize, cfg.SampleRate, cfg.FMin, fmax),
		windowed:     make([]float64, cfg.FFTSize),
		spectrum:     make([]float64, cfg.FFTSize/2),
		lastSpectrum: make([]float64, cfg.FFTSize/2),
	}
}

// ProcessFrame runs the full MFCC pipeline (§4.2 steps 1-6) on one
// time-domain frame and returns a freshly allocated coefficient vector —
// callers retain these across a session, so each call must return data the
// caller owns.
func (e *Extractor) ProcessFrame(frame []float64) Vector {
	for i := range e.windowed {
		e.windowed[i] = 0
	}
	dsp.Apply(e.windowed[:len(frame)], frame, e.window)
	dsp.FlushDenormals(e.windowed)

	spectrum := e.fft.Magnitude(e.windowed, e.spectrum)
	e.melLogE = e.filterbank.LogEnergies(spectrum, e.melLogE)

	copy(e.lastSpectrum, spectrum)

	coeffs := dsp.DCT2(e.melLogE, e.cfg.Coefficients, e.cfg.Lifter)
	out := make(Vector, len(coeffs))
	copy(out, coeffs)
	return out
}

// FFTSize returns the configured FFT length, used by callers that need to
// size a buffer for LastSpectrum.
func (e *Extractor) FFTSize() int { return e.cfg.FFTSize }

// LastSpectrum copies the magnitude spectrum computed by the most recent
// ProcessFrame call into dst and returns it, letting other per-frame
// analyzers (harmonic, cadence) reuse the FFT work MFCC already paid for
// instead of recomputing their own spectrum (§4.4, §4.5 "shared spectrum").
func (e *Extractor) LastSpectrum(dst []float64) []float64 {
	n := len(e.lastSpectrum)
	if len(dst) < n {
		dst = make([]float64, n)
	}
	copy(dst, e.lastSpectrum)
	return dst[:n]
}

// Distance returns the squared Euclidean distance between two MFCC vectors of equal
// length, used both by the realtime scorer's partial DTW and the final DTW
// comparator's per-component cost (§4.8, §4.9).
func Distance(a, b Vector) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
