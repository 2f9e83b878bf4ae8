package features

import (
	"testing"

	"github.com/huntmaster-academy/gamecalls-engine/internal/dsp"
	"github.com/stretchr/testify/assert"
)

func TestHarmonicAnalyzerHighConfidenceOnPureTone(t *testing.T) {
	const sampleRate = 44100
	const fftSize = 2048
	cfg := DefaultHarmonicConfig(sampleRate, fftSize)
	analyzer := NewHarmonicAnalyzer(cfg)

	fft := dsp.NewFFT(fftSize)
	frame := sineFrame(fftSize, sampleRate, 220)
	window := dsp.Coefficients(dsp.WindowHann, fftSize)
	windowed := make([]float64, fftSize)
	dsp.Apply(windowed, frame, window)
	spectrum := fft.Magnitude(windowed, nil)

	obs := analyzer.ProcessFrame(spectrum, 220, true)
	assert.Greater(t, obs.Confidence, 0.5)
	assert.GreaterOrEqual(t, obs.HNR, 0.0)
}

func TestHarmonicAnalyzerFormantsWithinNyquist(t *testing.T) {
	const sampleRate = 44100
	const fftSize = 2048
	cfg := DefaultHarmonicConfig(sampleRate, fftSize)
	analyzer := NewHarmonicAnalyzer(cfg)

	spectrum := make([]float64, fftSize/2)
	for i := range spectrum {
		spectrum[i] = 1
	}
	obs := analyzer.ProcessFrame(spectrum, 0, false)
	for _, f := range obs.Formants {
		assert.Less(t, f, float64(sampleRate)/2)
	}
}

func TestSmoothSpectrumPreservesLength(t *testing.T) {
	spectrum := []float64{1, 5, 2, 8, 3}
	smoothed := smoothSpectrum(spectrum)
	assert.Len(t, smoothed, len(spectrum))
}
