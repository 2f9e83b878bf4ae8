package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFFTMagnitudeFindsDominantFrequency(t *testing.T) {
	const sampleRate = 8000
	const fftSize = 1024
	const freq = 1000.0

	frame := make([]float64, fftSize)
	for i := range frame {
		frame[i] = math.Sin(2 * math.Pi * freq * float64(i) / sampleRate)
	}

	fft := NewFFT(fftSize)
	spectrum := fft.Magnitude(frame, nil)

	peakBin, peakVal := 0, 0.0
	for i, v := range spectrum {
		if v > peakVal {
			peakVal = v
			peakBin = i
		}
	}
	peakFreq := float64(peakBin) * sampleRate / fftSize
	assert.InDelta(t, freq, peakFreq, sampleRate/float64(fftSize)*2)
}

func TestMelFilterbankLogEnergiesNonNegativeFloor(t *testing.T) {
	fb := NewMelFilterbank(26, 2048, 44100, 0, 0)
	silence := make([]float64, 1024)
	logE := fb.LogEnergies(silence, nil)
	for i, v := range logE {
		if math.IsInf(v, -1) || math.IsNaN(v) {
			t.Fatalf("logE[%d] = %v, want finite floor value", i, v)
		}
	}
}

func TestDCT2ProducesRequestedLength(t *testing.T) {
	melLogE := make([]float64, 26)
	for i := range melLogE {
		melLogE[i] = float64(i)
	}
	coeffs := DCT2(melLogE, 13, 22)
	if len(coeffs) != 13 {
		t.Fatalf("got %d coefficients, want 13", len(coeffs))
	}
}

func TestSpectralFlatnessBoundsForToneVsNoise(t *testing.T) {
	tone := make([]float64, 512)
	tone[10] = 1.0
	flatTone := SpectralFlatness(tone)

	noise := make([]float64, 512)
	for i := range noise {
		noise[i] = 1.0
	}
	flatNoise := SpectralFlatness(noise)

	if flatTone >= flatNoise {
		t.Fatalf("expected a single spectral line to be less flat than uniform noise: tone=%v noise=%v", flatTone, flatNoise)
	}
	assert.InDelta(t, 1.0, flatNoise, 1e-9)
}
