package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPitchTrackerDetectsKnownFrequency(t *testing.T) {
	const sampleRate = 44100
	const freq = 220.0
	cfg := DefaultPitchConfig(sampleRate)
	cfg.MedianK = 0

	tracker := NewPitchTracker(cfg, 1024)
	obs := tracker.ProcessFrame(sineFrame(1024, sampleRate, freq))

	assert.True(t, obs.Voiced)
	assert.InDelta(t, freq, obs.F0, 5)
}

func TestPitchTrackerReportsUnvoicedOnSilence(t *testing.T) {
	cfg := DefaultPitchConfig(44100)
	tracker := NewPitchTracker(cfg, 1024)
	obs := tracker.ProcessFrame(make([]float64, 1024))
	assert.False(t, obs.Voiced)
	assert.Zero(t, obs.F0)
}

func TestMedianOfOddLength(t *testing.T) {
	assert.Equal(t, 3.0, medianOf([]float64{5, 1, 3, 4, 2}))
}

func TestMeanIgnoresUnvoicedFrames(t *testing.T) {
	obs := []PitchObservation{
		{F0: 100, Voiced: true},
		{F0: 0, Voiced: false},
		{F0: 200, Voiced: true},
	}
	assert.InDelta(t, 150, Mean(obs), 1e-9)
}

func TestMeanOfAllUnvoicedIsZero(t *testing.T) {
	obs := []PitchObservation{{Voiced: false}, {Voiced: false}}
	assert.Zero(t, Mean(obs))
}
