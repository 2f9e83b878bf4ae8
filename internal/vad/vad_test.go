package vad

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectorEntersAndExitsSound(t *testing.T) {
	cfg := DefaultConfig(44100, 512)
	cfg.MinSoundMs = 0
	cfg.MinSilenceMs = 0
	d := NewDetector(cfg)

	var states []bool
	for i := 0; i < 10; i++ {
		rms := -50.0
		if i >= 3 && i < 7 {
			rms = -10.0
		}
		states = append(states, d.ProcessHop(rms, 0.1))
	}

	assert.False(t, states[0])
	assert.True(t, states[4])
	assert.False(t, states[9])
}

func TestDetectorRejectsNoiseLikeFlatness(t *testing.T) {
	cfg := DefaultConfig(44100, 512)
	d := NewDetector(cfg)
	voiced := d.ProcessHop(-10, 0.9) // loud but flat/noise-like
	assert.False(t, voiced)
}

func TestDetectorFlatnessHysteresis(t *testing.T) {
	cfg := DefaultConfig(44100, 512)
	cfg.MinSoundMs = 0
	d := NewDetector(cfg)

	assert.True(t, d.ProcessHop(-10, 0.3), "should enter sound: loud and tonal")
	assert.True(t, d.ProcessHop(-10, 0.62), "should stay voiced: above FlatnessOn but still below FlatnessOff")
	assert.False(t, d.ProcessHop(-10, 0.7), "should exit: flatness crossed FlatnessOff")
}

func TestSegmentsMergesShortGaps(t *testing.T) {
	cfg := DefaultConfig(44100, 512)
	cfg.MinSoundMs = 0
	cfg.MinSilenceMs = 1000
	d := NewDetector(cfg)

	hopSeconds := float64(cfg.HopSamples) / float64(cfg.SampleRate)
	gapHops := int(0.01 / hopSeconds) // a tiny gap, well under MinSilenceMs
	if gapHops < 1 {
		gapHops = 1
	}

	for i := 0; i < 5; i++ {
		d.ProcessHop(-10, 0.1)
	}
	for i := 0; i < gapHops; i++ {
		d.ProcessHop(-50, 0.1)
	}
	for i := 0; i < 5; i++ {
		d.ProcessHop(-10, 0.1)
	}

	segments := d.Segments()
	assert.Len(t, segments, 1, "a short silence gap should be merged into one segment")
}

func TestSegmentsDropsTooShortSound(t *testing.T) {
	cfg := DefaultConfig(44100, 512)
	cfg.MinSoundMs = 10000 // effectively requires a very long run
	d := NewDetector(cfg)
	d.ProcessHop(-10, 0.1)
	d.ProcessHop(-50, 0.1)
	assert.Empty(t, d.Segments())
}

func TestResetClearsState(t *testing.T) {
	cfg := DefaultConfig(44100, 512)
	cfg.MinSoundMs = 0
	d := NewDetector(cfg)
	d.ProcessHop(-10, 0.1)
	d.ProcessHop(-50, 0.1)
	assert.NotEmpty(t, d.Segments())

	d.Reset()
	assert.Empty(t, d.Segments())
}
