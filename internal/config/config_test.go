package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRawKeysRejectsUnknown(t *testing.T) {
	err := ValidateRawKeys(map[string]any{"sampleRate": 44100, "bogus": true})
	var unrec UnrecognizedKeyError
	require.ErrorAs(t, err, &unrec)
	assert.Equal(t, "bogus", unrec.Key)
}

func TestValidateRawKeysAcceptsRecognized(t *testing.T) {
	err := ValidateRawKeys(map[string]any{"sampleRate": 44100, "window": "hann"})
	assert.NoError(t, err)
}

func TestResolvedFallsBackToDefaults(t *testing.T) {
	defaults := DefaultProfile()
	resolved, err := SessionConfig{}.Resolved(defaults)
	require.NoError(t, err)
	assert.Equal(t, defaults.SampleRate, resolved.SampleRate)
	assert.Equal(t, defaults.FrameSamples, resolved.FrameSamples)
}

func TestResolvedRejectsHopLargerThanFrame(t *testing.T) {
	defaults := DefaultProfile()
	cfg := SessionConfig{FrameSamples: 512, HopSamples: 1024}
	_, err := cfg.Resolved(defaults)
	assert.Error(t, err)
}

func TestResolvedRejectsUnknownWindow(t *testing.T) {
	defaults := DefaultProfile()
	cfg := SessionConfig{Window: "bogus"}
	_, err := cfg.Resolved(defaults)
	assert.Error(t, err)
}

func TestLoadProfileOverridesOnlySpecifiedFields(t *testing.T) {
	yamlDoc := []byte("dtwBand: 40\n")
	p, err := LoadProfile(yamlDoc)
	require.NoError(t, err)
	assert.Equal(t, 40, p.DTWBand)
	assert.Equal(t, DefaultProfile().SampleRate, p.SampleRate)
}
