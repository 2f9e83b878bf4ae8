package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoudnessAnalyzerSilenceFloor(t *testing.T) {
	analyzer := NewLoudnessAnalyzer(DefaultLoudnessConfig(44100))
	obs := analyzer.ProcessFrame(make([]float64, 512))
	assert.Equal(t, -120.0, obs.RMSDBFS)
	assert.True(t, obs.LowLevel)
	assert.False(t, obs.Overload)
}

func TestLoudnessAnalyzerFullScaleFlagsOverload(t *testing.T) {
	frame := make([]float64, 512)
	for i := range frame {
		frame[i] = 1.0
	}
	analyzer := NewLoudnessAnalyzer(DefaultLoudnessConfig(44100))
	obs := analyzer.ProcessFrame(frame)
	assert.InDelta(t, 0, obs.RMSDBFS, 1e-6)
	assert.True(t, obs.Overload)
}

func TestNormalizationGainClampsToBounds(t *testing.T) {
	cfg := DefaultLoudnessConfig(44100)
	assert.Equal(t, cfg.MaxGainDB, NormalizationGainDB(cfg, 0, -100))
	assert.Equal(t, cfg.MinGainDB, NormalizationGainDB(cfg, -100, 0))
	assert.InDelta(t, 5.0, NormalizationGainDB(cfg, -10, -15), 1e-9)
}

func TestLongTermRMSAccumulatesAcrossFrames(t *testing.T) {
	analyzer := NewLoudnessAnalyzer(DefaultLoudnessConfig(44100))
	frame := make([]float64, 256)
	for i := range frame {
		frame[i] = 0.5
	}
	analyzer.ProcessFrame(frame)
	analyzer.ProcessFrame(frame)
	assert.InDelta(t, -6.02, analyzer.LongTermRMSDBFS(), 0.1)
}
