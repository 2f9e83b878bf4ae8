package features

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sineFrame(n, sampleRate int, freq float64) []float64 {
	frame := make([]float64, n)
	for i := range frame {
		frame[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	return frame
}

func TestExtractorProducesConfiguredCoefficientCount(t *testing.T) {
	cfg := DefaultMFCCConfig(44100)
	cfg.Coefficients = 13
	ext := NewExtractor(cfg, 1024)

	vec := ext.ProcessFrame(sineFrame(1024, 44100, 440))
	assert.Len(t, vec, 13)
}

func TestExtractorIsDeterministic(t *testing.T) {
	cfg := DefaultMFCCConfig(44100)
	frame := sineFrame(1024, 44100, 880)

	a := NewExtractor(cfg, 1024).ProcessFrame(frame)
	b := NewExtractor(cfg, 1024).ProcessFrame(frame)
	assert.Equal(t, a, b, "identical input must produce identical MFCC vectors")
}

func TestDistanceIsZeroForIdenticalVectors(t *testing.T) {
	v := Vector{1, 2, 3}
	assert.Zero(t, Distance(v, v))
}

func TestDistanceIsSymmetric(t *testing.T) {
	a := Vector{1, 2, 3}
	b := Vector{4, -1, 0.5}
	assert.Equal(t, Distance(a, b), Distance(b, a))
}
