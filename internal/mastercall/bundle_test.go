package mastercall

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntmaster-academy/gamecalls-engine/internal/features"
)

func sampleTemplate() *Template {
	return &Template{
		SampleRate:         44100,
		FrameSamples:       2048,
		HopSamples:         512,
		DurationSec:        1.5,
		MFCC:               []features.Vector{{1, 2, 3}, {4, 5, 6}},
		PitchTimesSec:      []float64{0, 0.01, 0.02},
		PitchHz:            []float64{220, 221, 222},
		PitchConfidence:    []float64{0.9, 0.91, 0.92},
		HarmonicTimesSec:   []float64{0, 0.01},
		HarmonicCentroid:   []float64{1000, 1100},
		HarmonicConfidence: []float64{0.7, 0.75},
		OnsetsSec:          []float64{0.1, 0.6, 1.1},
		Tempo:              120,
		RhythmStrength:     0.8,
		LoudnessTimesSec:   []float64{0, 0.01, 0.02},
		LoudnessDBFS:       []float64{-20, -19, -18},
		LoudnessPeakDBFS:   []float64{-15, -14, -13},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tmpl := sampleTemplate()
	data, err := Encode(tmpl)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, tmpl.SampleRate, decoded.SampleRate)
	assert.Equal(t, tmpl.FrameSamples, decoded.FrameSamples)
	assert.Equal(t, tmpl.HopSamples, decoded.HopSamples)
	assert.InDelta(t, tmpl.DurationSec, decoded.DurationSec, 1e-5)
	assert.Len(t, decoded.MFCC, len(tmpl.MFCC))
	for i := range tmpl.MFCC {
		for j := range tmpl.MFCC[i] {
			assert.InDelta(t, tmpl.MFCC[i][j], decoded.MFCC[i][j], 1e-4)
		}
	}
	assert.InDeltaSlice(t, tmpl.PitchTimesSec, decoded.PitchTimesSec, 1e-4)
	assert.InDeltaSlice(t, tmpl.PitchHz, decoded.PitchHz, 1e-4)
	assert.InDeltaSlice(t, tmpl.PitchConfidence, decoded.PitchConfidence, 1e-4)
	assert.InDeltaSlice(t, tmpl.HarmonicTimesSec, decoded.HarmonicTimesSec, 1e-4)
	assert.InDeltaSlice(t, tmpl.HarmonicCentroid, decoded.HarmonicCentroid, 1e-4)
	assert.InDeltaSlice(t, tmpl.OnsetsSec, decoded.OnsetsSec, 1e-4)
	assert.InDelta(t, tmpl.Tempo, decoded.Tempo, 1e-4)
	assert.InDeltaSlice(t, tmpl.LoudnessTimesSec, decoded.LoudnessTimesSec, 1e-4)
	assert.InDeltaSlice(t, tmpl.LoudnessPeakDBFS, decoded.LoudnessPeakDBFS, 1e-4)

	wantLongTermRMS := (-20.0 + -19.0 + -18.0) / 3
	assert.InDelta(t, wantLongTermRMS, decoded.LongTermRMSDBFS, 1e-4, "derived from the decoded loudness envelope, not stored on the wire")
}

func TestEncodeRejectsMismatchedParallelArrays(t *testing.T) {
	tmpl := sampleTemplate()
	tmpl.PitchConfidence = tmpl.PitchConfidence[:len(tmpl.PitchConfidence)-1]
	_, err := Encode(tmpl)
	assert.Error(t, err)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode([]byte("NOPE00000000"))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeRejectsChecksumMismatch(t *testing.T) {
	data, err := Encode(sampleTemplate())
	require.NoError(t, err)
	corrupted := append([]byte(nil), data...)
	corrupted[len(corrupted)-1] ^= 0xFF

	_, err = Decode(corrupted)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	data, err := Encode(sampleTemplate())
	require.NoError(t, err)

	tampered := append([]byte(nil), data...)
	// version field is the 4 bytes immediately after the magic.
	tampered[4] = 99
	// recompute the checksum so this fails on version, not on checksum.
	payload := tampered[:len(tampered)-4]
	sum := crc32.ChecksumIEEE(payload)
	tampered[len(tampered)-4] = byte(sum)
	tampered[len(tampered)-3] = byte(sum >> 8)
	tampered[len(tampered)-2] = byte(sum >> 16)
	tampered[len(tampered)-1] = byte(sum >> 24)

	_, err = Decode(tampered)
	var verErr ErrUnsupportedVersion
	assert.ErrorAs(t, err, &verErr)
}
