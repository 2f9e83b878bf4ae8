// Package mastercall defines the MasterCallTemplate entity (§3) and its
// binary bundle serialization format (§6.2): a compact, versioned,
// checksummed layout grounded on the teacher's own binary-framing instincts
// in internal/audio/output.go (fixed-width little-endian fields written
// directly with binary.Write) rather than inventing a new convention from
// scratch.
package mastercall

import (
	"github.com/huntmaster-academy/gamecalls-engine/internal/features"
)

// Template holds every precomputed feature sequence for one master call,
// loaded once via loadMasterCall and shared read-only across every session
// that references it (§3, §5 "Master-call store"). The pitch, harmonic, and
// loudness sequences are stored as parallel time-stamped arrays matching the
// bundle's wire layout (§6.2): PitchTimesSec[i]/PitchHz[i]/PitchConfidence[i]
// describe the same i'th contour point, and likewise for the harmonic
// trajectory and loudness envelope.
type Template struct {
	Name         string
	SampleRate   int
	FrameSamples int
	HopSamples   int
	DurationSec  float64

	MFCC []features.Vector

	PitchTimesSec   []float64
	PitchHz         []float64 // voiced-only contour, Hz
	PitchConfidence []float64

	HarmonicTimesSec   []float64
	HarmonicCentroid   []float64
	HarmonicConfidence []float64

	OnsetsSec      []float64
	Tempo          float64
	RhythmStrength float64

	LoudnessTimesSec []float64
	LoudnessDBFS     []float64 // RMS trajectory
	LoudnessPeakDBFS []float64

	// LongTermRMSDBFS is derived from LoudnessDBFS (not part of the bundle's
	// wire format, which has no slot for it — see §6.2) and recomputed by
	// Decode so a round-tripped template still reports it.
	LongTermRMSDBFS float64
}
