package scoring

import (
	"fmt"
	"math"

	"github.com/huntmaster-academy/gamecalls-engine/internal/dtw"
	"github.com/huntmaster-academy/gamecalls-engine/internal/features"
)

// ComponentScores holds each component's raw DTW distance and mapped
// similarity, prior to fusion (§4.11 "Components").
type ComponentScores struct {
	MFCC     Component
	Pitch    Component
	Harmonic Component
	Cadence  Component
	Loudness Component
}

// Component is one named component's distance/similarity pair.
type Component struct {
	Distance   float64
	Similarity float64
}

// Grade is one of the five letter bands assigned by §4.11 "Grading".
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Diagnostics is §3 EnhancedSummary's named per-component attribute list:
// pitch-f0-mean-Hz, pitch-confidence, spectral-centroid-Hz,
// harmonic-confidence, tempo-BPM, rhythm-strength, loudness-rms-dBFS,
// loudness-peak-dBFS, loudness-normalization-gain. Every value here
// describes the user's attempt, not the master.
type Diagnostics struct {
	PitchF0MeanHz      float64
	PitchConfidence    float64
	SpectralCentroidHz float64
	HarmonicConfidence float64
	TempoBPM           float64
	RhythmStrength     float64
	LoudnessRMSDBFS    float64
	LoudnessPeakDBFS   float64
	LoudnessNormGainDB float64

	// LoudnessAdvisory is §4.6's calibration advisor report (overload/
	// low-level flags and peak headroom), accumulated over every voiced hop
	// of the whole session rather than just the selected best segment.
	LoudnessAdvisory features.CalibrationAdvisory
}

// SegmentSummary reports one tracked segment's score and best-match flag,
// in the units getEnhancedSummary's caller cares about (§3 "Segment"
// entity, §8 scenario 6).
type SegmentSummary struct {
	StartSec      float64
	EndSec        float64
	VADConfidence float64
	Distance      float64
	IsBest        bool
}

// CoachingFeedback is §4.11's rule-based feedback, split into the three
// categorized lists §3's EnhancedSummary entity names (strength /
// improvement / tip).
type CoachingFeedback struct {
	Strengths    []string
	Improvements []string
	Tips         []string
}

// FinalScore is the result of finalizeSessionAnalysis's fusion stage
// (§4.11, §3 "EnhancedSummary").
type FinalScore struct {
	Overall     float64
	Confidence  float64
	Grade       Grade
	Components  ComponentScores
	Diagnostics Diagnostics
	Feedback    CoachingFeedback

	ProcessingTimeMs float64

	// BestSegmentIndex indexes into Segments; -1 when no segment was
	// selected (NoVoicedAudio).
	BestSegmentIndex int
	Segments         []SegmentSummary

	// DisabledComponents names every analyzer turned off for the session,
	// either by its config enable flag or by §5's quality-tier downgrade
	// mid-session, surfaced as EnhancedSummary's diagnostic flag.
	DisabledComponents []string

	NoVoicedAudio bool
}

// NoVoicedAudioResult is the degraded summary finalize returns when the
// segment selector found nothing to compare — an empty session or one that
// never crossed the VAD's on-threshold (§7 "the session remains usable",
// §8 "Empty session"/"All-silence input" boundary behaviors). It is a
// normal Finalized result, not an error: the session stays usable and the
// caller sees overall=0, grade=F, confidence=0 with the flag set.
func NoVoicedAudioResult() FinalScore {
	return FinalScore{
		Grade:            GradeF,
		Feedback:         CoachingFeedback{Tips: []string{"no_voiced_audio"}},
		BestSegmentIndex: -1,
		NoVoicedAudio:    true,
	}
}

// SequenceInput bundles the segment-selected user sequences compared
// against the matching master-template sequences during finalize (§4.10,
// §4.11), plus the raw diagnostic values §4.11's coaching rules and §3's
// EnhancedSummary attributes are derived from.
type SequenceInput struct {
	UserMFCC, MasterMFCC           []features.Vector
	UserPitch, MasterPitch         []float64 // Hz, voiced-only
	UserPitchConfidence            []float64 // voiced-only, parallel to UserPitch
	UserHarmonicCentroid           []float64
	MasterHarmonicCentroid         []float64
	UserHarmonicConfidence         []float64
	UserOnsetsSec, MasterOnsetsSec []float64
	UserLoudnessDBFS               []float64
	MasterLoudnessDBFS             []float64
	UserLoudnessPeakDBFS           []float64

	UserLongTermRMSDBFS   float64
	MasterLongTermRMSDBFS float64
	LoudnessCfg           features.LoudnessConfig
	LoudnessAdvisory      features.CalibrationAdvisory
}

// Finalize runs the per-component DTW comparisons and fuses them into a
// single graded result (§4.11). band is the Sakoe-Chiba constraint shared
// by every component comparator; earlyStop is §4.9's early-termination
// sentinel (pass math.Inf(1) to disable it).
func Finalize(in SequenceInput, weights Weights, alphas Alphas, band int, earlyStop float64) FinalScore {
	mfccDist := dtw.CompareEarlyStop(in.UserMFCC, in.MasterMFCC, band, features.Distance, earlyStop)
	mfcc := Component{Distance: mfccDist, Similarity: dtw.Similarity(mfccDist, alphas.MFCC)}

	pitchDist := dtw.CompareEarlyStop(asSeries(in.UserPitch), asSeries(in.MasterPitch), band, scalarDistance, earlyStop)
	pitch := Component{Distance: pitchDist, Similarity: dtw.Similarity(pitchDist, alphas.Pitch)}

	harmonicDist := dtw.CompareEarlyStop(asSeries(in.UserHarmonicCentroid), asSeries(in.MasterHarmonicCentroid), band, scalarDistance, earlyStop)
	harmonic := Component{Distance: harmonicDist, Similarity: dtw.Similarity(harmonicDist, alphas.Harmonic)}

	cadenceDist := cadenceDistance(in.UserOnsetsSec, in.MasterOnsetsSec)
	cadence := Component{Distance: cadenceDist, Similarity: dtw.Similarity(cadenceDist, alphas.Cadence)}

	loudnessDist := dtw.CompareEarlyStop(asSeries(in.UserLoudnessDBFS), asSeries(in.MasterLoudnessDBFS), band, scalarDistance, earlyStop)
	loudness := Component{Distance: loudnessDist, Similarity: dtw.Similarity(loudnessDist, alphas.Loudness)}

	components := ComponentScores{MFCC: mfcc, Pitch: pitch, Harmonic: harmonic, Cadence: cadence, Loudness: loudness}

	overall := fuse(weights, components)
	confidence := weightedGeometricMeanConfidence(weights, components)
	grade := GradeFor(overall)

	userF0Mean := meanOf(in.UserPitch)
	masterF0Mean := meanOf(in.MasterPitch)
	userCentroidMean := meanOf(in.UserHarmonicCentroid)
	masterCentroidMean := meanOf(in.MasterHarmonicCentroid)
	userBPM, userRhythm := EstimateIOIStats(in.UserOnsetsSec)
	masterBPM, _ := EstimateIOIStats(in.MasterOnsetsSec)
	normGain := features.NormalizationGainDB(in.LoudnessCfg, in.MasterLongTermRMSDBFS, in.UserLongTermRMSDBFS)

	diagnostics := Diagnostics{
		PitchF0MeanHz:      userF0Mean,
		PitchConfidence:    meanOf(in.UserPitchConfidence),
		SpectralCentroidHz: userCentroidMean,
		HarmonicConfidence: meanOf(in.UserHarmonicConfidence),
		TempoBPM:           userBPM,
		RhythmStrength:     userRhythm,
		LoudnessRMSDBFS:    meanOf(in.UserLoudnessDBFS),
		LoudnessPeakDBFS:   meanOf(in.UserLoudnessPeakDBFS),
		LoudnessNormGainDB: normGain,
		LoudnessAdvisory:   in.LoudnessAdvisory,
	}

	feedback := BuildCoachingFeedback(FeedbackInputs{
		UserF0Mean:      userF0Mean,
		MasterF0Mean:    masterF0Mean,
		NormGainDB:      normGain,
		UserBPM:         userBPM,
		MasterBPM:       masterBPM,
		UserCentroidHz:  userCentroidMean,
		MasterCentroidHz: masterCentroidMean,
	})

	return FinalScore{
		Overall:          overall,
		Confidence:       confidence,
		Grade:            grade,
		Components:       components,
		Diagnostics:      diagnostics,
		Feedback:         feedback,
		BestSegmentIndex: -1,
	}
}

func asSeries(xs []float64) []float64 {
	return xs
}

func scalarDistance(a, b float64) float64 {
	d := a - b
	return d * d
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

// cadenceDistance compares onset-time sequences by the absolute difference
// in EstimateIOIStats' mean BPM plus the absolute difference in its
// regularity figure, rather than DTW, since onset times (not a fixed-rate series)
// don't align to DTW's per-frame cost model (§4.5, §4.9 "Cadence").
func cadenceDistance(user, master []float64) float64 {
	if len(user) == 0 && len(master) == 0 {
		return 0
	}
	if len(user) == 0 || len(master) == 0 {
		return math.Inf(1)
	}
	userBPM, userRhythm := EstimateIOIStats(user)
	masterBPM, masterRhythm := EstimateIOIStats(master)
	bpmDiff := math.Abs(userBPM - masterBPM)
	rhythmDiff := math.Abs(userRhythm - masterRhythm)
	return bpmDiff + rhythmDiff
}

// EstimateIOIStats derives a mean-BPM and rhythm-regularity figure directly
// from onset timestamps. Finalize uses it for both the user's and the
// master's onsets, for the cadence distance and the tempo diagnostics; the
// cadence analyzer's autocorrelation tempo is not consulted there.
func EstimateIOIStats(onsetsSec []float64) (bpm, regularity float64) {
	if len(onsetsSec) < 2 {
		return 0, 0
	}
	iois := make([]float64, 0, len(onsetsSec)-1)
	for i := 1; i < len(onsetsSec); i++ {
		iois = append(iois, onsetsSec[i]-onsetsSec[i-1])
	}
	var mean float64
	for _, v := range iois {
		mean += v
	}
	mean /= float64(len(iois))
	if mean <= 0 {
		return 0, 0
	}
	bpm = 60 / mean

	var variance float64
	for _, v := range iois {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(iois))
	stddev := math.Sqrt(variance)
	if mean > 0 {
		regularity = 1 / (1 + stddev/mean)
	}
	return bpm, regularity
}

// fuse computes the weighted arithmetic mean of component similarities
// (§4.11 "Overall score"). Loudness is reported as its own component score
// but, per §4.11's fusion formula, does not carry a weight in the overall
// figure — only MFCC, pitch, harmonic, and cadence do.
func fuse(w Weights, c ComponentScores) float64 {
	total := w.MFCC + w.Pitch + w.Harmonic + w.Cadence
	if total == 0 {
		return 0
	}
	sum := w.MFCC*c.MFCC.Similarity +
		w.Pitch*c.Pitch.Similarity +
		w.Harmonic*c.Harmonic.Similarity +
		w.Cadence*c.Cadence.Similarity
	return sum / total
}

// weightedGeometricMeanConfidence computes confidence as the weighted
// geometric mean of component similarities (§4.11 "Confidence"), which
// penalizes a single very-low component more sharply than the arithmetic
// fuse used for Overall. It shares fuse's weight set, so loudness does not
// carry a weight here either.
func weightedGeometricMeanConfidence(w Weights, c ComponentScores) float64 {
	total := w.MFCC + w.Pitch + w.Harmonic + w.Cadence
	if total == 0 {
		return 0
	}
	const eps = 1e-6
	logSum := w.MFCC*math.Log(c.MFCC.Similarity+eps) +
		w.Pitch*math.Log(c.Pitch.Similarity+eps) +
		w.Harmonic*math.Log(c.Harmonic.Similarity+eps) +
		w.Cadence*math.Log(c.Cadence.Similarity+eps)
	return math.Exp(logSum / total)
}

// GradeBands are the lower-bound cutoffs for each letter grade (§4.11
// "Grading"); a score lands in the highest band whose bound it meets or
// exceeds. Boundary scores round up, i.e. a score exactly at a cutoff
// receives the higher grade.
var GradeBands = []struct {
	Grade Grade
	Min   float64
}{
	{GradeA, 0.90},
	{GradeB, 0.80},
	{GradeC, 0.65},
	{GradeD, 0.50},
	{GradeF, 0},
}

// GradeFor maps a fused overall score in [0,1] to a letter grade,
// deterministically and with round-up-at-boundary semantics (§4.11, §8
// "Grade monotonicity").
func GradeFor(overall float64) Grade {
	for _, band := range GradeBands {
		if overall >= band.Min {
			return band.Grade
		}
	}
	return GradeF
}

// FeedbackInputs bundles the raw user/master deltas §4.11's coaching rules
// threshold against.
type FeedbackInputs struct {
	UserF0Mean, MasterF0Mean         float64
	NormGainDB                       float64
	UserBPM, MasterBPM               float64
	UserCentroidHz, MasterCentroidHz float64
}

// BuildCoachingFeedback emits §4.11's literal rule-based tags, split into
// strength/improvement/tip lists:
//   - pitch %-diff vs master > 5% → improvement "pitch off by N%"; < 2% →
//     strength "pitch tightly matched".
//   - |normalization gain| > 6 dB → tip "adjust distance/gain by N dB".
//   - cadence BPM %-diff vs master > 10% → improvement.
//   - harmonic spectral-centroid %-diff vs master > 20% → improvement
//     "tone brightness off".
func BuildCoachingFeedback(in FeedbackInputs) CoachingFeedback {
	var fb CoachingFeedback

	if in.MasterF0Mean > 0 {
		pctDiff := math.Abs(in.UserF0Mean-in.MasterF0Mean) / in.MasterF0Mean
		switch {
		case pctDiff > 0.05:
			fb.Improvements = append(fb.Improvements, fmt.Sprintf("pitch off by %.0f%%", pctDiff*100))
		case pctDiff < 0.02:
			fb.Strengths = append(fb.Strengths, "pitch tightly matched")
		}
	}

	if math.Abs(in.NormGainDB) > 6 {
		fb.Tips = append(fb.Tips, fmt.Sprintf("adjust distance/gain by %.1f dB", in.NormGainDB))
	}

	if in.MasterBPM > 0 {
		bpmPctDiff := math.Abs(in.UserBPM-in.MasterBPM) / in.MasterBPM
		if bpmPctDiff > 0.10 {
			fb.Improvements = append(fb.Improvements, fmt.Sprintf("cadence off by %.0f%%", bpmPctDiff*100))
		}
	}

	if in.MasterCentroidHz > 0 {
		centroidPctDiff := math.Abs(in.UserCentroidHz-in.MasterCentroidHz) / in.MasterCentroidHz
		if centroidPctDiff > 0.20 {
			fb.Improvements = append(fb.Improvements, "tone brightness off")
		}
	}

	if len(fb.Strengths) == 0 && len(fb.Improvements) == 0 && len(fb.Tips) == 0 {
		fb.Strengths = append(fb.Strengths, "strong_match")
	}
	return fb
}
