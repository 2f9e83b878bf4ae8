// Package scoring implements §4.8's realtime scorer, §4.11's finalize
// fusion/grading, and the rule-based coaching feedback tags both stages
// emit. It is grounded on the teacher's weighted-component fusion in
// internal/analysis/similarity.go (CompareFeatures' per-feature distance
// weighting, normalized into [0,1] and combined by a configurable weight
// vector) generalized from a flat feature-vector comparison into the
// spec's five named components (MFCC, pitch, harmonic, cadence, loudness).
package scoring

import (
	"math"

	"github.com/huntmaster-academy/gamecalls-engine/internal/dtw"
	"github.com/huntmaster-academy/gamecalls-engine/internal/features"
)

// Weights assigns each finalize component's contribution to the fused
// overall score (§4.11 "Fusion"). Loudness is scored and reported as its
// own component but, per §4.11's fusion formula, carries no weight of its
// own here. They need not sum to 1; fuse normalizes.
type Weights struct {
	MFCC     float64
	Pitch    float64
	Harmonic float64
	Cadence  float64
}

// DefaultWeights matches §4.11's stated default fusion weights.
func DefaultWeights() Weights {
	return Weights{MFCC: 0.4, Pitch: 0.25, Harmonic: 0.2, Cadence: 0.15}
}

// RealtimeWeights assigns each rolling-similarity component's contribution
// (§4.8 "Weights in fused realtime similarity"). They need not sum to 1;
// Observe normalizes.
type RealtimeWeights struct {
	MFCC   float64
	Pitch  float64
	Volume float64
}

// DefaultRealtimeWeights matches §4.8's stated defaults (wM, wP, wV).
func DefaultRealtimeWeights() RealtimeWeights {
	return RealtimeWeights{MFCC: 0.5, Pitch: 0.3, Volume: 0.2}
}

// Alphas holds the per-component exp(-alpha*distance) decay constants
// (§4.9), exposed as tunables per the Open Question on configurability.
type Alphas struct {
	MFCC     float64
	Pitch    float64
	Harmonic float64
	Cadence  float64
	Loudness float64
}

// DefaultAlphas matches §6.4's stated defaults.
func DefaultAlphas() Alphas {
	return Alphas{MFCC: 0.05, Pitch: 0.02, Harmonic: 0.3, Cadence: 0.15, Loudness: 0.2}
}

// RealtimeConfig bundles the scorer's tunables.
type RealtimeConfig struct {
	Weights      RealtimeWeights
	Alphas       Alphas
	WindowFrames int // trailing window compared against the master on each tick, §4.8
	Band         int // Sakoe-Chiba band for the partial DTW
	MinFramesForReadiness int // §4.8 "Readiness gating"
	MinScoreForMatch      float64 // §4.8 "Readiness" — a qualifying similarity must be observed at least once
}

// DefaultRealtimeConfig matches §4.8's stated defaults.
func DefaultRealtimeConfig() RealtimeConfig {
	return RealtimeConfig{
		Weights:               DefaultRealtimeWeights(),
		Alphas:                DefaultAlphas(),
		WindowFrames:          50,
		Band:                  10,
		MinFramesForReadiness: 10,
		MinScoreForMatch:      0.3,
	}
}

// RealtimeResult is one tick's rolling similarity estimate (§4.8).
type RealtimeResult struct {
	Similarity float64
	Ready      bool
	MFCCDistance float64
}

// RealtimeScorer maintains a rolling MFCC comparison against a trailing
// window of the master template, suitable for a sub-frame-budget call on
// every processAudioChunk (§4.8). Unlike the final comparator it only scores
// MFCC plus a lightweight pitch/volume nudge — full five-component fusion is
// reserved for finalize (§4.11), where latency no longer matters.
type RealtimeScorer struct {
	cfg                 RealtimeConfig
	master              []features.Vector
	masterPitchHz       []float64
	masterLoudnessDBFS  []float64

	frames []features.Vector
	pitch  []features.PitchObservation
	rms    []float64
	last   RealtimeResult

	seenQualifyingScore bool
}

// NewRealtimeScorer builds a scorer bound to one master-call template's
// MFCC, pitch, and loudness sequences, the three series §4.8's fused
// realtime similarity (wM·sMFCC + wP·sPitch + wV·sVolume) compares against.
func NewRealtimeScorer(cfg RealtimeConfig, masterMFCC []features.Vector, masterPitchHz, masterLoudnessDBFS []float64) *RealtimeScorer {
	return &RealtimeScorer{
		cfg:                cfg,
		master:             masterMFCC,
		masterPitchHz:      masterPitchHz,
		masterLoudnessDBFS: masterLoudnessDBFS,
	}
}

// Observe appends one hop's measurements and recomputes the rolling score
// (§4.8). The master window is anchored at the same relative progress
// fraction through the template as the accumulated user frames, since
// partial DTW (and the pitch/volume trailing-window comparison) on a short
// window needs a roughly aligned master slice.
func (r *RealtimeScorer) Observe(mfcc features.Vector, pitch features.PitchObservation, rmsDBFS float64) RealtimeResult {
	r.frames = append(r.frames, mfcc)
	r.pitch = append(r.pitch, pitch)
	r.rms = append(r.rms, rmsDBFS)

	if len(r.frames) < r.cfg.MinFramesForReadiness {
		r.last = RealtimeResult{Ready: false}
		return r.last
	}

	window := r.frames
	if len(window) > r.cfg.WindowFrames {
		window = window[len(window)-r.cfg.WindowFrames:]
	}
	masterWindow := windowSlice(r.master, len(r.frames), r.cfg.WindowFrames)

	dist, _ := dtw.PartialCompare(window, masterWindow, r.cfg.Band, features.Distance, math.MaxFloat64)
	sMFCC := dtw.Similarity(dist, r.cfg.Alphas.MFCC)

	sPitch := r.rollingPitchSimilarity()
	sVolume := r.rollingVolumeSimilarity()

	w := r.cfg.Weights
	total := w.MFCC + w.Pitch + w.Volume
	sim := sMFCC
	if total > 0 {
		sim = (w.MFCC*sMFCC + w.Pitch*sPitch + w.Volume*sVolume) / total
	}

	if sim >= r.cfg.MinScoreForMatch {
		r.seenQualifyingScore = true
	}

	r.last = RealtimeResult{
		Similarity:   sim,
		Ready:        r.seenQualifyingScore,
		MFCCDistance: dist,
	}
	return r.last
}

// windowSlice returns the trailing window of xs anchored at the same
// progress fraction through a master series of the same kind as frames is
// through the user's accumulated observations so far.
func windowSlice[T any](master []T, framesSoFar, windowFrames int) []T {
	if len(master) <= windowFrames {
		return master
	}
	frac := float64(framesSoFar) / float64(framesSoFar+windowFrames)
	start := int(frac * float64(len(master)-windowFrames))
	if start < 0 {
		start = 0
	}
	if start+windowFrames > len(master) {
		start = len(master) - windowFrames
	}
	return master[start : start+windowFrames]
}

// rollingPitchSimilarity compares the trailing window's mean voiced f0
// against the correspondingly anchored slice of the master's pitch contour
// (§4.8 "sPitch"). Unvoiced windows on either side map to zero similarity
// rather than a division by zero.
func (r *RealtimeScorer) rollingPitchSimilarity() float64 {
	userMean := meanVoicedF0(windowSlice(r.pitch, len(r.pitch), r.cfg.WindowFrames))
	masterMean := meanF0(windowSlice(r.masterPitchHz, len(r.pitch), r.cfg.WindowFrames))
	if userMean <= 0 || masterMean <= 0 {
		return 0
	}
	relDiff := math.Abs(userMean-masterMean) / masterMean
	return dtw.Similarity(relDiff, r.cfg.Alphas.Pitch)
}

// rollingVolumeSimilarity compares the trailing window's mean RMS dBFS
// against the correspondingly anchored slice of the master's loudness
// envelope (§4.8 "sVolume").
func (r *RealtimeScorer) rollingVolumeSimilarity() float64 {
	userMean := mean(windowSlice(r.rms, len(r.rms), r.cfg.WindowFrames))
	masterMean := mean(windowSlice(r.masterLoudnessDBFS, len(r.rms), r.cfg.WindowFrames))
	if masterMean == 0 && userMean == 0 {
		return 1
	}
	diffDB := math.Abs(userMean - masterMean)
	return dtw.Similarity(diffDB, r.cfg.Alphas.Loudness)
}

func meanVoicedF0(obs []features.PitchObservation) float64 {
	var sum float64
	var n int
	for _, o := range obs {
		if o.Voiced {
			sum += o.F0
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func meanF0(hz []float64) float64 {
	var sum float64
	var n int
	for _, v := range hz {
		if v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range xs {
		sum += v
	}
	return sum / float64(len(xs))
}

// MinFrames returns the minimum number of processed frames before
// getRealtimeSimilarity stops returning InsufficientData (§4.8 "Readiness
// gating").
func (r *RealtimeScorer) MinFrames() int { return r.cfg.MinFramesForReadiness }

// Last returns the most recently computed result without recomputing it.
func (r *RealtimeScorer) Last() RealtimeResult { return r.last }

// Reset clears all rolling state. ResetSession does not call it; it builds
// a fresh scorer through setMasterCallLocked instead.
func (r *RealtimeScorer) Reset() {
	r.frames = nil
	r.pitch = nil
	r.rms = nil
	r.last = RealtimeResult{}
	r.seenQualifyingScore = false
}
