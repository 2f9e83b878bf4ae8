// Package segment implements the voiced-interval bookkeeping and
// best-segment selection of §4.10: a tracker that accumulates the VAD's
// merged voiced intervals alongside the feature frames recorded during
// them, and a selector that picks the single segment most representative
// of a user's attempt when finalizing a session.
package segment

import (
	"github.com/huntmaster-academy/gamecalls-engine/internal/dtw"
	"github.com/huntmaster-academy/gamecalls-engine/internal/features"
	"github.com/huntmaster-academy/gamecalls-engine/internal/vad"
)

// Candidate is one tracked voiced interval plus the feature frames captured
// during it, ready for comparison against a master template (§4.10).
type Candidate struct {
	Segment       vad.Segment
	MFCC          []features.Vector
	VADConfidence float64 // mean RMS-dBFS margin above OnDBFS across this segment's hops
}

// Tracker accumulates every hop's MFCC frame and RMS level as audio streams
// in, then defers to the VAD's debounced, gap-merged segment boundaries when
// a finalize actually needs candidates (§4.10 "Segment Tracker"). Buffering
// every hop rather than closing a candidate the moment the raw hysteresis
// flips to silence is what lets §4.7's MinSoundMs/MinSilenceMs debounce apply
// to the candidates finalize sees, instead of only to a Segments() call
// nothing else made.
type Tracker struct {
	detector *vad.Detector

	allMFCC []features.Vector
	rmsDBFS []float64
}

// NewTracker builds a tracker wrapping a caller-owned VAD detector.
func NewTracker(detector *vad.Detector) *Tracker {
	return &Tracker{detector: detector}
}

// Observe feeds one hop's MFCC vector and loudness/flatness measurement
// into the VAD and the frame buffer, returning this hop's raw voiced flag so
// callers can tally it into other per-hop statistics (e.g. the loudness
// calibration advisor's voiced-only counts).
func (t *Tracker) Observe(mfcc features.Vector, rmsDBFS, spectralFlatness float64) bool {
	voiced := t.detector.ProcessHop(rmsDBFS, spectralFlatness)
	t.allMFCC = append(t.allMFCC, mfcc)
	t.rmsDBFS = append(t.rmsDBFS, rmsDBFS)
	return voiced
}

// Finalize asks the VAD for its finalized, debounced, merged segments and
// slices the buffered frames to match, computing each candidate's VAD
// confidence as the mean over-threshold margin (RMS dBFS above the VAD's
// OnDBFS entry threshold) across the segment's hops (§4.7, §3 "Segment"
// entity).
func (t *Tracker) Finalize() []Candidate {
	segments := t.detector.Segments()
	onDBFS := t.detector.OnDBFS()
	candidates := make([]Candidate, 0, len(segments))
	for _, seg := range segments {
		start, end := seg.StartHop, seg.EndHop
		if start < 0 {
			start = 0
		}
		if end > len(t.allMFCC) {
			end = len(t.allMFCC)
		}
		if start >= end {
			continue
		}

		var marginSum float64
		for _, r := range t.rmsDBFS[start:end] {
			marginSum += r - onDBFS
		}
		conf := marginSum / float64(end-start)

		candidates = append(candidates, Candidate{
			Segment:       seg,
			MFCC:          append([]features.Vector(nil), t.allMFCC[start:end]...),
			VADConfidence: conf,
		})
	}
	return candidates
}

// Reset clears all accumulated frames and the wrapped detector's state.
// ResetSession does not call it; it builds a fresh tracker through
// setMasterCallLocked instead.
func (t *Tracker) Reset() {
	t.allMFCC = nil
	t.rmsDBFS = nil
	t.detector.Reset()
}

// Scored pairs one tracked candidate with its MFCC-DTW distance against the
// master template, as computed by Select (§4.10).
type Scored struct {
	Candidate Candidate
	Distance  float64
	IsBest    bool
}

// Select scores every candidate against the master template and marks the
// winner, in original (start-time) order, so a caller can report the full
// segment list with isBest flags (§3 "Segment" entity). It returns
// ok=false when no candidate was tracked (the "no voiced audio" edge case).
func Select(candidates []Candidate, master []features.Vector, band int) (scored []Scored, bestIdx int, ok bool) {
	if len(candidates) == 0 {
		return nil, 0, false
	}

	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = Scored{Candidate: c, Distance: dtw.Compare(c.MFCC, master, band, features.Distance)}
	}

	best := 0
	for i := 1; i < len(out); i++ {
		if better(out[i], out[best]) {
			best = i
		}
	}
	out[best].IsBest = true
	return out, best, true
}

// SelectBest picks the candidate whose MFCC sequence has the lowest
// DTW distance to the master template, breaking ties first by higher VAD
// confidence, then by longer duration, then by earliest start (§4.10
// "Selection" and its tie-break rules). It returns ok=false when no
// candidate was tracked (the "no voiced audio" edge case).
func SelectBest(candidates []Candidate, master []features.Vector, band int) (best Candidate, distance float64, ok bool) {
	scored, bestIdx, ok := Select(candidates, master, band)
	if !ok {
		return Candidate{}, 0, false
	}
	return scored[bestIdx].Candidate, scored[bestIdx].Distance, true
}

func better(a, b Scored) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	if a.Candidate.VADConfidence != b.Candidate.VADConfidence {
		return a.Candidate.VADConfidence > b.Candidate.VADConfidence
	}
	aDur := a.Candidate.Segment.DurationHops()
	bDur := b.Candidate.Segment.DurationHops()
	if aDur != bDur {
		return aDur > bDur
	}
	return a.Candidate.Segment.StartHop < b.Candidate.Segment.StartHop
}
