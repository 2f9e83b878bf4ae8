package engine

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/huntmaster-academy/gamecalls-engine/internal/config"
	"github.com/huntmaster-academy/gamecalls-engine/internal/dsp"
	"github.com/huntmaster-academy/gamecalls-engine/internal/features"
	"github.com/huntmaster-academy/gamecalls-engine/internal/logging"
	"github.com/huntmaster-academy/gamecalls-engine/internal/mastercall"
	"github.com/huntmaster-academy/gamecalls-engine/internal/ringbuf"
	"github.com/huntmaster-academy/gamecalls-engine/internal/scoring"
	"github.com/huntmaster-academy/gamecalls-engine/internal/segment"
	"github.com/huntmaster-academy/gamecalls-engine/internal/vad"
)

// downgradeOrder is the fixed sequence §5's quality-tier downgrade disables
// analyzers in once a session runs over its per-chunk budget twice in a row:
// harmonic first, then cadence, then pitch.
var downgradeOrder = []string{"harmonic", "cadence", "pitch"}

// State is one of the session lifecycle states of §4.12.
type State int

const (
	StateCreated State = iota
	StateReady          // a master call is bound, audio can be pushed
	StateActive         // at least one chunk has been processed since ready/reset
	StateFinalized
	StateDestroyed
)

const readerID = "session"

// Session is a single user's practice attempt against one bound master
// call (§4.12). Every public method except Done acquires mu, matching §5's "per-session
// single-writer" rule: the mutex exists to make destroySession racing with
// an in-flight processAudioChunk safe, not to allow concurrent callers to
// usefully pipeline calls against one session.
type Session struct {
	mu    sync.Mutex
	state State

	resolved config.ResolvedConfig
	profile  config.Profile

	master *mastercall.Template

	ring        *ringbuf.Buffer
	mfcc        *features.Extractor
	pitch       *features.PitchTracker
	harmonic    *features.HarmonicAnalyzer
	cadence     *features.CadenceAnalyzer
	loudness    *features.LoudnessAnalyzer
	vadDetector *vad.Detector
	tracker     *segment.Tracker
	realtime    *scoring.RealtimeScorer

	framesProcessed int64
	lastFinal       *scoring.FinalScore

	logger *log.Logger

	// consecutiveOverBudget counts back-to-back ProcessAudioChunk calls that
	// exceeded profile.ChunkBudgetMs; two in a row triggers the next
	// downgrade tier (§5).
	consecutiveOverBudget int
	downgradeTier         int // index into downgradeOrder of the next tier to disable
	disabledComponents    []string

	// Whole-attempt series accumulated alongside the segment tracker, fed
	// to Finalize's per-component comparisons (§4.11). Only the MFCC
	// comparison restricts itself to the selected best segment (§4.10);
	// the other components compare across the full attempt, since pitch,
	// tone, cadence, and loudness judgments are meant to reflect the
	// user's whole take rather than just its most MFCC-similar slice.
	pitchHzSeries          []float64
	pitchConfidenceSeries  []float64
	harmonicCentroidSeries []float64
	harmonicConfidenceSeries []float64
	loudnessDBFSSeries     []float64
	loudnessPeakDBFSSeries []float64

	// generation guards against a destroyed session's in-flight goroutine
	// writing into reused memory; incremented on every destroy/reset.
	generation int64
	done       chan struct{}
}

// NewSession constructs a session in StateCreated, ready for setMasterCall
// (§4.12). A nil logger falls back to logging.Discard(), matching how tests
// construct sessions without caring about diagnostic output.
func NewSession(resolved config.ResolvedConfig, profile config.Profile, logger *log.Logger) *Session {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Session{
		state:    StateCreated,
		resolved: resolved,
		profile:  profile,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetMasterCall binds a loaded master-call template and (re)builds every
// per-session analyzer against it (§4.12 "setMasterCall"). It is valid from
// StateCreated, StateReady, StateActive (rebinding restarts the attempt),
// and StateFinalized, but not after destroySession.
func (s *Session) SetMasterCall(master *mastercall.Template) Result[struct{}] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMasterCallLocked(master)
}

// setMasterCallLocked does the actual rebuild; callers must already hold mu.
// Split out so ResetSession — which holds mu for its whole WrongState/
// NoMasterCall check — can reuse it without a double self-lock deadlock.
func (s *Session) setMasterCallLocked(master *mastercall.Template) Result[struct{}] {
	if s.state == StateDestroyed {
		return Fail[struct{}](newErr(ErrWrongState, "session destroyed"))
	}

	s.master = master
	s.ring = ringbuf.New(s.resolved.BufferSize, s.resolved.DropPolicy)
	s.ring.RegisterReader(readerID)

	mfccCfg := features.DefaultMFCCConfig(s.resolved.SampleRate)
	mfccCfg.Coefficients = s.resolved.MFCCCoefficients
	mfccCfg.Window = s.resolved.Window
	mfccCfg.FFTSize = s.resolved.FFTSize
	s.mfcc = features.NewExtractor(mfccCfg, s.resolved.FrameSamples)

	pitchCfg := features.DefaultPitchConfig(s.resolved.SampleRate)
	pitchCfg.FMin = s.resolved.PitchFMin
	pitchCfg.FMax = s.resolved.PitchFMax
	pitchCfg.Threshold = s.resolved.PitchThreshold
	pitchCfg.MedianK = s.resolved.PitchMedianK
	s.pitch = features.NewPitchTracker(pitchCfg, s.resolved.FrameSamples)

	s.harmonic = features.NewHarmonicAnalyzer(features.DefaultHarmonicConfig(s.resolved.SampleRate, mfccCfg.FFTSize))
	s.cadence = features.NewCadenceAnalyzer(features.DefaultCadenceConfig(s.resolved.SampleRate, mfccCfg.FFTSize, s.resolved.HopSamples))
	s.loudness = features.NewLoudnessAnalyzer(features.DefaultLoudnessConfig(s.resolved.SampleRate))

	vadCfg := vad.DefaultConfig(s.resolved.SampleRate, s.resolved.HopSamples)
	vadCfg.OnDBFS = s.resolved.VadEnergyOn
	vadCfg.OffDBFS = s.resolved.VadEnergyOff
	vadCfg.FlatnessOn = s.resolved.VadFlatnessOn
	vadCfg.FlatnessOff = s.resolved.VadFlatnessOff
	vadCfg.MinSoundMs = s.resolved.VadMinSoundMs
	vadCfg.MinSilenceMs = s.resolved.VadMinSilenceMs
	s.vadDetector = vad.NewDetector(vadCfg)
	s.tracker = segment.NewTracker(s.vadDetector)

	rtCfg := scoring.DefaultRealtimeConfig()
	rtCfg.Weights = s.profile.RealtimeWeights
	rtCfg.Alphas = s.profile.Alphas
	rtCfg.Band = s.profile.DTWBand
	s.realtime = scoring.NewRealtimeScorer(rtCfg, master.MFCC, master.PitchHz, master.LoudnessDBFS)

	s.framesProcessed = 0
	s.lastFinal = nil
	s.pitchHzSeries = nil
	s.pitchConfidenceSeries = nil
	s.harmonicCentroidSeries = nil
	s.harmonicConfidenceSeries = nil
	s.loudnessDBFSSeries = nil
	s.loudnessPeakDBFSSeries = nil
	s.consecutiveOverBudget = 0
	s.disabledComponents = nil
	if !s.resolved.EnablePitch {
		s.disabledComponents = append(s.disabledComponents, "pitch")
	}
	if !s.resolved.EnableHarmonic {
		s.disabledComponents = append(s.disabledComponents, "harmonic")
	}
	if !s.resolved.EnableCadence {
		s.disabledComponents = append(s.disabledComponents, "cadence")
	}
	// downgradeTier starts past whatever §6.4's enable flags already turned
	// off, so the §5 latency ladder's next disable doesn't re-append a name
	// this config already disabled.
	s.downgradeTier = 0
	for s.downgradeTier < len(downgradeOrder) && s.componentDisabled(downgradeOrder[s.downgradeTier]) {
		s.downgradeTier++
	}
	s.state = StateReady
	return Ok(struct{}{})
}

// ProcessAudioChunk appends raw samples and drains every full frame
// available, updating the realtime score along the way (§4.12
// "processAudioChunk"). Valid only in StateReady or StateActive.
func (s *Session) ProcessAudioChunk(samples []float64) Result[scoring.RealtimeResult] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady && s.state != StateActive {
		return Fail[scoring.RealtimeResult](newErr(ErrWrongState, "processAudioChunk requires Ready or Active"))
	}

	if err := s.ring.AppendChunk(samples); err != nil {
		if err == ringbuf.ErrInvalidAudio {
			return Fail[scoring.RealtimeResult](newErr(ErrInvalidAudioData, "chunk contains NaN/Inf"))
		}
		return Fail[scoring.RealtimeResult](newErr(ErrBackpressure, "ring buffer full"))
	}

	start := time.Now()
	var last scoring.RealtimeResult
	for {
		window, ok := s.ring.TakeWindow(readerID, s.resolved.FrameSamples, s.resolved.HopSamples)
		if !ok {
			break
		}
		last = s.processFrame(window)
		s.framesProcessed++
	}
	s.observeChunkLatency(time.Since(start))

	s.state = StateActive
	return Ok(last)
}

// observeChunkLatency implements §5's quality-tier downgrade: two
// ProcessAudioChunk calls in a row over profile.ChunkBudgetMs disables the
// next analyzer in downgradeOrder (harmonic, then cadence, then pitch) and
// logs a diagnostic. Caller holds mu.
func (s *Session) observeChunkLatency(elapsed time.Duration) {
	if s.profile.ChunkBudgetMs <= 0 {
		return
	}
	if float64(elapsed.Microseconds())/1000.0 <= s.profile.ChunkBudgetMs {
		s.consecutiveOverBudget = 0
		return
	}

	s.consecutiveOverBudget++
	if s.consecutiveOverBudget < 2 {
		return
	}
	s.consecutiveOverBudget = 0
	for s.downgradeTier < len(downgradeOrder) && s.componentDisabled(downgradeOrder[s.downgradeTier]) {
		s.downgradeTier++
	}
	if s.downgradeTier >= len(downgradeOrder) {
		return
	}
	disabled := downgradeOrder[s.downgradeTier]
	s.downgradeTier++
	s.disabledComponents = append(s.disabledComponents, disabled)
	s.logger.Warn("quality tier downgraded: chunk over budget twice in a row",
		"disabled", disabled, "budgetMs", s.profile.ChunkBudgetMs, "elapsedMs", elapsed.Seconds()*1000)
}

// componentDisabled reports whether analyzer name has been turned off, either
// by the session's enable flags (applied in setMasterCallLocked) or by
// observeChunkLatency's downgrade ladder.
func (s *Session) componentDisabled(name string) bool {
	for _, d := range s.disabledComponents {
		if d == name {
			return true
		}
	}
	return false
}

// processFrame runs one frame through every extractor and the realtime
// scorer, and feeds the segment tracker (§4.2-§4.8, §4.10). Caller holds mu.
func (s *Session) processFrame(frame []float64) scoring.RealtimeResult {
	mfccVec := s.mfcc.ProcessFrame(frame)

	pitchObs := features.PitchObservation{}
	if !s.componentDisabled("pitch") {
		pitchObs = s.pitch.ProcessFrame(frame)
	}

	spectrum := make([]float64, s.mfcc.FFTSize()/2)
	spectrum = s.mfcc.LastSpectrum(spectrum)

	if !s.componentDisabled("harmonic") {
		harmonicObs := s.harmonic.ProcessFrame(spectrum, pitchObs.F0, pitchObs.Voiced)
		s.harmonicCentroidSeries = append(s.harmonicCentroidSeries, harmonicObs.Centroid)
		s.harmonicConfidenceSeries = append(s.harmonicConfidenceSeries, harmonicObs.Confidence)
	}
	if !s.componentDisabled("cadence") {
		s.cadence.ProcessFrame(spectrum)
	}
	loudObs := s.loudness.ProcessFrame(frame)

	if pitchObs.Voiced {
		s.pitchHzSeries = append(s.pitchHzSeries, pitchObs.F0)
		s.pitchConfidenceSeries = append(s.pitchConfidenceSeries, pitchObs.Confidence)
	}
	s.loudnessDBFSSeries = append(s.loudnessDBFSSeries, loudObs.RMSDBFS)
	s.loudnessPeakDBFSSeries = append(s.loudnessPeakDBFSSeries, loudObs.PeakDBFS)

	spectralFlatness := dsp.SpectralFlatness(spectrum)
	voiced := s.tracker.Observe(mfccVec, loudObs.RMSDBFS, spectralFlatness)
	s.loudness.Tally(loudObs, voiced)

	if !s.resolved.EnableRealtime {
		return scoring.RealtimeResult{}
	}
	return s.realtime.Observe(mfccVec, pitchObs, loudObs.RMSDBFS)
}

// GetRealtimeSimilarity returns the most recent rolling similarity estimate
// without processing new audio (§4.12 "getRealtimeSimilarity"). Valid in
// StateActive; returns InsufficientData if too few frames have landed yet.
func (s *Session) GetRealtimeSimilarity() Result[scoring.RealtimeResult] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		return Fail[scoring.RealtimeResult](newErr(ErrWrongState, "getRealtimeSimilarity requires Active"))
	}
	if !s.resolved.EnableRealtime {
		return Fail[scoring.RealtimeResult](newErr(ErrInsufficientData, "realtime scoring disabled for this session"))
	}
	if s.framesProcessed < int64(s.realtime.MinFrames()) {
		return Fail[scoring.RealtimeResult](newErr(ErrInsufficientData, "not enough frames processed yet"))
	}
	return Ok(s.realtime.Last())
}

// FinalizeSessionAnalysis selects the best tracked segment, scores five
// components against the master template (banded DTW for MFCC, pitch,
// harmonic centroid, and loudness; onset-interval statistics for cadence),
// fuses every component except loudness into the overall score, and transitions
// to StateFinalized (§4.12 "finalizeSessionAnalysis", §4.10, §4.11).
func (s *Session) FinalizeSessionAnalysis() Result[scoring.FinalScore] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive {
		if s.state == StateFinalized && s.lastFinal != nil {
			// §8: calling finalizeSessionAnalysis twice on the same session
			// returns identical summaries rather than erroring the second
			// time.
			return Ok(*s.lastFinal)
		}
		return Fail[scoring.FinalScore](newErr(ErrWrongState, "finalizeSessionAnalysis requires Active"))
	}
	if s.master == nil {
		return Fail[scoring.FinalScore](newErr(ErrNoMasterCall, "no master call bound"))
	}

	finalizeBand := int(s.resolved.DTWBandRatio * float64(len(s.master.MFCC)))
	if finalizeBand < 1 {
		finalizeBand = 1
	}

	candidates := s.tracker.Finalize()
	scored, bestIdx, ok := segment.Select(candidates, s.master.MFCC, finalizeBand)
	if !ok {
		// No voiced audio at all (empty or all-silence session) is a
		// degraded-but-valid outcome, not a failure: the session still
		// reaches StateFinalized with a zeroed, flagged summary (§7, §8).
		degraded := scoring.NoVoicedAudioResult()
		s.lastFinal = &degraded
		s.state = StateFinalized
		return Ok(degraded)
	}
	best := scored[bestIdx].Candidate

	hopSeconds := float64(s.resolved.HopSamples) / float64(s.resolved.SampleRate)
	segments := make([]scoring.SegmentSummary, len(scored))
	for i, sc := range scored {
		segments[i] = scoring.SegmentSummary{
			StartSec:      float64(sc.Candidate.Segment.StartHop) * hopSeconds,
			EndSec:        float64(sc.Candidate.Segment.EndHop) * hopSeconds,
			VADConfidence: sc.Candidate.VADConfidence,
			Distance:      sc.Distance,
			IsBest:        sc.IsBest,
		}
	}

	in := scoring.SequenceInput{
		UserMFCC:               best.MFCC,
		MasterMFCC:             s.master.MFCC,
		UserPitch:              s.pitchHzSeries,
		MasterPitch:            s.master.PitchHz,
		UserPitchConfidence:    s.pitchConfidenceSeries,
		UserHarmonicCentroid:   s.harmonicCentroidSeries,
		MasterHarmonicCentroid: s.master.HarmonicCentroid,
		UserHarmonicConfidence: s.harmonicConfidenceSeries,
		UserOnsetsSec:          s.cadence.OnsetTimesSec(),
		MasterOnsetsSec:        s.master.OnsetsSec,
		UserLoudnessDBFS:       s.loudnessDBFSSeries,
		MasterLoudnessDBFS:     s.master.LoudnessDBFS,
		UserLoudnessPeakDBFS:   s.loudnessPeakDBFSSeries,
		UserLongTermRMSDBFS:    s.loudness.LongTermRMSDBFS(),
		MasterLongTermRMSDBFS:  s.master.LongTermRMSDBFS,
		LoudnessCfg:            features.DefaultLoudnessConfig(s.resolved.SampleRate),
		LoudnessAdvisory:       s.loudness.Advisory(),
	}
	final := scoring.Finalize(in, s.resolved.FusionWeights, s.profile.Alphas, finalizeBand, s.resolved.DTWEarlyStop)
	final.DisabledComponents = s.disabledComponents
	final.BestSegmentIndex = bestIdx
	final.Segments = segments

	s.lastFinal = &final
	s.state = StateFinalized
	return Ok(final)
}

// GetEnhancedSummary returns the last finalize result along with basic
// session telemetry (§4.12 "getEnhancedSummary"). Valid only after a
// successful finalize.
func (s *Session) GetEnhancedSummary() Result[Summary] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateFinalized || s.lastFinal == nil {
		return Fail[Summary](newErr(ErrWrongState, "getEnhancedSummary requires a completed finalize"))
	}
	return Ok(Summary{
		Final:           *s.lastFinal,
		FramesProcessed: s.framesProcessed,
		DropCount:       s.ring.DropCount(),
	})
}

// Summary is the payload of getEnhancedSummary (§4.12).
type Summary struct {
	Final           scoring.FinalScore
	FramesProcessed int64
	DropCount       int64
}

// ResetSession returns a session bound to the same master call to
// StateReady, clearing every analyzer's accumulated state (§4.12
// "resetSession"). Valid from StateActive or StateFinalized.
func (s *Session) ResetSession() Result[struct{}] {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive && s.state != StateFinalized {
		return Fail[struct{}](newErr(ErrWrongState, "resetSession requires Active or Finalized"))
	}
	if s.master == nil {
		return Fail[struct{}](newErr(ErrNoMasterCall, "no master call bound"))
	}

	master := s.master
	s.generation++
	return s.setMasterCallLocked(master)
}

// Destroy transitions the session to StateDestroyed and releases its
// generation channel, unblocking any goroutine parked on Done() (§4.12
// "destroySession", §5 "session-generation/done-channel pattern").
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDestroyed {
		return
	}
	s.state = StateDestroyed
	s.generation++
	if s.ring != nil {
		s.ring.Close()
	}
	close(s.done)
}

// Done returns a channel closed once the session is destroyed. It does not
// acquire mu; Engine.Dispatch does not consult it.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
