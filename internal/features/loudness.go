package features

import "math"

// LoudnessConfig bundles §6.4's loudness tunables.
type LoudnessConfig struct {
	SampleRate     int
	OverloadDBFS   float64 // default -1.0, flags clipping risk
	LowLevelDBFS   float64 // default -40.0, flags a too-quiet input
	MaxGainDB      float64 // default +24
	MinGainDB      float64 // default -24
}

// DefaultLoudnessConfig matches §4.6's stated defaults.
func DefaultLoudnessConfig(sampleRate int) LoudnessConfig {
	return LoudnessConfig{
		SampleRate:   sampleRate,
		OverloadDBFS: -1.0,
		LowLevelDBFS: -40.0,
		MaxGainDB:    24,
		MinGainDB:    -24,
	}
}

// LoudnessObservation is one hop's level measurement (§3 FeatureFrame).
type LoudnessObservation struct {
	RMSDBFS  float64
	PeakDBFS float64
	Overload bool
	LowLevel bool
}

// LoudnessAnalyzer measures per-hop RMS and peak level in dBFS and tracks a
// running long-term RMS for the normalization-gain calculation (§4.6). It
// mirrors the teacher's computeRMS/computeSpectralCentroid accumulation
// style in internal/analysis/features.go: a simple running sum kept across
// calls rather than a full history buffer.
type LoudnessAnalyzer struct {
	cfg LoudnessConfig

	sumSquares  float64
	sampleCount int64

	voicedFrames   int64
	overloadFrames int64
	lowLevelFrames int64
	peakMaxDBFS    float64
}

// NewLoudnessAnalyzer builds an analyzer for one session.
func NewLoudnessAnalyzer(cfg LoudnessConfig) *LoudnessAnalyzer {
	return &LoudnessAnalyzer{cfg: cfg, peakMaxDBFS: -120}
}

// ProcessFrame measures one hop's RMS/peak level and updates the long-term
// running RMS accumulator (§4.6).
func (l *LoudnessAnalyzer) ProcessFrame(frame []float64) LoudnessObservation {
	var sumSq, peak float64
	for _, s := range frame {
		sumSq += s * s
		if abs := math.Abs(s); abs > peak {
			peak = abs
		}
	}
	rms := math.Sqrt(sumSq / float64(len(frame)))

	l.sumSquares += sumSq
	l.sampleCount += int64(len(frame))

	rmsDB := amplitudeToDBFS(rms)
	peakDB := amplitudeToDBFS(peak)

	return LoudnessObservation{
		RMSDBFS:  rmsDB,
		PeakDBFS: peakDB,
		Overload: peakDB > l.cfg.OverloadDBFS,
		LowLevel: rmsDB < l.cfg.LowLevelDBFS,
	}
}

// Tally folds one hop's observation into the calibration advisor's running
// counts (§4.6 "Calibration advisor"). Only voiced hops count toward the
// overload/low-level fractions — a quiet gap between calls shouldn't make a
// properly-calibrated recording look under-level.
func (l *LoudnessAnalyzer) Tally(obs LoudnessObservation, voiced bool) {
	if !voiced {
		return
	}
	l.voicedFrames++
	if obs.Overload {
		l.overloadFrames++
	}
	if obs.LowLevel {
		l.lowLevelFrames++
	}
	if obs.PeakDBFS > l.peakMaxDBFS {
		l.peakMaxDBFS = obs.PeakDBFS
	}
}

// CalibrationAdvisory is §4.6's headroom/overload/low-level report, derived
// from every voiced hop tallied so far.
type CalibrationAdvisory struct {
	OverloadFlag      bool    // peak > -1 dBFS for > 1% of voiced frames
	LowLevelFlag      bool    // RMS < -40 dBFS for > 50% of voiced frames
	OverloadFraction  float64
	LowLevelFraction  float64
	PeakHeadroomDB    float64 // margin of the loudest voiced peak below 0 dBFS
}

// Advisory computes the calibration advisory over every voiced hop tallied
// so far (§4.6). It returns a zero-value advisory if no voiced hop was ever
// tallied.
func (l *LoudnessAnalyzer) Advisory() CalibrationAdvisory {
	if l.voicedFrames == 0 {
		return CalibrationAdvisory{}
	}
	overloadFrac := float64(l.overloadFrames) / float64(l.voicedFrames)
	lowLevelFrac := float64(l.lowLevelFrames) / float64(l.voicedFrames)
	return CalibrationAdvisory{
		OverloadFlag:     overloadFrac > 0.01,
		LowLevelFlag:     lowLevelFrac > 0.5,
		OverloadFraction: overloadFrac,
		LowLevelFraction: lowLevelFrac,
		PeakHeadroomDB:   -l.peakMaxDBFS,
	}
}

// LongTermRMSDBFS returns the RMS in dBFS across every sample processed so
// far, used for the master-vs-user normalization gain (§4.6).
func (l *LoudnessAnalyzer) LongTermRMSDBFS() float64 {
	if l.sampleCount == 0 {
		return math.Inf(-1)
	}
	rms := math.Sqrt(l.sumSquares / float64(l.sampleCount))
	return amplitudeToDBFS(rms)
}

func amplitudeToDBFS(amplitude float64) float64 {
	if amplitude <= 0 {
		return -120 // floor, avoids -Inf propagating into scoring math
	}
	db := 20 * math.Log10(amplitude)
	if db < -120 {
		return -120
	}
	return db
}

// NormalizationGainDB returns the gain, clamped to
// [cfg.MinGainDB, cfg.MaxGainDB], that would bring userRMSDBFS up to
// masterRMSDBFS (§4.6 "Calibration").
func NormalizationGainDB(cfg LoudnessConfig, masterRMSDBFS, userRMSDBFS float64) float64 {
	gain := masterRMSDBFS - userRMSDBFS
	if gain > cfg.MaxGainDB {
		return cfg.MaxGainDB
	}
	if gain < cfg.MinGainDB {
		return cfg.MinGainDB
	}
	return gain
}
