package features

import "math"

// CadenceConfig bundles §6.4's cadence tunables.
type CadenceConfig struct {
	SampleRate     int
	FFTSize        int
	HopSamples     int
	RefractoryMs   float64 // default 50ms
	MinIOIMs       float64 // default 200ms
	MaxIOIMs       float64 // default 2000ms
	OnsetDeltaK    float64 // adaptive-median threshold multiplier
}

// DefaultCadenceConfig matches §4.5's stated defaults.
func DefaultCadenceConfig(sampleRate, fftSize, hop int) CadenceConfig {
	return CadenceConfig{
		SampleRate:   sampleRate,
		FFTSize:      fftSize,
		HopSamples:   hop,
		RefractoryMs: 50,
		MinIOIMs:     200,
		MaxIOIMs:     2000,
		OnsetDeltaK:  1.5,
	}
}

// CadenceObservation is one frame's cadence signal (§3 FeatureFrame).
type CadenceObservation struct {
	OnsetStrength float64
	IsOnset       bool
	InterOnsetMs  float64 // 0 until a second onset has been observed
}

// CadenceAnalyzer computes spectral-flux onsets and, once enough onsets have
// accumulated, an autocorrelation-based tempo estimate (§4.5). It follows the
// shape of the teacher's FeatureExtractor.estimateTempo (autocorrelate an
// onset-strength sequence over an inter-onset-interval-bounded lag range)
// but separates onset *detection* (adaptive median + refractory period, a
// capability the teacher's always-accept "if flux > 0" check lacked) from
// the tempo estimate itself.
type CadenceAnalyzer struct {
	cfg CadenceConfig

	prevSpectrum   []float64
	fluxHistory    []float64
	onsetTimesSec  []float64
	frameIndex     int
	lastOnsetFrame int
	hopSeconds     float64
}

// NewCadenceAnalyzer builds an analyzer for one session.
func NewCadenceAnalyzer(cfg CadenceConfig) *CadenceAnalyzer {
	return &CadenceAnalyzer{
		cfg:            cfg,
		lastOnsetFrame: -1 << 30,
		hopSeconds:     float64(cfg.HopSamples) / float64(cfg.SampleRate),
	}
}

// ProcessFrame computes spectral flux and peak-picks an onset (§4.5).
func (c *CadenceAnalyzer) ProcessFrame(spectrum []float64) CadenceObservation {
	flux := spectralFlux(spectrum, c.prevSpectrum)
	if c.prevSpectrum == nil {
		c.prevSpectrum = make([]float64, len(spectrum))
	}
	copy(c.prevSpectrum, spectrum)

	c.fluxHistory = append(c.fluxHistory, flux)
	isOnset := c.pickOnset(flux)

	var interOnsetMs float64
	if isOnset {
		nowSec := float64(c.frameIndex) * c.hopSeconds
		if len(c.onsetTimesSec) > 0 {
			interOnsetMs = (nowSec - c.onsetTimesSec[len(c.onsetTimesSec)-1]) * 1000
		}
		c.onsetTimesSec = append(c.onsetTimesSec, nowSec)
		c.lastOnsetFrame = c.frameIndex
	}
	c.frameIndex++

	return CadenceObservation{OnsetStrength: flux, IsOnset: isOnset, InterOnsetMs: interOnsetMs}
}

func spectralFlux(cur, prev []float64) float64 {
	var flux float64
	for i := 0; i < len(cur) && i < len(prev); i++ {
		diff := cur[i] - prev[i]
		if diff > 0 {
			flux += diff
		}
	}
	return flux
}

// pickOnset applies an adaptive local-median threshold with a refractory
// period (§4.5).
func (c *CadenceAnalyzer) pickOnset(flux float64) bool {
	refractoryFrames := int(c.cfg.RefractoryMs / 1000 / c.hopSeconds)
	if c.frameIndex-c.lastOnsetFrame < refractoryFrames {
		return false
	}

	const window = 10
	start := len(c.fluxHistory) - window
	if start < 0 {
		start = 0
	}
	local := c.fluxHistory[start:]
	med := medianOf(local)
	return flux > med*c.cfg.OnsetDeltaK && flux > 0
}

// Tempo estimates BPM and a rhythm-strength ratio from the accumulated
// per-frame onset-strength (spectral flux) history, via autocorrelation over
// the inter-onset-interval range [MinIOIMs, MaxIOIMs] (§4.5).
func (c *CadenceAnalyzer) Tempo() (bpm, rhythmStrength float64) {
	return EstimateTempo(c.fluxHistory, c.hopSeconds, c.cfg.MinIOIMs, c.cfg.MaxIOIMs)
}

// OnsetTimesSec returns the accumulated onset times in seconds, used by the
// final scorer's inter-onset-interval cadence comparison (§4.9).
func (c *CadenceAnalyzer) OnsetTimesSec() []float64 {
	return c.onsetTimesSec
}

// EstimateTempo autocorrelates an onset-strength sequence over the lag range
// implied by [minIOIMs, maxIOIMs] and returns BPM plus the ratio of the
// autocorrelation peak to its mean (rhythm strength, §4.5).
func EstimateTempo(onsetStrengths []float64, hopSeconds, minIOIMs, maxIOIMs float64) (bpm, rhythmStrength float64) {
	if len(onsetStrengths) < 10 || hopSeconds <= 0 {
		return 0, 0
	}

	minLag := int(minIOIMs / 1000 / hopSeconds)
	maxLag := int(maxIOIMs / 1000 / hopSeconds)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(onsetStrengths) {
		maxLag = len(onsetStrengths) - 1
	}
	if maxLag <= minLag {
		return 0, 0
	}

	corrs := make([]float64, 0, maxLag-minLag+1)
	bestLag, bestCorr := minLag, -math.MaxFloat64
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i < len(onsetStrengths)-lag; i++ {
			corr += onsetStrengths[i] * onsetStrengths[i+lag]
		}
		corrs = append(corrs, corr)
		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	var meanCorr float64
	for _, c := range corrs {
		meanCorr += c
	}
	meanCorr /= float64(len(corrs))
	if meanCorr > 0 {
		rhythmStrength = bestCorr / meanCorr
	}

	bpm = 60 / (float64(bestLag) * hopSeconds)
	return bpm, rhythmStrength
}
