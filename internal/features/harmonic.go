package features

import (
	"math"

	"github.com/huntmaster-academy/gamecalls-engine/internal/dsp"
)

// HarmonicConfig bundles §6.4's harmonic tunables.
type HarmonicConfig struct {
	SampleRate  int
	FFTSize     int
	MaxHarmonics int     // H, up to 8 per §4.4
	MaxFormants  int     // up to 4 per §4.4
	FMin         float64 // floor for "global max above fmin" fallback
	RejectBelowDB float64 // reject harmonic peaks below this, relative to fundamental
}

// DefaultHarmonicConfig matches §4.4's stated defaults.
func DefaultHarmonicConfig(sampleRate, fftSize int) HarmonicConfig {
	return HarmonicConfig{
		SampleRate:    sampleRate,
		FFTSize:       fftSize,
		MaxHarmonics:  8,
		MaxFormants:   4,
		FMin:          60,
		RejectBelowDB: -40,
	}
}

// HarmonicObservation is one frame's harmonic analysis (§3 FeatureFrame).
type HarmonicObservation struct {
	Centroid    float64
	HNR         float64 // harmonic-bin energy over the energy in all other bins
	Formants    []float64
	Confidence  float64
}

// HarmonicAnalyzer assesses tonal quality from the FFT magnitude spectrum
// (§4.4). Its formant band scan is adapted from the teacher's
// internal/analysis/instruments.go InstrumentDetector, which used the same
// F1/F2/F3 vocal-formant bands to classify instrument timbre; here centroid,
// harmonic energy, and formants become the quality signal instead of an
// instrument label. No even/odd harmonic ratio is computed.
type HarmonicAnalyzer struct {
	cfg       HarmonicConfig
	freqPerBin float64
}

// NewHarmonicAnalyzer builds an analyzer for one session.
func NewHarmonicAnalyzer(cfg HarmonicConfig) *HarmonicAnalyzer {
	return &HarmonicAnalyzer{
		cfg:        cfg,
		freqPerBin: float64(cfg.SampleRate) / float64(cfg.FFTSize),
	}
}

// ProcessFrame analyzes one magnitude spectrum. f0Hz is the pitch tracker's
// estimate for this frame when voiced; pass 0 when unvoiced so the analyzer
// falls back to the global peak above FMin (§4.4).
func (h *HarmonicAnalyzer) ProcessFrame(spectrum []float64, f0Hz float64, voiced bool) HarmonicObservation {
	fundamentalBin := h.fundamentalBin(spectrum, f0Hz, voiced)

	var frameEnergy float64
	for _, v := range spectrum {
		frameEnergy += v * v
	}

	harmonicEnergy, _ := h.harmonicEnergy(spectrum, fundamentalBin)
	hnr := 0.0
	if frameEnergy > 0 {
		hnr = harmonicEnergy / math.Max(frameEnergy-harmonicEnergy, 1e-10)
	}

	confidence := 0.0
	if frameEnergy > 0 {
		confidence = math.Min(1, harmonicEnergy/frameEnergy)
	}

	return HarmonicObservation{
		Centroid:   dsp.SpectralCentroid(spectrum, h.cfg.SampleRate, h.cfg.FFTSize),
		HNR:        hnr,
		Formants:   h.formants(spectrum),
		Confidence: confidence,
	}
}

func (h *HarmonicAnalyzer) fundamentalBin(spectrum []float64, f0Hz float64, voiced bool) int {
	if voiced && f0Hz > 0 {
		bin := int(math.Round(f0Hz / h.freqPerBin))
		if bin >= 0 && bin < len(spectrum) {
			return bin
		}
	}
	minBin := int(h.cfg.FMin / h.freqPerBin)
	best, bestVal := 0, 0.0
	for i := minBin; i < len(spectrum); i++ {
		if spectrum[i] > bestVal {
			bestVal = spectrum[i]
			best = i
		}
	}
	return best
}

// harmonicEnergy sums energy at up to MaxHarmonics integer multiples of the
// fundamental, snapping to the nearest bin and rejecting any harmonic more
// than RejectBelowDB quieter than the fundamental (§4.4).
func (h *HarmonicAnalyzer) harmonicEnergy(spectrum []float64, fundamentalBin int) (float64, []int) {
	if fundamentalBin <= 0 {
		return 0, nil
	}
	fundamentalMag := spectrum[fundamentalBin]
	if fundamentalMag <= 0 {
		return 0, nil
	}
	var energy float64
	bins := make([]int, 0, h.cfg.MaxHarmonics)
	for k := 1; k <= h.cfg.MaxHarmonics; k++ {
		bin := fundamentalBin * k
		if bin >= len(spectrum) {
			break
		}
		mag := spectrum[bin]
		db := 20 * math.Log10((mag+1e-12)/(fundamentalMag+1e-12))
		if db < h.cfg.RejectBelowDB {
			continue
		}
		energy += mag * mag
		bins = append(bins, bin)
	}
	return energy, bins
}

// formantBands are the classic vocal formant ranges also used by the
// teacher's detectVocals for F1/F2/F3; we search a fourth, higher band to
// satisfy §4.4's "up to 4 formant estimates".
var formantBands = [4][2]float64{
	{300, 800},
	{800, 2500},
	{2500, 3500},
	{3500, 4500},
}

// formants picks the strongest smoothed peak inside each formant band,
// band-limited and minimum-distance-separated as §4.4 requires.
func (h *HarmonicAnalyzer) formants(spectrum []float64) []float64 {
	smoothed := smoothSpectrum(spectrum)
	out := make([]float64, 0, h.cfg.MaxFormants)
	var lastFreq float64
	const minSeparation = 150 // Hz
	for i, band := range formantBands {
		if i >= h.cfg.MaxFormants {
			break
		}
		lo := int(band[0] / h.freqPerBin)
		hi := int(band[1] / h.freqPerBin)
		if hi > len(smoothed) {
			hi = len(smoothed)
		}
		bestBin, bestVal := -1, 0.0
		for b := lo; b < hi; b++ {
			if smoothed[b] > bestVal {
				bestVal = smoothed[b]
				bestBin = b
			}
		}
		if bestBin < 0 {
			continue
		}
		freq := float64(bestBin) * h.freqPerBin
		if freq-lastFreq < minSeparation && len(out) > 0 {
			continue
		}
		out = append(out, freq)
		lastFreq = freq
	}
	return out
}

func smoothSpectrum(spectrum []float64) []float64 {
	out := make([]float64, len(spectrum))
	for i := range spectrum {
		lo, hi := i-1, i+1
		if lo < 0 {
			lo = 0
		}
		if hi >= len(spectrum) {
			hi = len(spectrum) - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += spectrum[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}
