package features

// PitchConfig bundles §6.4's pitch tunables.
type PitchConfig struct {
	SampleRate int
	FMin       float64 // default 60 Hz
	FMax       float64 // default 1000 Hz
	Threshold  float64 // default 0.15
	MedianK    int     // odd smoothing window length, 0/1 disables smoothing
}

// DefaultPitchConfig matches §4.3's stated defaults.
func DefaultPitchConfig(sampleRate int) PitchConfig {
	return PitchConfig{
		SampleRate: sampleRate,
		FMin:       60,
		FMax:       1000,
		Threshold:  0.15,
		MedianK:    5,
	}
}

// PitchObservation is one frame's YIN result (§3 FeatureFrame).
type PitchObservation struct {
	F0         float64
	Confidence float64
	Voiced     bool
}

// PitchTracker implements the YIN algorithm of §4.3.
type PitchTracker struct {
	cfg       PitchConfig
	tauMin    int
	tauMax    int
	history   []PitchObservation // ring of recent voiced observations for median smoothing
	diffBuf   []float64
	cmndBuf   []float64
}

// NewPitchTracker builds a tracker for one session; frameSize bounds the
// maximum lag the difference function can examine.
func NewPitchTracker(cfg PitchConfig, frameSize int) *PitchTracker {
	tauMin := int(float64(cfg.SampleRate) / cfg.FMax)
	tauMax := int(float64(cfg.SampleRate) / cfg.FMin)
	if tauMax >= frameSize {
		tauMax = frameSize - 1
	}
	if tauMin < 2 {
		tauMin = 2
	}
	return &PitchTracker{
		cfg:     cfg,
		tauMin:  tauMin,
		tauMax:  tauMax,
		diffBuf: make([]float64, tauMax+1),
		cmndBuf: make([]float64, tauMax+1),
	}
}

// ProcessFrame estimates f0 for one time-domain frame.
func (p *PitchTracker) ProcessFrame(frame []float64) PitchObservation {
	obs := p.yin(frame)
	if p.cfg.MedianK > 1 {
		obs = p.smooth(obs)
	}
	return obs
}

// yin runs the cumulative-mean-normalized difference function and parabolic
// refinement described in §4.3.
func (p *PitchTracker) yin(frame []float64) PitchObservation {
	tauMax := p.tauMax
	if tauMax+1 > len(p.diffBuf) {
		tauMax = len(p.diffBuf) - 1
	}

	d := p.diffBuf[:tauMax+1]
	d[0] = 0
	for tau := 1; tau <= tauMax; tau++ {
		var sum float64
		limit := len(frame) - tau
		for i := 0; i < limit; i++ {
			diff := frame[i] - frame[i+tau]
			sum += diff * diff
		}
		d[tau] = sum
	}

	cmnd := p.cmndBuf[:tauMax+1]
	cmnd[0] = 1
	var running float64
	for tau := 1; tau <= tauMax; tau++ {
		running += d[tau]
		if running == 0 {
			cmnd[tau] = 1
		} else {
			cmnd[tau] = d[tau] * float64(tau) / running
		}
	}

	tau := -1
	for t := p.tauMin; t <= tauMax; t++ {
		if cmnd[t] < p.cfg.Threshold {
			// First local minimum below threshold (§4.3).
			for t+1 <= tauMax && cmnd[t+1] < cmnd[t] {
				t++
			}
			tau = t
			break
		}
	}

	if tau == -1 {
		return PitchObservation{F0: 0, Confidence: 0, Voiced: false}
	}

	refined := parabolicRefine(cmnd, tau)
	f0 := float64(p.cfg.SampleRate) / refined
	confidence := 1 - cmnd[tau]
	if confidence < 0 {
		confidence = 0
	}
	return PitchObservation{F0: f0, Confidence: confidence, Voiced: true}
}

// parabolicRefine interpolates the true minimum location across the three
// samples centered on tau (§4.3 "refine with parabolic interpolation").
func parabolicRefine(cmnd []float64, tau int) float64 {
	if tau <= 0 || tau >= len(cmnd)-1 {
		return float64(tau)
	}
	s0, s1, s2 := cmnd[tau-1], cmnd[tau], cmnd[tau+1]
	denom := s0 - 2*s1 + s2
	if denom == 0 {
		return float64(tau)
	}
	shift := 0.5 * (s0 - s2) / denom
	return float64(tau) + shift
}

// smooth applies an odd-length median filter across consecutive voiced
// observations (§4.3 "Smoothing"). Unvoiced frames pass through untouched
// and reset the smoothing window, since they don't carry a meaningful f0.
func (p *PitchTracker) smooth(obs PitchObservation) PitchObservation {
	if !obs.Voiced {
		p.history = p.history[:0]
		return obs
	}
	p.history = append(p.history, obs)
	if len(p.history) > p.cfg.MedianK {
		p.history = p.history[len(p.history)-p.cfg.MedianK:]
	}
	if len(p.history) < p.cfg.MedianK {
		return obs
	}
	f0s := make([]float64, len(p.history))
	for i, h := range p.history {
		f0s[i] = h.F0
	}
	median := medianOf(f0s)
	out := obs
	out.F0 = median
	return out
}

func medianOf(xs []float64) float64 {
	sorted := append([]float64(nil), xs...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1] > sorted[j]; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	return sorted[len(sorted)/2]
}

// Resample projects a pitch contour recorded at one sample rate onto frame
// positions for another, used when a master template's sample rate differs
// from the session's (§8 boundary case).
func Resample(times, f0s []float64, scale float64) (outTimes, outF0s []float64) {
	outTimes = make([]float64, len(times))
	outF0s = make([]float64, len(f0s))
	for i := range times {
		outTimes[i] = times[i] * scale
		outF0s[i] = f0s[i]
	}
	return
}

// Mean returns the arithmetic mean of voiced f0 observations, used in
// coaching feedback deltas (§4.11).
func Mean(obs []PitchObservation) float64 {
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
