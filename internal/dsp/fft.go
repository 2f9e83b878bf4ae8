package dsp

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// FFT wraps a gonum real FFT plan sized for one session's frame size. Built
// once per session (the teacher's FeatureExtractor does the same with
// fourier.NewFFT in NewFeatureExtractor) and reused for every hop.
type FFT struct {
	plan *fourier.FFT
	size int
}

// NewFFT builds an FFT plan for the given size, which must already be a
// power of two greater than or equal to the session's frame size (§4.2 step
// 2: "Real FFT of size N (power of two >= frame size)").
func NewFFT(size int) *FFT {
	return &FFT{plan: fourier.NewFFT(size), size: size}
}

// Size returns the configured FFT length.
func (f *FFT) Size() int { return f.size }

// Magnitude computes the one-sided magnitude spectrum (length size/2) of an
// already-windowed time-domain frame of length size. scratch, if non-nil and
// large enough, is reused for the returned magnitudes; the intermediate
// complex coefficients are still allocated on every call.
func (f *FFT) Magnitude(frame []float64, scratch []float64) []float64 {
	coeffs := f.plan.Coefficients(nil, frame)
	n := f.size / 2
	var out []float64
	if cap(scratch) >= n {
		out = scratch[:n]
	} else {
		out = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		re := real(coeffs[i])
		im := imag(coeffs[i])
		out[i] = math.Sqrt(re*re + im*im)
	}
	return out
}

// MelFilterbank holds M triangular filters spanning [fmin, fmax] over an
// FFT of the given size, following §4.2 step 3.
type MelFilterbank struct {
	filters [][]float64
}

func hzToMel(hz float64) float64 { return 2595 * math.Log10(1+hz/700) }
func melToHz(mel float64) float64 { return 700 * (math.Pow(10, mel/2595) - 1) }

// NewMelFilterbank builds numFilters triangular filters over [fmin, fmax]
// against an FFT of length fftSize at the given sample rate. fmax of 0 means
// sampleRate/2 (the Nyquist frequency), matching §4.2's stated default.
func NewMelFilterbank(numFilters, fftSize, sampleRate int, fmin, fmax float64) *MelFilterbank {
	if fmax <= 0 {
		fmax = float64(sampleRate) / 2
	}
	lowMel := hzToMel(fmin)
	highMel := hzToMel(fmax)

	melPoints := make([]float64, numFilters+2)
	for i := range melPoints {
		melPoints[i] = lowMel + float64(i)*(highMel-lowMel)/float64(numFilters+1)
	}
	hzPoints := make([]float64, numFilters+2)
	for i, m := range melPoints {
		hzPoints[i] = melToHz(m)
	}
	binPoints := make([]int, numFilters+2)
	for i, hz := range hzPoints {
		binPoints[i] = int(math.Floor(hz * float64(fftSize) / float64(sampleRate)))
	}

	filters := make([][]float64, numFilters)
	half := fftSize / 2
	for i := 0; i < numFilters; i++ {
		filters[i] = make([]float64, half)
		for j := binPoints[i]; j < binPoints[i+1] && j < half; j++ {
			if binPoints[i+1] != binPoints[i] {
				filters[i][j] = float64(j-binPoints[i]) / float64(binPoints[i+1]-binPoints[i])
			}
		}
		for j := binPoints[i+1]; j < binPoints[i+2] && j < half; j++ {
			if binPoints[i+2] != binPoints[i+1] {
				filters[i][j] = float64(binPoints[i+2]-j) / float64(binPoints[i+2]-binPoints[i+1])
			}
		}
	}
	return &MelFilterbank{filters: filters}
}

// LogEnergies applies the filterbank to a magnitude spectrum and returns the
// log-compressed mel energies (§4.2 steps 3-4), with a floor of 1e-10 before
// taking the log so a silent filter never produces -Inf.
func (mb *MelFilterbank) LogEnergies(spectrum []float64, dst []float64) []float64 {
	n := len(mb.filters)
	if cap(dst) < n {
		dst = make([]float64, n)
	}
	dst = dst[:n]
	for i, filt := range mb.filters {
		var e float64
		for j := 0; j < len(spectrum) && j < len(filt); j++ {
			e += spectrum[j] * spectrum[j] * filt[j]
		}
		if e < 1e-10 {
			e = 1e-10
		}
		dst[i] = math.Log(e)
	}
	return dst
}

// DCT2 computes the first numCoeffs coefficients of a DCT-II over melLogE,
// optionally applying cepstral liftering with parameter lifter (§4.2 step 6;
// lifter <= 0 disables liftering).
func DCT2(melLogE []float64, numCoeffs int, lifter float64) []float64 {
	m := len(melLogE)
	out := make([]float64, numCoeffs)
	for i := 0; i < numCoeffs; i++ {
		var sum float64
		for j := 0; j < m; j++ {
			sum += melLogE[j] * math.Cos(math.Pi*float64(i)*(float64(j)+0.5)/float64(m))
		}
		out[i] = sum
	}
	if lifter > 0 {
		for i := range out {
			out[i] *= 1 + (lifter/2)*math.Sin(math.Pi*float64(i)/lifter)
		}
	}
	return out
}

// SpectralCentroid computes the magnitude-weighted mean frequency (§4.4,
// §4.6's brightness metric).
func SpectralCentroid(spectrum []float64, sampleRate, fftSize int) float64 {
	var weighted, sum float64
	freqPerBin := float64(sampleRate) / float64(fftSize)
	for i, mag := range spectrum {
		freq := float64(i) * freqPerBin
		weighted += freq * mag
		sum += mag
	}
	if sum == 0 {
		return 0
	}
	return weighted / sum
}

// SpectralFlatness is the ratio of the geometric to arithmetic mean of the
// spectrum, used by the VAD (§4.7) to distinguish tonal voiced frames from
// noise-like unvoiced ones.
func SpectralFlatness(spectrum []float64) float64 {
	if len(spectrum) == 0 {
		return 0
	}
	var logSum, sum float64
	for _, v := range spectrum {
		lv := v
		if lv < 1e-10 {
			lv = 1e-10
		}
		logSum += math.Log(lv)
		sum += v
	}
	n := float64(len(spectrum))
	geoMean := math.Exp(logSum / n)
	arithMean := sum / n
	if arithMean == 0 {
		return 0
	}
	return geoMean / arithMean
}
