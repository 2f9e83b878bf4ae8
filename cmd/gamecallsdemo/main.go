// Command gamecallsdemo exercises the gamecalls engine end to end against a
// synthetically generated master call, since this module has no microphone
// capture or audio-file decoding of its own (those are explicitly out of
// scope). It plays the role the teacher's cmd/musicd/main.go played for the
// music player: a thin flag-parsing, signal-handling entry point over the
// library packages, not where any real logic lives.
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/huntmaster-academy/gamecalls-engine/internal/config"
	"github.com/huntmaster-academy/gamecalls-engine/internal/engine"
	"github.com/huntmaster-academy/gamecalls-engine/internal/features"
	"github.com/huntmaster-academy/gamecalls-engine/internal/logging"
	"github.com/huntmaster-academy/gamecalls-engine/internal/mastercall"
)

func main() {
	var (
		sampleRate = flag.Int("sample-rate", 44100, "synthetic call sample rate")
		seconds    = flag.Float64("seconds", 1.5, "synthetic call duration in seconds")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	level := log.InfoLevel
	if *verbose {
		level = log.DebugLevel
	}
	logger := logging.New(os.Stderr, level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *sampleRate, *seconds); err != nil {
		logger.Error("run failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *log.Logger, sampleRate int, seconds float64) error {
	profile := config.DefaultProfile()
	profile.SampleRate = sampleRate

	eng := engine.New(engine.Options{Profile: profile, MaxConcurrency: 4, Logger: logger})

	bundle, err := buildSyntheticMasterCall(profile, seconds)
	if err != nil {
		return fmt.Errorf("building synthetic master call: %w", err)
	}

	if res := eng.LoadMasterCall("demo-call", bundle); !res.IsOk() {
		return fmt.Errorf("loading master call: %w", res.Err)
	}
	defer eng.UnloadMasterCall("demo-call")

	sessRes := eng.CreateSessionJSON([]byte(`{"enableHarmonic":true}`), "")
	if !sessRes.IsOk() {
		return fmt.Errorf("creating session: %w", sessRes.Err)
	}
	sessionID := sessRes.Value
	defer eng.DestroySession(sessionID)

	if res := eng.BindMasterCall(sessionID, "demo-call"); !res.IsOk() {
		return fmt.Errorf("binding master call: %w", res.Err)
	}

	sess, _ := eng.Session(sessionID)

	attempt := synthesizeTone(profile.SampleRate, seconds, 440)
	chunkSize := profile.HopSamples * 4
	for i := 0; i < len(attempt); i += chunkSize {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		end := i + chunkSize
		if end > len(attempt) {
			end = len(attempt)
		}
		if res := sess.ProcessAudioChunk(attempt[i:end]); !res.IsOk() {
			return fmt.Errorf("processing chunk: %w", res.Err)
		}
	}

	if res := sess.GetRealtimeSimilarity(); res.IsOk() {
		logger.Info("realtime similarity", "value", res.Value.Similarity)
	}

	finalRes := sess.FinalizeSessionAnalysis()
	if !finalRes.IsOk() {
		return fmt.Errorf("finalizing: %w", finalRes.Err)
	}

	final := finalRes.Value
	fmt.Printf("overall=%.3f confidence=%.3f grade=%s feedback=%v\n",
		final.Overall, final.Confidence, final.Grade, final.Feedback)

	return nil
}

// buildSyntheticMasterCall runs a synthetic tone through the full feature
// pipeline and serializes the result, standing in for a real pre-recorded
// master call (loading one from disk is out of scope for this command).
func buildSyntheticMasterCall(profile config.Profile, seconds float64) ([]byte, error) {
	samples := synthesizeTone(profile.SampleRate, seconds, 440)

	mfccCfg := features.DefaultMFCCConfig(profile.SampleRate)
	mfccCfg.Coefficients = profile.MFCCCoefficients
	extractor := features.NewExtractor(mfccCfg, profile.FrameSamples)
	pitchTracker := features.NewPitchTracker(features.DefaultPitchConfig(profile.SampleRate), profile.FrameSamples)
	harmonicAnalyzer := features.NewHarmonicAnalyzer(features.DefaultHarmonicConfig(profile.SampleRate, mfccCfg.FFTSize))
	cadenceAnalyzer := features.NewCadenceAnalyzer(features.DefaultCadenceConfig(profile.SampleRate, mfccCfg.FFTSize, profile.HopSamples))
	loudnessAnalyzer := features.NewLoudnessAnalyzer(features.DefaultLoudnessConfig(profile.SampleRate))

	var (
		mfccFrames []features.Vector

		pitchTimesSec   []float64
		pitchHz         []float64
		pitchConfidence []float64

		harmonicTimesSec   []float64
		harmonicCentroid   []float64
		harmonicConfidence []float64

		loudnessTimesSec []float64
		loudnessDBFS     []float64
		loudnessPeakDBFS []float64
	)

	hopSeconds := float64(profile.HopSamples) / float64(profile.SampleRate)
	hopIndex := 0
	for start := 0; start+profile.FrameSamples <= len(samples); start += profile.HopSamples {
		frame := samples[start : start+profile.FrameSamples]
		t := float64(hopIndex) * hopSeconds
		hopIndex++

		vec := extractor.ProcessFrame(frame)
		mfccFrames = append(mfccFrames, vec)

		pitchObs := pitchTracker.ProcessFrame(frame)
		if pitchObs.Voiced {
			pitchTimesSec = append(pitchTimesSec, t)
			pitchHz = append(pitchHz, pitchObs.F0)
			pitchConfidence = append(pitchConfidence, pitchObs.Confidence)
		}

		spectrum := extractor.LastSpectrum(make([]float64, extractor.FFTSize()/2))
		harmonicObs := harmonicAnalyzer.ProcessFrame(spectrum, pitchObs.F0, pitchObs.Voiced)
		harmonicTimesSec = append(harmonicTimesSec, t)
		harmonicCentroid = append(harmonicCentroid, harmonicObs.Centroid)
		harmonicConfidence = append(harmonicConfidence, harmonicObs.Confidence)

		cadenceAnalyzer.ProcessFrame(spectrum)

		loudObs := loudnessAnalyzer.ProcessFrame(frame)
		loudnessTimesSec = append(loudnessTimesSec, t)
		loudnessDBFS = append(loudnessDBFS, loudObs.RMSDBFS)
		loudnessPeakDBFS = append(loudnessPeakDBFS, loudObs.PeakDBFS)
	}

	tempo, rhythm := cadenceAnalyzer.Tempo()

	tmpl := &mastercall.Template{
		SampleRate:         profile.SampleRate,
		FrameSamples:       profile.FrameSamples,
		HopSamples:         profile.HopSamples,
		DurationSec:        seconds,
		MFCC:               mfccFrames,
		PitchTimesSec:      pitchTimesSec,
		PitchHz:            pitchHz,
		PitchConfidence:    pitchConfidence,
		HarmonicTimesSec:   harmonicTimesSec,
		HarmonicCentroid:   harmonicCentroid,
		HarmonicConfidence: harmonicConfidence,
		OnsetsSec:          cadenceAnalyzer.OnsetTimesSec(),
		Tempo:              tempo,
		RhythmStrength:     rhythm,
		LoudnessTimesSec:   loudnessTimesSec,
		LoudnessDBFS:       loudnessDBFS,
		LoudnessPeakDBFS:   loudnessPeakDBFS,
	}

	return mastercall.Encode(tmpl)
}

// synthesizeTone generates a simple sine wave standing in for a recorded
// hunting-call clip.
func synthesizeTone(sampleRate int, seconds, freqHz float64) []float64 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float64, n)
	for i := range out {
		t := float64(i) / float64(sampleRate)
		out[i] = 0.4 * math.Sin(2*math.Pi*freqHz*t)
	}
	return out
}
