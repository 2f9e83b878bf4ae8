// Package config implements the recognized session-config keys of §6.4 and
// an engine-wide tunable-defaults profile loadable from YAML, adapted from
// the teacher's internal/config/config.go JSON-backed Manager — here the
// validation moves from a loosely-typed map into a struct with an explicit
// set of recognized keys, since §6.4 requires rejecting any key it doesn't
// name rather than silently ignoring it.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/huntmaster-academy/gamecalls-engine/internal/dsp"
	"github.com/huntmaster-academy/gamecalls-engine/internal/ringbuf"
	"github.com/huntmaster-academy/gamecalls-engine/internal/scoring"
)

// FusionWeights is the JSON/YAML-friendly shape of the `fusionWeights`
// config key (§6.4): (wMFCC, wPitch, wHarmonic, wCadence).
type FusionWeights struct {
	MFCC     float64 `json:"mfcc" yaml:"mfcc"`
	Pitch    float64 `json:"pitch" yaml:"pitch"`
	Harmonic float64 `json:"harmonic" yaml:"harmonic"`
	Cadence  float64 `json:"cadence" yaml:"cadence"`
}

// SessionConfig is the set of keys createSession recognizes (§6.4). Every
// field is optional; zero values fall back to the engine's tunable
// defaults profile. Boolean enable flags use a pointer so "unset" (the
// feature stays enabled) is distinguishable from an explicit false.
type SessionConfig struct {
	SampleRate       int    `json:"sampleRate" yaml:"sampleRate"`
	FrameSamples     int    `json:"frameSamples" yaml:"frameSamples"`
	HopSamples       int    `json:"hopSamples" yaml:"hopSamples"`
	MFCCCoefficients int    `json:"mfccCoefficients" yaml:"mfccCoefficients"`
	Window           string `json:"window" yaml:"window"`
	DropPolicy       string `json:"dropPolicy" yaml:"dropPolicy"`

	BufferSize int `json:"bufferSize" yaml:"bufferSize"`
	FFTSize    int `json:"fftSize" yaml:"fftSize"`

	PitchFMin      float64 `json:"pitchFMin" yaml:"pitchFMin"`
	PitchFMax      float64 `json:"pitchFMax" yaml:"pitchFMax"`
	PitchThreshold float64 `json:"pitchThreshold" yaml:"pitchThreshold"`
	PitchMedianK   int     `json:"pitchMedianK" yaml:"pitchMedianK"`

	VadEnergyOn     float64 `json:"vadEnergyOn" yaml:"vadEnergyOn"`
	VadEnergyOff    float64 `json:"vadEnergyOff" yaml:"vadEnergyOff"`
	VadFlatnessOn   float64 `json:"vadFlatnessOn" yaml:"vadFlatnessOn"`
	VadFlatnessOff  float64 `json:"vadFlatnessOff" yaml:"vadFlatnessOff"`
	VadMinSoundMs   float64 `json:"vadMinSoundMs" yaml:"vadMinSoundMs"`
	VadMinSilenceMs float64 `json:"vadMinSilenceMs" yaml:"vadMinSilenceMs"`

	DTWBandRatio float64 `json:"dtwBandRatio" yaml:"dtwBandRatio"`
	DTWEarlyStop float64 `json:"dtwEarlyStop" yaml:"dtwEarlyStop"`

	ScorerUpdateIntervalFrames int     `json:"scorerUpdateIntervalFrames" yaml:"scorerUpdateIntervalFrames"`
	ScorerWindowFrames         int     `json:"scorerWindowFrames" yaml:"scorerWindowFrames"`
	ScorerMinFrames            int     `json:"scorerMinFrames" yaml:"scorerMinFrames"`
	ScorerMinScore             float64 `json:"scorerMinScore" yaml:"scorerMinScore"`

	FusionWeights *FusionWeights `json:"fusionWeights" yaml:"fusionWeights"`

	EnablePitch    *bool `json:"enablePitch" yaml:"enablePitch"`
	EnableHarmonic *bool `json:"enableHarmonic" yaml:"enableHarmonic"`
	EnableCadence  *bool `json:"enableCadence" yaml:"enableCadence"`
	EnableRealtime *bool `json:"enableRealtime" yaml:"enableRealtime"`
}

// UnrecognizedKeyError reports a config key createSession does not
// recognize (§7 "InvalidConfig").
type UnrecognizedKeyError struct{ Key string }

func (e UnrecognizedKeyError) Error() string {
	return fmt.Sprintf("config: unrecognized key %q", e.Key)
}

// ValidateRawKeys rejects any key absent from the recognized set before a
// raw JSON object is decoded into SessionConfig, so unknown keys fail
// createSession with InvalidConfig instead of being silently dropped, per
// §6.4. Callers typically json.Unmarshal into map[string]any first.
func ValidateRawKeys(raw map[string]any) error {
	recognized := map[string]struct{}{
		"sampleRate": {}, "frameSamples": {}, "hopSamples": {},
		"mfccCoefficients": {}, "window": {}, "dropPolicy": {},
		"bufferSize": {}, "fftSize": {},
		"pitchFMin": {}, "pitchFMax": {}, "pitchThreshold": {}, "pitchMedianK": {},
		"vadEnergyOn": {}, "vadEnergyOff": {}, "vadFlatnessOn": {}, "vadFlatnessOff": {},
		"vadMinSoundMs": {}, "vadMinSilenceMs": {},
		"dtwBandRatio": {}, "dtwEarlyStop": {},
		"scorerUpdateIntervalFrames": {}, "scorerWindowFrames": {},
		"scorerMinFrames": {}, "scorerMinScore": {},
		"fusionWeights":  {},
		"enablePitch":    {},
		"enableHarmonic": {},
		"enableCadence":  {},
		"enableRealtime": {},
	}
	for k := range raw {
		if _, ok := recognized[k]; !ok {
			return UnrecognizedKeyError{Key: k}
		}
	}
	return nil
}

// Resolved fills any zero fields in a SessionConfig from the tunable
// defaults profile and parses its enum-like string fields, returning an
// error (wrapped as InvalidConfig by the engine) if a value is malformed.
func (c SessionConfig) Resolved(defaults Profile) (ResolvedConfig, error) {
	out := ResolvedConfig{
		SampleRate:       orDefaultInt(c.SampleRate, defaults.SampleRate),
		FrameSamples:     orDefaultInt(c.FrameSamples, defaults.FrameSamples),
		HopSamples:       orDefaultInt(c.HopSamples, defaults.HopSamples),
		MFCCCoefficients: orDefaultInt(c.MFCCCoefficients, defaults.MFCCCoefficients),
		BufferSize:       orDefaultInt(c.BufferSize, defaults.BufferSize),
		FFTSize:          orDefaultInt(c.FFTSize, defaults.FFTSize),

		PitchFMin:      orDefaultFloat(c.PitchFMin, defaults.PitchFMin),
		PitchFMax:      orDefaultFloat(c.PitchFMax, defaults.PitchFMax),
		PitchThreshold: orDefaultFloat(c.PitchThreshold, defaults.PitchThreshold),
		PitchMedianK:   orDefaultInt(c.PitchMedianK, defaults.PitchMedianK),

		VadEnergyOn:     orDefaultFloat(c.VadEnergyOn, defaults.VadEnergyOn),
		VadEnergyOff:    orDefaultFloat(c.VadEnergyOff, defaults.VadEnergyOff),
		VadFlatnessOn:   orDefaultFloat(c.VadFlatnessOn, defaults.VadFlatnessOn),
		VadFlatnessOff:  orDefaultFloat(c.VadFlatnessOff, defaults.VadFlatnessOff),
		VadMinSoundMs:   orDefaultFloat(c.VadMinSoundMs, defaults.VadMinSoundMs),
		VadMinSilenceMs: orDefaultFloat(c.VadMinSilenceMs, defaults.VadMinSilenceMs),

		DTWBandRatio: orDefaultFloat(c.DTWBandRatio, defaults.DTWBandRatio),
		DTWEarlyStop: orDefaultFloat(c.DTWEarlyStop, defaults.DTWEarlyStop),

		ScorerUpdateIntervalFrames: orDefaultInt(c.ScorerUpdateIntervalFrames, defaults.ScorerUpdateIntervalFrames),
		ScorerWindowFrames:         orDefaultInt(c.ScorerWindowFrames, defaults.ScorerWindowFrames),
		ScorerMinFrames:            orDefaultInt(c.ScorerMinFrames, defaults.ScorerMinFrames),
		ScorerMinScore:             orDefaultFloat(c.ScorerMinScore, defaults.ScorerMinScore),

		FusionWeights: defaults.Weights,

		EnablePitch:    orDefaultBool(c.EnablePitch, true),
		EnableHarmonic: orDefaultBool(c.EnableHarmonic, true),
		EnableCadence:  orDefaultBool(c.EnableCadence, true),
		EnableRealtime: orDefaultBool(c.EnableRealtime, true),
	}
	if c.FusionWeights != nil {
		out.FusionWeights = scoring.Weights{
			MFCC:     c.FusionWeights.MFCC,
			Pitch:    c.FusionWeights.Pitch,
			Harmonic: c.FusionWeights.Harmonic,
			Cadence:  c.FusionWeights.Cadence,
		}
	}

	windowStr := c.Window
	if windowStr == "" {
		windowStr = defaults.Window
	}
	kind, ok := dsp.ParseWindowKind(windowStr)
	if !ok {
		return ResolvedConfig{}, fmt.Errorf("config: unrecognized window %q", windowStr)
	}
	out.Window = kind

	dropStr := c.DropPolicy
	if dropStr == "" {
		dropStr = defaults.DropPolicy
	}
	policy, ok := parseDropPolicy(dropStr)
	if !ok {
		return ResolvedConfig{}, fmt.Errorf("config: unrecognized dropPolicy %q", dropStr)
	}
	out.DropPolicy = policy

	if out.HopSamples <= 0 || out.HopSamples > out.FrameSamples {
		return ResolvedConfig{}, fmt.Errorf("config: hopSamples must be in (0, frameSamples]")
	}
	if out.SampleRate <= 0 {
		return ResolvedConfig{}, fmt.Errorf("config: sampleRate must be positive")
	}
	if out.BufferSize <= 0 {
		out.BufferSize = out.FrameSamples * 8
	}
	if out.BufferSize < out.FrameSamples {
		return ResolvedConfig{}, fmt.Errorf("config: bufferSize must be at least frameSamples")
	}
	if out.FFTSize <= 0 {
		out.FFTSize = 2048
	}

	return out, nil
}

func parseDropPolicy(s string) (ringbuf.DropPolicy, bool) {
	switch s {
	case "strict":
		return ringbuf.DropPolicyStrict, true
	case "oldest":
		return ringbuf.DropPolicyOldest, true
	default:
		return 0, false
	}
}

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultBool(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// ResolvedConfig is a SessionConfig with every field filled and validated,
// ready to build the session's extractors (§6.4).
type ResolvedConfig struct {
	SampleRate       int
	FrameSamples     int
	HopSamples       int
	MFCCCoefficients int
	Window           dsp.WindowKind
	DropPolicy       ringbuf.DropPolicy
	BufferSize       int
	FFTSize          int

	PitchFMin      float64
	PitchFMax      float64
	PitchThreshold float64
	PitchMedianK   int

	VadEnergyOn     float64
	VadEnergyOff    float64
	VadFlatnessOn   float64
	VadFlatnessOff  float64
	VadMinSoundMs   float64
	VadMinSilenceMs float64

	DTWBandRatio float64
	DTWEarlyStop float64

	ScorerUpdateIntervalFrames int
	ScorerWindowFrames         int
	ScorerMinFrames            int
	ScorerMinScore             float64

	FusionWeights scoring.Weights

	EnablePitch    bool
	EnableHarmonic bool
	EnableCadence  bool
	EnableRealtime bool
}

// Profile is the engine-wide tunable-defaults profile loaded from YAML at
// startup (§9 "Configuration"): fusion weights, alpha constants, and
// session-config fallbacks, all in one place so operators can retune
// scoring behavior without a code change.
type Profile struct {
	SampleRate       int    `yaml:"sampleRate"`
	FrameSamples     int    `yaml:"frameSamples"`
	HopSamples       int    `yaml:"hopSamples"`
	MFCCCoefficients int    `yaml:"mfccCoefficients"`
	Window           string `yaml:"window"`
	DropPolicy       string `yaml:"dropPolicy"`
	BufferSize       int    `yaml:"bufferSize"`
	FFTSize          int    `yaml:"fftSize"`

	PitchFMin      float64 `yaml:"pitchFMin"`
	PitchFMax      float64 `yaml:"pitchFMax"`
	PitchThreshold float64 `yaml:"pitchThreshold"`
	PitchMedianK   int     `yaml:"pitchMedianK"`

	VadEnergyOn     float64 `yaml:"vadEnergyOn"`
	VadEnergyOff    float64 `yaml:"vadEnergyOff"`
	VadFlatnessOn   float64 `yaml:"vadFlatnessOn"`
	VadFlatnessOff  float64 `yaml:"vadFlatnessOff"`
	VadMinSoundMs   float64 `yaml:"vadMinSoundMs"`
	VadMinSilenceMs float64 `yaml:"vadMinSilenceMs"`

	DTWBandRatio float64 `yaml:"dtwBandRatio"`
	DTWEarlyStop float64 `yaml:"dtwEarlyStop"`

	ScorerUpdateIntervalFrames int     `yaml:"scorerUpdateIntervalFrames"`
	ScorerWindowFrames         int     `yaml:"scorerWindowFrames"`
	ScorerMinFrames            int     `yaml:"scorerMinFrames"`
	ScorerMinScore             float64 `yaml:"scorerMinScore"`

	Weights         scoring.Weights         `yaml:"weights"`
	RealtimeWeights scoring.RealtimeWeights `yaml:"realtimeWeights"`
	Alphas          scoring.Alphas          `yaml:"alphas"`

	// DTWBand is the legacy fixed-width (frame-count) band still used by
	// the realtime scorer, whose trailing window is a fixed frame count
	// rather than a fraction of a full sequence length (§4.8 vs §4.9's
	// ratio-based finalize band).
	DTWBand int `yaml:"dtwBand"`

	// ChunkBudgetMs is the soft per-chunk processing budget of §5's
	// timeout model (default 12ms at 44.1kHz/512-sample chunks). It is an
	// engine-wide tunable, not a per-session config key, since a session
	// overriding its own latency budget would defeat its purpose as a
	// shared quality-of-service policy.
	ChunkBudgetMs float64 `yaml:"chunkBudgetMs"`
}

// DefaultProfile matches §6.4's stated engine defaults.
func DefaultProfile() Profile {
	return Profile{
		SampleRate:       44100,
		FrameSamples:     2048,
		HopSamples:       512,
		MFCCCoefficients: 13,
		Window:           "hann",
		DropPolicy:       "oldest",
		BufferSize:       0, // resolved to frameSamples*8
		FFTSize:          2048,

		PitchFMin:      60,
		PitchFMax:      1000,
		PitchThreshold: 0.15,
		PitchMedianK:   5,

		VadEnergyOn:     -35,
		VadEnergyOff:    -40,
		VadFlatnessOn:   0.6,
		VadFlatnessOff:  0.65,
		VadMinSoundMs:   100,
		VadMinSilenceMs: 200,

		DTWBandRatio: 0.1,
		DTWEarlyStop: 1e6,

		ScorerUpdateIntervalFrames: 1,
		ScorerWindowFrames:         50,
		ScorerMinFrames:            10,
		ScorerMinScore:             0.3,

		Weights:         scoring.DefaultWeights(),
		RealtimeWeights: scoring.DefaultRealtimeWeights(),
		Alphas:          scoring.DefaultAlphas(),
		DTWBand:         25,
		ChunkBudgetMs:   12,
	}
}

// LoadProfile parses a YAML tunable-defaults document, starting from
// DefaultProfile so a partial document only overrides what it specifies.
func LoadProfile(data []byte) (Profile, error) {
	p := DefaultProfile()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("config: parsing profile: %w", err)
	}
	return p, nil
}
