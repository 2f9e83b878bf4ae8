package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntmaster-academy/gamecalls-engine/internal/config"
	"github.com/huntmaster-academy/gamecalls-engine/internal/features"
	"github.com/huntmaster-academy/gamecalls-engine/internal/mastercall"
	"github.com/huntmaster-academy/gamecalls-engine/internal/scoring"
)

func tinyMasterBundle(t *testing.T) []byte {
	t.Helper()
	tmpl := &mastercall.Template{
		SampleRate:   8000,
		FrameSamples: 256,
		HopSamples:   64,
		DurationSec:  0.1,
	}
	for i := 0; i < 20; i++ {
		tmpl.MFCC = append(tmpl.MFCC, features.Vector{float64(i), 1, 1})
	}
	data, err := mastercall.Encode(tmpl)
	require.NoError(t, err)
	return data
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	profile := config.DefaultProfile()
	profile.SampleRate = 8000
	profile.FrameSamples = 256
	profile.HopSamples = 64
	return New(Options{Profile: profile, MaxConcurrency: 2})
}

func TestProcessAudioChunkBeforeMasterCallIsWrongState(t *testing.T) {
	eng := newTestEngine(t)
	res := eng.CreateSession(SessionConfigInput{})
	require.True(t, res.IsOk())
	sess, ok := eng.Session(res.Value)
	require.True(t, ok)

	result := sess.ProcessAudioChunk(make([]float64, 256))
	require.False(t, result.IsOk())
	assert.Equal(t, ErrWrongState, result.Err.Kind)
}

func TestFullSessionLifecycle(t *testing.T) {
	eng := newTestEngine(t)
	require.True(t, eng.LoadMasterCall("call-a", tinyMasterBundle(t)).IsOk())
	defer eng.UnloadMasterCall("call-a")

	sessRes := eng.CreateSession(SessionConfigInput{})
	require.True(t, sessRes.IsOk())
	id := sessRes.Value

	require.True(t, eng.BindMasterCall(id, "call-a").IsOk())
	sess, ok := eng.Session(id)
	require.True(t, ok)
	assert.Equal(t, StateReady, sess.State())

	frame := make([]float64, 256)
	for i := range frame {
		frame[i] = 0.1
	}
	for i := 0; i < 20; i++ {
		result := sess.ProcessAudioChunk(frame)
		require.True(t, result.IsOk())
	}
	assert.Equal(t, StateActive, sess.State())

	finalRes := sess.FinalizeSessionAnalysis()
	require.True(t, finalRes.IsOk())
	assert.Equal(t, StateFinalized, sess.State())

	secondFinalRes := sess.FinalizeSessionAnalysis()
	require.True(t, secondFinalRes.IsOk(), "finalizing an already-finalized session should return the cached summary, not fail")
	assert.Equal(t, finalRes.Value, secondFinalRes.Value)
	assert.Equal(t, StateFinalized, sess.State())

	summary := sess.GetEnhancedSummary()
	require.True(t, summary.IsOk())
	assert.Equal(t, finalRes.Value.Overall, summary.Value.Final.Overall)

	resetRes := sess.ResetSession()
	require.True(t, resetRes.IsOk())
	assert.Equal(t, StateReady, sess.State())

	require.True(t, eng.DestroySession(id).IsOk())
	_, ok = eng.Session(id)
	assert.False(t, ok)
}

func TestFinalizeOnAllSilenceYieldsDegradedSummaryNotError(t *testing.T) {
	eng := newTestEngine(t)
	require.True(t, eng.LoadMasterCall("call-a", tinyMasterBundle(t)).IsOk())
	sessRes := eng.CreateSession(SessionConfigInput{})
	require.True(t, sessRes.IsOk())
	require.True(t, eng.BindMasterCall(sessRes.Value, "call-a").IsOk())
	sess, _ := eng.Session(sessRes.Value)

	silence := make([]float64, 256)
	for i := 0; i < 5; i++ {
		require.True(t, sess.ProcessAudioChunk(silence).IsOk())
	}

	result := sess.FinalizeSessionAnalysis()
	require.True(t, result.IsOk(), "an all-silence attempt should still finalize, not fail")
	assert.True(t, result.Value.NoVoicedAudio)
	assert.Equal(t, 0.0, result.Value.Overall)
	assert.Equal(t, 0.0, result.Value.Confidence)
	assert.Equal(t, scoring.GradeF, result.Value.Grade)
	assert.Equal(t, StateFinalized, sess.State())
}

func TestFinalizeBeforeActiveIsWrongState(t *testing.T) {
	eng := newTestEngine(t)
	require.True(t, eng.LoadMasterCall("call-a", tinyMasterBundle(t)).IsOk())
	sessRes := eng.CreateSession(SessionConfigInput{})
	require.True(t, sessRes.IsOk())
	require.True(t, eng.BindMasterCall(sessRes.Value, "call-a").IsOk())

	sess, _ := eng.Session(sessRes.Value)
	result := sess.FinalizeSessionAnalysis()
	require.False(t, result.IsOk())
	assert.Equal(t, ErrWrongState, result.Err.Kind)
}

func TestBindMasterCallUnknownNameIsMasterNotFound(t *testing.T) {
	eng := newTestEngine(t)
	sessRes := eng.CreateSession(SessionConfigInput{})
	require.True(t, sessRes.IsOk())

	result := eng.BindMasterCall(sessRes.Value, "does-not-exist")
	require.False(t, result.IsOk())
	assert.Equal(t, ErrMasterNotFound, result.Err.Kind)
}

func TestUnloadMasterCallRequiresRefcountToReachZero(t *testing.T) {
	eng := newTestEngine(t)
	bundle := tinyMasterBundle(t)
	require.True(t, eng.LoadMasterCall("call-a", bundle).IsOk())
	require.True(t, eng.LoadMasterCall("call-a", bundle).IsOk()) // second load increments refcount

	require.True(t, eng.UnloadMasterCall("call-a").IsOk())
	metrics := eng.GetSystemMetrics()
	assert.Equal(t, 1, metrics.LoadedMasters, "refcount should keep the master loaded after one unload")

	require.True(t, eng.UnloadMasterCall("call-a").IsOk())
	metrics = eng.GetSystemMetrics()
	assert.Equal(t, 0, metrics.LoadedMasters)
}

func TestCreateSessionJSONRejectsUnrecognizedKey(t *testing.T) {
	eng := newTestEngine(t)
	result := eng.CreateSessionJSON([]byte(`{"sampleRate":8000,"bogus":true}`), "")
	require.False(t, result.IsOk())
	assert.Equal(t, ErrInvalidConfig, result.Err.Kind)
}

func TestCreateSessionJSONAppliesRecognizedOverrides(t *testing.T) {
	eng := newTestEngine(t)
	result := eng.CreateSessionJSON([]byte(`{"enableHarmonic":false}`), "")
	require.True(t, result.IsOk())
	sess, ok := eng.Session(result.Value)
	require.True(t, ok)
	assert.False(t, sess.resolved.EnableHarmonic)
}

func TestListActiveSessions(t *testing.T) {
	eng := newTestEngine(t)
	a := eng.CreateSession(SessionConfigInput{}).Value
	b := eng.CreateSession(SessionConfigInput{}).Value

	ids := eng.ListActiveSessions()
	assert.ElementsMatch(t, []string{a, b}, ids)
}
