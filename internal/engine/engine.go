package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/charmbracelet/log"

	"github.com/huntmaster-academy/gamecalls-engine/internal/config"
	"github.com/huntmaster-academy/gamecalls-engine/internal/logging"
	"github.com/huntmaster-academy/gamecalls-engine/internal/mastercall"
)

// loadedMaster pairs a parsed template with a reference count, so
// unloadMasterCall can free it only once every bound session has let go
// (§4.13 "Master-call store").
type loadedMaster struct {
	template *mastercall.Template
	refCount int64
}

// Engine owns the session registry, the master-call store, and the bounded
// worker pool every session's concurrency-sensitive work runs through
// (§4.13). It generalizes the teacher's internal/analysis/worker.go
// WorkerPool — there a fixed-size pool of goroutines drained a job channel
// of ffmpeg-decode tasks; here golang.org/x/sync/semaphore bounds
// concurrent dispatch and golang.org/x/sync/errgroup collects the result of
// each bounded call, since the engine's work is calling into sessions
// rather than decoding files on a shared queue.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*Session
	masters  map[string]*loadedMaster

	sem    *semaphore.Weighted
	logger *log.Logger

	profile config.Profile

	nextSessionID int64

	dispatched int64 // atomic: total calls admitted through the worker pool
	rejected   int64 // atomic: calls that hit MaxConcurrency and returned Backpressure
}

// Options configures a new Engine (§6.4 "Engine-wide tunables").
type Options struct {
	Profile        config.Profile
	MaxConcurrency int64 // bounded worker pool width, §5
	Logger         *log.Logger
}

// New builds an Engine with no sessions and no loaded master calls.
func New(opts Options) *Engine {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		sessions: make(map[string]*Session),
		masters:  make(map[string]*loadedMaster),
		sem:      semaphore.NewWeighted(opts.MaxConcurrency),
		logger:   logger,
		profile:  opts.Profile,
	}
}

// LoadMasterCall decodes a bundle (§6.2) and stores it under name,
// incrementing its reference count if already loaded (§4.13
// "loadMasterCall").
func (e *Engine) LoadMasterCall(name string, bundle []byte) Result[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	if lm, ok := e.masters[name]; ok {
		lm.refCount++
		return Ok(struct{}{})
	}

	tmpl, err := mastercall.Decode(bundle)
	if err != nil {
		return Fail[struct{}](wrapErr(ErrInvalidConfig, "decoding master-call bundle", err))
	}
	tmpl.Name = name
	e.masters[name] = &loadedMaster{template: tmpl, refCount: 1}
	e.logger.Info("master call loaded", "name", name, "frames", len(tmpl.MFCC))
	return Ok(struct{}{})
}

// UnloadMasterCall decrements name's reference count and evicts it once it
// reaches zero (§4.13 "unloadMasterCall").
func (e *Engine) UnloadMasterCall(name string) Result[struct{}] {
	e.mu.Lock()
	defer e.mu.Unlock()

	lm, ok := e.masters[name]
	if !ok {
		return Fail[struct{}](newErr(ErrMasterNotFound, fmt.Sprintf("master call %q not loaded", name)))
	}
	lm.refCount--
	if lm.refCount <= 0 {
		delete(e.masters, name)
		e.logger.Info("master call unloaded", "name", name)
	}
	return Ok(struct{}{})
}

// CreateSession allocates a new session id and Session in StateCreated
// (§4.12 "createSession").
func (e *Engine) CreateSession(raw SessionConfigInput) Result[string] {
	resolved, err := raw.Config.Resolved(e.profile)
	if err != nil {
		return Fail[string](wrapErr(ErrInvalidConfig, err.Error(), err))
	}

	e.mu.Lock()
	e.nextSessionID++
	id := fmt.Sprintf("sess-%d", e.nextSessionID)
	sess := NewSession(resolved, e.profile, e.logger)
	e.sessions[id] = sess
	e.mu.Unlock()

	e.logger.Debug("session created", "id", id)

	if raw.MasterName != "" {
		if res := e.BindMasterCall(id, raw.MasterName); !res.IsOk() {
			return Fail[string](res.Err)
		}
	}
	return Ok(id)
}

// CreateSessionJSON is createSession's host-facing entry point: callers
// handing the engine a raw JSON config object (rather than a Go-typed
// SessionConfig built by another package in this module) go through here so
// an unrecognized key fails as InvalidConfig instead of being silently
// dropped by json.Unmarshal, per §6.4. masterName may be empty.
func (e *Engine) CreateSessionJSON(rawJSON []byte, masterName string) Result[string] {
	var raw map[string]any
	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &raw); err != nil {
			return Fail[string](wrapErr(ErrInvalidConfig, "decoding session config", err))
		}
		if err := config.ValidateRawKeys(raw); err != nil {
			return Fail[string](wrapErr(ErrInvalidConfig, err.Error(), err))
		}
	}

	var cfg config.SessionConfig
	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &cfg); err != nil {
			return Fail[string](wrapErr(ErrInvalidConfig, "decoding session config", err))
		}
	}

	return e.CreateSession(SessionConfigInput{Config: cfg, MasterName: masterName})
}

// SessionConfigInput bundles a raw SessionConfig with the master-call name
// createSession should bind immediately, since §4.12 allows creating a
// session already pointed at a master call.
type SessionConfigInput struct {
	Config     config.SessionConfig
	MasterName string
}

// BindMasterCall looks up a loaded master call by name and binds it to an
// existing session, incrementing nothing further (the session holds a
// pointer into the already-refcounted store entry) — used both by
// CreateSession when MasterName is set and directly by setMasterCall calls
// (§4.12, §4.13).
func (e *Engine) BindMasterCall(sessionID, masterName string) Result[struct{}] {
	e.mu.Lock()
	sess, ok := e.sessions[sessionID]
	lm, mok := e.masters[masterName]
	e.mu.Unlock()

	if !ok {
		return Fail[struct{}](newErr(ErrWrongState, fmt.Sprintf("unknown session %q", sessionID)))
	}
	if !mok {
		return Fail[struct{}](newErr(ErrMasterNotFound, fmt.Sprintf("master call %q not loaded", masterName)))
	}
	return sess.SetMasterCall(lm.template)
}

// Session returns the session registered under id, or ok=false if it
// doesn't exist (already destroyed, or never created).
func (e *Engine) Session(id string) (*Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[id]
	return s, ok
}

// DestroySession destroys and deregisters a session (§4.12
// "destroySession").
func (e *Engine) DestroySession(id string) Result[struct{}] {
	e.mu.Lock()
	sess, ok := e.sessions[id]
	if ok {
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	if !ok {
		return Fail[struct{}](newErr(ErrWrongState, fmt.Sprintf("unknown session %q", id)))
	}
	sess.Destroy()
	return Ok(struct{}{})
}

// ListActiveSessions returns the ids of every currently-registered session
// (§4.13 "listActiveSessions").
func (e *Engine) ListActiveSessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Metrics is the payload of getSystemMetrics (§4.13).
type Metrics struct {
	ActiveSessions  int
	LoadedMasters   int
	Dispatched      int64
	Rejected        int64
}

// GetSystemMetrics reports coarse engine-wide telemetry (§4.13
// "getSystemMetrics").
func (e *Engine) GetSystemMetrics() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Metrics{
		ActiveSessions: len(e.sessions),
		LoadedMasters:  len(e.masters),
		Dispatched:     atomic.LoadInt64(&e.dispatched),
		Rejected:       atomic.LoadInt64(&e.rejected),
	}
}

// Dispatch runs fn under the engine's bounded worker pool (§5 "bounded
// concurrency"), returning Backpressure immediately if ctx is already
// cancelled or every slot is in use and ctx expires before one frees up.
// It's the engine's entry point for any call a host wants run off its own
// goroutine — processAudioChunk in particular, per §5's latency budget,
// since a caller blocked directly on TryAcquire would itself violate the
// budget it's trying to protect.
func (e *Engine) Dispatch(ctx context.Context, fn func(context.Context) error) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		atomic.AddInt64(&e.rejected, 1)
		return newErr(ErrBackpressure, "worker pool saturated")
	}
	defer e.sem.Release(1)
	atomic.AddInt64(&e.dispatched, 1)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return fn(gctx) })
	return g.Wait()
}
