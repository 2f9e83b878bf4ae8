// Package engine implements the session state machine and engine-level
// session/master-call registries of §4.12-§4.13, wired together from the
// dsp, features, vad, segment, dtw, scoring, and mastercall packages. Its
// error taxonomy and Result[T] pattern are adapted from the teacher's
// internal/ipc protocol, which used a discriminated {ok, error-code,
// payload} response shape at the IPC boundary — here the same
// discriminated-result idea is kept, but moved in-process as a return
// value instead of a wire message, since this module has no IPC frontend.
package engine

import "fmt"

// ErrorKind enumerates every error category the engine's public operations
// can return (§7).
type ErrorKind string

const (
	ErrInvalidConfig     ErrorKind = "InvalidConfig"
	ErrInvalidAudioData  ErrorKind = "InvalidAudioData"
	ErrWrongState        ErrorKind = "WrongState"
	ErrNoMasterCall      ErrorKind = "NoMasterCall"
	ErrMasterNotFound    ErrorKind = "MasterNotFound"
	ErrInsufficientData  ErrorKind = "InsufficientData"
	ErrBackpressure      ErrorKind = "Backpressure"
	ErrComponentError    ErrorKind = "ComponentError"
	ErrInternalError     ErrorKind = "InternalError"
)

// ComponentKind names which feature component failed when Kind is
// ErrComponentError (§7 "ComponentError sub-kinds").
type ComponentKind string

const (
	ComponentMFCC     ComponentKind = "MFCC"
	ComponentPitch    ComponentKind = "Pitch"
	ComponentHarmonic ComponentKind = "Harmonic"
	ComponentCadence  ComponentKind = "Cadence"
	ComponentLoudness ComponentKind = "Loudness"
	ComponentDTW      ComponentKind = "DTW"
)

// Error is the engine's single error type; every returned error can be
// type-asserted to *Error to inspect Kind and, for ErrComponentError,
// Component (§7).
type Error struct {
	Kind      ErrorKind
	Component ComponentKind // only meaningful when Kind == ErrComponentError
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Component, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func wrapErr(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func componentErr(component ComponentKind, msg string, cause error) *Error {
	return &Error{Kind: ErrComponentError, Component: component, Message: msg, Cause: cause}
}
