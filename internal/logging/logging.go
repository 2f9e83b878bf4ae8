// Package logging provides the engine's injectable structured-logging
// callback (§9 "Observability"). It replaces the teacher's package-level
// debug-print helpers scattered through internal/analysis and internal/audio
// with a single charmbracelet/log logger threaded explicitly through the
// Engine and every Session, so a host application can redirect or silence
// it without package-level global state.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New builds a charmbracelet/log logger writing to w with the given level,
// used as the engine's default when the caller doesn't inject one.
func New(w io.Writer, level log.Level) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})
	l.SetLevel(level)
	return l
}

// Default returns a logger writing to stderr at info level, the engine's
// out-of-the-box choice when no Logger is supplied at construction.
func Default() *log.Logger {
	return New(os.Stderr, log.InfoLevel)
}

// Discard returns a logger that drops everything, useful for tests that
// don't want log noise but still need a non-nil *log.Logger.
func Discard() *log.Logger {
	return New(io.Discard, log.FatalLevel+1)
}
