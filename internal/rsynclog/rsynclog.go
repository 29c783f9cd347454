// Package rsynclog provides the logging seam shared by every role and
// by the daemon: a small Logger interface plus a default
// zerolog-backed implementation, and a package-level logger for call
// sites that predate a request-scoped logger being threaded through
// (mirrored on the teacher's ad-hoc internal/log global).
package rsynclog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger is the minimal interface every role depends on. Production
// code should prefer an instance threaded through explicitly; the
// package-level functions below exist for the few call sites (CLI
// startup, panics) that run before one is available.
type Logger interface {
	Printf(format string, args ...any)
}

type zlogger struct {
	l zerolog.Logger
}

// New returns a Logger that writes human-readable lines to w, in the
// same spirit as the teacher's internal/log.New(io.Writer).
func New(w io.Writer) Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	return &zlogger{l: zl}
}

// NewJSON returns a Logger that writes structured JSON lines, for
// daemon deployments that ship logs to a collector instead of a
// terminal.
func NewJSON(w io.Writer) Logger {
	return &zlogger{l: zerolog.New(w).With().Timestamp().Logger()}
}

func (z *zlogger) Printf(format string, args ...any) {
	z.l.Info().Msgf(format, args...)
}

var global Logger = New(os.Stderr)

// SetLogger installs the package-level logger used by Printf.
func SetLogger(l Logger) { global = l }

// Printf logs through the package-level logger.
func Printf(format string, args ...any) { global.Printf(format, args...) }

// Discard is a Logger that throws every line away, useful in tests
// that only care about the returned error.
var Discard Logger = discard{}

type discard struct{}

func (discard) Printf(string, ...any) {}
