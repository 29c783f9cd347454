// Package rsyncos collects the process-level I/O and environment
// seams the core consumes but does not own: stdin/stdout/stderr, a
// logging hook, and whether the process should sandbox its own
// filesystem access. Keeping these in one small struct (instead of
// threading *os.File and friends through every call) matches the
// teacher's internal/rsyncos usage from maincmd.
package rsyncos

import (
	"fmt"
	"io"
)

// Std bundles the three standard streams a role or daemon connection
// reads and writes against. For an SSH-spawned child these are the
// process's real stdio; for an in-process transfer (see rsyncclient)
// they are whatever io.Reader/io.Writer the caller supplied.
type Std struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Env extends Std with process-lifetime configuration: whether to
// apply OS sandboxing (internal/restrict), plus a Logf method that
// writes to Stderr.
// Separate from Std because a daemon's long-lived accept loop needs
// Env once, while each accepted connection gets its own Std.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// DontRestrict disables internal/restrict sandboxing, e.g.
	// because a parent process already applied it and per-process
	// policy layers are budget-limited.
	DontRestrict bool
}

// Restrict reports whether OS sandboxing should be applied.
func (e *Env) Restrict() bool { return !e.DontRestrict }

// Logf writes a formatted line to Stderr, falling back to nothing if
// Stderr is nil (tests that don't care about log output).
func (e *Env) Logf(format string, args ...any) {
	if e.Stderr == nil {
		return
	}
	fmt.Fprintf(e.Stderr, format+"\n", args...)
}

// Std returns the Std view of this Env.
func (e *Env) Std() Std {
	return Std{Stdin: e.Stdin, Stdout: e.Stdout, Stderr: e.Stderr}
}
