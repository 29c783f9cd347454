// Package testlogger adapts *testing.T into an io.Writer, so server
// and client code that logs to an io.Writer can have its output
// attributed to the right subtest instead of leaking onto stdout.
package testlogger

import (
	"strings"
	"testing"
)

type writer struct {
	t *testing.T
}

// New returns an io.Writer whose Write calls t.Logf once per line.
func New(t *testing.T) *writer {
	return &writer{t: t}
}

func (w *writer) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		w.t.Log(line)
	}
	return len(p), nil
}
