// Package version exposes the build-time identification string this
// rsync implementation reports to peers and to the --version flag.
package version

import "runtime/debug"

// Name is the program name reported in --version output and in the
// daemon's MOTD banner.
const Name = "rsync-sub017"

// Read returns a one-line "name vX.Y (module version)" identification
// string. The module version comes from the build info embedded by
// `go build` (VCS stamping), falling back to "devel" when building
// from a tree without module metadata (e.g. `go run`).
func Read() string {
	v := "devel"
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" {
		v = bi.Main.Version
	}
	return Name + " " + v
}

// ProtocolCompat is the free-form protocol compatibility string
// tridge rsync and openrsync both tolerate in daemon greetings; it is
// purely informational and never parsed by a compliant peer.
const ProtocolCompat = "protocol-compatible"
