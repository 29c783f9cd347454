package maincmd

import (
	"net"

	"github.com/coreos/go-systemd/v22/activation"
)

// systemdListeners returns the listeners passed in by systemd socket
// activation (LISTEN_FDS), if any. An empty slice means the caller
// should create its own listener.
func systemdListeners() ([]net.Listener, error) {
	return activation.Listeners()
}
