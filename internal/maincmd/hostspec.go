package maincmd

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// defaultDaemonPort is the well-known rsync daemon TCP port.
const defaultDaemonPort = 873

var errNotAHostspec = errors.New("not a remote hostspec")

// checkForHostspec parses the SRC/DEST argument forms rsync(1)
// accepts for daemon and remote-shell transfers:
//
//	rsync://host[:port]/module/path
//	host::module/path      (daemon via remote shell or raw socket)
//	host:path               (remote shell, not a daemon)
//
// It returns errNotAHostspec for a plain local path.
func checkForHostspec(s string) (host, path string, port int, err error) {
	if strings.HasPrefix(s, "rsync://") {
		u, perr := url.Parse(s)
		if perr != nil {
			return "", "", 0, perr
		}
		host = u.Hostname()
		port = defaultDaemonPort
		if p := u.Port(); p != "" {
			n, perr := strconv.Atoi(p)
			if perr != nil {
				return "", "", 0, perr
			}
			port = n
		}
		return host, strings.TrimPrefix(u.Path, "/"), port, nil
	}

	if idx := strings.Index(s, "::"); idx > 0 {
		return s[:idx], s[idx+2:], defaultDaemonPort, nil
	}

	if idx := strings.IndexByte(s, ':'); idx > 0 && !strings.Contains(s[:idx], "/") {
		return s[:idx], s[idx+1:], 0, nil
	}

	return "", "", 0, errNotAHostspec
}
