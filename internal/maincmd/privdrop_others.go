//go:build !linux || nonamespacing

package maincmd

import "github.com/oferchen/rsync-sub017/internal/rsyncos"

// dropPrivileges is a no-op outside of the Linux namespacing build:
// there is no portable setuid/setgid story worth pretending at here.
func dropPrivileges(osenv *rsyncos.Env) error {
	return nil
}
