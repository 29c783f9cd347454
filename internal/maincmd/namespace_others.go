//go:build !linux

package maincmd

import (
	"errors"

	"github.com/oferchen/rsync-sub017/internal/rsyncos"
	"github.com/oferchen/rsync-sub017/rsyncd"
)

var errIsParent = errors.New("namespace: is parent")

func namespace(osenv *rsyncos.Env, modules []rsyncd.Module, listenAddr string) error {
	osenv.Logf("namespace: mount isolation is only implemented on linux")
	return nil
}

func canUnexpectedlyWriteTo(path string) error {
	return nil
}
