//go:build linux

package maincmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/oferchen/rsync-sub017/internal/rsyncos"
	"github.com/oferchen/rsync-sub017/rsyncd"
)

// errIsParent is never actually returned by namespace: this
// implementation isolates modules in the current process's mount
// namespace instead of forking a supervising parent, but callers still
// check for it so a future fork-based implementation can slot in
// without changing call sites.
var errIsParent = errors.New("namespace: is parent")

// namespace moves the process into one private mount namespace and
// bind-mounts each configured module's path onto itself, read-only
// unless the module is writable. Paths outside the modules stay
// visible. If unshare is denied with EPERM, it logs and returns nil
// without any mount isolation.
func namespace(osenv *rsyncos.Env, modules []rsyncd.Module, listenAddr string) error {
	if err := syscall.Unshare(syscall.CLONE_NEWNS); err != nil {
		if errors.Is(err, syscall.EPERM) {
			osenv.Logf("namespace: unshare(CLONE_NEWNS) denied (%v), continuing without mount isolation", err)
			return nil
		}
		return fmt.Errorf("unshare(CLONE_NEWNS): %v", err)
	}

	// Mount propagation must be made private before bind-mounting,
	// otherwise the bind mounts would leak into the parent namespace.
	if err := syscall.Mount("", "/", "", syscall.MS_REC|syscall.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("mount MS_PRIVATE: %v", err)
	}

	for _, mod := range modules {
		flags := uintptr(syscall.MS_BIND | syscall.MS_REC)
		if err := syscall.Mount(mod.Path, mod.Path, "", flags, ""); err != nil {
			return fmt.Errorf("bind-mounting module %q at %s: %v", mod.Name, mod.Path, err)
		}
		if !mod.Writable {
			remountFlags := flags | syscall.MS_RDONLY | syscall.MS_REMOUNT
			if err := syscall.Mount(mod.Path, mod.Path, "", remountFlags, ""); err != nil {
				return fmt.Errorf("remounting module %q read-only: %v", mod.Name, err)
			}
		}
	}
	return nil
}

// canUnexpectedlyWriteTo reports whether path resolves outside of
// itself via symlinks, which would let a read-only module escape its
// bind mount.
func canUnexpectedlyWriteTo(path string) error {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	clean := filepath.Clean(path)
	if resolved != clean && !strings.HasPrefix(resolved, clean+string(os.PathSeparator)) {
		return fmt.Errorf("module path %s resolves to %s outside of its own tree", path, resolved)
	}
	return nil
}
