package rsyncd

import (
	"fmt"
	"os"

	"github.com/oferchen/rsync-sub017/internal/restrict"
)

// RestrictToModules applies OS-level filesystem sandboxing (see
// internal/restrict) limited to exactly the paths the configured
// modules expose. It is the daemon's fallback isolation layer for
// deployments that skip the Linux mount-namespace path (see
// internal/maincmd's dont_namespace option), e.g. because the process
// isn't running as root.
func RestrictToModules(modules []Module) error {
	var roDirs, rwDirs []string
	for _, mod := range modules {
		if mod.Writable {
			if err := os.MkdirAll(mod.Path, 0755); err != nil {
				return fmt.Errorf("MkdirAll(mod=%s): %v", mod.Name, err)
			}
			rwDirs = append(rwDirs, mod.Path)
		} else {
			roDirs = append(roDirs, mod.Path)
		}
	}
	return restrict.MaybeFileSystem(roDirs, rwDirs)
}
