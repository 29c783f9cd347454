package receiver

import (
	"fmt"
	"os"
	"time"
)

func (rt *Transfer) recvSymlink(f *File) error {
	local := localPath(rt.Dest, f.Path)
	if rt.Opts.DryRun {
		if !rt.Opts.Server {
			fmt.Fprintln(rt.Env.Stdout, f.Path)
		}
		return nil
	}
	if !rt.Opts.PreserveLinks {
		return nil
	}
	if err := symlink(f.LinkTarget, local); err != nil {
		return err
	}
	return nil
}

// setPerms applies permission bits, ownership and modification time to
// local, matching what the file list entry f recorded, once the file
// contents are in place.
func (rt *Transfer) setPerms(f *File, local string) error {
	st, err := os.Lstat(local)
	if err != nil {
		return err
	}

	if rt.Opts.PreservePerms {
		if err := os.Chmod(local, f.Mode.Perm()); err != nil {
			return err
		}
	}

	if rt.Opts.PreserveUid || rt.Opts.PreserveGid {
		if _, err := rt.setUid(f, local, st); err != nil {
			return err
		}
	}

	if rt.Opts.PreserveTimes {
		mtime := time.Unix(f.ModSec, int64(f.ModNS))
		if err := os.Chtimes(local, mtime, mtime); err != nil {
			return err
		}
	}

	return nil
}
