// Package receiver implements the receiver role (spec.md §4.14): it
// reads the file list the sender transmits, then concurrently runs
// the generator sub-role (internal/generator, producing basis
// signatures for files it already has) and the receive loop that
// applies the resulting delta tokens to local files.
//
// This is a direct generalization of the teacher's internal/receiver:
// the wire loop structure (RecvFiles/recvFile1/receiveData, run
// concurrently with the generator via errgroup) and the setUid/
// symlink helpers are kept, but File/Transfer now carry this module's
// own signature/delta/hardlink primitives instead of the
// teacher's unexported SumHead and undefined helper types (the
// teacher's own definitions for several of those types were not
// present in the retrieval pack to begin with).
package receiver

import (
	"os"

	"github.com/oferchen/rsync-sub017/internal/filelist"
	"github.com/oferchen/rsync-sub017/internal/generator"
	"github.com/oferchen/rsync-sub017/internal/hardlink"
	"github.com/oferchen/rsync-sub017/internal/rsyncos"
	"github.com/oferchen/rsync-sub017/internal/rsynclog"
	"github.com/oferchen/rsync-sub017/internal/rsyncwire"
)

// File is one file-list entry, as decoded by internal/filelist.
type File = filelist.Entry

// TransferOpts mirrors the subset of rsyncopts.Options the receiver
// role consults, decoupled from the flag parser so tests can
// construct one directly.
type TransferOpts struct {
	Verbose bool
	DryRun  bool
	Server  bool

	DeleteMode        bool
	PreserveGid       bool
	PreserveUid       bool
	PreserveLinks     bool
	PreservePerms     bool
	PreserveDevices   bool
	PreserveSpecials  bool
	PreserveTimes     bool
	PreserveHardlinks bool
}

// Transfer holds the state of one receiver-side run.
type Transfer struct {
	Logger rsynclog.Logger
	Opts   *TransferOpts

	Dest string
	Env  rsyncos.Std

	Conn *rsyncwire.Conn
	Seed int32

	IOErrors int

	hardlinks *hardlink.Registry
	layouts   *generator.Layouts
}

// ReceiveFileList decodes the file list the sender transmits.
func (rt *Transfer) ReceiveFileList() ([]*File, error) {
	dec := filelist.NewDecoder(rt.Conn.Reader, !rt.Opts.Server)
	var entries []*File
	for {
		e, err := dec.Decode()
		if err != nil {
			return nil, err
		}
		if e == nil {
			break
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func findInFileList(fileList []*File, name string) bool {
	for _, f := range fileList {
		if f.Path == name {
			return true
		}
	}
	return false
}

func localPath(dest, name string) string {
	if name == "." {
		return dest
	}
	return dest + string(os.PathSeparator) + name
}
