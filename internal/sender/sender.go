// Package sender implements the sender role (spec.md §4.13): it
// builds and transmits the file list for a set of source paths, then
// for each file the peer's generator already has a basis signature
// for, computes a delta script against that signature and streams the
// resulting tokens back.
//
// The teacher's own source for this role was not included in the
// retrieval pack (only call sites referencing it survived in
// rsyncd/rsyncd.go and internal/maincmd/clientmaincmd.go), so this
// package is built directly from spec.md §4.13 atop the already
// adapted internal/delta, internal/signature and internal/filelist
// primitives, matching the Transfer{Logger,Opts,Conn,Seed}.Do(...)
// call shape the teacher's call sites exhibit.
package sender

import (
	"io"
	"os"
	"path/filepath"

	"github.com/oferchen/rsync-sub017/internal/checksum"
	"github.com/oferchen/rsync-sub017/internal/delta"
	"github.com/oferchen/rsync-sub017/internal/filelist"
	"github.com/oferchen/rsync-sub017/internal/filter"
	"github.com/oferchen/rsync-sub017/internal/rsyncopts"
	"github.com/oferchen/rsync-sub017/internal/rsyncstats"
	"github.com/oferchen/rsync-sub017/internal/rsynclog"
	"github.com/oferchen/rsync-sub017/internal/rsyncwire"
	"github.com/oferchen/rsync-sub017/internal/signature"
)

// Transfer holds the per-connection state driving one sender-side
// run, mirroring the receiver package's Transfer shape.
type Transfer struct {
	Logger rsynclog.Logger
	Opts   *rsyncopts.Options
	Conn   *rsyncwire.Conn
	Seed   int32
}

func (st *Transfer) algorithm() checksum.Algorithm {
	if st.Opts != nil && st.Opts.AlwaysChecksum() {
		return checksum.MD5
	}
	return checksum.MD4
}

// Do walks root/paths (skipping anything exclude rejects), sends the
// resulting file list, then answers every signature request the
// peer's generator issues with a delta script, until the peer signals
// completion with a -1 index.
func (st *Transfer) Do(crd *rsyncwire.CountingReader, cwr *rsyncwire.CountingWriter, root string, paths []string, exclude *FilterList) (*rsyncstats.TransferStats, error) {
	entries, absPaths, err := st.buildFileList(root, paths, exclude)
	if err != nil {
		return nil, err
	}

	enc := filelist.NewEncoder(st.Conn.Writer)
	var totalSize int64
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return nil, err
		}
		totalSize += e.Length
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}

	algo := st.algorithm()
	for {
		idx, err := st.Conn.ReadInt32()
		if err != nil {
			return nil, err
		}
		if idx == -1 {
			break
		}
		if int(idx) < 0 || int(idx) >= len(entries) {
			return nil, io.ErrUnexpectedEOF
		}
		sig, err := signature.ReadSignature(st.Conn.Reader)
		if err != nil {
			return nil, err
		}
		if err := st.sendDelta(idx, absPaths[idx], sig, algo); err != nil {
			return nil, err
		}
	}

	stats := &rsyncstats.TransferStats{
		Read:    crd.Count,
		Written: cwr.Count,
		Size:    totalSize,
	}
	if err := st.Conn.WriteInt64(stats.Read); err != nil {
		return nil, err
	}
	if err := st.Conn.WriteInt64(stats.Written); err != nil {
		return nil, err
	}
	if err := st.Conn.WriteInt64(stats.Size); err != nil {
		return nil, err
	}

	// Consume the receiver's final goodbye.
	if _, err := st.Conn.ReadInt32(); err != nil && err != io.EOF {
		return nil, err
	}

	return stats, nil
}

func (st *Transfer) sendDelta(idx int32, path string, sig signature.Signature, algo checksum.Algorithm) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := st.Conn.WriteInt32(idx); err != nil {
		return err
	}

	idxTable := signature.Build(&sig)
	prevIndex := int64(-1)
	emit := func(t delta.Token) error {
		var err error
		prevIndex, err = delta.EncodeToken(st.Conn.Writer, t, prevIndex)
		return err
	}
	if err := delta.Generate(f, sig.Layout, idxTable, algo, st.Seed, emit); err != nil {
		return err
	}
	return delta.WriteTerminator(st.Conn.Writer)
}

// buildFileList walks root joined with each of paths, applying
// exclude's engine, and returns both the wire entries (with
// module-relative names) and their corresponding absolute paths in
// the same order, so sendDelta can later reopen the right file by
// index.
func (st *Transfer) buildFileList(root string, paths []string, exclude *FilterList) ([]*filelist.Entry, []string, error) {
	var entries []*filelist.Entry
	var absPaths []string

	for _, rel := range paths {
		base := filepath.Join(root, rel)
		err := filepath.Walk(base, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			name, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			isDir := info.IsDir()
			if exclude != nil && exclude.Engine != nil {
				if exclude.Engine.Decide(name, isDir, true) == filter.ActionExclude {
					if isDir {
						return filepath.SkipDir
					}
					return nil
				}
			}

			e := &filelist.Entry{
				Path:   name,
				Length: info.Size(),
				ModSec: info.ModTime().Unix(),
				Mode:   info.Mode(),

				ACLIndex:   -1,
				XattrIndex: -1,
			}
			if info.Mode()&os.ModeSymlink != 0 {
				target, err := os.Readlink(p)
				if err != nil {
					return err
				}
				e.LinkTarget = target
			}
			entries = append(entries, e)
			absPaths = append(absPaths, p)
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return entries, absPaths, nil
}
