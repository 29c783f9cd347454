package receiver

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/oferchen/rsync-sub017"
	"github.com/oferchen/rsync-sub017/internal/checksum"
	"github.com/oferchen/rsync-sub017/internal/generator"
	"github.com/oferchen/rsync-sub017/internal/rsyncstats"
	"github.com/oferchen/rsync-sub017/internal/rsyncwire"
	"golang.org/x/sync/errgroup"
)

func isTopDir(f *File) bool {
	return f.Path == "."
}

func (rt *Transfer) deleteFiles(fileList []*File) error {
	if rt.IOErrors > 0 {
		rt.Logger.Printf("IO error encountered, skipping file deletion")
		return nil
	}

	for _, f := range fileList {
		if !isTopDir(f) {
			continue
		}
		rt.Logger.Printf("deleting in %s", f.Path)
		root := filepath.Clean(rt.Dest)
		strip := root + "/"
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			name := strings.TrimPrefix(path, strip)
			if name == root {
				name = "."
			}
			if findInFileList(fileList, name) {
				return nil
			}
			if rt.Opts.Verbose {
				rt.Logger.Printf("  deleting %s", name)
			}
			if rt.Opts.DryRun {
				return nil
			}
			return os.Remove(path)
		})
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
	}
	return nil
}

// algorithm picks the strong-checksum algorithm the generator derives
// basis signatures with, matching the sender's own choice (spec.md
// §4.12: both ends must agree on the algorithm without negotiating it
// out of band).
func (rt *Transfer) algorithm() checksum.Algorithm {
	return checksum.MD4
}

// GenerateFiles runs the generator role for fileList, deriving local
// basis signatures and recording their layouts in rt.layouts so
// RecvFiles can later interpret copy tokens against the same local
// files.
func (rt *Transfer) GenerateFiles(fileList []*File) error {
	g := &generator.Role{
		Logger:             rt.Logger,
		DestRoot:           rt.Dest,
		Algorithm:          rt.algorithm(),
		Protocol:           rsync.ProtocolVersion,
		MinStrongSumLength: 0,
		Seed:               rt.Seed,
	}
	return g.Run(rt.Conn, fileList, rt.layouts)
}

// rsync/main.c:do_recv
func (rt *Transfer) Do(c *rsyncwire.Conn, fileList []*File, noReport bool) (*rsyncstats.TransferStats, error) {
	if rt.Opts.DeleteMode {
		if err := rt.deleteFiles(fileList); err != nil {
			return nil, err
		}
	}
	if rt.layouts == nil {
		rt.layouts = generator.NewLayouts()
	}

	ctx := context.Background()
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return rt.GenerateFiles(fileList)
	})
	eg.Go(func() error {
		errChan := make(chan error, 1)
		go func() {
			errChan <- rt.RecvFiles(fileList)
		}()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errChan:
			return err
		}
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var stats *rsyncstats.TransferStats
	if !noReport {
		var err error
		stats, err = rt.report(c)
		if err != nil {
			return nil, err
		}
	}

	if err := c.WriteInt32(-1); err != nil {
		return nil, err
	}

	return stats, nil
}

// rsync/main.c:report
func (rt *Transfer) report(c *rsyncwire.Conn) (*rsyncstats.TransferStats, error) {
	read, err := c.ReadInt64()
	if err != nil {
		return nil, err
	}
	written, err := c.ReadInt64()
	if err != nil {
		return nil, err
	}
	size, err := c.ReadInt64()
	if err != nil {
		return nil, err
	}
	rt.Logger.Printf("server sent stats: read=%d, written=%d, size=%d", read, written, size)

	return &rsyncstats.TransferStats{
		Read:    read,
		Written: written,
		Size:    size,
	}, nil
}
