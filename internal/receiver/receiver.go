package receiver

import (
	"fmt"
	"io"
	"os"

	"github.com/oferchen/rsync-sub017/internal/delta"
)

// rsync/receiver.c:recv_files
func (rt *Transfer) RecvFiles(fileList []*File) error {
	phase := 0
	for {
		idx, err := rt.Conn.ReadInt32()
		if err != nil {
			return err
		}
		if idx == -1 {
			if phase == 0 {
				phase++
				if rt.Opts.Verbose {
					rt.Logger.Printf("recvFiles phase=%d", phase)
				}
				continue
			}
			break
		}
		if int(idx) < 0 || int(idx) >= len(fileList) {
			return fmt.Errorf("receiver: index %d out of range (have %d files)", idx, len(fileList))
		}
		if rt.Opts.Verbose {
			rt.Logger.Printf("receiving file idx=%d: %s", idx, fileList[idx].Path)
		}
		if err := rt.recvFile1(int64(idx), fileList[idx]); err != nil {
			rt.IOErrors++
			return err
		}
	}
	if rt.Opts.Verbose {
		rt.Logger.Printf("recvFiles finished")
	}
	return nil
}

func (rt *Transfer) recvFile1(idx int64, f *File) error {
	if f.IsDir() {
		return nil
	}
	if f.IsSymlink() {
		return rt.recvSymlink(f)
	}

	if rt.Opts.DryRun {
		if !rt.Opts.Server {
			fmt.Fprintln(rt.Env.Stdout, f.Path)
		}
		return nil
	}

	return rt.receiveData(idx, f)
}

type emptyReaderAt struct{}

func (emptyReaderAt) ReadAt([]byte, int64) (int, error) { return 0, io.EOF }

// rsync/receiver.c:receive_data
func (rt *Transfer) receiveData(idx int64, f *File) error {
	local := localPath(rt.Dest, f.Path)

	var basis io.ReaderAt = emptyReaderAt{}
	basisFile, err := os.Open(local)
	if err == nil {
		defer basisFile.Close()
		basis = basisFile
	} else if !os.IsNotExist(err) {
		rt.Logger.Printf("opening local file failed, continuing without a basis: %v", err)
	}

	layout, ok := rt.layouts.Load(idx)
	if !ok {
		return fmt.Errorf("receiver: no signature layout recorded for index %d", idx)
	}

	if rt.Logger != nil && rt.Opts.Verbose {
		rt.Logger.Printf("creating %s", local)
	}
	if err := delta.Apply(basis, layout.BlockLength, rt.Conn.Reader, local); err != nil {
		return err
	}

	if err := rt.setPerms(f, local); err != nil {
		return err
	}
	return nil
}
