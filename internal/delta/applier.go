package delta

import (
	"fmt"
	"io"

	"github.com/google/renameio/v2"
	"github.com/oferchen/rsync-sub017/internal/rerr"
)

const applierScratchMin = 8 * 1024

// Apply replays a token stream read from r against basis, writing the
// reconstructed file atomically to destPath (spec.md §4.4): tokens are
// decoded one at a time, Literal bytes are written directly, Copy
// tokens copy Length bytes of basis starting at Index*blockLength. The output
// is written to a temporary sibling file and renamed into place only
// once fully written, so a crash mid-transfer never leaves a partial
// destPath behind.
func Apply(basis io.ReaderAt, blockLength uint32, r io.Reader, destPath string) error {
	pf, err := renameio.NewPendingFile(destPath)
	if err != nil {
		return rerr.Wrap(rerr.KindIO, "delta.Apply: create temp file", err)
	}
	defer pf.Cleanup()

	scratchLen := int(blockLength)
	if scratchLen < applierScratchMin {
		scratchLen = applierScratchMin
	}
	scratch := make([]byte, scratchLen)

	var prevIndex int64 = -1
	for {
		tok, next, ok, err := DecodeToken(r, prevIndex)
		if err != nil {
			return rerr.Wrap(rerr.KindSignatureDelta, "delta.Apply: decode token", err)
		}
		if !ok {
			break
		}
		prevIndex = next

		if tok.Literal != nil {
			if _, err := pf.Write(tok.Literal); err != nil {
				return rerr.Wrap(rerr.KindIO, "delta.Apply: write literal", err)
			}
			continue
		}

		if tok.Length < 0 {
			return rerr.Wrap(rerr.KindSignatureDelta, "delta.Apply: invalid copy length", fmt.Errorf("length %d", tok.Length))
		}
		buf := scratch
		if tok.Length > len(buf) {
			buf = make([]byte, tok.Length)
		}
		buf = buf[:tok.Length]

		offset := tok.Index * int64(blockLength)
		if offset < 0 {
			return rerr.Wrap(rerr.KindSignatureDelta, "delta.Apply: invalid copy offset", fmt.Errorf("index %d", tok.Index))
		}
		n, err := basis.ReadAt(buf, offset)
		if n < len(buf) {
			if err == io.EOF || err == nil {
				return rerr.Wrap(rerr.KindIO, "delta.Apply: basis shorter than token claims", io.ErrUnexpectedEOF)
			}
			return rerr.Wrap(rerr.KindIO, "delta.Apply: read basis", err)
		}
		if _, err := pf.Write(buf); err != nil {
			return rerr.Wrap(rerr.KindIO, "delta.Apply: write copy", err)
		}
	}

	if err := pf.CloseAtomicallyReplace(); err != nil {
		return rerr.Wrap(rerr.KindIO, "delta.Apply: atomic rename", err)
	}
	return nil
}
