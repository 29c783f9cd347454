package rsyncwire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub017"
)

// MultiplexWriter wraps an io.Writer and frames every Write call as a
// MsgData frame (spec.md §4.5). Out-of-band message types (errors,
// warnings, stats, ...) go through WriteMsg instead. Every send is
// followed by a flush of the underlying writer, if it supports one.
type MultiplexWriter struct {
	Writer io.Writer
}

type flusher interface{ Flush() error }

func (w *MultiplexWriter) Write(p []byte) (int, error) {
	if err := w.WriteMsg(rsync.MsgData, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteMsg sends one frame with the given message code and payload.
// It validates the length, then writes the header and the payload
// with two sequential writes (there is no vectored write).
func (w *MultiplexWriter) WriteMsg(code uint8, payload []byte) error {
	if len(payload) > rsync.MaxFrameLength {
		return fmt.Errorf("rsyncwire: payload length %d exceeds max frame length %d", len(payload), rsync.MaxFrameLength)
	}
	header := uint32(rsync.MplexBase+code)<<24 | uint32(len(payload))
	var hdrBuf [4]byte
	binary.LittleEndian.PutUint32(hdrBuf[:], header)

	if err := w.writeVectored(hdrBuf[:], payload); err != nil {
		return err
	}
	if f, ok := w.Writer.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// writeVectored writes header and then payload with two sequential
// writeAll calls, keeping the retry/zero-progress semantics spec.md
// §4.5 requires centralized in one place.
func (w *MultiplexWriter) writeVectored(header, payload []byte) error {
	if err := writeAll(w.Writer, header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return writeAll(w.Writer, payload)
}

// writeAll writes all of p, retrying on partial writes and failing
// with io.ErrShortWrite-style zero-progress detection.
func writeAll(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if n > len(p) {
			return fmt.Errorf("rsyncwire: write reported %d bytes written, more than the %d requested", n, len(p))
		}
		if n == 0 && err == nil {
			return io.ErrShortWrite
		}
		p = p[n:]
		if err != nil {
			return err
		}
	}
	return nil
}

// MultiplexReader wraps an io.Reader and demultiplexes incoming
// frames: MsgData payloads are returned as plain bytes from Read; any
// other message code is handed to OnMsg (if set) and otherwise
// discarded without logging.
type MultiplexReader struct {
	Reader io.Reader

	// OnMsg, if non-nil, is invoked for every non-MsgData frame.
	OnMsg func(code uint8, payload []byte)

	pending []byte
}

func (r *MultiplexReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		code, payload, err := r.readFrame()
		if err != nil {
			return 0, err
		}
		if code == rsync.MsgData {
			r.pending = payload
			break
		}
		if r.OnMsg != nil {
			r.OnMsg(code, payload)
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// readFrame reads one header+payload pair.
func (r *MultiplexReader) readFrame() (code uint8, payload []byte, err error) {
	var hdrBuf [4]byte
	if _, err := io.ReadFull(r.Reader, hdrBuf[:]); err != nil {
		return 0, nil, err
	}
	header := binary.LittleEndian.Uint32(hdrBuf[:])
	tag := uint8(header >> 24)
	length := header & 0x00FFFFFF
	if tag < rsync.MplexBase {
		return 0, nil, fmt.Errorf("rsyncwire: invalid multiplex tag %d (below MPLEX_BASE)", tag)
	}
	code = tag - rsync.MplexBase
	if !rsync.ValidMessageCode(code) {
		return 0, nil, fmt.Errorf("rsyncwire: invalid message code %d: %w", code, errInvalidData)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r.Reader, buf); err != nil {
		return 0, nil, fmt.Errorf("rsyncwire: truncated payload (wanted %d bytes): %w", length, err)
	}
	return code, buf, nil
}

var errInvalidData = fmt.Errorf("invalid data")
