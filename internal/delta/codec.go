package delta

import (
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub017/internal/rsyncwire"
)

// EncodeToken writes one token to w using rsync's native delta
// encoding (spec.md §4.13): a positive length varint followed by
// literal bytes, or a negative length encoding a block-index delta
// for a copy. A zero-length token is the terminator and carries no
// token data; callers write it explicitly once a file's script is
// exhausted.
func EncodeToken(w io.Writer, t Token, prevIndex int64) (nextPrevIndex int64, err error) {
	if t.Literal != nil {
		if len(t.Literal) == 0 {
			return prevIndex, fmt.Errorf("delta: empty literal token")
		}
		if err := writeSignedVarint(w, int64(len(t.Literal))); err != nil {
			return prevIndex, err
		}
		if _, err := w.Write(t.Literal); err != nil {
			return prevIndex, err
		}
		return prevIndex, nil
	}

	delta := t.Index - prevIndex
	if err := writeSignedVarint(w, -(int64(t.Length))); err != nil {
		return prevIndex, err
	}
	if err := writeSignedVarint(w, delta); err != nil {
		return prevIndex, err
	}
	return t.Index, nil
}

// WriteTerminator writes the explicit zero-length token that closes a
// file's delta stream (spec.md §4.13, "Terminator").
func WriteTerminator(w io.Writer) error {
	return writeSignedVarint(w, 0)
}

// DecodeToken reads one token, returning ok=false when the terminator
// is read.
func DecodeToken(r io.Reader, prevIndex int64) (t Token, nextPrevIndex int64, ok bool, err error) {
	length, err := readSignedVarint(r)
	if err != nil {
		return Token{}, prevIndex, false, err
	}
	if length == 0 {
		return Token{}, prevIndex, false, nil
	}
	if length > 0 {
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return Token{}, prevIndex, false, err
		}
		return Token{Literal: buf}, prevIndex, true, nil
	}

	delta, err := readSignedVarint(r)
	if err != nil {
		return Token{}, prevIndex, false, err
	}
	index := prevIndex + delta
	if index < 0 {
		return Token{}, prevIndex, false, fmt.Errorf("delta: negative block index %d after delta %d", index, delta)
	}
	return Token{Index: index, Length: int(-length)}, index, true, nil
}

// writeSignedVarint/readSignedVarint implement a zigzag-encoded
// variant of rsyncwire's unsigned varint, used here instead because
// both the literal/copy discriminant and the block-index delta can be
// negative (spec.md §4.13 leaves the exact bit layout of this
// native-format varint unspecified beyond "decoding is symmetric to
// rsync's native delta format").
func writeSignedVarint(w io.Writer, v int64) error {
	return rsyncwire.WriteVarint(w, zigzagEncode(v))
}

func readSignedVarint(r io.Reader) (int64, error) {
	u, err := rsyncwire.ReadVarint(r)
	if err != nil {
		return 0, err
	}
	return zigzagDecode(u), nil
}

func zigzagEncode(v int64) int64 {
	return (v << 1) ^ (v >> 63)
}

func zigzagDecode(u int64) int64 {
	return int64(uint64(u)>>1) ^ -(u & 1)
}
