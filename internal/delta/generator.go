package delta

import (
	"bufio"
	"io"

	"github.com/oferchen/rsync-sub017/internal/checksum"
	"github.com/oferchen/rsync-sub017/internal/signature"
)

// Generate runs the sliding-window match loop of spec.md §4.3 over
// src against idx (built from layout), emitting tokens via emit. emit
// is called with Literal tokens preserving byte order and Copy tokens
// referencing basis block indices; the caller is responsible for
// writing a terminator after Generate returns nil.
func Generate(src io.Reader, layout signature.Layout, idx *signature.Index, algo checksum.Algorithm, seed int32, emit func(Token) error) error {
	br := bufio.NewReaderSize(src, 64*1024)
	ring := NewRing(int(layout.BlockLength))
	var roll checksum.Rolling
	var pending []byte

	flushPending := func() error {
		if len(pending) == 0 {
			return nil
		}
		tok := Token{Literal: append([]byte(nil), pending...)}
		pending = pending[:0]
		return emit(tok)
	}

	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		evicted, wasFull := ring.Push(b)
		if wasFull {
			roll.Roll(evicted, b)
		} else {
			roll.UpdateByte(b)
		}

		if !ring.Full() {
			continue
		}

		matched, matchedIndex := tryMatch(&roll, ring, idx, algo, seed, layout)
		if matched {
			if err := flushPending(); err != nil {
				return err
			}
			if err := emit(Token{Index: matchedIndex, Length: ring.Len()}); err != nil {
				return err
			}
			ring.Reset()
			roll.Reset()
			continue
		}

		// No match: the evicted byte (if any) becomes a literal. On
		// the very first full window there is no evicted byte yet;
		// nothing is appended until the ring actually evicts one on
		// a subsequent push.
		if wasFull {
			pending = append(pending, evicted)
		}
	}

	// Drain whatever remains in the ring (spec.md §4.3 step 7: "If
	// the window is not full and EOF is reached, drain the ring
	// contents into pending literals"; this also covers a full ring
	// at EOF that never found a match on its final position).
	pending = append(pending, ring.Slice()...)
	ring.Reset()

	return flushPending()
}

func tryMatch(roll *checksum.Rolling, ring *Ring, idx *signature.Index, algo checksum.Algorithm, seed int32, layout signature.Layout) (bool, int64) {
	candidates := idx.Lookup(roll.Value())
	if len(candidates) == 0 {
		return false, 0
	}
	data := ring.Slice()
	strong := checksum.Block(algo, seed, data, int(layout.StrongSumLength))
	for _, c := range candidates {
		if c.Confirm(strong) {
			return true, c.Index
		}
	}
	return false, 0
}
