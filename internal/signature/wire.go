package signature

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub017/internal/checksum"
)

// WriteSignature sends sig's layout header followed by one
// (rolling-checksum, strong-digest) pair per block, matching
// upstream's generate_and_send_sums wire shape.
func WriteSignature(w io.Writer, sig Signature) error {
	var hdr [16]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(sig.Layout.BlockCount))
	binary.BigEndian.PutUint32(hdr[4:8], sig.Layout.BlockLength)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(sig.Layout.StrongSumLength))
	binary.BigEndian.PutUint32(hdr[12:16], sig.Layout.Remainder)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	for _, b := range sig.Blocks {
		var rolling [4]byte
		binary.LittleEndian.PutUint32(rolling[:], b.Rolling())
		if _, err := w.Write(rolling[:]); err != nil {
			return err
		}
		if _, err := w.Write(b.Strong); err != nil {
			return err
		}
	}
	return nil
}

// ReadSignature receives a signature sent by WriteSignature.
func ReadSignature(r io.Reader) (Signature, error) {
	var hdr [16]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Signature{}, err
	}
	layout := Layout{
		BlockCount:      int64(binary.BigEndian.Uint32(hdr[0:4])),
		BlockLength:     binary.BigEndian.Uint32(hdr[4:8]),
		StrongSumLength: uint8(binary.BigEndian.Uint32(hdr[8:12])),
		Remainder:       binary.BigEndian.Uint32(hdr[12:16]),
	}
	if layout.BlockCount < 0 {
		return Signature{}, fmt.Errorf("signature: negative block count %d", layout.BlockCount)
	}

	blocks := make([]Block, 0, layout.BlockCount)
	for i := int64(0); i < layout.BlockCount; i++ {
		var rolling [4]byte
		if _, err := io.ReadFull(r, rolling[:]); err != nil {
			return Signature{}, err
		}
		strong := make([]byte, layout.StrongSumLength)
		if _, err := io.ReadFull(r, strong); err != nil {
			return Signature{}, err
		}
		v := binary.LittleEndian.Uint32(rolling[:])
		blocks = append(blocks, Block{
			Index:  i,
			S1:     uint16(v & 0xffff),
			S2:     uint16(v >> 16),
			Strong: strong,
		})
	}
	return Signature{Layout: layout, Blocks: blocks}, nil
}

// Compute derives the full signature of basis, a file of the given
// length, using algo for the strong digest and seed as the checksum
// seed (spec.md §4.2/§4.1). basis is read once, sequentially, one
// block at a time.
func Compute(basis io.Reader, fileLength int64, forcedBlockLength uint32, protocol int, minStrongSum int, algo checksum.Algorithm, seed int32) (Signature, error) {
	layout, err := BuildLayout(fileLength, forcedBlockLength, protocol, minStrongSum)
	if err != nil {
		return Signature{}, err
	}

	blocks := make([]Block, 0, layout.BlockCount)
	buf := make([]byte, layout.BlockLength)
	for i := int64(0); i < layout.BlockCount; i++ {
		n := int(layout.BlockLengthAt(i))
		chunk := buf[:n]
		if _, err := io.ReadFull(basis, chunk); err != nil {
			return Signature{}, err
		}
		strong := checksum.Block(algo, seed, chunk, int(layout.StrongSumLength))
		roll := checksum.New(chunk)
		s1, s2 := roll.Halves()
		blocks = append(blocks, Block{Index: i, S1: s1, S2: s2, Strong: strong})
	}
	return Signature{Layout: layout, Blocks: blocks}, nil
}
