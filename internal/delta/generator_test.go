package delta

import (
	"bytes"
	"strings"
	"testing"

	"github.com/oferchen/rsync-sub017/internal/checksum"
	"github.com/oferchen/rsync-sub017/internal/signature"
)

func buildSignature(t *testing.T, basis []byte, blockLength uint32) (signature.Layout, *signature.Index) {
	t.Helper()
	layout, err := signature.BuildLayout(int64(len(basis)), blockLength, 32, 16)
	if err != nil {
		t.Fatal(err)
	}
	var blocks []signature.Block
	for i := int64(0); i < layout.BlockCount; i++ {
		start := i * int64(layout.BlockLength)
		end := start + int64(layout.BlockLengthAt(i))
		if end > int64(len(basis)) {
			end = int64(len(basis))
		}
		block := basis[start:end]
		roll := checksum.New(block)
		s1, s2 := roll.Halves()
		strong := checksum.Block(checksum.MD5, 0, block, int(layout.StrongSumLength))
		blocks = append(blocks, signature.Block{Index: i, S1: s1, S2: s2, Strong: strong})
	}
	sig := &signature.Signature{Layout: layout, Blocks: blocks}
	return layout, signature.Build(sig)
}

func TestGenerateIdenticalFileIsAllCopies(t *testing.T) {
	basis := []byte(strings.Repeat("0123456789", 50)) // 500 bytes
	layout, idx := buildSignature(t, basis, 50)

	var tokens []Token
	err := Generate(bytes.NewReader(basis), layout, idx, checksum.MD5, 0, func(tok Token) error {
		tokens = append(tokens, tok)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, tok := range tokens {
		if tok.Literal != nil {
			t.Fatalf("unexpected literal token in identical-file case: %q", tok.Literal)
		}
	}
	if len(tokens) != int(layout.BlockCount) {
		t.Fatalf("got %d copy tokens, want %d", len(tokens), layout.BlockCount)
	}
}

func TestGenerateRoundTripReconstructsTarget(t *testing.T) {
	basis := []byte(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40))
	target := append([]byte(nil), basis...)
	// Insert a literal run in the middle, shifting everything after it.
	target = append(target[:200], append([]byte("INSERTED-NOT-IN-BASIS"), target[200:]...)...)

	layout, idx := buildSignature(t, basis, 64)

	var buf bytes.Buffer
	var prevIndex int64 = -1
	err := Generate(bytes.NewReader(target), layout, idx, checksum.MD5, 0, func(tok Token) error {
		var err error
		prevIndex, err = EncodeToken(&buf, tok, prevIndex)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteTerminator(&buf); err != nil {
		t.Fatal(err)
	}

	// Decode and reconstruct manually (mirrors Apply's loop without
	// touching the filesystem).
	var out bytes.Buffer
	prevIndex = -1
	for {
		tok, next, ok, err := DecodeToken(&buf, prevIndex)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		prevIndex = next
		if tok.Literal != nil {
			out.Write(tok.Literal)
			continue
		}
		start := tok.Index * int64(layout.BlockLength)
		out.Write(basis[start : start+int64(tok.Length)])
	}

	if !bytes.Equal(out.Bytes(), target) {
		t.Errorf("reconstructed length %d, want %d (content mismatch)", out.Len(), len(target))
	}
}
