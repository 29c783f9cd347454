package delta

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeTokenRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	prev := int64(-1)

	tokens := []Token{
		{Literal: []byte("hello")},
		{Index: 5, Length: 64},
		{Index: 4, Length: 64}, // negative delta
		{Literal: []byte("x")},
	}

	for _, tok := range tokens {
		var err error
		prev, err = EncodeToken(&buf, tok, prev)
		if err != nil {
			t.Fatal(err)
		}
	}
	if err := WriteTerminator(&buf); err != nil {
		t.Fatal(err)
	}

	prev = -1
	for i, want := range tokens {
		got, next, ok, err := DecodeToken(&buf, prev)
		if err != nil {
			t.Fatalf("token %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("token %d: unexpected terminator", i)
		}
		prev = next
		if want.Literal != nil {
			if !bytes.Equal(got.Literal, want.Literal) {
				t.Errorf("token %d: literal = %q, want %q", i, got.Literal, want.Literal)
			}
			continue
		}
		if got.Index != want.Index || got.Length != want.Length {
			t.Errorf("token %d: copy = %+v, want %+v", i, got, want)
		}
	}

	_, _, ok, err := DecodeToken(&buf, prev)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected terminator after all tokens consumed")
	}
}

func TestZigzagRoundTrip(t *testing.T) {
	for _, v := range []int64{0, 1, -1, 64, -64, 1 << 40, -(1 << 40)} {
		if got := zigzagDecode(zigzagEncode(v)); got != v {
			t.Errorf("zigzag round trip for %d = %d", v, got)
		}
	}
}
