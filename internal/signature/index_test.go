package signature

import "testing"

func sig(blocks ...Block) *Signature {
	return &Signature{Blocks: blocks}
}

func TestIndexLookupConfirms(t *testing.T) {
	s := sig(
		Block{Index: 0, S1: 1, S2: 2, Strong: []byte{0xaa, 0xbb}},
		Block{Index: 1, S1: 1, S2: 2, Strong: []byte{0xcc, 0xdd}}, // same rolling value, different strong
		Block{Index: 2, S1: 5, S2: 6, Strong: []byte{0xee, 0xff}},
	)
	idx := Build(s)

	rolling := Block{S1: 1, S2: 2}.Rolling()
	cands := idx.Lookup(rolling)
	if len(cands) != 2 {
		t.Fatalf("Lookup returned %d candidates, want 2", len(cands))
	}
	if cands[0].Index != 0 || cands[1].Index != 1 {
		t.Errorf("candidates out of insertion order: %+v", cands)
	}

	if !cands[1].Confirm([]byte{0xcc, 0xdd}) {
		t.Error("Confirm should succeed for matching strong sum")
	}
	if cands[0].Confirm([]byte{0xcc, 0xdd}) {
		t.Error("Confirm should fail for mismatched strong sum")
	}
}

func TestIndexLookupNoMatch(t *testing.T) {
	s := sig(Block{Index: 0, S1: 1, S2: 2, Strong: []byte{0x01}})
	idx := Build(s)
	if cands := idx.Lookup(Block{S1: 9, S2: 9}.Rolling()); cands != nil {
		t.Errorf("Lookup for absent key returned %v, want nil", cands)
	}
}

func TestIndexBucketKeyCollisionDoesNotMatch(t *testing.T) {
	// Two distinct rolling values that share the same low-16 bucket
	// key must not cross-match: only entries whose full rolling value
	// is equal are returned.
	low := uint16(42)
	a := uint32(low)
	b := uint32(low) | (1 << 16)
	s := sig(Block{Index: 0, S1: uint16(a), S2: uint16(a >> 16), Strong: []byte{0x01}})
	idx := Build(s)
	if cands := idx.Lookup(b); len(cands) != 0 {
		t.Errorf("Lookup(%d) matched a different full rolling value sharing the same bucket key: %+v", b, cands)
	}
}
