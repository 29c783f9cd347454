package signature

import (
	"bytes"
	"sort"
)

// entry is one row of the flat index: a 16-bit bucket key, the full
// rolling value, the stored strong prefix, and the originating block
// index.
type entry struct {
	key    uint16
	rolling uint32
	strong []byte
	index  int64
}

// Index is a lookup structure over a Signature's blocks, keyed by the
// low 16 bits of each block's rolling checksum. Per the design notes
// in spec.md §9, this is a flat array sorted by key with bucket
// boundaries located by binary search, rather than a nested hash map:
// better cache locality for the generator's tight inner loop, at the
// cost of an O(log n) bucket lookup instead of O(1).
type Index struct {
	entries []entry
}

// Build constructs an Index over sig's blocks. Within a bucket,
// entries preserve the original block order (spec.md §4.3, "stored in
// insertion order; duplicates are permitted").
func Build(sig *Signature) *Index {
	entries := make([]entry, len(sig.Blocks))
	for i, b := range sig.Blocks {
		entries[i] = entry{
			key:     uint16(b.Rolling()),
			rolling: b.Rolling(),
			strong:  b.Strong,
			index:   b.Index,
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].key < entries[j].key
	})
	return &Index{entries: entries}
}

// Candidate is a confirmed-pending match: the signature's stored
// strong prefix for comparison against a freshly-computed one.
type Candidate struct {
	Index  int64
	Strong []byte
}

// Lookup returns every candidate whose rolling checksum's low 16 bits
// equal key and whose full rolling value matches rolling exactly, in
// original insertion order.
func (idx *Index) Lookup(rolling uint32) []Candidate {
	key := uint16(rolling)
	lo := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].key >= key })
	hi := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].key > key })
	if lo >= hi {
		return nil
	}
	out := make([]Candidate, 0, hi-lo)
	for _, e := range idx.entries[lo:hi] {
		if e.rolling != rolling {
			continue
		}
		out = append(out, Candidate{Index: e.index, Strong: e.strong})
	}
	return out
}

// Confirm reports whether strong matches the stored prefix for
// candidate c (spec.md §4.3 step 5: "strong checksum comparison
// confirms a candidate before it becomes a copy token").
func (c Candidate) Confirm(strong []byte) bool {
	return bytes.Equal(c.Strong, strong)
}
