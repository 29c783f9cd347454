// Package delta implements the sliding-window match loop that turns a
// byte stream and a signature into literal/copy tokens (spec.md
// §4.3), the token encoding (spec.md §4.13), and the applier that
// replays a token stream against a basis file (spec.md §4.4).
package delta

// Ring is a fixed-capacity byte ring buffer used as the delta
// generator's sliding window. Pushing past capacity evicts the oldest
// byte. TrySlice gives an O(1) contiguous view when the buffer has
// not wrapped; Slice always returns a contiguous view, copying when
// it has (spec.md §4.3, "Ring-buffer slice access").
type Ring struct {
	buf   []byte
	start int // index of oldest byte
	len   int // number of valid bytes
}

// NewRing allocates a Ring with the given capacity (the signature's
// block length).
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]byte, capacity)}
}

// Cap returns the ring's capacity.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of valid bytes currently held.
func (r *Ring) Len() int { return r.len }

// Full reports whether the ring is at capacity.
func (r *Ring) Full() bool { return r.len == len(r.buf) }

// Push appends b to the ring. If the ring was already full, the
// oldest byte is evicted and returned as (evicted, true); otherwise
// (0, false).
func (r *Ring) Push(b byte) (evicted byte, ok bool) {
	cap := len(r.buf)
	if r.len < cap {
		idx := (r.start + r.len) % cap
		r.buf[idx] = b
		r.len++
		return 0, false
	}
	evicted = r.buf[r.start]
	r.buf[r.start] = b
	r.start = (r.start + 1) % cap
	return evicted, true
}

// Reset empties the ring (spec.md §4.3 step 6, "Clear the ring").
func (r *Ring) Reset() {
	r.start = 0
	r.len = 0
}

// TrySlice returns a contiguous view of the ring's current contents
// when it has not wrapped, and false otherwise. The returned slice
// aliases the ring's internal storage and is only valid until the
// next Push or Reset.
func (r *Ring) TrySlice() ([]byte, bool) {
	if r.len == 0 {
		return nil, true
	}
	end := r.start + r.len
	if end <= len(r.buf) {
		return r.buf[r.start:end], true
	}
	return nil, false
}

// Slice always returns a contiguous view of the ring's current
// contents, rotating into a freshly-allocated buffer when the ring
// has wrapped (spec.md §4.3: "rotate-on-demand slice, O(block_length)
// only when wrapped").
func (r *Ring) Slice() []byte {
	if v, ok := r.TrySlice(); ok {
		return v
	}
	out := make([]byte, r.len)
	n := copy(out, r.buf[r.start:])
	copy(out[n:], r.buf[:r.len-n])
	return out
}
