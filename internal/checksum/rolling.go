// Package checksum implements the rolling and strong checksum
// primitives described in spec.md §4.1: Mark Adler's rolling sum (the
// same variant upstream rsync uses, with CHAR_OFFSET=0) and a small
// set of interchangeable strong digests used to confirm block
// matches.
package checksum

// Rolling is Mark Adler's weak rolling checksum. It can be advanced
// byte-by-byte in O(1) as a window slides across a stream (Roll), or
// computed from scratch over an arbitrary byte slice (New).
//
// s1 = (Σ byte[i]) mod 2^16
// s2 = (Σ (n-i)·byte[i]) mod 2^16
type Rolling struct {
	s1, s2 uint32
	n      uint32 // current window length
}

const mod16 = 1 << 16

// New computes a Rolling checksum from scratch over data.
func New(data []byte) Rolling {
	var r Rolling
	n := uint32(len(data))
	var s1, s2 uint32
	for i, b := range data {
		s1 += uint32(b)
		s2 += (n - uint32(i)) * uint32(b)
	}
	r.s1 = s1 % mod16
	r.s2 = s2 % mod16
	r.n = n
	return r
}

// Roll advances the window by one byte: old leaves the window (at the
// front) and add enters it (at the back). The window length does not
// change.
func (r *Rolling) Roll(old, add byte) {
	r.s1 = (r.s1 - uint32(old) + uint32(add)) % mod16
	r.s2 = (r.s2 - r.n*uint32(old) + r.s1) % mod16
}

// UpdateByte appends add to a not-yet-full window, growing it by one
// byte (used while filling the initial ring before the first Roll).
func (r *Rolling) UpdateByte(add byte) {
	r.s1 = (r.s1 + uint32(add)) % mod16
	r.s2 = (r.s2 + r.s1) % mod16
	r.n++
}

// Value returns the 32-bit wire value: (s2<<16)|s1, little-endian
// when serialized (spec.md §4.1, §6).
func (r *Rolling) Value() uint32 {
	return (r.s2 << 16) | r.s1
}

// Halves returns the two 16-bit halves making up Value, in case a
// caller needs them independently (e.g. the signature index bucket
// key is the low 16 bits, i.e. BucketKey(Value())).
func (r *Rolling) Halves() (s1, s2 uint16) {
	return uint16(r.s1), uint16(r.s2)
}

// Reset clears the checksum back to empty, as when a copy match
// clears the ring buffer in the delta generator (spec.md §4.3 step 6).
func (r *Rolling) Reset() {
	r.s1, r.s2, r.n = 0, 0, 0
}

// BucketKey returns the low 16 bits of v, the signature index's
// hash-bucket key (spec.md §3, "Signature index").
func BucketKey(v uint32) uint16 { return uint16(v) }
