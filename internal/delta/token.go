package delta

// Token is one element of a delta script: either a run of literal
// bytes or a reference to a block in the basis file (spec.md §3,
// "Copy{ index, length }" / "Literal(bytes)").
type Token struct {
	Literal []byte // non-nil for a literal token
	Index   int64  // basis block index, valid when Literal == nil
	Length  int    // copy length, valid when Literal == nil
}

// IsCopy reports whether t is a Copy token.
func (t Token) IsCopy() bool { return t.Literal == nil }

// Script is an ordered sequence of tokens for one file, terminated
// implicitly by the end of the slice (the wire encoding uses an
// explicit zero-length terminator token instead, see WriteTerminator
// and DecodeToken).
type Script []Token
