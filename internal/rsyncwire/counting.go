package rsyncwire

import "io"

// CountingReader wraps an io.Reader and tallies bytes read, so the
// transfer report (spec.md §4.14, "report") can state how many bytes
// actually crossed the network.
type CountingReader struct {
	R     io.Reader
	Count int64
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.Count += int64(n)
	return n, err
}

// CountingWriter is the write-side counterpart of CountingReader.
type CountingWriter struct {
	W     io.Writer
	Count int64
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.W.Write(p)
	c.Count += int64(n)
	return n, err
}

// CounterPair wraps r and w in a CountingReader/CountingWriter pair in
// one call, matching the shape every connection constructor in this
// module needs.
func CounterPair(r io.Reader, w io.Writer) (*CountingReader, *CountingWriter) {
	return &CountingReader{R: r}, &CountingWriter{W: w}
}
