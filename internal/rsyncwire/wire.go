// Package rsyncwire implements the framed byte-stream layer described
// in spec.md §4.5: length-prefixed tagged frames (the "multiplex"
// protocol), plus the primitive integer/string encodings every other
// wire-facing package builds on.
package rsyncwire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Conn bundles the reader and writer halves of a session. Unlike a
// net.Conn it does not imply any particular transport: it is equally
// at home wrapping a TCP socket, an SSH child's stdio pipes, or an
// in-memory io.Pipe (see rsyncclient's tests).
type Conn struct {
	Reader io.Reader
	Writer io.Writer
}

// ReadByte reads a single byte.
func (c *Conn) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteByte writes a single byte.
func (c *Conn) WriteByte(b byte) error {
	_, err := c.Writer.Write([]byte{b})
	return err
}

// ReadInt32 reads a little-endian signed 32-bit integer.
func (c *Conn) ReadInt32() (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf[:])), nil
}

// WriteInt32 writes a little-endian signed 32-bit integer.
func (c *Conn) WriteInt32(v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	_, err := c.Writer.Write(buf[:])
	return err
}

// ReadInt64 reads a 64-bit integer using rsync's variable-width
// encoding: values that fit in a non-negative int32 are sent as a
// plain 4-byte int; larger values are preceded by the int32 sentinel
// -1 and followed by an 8-byte little-endian int64 (mirrors the
// teacher's internal/rsyncd/rsyncd.go:writeInt64 prototype).
func (c *Conn) ReadInt64() (int64, error) {
	v, err := c.ReadInt32()
	if err != nil {
		return 0, err
	}
	if v != -1 {
		return int64(v), nil
	}
	var buf [8]byte
	if _, err := io.ReadFull(c.Reader, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

// WriteInt64 is the inverse of ReadInt64.
func (c *Conn) WriteInt64(v int64) error {
	if v >= 0 && v <= 0x7FFFFFFF {
		return c.WriteInt32(int32(v))
	}
	if err := c.WriteInt32(-1); err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	_, err := c.Writer.Write(buf[:])
	return err
}

// ReadN reads exactly n bytes.
func (c *Conn) ReadN(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.Reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteString writes data verbatim, with no length prefix (the caller
// is expected to have framed it some other way, e.g. a trailing NUL
// or a preceding length field).
func (c *Conn) WriteString(data string) error {
	_, err := io.WriteString(c.Writer, data)
	return err
}

// ReadVarint reads rsync's protocol>=30 variable-length integer
// encoding: 7 bits of payload per byte, little-endian, with the high
// bit of each byte but the last set to indicate continuation
// (spec.md §6, "Varint").
func ReadVarint(r io.Reader) (int64, error) {
	var buf [1]byte
	var result int64
	var shift uint
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		b := buf[0]
		result |= int64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 64 {
			return 0, fmt.Errorf("rsyncwire: varint overflow")
		}
	}
}

// WriteVarint writes v using the same encoding as ReadVarint. v must
// be non-negative.
func WriteVarint(w io.Writer, v int64) error {
	if v < 0 {
		return fmt.Errorf("rsyncwire: WriteVarint: negative value %d", v)
	}
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}
		if v == 0 {
			return nil
		}
	}
}

// ReadVarlong reads a varlong: a single length-of-extension byte
// (how many additional little-endian bytes follow, beyond the
// `minBytes` baseline) followed by that many bytes, per spec.md §6
// ("varlong extends with a leading length byte"). It mirrors rsync's
// read_varlong30, used for 64-bit fields on protocol >= 30.
func ReadVarlong(r io.Reader, minBytes int) (int64, error) {
	var lenBuf [1]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, err
	}
	extra := int(lenBuf[0])

	buf := make([]byte, 8)
	fixed := minBytes
	if extra+fixed > 8 {
		return 0, fmt.Errorf("rsyncwire: varlong too wide (extra=%d min=%d)", extra, minBytes)
	}
	if _, err := io.ReadFull(r, buf[:fixed]); err != nil {
		return 0, err
	}
	if extra > 0 {
		if _, err := io.ReadFull(r, buf[fixed:fixed+extra]); err != nil {
			return 0, err
		}
	}
	return int64(binary.LittleEndian.Uint64(buf)), nil
}

// WriteVarlong is the inverse of ReadVarlong.
func WriteVarlong(w io.Writer, v int64, minBytes int) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))

	extra := 8
	for extra > minBytes && buf[extra-1] == 0 {
		extra--
	}
	extraBytes := extra - minBytes
	if extraBytes < 0 {
		extraBytes = 0
	}
	if _, err := w.Write([]byte{byte(extraBytes)}); err != nil {
		return err
	}
	if _, err := w.Write(buf[:minBytes+extraBytes]); err != nil {
		return err
	}
	return nil
}
