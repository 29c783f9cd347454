package filelist

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/oferchen/rsync-sub017/internal/rsyncwire"
)

const maxNameLength = 1 << 16

// Encoder writes a stream of Entry records using name-compression and
// same-field reuse against the previously written entry (spec.md
// §4.9). The zero value is ready to use.
type Encoder struct {
	w    io.Writer
	prev *Entry
}

func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// Encode writes e to the stream.
func (enc *Encoder) Encode(e *Entry) error {
	var flags byte
	var ext byte

	streak := 0
	if enc.prev != nil {
		streak = commonPrefixLen(enc.prev.Path, e.Path)
		if streak > 255 {
			streak = 255 // capped; the rest of the name goes into the suffix
		}
		if streak > 0 {
			flags |= xmitSameName
		}
	}
	suffix := e.Path[streak:]

	if enc.prev != nil && enc.prev.Mode == e.Mode {
		flags |= xmitSameMode
	}
	if enc.prev != nil && enc.prev.UID == e.UID {
		flags |= xmitSameUID
	}
	if enc.prev != nil && enc.prev.GID == e.GID {
		flags |= xmitSameGID
	}
	if enc.prev != nil && enc.prev.ModSec == e.ModSec {
		flags |= xmitSameTime
	}

	if e.IsSymlink() {
		ext |= xmitSymlinkTarget
	}
	if e.IsDevice() {
		ext |= xmitDeviceNumbers
	}
	if e.Hardlinked {
		ext |= xmitHardlinked
	}
	if e.UserName != "" {
		ext |= xmitUserName
	}
	if e.GroupName != "" {
		ext |= xmitGroupName
	}
	if e.ModNS != 0 {
		ext |= xmitHasModNS
	}
	if e.ACLIndex >= 0 {
		ext |= xmitHasACL
	}
	if e.XattrIndex >= 0 {
		ext |= xmitHasXattr
	}
	if ext != 0 {
		flags |= xmitExtendedFlags
	}

	flags |= xmitEntryMarker

	if err := writeByte(enc.w, flags); err != nil {
		return err
	}
	if flags&xmitExtendedFlags != 0 {
		if err := writeByte(enc.w, ext); err != nil {
			return err
		}
	}

	if flags&xmitSameName != 0 {
		if err := rsyncwire.WriteVarint(enc.w, int64(streak)); err != nil {
			return err
		}
	}
	if err := rsyncwire.WriteVarint(enc.w, int64(len(suffix))); err != nil {
		return err
	}
	if _, err := io.WriteString(enc.w, suffix); err != nil {
		return err
	}

	if err := rsyncwire.WriteVarint(enc.w, e.Length); err != nil {
		return err
	}
	if flags&xmitSameTime == 0 {
		if err := writeSigned(enc.w, e.ModSec); err != nil {
			return err
		}
	}
	if ext&xmitHasModNS != 0 {
		if err := rsyncwire.WriteVarint(enc.w, int64(e.ModNS)); err != nil {
			return err
		}
	}
	if flags&xmitSameMode == 0 {
		if err := rsyncwire.WriteVarint(enc.w, int64(e.Mode)); err != nil {
			return err
		}
	}
	if flags&xmitSameUID == 0 {
		if err := rsyncwire.WriteVarint(enc.w, int64(e.UID)); err != nil {
			return err
		}
	}
	if flags&xmitSameGID == 0 {
		if err := rsyncwire.WriteVarint(enc.w, int64(e.GID)); err != nil {
			return err
		}
	}
	if ext&xmitUserName != 0 {
		if err := writeString(enc.w, e.UserName); err != nil {
			return err
		}
	}
	if ext&xmitGroupName != 0 {
		if err := writeString(enc.w, e.GroupName); err != nil {
			return err
		}
	}
	if ext&xmitSymlinkTarget != 0 {
		if err := writeString(enc.w, e.LinkTarget); err != nil {
			return err
		}
	}
	if ext&xmitDeviceNumbers != 0 {
		if err := rsyncwire.WriteVarint(enc.w, int64(e.DevMajor)); err != nil {
			return err
		}
		if err := rsyncwire.WriteVarint(enc.w, int64(e.DevMinor)); err != nil {
			return err
		}
	}
	if ext&xmitHardlinked != 0 {
		if err := rsyncwire.WriteVarint(enc.w, e.HardlinkTargetIndex); err != nil {
			return err
		}
	}
	if ext&xmitHasACL != 0 {
		if err := rsyncwire.WriteVarint(enc.w, int64(e.ACLIndex)); err != nil {
			return err
		}
	}
	if ext&xmitHasXattr != 0 {
		if err := rsyncwire.WriteVarint(enc.w, int64(e.XattrIndex)); err != nil {
			return err
		}
	}

	prevCopy := *e
	enc.prev = &prevCopy
	return nil
}

// Close writes the end-of-list marker (a lone zero flags byte).
func (enc *Encoder) Close() error {
	return writeByte(enc.w, 0)
}

// Decoder is the inverse of Encoder.
type Decoder struct {
	r           io.Reader
	prev        *Entry
	trustSender bool
}

// NewDecoder returns a Decoder. When trustSender is false, path
// validation failures (spec.md §4.9, "Validation") cause Decode to
// return ErrInvalidPath instead of the entry.
func NewDecoder(r io.Reader, trustSender bool) *Decoder {
	return &Decoder{r: r, trustSender: trustSender}
}

var ErrInvalidPath = fmt.Errorf("filelist: invalid path")

// Decode reads one entry, or (nil, nil) at the end-of-list marker.
func (dec *Decoder) Decode() (*Entry, error) {
	flags, err := readByte(dec.r)
	if err != nil {
		return nil, err
	}
	if flags == 0 {
		return nil, nil
	}

	var ext byte
	if flags&xmitExtendedFlags != 0 {
		ext, err = readByte(dec.r)
		if err != nil {
			return nil, err
		}
	}

	e := &Entry{ACLIndex: -1, XattrIndex: -1}

	streak := 0
	if flags&xmitSameName != 0 {
		s, err := rsyncwire.ReadVarint(dec.r)
		if err != nil {
			return nil, err
		}
		streak = int(s)
	}
	suffixLen, err := rsyncwire.ReadVarint(dec.r)
	if err != nil {
		return nil, err
	}
	if suffixLen < 0 || suffixLen > maxNameLength {
		return nil, fmt.Errorf("filelist: implausible name length %d", suffixLen)
	}
	suffixBuf := make([]byte, suffixLen)
	if _, err := io.ReadFull(dec.r, suffixBuf); err != nil {
		return nil, err
	}

	var path string
	if streak > 0 && dec.prev != nil {
		if streak > len(dec.prev.Path) {
			return nil, fmt.Errorf("filelist: name streak %d exceeds previous path length %d", streak, len(dec.prev.Path))
		}
		path = dec.prev.Path[:streak] + string(suffixBuf)
	} else {
		path = string(suffixBuf)
	}
	e.Path = path

	lengthRaw, err := rsyncwire.ReadVarint(dec.r)
	if err != nil {
		return nil, err
	}
	e.Length = lengthRaw

	if flags&xmitSameTime != 0 {
		if dec.prev == nil {
			return nil, fmt.Errorf("filelist: xmitSameTime with no previous entry")
		}
		e.ModSec = dec.prev.ModSec
	} else {
		e.ModSec, err = readSigned(dec.r)
		if err != nil {
			return nil, err
		}
	}
	if ext&xmitHasModNS != 0 {
		ns, err := rsyncwire.ReadVarint(dec.r)
		if err != nil {
			return nil, err
		}
		e.ModNS = int32(ns)
	}

	if flags&xmitSameMode != 0 {
		if dec.prev == nil {
			return nil, fmt.Errorf("filelist: xmitSameMode with no previous entry")
		}
		e.Mode = dec.prev.Mode
	} else {
		m, err := rsyncwire.ReadVarint(dec.r)
		if err != nil {
			return nil, err
		}
		e.Mode = os.FileMode(m)
	}
	if flags&xmitSameUID != 0 {
		if dec.prev == nil {
			return nil, fmt.Errorf("filelist: xmitSameUID with no previous entry")
		}
		e.UID = dec.prev.UID
	} else {
		v, err := rsyncwire.ReadVarint(dec.r)
		if err != nil {
			return nil, err
		}
		e.UID = uint32(v)
	}
	if flags&xmitSameGID != 0 {
		if dec.prev == nil {
			return nil, fmt.Errorf("filelist: xmitSameGID with no previous entry")
		}
		e.GID = dec.prev.GID
	} else {
		v, err := rsyncwire.ReadVarint(dec.r)
		if err != nil {
			return nil, err
		}
		e.GID = uint32(v)
	}
	if ext&xmitUserName != 0 {
		e.UserName, err = readString(dec.r)
		if err != nil {
			return nil, err
		}
	}
	if ext&xmitGroupName != 0 {
		e.GroupName, err = readString(dec.r)
		if err != nil {
			return nil, err
		}
	}
	if ext&xmitSymlinkTarget != 0 {
		e.LinkTarget, err = readString(dec.r)
		if err != nil {
			return nil, err
		}
	}
	if ext&xmitDeviceNumbers != 0 {
		maj, err := rsyncwire.ReadVarint(dec.r)
		if err != nil {
			return nil, err
		}
		min, err := rsyncwire.ReadVarint(dec.r)
		if err != nil {
			return nil, err
		}
		e.DevMajor, e.DevMinor = uint32(maj), uint32(min)
	}
	if ext&xmitHardlinked != 0 {
		idx, err := rsyncwire.ReadVarint(dec.r)
		if err != nil {
			return nil, err
		}
		e.Hardlinked = true
		e.HardlinkTargetIndex = idx
	}
	if ext&xmitHasACL != 0 {
		v, err := rsyncwire.ReadVarint(dec.r)
		if err != nil {
			return nil, err
		}
		e.ACLIndex = int32(v)
	}
	if ext&xmitHasXattr != 0 {
		v, err := rsyncwire.ReadVarint(dec.r)
		if err != nil {
			return nil, err
		}
		e.XattrIndex = int32(v)
	}

	if !dec.trustSender {
		if err := ValidatePath(e.Path); err != nil {
			return nil, err
		}
	}

	dec.prev = e
	return e, nil
}

// ValidatePath canonicalizes and validates a received path (spec.md
// §4.9, "Validation"): backslashes become forward slashes, ".."
// components are rejected, and absolute paths are rejected unless the
// caller has separately enabled --relative handling upstream of this
// package.
func ValidatePath(p string) error {
	norm := strings.ReplaceAll(p, "\\", "/")
	if strings.HasPrefix(norm, "/") {
		return fmt.Errorf("%w: absolute path %q", ErrInvalidPath, p)
	}
	for _, part := range strings.Split(norm, "/") {
		if part == ".." {
			return fmt.Errorf("%w: %q contains a \"..\" component", ErrInvalidPath, p)
		}
	}
	return nil
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func writeString(w io.Writer, s string) error {
	if err := rsyncwire.WriteVarint(w, int64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := rsyncwire.ReadVarint(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// writeSigned/readSigned handle mtimes, which may be negative
// (pre-1970 timestamps) unlike every other varint field in this
// codec.
func writeSigned(w io.Writer, v int64) error {
	return rsyncwire.WriteVarint(w, zigzag(v))
}

func readSigned(r io.Reader) (int64, error) {
	u, err := rsyncwire.ReadVarint(r)
	if err != nil {
		return 0, err
	}
	return unzigzag(u), nil
}

func zigzag(v int64) int64   { return (v << 1) ^ (v >> 63) }
func unzigzag(u int64) int64 { return int64(uint64(u)>>1) ^ -(u & 1) }
