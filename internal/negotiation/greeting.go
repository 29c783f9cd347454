package negotiation

import (
	"fmt"
	"strconv"
	"strings"
)

// Greeting is the parsed form of a legacy "@RSYNCD:" daemon greeting
// line (spec.md §4.7).
type Greeting struct {
	// Advertised is the raw version number as sent by the peer,
	// before any clamping to the supported range.
	Advertised int64
	// Subprotocol is the fractional ".N" suffix, required for
	// Advertised >= 31.
	Subprotocol *uint32
	// DigestList holds the whitespace-separated digest tokens, or nil
	// if none were present (a whitespace-only list normalizes to nil
	// per spec.md §4.7).
	DigestList []string
}

// SupportsDigest reports whether name appears in the digest list.
func (g *Greeting) SupportsDigest(name string) bool {
	for _, d := range g.DigestList {
		if d == name {
			return true
		}
	}
	return false
}

// ParseGreeting parses a single greeting line per spec.md §4.7. A
// trailing LF or CRLF is stripped if present; a line without one is
// accepted too.
func ParseGreeting(line string) (*Greeting, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	const prefix = "@RSYNCD:"
	if !strings.HasPrefix(line, prefix) {
		return nil, fmt.Errorf("negotiation: %w: missing %q prefix", ErrMalformedGreeting, prefix)
	}
	rest := strings.TrimSpace(strings.TrimPrefix(line, prefix))
	if rest == "" {
		return nil, fmt.Errorf("negotiation: %w: empty greeting body", ErrMalformedGreeting)
	}

	fields := strings.Fields(rest)
	versionField := fields[0]

	var major, sub string
	if idx := strings.IndexByte(versionField, '.'); idx >= 0 {
		major, sub = versionField[:idx], versionField[idx+1:]
	} else {
		major = versionField
	}

	advertised, err := strconv.ParseInt(major, 10, 64)
	if err != nil || advertised < 0 || advertised > int64(^uint32(0)) {
		return nil, fmt.Errorf("negotiation: %w: bad version %q", ErrUnsupportedVersion, major)
	}

	g := &Greeting{Advertised: advertised}

	if sub != "" {
		subVal, err := strconv.ParseUint(sub, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("negotiation: %w: bad subprotocol %q", ErrMalformedGreeting, sub)
		}
		v := uint32(subVal)
		g.Subprotocol = &v
	} else if advertised >= 31 {
		return nil, fmt.Errorf("negotiation: %w: protocol %d requires a subprotocol suffix", ErrMalformedGreeting, advertised)
	}

	if len(fields) > 1 {
		g.DigestList = fields[1:]
	}

	return g, nil
}

// Format renders g back into the canonical wire form, terminated by a
// single LF. negotiatedMajor is the version number to advertise (the
// caller's own protocol, or the negotiated value when echoing).
func (g *Greeting) Format(negotiatedMajor int) string {
	var sub uint32
	if g.Subprotocol != nil {
		sub = *g.Subprotocol
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "@RSYNCD: %d.%d", negotiatedMajor, sub)
	for _, d := range g.DigestList {
		sb.WriteByte(' ')
		sb.WriteString(d)
	}
	sb.WriteByte('\n')
	return sb.String()
}

var (
	ErrMalformedGreeting  = fmt.Errorf("malformed legacy greeting")
	ErrUnsupportedVersion = fmt.Errorf("unsupported version")
)
