// Package rsync holds protocol-wide constants shared by every other
// package in this module: the supported protocol version range, the
// multiplex tag base, and the wire-level message codes.
package rsync

// ProtocolVersion is the protocol version this implementation speaks by
// default when initiating a connection.
const ProtocolVersion = 32

// ProtocolOldest and ProtocolNewest bound the protocol versions this
// implementation can negotiate with a peer. Advertised versions above
// ProtocolNewest are clamped; versions below ProtocolOldest fail
// negotiation (spec.md §3, "Protocol version").
const (
	ProtocolOldest = 28
	ProtocolNewest = 32
)

// ClampProtocol clamps an advertised peer protocol version into the
// supported range, returning the clamped version and ok. ok is false
// only for a version below ProtocolOldest, so callers can fail
// negotiation; a version above ProtocolNewest is clamped to
// ProtocolNewest and reported as ok.
func ClampProtocol(advertised int64) (version int, ok bool) {
	if advertised < ProtocolOldest {
		return ProtocolOldest, false
	}
	if advertised > ProtocolNewest {
		return ProtocolNewest, true
	}
	return int(advertised), true
}

// MplexBase is added to a message code to form the tag byte of a
// multiplexed frame header (spec.md §4.5).
const MplexBase = 7

// Message codes, matching rsync's MSG_* constants exactly (required
// for wire compatibility, spec.md §6).
const (
	MsgData        = 0 // plain file data
	MsgErrorXfer    = 1 // error tied to a specific file transfer
	MsgInfo        = 2
	MsgError       = 3
	MsgWarning     = 4
	MsgErrorSocket = 5
	MsgLog         = 6
	MsgClient      = 7
	MsgErrorUTF8   = 8
	MsgRedo        = 9
	MsgStats       = 10
	MsgIoError     = 22
	MsgIoTimeout   = 33
	MsgNoop        = 42
	MsgSuccess     = 100
	MsgDeleted     = 101
	MsgFListErr    = 103
	MsgMsgDone     = 86
)

// ValidMessageCode reports whether code is a known message code. Any
// other code is rejected as InvalidData per spec.md §4.5.
func ValidMessageCode(code uint8) bool {
	switch code {
	case MsgData, MsgErrorXfer, MsgInfo, MsgError, MsgWarning,
		MsgErrorSocket, MsgLog, MsgClient, MsgErrorUTF8, MsgRedo,
		MsgStats, MsgIoError, MsgIoTimeout, MsgNoop, MsgSuccess,
		MsgDeleted, MsgFListErr, MsgMsgDone:
		return true
	default:
		return false
	}
}

// MaxFrameLength is the largest payload length a single multiplexed
// frame can carry: the lower 24 bits of the 4-byte header (spec.md §3).
const MaxFrameLength = 1<<24 - 1
