package negotiation

import (
	"fmt"

	rsync "github.com/oferchen/rsync-sub017"
	"github.com/oferchen/rsync-sub017/internal/rsyncwire"
)

// BinaryHandshake performs the protocol ≥ negotiation.Binary exchange
// described in spec.md §4.8: send our protocol number, read the
// peer's, clamp it into the supported range, and negotiate the lower
// of the two.
func BinaryHandshake(c *rsyncwire.Conn, desiredLocal int) (negotiated int, err error) {
	if err := c.WriteInt32(int32(desiredLocal)); err != nil {
		return 0, fmt.Errorf("negotiation: sending local protocol: %w", err)
	}
	remote, err := c.ReadInt32()
	if err != nil {
		return 0, fmt.Errorf("negotiation: reading remote protocol: %w", err)
	}
	clamped, ok := rsync.ClampProtocol(int64(remote))
	if !ok {
		return 0, fmt.Errorf("negotiation: %w: peer advertised protocol %d", ErrUnsupportedVersion, remote)
	}
	negotiated = clamped
	if desiredLocal < negotiated {
		negotiated = desiredLocal
	}
	if negotiated < rsync.ProtocolOldest {
		return 0, fmt.Errorf("negotiation: %w: negotiated protocol %d below oldest supported %d", ErrUnsupportedVersion, negotiated, rsync.ProtocolOldest)
	}
	return negotiated, nil
}
