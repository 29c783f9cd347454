// Package acl implements the NFSv4 ACL parser/serializer and the
// POSIX short-form ACL wire cache described in spec.md §6
// ("xattr/ACL accessors (gated by platform feature flags)").
package acl

import (
	"encoding/binary"
	"fmt"
)

// AceType is an NFSv4 access control entry's disposition.
type AceType uint32

const (
	AceAllow AceType = 0
	AceDeny  AceType = 1
	AceAudit AceType = 2
	AceAlarm AceType = 3
)

func parseAceType(v uint32) (AceType, error) {
	switch AceType(v) {
	case AceAllow, AceDeny, AceAudit, AceAlarm:
		return AceType(v), nil
	default:
		return 0, fmt.Errorf("acl: invalid NFSv4 ACE type %d", v)
	}
}

// AceFlags holds NFSv4 inheritance and audit flag bits.
type AceFlags uint32

const (
	FlagFileInherit      AceFlags = 0x0001
	FlagDirectoryInherit AceFlags = 0x0002
	FlagNoPropagate      AceFlags = 0x0004
	FlagInheritOnly      AceFlags = 0x0008
	FlagSuccessfulAccess AceFlags = 0x0010
	FlagFailedAccess     AceFlags = 0x0020
	FlagIdentifierGroup  AceFlags = 0x0040
	FlagInherited        AceFlags = 0x0080
)

// Contains reports whether flag bit is set.
func (f AceFlags) Contains(flag AceFlags) bool { return f&flag != 0 }

// AccessMask holds NFSv4 permission bits (14 distinct rights versus
// POSIX's 3).
type AccessMask uint32

const (
	MaskReadData        AccessMask = 0x0001
	MaskWriteData       AccessMask = 0x0002
	MaskAppendData      AccessMask = 0x0004
	MaskReadNamedAttrs  AccessMask = 0x0008
	MaskWriteNamedAttrs AccessMask = 0x0010
	MaskExecute         AccessMask = 0x0020
	MaskDeleteChild     AccessMask = 0x0040
	MaskReadAttributes  AccessMask = 0x0080
	MaskWriteAttributes AccessMask = 0x0100
	MaskDelete          AccessMask = 0x10000
	MaskReadACL         AccessMask = 0x20000
	MaskWriteACL        AccessMask = 0x40000
	MaskWriteOwner      AccessMask = 0x80000
	MaskSynchronize     AccessMask = 0x100000
)

// Ace is a single NFSv4 access control entry.
type Ace struct {
	Type  AceType
	Flags AceFlags
	Mask  AccessMask
	Who   string // principal: a user/group name, or a special identifier like "OWNER@"
}

// Nfs4ACL is an ordered NFSv4 access control list; entries are
// evaluated in order, first match wins.
type Nfs4ACL struct {
	Aces []Ace
}

// IsEmpty reports whether the ACL carries no entries.
func (a Nfs4ACL) IsEmpty() bool { return len(a.Aces) == 0 }

// MarshalBinary serializes the ACL: each entry is type/flags/mask (4
// bytes big-endian each), a 4-byte who-length, the who bytes, and
// zero-padding out to a 4-byte boundary.
func (a Nfs4ACL) MarshalBinary() []byte {
	var out []byte
	for _, ace := range a.Aces {
		var header [12]byte
		binary.BigEndian.PutUint32(header[0:4], uint32(ace.Type))
		binary.BigEndian.PutUint32(header[4:8], uint32(ace.Flags))
		binary.BigEndian.PutUint32(header[8:12], uint32(ace.Mask))
		out = append(out, header[:]...)

		who := []byte(ace.Who)
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(who)))
		out = append(out, lenBuf[:]...)
		out = append(out, who...)

		if pad := (4 - len(who)%4) % 4; pad > 0 {
			out = append(out, make([]byte, pad)...)
		}
	}
	return out
}

// UnmarshalNfs4ACL parses the binary representation written by
// MarshalBinary.
func UnmarshalNfs4ACL(data []byte) (Nfs4ACL, error) {
	var acl Nfs4ACL
	offset := 0
	for offset+16 <= len(data) {
		typ := binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4
		flags := binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4
		mask := binary.BigEndian.Uint32(data[offset : offset+4])
		offset += 4
		whoLen := int(binary.BigEndian.Uint32(data[offset : offset+4]))
		offset += 4

		if offset+whoLen > len(data) {
			return Nfs4ACL{}, fmt.Errorf("acl: truncated NFSv4 ACE who field")
		}
		who := string(data[offset : offset+whoLen])
		offset += whoLen
		offset += (4 - whoLen%4) % 4

		aceType, err := parseAceType(typ)
		if err != nil {
			return Nfs4ACL{}, err
		}
		acl.Aces = append(acl.Aces, Ace{
			Type:  aceType,
			Flags: AceFlags(flags),
			Mask:  AccessMask(mask),
			Who:   who,
		})
	}
	return acl, nil
}
