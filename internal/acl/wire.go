package acl

import (
	"fmt"
	"io"

	"github.com/oferchen/rsync-sub017/internal/rsyncwire"
)

// Kind selects which of a file entry's two POSIX ACLs is being sent:
// the access ACL (file permissions) or, for directories, the default
// ACL inherited by new children.
type Kind int

const (
	KindAccess Kind = iota
	KindDefault
)

func encodeAccess(access uint32, includeName bool) uint32 {
	perms := access &^ nameIsUser
	encoded := perms << accessShift
	if includeName {
		encoded |= xflagNameFollows
	}
	if access&nameIsUser != 0 {
		encoded |= xflagNameIsUser
	}
	return encoded
}

func decodeAccess(encoded uint32, isNameEntry bool) (access uint32, nameFollows bool) {
	if !isNameEntry {
		return encoded, false
	}
	flags := encoded & 0x03
	access = encoded >> accessShift
	nameFollows = flags&xflagNameFollows != 0
	if flags&xflagNameIsUser != 0 {
		access |= nameIsUser
	}
	return access, nameFollows
}

// WriteIDAccessList sends the named user/group entry list: a count
// followed by (id, encoded-access) pairs. Names are never sent
// (numeric-ids mode), matching upstream's send_ida_entries when name
// resolution is disabled.
func WriteIDAccessList(w io.Writer, entries []IDAccess) error {
	if err := rsyncwire.WriteVarint(w, int64(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := rsyncwire.WriteVarint(w, int64(e.ID)); err != nil {
			return err
		}
		encoded := encodeAccess(e.Access, false)
		if err := rsyncwire.WriteVarint(w, int64(encoded)); err != nil {
			return err
		}
	}
	return nil
}

// ReadIDAccessList receives the named entry list and the computed
// mask (the OR of every entry's permission bits), matching upstream's
// recv_ida_entries. Name strings, if present, are read and discarded;
// full uid/gid name resolution is out of scope here.
func ReadIDAccessList(r io.Reader) ([]IDAccess, uint8, error) {
	count, err := rsyncwire.ReadVarint(r)
	if err != nil {
		return nil, 0, err
	}
	if count < 0 {
		return nil, 0, fmt.Errorf("acl: negative ida_entries count %d", count)
	}
	entries := make([]IDAccess, 0, count)
	var mask uint8
	for i := int64(0); i < count; i++ {
		id, err := rsyncwire.ReadVarint(r)
		if err != nil {
			return nil, 0, err
		}
		encoded, err := rsyncwire.ReadVarint(r)
		if err != nil {
			return nil, 0, err
		}
		access, nameFollows := decodeAccess(uint32(encoded), true)
		if nameFollows {
			var lenBuf [1]byte
			if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
				return nil, 0, err
			}
			name := make([]byte, lenBuf[0])
			if _, err := io.ReadFull(r, name); err != nil {
				return nil, 0, err
			}
		}
		entries = append(entries, IDAccess{ID: uint32(id), Access: access})
		mask |= uint8(access &^ nameIsUser)
	}
	return entries, mask, nil
}

// RecvResult is either a cache hit (reuse a previously sent ACL) or a
// literal ACL just received.
type RecvResult struct {
	CacheIndex int
	CacheHit   bool
	Literal    RsyncACL
}

// WriteACL sends acl over the wire, consulting cache first: an ACL
// identical to one already sent costs one varint (the cache index
// plus one); a new ACL costs a flags byte, its present fields, and an
// optional name list, and is then added to cache for future reuse.
func WriteACL(w io.Writer, acl RsyncACL, kind Kind, cache *Cache) error {
	var idx int
	var hit bool
	switch kind {
	case KindAccess:
		idx, hit = cache.FindAccess(acl)
	case KindDefault:
		idx, hit = cache.FindDefault(acl)
	}

	ndx := int64(-1)
	if hit {
		ndx = int64(idx)
	}
	if err := rsyncwire.WriteVarint(w, ndx+1); err != nil {
		return err
	}
	if hit {
		return nil
	}

	switch kind {
	case KindAccess:
		cache.StoreAccess(acl)
	case KindDefault:
		cache.StoreDefault(acl)
	}

	flags := acl.Flags()
	if _, err := w.Write([]byte{flags}); err != nil {
		return err
	}
	if flags&xmitUserObj != 0 {
		if err := rsyncwire.WriteVarint(w, int64(acl.UserObj)); err != nil {
			return err
		}
	}
	if flags&xmitGroupObj != 0 {
		if err := rsyncwire.WriteVarint(w, int64(acl.GroupObj)); err != nil {
			return err
		}
	}
	if flags&xmitMaskObj != 0 {
		if err := rsyncwire.WriteVarint(w, int64(acl.MaskObj)); err != nil {
			return err
		}
	}
	if flags&xmitOtherObj != 0 {
		if err := rsyncwire.WriteVarint(w, int64(acl.OtherObj)); err != nil {
			return err
		}
	}
	if flags&xmitNameList != 0 {
		if err := WriteIDAccessList(w, acl.Names); err != nil {
			return err
		}
	}
	return nil
}

// ReadACL receives one ACL sent by WriteACL.
func ReadACL(r io.Reader) (RecvResult, error) {
	ndxPlusOne, err := rsyncwire.ReadVarint(r)
	if err != nil {
		return RecvResult{}, err
	}
	ndx := ndxPlusOne - 1
	if ndx >= 0 {
		return RecvResult{CacheHit: true, CacheIndex: int(ndx)}, nil
	}

	var flagsBuf [1]byte
	if _, err := io.ReadFull(r, flagsBuf[:]); err != nil {
		return RecvResult{}, err
	}
	flags := flagsBuf[0]

	acl := NewRsyncACL()
	if flags&xmitUserObj != 0 {
		v, err := rsyncwire.ReadVarint(r)
		if err != nil {
			return RecvResult{}, err
		}
		acl.UserObj = uint8(v)
	}
	if flags&xmitGroupObj != 0 {
		v, err := rsyncwire.ReadVarint(r)
		if err != nil {
			return RecvResult{}, err
		}
		acl.GroupObj = uint8(v)
	}
	if flags&xmitMaskObj != 0 {
		v, err := rsyncwire.ReadVarint(r)
		if err != nil {
			return RecvResult{}, err
		}
		acl.MaskObj = uint8(v)
	}
	if flags&xmitOtherObj != 0 {
		v, err := rsyncwire.ReadVarint(r)
		if err != nil {
			return RecvResult{}, err
		}
		acl.OtherObj = uint8(v)
	}
	if flags&xmitNameList != 0 {
		entries, _, err := ReadIDAccessList(r)
		if err != nil {
			return RecvResult{}, err
		}
		acl.Names = entries
	}
	return RecvResult{Literal: acl}, nil
}

// WriteFileACLs sends the access ACL, and for directories also the
// default ACL, matching upstream's send_acl().
func WriteFileACLs(w io.Writer, access RsyncACL, deflt RsyncACL, isDir bool, cache *Cache) error {
	if err := WriteACL(w, access, KindAccess, cache); err != nil {
		return err
	}
	if isDir {
		if err := WriteACL(w, deflt, KindDefault, cache); err != nil {
			return err
		}
	}
	return nil
}

// ReadFileACLs receives the access ACL, and for directories also the
// default ACL.
func ReadFileACLs(r io.Reader, isDir bool) (access RecvResult, deflt RecvResult, err error) {
	access, err = ReadACL(r)
	if err != nil {
		return RecvResult{}, RecvResult{}, err
	}
	if isDir {
		deflt, err = ReadACL(r)
		if err != nil {
			return RecvResult{}, RecvResult{}, err
		}
	}
	return access, deflt, nil
}
