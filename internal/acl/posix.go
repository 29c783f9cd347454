package acl

// Constants mirroring upstream rsync's acls.c wire encoding. Entry
// permission fields are 3-bit rwx values (0-7); NoEntry is an
// out-of-range sentinel meaning "this optional field was not sent".
const (
	NoEntry uint8 = 0xff

	nameIsUser       uint32 = 0x80
	accessShift             = 2
	xflagNameFollows uint32 = 0x01
	xflagNameIsUser  uint32 = 0x02

	xmitUserObj  uint8 = 1 << 0
	xmitGroupObj uint8 = 1 << 1
	xmitMaskObj  uint8 = 1 << 2
	xmitOtherObj uint8 = 1 << 3
	xmitNameList uint8 = 1 << 4
)

// IDAccess is one named user/group entry in a POSIX ACL's extended
// permission list.
type IDAccess struct {
	ID     uint32
	Access uint32 // rwx bits, optionally OR'd with nameIsUser
}

// NewUserIDAccess constructs a named-user entry.
func NewUserIDAccess(id uint32, access uint32) IDAccess {
	return IDAccess{ID: id, Access: access | nameIsUser}
}

// NewGroupIDAccess constructs a named-group entry.
func NewGroupIDAccess(id uint32, access uint32) IDAccess {
	return IDAccess{ID: id, Access: access}
}

// RsyncACL is the compact POSIX ACL representation rsync transmits:
// the four object permission fields plus an optional named-entry
// list, following upstream's `rsync_acl` struct.
type RsyncACL struct {
	UserObj  uint8
	GroupObj uint8
	MaskObj  uint8
	OtherObj uint8
	Names    []IDAccess
}

// NewRsyncACL returns an ACL with every object field unset.
func NewRsyncACL() RsyncACL {
	return RsyncACL{UserObj: NoEntry, GroupObj: NoEntry, MaskObj: NoEntry, OtherObj: NoEntry}
}

// IsEmpty reports whether every field is unset.
func (a RsyncACL) IsEmpty() bool {
	return a.UserObj == NoEntry && a.GroupObj == NoEntry &&
		a.MaskObj == NoEntry && a.OtherObj == NoEntry && len(a.Names) == 0
}

// Flags computes the XMIT_* bitmask indicating which optional fields
// follow on the wire.
func (a RsyncACL) Flags() uint8 {
	var f uint8
	if a.UserObj != NoEntry {
		f |= xmitUserObj
	}
	if a.GroupObj != NoEntry {
		f |= xmitGroupObj
	}
	if a.MaskObj != NoEntry {
		f |= xmitMaskObj
	}
	if a.OtherObj != NoEntry {
		f |= xmitOtherObj
	}
	if len(a.Names) > 0 {
		f |= xmitNameList
	}
	return f
}

// equalForCache compares two ACLs field-for-field, the same
// comparison the sender uses to find a reusable cache entry.
func (a RsyncACL) equalForCache(b RsyncACL) bool {
	if a.UserObj != b.UserObj || a.GroupObj != b.GroupObj ||
		a.MaskObj != b.MaskObj || a.OtherObj != b.OtherObj ||
		len(a.Names) != len(b.Names) {
		return false
	}
	for i := range a.Names {
		if a.Names[i] != b.Names[i] {
			return false
		}
	}
	return true
}

// Cache deduplicates ACLs sent over the wire: an ACL identical to one
// already sent is referenced by index instead of being retransmitted
// (spec.md §4.17, "a fingerprint-indexed ACL cache"). Access and
// default ACLs are cached in separate lists since they travel in
// independent wire streams per file entry.
type Cache struct {
	access []RsyncACL
	deflt  []RsyncACL
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{}
}

// FindAccess returns the index of an already-cached access ACL equal
// to acl, if any.
func (c *Cache) FindAccess(acl RsyncACL) (int, bool) {
	return findEqual(c.access, acl)
}

// StoreAccess appends acl to the access cache and returns its index.
func (c *Cache) StoreAccess(acl RsyncACL) int {
	c.access = append(c.access, acl)
	return len(c.access) - 1
}

// FindDefault returns the index of an already-cached default ACL
// equal to acl, if any.
func (c *Cache) FindDefault(acl RsyncACL) (int, bool) {
	return findEqual(c.deflt, acl)
}

// StoreDefault appends acl to the default cache and returns its
// index.
func (c *Cache) StoreDefault(acl RsyncACL) int {
	c.deflt = append(c.deflt, acl)
	return len(c.deflt) - 1
}

func findEqual(cache []RsyncACL, acl RsyncACL) (int, bool) {
	for i, cached := range cache {
		if cached.equalForCache(acl) {
			return i, true
		}
	}
	return 0, false
}
