package filelist

// Primary flags byte (spec.md §4.9). A partial list is named in the
// spec; the remaining bits here round out a self-consistent codec.
const (
	xmitSameName      = 1 << 0
	xmitSameMode      = 1 << 1
	xmitSameUID       = 1 << 2
	xmitSameGID       = 1 << 3
	xmitSameTime      = 1 << 4
	xmitExtendedFlags = 1 << 5
	xmitTopDir        = 1 << 6
	// xmitEntryMarker is always set on a real entry's flags byte so
	// that it never collides with the all-zero end-of-list marker,
	// even when every other bit happens to be clear.
	xmitEntryMarker = 1 << 7
)

// Extended flags byte, present only when xmitExtendedFlags is set.
const (
	xmitSymlinkTarget = 1 << 0
	xmitDeviceNumbers = 1 << 1
	xmitHardlinked    = 1 << 2
	xmitUserName      = 1 << 3
	xmitGroupName     = 1 << 4
	xmitHasModNS      = 1 << 5
	xmitHasACL        = 1 << 6
	xmitHasXattr      = 1 << 7
)
