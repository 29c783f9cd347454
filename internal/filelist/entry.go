// Package filelist implements the file-list codec described in
// spec.md §4.9: a streamed, name-compressed, bitflag-driven encoding
// of the entries exchanged between peers before a transfer begins.
package filelist

import "os"

// Entry is one file-list record, as held in memory between roles
// (spec.md §3, "File entry").
type Entry struct {
	Path string

	Length int64
	ModSec int64
	ModNS  int32 // protocol >= 30 only

	Mode os.FileMode
	UID  uint32
	GID  uint32
	// UserName/GroupName are carried alongside UID/GID unless
	// numeric-ids is in effect; empty means "not sent".
	UserName  string
	GroupName string

	LinkTarget string // symlinks only

	DevMajor, DevMinor uint32 // device nodes only

	// HardlinkDev/HardlinkIno form the transient hardlink key used
	// only by the sender (spec.md §3); receivers instead see an
	// XMIT_HLINKED flag plus a target index (populated by the codec
	// into HardlinkTargetIndex).
	HardlinkDev, HardlinkIno int64
	HardlinkTargetIndex      int64
	Hardlinked               bool

	ACLIndex   int32 // -1 when absent
	XattrIndex int32 // -1 when absent
}

// IsDir reports whether the entry describes a directory.
func (e *Entry) IsDir() bool { return e.Mode.IsDir() }

// IsSymlink reports whether the entry describes a symbolic link.
func (e *Entry) IsSymlink() bool { return e.Mode&os.ModeSymlink != 0 }

// IsDevice reports whether the entry describes a device node.
func (e *Entry) IsDevice() bool { return e.Mode&(os.ModeDevice|os.ModeCharDevice) != 0 }
