// Package rsyncstats defines the transfer statistics reported at the
// end of a session, as exchanged between generator/sender/receiver and
// surfaced to the top-level caller.
package rsyncstats

// TransferStats mirrors the three counters rsync exchanges at the end
// of a transfer: bytes read from the network, bytes written to the
// network, and the total size of the files the file list described.
type TransferStats struct {
	Read    int64
	Written int64
	Size    int64

	// FilesTransferred, FilesSkipped, FilesDeleted and IOErrors are
	// not sent on the wire; no code in this module sets them.
	FilesTransferred int
	FilesSkipped     int
	FilesDeleted     int
	IOErrors         int
}
