//go:build !linux

package acl

import "fmt"

// GetNFSv4 is unsupported outside Linux; NFSv4 ACLs are a
// Linux-specific xattr convention (spec.md §6, "gated by platform
// feature flags").
func GetNFSv4(path string, followSymlinks bool) (Nfs4ACL, bool, error) {
	return Nfs4ACL{}, false, nil
}

// SetNFSv4 is unsupported outside Linux.
func SetNFSv4(path string, acl Nfs4ACL, followSymlinks bool) error {
	if acl.IsEmpty() {
		return nil
	}
	return fmt.Errorf("acl: NFSv4 ACLs are not supported on this platform")
}

// SyncNFSv4 is unsupported outside Linux.
func SyncNFSv4(source, destination string, followSymlinks bool) error {
	return nil
}
