//go:build linux

package acl

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/pkg/xattr"
)

// nfs4XattrName is the extended attribute Linux uses to store an
// NFSv4 ACL.
const nfs4XattrName = "system.nfs4_acl"

// GetNFSv4 reads path's NFSv4 ACL, returning (zero, false, nil) if the
// file has none or the filesystem doesn't support them.
func GetNFSv4(path string, followSymlinks bool) (Nfs4ACL, bool, error) {
	var data []byte
	var err error
	if followSymlinks {
		data, err = xattr.Get(path, nfs4XattrName)
	} else {
		data, err = xattr.LGet(path, nfs4XattrName)
	}
	if err != nil {
		if isMissingXattr(err) {
			return Nfs4ACL{}, false, nil
		}
		return Nfs4ACL{}, false, fmt.Errorf("acl: read %s: %w", path, err)
	}
	acl, err := UnmarshalNfs4ACL(data)
	if err != nil {
		return Nfs4ACL{}, false, fmt.Errorf("acl: parse %s: %w", path, err)
	}
	return acl, true, nil
}

// SetNFSv4 writes acl to path's NFSv4 ACL xattr, or removes it if acl
// is empty.
func SetNFSv4(path string, acl Nfs4ACL, followSymlinks bool) error {
	if acl.IsEmpty() {
		var err error
		if followSymlinks {
			err = xattr.Remove(path, nfs4XattrName)
		} else {
			err = xattr.LRemove(path, nfs4XattrName)
		}
		if err != nil && !isMissingXattr(err) {
			return fmt.Errorf("acl: remove %s: %w", path, err)
		}
		return nil
	}

	data := acl.MarshalBinary()
	var err error
	if followSymlinks {
		err = xattr.Set(path, nfs4XattrName, data)
	} else {
		err = xattr.LSet(path, nfs4XattrName, data)
	}
	if err != nil {
		return fmt.Errorf("acl: write %s: %w", path, err)
	}
	return nil
}

// SyncNFSv4 copies the NFSv4 ACL from source to destination, removing
// any existing ACL on destination if source has none.
func SyncNFSv4(source, destination string, followSymlinks bool) error {
	acl, ok, err := GetNFSv4(source, followSymlinks)
	if err != nil {
		return err
	}
	if !ok {
		acl = Nfs4ACL{}
	}
	return SetNFSv4(destination, acl, followSymlinks)
}

func isMissingXattr(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var xerr *xattr.Error
	if errors.As(err, &xerr) {
		return errors.Is(xerr.Err, xattr.ENOATTR) || errors.Is(xerr.Err, fs.ErrNotExist)
	}
	return false
}
