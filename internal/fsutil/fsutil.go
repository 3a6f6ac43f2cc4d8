// Package fsutil defines internal helpers for the on-disk metadata cache.
package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

var ErrPermission = errors.New("unexpected permission")

// IsMetaFile tests whether a DirEntry appears to be a metadata file.
func IsMetaFile(e os.DirEntry) (bool, error) {
	if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
		return false, nil
	}
	info, err := e.Info()
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// EnsurePermission tests the provided file info to make sure the permission
// bits are no wider than perm.
func EnsurePermission(fi os.FileInfo, perm os.FileMode) error {
	mode := fi.Mode() & fs.ModePerm
	mask := ^perm
	if (mode & mask) != 0 {
		return ErrPermission
	}
	return nil
}
