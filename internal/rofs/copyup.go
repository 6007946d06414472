package rofs

import (
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/ostreego/ostree/pkg/errors"
)

// breakHardlinkIfShared is the core rofiles-fuse behavior: if path is
// hardlinked (its link count is greater than one, meaning some other
// name — almost always an object store file object — shares its
// inode), its content is copied into a brand new inode at the same
// path before any write proceeds. A path with a single link is already
// safe to write in place and is left untouched.
func breakHardlinkIfShared(path string) error {
	var st syscall.Stat_t
	if err := syscall.Lstat(path, &st); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.NewError(errors.ErrCodeIOError, "stat before copy-up").WithCause(err).WithDetail("path", path)
	}
	if st.Nlink <= 1 {
		return nil
	}

	tmp := path + ".rofs-copyup"
	if err := copyFile(path, tmp, os.FileMode(st.Mode&0777)); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.NewError(errors.ErrCodeIOError, "renaming copy-up file into place").WithCause(err).
			WithDetail("path", path)
	}
	return nil
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.NewError(errors.ErrCodeIOError, "opening file for copy-up").WithCause(err).WithDetail("path", src)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.NewError(errors.ErrCodeIOError, "creating copy-up directory").WithCause(err)
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return errors.NewError(errors.ErrCodeIOError, "creating copy-up file").WithCause(err).WithDetail("path", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.NewError(errors.ErrCodeIOError, "copying file content for copy-up").WithCause(err).WithDetail("path", dst)
	}
	if err := out.Sync(); err != nil {
		return errors.NewError(errors.ErrCodeIOError, "syncing copy-up file").WithCause(err).WithDetail("path", dst)
	}
	return nil
}
