package objectstore

import (
	"golang.org/x/sys/unix"

	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// reflectFileMetadata makes a just-written file object's real on-disk
// attributes match its mode's convention: bare mode sets real
// ownership, permission bits, and xattrs (requires privilege for
// anything but self-owned content); bare-user and bare-user-only pack
// the true metadata into the user.ostreemeta xattr instead and leave
// the file owned by the invoking user.
func reflectFileMetadata(mode types.RepoMode, path string, obj *types.FileObject) error {
	switch mode {
	case types.ModeArchive:
		// Archive mode never exposes real files; nothing to reflect.
		return nil

	case types.ModeBare:
		if obj.IsSymlink() {
			if err := unix.Lchown(path, int(obj.UID), int(obj.GID)); err != nil {
				return errors.NewError(errors.ErrCodeIOError, "chown symlink").WithCause(err)
			}
			return nil
		}
		if err := unix.Chown(path, int(obj.UID), int(obj.GID)); err != nil {
			return errors.NewError(errors.ErrCodeIOError, "chown file").WithCause(err)
		}
		if err := unix.Chmod(path, obj.Mode&07777); err != nil {
			return errors.NewError(errors.ErrCodeIOError, "chmod file").WithCause(err)
		}
		for _, x := range obj.Xattr {
			if err := unix.Lsetxattr(path, x.Name, x.Value, 0); err != nil {
				return errors.NewError(errors.ErrCodeIOError, "setting xattr").WithCause(err).WithDetail("name", x.Name)
			}
		}
		return nil

	case types.ModeBareUser, types.ModeBareUserOnly:
		blob := packBareUserMeta(obj.UID, obj.GID, obj.Mode, obj.Xattr)
		if err := unix.Lsetxattr(path, bareUserXattrName, blob, 0); err != nil {
			return errors.NewError(errors.ErrCodeIOError, "setting user.ostreemeta xattr").WithCause(err)
		}
		return nil

	default:
		return errors.NewError(errors.ErrCodeInvalidConfig, "unknown repository mode").WithDetail("mode", string(mode))
	}
}

// readReflectedFileMetadata reverses reflectFileMetadata for
// bare-user* modes, reading the packed uid/gid/mode/xattrs back out of
// the user.ostreemeta xattr. Bare and archive modes never need this
// since their canonical encoding already carries the true metadata.
func readReflectedFileMetadata(path string) (uid, gid, mode uint32, xattrs []types.Xattr, err error) {
	size, serr := unix.Lgetxattr(path, bareUserXattrName, nil)
	if serr != nil {
		return 0, 0, 0, nil, errors.NewError(errors.ErrCodeCorruptObject, "missing user.ostreemeta xattr").WithCause(serr)
	}
	buf := make([]byte, size)
	if _, serr := unix.Lgetxattr(path, bareUserXattrName, buf); serr != nil {
		return 0, 0, 0, nil, errors.NewError(errors.ErrCodeCorruptObject, "reading user.ostreemeta xattr").WithCause(serr)
	}
	return unpackBareUserMeta(buf)
}
