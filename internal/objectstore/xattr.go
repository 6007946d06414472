package objectstore

import (
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// bareUserXattrName is the xattr bare-user* modes use to carry a
// file's true uid/gid/mode/xattrs, since the on-disk file itself is
// always owned by the invoking unprivileged user.
const bareUserXattrName = "user.ostreemeta"

// packBareUserMeta encodes uid/gid/mode/xattrs into the blob stored
// in the "user.ostreemeta" xattr. This reuses the dirmeta wire format
// since the fields are identical in shape.
func packBareUserMeta(uid, gid, mode uint32, xattrs []types.Xattr) []byte {
	return EncodeDirMeta(&types.DirMeta{UID: uid, GID: gid, Mode: mode, Xattr: xattrs})
}

func unpackBareUserMeta(b []byte) (uid, gid, mode uint32, xattrs []types.Xattr, err error) {
	m, decErr := DecodeDirMeta(b)
	if decErr != nil {
		return 0, 0, 0, nil, errors.NewError(errors.ErrCodeCorruptObject, "malformed user.ostreemeta xattr").WithCause(decErr)
	}
	return m.UID, m.GID, m.Mode, m.Xattr, nil
}

// rejectUnsafeBareUserOnly enforces bare-user-only's refusal of suid
// bits and device nodes, and of permission combinations that only
// make sense under a privileged owner.
func rejectUnsafeBareUserOnly(f *types.FileObject) error {
	const (
		modeSetuid = 04000
		modeSetgid = 02000
	)
	if f.Mode&(modeSetuid|modeSetgid) != 0 {
		return errors.NewError(errors.ErrCodeInvalidTree, "bare-user-only repositories cannot store setuid/setgid files")
	}
	if f.Rdev != 0 {
		return errors.NewError(errors.ErrCodeInvalidTree, "bare-user-only repositories cannot store device nodes")
	}
	return nil
}
