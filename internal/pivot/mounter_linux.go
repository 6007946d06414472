//go:build linux

package pivot

import (
	"golang.org/x/sys/unix"

	"github.com/ostreego/ostree/pkg/errors"
)

// unixMounter is the real Mounter, used outside of tests.
type unixMounter struct{}

// NewMounter returns the production Mounter backed by Linux mount
// syscalls.
func NewMounter() Mounter {
	return unixMounter{}
}

func (unixMounter) Mount(source, target, fstype string, flags uintptr, data string) error {
	if err := unix.Mount(source, target, fstype, flags, data); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "mount failed").WithCause(err).
			WithDetail("source", source).WithDetail("target", target)
	}
	return nil
}

func (unixMounter) PivotRoot(newRoot, putOld string) error {
	if err := unix.PivotRoot(newRoot, putOld); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "pivot_root failed").WithCause(err).
			WithDetail("newRoot", newRoot).WithDetail("putOld", putOld)
	}
	return nil
}

func (unixMounter) Chdir(path string) error {
	if err := unix.Chdir(path); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "chdir failed").WithCause(err).WithDetail("path", path)
	}
	return nil
}

func (unixMounter) Unmount(target string, flags int) error {
	if err := unix.Unmount(target, flags); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "unmount failed").WithCause(err).WithDetail("target", target)
	}
	return nil
}

const (
	flagBind   = unix.MS_BIND
	flagRec    = unix.MS_REC
	flagMove   = unix.MS_MOVE
	flagRDOnly = unix.MS_RDONLY
	flagRemount = unix.MS_REMOUNT
	mntDetach  = unix.MNT_DETACH
)
