//go:build !linux

package pivot

import "github.com/ostreego/ostree/pkg/errors"

// NewMounter is unavailable outside Linux; the pivot helper only ever
// runs in an initramfs.
func NewMounter() Mounter {
	return unsupportedMounter{}
}

type unsupportedMounter struct{}

func (unsupportedMounter) Mount(source, target, fstype string, flags uintptr, data string) error {
	return errors.NewError(errors.ErrCodeDeploymentError, "pivot is only supported on linux")
}

func (unsupportedMounter) PivotRoot(newRoot, putOld string) error {
	return errors.NewError(errors.ErrCodeDeploymentError, "pivot is only supported on linux")
}

func (unsupportedMounter) Chdir(path string) error {
	return errors.NewError(errors.ErrCodeDeploymentError, "pivot is only supported on linux")
}

func (unsupportedMounter) Unmount(target string, flags int) error {
	return errors.NewError(errors.ErrCodeDeploymentError, "pivot is only supported on linux")
}

const (
	flagBind    = uintptr(0)
	flagRec     = uintptr(0)
	flagMove    = uintptr(0)
	flagRDOnly  = uintptr(0)
	flagRemount = uintptr(0)
	mntDetach   = 0
)
