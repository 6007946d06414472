package sysroot

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ostreego/ostree/internal/txn"
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/utils"
)

// Sysroot manages the on-disk deployment state rooted at Path:
//
//	<Path>/ostree/deploy/<stateroot>/deploy/<csum>.<serial>/   checkouts
//	<Path>/ostree/deploy/<stateroot>/deploy/<csum>.<serial>.origin
//	<Path>/ostree/deploy/<stateroot>/var/                      shared var
//	<Path>/ostree/boot.0, boot.1                               boot slots
//	<Path>/boot/loader                                         active-slot symlink
//	<Path>/ostree/.lock                                        sysroot lock
type Sysroot struct {
	Path string

	// Logger, if set, receives one line when a deployment is torn down
	// by Undeploy. Deploy takes its own logger through DeployOptions
	// instead, since it already threads its other per-call settings
	// that way.
	Logger *utils.StructuredLogger
}

// New returns a Sysroot rooted at path. It does not create anything on
// disk; call Init for a fresh sysroot.
func New(path string) *Sysroot {
	return &Sysroot{Path: path}
}

// Init creates the directory skeleton for a brand-new sysroot.
func (s *Sysroot) Init() error {
	dirs := []string{
		filepath.Join(s.Path, "ostree", "deploy"),
		filepath.Join(s.Path, "ostree", "repo"),
		filepath.Join(s.Path, "boot"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return errors.NewError(errors.ErrCodeDeploymentError, "initializing sysroot").WithCause(err).
				WithDetail("path", d)
		}
	}
	if _, err := s.readBootVersion(); err != nil {
		if err := s.writeBootVersion(0); err != nil {
			return err
		}
	}
	return nil
}

// Lock takes the sysroot-wide exclusive lock for the duration of a
// deployment mutation (deploy, undeploy, cleanup). Two sysroot
// processes must never race on the boot slot flip.
func (s *Sysroot) Lock() (*txn.RepoLock, error) {
	if err := os.MkdirAll(filepath.Join(s.Path, "ostree"), 0755); err != nil {
		return nil, errors.NewError(errors.ErrCodeDeploymentError, "preparing sysroot lock directory").WithCause(err)
	}
	return txn.AcquireRepoLock(filepath.Join(s.Path, "ostree"))
}

// StaterootDeployDir returns the directory holding every deployment
// checkout for a stateroot.
func (s *Sysroot) StaterootDeployDir(stateroot string) string {
	return filepath.Join(s.Path, "ostree", "deploy", stateroot, "deploy")
}

// StaterootVarDir returns the shared, never-rolled-back /var for a
// stateroot.
func (s *Sysroot) StaterootVarDir(stateroot string) string {
	return filepath.Join(s.Path, "ostree", "deploy", stateroot, "var")
}

// DeploymentDir returns the checkout directory for one deployment.
func (s *Sysroot) DeploymentDir(stateroot, checksum string, serial int) string {
	return filepath.Join(s.StaterootDeployDir(stateroot), fmt.Sprintf("%s.%d", checksum, serial))
}

// OriginPath returns the path of a deployment's .origin file.
func (s *Sysroot) OriginPath(stateroot, checksum string, serial int) string {
	return s.DeploymentDir(stateroot, checksum, serial) + ".origin"
}

// bootVersionPath is the file recording which of boot.0/boot.1 is
// currently live, read and written under the sysroot lock.
func (s *Sysroot) bootVersionPath() string {
	return filepath.Join(s.Path, "ostree", ".bootversion")
}

func (s *Sysroot) readBootVersion() (int, error) {
	data, err := os.ReadFile(s.bootVersionPath())
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.NewError(errors.ErrCodeDeploymentError, "parsing bootversion file").WithCause(err)
	}
	return v, nil
}

func (s *Sysroot) writeBootVersion(v int) error {
	path := s.bootVersionPath()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(v)+"\n"), 0644); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "writing bootversion file").WithCause(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "committing bootversion file").WithCause(err)
	}
	return nil
}

// BootVersion returns the currently active boot slot (0 or 1).
func (s *Sysroot) BootVersion() (int, error) {
	v, err := s.readBootVersion()
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return v, nil
}

// bootDir returns the boot.<n> directory for a slot.
func (s *Sysroot) bootDir(version int) string {
	return filepath.Join(s.Path, "ostree", fmt.Sprintf("boot.%d", version))
}

// loaderSymlink is the well-known path the bootloader itself reads.
func (s *Sysroot) loaderSymlink() string {
	return filepath.Join(s.Path, "boot", "loader")
}
