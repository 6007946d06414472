package pivot

import (
	"os"
	"path/filepath"

	"github.com/ostreego/ostree/pkg/errors"
)

// Options configures one pivot run.
type Options struct {
	// Sysroot is the mount point holding /ostree, either "/" (the real
	// root already is the sysroot) or "/sysroot" (booted via an
	// initramfs that mounted the sysroot separately).
	Sysroot string

	// Stateroot is the deployment's stateroot name, used to locate its
	// shared var directory.
	Stateroot string

	// CmdlineOstreeArg is the resolved value of the ostree= kernel
	// argument (see ParseOstreeArg), a path relative to Sysroot naming
	// the boot-slot symlink for the selected deployment.
	CmdlineOstreeArg string
}

// Run executes the full early-boot pivot sequence: resolving the
// deployment symlink, bind-mounting the deployment and its var over
// themselves, installing /usr read-only or via overlayfs, moving the
// new root into place, and touching the boot stamp file.
func Run(m Mounter, opts Options) error {
	deployDir, err := resolveDeployment(opts.Sysroot, opts.CmdlineOstreeArg)
	if err != nil {
		return err
	}

	if err := m.Mount(deployDir, deployDir, "", flagBind, ""); err != nil {
		return err
	}

	varDir := filepath.Join(opts.Sysroot, "ostree", "deploy", opts.Stateroot, "var")
	deployVar := filepath.Join(deployDir, "var")
	if err := os.MkdirAll(deployVar, 0755); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "creating deployment var mountpoint").WithCause(err)
	}
	if err := m.Mount(varDir, deployVar, "", flagBind, ""); err != nil {
		return err
	}

	if err := mountUsr(m, deployDir); err != nil {
		return err
	}

	if opts.Sysroot == "/" {
		if err := pivotRootInPlace(m, deployDir); err != nil {
			return err
		}
	} else {
		if err := moveSysrootAside(m, opts.Sysroot, deployDir); err != nil {
			return err
		}
	}

	if err := touchBootStamp(deployDir); err != nil {
		return err
	}
	return nil
}

// resolveDeployment stats the ostree= path (which MUST be a symlink
// into ostree/deploy/<stateroot>/deploy/<csum>.<n>) and resolves it to
// the real checkout directory.
func resolveDeployment(sysroot, ostreeArg string) (string, error) {
	linkPath := filepath.Join(sysroot, ostreeArg)
	info, err := os.Lstat(linkPath)
	if err != nil {
		return "", errors.NewError(errors.ErrCodeDeploymentError, "stat ostree= target").WithCause(err).
			WithDetail("path", linkPath)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return "", errors.NewError(errors.ErrCodeDeploymentError, "ostree= target is not a symlink").
			WithDetail("path", linkPath)
	}
	resolved, err := filepath.EvalSymlinks(linkPath)
	if err != nil {
		return "", errors.NewError(errors.ErrCodeDeploymentError, "resolving ostree= symlink").WithCause(err).
			WithDetail("path", linkPath)
	}
	return resolved, nil
}

// mountUsr bind-mounts /usr read-only, or mounts an overlayfs over it
// when the deployment carries a .usr-ovl-work directory (an unlocked,
// writable /usr deployment).
func mountUsr(m Mounter, deployDir string) error {
	usr := filepath.Join(deployDir, "usr")
	workDir := filepath.Join(deployDir, ".usr-ovl-work")

	if _, err := os.Stat(workDir); err == nil {
		upper := filepath.Join(deployDir, ".usr-ovl-upper")
		if err := os.MkdirAll(upper, 0755); err != nil {
			return errors.NewError(errors.ErrCodeDeploymentError, "creating overlay upperdir").WithCause(err)
		}
		data := "lowerdir=" + usr + ",upperdir=" + upper + ",workdir=" + workDir
		return m.Mount("overlay", usr, "overlay", 0, data)
	}

	if err := m.Mount(usr, usr, "", flagBind, ""); err != nil {
		return err
	}
	return m.Mount(usr, usr, "", flagBind|flagRemount|flagRDOnly, "")
}

// pivotRootInPlace handles the case where the real root is already /:
// a straight pivot_root into the deployment directory, with the old
// root parked at deployDir/sysroot and then lazily unmounted.
func pivotRootInPlace(m Mounter, deployDir string) error {
	oldRoot := filepath.Join(deployDir, "sysroot")
	if err := os.MkdirAll(oldRoot, 0755); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "creating pivot_root putold directory").WithCause(err)
	}
	if err := m.PivotRoot(deployDir, oldRoot); err != nil {
		return err
	}
	if err := m.Chdir("/"); err != nil {
		return err
	}
	return m.Unmount("/sysroot", mntDetach)
}

// moveSysrootAside handles booting via an initramfs that mounted the
// sysroot at a separate path: the deployment is bind-mounted at
// /sysroot-new-root, that mount is moved onto /, and the sysroot mount
// is moved to the new root's /sysroot. The old / is not moved.
func moveSysrootAside(m Mounter, sysroot, deployDir string) error {
	if err := m.Mount(deployDir, "/sysroot-new-root", "", flagBind, ""); err != nil {
		return err
	}
	if err := m.Mount("/sysroot-new-root", "/", "", flagMove, ""); err != nil {
		return err
	}
	if err := m.Chdir("/"); err != nil {
		return err
	}
	newSysrootMount := filepath.Join("/", "sysroot")
	if err := os.MkdirAll(newSysrootMount, 0755); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "creating new sysroot mountpoint").WithCause(err)
	}
	return m.Mount(sysroot, newSysrootMount, "", flagMove, "")
}

// touchBootStamp creates /run/ostree-booted under the new root so
// userspace can detect it is running an ostree-managed system.
func touchBootStamp(deployDir string) error {
	stamp := filepath.Join(deployDir, "run", "ostree-booted")
	if err := os.MkdirAll(filepath.Dir(stamp), 0755); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "creating /run").WithCause(err)
	}
	f, err := os.OpenFile(stamp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "touching boot stamp").WithCause(err)
	}
	return f.Close()
}
