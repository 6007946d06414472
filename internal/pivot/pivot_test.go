package pivot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMounter struct {
	calls []MountCall
}

func (f *fakeMounter) Mount(source, target, fstype string, flags uintptr, data string) error {
	f.calls = append(f.calls, MountCall{Op: "mount", Source: source, Target: target, FSType: fstype, Flags: flags, Data: data})
	return nil
}

func (f *fakeMounter) PivotRoot(newRoot, putOld string) error {
	f.calls = append(f.calls, MountCall{Op: "pivot_root", Source: newRoot, Target: putOld})
	return nil
}

func (f *fakeMounter) Chdir(path string) error {
	f.calls = append(f.calls, MountCall{Op: "chdir", Target: path})
	return nil
}

func (f *fakeMounter) Unmount(target string, flags int) error {
	f.calls = append(f.calls, MountCall{Op: "unmount", Target: target})
	return nil
}

func setupSysroot(t *testing.T) (sysroot, deployDir string) {
	t.Helper()
	sysroot = t.TempDir()
	deployDir = filepath.Join(sysroot, "ostree", "deploy", "testos", "deploy", "abcd1234.0")
	require.NoError(t, os.MkdirAll(deployDir, 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(deployDir, "usr"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(sysroot, "ostree", "deploy", "testos", "var"), 0755))

	bootSlot := filepath.Join(sysroot, "ostree", "boot.1", "testos", "abcd1234", "0")
	require.NoError(t, os.MkdirAll(filepath.Dir(bootSlot), 0755))
	require.NoError(t, os.Symlink(deployDir, bootSlot))
	return sysroot, deployDir
}

func TestRun_BindMountsDeploymentAndVar(t *testing.T) {
	sysroot, deployDir := setupSysroot(t)
	m := &fakeMounter{}

	ostreeArg, err := filepath.Rel(sysroot, filepath.Join(sysroot, "ostree", "boot.1", "testos", "abcd1234", "0"))
	require.NoError(t, err)

	err = Run(m, Options{Sysroot: sysroot, Stateroot: "testos", CmdlineOstreeArg: ostreeArg})
	require.NoError(t, err)

	var sawDeploySelfBind, sawVarBind bool
	for _, c := range m.calls {
		if c.Op == "mount" && c.Source == deployDir && c.Target == deployDir {
			sawDeploySelfBind = true
		}
		if c.Op == "mount" && c.Target == filepath.Join(deployDir, "var") {
			sawVarBind = true
		}
	}
	assert.True(t, sawDeploySelfBind, "deployment directory must be bind-mounted over itself")
	assert.True(t, sawVarBind, "stateroot var must be bind-mounted into the deployment")

	_, err = os.Stat(filepath.Join(deployDir, "run", "ostree-booted"))
	assert.NoError(t, err, "boot stamp must be touched")
}

func TestRun_SeparateSysroot_UsesMoveSequence(t *testing.T) {
	sysroot, deployDir := setupSysroot(t)
	m := &fakeMounter{}

	ostreeArg, err := filepath.Rel(sysroot, filepath.Join(sysroot, "ostree", "boot.1", "testos", "abcd1234", "0"))
	require.NoError(t, err)

	// Simulate the real-root-is-/ case by pointing Sysroot at "/" semantics
	// via a symlink trick is impractical in a unit test sandbox, so this
	// test instead exercises the /sysroot-mounted path and asserts the
	// MS_MOVE sequence runs instead of pivot_root.
	err = Run(m, Options{Sysroot: sysroot, Stateroot: "testos", CmdlineOstreeArg: ostreeArg})
	require.NoError(t, err)

	var sawMove bool
	for _, c := range m.calls {
		if c.Op == "mount" && c.Flags == flagMove {
			sawMove = true
		}
	}
	assert.True(t, sawMove, "booting from a separately-mounted sysroot must use the MS_MOVE sequence")
	_ = deployDir
}

func TestResolveDeployment_RejectsNonSymlink(t *testing.T) {
	sysroot := t.TempDir()
	plain := filepath.Join(sysroot, "plain")
	require.NoError(t, os.MkdirAll(plain, 0755))

	_, err := resolveDeployment(sysroot, "plain")
	assert.Error(t, err)
}

func TestParseOstreeArg(t *testing.T) {
	value, err := ParseOstreeArg("root=UUID=abc ostree=/ostree/boot.1/testos/abcd/0 quiet")
	require.NoError(t, err)
	assert.Equal(t, "/ostree/boot.1/testos/abcd/0", value)

	_, err = ParseOstreeArg("root=UUID=abc quiet")
	assert.Error(t, err)
}
