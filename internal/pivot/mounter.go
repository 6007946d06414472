package pivot

// Mounter abstracts the kernel mount operations pivot needs, so the
// sequencing logic can be exercised in tests without CAP_SYS_ADMIN. The
// real implementation (mounter_linux.go) wraps golang.org/x/sys/unix.
type Mounter interface {
	Mount(source, target, fstype string, flags uintptr, data string) error
	PivotRoot(newRoot, putOld string) error
	Chdir(path string) error
	Unmount(target string, flags int) error
}

// MountCall records one invocation against a Mounter, used by
// the fake Mounter in tests to assert the exact sequence pivot issues.
type MountCall struct {
	Op     string
	Source string
	Target string
	FSType string
	Flags  uintptr
	Data   string
}
