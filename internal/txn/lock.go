package txn

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/ostreego/ostree/pkg/errors"
)

// RepoLock is an advisory, cross-process exclusive lock held over a
// repository's lock file for the duration of a transaction, so two
// separate ostree processes (not just two goroutines in the same
// process) cannot both hold the single-transaction slot at once.
type RepoLock struct {
	f *os.File
}

// AcquireRepoLock opens (creating if necessary) <repoRoot>/lock and
// takes an exclusive, non-blocking flock on it.
func AcquireRepoLock(repoRoot string) (*RepoLock, error) {
	path := filepath.Join(repoRoot, "lock")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeIOError, "opening repository lock file").WithCause(err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errors.NewError(errors.ErrCodeTransactionAlreadyActive, "repository is locked by another process").WithCause(err)
	}
	return &RepoLock{f: f}, nil
}

// Release drops the flock and closes the lock file.
func (l *RepoLock) Release() error {
	if err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN); err != nil {
		l.f.Close()
		return errors.NewError(errors.ErrCodeIOError, "releasing repository lock").WithCause(err)
	}
	return l.f.Close()
}
