package objectstore

import (
	"os"
	"path/filepath"

	"github.com/ostreego/ostree/pkg/errors"
)

// CommitPartialPath returns the marker path recording that checksum's
// closure may not yet be fully on disk, exported so callers outside
// this package (the pull engine) can manage it across the fetch of a
// commit's tree without reaching into repo internals.
func CommitPartialPath(root, checksum string) string {
	return stateMarkerPath(root, checksum)
}

// MarkCommitPartial records that checksum's closure is being written
// and must not be treated as visible to readers until cleared.
func MarkCommitPartial(root, checksum string) error {
	p := CommitPartialPath(root, checksum)
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return errors.NewError(errors.ErrCodeIOError, "creating state directory").WithCause(err)
	}
	if err := os.WriteFile(p, nil, 0644); err != nil {
		return errors.NewError(errors.ErrCodeIOError, "writing commitpartial marker").WithCause(err)
	}
	return nil
}

// ClearCommitPartial removes checksum's commitpartial marker once its
// closure is confirmed complete and verified. Safe to call when no
// marker exists.
func ClearCommitPartial(root, checksum string) error {
	if err := os.Remove(CommitPartialPath(root, checksum)); err != nil && !os.IsNotExist(err) {
		return errors.NewError(errors.ErrCodeIOError, "removing commitpartial marker").WithCause(err)
	}
	return nil
}

// IsCommitPartial reports whether checksum's closure is still marked
// incomplete, e.g. after a pull was interrupted mid-fetch.
func IsCommitPartial(root, checksum string) bool {
	_, err := os.Stat(CommitPartialPath(root, checksum))
	return err == nil
}
