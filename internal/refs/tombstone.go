package refs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
	"github.com/ostreego/ostree/pkg/utils"
)

// Tombstones records commit checksums that were deliberately pruned,
// so a subsequent pull from a remote that still advertises them knows
// not to resurrect them without an explicit override.
type Tombstones struct {
	dir string

	// Logger, if set, receives one line each time a checksum is tombstoned.
	Logger *utils.StructuredLogger
}

// NewTombstones returns a tombstone tracker rooted at
// <repoRoot>/state/tombstones.
func NewTombstones(repoRoot string) *Tombstones {
	return &Tombstones{dir: filepath.Join(repoRoot, "state", "tombstones")}
}

// Add records checksum as tombstoned, writing an empty marker file
// named after it. Safe to call more than once for the same checksum.
func (t *Tombstones) Add(checksum string) error {
	if _, err := objectstore.ParseChecksum(checksum); err != nil {
		return err
	}
	if err := os.MkdirAll(t.dir, 0755); err != nil {
		return errors.NewError(errors.ErrCodeIOError, "creating tombstone directory").WithCause(err)
	}
	path := filepath.Join(t.dir, checksum)
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return errors.NewError(errors.ErrCodeIOError, "writing tombstone marker").WithCause(err)
	}
	if t.Logger != nil {
		t.Logger.Info("commit tombstoned", map[string]interface{}{"checksum": checksum})
	}
	return nil
}

// Has reports whether checksum has been tombstoned.
func (t *Tombstones) Has(checksum string) bool {
	_, err := os.Stat(filepath.Join(t.dir, checksum))
	return err == nil
}

// FilterResurrections drops any commit from candidates that is
// tombstoned, for use by the pull engine's planning phase before it
// queues fetches for a remote's advertised history.
func (t *Tombstones) FilterResurrections(ctx context.Context, candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if !t.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// WriteTombstoneCommit composes a minimal commit object recording
// that checksum was deliberately removed, as fsck --add-tombstones
// does: an empty root tree, a subject explaining the tombstone, and
// the original checksum carried in metadata so a reader can tell what
// was pruned without needing the original object.
func WriteTombstoneCommit(ctx context.Context, store types.ObjectStore, prunedChecksum string, emptyTree, emptyDirMeta string) (string, error) {
	rootTree, err := objectstore.ParseChecksum(emptyTree)
	if err != nil {
		return "", err
	}
	rootMeta, err := objectstore.ParseChecksum(emptyDirMeta)
	if err != nil {
		return "", err
	}
	commit := &types.Commit{
		Metadata: map[string]interface{}{
			"ostree.tombstone-commit": "true",
			"ostree.pruned-checksum":  prunedChecksum,
		},
		Subject:     "tombstone",
		RootTree:    rootTree,
		RootDirMeta: rootMeta,
	}
	return store.WriteCommit(ctx, commit)
}
