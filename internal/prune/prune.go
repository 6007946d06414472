package prune

import (
	"context"

	"github.com/ostreego/ostree/internal/refs"
	"github.com/ostreego/ostree/internal/txn"
	"github.com/ostreego/ostree/pkg/types"
)

// rootPather is implemented by on-disk object stores; Prune uses it,
// when present, to take the repository transaction lock for the
// mark+sweep pair per spec.md §5's shared-resources rule.
type rootPather interface {
	Root() string
}

// Prune runs one mark-and-sweep garbage collection pass over store,
// using refStore to enumerate every current ref as a mark root. When
// WriteTombstones is set, every excluded commit is recorded in
// tombstones (and a tombstone commit object is written) so a later
// pull does not resurrect it.
func Prune(ctx context.Context, store types.ObjectStore, refStore *refs.Store, tombstones *refs.Tombstones, opts Options) (*Stats, error) {
	if root, ok := store.(rootPather); ok {
		lock, err := txn.AcquireRepoLock(root.Root())
		if err != nil {
			return nil, err
		}
		defer lock.Release()
	}

	allRefs, err := refStore.AllRefs()
	if err != nil {
		return nil, err
	}
	roots := make([]string, 0, len(allRefs))
	for _, r := range allRefs {
		roots = append(roots, r.Checksum)
	}

	marked, err := mark(ctx, store, roots, opts)
	if err != nil {
		return nil, err
	}

	stats, err := sweep(ctx, store, marked, opts.DryRun)
	if err != nil {
		return nil, err
	}
	stats.CommitsExcluded = opts.ExcludeCommits

	if opts.WriteTombstones && !opts.DryRun && tombstones != nil {
		emptyTree, emptyMeta, err := writeEmptyTree(ctx, store)
		if err != nil {
			return nil, err
		}
		for _, c := range opts.ExcludeCommits {
			if _, err := refs.WriteTombstoneCommit(ctx, store, c, emptyTree, emptyMeta); err != nil {
				return nil, err
			}
			if err := tombstones.Add(c); err != nil {
				return nil, err
			}
		}
	}

	if opts.Logger != nil {
		opts.Logger.Info("prune complete", map[string]interface{}{
			"objects_marked": stats.ObjectsMarked, "objects_deleted": stats.ObjectsDeleted,
			"bytes_freed": stats.BytesFreed, "dry_run": opts.DryRun,
		})
	}

	return stats, nil
}

// writeEmptyTree writes (or finds) the canonical empty dirtree/dirmeta
// pair used as the root of a tombstone commit.
func writeEmptyTree(ctx context.Context, store types.ObjectStore) (treeChecksum, metaChecksum string, err error) {
	meta, err := store.WriteDirMeta(ctx, &types.DirMeta{Mode: 040755})
	if err != nil {
		return "", "", err
	}
	tree, err := store.WriteDirTree(ctx, &types.DirTree{})
	if err != nil {
		return "", "", err
	}
	return tree, meta, nil
}
