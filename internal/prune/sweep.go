package prune

import (
	"context"

	"github.com/ostreego/ostree/pkg/types"
)

// Stats reports what one prune run found and (unless DryRun) deleted.
type Stats struct {
	ObjectsMarked    int
	ObjectsDeleted   int
	BytesFreed       int64
	CommitsExcluded  []string
	DeletedByKind    map[types.ObjectKind]int
}

var sweptKinds = []types.ObjectKind{types.KindCommit, types.KindDirTree, types.KindDirMeta, types.KindFile}

// sweep walks every object in the store and deletes (unless dryRun)
// anything not present in marked — the second phase of mark-and-sweep.
// Kinds are swept commits first, then dirtrees, dirmeta and files;
// deletion order has no correctness requirement here since the mark phase already computed
// the complete reachable set before any deletion begins.
func sweep(ctx context.Context, store types.ObjectStore, marked *markSet, dryRun bool) (*Stats, error) {
	stats := &Stats{DeletedByKind: map[types.ObjectKind]int{}}
	stats.ObjectsMarked = len(marked.commits) + len(marked.dirTree) + len(marked.dirMeta) + len(marked.files)

	for _, kind := range sweptKinds {
		ch, err := store.IterObjects(ctx, kind)
		if err != nil {
			return nil, err
		}
		for info := range ch {
			if marked.has(kind, info.Checksum) {
				continue
			}
			if !dryRun {
				if err := store.DeleteObject(ctx, kind, info.Checksum); err != nil {
					return nil, err
				}
			}
			stats.ObjectsDeleted++
			stats.DeletedByKind[kind]++
			stats.BytesFreed += info.Size
		}
	}
	return stats, nil
}
