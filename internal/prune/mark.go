package prune

import (
	"context"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/types"
)

// markSet records every checksum, by kind, reachable from the walked
// root set.
type markSet struct {
	commits map[string]struct{}
	dirMeta map[string]struct{}
	dirTree map[string]struct{}
	files   map[string]struct{}
}

func newMarkSet() *markSet {
	return &markSet{
		commits: map[string]struct{}{},
		dirMeta: map[string]struct{}{},
		dirTree: map[string]struct{}{},
		files:   map[string]struct{}{},
	}
}

func (m *markSet) has(kind types.ObjectKind, checksum string) bool {
	switch kind {
	case types.KindCommit:
		_, ok := m.commits[checksum]
		return ok
	case types.KindDirMeta:
		_, ok := m.dirMeta[checksum]
		return ok
	case types.KindDirTree:
		_, ok := m.dirTree[checksum]
		return ok
	case types.KindFile:
		_, ok := m.files[checksum]
		return ok
	default:
		return false
	}
}

// mark walks the parent chain from each root commit (spec.md §4.7's
// "recursive closure from each ref head"), honouring depth and the
// keep-younger-than cutoff, and marks every dirtree/dirmeta/file object
// transitively referenced by every commit it visits.
func mark(ctx context.Context, store types.ObjectStore, roots []string, opts Options) (*markSet, error) {
	excluded := make(map[string]struct{}, len(opts.ExcludeCommits))
	for _, c := range opts.ExcludeCommits {
		excluded[c] = struct{}{}
	}

	marked := newMarkSet()
	visitedCommits := map[string]struct{}{}

	for _, root := range roots {
		if _, skip := excluded[root]; skip {
			continue
		}
		current := root
		for depth := 0; opts.Depth <= 0 || depth <= opts.Depth; depth++ {
			if current == "" {
				break
			}
			if _, skip := excluded[current]; skip {
				break
			}
			if _, seen := visitedCommits[current]; seen {
				break
			}

			commit, err := store.ReadCommit(ctx, current)
			if err != nil {
				return nil, err
			}
			if !opts.KeepYoungerThan.IsZero() && commit.Timestamp.Before(opts.KeepYoungerThan) {
				break
			}

			visitedCommits[current] = struct{}{}
			marked.commits[current] = struct{}{}

			metaChecksum := objectstore.ChecksumString(commit.RootDirMeta)
			treeChecksum := objectstore.ChecksumString(commit.RootTree)
			if err := markTree(ctx, store, metaChecksum, treeChecksum, marked); err != nil {
				return nil, err
			}

			if commit.Parent == nil {
				break
			}
			current = objectstore.ChecksumString(*commit.Parent)
		}
	}

	return marked, nil
}

func markTree(ctx context.Context, store types.ObjectStore, metaChecksum, treeChecksum string, marked *markSet) error {
	if _, ok := marked.dirTree[treeChecksum]; ok {
		marked.dirMeta[metaChecksum] = struct{}{}
		return nil
	}
	marked.dirMeta[metaChecksum] = struct{}{}
	marked.dirTree[treeChecksum] = struct{}{}

	tree, err := store.ReadDirTree(ctx, treeChecksum)
	if err != nil {
		return err
	}
	for _, f := range tree.Files {
		marked.files[objectstore.ChecksumString(f.Checksum)] = struct{}{}
	}
	for _, d := range tree.Dirs {
		childMeta := objectstore.ChecksumString(d.DirMetaCsum)
		childTree := objectstore.ChecksumString(d.TreeCsum)
		if err := markTree(ctx, store, childMeta, childTree, marked); err != nil {
			return err
		}
	}
	return nil
}
