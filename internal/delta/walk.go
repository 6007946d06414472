package delta

import (
	"context"
	"io"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// flattenCommit walks a commit's root tree into a flat path->FileObject
// map so Generate can pair files between two commits by path without
// re-walking both trees in lockstep. An empty checksum yields an
// empty map, modelling a from-empty delta's parent.
func flattenCommit(ctx context.Context, store types.ObjectStore, commitChecksum string) (map[string]*types.FileObject, error) {
	out := make(map[string]*types.FileObject)
	if commitChecksum == "" {
		return out, nil
	}
	commit, err := store.ReadCommit(ctx, commitChecksum)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeDeltaError, "reading commit for delta generation").WithCause(err)
	}
	rootTree := objectstore.ChecksumString(commit.RootTree)
	if err := walkTreeFiles(ctx, store, rootTree, "", out); err != nil {
		return nil, err
	}
	return out, nil
}

func walkTreeFiles(ctx context.Context, store types.ObjectStore, treeChecksum, prefix string, out map[string]*types.FileObject) error {
	tree, err := store.ReadDirTree(ctx, treeChecksum)
	if err != nil {
		return errors.NewError(errors.ErrCodeDeltaError, "reading dirtree for delta generation").WithCause(err)
	}
	for _, f := range tree.Files {
		checksum := objectstore.ChecksumString(f.Checksum)
		obj, err := readFileObject(ctx, store, checksum)
		if err != nil {
			return err
		}
		out[prefix+f.Name] = obj
	}
	for _, d := range tree.Dirs {
		sub := objectstore.ChecksumString(d.TreeCsum)
		if err := walkTreeFiles(ctx, store, sub, prefix+d.Name+"/", out); err != nil {
			return err
		}
	}
	return nil
}

func readFileObject(ctx context.Context, store types.ObjectStore, checksum string) (*types.FileObject, error) {
	rc, err := store.OpenObject(ctx, types.KindFile, checksum)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeDeltaError, "opening file object for delta generation").WithCause(err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeDeltaError, "reading file object body").WithCause(err)
	}
	return objectstore.DecodeFileObject(raw)
}

func fileChecksum(obj *types.FileObject) string {
	return objectstore.ChecksumString(objectstore.ComputeChecksum(objectstore.EncodeFileObject(obj)))
}
