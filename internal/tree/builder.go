package tree

import (
	"context"
	"io"
	"sort"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// MutableTree is an in-memory staging area for one directory level.
// Files are staged as fully-formed FileObjects (already checksummed
// once written); subdirectories are staged as nested MutableTrees so
// edits can be made arbitrarily deep before a single Write call walks
// the whole structure bottom-up.
type MutableTree struct {
	meta  *types.DirMeta
	files map[string]*types.FileObject
	dirs  map[string]*MutableTree
}

// NewMutableTree starts an empty tree with the given directory
// metadata (defaults to mode 0755, uid/gid 0 if meta is nil).
func NewMutableTree(meta *types.DirMeta) *MutableTree {
	if meta == nil {
		meta = &types.DirMeta{Mode: 040755}
	}
	return &MutableTree{
		meta:  meta,
		files: make(map[string]*types.FileObject),
		dirs:  make(map[string]*MutableTree),
	}
}

// AddFile stages a file (or symlink) under name, replacing whatever
// was staged there before.
func (t *MutableTree) AddFile(name string, obj *types.FileObject) {
	delete(t.dirs, name)
	t.files[name] = obj
}

// EnsureDir returns the subdirectory staged under name, creating it
// (with default metadata) if it does not already exist.
func (t *MutableTree) EnsureDir(name string) *MutableTree {
	delete(t.files, name)
	if sub, ok := t.dirs[name]; ok {
		return sub
	}
	sub := NewMutableTree(nil)
	t.dirs[name] = sub
	return sub
}

// Remove drops any file or subdirectory staged under name.
func (t *MutableTree) Remove(name string) {
	delete(t.files, name)
	delete(t.dirs, name)
}

// SetMetadata replaces the directory's own dirmeta.
func (t *MutableTree) SetMetadata(meta *types.DirMeta) {
	t.meta = meta
}

// Write recursively writes every staged file, subdirectory, and this
// level's own dirtree/dirmeta into store, returning the dirtree and
// dirmeta checksums a caller composes into a Commit or a parent
// MutableTree's DirTreeDirEntry.
func (t *MutableTree) Write(ctx context.Context, store types.ObjectStore) (treeChecksum, metaChecksum string, err error) {
	metaChecksum, err = store.WriteDirMeta(ctx, t.meta)
	if err != nil {
		return "", "", err
	}

	fileNames := make([]string, 0, len(t.files))
	for name := range t.files {
		fileNames = append(fileNames, name)
	}
	sort.Strings(fileNames)

	fileEntries := make([]types.DirTreeFileEntry, 0, len(fileNames))
	for _, name := range fileNames {
		csumHex, err := store.WriteFileObject(ctx, t.files[name])
		if err != nil {
			return "", "", err
		}
		csum, err := objectstore.ParseChecksum(csumHex)
		if err != nil {
			return "", "", err
		}
		fileEntries = append(fileEntries, types.DirTreeFileEntry{Name: name, Checksum: csum})
	}

	dirNames := make([]string, 0, len(t.dirs))
	for name := range t.dirs {
		dirNames = append(dirNames, name)
	}
	sort.Strings(dirNames)

	dirEntries := make([]types.DirTreeDirEntry, 0, len(dirNames))
	for _, name := range dirNames {
		subTreeHex, subMetaHex, err := t.dirs[name].Write(ctx, store)
		if err != nil {
			return "", "", err
		}
		subTree, err := objectstore.ParseChecksum(subTreeHex)
		if err != nil {
			return "", "", err
		}
		subMeta, err := objectstore.ParseChecksum(subMetaHex)
		if err != nil {
			return "", "", err
		}
		dirEntries = append(dirEntries, types.DirTreeDirEntry{Name: name, TreeCsum: subTree, DirMetaCsum: subMeta})
	}

	treeChecksum, err = store.WriteDirTree(ctx, &types.DirTree{Files: fileEntries, Dirs: dirEntries})
	if err != nil {
		return "", "", err
	}
	return treeChecksum, metaChecksum, nil
}

// LoadMutableTree reads an existing dirtree/dirmeta pair back into a
// MutableTree so a caller can edit an existing commit's root (or any
// subdirectory within it) before recommitting.
func LoadMutableTree(ctx context.Context, store types.ObjectStore, treeChecksum, metaChecksum string) (*MutableTree, error) {
	meta, err := store.ReadDirMeta(ctx, metaChecksum)
	if err != nil {
		return nil, err
	}
	dirTree, err := store.ReadDirTree(ctx, treeChecksum)
	if err != nil {
		return nil, err
	}

	t := NewMutableTree(meta)
	for _, f := range dirTree.Files {
		csumHex := objectstore.ChecksumString(f.Checksum)
		rc, err := store.OpenObject(ctx, types.KindFile, csumHex)
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errors.NewError(errors.ErrCodeIOError, "reading file object during tree load").WithCause(err)
		}
		obj, err := objectstore.DecodeFileObject(body)
		if err != nil {
			return nil, err
		}
		t.files[f.Name] = obj
	}
	for _, d := range dirTree.Dirs {
		sub, err := LoadMutableTree(ctx, store, objectstore.ChecksumString(d.TreeCsum), objectstore.ChecksumString(d.DirMetaCsum))
		if err != nil {
			return nil, err
		}
		t.dirs[d.Name] = sub
	}
	return t, nil
}
