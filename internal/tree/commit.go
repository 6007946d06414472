package tree

import (
	"context"
	"time"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/types"
	"github.com/ostreego/ostree/pkg/utils"
)

// CommitOptions carries the fields a caller supplies when composing a
// new commit on top of a written root tree.
type CommitOptions struct {
	Parent     string
	Subject    string
	Body       string
	Metadata   map[string]interface{}
	RefBinding *types.RefBinding
	Bootable   bool
	Now        time.Time

	// SkipIfUnchanged compares the newly finalised root (dirtree +
	// dirmeta) against Parent's root before composing a commit. If
	// they match, ComposeCommit composes nothing new and reports
	// skipped=true so the caller can keep using Parent's checksum
	// instead of writing a redundant commit object.
	SkipIfUnchanged bool

	// Logger, if set, receives one line when a commit is composed and
	// one when SkipIfUnchanged causes ComposeCommit to skip composing
	// a redundant one.
	Logger *utils.StructuredLogger
}

// ComposeCommit writes a MutableTree's root and builds the Commit
// object ready for store.WriteCommit. It does not write the commit
// itself, so callers can sign it first.
//
// When opts.SkipIfUnchanged is set and the new root is identical to
// Parent's root, ComposeCommit returns a nil commit and skipped=true;
// the caller should use opts.Parent's checksum rather than writing a
// new commit.
func ComposeCommit(ctx context.Context, store types.ObjectStore, root *MutableTree, opts CommitOptions) (commit *types.Commit, skipped bool, err error) {
	treeHex, metaHex, err := root.Write(ctx, store)
	if err != nil {
		return nil, false, err
	}
	rootTree, err := objectstore.ParseChecksum(treeHex)
	if err != nil {
		return nil, false, err
	}
	rootMeta, err := objectstore.ParseChecksum(metaHex)
	if err != nil {
		return nil, false, err
	}

	var parent *types.Checksum
	if opts.Parent != "" {
		p, err := objectstore.ParseChecksum(opts.Parent)
		if err != nil {
			return nil, false, err
		}
		parent = &p
	}

	if opts.SkipIfUnchanged && parent != nil {
		parentCommit, err := store.ReadCommit(ctx, opts.Parent)
		if err != nil {
			return nil, false, err
		}
		if parentCommit.RootTree == rootTree && parentCommit.RootDirMeta == rootMeta {
			if opts.Logger != nil {
				opts.Logger.Info("commit skipped, root unchanged", map[string]interface{}{"parent": opts.Parent})
			}
			return nil, true, nil
		}
	}

	metadata := opts.Metadata
	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	if opts.Bootable {
		metadata["ostree.bootable"] = "true"
	}
	if opts.RefBinding != nil {
		metadata["ostree.ref-binding"] = opts.RefBinding.Refs
		if opts.RefBinding.CollectionID != "" {
			metadata["ostree.collection-binding"] = opts.RefBinding.CollectionID
		}
	}

	ts := opts.Now
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if opts.Logger != nil {
		opts.Logger.Info("commit composed", map[string]interface{}{"subject": opts.Subject, "parent": opts.Parent})
	}

	return &types.Commit{
		Metadata:    metadata,
		Parent:      parent,
		Subject:     opts.Subject,
		Body:        opts.Body,
		Timestamp:   ts,
		RootTree:    rootTree,
		RootDirMeta: rootMeta,
		Binding:     opts.RefBinding,
	}, false, nil
}

// ModifierOptions configures CommitModifier's transformation of a
// tree before it is recomposed into a new commit.
type ModifierOptions struct {
	// Filter, when set, is called for every file and directory name at
	// every level; returning false drops the entry from the resulting
	// tree.
	Filter func(path string, isDir bool) bool

	// OverrideUID/OverrideGID, when non-nil, replace every file and
	// directory's ownership.
	OverrideUID *uint32
	OverrideGID *uint32

	// CanonicalPermissions replaces every regular file's mode with 0644
	// and every directory's mode with 0755, and every symlink's mode
	// with 0777 -- matching ostree's reproducible-build canonicalisation.
	CanonicalPermissions bool

	// StripXattrs drops every xattr from every file and directory.
	StripXattrs bool
}

const (
	canonicalFileMode = 0100644
	canonicalDirMode  = 040755
	canonicalLinkMode = 0120777
)

// Modify applies opts to every entry in t, recursively, returning a
// new MutableTree (the receiver is left unmodified).
func Modify(t *MutableTree, opts ModifierOptions) *MutableTree {
	return modifyPath(t, "", opts)
}

func modifyPath(t *MutableTree, prefix string, opts ModifierOptions) *MutableTree {
	out := NewMutableTree(modifyDirMeta(t.meta, opts))

	for name, obj := range t.files {
		path := joinPath(prefix, name)
		if opts.Filter != nil && !opts.Filter(path, false) {
			continue
		}
		out.files[name] = modifyFileObject(obj, opts)
	}

	for name, sub := range t.dirs {
		path := joinPath(prefix, name)
		if opts.Filter != nil && !opts.Filter(path, true) {
			continue
		}
		out.dirs[name] = modifyPath(sub, path, opts)
	}

	return out
}

func modifyDirMeta(meta *types.DirMeta, opts ModifierOptions) *types.DirMeta {
	out := &types.DirMeta{UID: meta.UID, GID: meta.GID, Mode: meta.Mode, Xattr: meta.Xattr}
	if opts.OverrideUID != nil {
		out.UID = *opts.OverrideUID
	}
	if opts.OverrideGID != nil {
		out.GID = *opts.OverrideGID
	}
	if opts.CanonicalPermissions {
		out.Mode = canonicalDirMode
	}
	if opts.StripXattrs {
		out.Xattr = nil
	}
	return out
}

func modifyFileObject(f *types.FileObject, opts ModifierOptions) *types.FileObject {
	out := &types.FileObject{
		Size: f.Size, UID: f.UID, GID: f.GID, Mode: f.Mode, Rdev: f.Rdev,
		Target: f.Target, Xattr: f.Xattr, Content: f.Content,
	}
	if opts.OverrideUID != nil {
		out.UID = *opts.OverrideUID
	}
	if opts.OverrideGID != nil {
		out.GID = *opts.OverrideGID
	}
	if opts.CanonicalPermissions {
		if f.IsSymlink() {
			out.Mode = canonicalLinkMode
		} else {
			out.Mode = canonicalFileMode
		}
	}
	if opts.StripXattrs {
		out.Xattr = nil
	}
	return out
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
