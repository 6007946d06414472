package sysroot

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// pathObjectStore is implemented by on-disk object stores that can hand
// back the path of an uncompressed file object's body, letting checkout
// hardlink it into place rather than reading and rewriting its bytes.
type pathObjectStore interface {
	ObjectPath(kind types.ObjectKind, checksum string) (string, error)
}

// CheckoutTree checks out the tree rooted at treeChecksum/metaChecksum
// into destDir, which must not already exist. Bare-repo file objects are
// hardlinked into place; archive-mode (compressed) file objects are
// copied, since their on-disk body is not valid hardlink source content.
func CheckoutTree(ctx context.Context, store types.ObjectStore, treeChecksum, metaChecksum, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "creating checkout directory").WithCause(err)
	}
	meta, err := store.ReadDirMeta(ctx, metaChecksum)
	if err != nil {
		return err
	}
	if err := applyDirMeta(destDir, meta); err != nil {
		return err
	}
	return checkoutDir(ctx, store, treeChecksum, destDir)
}

func checkoutDir(ctx context.Context, store types.ObjectStore, treeChecksum, destDir string) error {
	tree, err := store.ReadDirTree(ctx, treeChecksum)
	if err != nil {
		return err
	}

	for _, f := range tree.Files {
		if err := checkoutFile(ctx, store, objectstore.ChecksumString(f.Checksum), filepath.Join(destDir, f.Name)); err != nil {
			return err
		}
	}

	dirs := append([]types.DirTreeDirEntry(nil), tree.Dirs...)
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	for _, d := range dirs {
		subDir := filepath.Join(destDir, d.Name)
		meta, err := store.ReadDirMeta(ctx, objectstore.ChecksumString(d.DirMetaCsum))
		if err != nil {
			return err
		}
		if err := os.Mkdir(subDir, 0755); err != nil && !os.IsExist(err) {
			return errors.NewError(errors.ErrCodeDeploymentError, "creating checkout subdirectory").WithCause(err).
				WithDetail("path", subDir)
		}
		if err := applyDirMeta(subDir, meta); err != nil {
			return err
		}
		if err := checkoutDir(ctx, store, objectstore.ChecksumString(d.TreeCsum), subDir); err != nil {
			return err
		}
	}
	return nil
}

func checkoutFile(ctx context.Context, store types.ObjectStore, checksum, destPath string) error {
	if pather, ok := store.(pathObjectStore); ok {
		if srcPath, err := pather.ObjectPath(types.KindFile, checksum); err == nil {
			if err := os.Link(srcPath, destPath); err == nil {
				return nil
			}
		}
	}
	return copyFileObject(ctx, store, checksum, destPath)
}

// copyFileObject is the fallback checkout path for archive-mode repos
// (and for any store that can't offer a raw object path): it decodes
// the file object and writes its content, symlink target, or device
// node directly, rather than hardlinking a shared body.
func copyFileObject(ctx context.Context, store types.ObjectStore, checksum, destPath string) error {
	rc, err := store.OpenObject(ctx, types.KindFile, checksum)
	if err != nil {
		return err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "reading file object").WithCause(err).
			WithDetail("checksum", checksum)
	}
	obj, err := objectstore.DecodeFileObject(body)
	if err != nil {
		return err
	}

	if obj.IsSymlink() {
		if err := os.Symlink(obj.Target, destPath); err != nil {
			return errors.NewError(errors.ErrCodeDeploymentError, "creating symlink").WithCause(err).
				WithDetail("path", destPath)
		}
		return nil
	}

	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(obj.Mode&0777))
	if err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "creating checkout file").WithCause(err).
			WithDetail("path", destPath)
	}
	defer f.Close()
	if _, err := f.Write(obj.Content); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "writing checkout file").WithCause(err).
			WithDetail("path", destPath)
	}
	return nil
}

func applyDirMeta(path string, meta *types.DirMeta) error {
	if err := os.Chmod(path, os.FileMode(meta.Mode&0777)); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "setting checkout directory mode").WithCause(err).
			WithDetail("path", path)
	}
	return nil
}
