package sysroot

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/ostreego/ostree/pkg/errors"
)

// EtcConflict records one path where the three-way merge could not
// reconcile the running system's modification with the new deployment's
// pristine content; the running system's version is kept and the
// pristine one is saved alongside it with a .rpmnew-style suffix.
type EtcConflict struct {
	Path string
}

// MergeEtc performs the three-way merge of /etc across a deployment
// upgrade (spec.md §4.8): oldPristine is the /etc shipped by the
// previous deployment's commit, currentEtc is the running system's
// (possibly user-modified) /etc, and newPristine is the /etc shipped by
// the commit being deployed. newEtc is populated to become the new
// deployment's /etc.
//
// For each path:
//   - unchanged between oldPristine and currentEtc (not user-modified):
//     take newPristine's version.
//   - changed in currentEtc but not in newPristine: keep the user's
//     version from currentEtc.
//   - unchanged in currentEtc but changed in newPristine: take
//     newPristine's version.
//   - changed in both: keep the user's version and record a conflict so
//     the pristine version can be written out separately for review.
func MergeEtc(ctx context.Context, oldPristine, currentEtc, newPristine, newEtc string) ([]EtcConflict, error) {
	if err := os.MkdirAll(newEtc, 0755); err != nil {
		return nil, errors.NewError(errors.ErrCodeDeploymentError, "creating merged /etc").WithCause(err)
	}

	newPaths, err := listTree(newPristine)
	if err != nil {
		return nil, err
	}
	currentPaths, err := listTree(currentEtc)
	if err != nil {
		return nil, err
	}

	var conflicts []EtcConflict
	seen := make(map[string]bool, len(newPaths)+len(currentPaths))

	for _, rel := range newPaths {
		seen[rel] = true
		userModified, err := differs(filepath.Join(oldPristine, rel), filepath.Join(currentEtc, rel))
		if err != nil {
			return nil, err
		}
		prisChanged, err := differs(filepath.Join(oldPristine, rel), filepath.Join(newPristine, rel))
		if err != nil {
			return nil, err
		}

		switch {
		case !userModified:
			if err := copyEntry(filepath.Join(newPristine, rel), filepath.Join(newEtc, rel)); err != nil {
				return nil, err
			}
		case userModified && !prisChanged:
			if err := copyEntry(filepath.Join(currentEtc, rel), filepath.Join(newEtc, rel)); err != nil {
				return nil, err
			}
		default:
			if err := copyEntry(filepath.Join(currentEtc, rel), filepath.Join(newEtc, rel)); err != nil {
				return nil, err
			}
			if err := copyEntry(filepath.Join(newPristine, rel), filepath.Join(newEtc, rel+".ostree-new")); err != nil {
				return nil, err
			}
			conflicts = append(conflicts, EtcConflict{Path: rel})
		}
	}

	// Paths the user created that never existed in either pristine tree
	// carry forward untouched.
	for _, rel := range currentPaths {
		if seen[rel] {
			continue
		}
		if err := copyEntry(filepath.Join(currentEtc, rel), filepath.Join(newEtc, rel)); err != nil {
			return nil, err
		}
	}

	return conflicts, nil
}

// listTree returns every regular-file path under root, relative to
// root, in lexical order.
func listTree(root string) ([]string, error) {
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeDeploymentError, "walking /etc tree").WithCause(err).
			WithDetail("root", root)
	}
	return out, nil
}

// differs reports whether a and b have different content. A missing
// file differs from an existing one; two missing files do not differ.
func differs(a, b string) (bool, error) {
	da, erra := os.ReadFile(a)
	db, errb := os.ReadFile(b)
	if os.IsNotExist(erra) && os.IsNotExist(errb) {
		return false, nil
	}
	if erra != nil && !os.IsNotExist(erra) {
		return false, errors.NewError(errors.ErrCodeDeploymentError, "reading /etc entry").WithCause(erra).WithDetail("path", a)
	}
	if errb != nil && !os.IsNotExist(errb) {
		return false, errors.NewError(errors.ErrCodeDeploymentError, "reading /etc entry").WithCause(errb).WithDetail("path", b)
	}
	if os.IsNotExist(erra) != os.IsNotExist(errb) {
		return true, nil
	}
	return string(da) != string(db), nil
}

func copyEntry(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "stat /etc entry").WithCause(err).WithDetail("path", src)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "creating /etc directory").WithCause(err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(src)
		if err != nil {
			return errors.NewError(errors.ErrCodeDeploymentError, "reading symlink").WithCause(err).WithDetail("path", src)
		}
		_ = os.Remove(dst)
		return os.Symlink(target, dst)
	}

	in, err := os.Open(src)
	if err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "opening /etc entry").WithCause(err).WithDetail("path", src)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "writing /etc entry").WithCause(err).WithDetail("path", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.NewError(errors.ErrCodeDeploymentError, "copying /etc entry").WithCause(err).WithDetail("path", dst)
	}
	return nil
}
