package refs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
	"github.com/ostreego/ostree/pkg/utils"
)

// Store manages the refs/ subtree of a repository root.
type Store struct {
	root string

	// Logger, if set, receives one line each time a ref is created,
	// repointed, or deleted.
	Logger *utils.StructuredLogger
}

// NewStore returns a ref store rooted at <repoRoot>/refs.
func NewStore(repoRoot string) *Store {
	return &Store{root: filepath.Join(repoRoot, "refs")}
}

// Scope selects which refs/ subtree a ref operation targets.
type Scope struct {
	Remote       string // non-empty for refs/remotes/<remote>
	CollectionID string // non-empty for refs/mirrors/<collection>
}

func (s *Store) dir(scope Scope) (string, error) {
	switch {
	case scope.Remote != "" && scope.CollectionID != "":
		return "", errors.NewError(errors.ErrCodeInvalidRefName, "a ref scope cannot name both a remote and a collection id")
	case scope.Remote != "":
		return filepath.Join(s.root, "remotes", scope.Remote), nil
	case scope.CollectionID != "":
		return filepath.Join(s.root, "mirrors", scope.CollectionID), nil
	default:
		return filepath.Join(s.root, "heads"), nil
	}
}

// ValidateName enforces spec's ref-name rules: non-empty,
// slash-separated, UTF-8, no "." or ".." or empty path components.
func ValidateName(name string) error {
	if name == "" {
		return errors.NewError(errors.ErrCodeInvalidRefName, "ref name must not be empty")
	}
	if !utf8.ValidString(name) {
		return errors.NewError(errors.ErrCodeInvalidRefName, "ref name is not valid UTF-8").WithDetail("name", name)
	}
	for _, part := range strings.Split(name, "/") {
		switch part {
		case "", ".", "..":
			return errors.NewError(errors.ErrCodeInvalidRefName, "ref name has an invalid path component").WithDetail("name", name)
		}
	}
	return nil
}

// Resolve returns the checksum a ref currently points at.
func (s *Store) Resolve(scope Scope, name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	dir, err := s.dir(scope)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, filepath.FromSlash(name))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewError(errors.ErrCodeRefNotFound, "ref not found").WithDetail("name", name)
		}
		return "", errors.NewError(errors.ErrCodeIOError, "reading ref").WithCause(err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Set points a ref at checksum, creating it if absent, atomically
// replacing whatever checksum it held before.
func (s *Store) Set(scope Scope, name, checksum string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	dir, err := s.dir(scope)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.NewError(errors.ErrCodeIOError, "creating ref directory").WithCause(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".ref-*")
	if err != nil {
		return errors.NewError(errors.ErrCodeIOError, "creating temp ref file").WithCause(err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(checksum); err != nil {
		tmp.Close()
		return errors.NewError(errors.ErrCodeIOError, "writing temp ref file").WithCause(err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewError(errors.ErrCodeIOError, "closing temp ref file").WithCause(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.NewError(errors.ErrCodeIOError, "renaming ref into place").WithCause(err)
	}
	if s.Logger != nil {
		s.Logger.Info("ref updated", map[string]interface{}{"name": name, "checksum": checksum})
	}
	return nil
}

// Delete removes a ref. It is not an error to delete a ref that does
// not exist.
func (s *Store) Delete(scope Scope, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	dir, err := s.dir(scope)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.NewError(errors.ErrCodeIOError, "deleting ref").WithCause(err)
	}
	if s.Logger != nil {
		s.Logger.Info("ref deleted", map[string]interface{}{"name": name})
	}
	return nil
}

// List enumerates every ref under scope, sorted by name.
func (s *Store) List(scope Scope) ([]types.Ref, error) {
	dir, err := s.dir(scope)
	if err != nil {
		return nil, err
	}
	var out []types.Ref
	err = filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if os.IsNotExist(walkErr) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() || strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out = append(out, types.Ref{
			Remote:       scope.Remote,
			CollectionID: scope.CollectionID,
			Name:         filepath.ToSlash(rel),
			Checksum:     strings.TrimSpace(string(data)),
		})
		return nil
	})
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeIOError, "listing refs").WithCause(err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ListRemotes enumerates the remote names that have any refs staged
// under refs/remotes/.
func (s *Store) ListRemotes() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "remotes"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewError(errors.ErrCodeIOError, "listing remotes").WithCause(err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// ListCollections enumerates the collection ids that have any refs
// staged under refs/mirrors/.
func (s *Store) ListCollections() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, "mirrors"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewError(errors.ErrCodeIOError, "listing collections").WithCause(err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// AllRefs enumerates every ref in the repository: refs/heads,
// refs/remotes/<remote> for every remote, and refs/mirrors/<collection>
// for every collection — the full reachability root set a mark-and-sweep
// prune must walk from.
func (s *Store) AllRefs() ([]types.Ref, error) {
	var out []types.Ref

	heads, err := s.List(Scope{})
	if err != nil {
		return nil, err
	}
	out = append(out, heads...)

	remotes, err := s.ListRemotes()
	if err != nil {
		return nil, err
	}
	for _, remote := range remotes {
		refs, err := s.List(Scope{Remote: remote})
		if err != nil {
			return nil, err
		}
		out = append(out, refs...)
	}

	collections, err := s.ListCollections()
	if err != nil {
		return nil, err
	}
	for _, collection := range collections {
		refs, err := s.List(Scope{CollectionID: collection})
		if err != nil {
			return nil, err
		}
		out = append(out, refs...)
	}

	return out, nil
}

// PopulateStats fills the ref-count and last-transaction fields of a
// types.RepoStats already computed by objectstore.Repo.Stats, since
// object counting and ref enumeration live in separate packages with
// no dependency between them. lastTransaction is supplied by the
// caller, typically from an internal/txn.Manager's most recent commit.
func (s *Store) PopulateStats(stats types.RepoStats, lastTransaction time.Time) (types.RepoStats, error) {
	all, err := s.AllRefs()
	if err != nil {
		return stats, err
	}
	stats.RefCount = len(all)
	stats.LastTransaction = lastTransaction
	return stats, nil
}
