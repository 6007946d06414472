package s3

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	storages3 "github.com/ostreego/ostree/internal/storage/s3"
	"github.com/ostreego/ostree/pkg/errors"
)

// Backend is the subset of internal/storage/s3.Backend that Mirror
// depends on. Defined locally so tests can substitute a fake without
// touching a real bucket.
type Backend interface {
	PutObject(ctx context.Context, key string, data []byte) error
	GetObject(ctx context.Context, key string, offset, size int64) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
	ListObjects(ctx context.Context, prefix string, limit int) ([]storages3.ObjectMeta, error)
	Close() error
}

var _ Backend = (*storages3.Backend)(nil)

// published are the repository tree entries that make up the static,
// copyable surface of a repo. Everything else (state/, tmp/, lock
// files) is local working state and never published.
var published = []string{"config", "summary", "objects", "refs", "deltas"}

// Mirror publishes a repository's static file tree to, and restores
// it from, an S3 bucket.
type Mirror struct {
	backend  Backend
	repoRoot string
	prefix   string
}

// New opens a Mirror backed by a real S3 bucket.
func New(ctx context.Context, repoRoot, bucket, prefix string, cfg *storages3.Config) (*Mirror, error) {
	backend, err := storages3.NewBackend(ctx, bucket, cfg)
	if err != nil {
		return nil, errors.NewError(errors.ErrCodeRemoteHTTPError, "opening S3 mirror backend").WithCause(err).
			WithDetail("bucket", bucket)
	}
	return NewWithBackend(repoRoot, prefix, backend), nil
}

// NewWithBackend builds a Mirror over an already-constructed backend,
// primarily for tests.
func NewWithBackend(repoRoot, prefix string, backend Backend) *Mirror {
	return &Mirror{backend: backend, repoRoot: repoRoot, prefix: strings.Trim(prefix, "/")}
}

func (m *Mirror) Close() error {
	return m.backend.Close()
}

func (m *Mirror) key(relPath string) string {
	rel := filepath.ToSlash(relPath)
	if m.prefix == "" {
		return rel
	}
	return m.prefix + "/" + rel
}

// PublishAll walks every published top-level entry under the repo
// root and uploads it to the bucket, preserving relative paths as S3
// keys. It is safe to call repeatedly; unchanged objects are
// re-uploaded idempotently since object content never changes once
// named by checksum.
func (m *Mirror) PublishAll(ctx context.Context) error {
	for _, entry := range published {
		root := filepath.Join(m.repoRoot, entry)
		info, err := os.Stat(root)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.NewError(errors.ErrCodeIOError, "statting repository entry").WithCause(err).
				WithDetail("path", root)
		}
		if !info.IsDir() {
			if err := m.publishFile(ctx, root, entry); err != nil {
				return err
			}
			continue
		}
		if err := m.publishDir(ctx, root, entry); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mirror) publishDir(ctx context.Context, dir, relBase string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(m.repoRoot, path)
		if err != nil {
			return err
		}
		return m.publishFile(ctx, path, rel)
	})
}

func (m *Mirror) publishFile(ctx context.Context, path, rel string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.NewError(errors.ErrCodeIOError, "reading file for publish").WithCause(err).WithDetail("path", path)
	}
	if err := m.backend.PutObject(ctx, m.key(rel), data); err != nil {
		return errors.NewError(errors.ErrCodeRemoteHTTPError, "publishing object to S3").WithCause(err).
			WithDetail("key", m.key(rel))
	}
	return nil
}

// PublishObject uploads a single content-addressed object file given
// its on-disk path relative to the repo root, for incremental publish
// right after a transaction commits rather than a full PublishAll walk.
func (m *Mirror) PublishObject(ctx context.Context, relPath string) error {
	return m.publishFile(ctx, filepath.Join(m.repoRoot, relPath), relPath)
}

// PublishRef uploads a single ref file, e.g. "refs/heads/os/x86_64/base".
func (m *Mirror) PublishRef(ctx context.Context, name string) error {
	rel := filepath.Join("refs", "heads", filepath.FromSlash(name))
	return m.publishFile(ctx, filepath.Join(m.repoRoot, rel), rel)
}

// DeleteRef removes a previously published ref from the bucket,
// mirroring a local ref deletion.
func (m *Mirror) DeleteRef(ctx context.Context, name string) error {
	rel := filepath.Join("refs", "heads", filepath.FromSlash(name))
	if err := m.backend.DeleteObject(ctx, m.key(rel)); err != nil {
		return errors.NewError(errors.ErrCodeRemoteHTTPError, "deleting mirrored ref").WithCause(err).
			WithDetail("key", m.key(rel))
	}
	return nil
}

// Restore downloads every key under the mirror's prefix into destRoot,
// recreating the repository's directory layout. It is used to recover
// a local repo from a bucket backup.
func (m *Mirror) Restore(ctx context.Context, destRoot string) error {
	const pageLimit = 1000
	listPrefix := m.prefix
	if listPrefix != "" {
		listPrefix += "/"
	}

	objs, err := m.backend.ListObjects(ctx, listPrefix, 0)
	if err != nil {
		return errors.NewError(errors.ErrCodeRemoteHTTPError, "listing mirrored objects").WithCause(err).
			WithDetail("prefix", listPrefix)
	}

	for _, obj := range objs {
		rel := strings.TrimPrefix(obj.Key, listPrefix)
		if rel == "" {
			continue
		}
		data, err := m.backend.GetObject(ctx, obj.Key, 0, 0)
		if err != nil {
			return errors.NewError(errors.ErrCodeRemoteHTTPError, "fetching mirrored object").WithCause(err).
				WithDetail("key", obj.Key)
		}
		dest := filepath.Join(destRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return errors.NewError(errors.ErrCodeIOError, "creating restore directory").WithCause(err).
				WithDetail("path", dest)
		}
		if err := os.WriteFile(dest, data, 0644); err != nil {
			return errors.NewError(errors.ErrCodeIOError, "writing restored object").WithCause(err).
				WithDetail("path", dest)
		}
	}
	return nil
}
