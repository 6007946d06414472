package s3

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storages3 "github.com/ostreego/ostree/internal/storage/s3"
)

type fakeBackend struct {
	objects map[string][]byte
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: make(map[string][]byte)}
}

func (f *fakeBackend) PutObject(ctx context.Context, key string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.objects[key] = cp
	return nil
}

func (f *fakeBackend) GetObject(ctx context.Context, key string, offset, size int64) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (f *fakeBackend) DeleteObject(ctx context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeBackend) ListObjects(ctx context.Context, prefix string, limit int) ([]storages3.ObjectMeta, error) {
	var out []storages3.ObjectMeta
	for k, v := range f.objects {
		if len(prefix) > 0 && len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, storages3.ObjectMeta{Key: k, Size: int64(len(v))})
		} else if prefix == "" {
			out = append(out, storages3.ObjectMeta{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (f *fakeBackend) Close() error { return nil }

func buildRepoTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "config"), []byte("[core]\nmode=bare\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "objects", "ab"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "objects", "ab", "cdef.filez"), []byte("object body"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "refs", "heads"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "refs", "heads", "base"), []byte("abcdef"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "summary"), []byte("summary-bytes"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "state"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "state", "lock"), []byte("ignore-me"), 0644))
	return root
}

func TestPublishAll_UploadsTreeButSkipsLocalState(t *testing.T) {
	root := buildRepoTree(t)
	backend := newFakeBackend()
	m := NewWithBackend(root, "mirrors/base", backend)

	require.NoError(t, m.PublishAll(context.Background()))

	assert.Contains(t, backend.objects, "mirrors/base/config")
	assert.Contains(t, backend.objects, "mirrors/base/summary")
	assert.Contains(t, backend.objects, "mirrors/base/objects/ab/cdef.filez")
	assert.Contains(t, backend.objects, "mirrors/base/refs/heads/base")
	assert.NotContains(t, backend.objects, "mirrors/base/state/lock")
}

func TestPublishRefAndDeleteRef(t *testing.T) {
	root := buildRepoTree(t)
	backend := newFakeBackend()
	m := NewWithBackend(root, "", backend)

	require.NoError(t, m.PublishRef(context.Background(), "base"))
	assert.Contains(t, backend.objects, "refs/heads/base")

	require.NoError(t, m.DeleteRef(context.Background(), "base"))
	assert.NotContains(t, backend.objects, "refs/heads/base")
}

func TestRestore_RecreatesTreeFromBucket(t *testing.T) {
	root := buildRepoTree(t)
	backend := newFakeBackend()
	m := NewWithBackend(root, "mirrors/base", backend)
	require.NoError(t, m.PublishAll(context.Background()))

	dest := t.TempDir()
	require.NoError(t, m.Restore(context.Background(), dest))

	data, err := os.ReadFile(filepath.Join(dest, "objects", "ab", "cdef.filez"))
	require.NoError(t, err)
	assert.Equal(t, "object body", string(data))

	_, err = os.Stat(filepath.Join(dest, "state", "lock"))
	assert.True(t, os.IsNotExist(err), "local-only state must not be restored from a mirror")
}
