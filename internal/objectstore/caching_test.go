package objectstore

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostreego/ostree/internal/cache"
	"github.com/ostreego/ostree/pkg/types"
)

// countingStore wraps a Repo and counts OpenObject calls it actually
// serves, so tests can tell whether CachingStore shielded it from a
// repeat read.
type countingStore struct {
	*Repo
	opens int
}

func (c *countingStore) OpenObject(ctx context.Context, kind types.ObjectKind, checksum string) (io.ReadCloser, error) {
	c.opens++
	return c.Repo.OpenObject(ctx, kind, checksum)
}

func TestCachingStore_SecondReadServedFromCache(t *testing.T) {
	ctx := context.Background()
	repo := mustInitRepo(t, types.ModeArchive)

	checksum, err := repo.WriteFileObject(ctx, &types.FileObject{Size: 5, Mode: 0644, Content: []byte("hello")})
	require.NoError(t, err)

	inner := &countingStore{Repo: repo}
	store := NewCachingStore(inner, cache.NewLRUCache(nil))

	rc1, err := store.OpenObject(ctx, types.KindFile, checksum)
	require.NoError(t, err)
	data1, err := io.ReadAll(rc1)
	require.NoError(t, err)
	require.NoError(t, rc1.Close())
	assert.Equal(t, "hello", string(data1))
	assert.Equal(t, 1, inner.opens)

	rc2, err := store.OpenObject(ctx, types.KindFile, checksum)
	require.NoError(t, err)
	data2, err := io.ReadAll(rc2)
	require.NoError(t, err)
	require.NoError(t, rc2.Close())
	assert.Equal(t, "hello", string(data2))
	assert.Equal(t, 1, inner.opens, "second read should be served from cache, not the wrapped store")
}

func TestCachingStore_NonFileKindBypassesCache(t *testing.T) {
	ctx := context.Background()
	repo := mustInitRepo(t, types.ModeArchive)

	meta := &types.DirMeta{UID: 0, GID: 0, Mode: 0755}
	checksum, err := repo.WriteDirMeta(ctx, meta)
	require.NoError(t, err)

	inner := &countingStore{Repo: repo}
	store := NewCachingStore(inner, cache.NewLRUCache(nil))

	rc1, err := store.OpenObject(ctx, types.KindDirMeta, checksum)
	require.NoError(t, err)
	require.NoError(t, rc1.Close())
	rc2, err := store.OpenObject(ctx, types.KindDirMeta, checksum)
	require.NoError(t, err)
	require.NoError(t, rc2.Close())

	assert.Equal(t, 2, inner.opens, "non-file kinds should always pass through to the wrapped store")
}

func TestCachingStore_DistinctChecksumsDoNotCollide(t *testing.T) {
	ctx := context.Background()
	repo := mustInitRepo(t, types.ModeArchive)

	csumA, err := repo.WriteFileObject(ctx, &types.FileObject{Size: 1, Mode: 0644, Content: []byte("a")})
	require.NoError(t, err)
	csumB, err := repo.WriteFileObject(ctx, &types.FileObject{Size: 3, Mode: 0644, Content: []byte("bbb")})
	require.NoError(t, err)

	store := NewCachingStore(repo, cache.NewLRUCache(nil))

	rcA, err := store.OpenObject(ctx, types.KindFile, csumA)
	require.NoError(t, err)
	dataA, err := io.ReadAll(rcA)
	require.NoError(t, err)
	require.NoError(t, rcA.Close())
	assert.Equal(t, "a", string(dataA))

	rcB, err := store.OpenObject(ctx, types.KindFile, csumB)
	require.NoError(t, err)
	dataB, err := io.ReadAll(rcB)
	require.NoError(t, err)
	require.NoError(t, rcB.Close())
	assert.Equal(t, "bbb", string(dataB))
}
