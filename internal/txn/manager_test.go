package txn

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/types"
)

func TestManager_OnlyOneActiveTransaction(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.InitRepo(t.TempDir(), types.ModeArchive, "")
	require.NoError(t, err)

	m := NewManager(FsyncNever)
	tx1, err := m.Begin(ctx, store)
	require.NoError(t, err)

	_, err = m.Begin(ctx, store)
	assert.Error(t, err)

	_, err = tx1.Commit(ctx)
	require.NoError(t, err)

	_, err = m.Begin(ctx, store)
	assert.NoError(t, err)
}

func TestTransaction_CommitReportsStats(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.InitRepo(t.TempDir(), types.ModeArchive, "")
	require.NoError(t, err)

	m := NewManager(FsyncNever)
	stats, err := WithTransaction(ctx, m, store, func(tx *Transaction) error {
		_, err := tx.WriteFileObject(ctx, &types.FileObject{Content: []byte("abcd")})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ObjectsWritten)
	assert.Equal(t, int64(4), stats.BytesWritten)
}

func TestTransaction_AbandonReleasesSlot(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.InitRepo(t.TempDir(), types.ModeArchive, "")
	require.NoError(t, err)

	m := NewManager(FsyncNever)
	_, err = WithTransaction(ctx, m, store, func(tx *Transaction) error {
		return assert.AnError
	})
	assert.Error(t, err)

	_, err = m.Begin(ctx, store)
	assert.NoError(t, err, "manager slot must be free after an abandoned transaction")
}

func TestTransaction_StagedWritesLandInStoreOnCommit(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.InitRepo(t.TempDir(), types.ModeArchive, "")
	require.NoError(t, err)

	m := NewManagerWithStaging(FsyncNever, nil)
	var fileCsum, metaCsum string
	stats, err := WithTransaction(ctx, m, store, func(tx *Transaction) error {
		var err error
		fileCsum, err = tx.WriteFileObject(ctx, &types.FileObject{Content: []byte("staged")})
		if err != nil {
			return err
		}
		metaCsum, err = tx.WriteDirMeta(ctx, &types.DirMeta{Mode: 0755})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ObjectsWritten)

	has, err := store.HasObject(ctx, types.KindFile, fileCsum)
	require.NoError(t, err)
	assert.True(t, has, "staged file object must be flushed into the store by Commit")

	has, err = store.HasObject(ctx, types.KindDirMeta, metaCsum)
	require.NoError(t, err)
	assert.True(t, has, "staged dirmeta object must be flushed into the store by Commit")
}

func TestTransaction_StagedCommitFlushesChildrenFirst(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.InitRepo(t.TempDir(), types.ModeArchive, "")
	require.NoError(t, err)

	m := NewManagerWithStaging(FsyncNever, nil)
	_, err = WithTransaction(ctx, m, store, func(tx *Transaction) error {
		fileCsum, err := tx.WriteFileObject(ctx, &types.FileObject{Content: []byte("root-file")})
		if err != nil {
			return err
		}
		fileArr, err := objectstore.ParseChecksum(fileCsum)
		if err != nil {
			return err
		}

		metaCsum, err := tx.WriteDirMeta(ctx, &types.DirMeta{Mode: 0755})
		if err != nil {
			return err
		}
		metaArr, err := objectstore.ParseChecksum(metaCsum)
		if err != nil {
			return err
		}

		treeCsum, err := tx.WriteDirTree(ctx, &types.DirTree{
			Files: []types.DirTreeFileEntry{{Name: "a", Checksum: fileArr}},
		})
		if err != nil {
			return err
		}
		treeArr, err := objectstore.ParseChecksum(treeCsum)
		if err != nil {
			return err
		}

		_, err = tx.WriteCommit(ctx, &types.Commit{
			Subject:     "root",
			RootTree:    treeArr,
			RootDirMeta: metaArr,
		})
		return err
	})
	require.NoError(t, err)
}

func TestAcquireRepoLock_SecondAcquireFails(t *testing.T) {
	dir := t.TempDir()
	l1, err := AcquireRepoLock(dir)
	require.NoError(t, err)
	defer l1.Release()

	_, err = AcquireRepoLock(dir)
	assert.Error(t, err)
}
