package prune

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/internal/refs"
	"github.com/ostreego/ostree/internal/tree"
	"github.com/ostreego/ostree/pkg/types"
)

func mustRepo(t *testing.T) (*objectstore.Repo, string) {
	t.Helper()
	root := t.TempDir()
	repo, err := objectstore.InitRepo(root, types.ModeArchive, "")
	require.NoError(t, err)
	return repo, root
}

func mustCommitAt(t *testing.T, store types.ObjectStore, parent string, files map[string]string, now time.Time) string {
	t.Helper()
	root := tree.NewMutableTree(nil)
	for name, content := range files {
		root.AddFile(name, &types.FileObject{Size: uint64(len(content)), Mode: 0100644, Content: []byte(content)})
	}
	commit, _, err := tree.ComposeCommit(context.Background(), store, root, tree.CommitOptions{
		Parent: parent, Subject: "test commit", Now: now,
	})
	require.NoError(t, err)
	checksum, err := store.WriteCommit(context.Background(), commit)
	require.NoError(t, err)
	return checksum
}

func TestPrune_DeletesOrphanedObjects(t *testing.T) {
	ctx := context.Background()
	repo, root := mustRepo(t)
	refStore := refs.NewStore(root)
	tombstones := refs.NewTombstones(root)

	orphanCommit := mustCommitAt(t, repo, "", map[string]string{"usr/bin/old": "orphan content"}, time.Unix(1700000000, 0))
	liveCommit := mustCommitAt(t, repo, "", map[string]string{"usr/bin/new": "live content"}, time.Unix(1700000100, 0))
	require.NoError(t, refStore.Set(refs.Scope{}, "main", liveCommit))

	has, err := repo.HasObject(ctx, types.KindCommit, orphanCommit)
	require.NoError(t, err)
	require.True(t, has)

	stats, err := Prune(ctx, repo, refStore, tombstones, Options{})
	require.NoError(t, err)
	assert.Greater(t, stats.ObjectsDeleted, 0)

	has, err = repo.HasObject(ctx, types.KindCommit, orphanCommit)
	require.NoError(t, err)
	assert.False(t, has)

	has, err = repo.HasObject(ctx, types.KindCommit, liveCommit)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPrune_KeepYoungerThan_StopsAtCutoff(t *testing.T) {
	ctx := context.Background()
	repo, root := mustRepo(t)
	refStore := refs.NewStore(root)
	tombstones := refs.NewTombstones(root)

	oldCommit := mustCommitAt(t, repo, "", map[string]string{"usr/bin/v1": "v1"}, time.Unix(1700000000, 0))
	newCommit := mustCommitAt(t, repo, oldCommit, map[string]string{"usr/bin/v2": "v2"}, time.Unix(1700001000, 0))
	require.NoError(t, refStore.Set(refs.Scope{}, "main", newCommit))

	cutoff := time.Unix(1700000500, 0)
	stats, err := Prune(ctx, repo, refStore, tombstones, Options{KeepYoungerThan: cutoff})
	require.NoError(t, err)
	assert.Greater(t, stats.ObjectsDeleted, 0)

	has, err := repo.HasObject(ctx, types.KindCommit, oldCommit)
	require.NoError(t, err)
	assert.False(t, has)

	has, err = repo.HasObject(ctx, types.KindCommit, newCommit)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPrune_DryRun_DeletesNothing(t *testing.T) {
	ctx := context.Background()
	repo, root := mustRepo(t)
	refStore := refs.NewStore(root)
	tombstones := refs.NewTombstones(root)

	orphanCommit := mustCommitAt(t, repo, "", map[string]string{"a": "b"}, time.Unix(1700000000, 0))
	liveCommit := mustCommitAt(t, repo, "", map[string]string{"c": "d"}, time.Unix(1700000100, 0))
	require.NoError(t, refStore.Set(refs.Scope{}, "main", liveCommit))

	stats, err := Prune(ctx, repo, refStore, tombstones, Options{DryRun: true})
	require.NoError(t, err)
	assert.Greater(t, stats.ObjectsDeleted, 0)

	has, err := repo.HasObject(ctx, types.KindCommit, orphanCommit)
	require.NoError(t, err)
	assert.True(t, has, "dry run must not delete anything")
}

func TestPrune_ExcludeCommits_WritesTombstone(t *testing.T) {
	ctx := context.Background()
	repo, root := mustRepo(t)
	refStore := refs.NewStore(root)
	tombstones := refs.NewTombstones(root)

	deadCommit := mustCommitAt(t, repo, "", map[string]string{"a": "b"}, time.Unix(1700000000, 0))
	require.NoError(t, refStore.Set(refs.Scope{}, "doomed", deadCommit))
	require.NoError(t, refStore.Delete(refs.Scope{}, "doomed"))

	_, err := Prune(ctx, repo, refStore, tombstones, Options{
		ExcludeCommits:  []string{deadCommit},
		WriteTombstones: true,
	})
	require.NoError(t, err)

	assert.True(t, tombstones.Has(deadCommit))

	has, err := repo.HasObject(ctx, types.KindCommit, deadCommit)
	require.NoError(t, err)
	assert.False(t, has)
}
