package refs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/pkg/types"
)

func TestStore_SetResolveDelete(t *testing.T) {
	store := NewStore(t.TempDir())
	csum := "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	require.NoError(t, store.Set(Scope{}, "main", csum))

	got, err := store.Resolve(Scope{}, "main")
	require.NoError(t, err)
	assert.Equal(t, csum, got)

	require.NoError(t, store.Delete(Scope{}, "main"))
	_, err = store.Resolve(Scope{}, "main")
	assert.Error(t, err)
}

func TestStore_RemoteScope(t *testing.T) {
	store := NewStore(t.TempDir())
	csum := "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"

	require.NoError(t, store.Set(Scope{Remote: "origin"}, "main", csum))
	got, err := store.Resolve(Scope{Remote: "origin"}, "main")
	require.NoError(t, err)
	assert.Equal(t, csum, got)

	_, err = store.Resolve(Scope{}, "main")
	assert.Error(t, err, "local scope must not see the remote-scoped ref")
}

func TestStore_NestedRefName(t *testing.T) {
	store := NewStore(t.TempDir())
	csum := "cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"
	require.NoError(t, store.Set(Scope{}, "fedora/40/x86_64/base", csum))

	got, err := store.Resolve(Scope{}, "fedora/40/x86_64/base")
	require.NoError(t, err)
	assert.Equal(t, csum, got)
}

func TestValidateName_RejectsDotDot(t *testing.T) {
	assert.Error(t, ValidateName("../escape"))
	assert.Error(t, ValidateName("a/../b"))
	assert.Error(t, ValidateName(""))
	assert.Error(t, ValidateName("a//b"))
	assert.NoError(t, ValidateName("fedora/40/base"))
}

func TestStore_List(t *testing.T) {
	store := NewStore(t.TempDir())
	csum := "dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd"
	require.NoError(t, store.Set(Scope{}, "a", csum))
	require.NoError(t, store.Set(Scope{}, "b/c", csum))

	refs, err := store.List(Scope{})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "a", refs[0].Name)
	assert.Equal(t, "b/c", refs[1].Name)
}

func TestStore_ListRemotes(t *testing.T) {
	store := NewStore(t.TempDir())
	csum := "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
	require.NoError(t, store.Set(Scope{Remote: "origin"}, "main", csum))
	require.NoError(t, store.Set(Scope{Remote: "upstream"}, "main", csum))

	remotes, err := store.ListRemotes()
	require.NoError(t, err)
	assert.Equal(t, []string{"origin", "upstream"}, remotes)
}

func TestStore_PopulateStats_CountsAllScopes(t *testing.T) {
	store := NewStore(t.TempDir())
	csum := "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"
	require.NoError(t, store.Set(Scope{}, "main", csum))
	require.NoError(t, store.Set(Scope{Remote: "origin"}, "main", csum))

	committedAt := time.Now()
	stats, err := store.PopulateStats(types.RepoStats{}, committedAt)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RefCount)
	assert.Equal(t, committedAt, stats.LastTransaction)
}

func TestTombstones_AddAndFilter(t *testing.T) {
	ts := NewTombstones(t.TempDir())
	pruned := "1111111111111111111111111111111111111111111111111111111111111111"
	kept := "2222222222222222222222222222222222222222222222222222222222222222"
	pruned, kept = pruned[:64], kept[:64]

	require.NoError(t, ts.Add(pruned))
	assert.True(t, ts.Has(pruned))
	assert.False(t, ts.Has(kept))

	filtered := ts.FilterResurrections(context.Background(), []string{pruned, kept})
	assert.Equal(t, []string{kept}, filtered)
}

func TestWriteTombstoneCommit(t *testing.T) {
	ctx := context.Background()
	store, err := objectstore.InitRepo(t.TempDir(), types.ModeArchive, "")
	require.NoError(t, err)

	emptyMeta, err := store.WriteDirMeta(ctx, &types.DirMeta{Mode: 040755})
	require.NoError(t, err)
	emptyTree, err := store.WriteDirTree(ctx, &types.DirTree{})
	require.NoError(t, err)

	csum, err := WriteTombstoneCommit(ctx, store, "deadbeef", emptyTree, emptyMeta)
	require.NoError(t, err)
	assert.Len(t, csum, 64)

	commit, err := store.ReadCommit(ctx, csum)
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", commit.Metadata["ostree.pruned-checksum"])
}
