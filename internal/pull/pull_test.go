package pull

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/internal/refs"
	"github.com/ostreego/ostree/internal/tree"
	"github.com/ostreego/ostree/pkg/errors"
	"github.com/ostreego/ostree/pkg/types"
)

// dirSource serves a repository's static file tree directly off disk,
// standing in for an HTTP-published remote in these tests.
type dirSource struct {
	root string
}

func (d *dirSource) Get(ctx context.Context, p string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(d.root, filepath.FromSlash(p)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewError(errors.ErrCodeObjectNotFound, "path not present in test remote").WithDetail("path", p)
		}
		return nil, err
	}
	return b, nil
}

func mustSourceRepo(t *testing.T) (*objectstore.Repo, string) {
	t.Helper()
	root := t.TempDir()
	repo, err := objectstore.InitRepo(root, types.ModeArchive, "")
	require.NoError(t, err)
	return repo, root
}

func mustDestRepo(t *testing.T) types.ObjectStore {
	t.Helper()
	repo, err := objectstore.InitRepo(t.TempDir(), types.ModeArchive, "")
	require.NoError(t, err)
	return repo
}

func mustCommit(t *testing.T, store types.ObjectStore, parent string, files map[string]string) string {
	t.Helper()
	root := tree.NewMutableTree(nil)
	for name, content := range files {
		root.AddFile(name, &types.FileObject{Size: uint64(len(content)), Mode: 0100644, Content: []byte(content)})
	}
	commit, _, err := tree.ComposeCommit(context.Background(), store, root, tree.CommitOptions{
		Parent: parent, Subject: "test commit", Now: time.Unix(1700000000, 0),
	})
	require.NoError(t, err)
	checksum, err := store.WriteCommit(context.Background(), commit)
	require.NoError(t, err)
	return checksum
}

func writeSummary(t *testing.T, root, refName, checksum string) {
	t.Helper()
	s := Summary{
		Refs:        map[string]SummaryRefEntry{refName: {Checksum: checksum, Timestamp: time.Now()}},
		GeneratedAt: time.Now(),
	}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "summary"), b, 0644))
}

func newTestPuller(src Source, destRoot string) *Puller {
	return &Puller{
		Remote:     Remote{Name: "origin"},
		Source:     src,
		RefStore:   refs.NewStore(destRoot),
		Tombstones: refs.NewTombstones(destRoot),
	}
}

func TestPull_FromEmpty_Basic(t *testing.T) {
	ctx := context.Background()
	srcRepo, srcRoot := mustSourceRepo(t)
	commit := mustCommit(t, srcRepo, "", map[string]string{"usr/bin/hello": "hello world"})
	writeSummary(t, srcRoot, "exampleos/x86_64/stable", commit)

	destRoot := t.TempDir()
	dest, err := objectstore.InitRepo(destRoot, types.ModeArchive, "")
	require.NoError(t, err)

	p := newTestPuller(&dirSource{root: srcRoot}, destRoot)
	result, err := p.Pull(ctx, dest, "exampleos/x86_64/stable", Options{DisableVerifyBindings: true})
	require.NoError(t, err)
	assert.Equal(t, commit, result.CommitChecksum)
	assert.False(t, result.Skipped)

	has, err := dest.HasObject(ctx, types.KindCommit, commit)
	require.NoError(t, err)
	assert.True(t, has)

	resolved, err := p.RefStore.Resolve(p.refScope(), "exampleos/x86_64/stable")
	require.NoError(t, err)
	assert.Equal(t, commit, resolved)

	assert.False(t, objectstore.IsCommitPartial(destRoot, commit))
}

func TestPull_AlreadyCurrent_Skips(t *testing.T) {
	ctx := context.Background()
	srcRepo, srcRoot := mustSourceRepo(t)
	commit := mustCommit(t, srcRepo, "", map[string]string{"a": "b"})
	writeSummary(t, srcRoot, "ref1", commit)

	destRoot := t.TempDir()
	dest, err := objectstore.InitRepo(destRoot, types.ModeArchive, "")
	require.NoError(t, err)

	p := newTestPuller(&dirSource{root: srcRoot}, destRoot)
	_, err = p.Pull(ctx, dest, "ref1", Options{DisableVerifyBindings: true})
	require.NoError(t, err)

	result, err := p.Pull(ctx, dest, "ref1", Options{DisableVerifyBindings: true})
	require.NoError(t, err)
	assert.True(t, result.Skipped)
}

func TestPull_RequireStaticDeltas_NoneAdvertised_Fails(t *testing.T) {
	ctx := context.Background()
	srcRepo, srcRoot := mustSourceRepo(t)
	commit := mustCommit(t, srcRepo, "", map[string]string{"a": "b"})
	writeSummary(t, srcRoot, "ref1", commit)

	destRoot := t.TempDir()
	dest, err := objectstore.InitRepo(destRoot, types.ModeArchive, "")
	require.NoError(t, err)

	p := newTestPuller(&dirSource{root: srcRoot}, destRoot)
	_, err = p.Pull(ctx, dest, "ref1", Options{DisableVerifyBindings: true, RequireStaticDeltas: true})
	require.Error(t, err)
}

func TestPull_Tombstoned_Skips(t *testing.T) {
	ctx := context.Background()
	srcRepo, srcRoot := mustSourceRepo(t)
	commit := mustCommit(t, srcRepo, "", map[string]string{"a": "b"})
	writeSummary(t, srcRoot, "ref1", commit)

	destRoot := t.TempDir()
	dest, err := objectstore.InitRepo(destRoot, types.ModeArchive, "")
	require.NoError(t, err)

	p := newTestPuller(&dirSource{root: srcRoot}, destRoot)
	require.NoError(t, p.Tombstones.Add(commit))

	result, err := p.Pull(ctx, dest, "ref1", Options{DisableVerifyBindings: true})
	require.NoError(t, err)
	assert.True(t, result.Skipped)

	has, err := dest.HasObject(ctx, types.KindCommit, commit)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPull_RefBindingMismatch_Fails(t *testing.T) {
	ctx := context.Background()
	srcRepo, srcRoot := mustSourceRepo(t)

	root := tree.NewMutableTree(nil)
	root.AddFile("a", &types.FileObject{Size: 1, Mode: 0100644, Content: []byte("b")})
	commit, _, err := tree.ComposeCommit(ctx, srcRepo, root, tree.CommitOptions{
		Subject:    "bound commit",
		Now:        time.Unix(1700000000, 0),
		RefBinding: &types.RefBinding{Refs: []string{"some/other/ref"}},
	})
	require.NoError(t, err)
	checksum, err := srcRepo.WriteCommit(ctx, commit)
	require.NoError(t, err)
	writeSummary(t, srcRoot, "ref1", checksum)

	destRoot := t.TempDir()
	dest, err := objectstore.InitRepo(destRoot, types.ModeArchive, "")
	require.NoError(t, err)

	p := newTestPuller(&dirSource{root: srcRoot}, destRoot)
	_, err = p.Pull(ctx, dest, "ref1", Options{})
	require.Error(t, err)

	_, resolveErr := p.RefStore.Resolve(p.refScope(), "ref1")
	assert.Error(t, resolveErr)
}
