package sysroot

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostreego/ostree/internal/cache"
	"github.com/ostreego/ostree/internal/objectstore"
	"github.com/ostreego/ostree/internal/tree"
	"github.com/ostreego/ostree/pkg/types"
)

func mustStore(t *testing.T) *objectstore.Repo {
	t.Helper()
	repo, err := objectstore.InitRepo(t.TempDir(), types.ModeBareUserOnly, "")
	require.NoError(t, err)
	return repo
}

// mustTreeCommit builds a commit from a map of full paths (e.g.
// "usr/etc/hostname") to file content, staging each file under nested
// MutableTree subdirectories so checkout produces a real directory
// tree.
func mustTreeCommit(t *testing.T, store types.ObjectStore, parent string, files map[string]string) string {
	t.Helper()
	root := tree.NewMutableTree(nil)
	for path, content := range files {
		parts := strings.Split(path, "/")
		dir := root
		for _, p := range parts[:len(parts)-1] {
			dir = dir.EnsureDir(p)
		}
		dir.AddFile(parts[len(parts)-1], &types.FileObject{
			Size: uint64(len(content)), Mode: 0100644, Content: []byte(content),
		})
	}
	commit, _, err := tree.ComposeCommit(context.Background(), store, root, tree.CommitOptions{
		Parent: parent, Subject: "test commit", Now: time.Unix(1700000000, 0),
	})
	require.NoError(t, err)
	checksum, err := store.WriteCommit(context.Background(), commit)
	require.NoError(t, err)
	return checksum
}

func TestCheckoutTree_WritesFilesAndSymlinks(t *testing.T) {
	ctx := context.Background()
	store := mustStore(t)
	commit := mustTreeCommit(t, store, "", map[string]string{
		"usr/bin/app":  "binary content",
		"usr/etc/motd": "welcome",
		"etc/hostname": "host",
	})
	c, err := store.ReadCommit(ctx, commit)
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "checkout")
	require.NoError(t, CheckoutTree(ctx, store, string(c.RootTree), string(c.RootDirMeta), dest))

	data, err := os.ReadFile(filepath.Join(dest, "usr", "bin", "app"))
	require.NoError(t, err)
	assert.Equal(t, "binary content", string(data))

	data, err = os.ReadFile(filepath.Join(dest, "etc", "hostname"))
	require.NoError(t, err)
	assert.Equal(t, "host", string(data))
}

func TestDeploy_FirstDeployment_FlipsLoaderSymlink(t *testing.T) {
	ctx := context.Background()
	store := mustStore(t)
	commit := mustTreeCommit(t, store, "", map[string]string{
		"usr/etc/hostname": "host-v1",
		"usr/bin/app":       "v1",
	})

	root := t.TempDir()
	sr := New(root)
	require.NoError(t, sr.Init())

	kernel := filepath.Join(root, "vmlinuz")
	initrd := filepath.Join(root, "initramfs.img")
	require.NoError(t, os.WriteFile(kernel, []byte("kernel-v1"), 0644))
	require.NoError(t, os.WriteFile(initrd, []byte("initrd-v1"), 0644))

	dep, err := Deploy(ctx, store, sr, commit, DeployOptions{
		Stateroot:     "testos",
		Origin:        types.Origin{Refspec: "origin:testos"},
		VmlinuzPath:   kernel,
		InitramfsPath: initrd,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, dep.Serial)
	assert.Equal(t, 1, dep.BootVersion)

	link, err := os.Readlink(sr.loaderSymlink())
	require.NoError(t, err)
	assert.Equal(t, "boot.1/loader", link)

	etcData, err := os.ReadFile(filepath.Join(sr.DeploymentDir("testos", commit, 0), "etc", "hostname"))
	require.NoError(t, err)
	assert.Equal(t, "host-v1", string(etcData))

	bv, err := sr.BootVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, bv)
}

func TestDeploy_SecondDeployment_PreservesUserEtcEdit(t *testing.T) {
	ctx := context.Background()
	store := mustStore(t)

	commitV1 := mustTreeCommit(t, store, "", map[string]string{
		"usr/etc/hostname": "default",
		"usr/etc/unchanged": "same",
	})
	commitV2 := mustTreeCommit(t, store, commitV1, map[string]string{
		"usr/etc/hostname": "default",
		"usr/etc/unchanged": "same",
	})

	root := t.TempDir()
	sr := New(root)
	require.NoError(t, sr.Init())

	dep1, err := Deploy(ctx, store, sr, commitV1, DeployOptions{
		Stateroot: "testos",
		Origin:    types.Origin{Refspec: "origin:testos"},
	})
	require.NoError(t, err)

	userEtc := filepath.Join(sr.DeploymentDir("testos", commitV1, dep1.Serial), "etc", "hostname")
	require.NoError(t, os.WriteFile(userEtc, []byte("user-edited"), 0644))

	dep2, err := Deploy(ctx, store, sr, commitV2, DeployOptions{
		Stateroot: "testos",
		Origin:    types.Origin{Refspec: "origin:testos"},
	})
	require.NoError(t, err)

	merged, err := os.ReadFile(filepath.Join(sr.DeploymentDir("testos", commitV2, dep2.Serial), "etc", "hostname"))
	require.NoError(t, err)
	assert.Equal(t, "user-edited", string(merged), "user-modified /etc entry must survive an upgrade where the pristine default did not change")

	unchanged, err := os.ReadFile(filepath.Join(sr.DeploymentDir("testos", commitV2, dep2.Serial), "etc", "unchanged"))
	require.NoError(t, err)
	assert.Equal(t, "same", string(unchanged))
}

func TestDeploy_WithCache_MergesEtcUsingCachedReads(t *testing.T) {
	ctx := context.Background()
	// Archive mode so checkoutFile can't hardlink and must read
	// through CachingStore for every file body, including the second
	// deployment's re-checkout of the prior commit's /usr/etc.
	store, err := objectstore.InitRepo(t.TempDir(), types.ModeArchive, "")
	require.NoError(t, err)

	commitV1 := mustTreeCommit(t, store, "", map[string]string{
		"usr/etc/hostname": "default",
		"usr/etc/unchanged": "same",
	})
	commitV2 := mustTreeCommit(t, store, commitV1, map[string]string{
		"usr/etc/hostname": "default",
		"usr/etc/unchanged": "same",
	})

	root := t.TempDir()
	sr := New(root)
	require.NoError(t, sr.Init())

	lru := cache.NewLRUCache(nil)

	dep1, err := Deploy(ctx, store, sr, commitV1, DeployOptions{
		Stateroot: "testos",
		Origin:    types.Origin{Refspec: "origin:testos"},
		Cache:     lru,
	})
	require.NoError(t, err)

	userEtc := filepath.Join(sr.DeploymentDir("testos", commitV1, dep1.Serial), "etc", "hostname")
	require.NoError(t, os.WriteFile(userEtc, []byte("user-edited"), 0644))

	dep2, err := Deploy(ctx, store, sr, commitV2, DeployOptions{
		Stateroot: "testos",
		Origin:    types.Origin{Refspec: "origin:testos"},
		Cache:     lru,
	})
	require.NoError(t, err)

	merged, err := os.ReadFile(filepath.Join(sr.DeploymentDir("testos", commitV2, dep2.Serial), "etc", "hostname"))
	require.NoError(t, err)
	assert.Equal(t, "user-edited", string(merged))

	stats := lru.Stats()
	assert.Greater(t, stats.Hits+stats.Misses, int64(0), "cache must have served at least one object read during the deploy")
}

func TestUndeploy_RemovesCheckoutAndOrigin(t *testing.T) {
	ctx := context.Background()
	store := mustStore(t)
	commit := mustTreeCommit(t, store, "", map[string]string{"usr/etc/hostname": "v1"})

	root := t.TempDir()
	sr := New(root)
	require.NoError(t, sr.Init())

	dep, err := Deploy(ctx, store, sr, commit, DeployOptions{
		Stateroot: "testos",
		Origin:    types.Origin{Refspec: "origin:testos"},
	})
	require.NoError(t, err)

	require.NoError(t, Undeploy(sr, "testos", commit, dep.Serial))

	_, err = os.Stat(sr.DeploymentDir("testos", commit, dep.Serial))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(sr.OriginPath("testos", commit, dep.Serial))
	assert.True(t, os.IsNotExist(err))
}

func TestParseEncodeOrigin_RoundTrips(t *testing.T) {
	o := &types.Origin{Refspec: "myremote:myos/x86_64/stable", OverrideCommit: "abc123", Unlocked: true}
	encoded := EncodeOrigin(o)
	decoded, err := ParseOrigin(encoded)
	require.NoError(t, err)
	assert.Equal(t, o.Refspec, decoded.Refspec)
	assert.Equal(t, o.OverrideCommit, decoded.OverrideCommit)
	assert.True(t, decoded.Unlocked)
}
