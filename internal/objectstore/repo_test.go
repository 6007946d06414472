package objectstore

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostreego/ostree/pkg/types"
)

func mustInitRepo(t *testing.T, mode types.RepoMode) *Repo {
	t.Helper()
	repo, err := InitRepo(t.TempDir(), mode, "")
	require.NoError(t, err)
	return repo
}

func TestEncodeDecodeDirMeta_RoundTrip(t *testing.T) {
	meta := &types.DirMeta{
		UID: 1000, GID: 1000, Mode: 0755,
		Xattr: []types.Xattr{
			{Name: "security.selinux", Value: []byte("system_u:object_r:etc_t:s0")},
			{Name: "user.a", Value: []byte("1")},
		},
	}
	encoded := EncodeDirMeta(meta)
	decoded, err := DecodeDirMeta(encoded)
	require.NoError(t, err)
	assert.Equal(t, meta.UID, decoded.UID)
	assert.Equal(t, meta.GID, decoded.GID)
	assert.Equal(t, meta.Mode, decoded.Mode)
	assert.Equal(t, meta.Xattr, decoded.Xattr)
}

func TestEncodeDirMeta_SortsXattrsByName(t *testing.T) {
	a := &types.DirMeta{Xattr: []types.Xattr{
		{Name: "z", Value: []byte("1")},
		{Name: "a", Value: []byte("2")},
	}}
	b := &types.DirMeta{Xattr: []types.Xattr{
		{Name: "a", Value: []byte("2")},
		{Name: "z", Value: []byte("1")},
	}}
	assert.Equal(t, EncodeDirMeta(a), EncodeDirMeta(b))
}

func TestEncodeDecodeFileObject_RegularFile(t *testing.T) {
	f := &types.FileObject{
		Size: 5, UID: 0, GID: 0, Mode: 0644,
		Content: []byte("hello"),
	}
	encoded := EncodeFileObject(f)
	decoded, err := DecodeFileObject(encoded)
	require.NoError(t, err)
	assert.Equal(t, f.Content, decoded.Content)
	assert.False(t, decoded.IsSymlink())
}

func TestEncodeDecodeFileObject_Symlink(t *testing.T) {
	f := &types.FileObject{Mode: 0777, Target: "/usr/bin/busybox"}
	encoded := EncodeFileObject(f)
	decoded, err := DecodeFileObject(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.IsSymlink())
	assert.Equal(t, "/usr/bin/busybox", decoded.Target)
	assert.Empty(t, decoded.Content)
}

func TestEncodeDirTree_SortsEntries(t *testing.T) {
	var csA, csB types.Checksum
	csA[0] = 0xAA
	csB[0] = 0xBB

	t1 := &types.DirTree{
		Files: []types.DirTreeFileEntry{
			{Name: "zeta", Checksum: csB},
			{Name: "alpha", Checksum: csA},
		},
	}
	t2 := &types.DirTree{
		Files: []types.DirTreeFileEntry{
			{Name: "alpha", Checksum: csA},
			{Name: "zeta", Checksum: csB},
		},
	}
	assert.Equal(t, EncodeDirTree(t1), EncodeDirTree(t2))
}

func TestEncodeDecodeCommit_RoundTrip(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	var root, rootMeta types.Checksum
	root[0], rootMeta[0] = 1, 2

	c := &types.Commit{
		Metadata:    map[string]interface{}{"version": "42", "ostree.bootable": "true"},
		Subject:     "Build 42",
		Body:        "nightly build",
		Timestamp:   ts,
		RootTree:    root,
		RootDirMeta: rootMeta,
	}
	encoded, err := EncodeCommit(c)
	require.NoError(t, err)

	decoded, err := DecodeCommit(encoded)
	require.NoError(t, err)
	assert.Equal(t, c.Subject, decoded.Subject)
	assert.Equal(t, c.Body, decoded.Body)
	assert.Equal(t, c.Timestamp.Unix(), decoded.Timestamp.Unix())
	assert.Equal(t, c.RootTree, decoded.RootTree)
	assert.Equal(t, c.RootDirMeta, decoded.RootDirMeta)
	assert.Nil(t, decoded.Parent)
	assert.Equal(t, "42", decoded.Metadata["version"])
}

func TestEncodeCommit_WithParent(t *testing.T) {
	var parent types.Checksum
	parent[31] = 0xFF
	c := &types.Commit{Parent: &parent, Metadata: map[string]interface{}{}}

	encoded, err := EncodeCommit(c)
	require.NoError(t, err)
	decoded, err := DecodeCommit(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded.Parent)
	assert.Equal(t, parent, *decoded.Parent)
}

func TestParseChecksum_RoundTrip(t *testing.T) {
	c := ComputeChecksum([]byte("hello"))
	s := ChecksumString(c)
	assert.Len(t, s, 64)

	parsed, err := ParseChecksum(s)
	require.NoError(t, err)
	assert.Equal(t, c, parsed)
}

func TestParseChecksum_Invalid(t *testing.T) {
	_, err := ParseChecksum("not-a-checksum")
	assert.Error(t, err)

	_, err = ParseChecksum("")
	assert.Error(t, err)
}

func TestRepo_WriteAndReadCommit_ArchiveMode(t *testing.T) {
	ctx := context.Background()
	repo := mustInitRepo(t, types.ModeArchive)

	fileChecksum, err := repo.WriteFileObject(ctx, &types.FileObject{
		Size: 4, Mode: 0644, Content: []byte("boot"),
	})
	require.NoError(t, err)

	dirMetaChecksum, err := repo.WriteDirMeta(ctx, &types.DirMeta{Mode: 0755})
	require.NoError(t, err)

	var fileCsumArr types.Checksum
	csumBytes, err := ParseChecksum(fileChecksum)
	require.NoError(t, err)
	fileCsumArr = csumBytes

	treeChecksum, err := repo.WriteDirTree(ctx, &types.DirTree{
		Files: []types.DirTreeFileEntry{{Name: "vmlinuz", Checksum: fileCsumArr}},
	})
	require.NoError(t, err)

	var treeCsumArr, metaCsumArr types.Checksum
	tb, _ := ParseChecksum(treeChecksum)
	treeCsumArr = tb
	mb, _ := ParseChecksum(dirMetaChecksum)
	metaCsumArr = mb

	commitChecksum, err := repo.WriteCommit(ctx, &types.Commit{
		Metadata:    map[string]interface{}{"ostree.bootable": "true"},
		Subject:     "Build 1",
		Timestamp:   time.Unix(1700000000, 0),
		RootTree:    treeCsumArr,
		RootDirMeta: metaCsumArr,
	})
	require.NoError(t, err)

	has, err := repo.HasObject(ctx, types.KindCommit, commitChecksum)
	require.NoError(t, err)
	assert.True(t, has)

	readBack, err := repo.ReadCommit(ctx, commitChecksum)
	require.NoError(t, err)
	assert.Equal(t, "Build 1", readBack.Subject)

	rc, err := repo.OpenObject(ctx, types.KindFile, fileChecksum)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	fileObj, err := DecodeFileObject(body)
	require.NoError(t, err)
	assert.Equal(t, []byte("boot"), fileObj.Content)

	report, err := repo.Fsck(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 4, report.ObjectsChecked)
}

func TestRepo_WriteFileObject_DedupesIdenticalContent(t *testing.T) {
	ctx := context.Background()
	repo := mustInitRepo(t, types.ModeArchive)

	f := &types.FileObject{Size: 3, Mode: 0644, Content: []byte("abc")}
	csum1, err := repo.WriteFileObject(ctx, f)
	require.NoError(t, err)
	csum2, err := repo.WriteFileObject(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, csum1, csum2)
}

func TestRepo_BareUserOnly_RejectsSetuid(t *testing.T) {
	ctx := context.Background()
	repo := mustInitRepo(t, types.ModeBareUserOnly)

	_, err := repo.WriteFileObject(ctx, &types.FileObject{
		Size: 1, Mode: 0755 | 04000, Content: []byte("x"),
	})
	assert.Error(t, err)
}

func TestRepo_IterObjects(t *testing.T) {
	ctx := context.Background()
	repo := mustInitRepo(t, types.ModeArchive)

	_, err := repo.WriteFileObject(ctx, &types.FileObject{Size: 1, Mode: 0644, Content: []byte("a")})
	require.NoError(t, err)
	_, err = repo.WriteFileObject(ctx, &types.FileObject{Size: 1, Mode: 0644, Content: []byte("b")})
	require.NoError(t, err)

	ch, err := repo.IterObjects(ctx, types.KindFile)
	require.NoError(t, err)
	count := 0
	for range ch {
		count++
	}
	assert.Equal(t, 2, count)
}

func TestRepo_CopyInto(t *testing.T) {
	ctx := context.Background()
	src := mustInitRepo(t, types.ModeArchive)
	dst := mustInitRepo(t, types.ModeArchive)

	csum, err := src.WriteFileObject(ctx, &types.FileObject{Size: 2, Mode: 0644, Content: []byte("hi")})
	require.NoError(t, err)

	err = src.CopyInto(ctx, dst, types.KindFile, csum)
	require.NoError(t, err)

	has, err := dst.HasObject(ctx, types.KindFile, csum)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRepo_Stats(t *testing.T) {
	ctx := context.Background()
	repo := mustInitRepo(t, types.ModeArchive)

	_, err := repo.WriteFileObject(ctx, &types.FileObject{Size: 3, Mode: 0644, Content: []byte("xyz")})
	require.NoError(t, err)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ObjectCount[types.KindFile])
}

func TestInitRepo_RejectsDoubleInit(t *testing.T) {
	dir := t.TempDir()
	_, err := InitRepo(dir, types.ModeArchive, "")
	require.NoError(t, err)

	_, err = InitRepo(dir, types.ModeArchive, "")
	assert.Error(t, err)
}

func TestInitRepo_RejectsInvalidMode(t *testing.T) {
	_, err := InitRepo(t.TempDir(), types.RepoMode("not-a-mode"), "")
	assert.Error(t, err)
}
