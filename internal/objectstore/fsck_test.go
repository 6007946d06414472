package objectstore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostreego/ostree/pkg/types"
)

func TestFsck_CleanRepoReportsNoCorruption(t *testing.T) {
	ctx := context.Background()
	repo := mustInitRepo(t, types.ModeArchive)

	_, err := repo.WriteFileObject(ctx, &types.FileObject{Size: 1, Mode: 0644, Content: []byte("a")})
	require.NoError(t, err)
	_, err = repo.WriteDirMeta(ctx, &types.DirMeta{Mode: 0755})
	require.NoError(t, err)

	report, err := repo.Fsck(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 2, report.ObjectsChecked)
	assert.Empty(t, report.Corrupt)
}

func TestFsck_DetectsTamperedObject(t *testing.T) {
	ctx := context.Background()
	repo := mustInitRepo(t, types.ModeBare)

	checksum, err := repo.WriteFileObject(ctx, &types.FileObject{Size: 5, Mode: 0644, Content: []byte("hello")})
	require.NoError(t, err)

	path, err := repo.ObjectPath(types.KindFile, checksum)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("tampered content, wrong checksum"), 0644))

	report, err := repo.Fsck(ctx)
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.Len(t, report.Corrupt, 1)
	assert.Equal(t, types.KindFile, report.Corrupt[0].Kind)
	assert.Equal(t, checksum, report.Corrupt[0].Checksum)
}
