package imagestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dcmerrors "github.com/caio-sobreiro/dicomizer/errors"
)

func newTestDirStore(t *testing.T) *DirStore {
	t.Helper()
	root := t.TempDir()
	study := filepath.Join(root, "ds-1", "study-1")
	require.NoError(t, os.MkdirAll(filepath.Join(study, "frames"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(study, MetadataFileName), []byte("meta"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(study, "frames", "f1"), []byte("pixels"), 0o644))

	store, err := NewDirStore(root)
	require.NoError(t, err)
	return store
}

func TestDirStore_Get(t *testing.T) {
	store := newTestDirStore(t)
	ctx := context.Background()

	meta, err := store.GetStudyMetadata(ctx, "ds-1", "study-1")
	require.NoError(t, err)
	assert.Equal(t, "meta", string(meta))

	frame, err := store.GetFrame(ctx, "ds-1", "study-1", "f1")
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(frame))
}

func TestDirStore_NotFound(t *testing.T) {
	store := newTestDirStore(t)
	ctx := context.Background()

	_, err := store.GetFrame(ctx, "ds-1", "study-1", "missing")
	assert.ErrorIs(t, err, dcmerrors.ErrNotFound)
	assert.ErrorIs(t, err, dcmerrors.ErrFrameFetch)

	_, err = store.GetStudyMetadata(ctx, "ds-1", "other")
	assert.ErrorIs(t, err, dcmerrors.ErrNotFound)
	assert.ErrorIs(t, err, dcmerrors.ErrMetadataFetch)
}

func TestDirStore_RejectsTraversal(t *testing.T) {
	store := newTestDirStore(t)

	for _, frameID := range []string{"..", "../x", "a/b", ""} {
		_, err := store.GetFrame(context.Background(), "ds-1", "study-1", frameID)
		assert.Error(t, err, frameID)
	}
}

func TestDirStore_ContextCanceled(t *testing.T) {
	store := newTestDirStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetFrame(ctx, "ds-1", "study-1", "f1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewDirStore_Invalid(t *testing.T) {
	_, err := NewDirStore(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewDirStore(file)
	assert.Error(t, err)
}
