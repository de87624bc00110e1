package imagestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStoreSavesUniqueFiles(t *testing.T) {
	root := t.TempDir()
	store, err := NewDiskStore(root)
	require.NoError(t, err)

	first, err := store.Save(context.Background(), strings.NewReader("first"), "eye.PNG")
	require.NoError(t, err)
	second, err := store.Save(context.Background(), strings.NewReader("second"), "eye.PNG")
	require.NoError(t, err)

	assert.NotEqual(t, first.RelPath, second.RelPath)
	assert.True(t, strings.HasPrefix(first.RelPath, "uploads/"))
	assert.Equal(t, ".png", filepath.Ext(first.RelPath))
	assert.Equal(t, filepath.Join(root, filepath.FromSlash(first.RelPath)), first.FullPath)
	assert.Equal(t, int64(5), first.Size)

	data, err := os.ReadFile(first.FullPath)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
	data, err = os.ReadFile(second.FullPath)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestDiskStoreNormalisesExtension(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	for name, want := range map[string]string{
		"scan.jpeg":   ".jpeg",
		"scan.jpg":    ".jpg",
		"../../x.exe": ".png",
		"":            ".png",
	} {
		stored, err := store.Save(context.Background(), strings.NewReader("x"), name)
		require.NoError(t, err)
		assert.Equal(t, want, filepath.Ext(stored.RelPath), name)
		assert.Equal(t, filepath.Join(store.Root(), UploadsDir), filepath.Dir(stored.FullPath))
	}
}

func TestDiskStoreRemove(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)

	stored, err := store.Save(context.Background(), strings.NewReader("x"), "a.png")
	require.NoError(t, err)

	require.NoError(t, store.Remove(stored))
	_, err = os.Stat(stored.FullPath)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Remove(stored), "removing twice is fine")
	assert.NoError(t, store.Remove(nil))
}
