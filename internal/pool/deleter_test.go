package pool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/events"
	certvaulttesting "github.com/albedosehen/certvault/internal/testing"
)

func newTestDeleter(t *testing.T) (Deleter, string) {
	t.Helper()

	root := t.TempDir()
	return NewDeleter(NewPaths(root), certvaulttesting.NewNopLogger()), root
}

func TestDeleteFolder(t *testing.T) {
	d, root := newTestDeleter(t)
	certvaulttesting.WritePoolFolder(t, root, "Websites", "shop.example.com",
		[]byte("C"), []byte("K"))

	require.NoError(t, d.DeleteFolder(context.Background(), certstore.StoreWebsites, "shop.example.com"))

	_, err := os.Stat(filepath.Join(root, "Websites", "shop.example.com"))
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteFolderIdempotent(t *testing.T) {
	d, _ := newTestDeleter(t)

	// Missing folders are not an error; the event may be replayed.
	require.NoError(t, d.DeleteFolder(context.Background(), certstore.StoreWebsites, "never-existed"))
}

func TestDeleteFolderRejectsTraversal(t *testing.T) {
	d, _ := newTestDeleter(t)

	for _, name := range []string{"..", "../x", "a/b"} {
		err := d.DeleteFolder(context.Background(), certstore.StoreWebsites, name)
		require.Error(t, err, "folder name %q must be rejected", name)
	}
}

func TestDeleteFileOrFolder(t *testing.T) {
	d, root := newTestDeleter(t)
	dir := certvaulttesting.WritePoolFolder(t, root, "Apis", "api.example.com",
		[]byte("C"), []byte("K"))

	ctx := context.Background()

	// File deletion leaves the folder in place.
	require.NoError(t, d.DeleteFileOrFolder(ctx, certstore.StoreAPIs,
		"api.example.com/cert.crt", events.ItemFile))
	_, err := os.Stat(filepath.Join(dir, CertFileName))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dir)
	require.NoError(t, err)

	// Folder deletion removes the rest.
	require.NoError(t, d.DeleteFileOrFolder(ctx, certstore.StoreAPIs,
		"api.example.com", events.ItemFolder))
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestDeleteFileOrFolderKindMismatch(t *testing.T) {
	d, root := newTestDeleter(t)
	certvaulttesting.WritePoolFolder(t, root, "Apis", "api.example.com",
		[]byte("C"), []byte("K"))

	ctx := context.Background()

	err := d.DeleteFileOrFolder(ctx, certstore.StoreAPIs, "api.example.com", events.ItemFile)
	require.Error(t, err)

	err = d.DeleteFileOrFolder(ctx, certstore.StoreAPIs, "api.example.com/cert.crt", events.ItemFolder)
	require.Error(t, err)

	err = d.DeleteFileOrFolder(ctx, certstore.StoreAPIs, "api.example.com/cert.crt", events.ItemType("drive"))
	require.Error(t, err)
}

func TestDeleteFileOrFolderGuards(t *testing.T) {
	d, root := newTestDeleter(t)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Websites"), 0o755))

	ctx := context.Background()

	// The store root itself may never be deleted.
	err := d.DeleteFileOrFolder(ctx, certstore.StoreWebsites, ".", events.ItemFolder)
	require.Error(t, err)
	assert.Equal(t, vaulterrors.ErrCodePathTraversal, err.(*vaulterrors.VaultError).Code)

	err = d.DeleteFileOrFolder(ctx, certstore.StoreWebsites, "../Apis", events.ItemFolder)
	require.Error(t, err)

	// Missing targets are idempotent no-ops.
	require.NoError(t, d.DeleteFileOrFolder(ctx, certstore.StoreWebsites, "gone", events.ItemFolder))
}
