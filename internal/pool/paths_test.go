package pool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
)

func TestPathsStoreDir(t *testing.T) {
	paths := NewPaths("/certs")

	dir, err := paths.StoreDir(certstore.StoreWebsites)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/certs", "Websites"), dir)

	dir, err = paths.StoreDir(certstore.StoreAPIs)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/certs", "Apis"), dir)

	_, err = paths.StoreDir(certstore.StoreDatabase)
	require.Error(t, err)
	assert.Equal(t, vaulterrors.ErrCodeInvalidStore, err.(*vaulterrors.VaultError).Code)
}

func TestPathsFolderDir(t *testing.T) {
	paths := NewPaths("/certs")

	dir, err := paths.FolderDir(certstore.StoreWebsites, "shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/certs", "Websites", "shop.example.com"), dir)

	for _, name := range []string{"", "..", "a/b", "../escape", ".hidden"} {
		_, err := paths.FolderDir(certstore.StoreWebsites, name)
		require.Error(t, err, "folder name %q must be rejected", name)
		assert.Equal(t, vaulterrors.ErrCodePathTraversal, err.(*vaulterrors.VaultError).Code)
	}
}

func TestPathsResolve(t *testing.T) {
	paths := NewPaths("/certs")
	storeDir := filepath.Join("/certs", "Websites")

	tests := []struct {
		name string
		rel  string
		want string
		ok   bool
	}{
		{"empty resolves to store root", "", storeDir, true},
		{"dot resolves to store root", ".", storeDir, true},
		{"plain file", "shop.example.com/cert.crt", filepath.Join(storeDir, "shop.example.com", "cert.crt"), true},
		{"nested folder", "a/b/c", filepath.Join(storeDir, "a", "b", "c"), true},
		{"dotdot in the middle collapses inside", "a/../b", filepath.Join(storeDir, "b"), true},
		{"escape via dotdot", "../outside", "", false},
		{"escape via deep dotdot", "a/../../../etc/passwd", "", false},
		{"absolute path", "/etc/passwd", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := paths.Resolve(certstore.StoreWebsites, tt.rel)
			if !tt.ok {
				require.Error(t, err)
				assert.Equal(t, vaulterrors.ErrCodePathTraversal, err.(*vaulterrors.VaultError).Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathsResolveDatabaseStore(t *testing.T) {
	paths := NewPaths("/certs")

	_, err := paths.Resolve(certstore.StoreDatabase, "anything")
	require.Error(t, err)
}
