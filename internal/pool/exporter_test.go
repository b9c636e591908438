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
	certvaulttesting "github.com/albedosehen/certvault/internal/testing"
)

func newTestExporter(t *testing.T) (Exporter, *certvaulttesting.FakeRepository, string) {
	t.Helper()

	root := t.TempDir()
	repo := certvaulttesting.NewFakeRepository()

	ex := NewExporter(
		NewPaths(root),
		repo,
		certvaulttesting.NewNopLogger(),
		certvaulttesting.NewNopMetrics(),
	)
	return ex, repo, root
}

func TestWriteFolder(t *testing.T) {
	ex, _, root := newTestExporter(t)

	err := ex.WriteFolder(certstore.StoreWebsites, "shop.example.com",
		[]byte("CERT"), []byte("KEY"))
	require.NoError(t, err)

	dir := filepath.Join(root, "Websites", "shop.example.com")

	cert, err := os.ReadFile(filepath.Join(dir, CertFileName))
	require.NoError(t, err)
	assert.Equal(t, "CERT", string(cert))

	keyPath := filepath.Join(dir, KeyFileName)
	key, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.Equal(t, "KEY", string(key))

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteFolderRejectsDatabaseStore(t *testing.T) {
	ex, _, _ := newTestExporter(t)

	err := ex.WriteFolder(certstore.StoreDatabase, "shop.example.com", []byte("C"), []byte("K"))
	require.Error(t, err)
}

func TestExportCertificateAutoRow(t *testing.T) {
	ex, repo, root := newTestExporter(t)

	cert := repo.Seed(certstore.Certificate{
		Store:       certstore.StoreWebsites,
		Domain:      "shop.example.com",
		FolderName:  "shop.example.com",
		Source:      certstore.SourceAuto,
		Status:      certstore.StatusSuccess,
		Certificate: "CERT-PEM",
		PrivateKey:  "KEY-PEM",
	})

	require.NoError(t, ex.ExportCertificate(context.Background(), cert.ID))

	data, err := os.ReadFile(filepath.Join(root, "Websites", "shop.example.com", CertFileName))
	require.NoError(t, err)
	assert.Equal(t, "CERT-PEM", string(data))

	// An auto row is its own sibling; no extra row appears.
	assert.Equal(t, 1, repo.Len())
}

func TestExportCertificateManualOriginSkipsMirrorOnFolderConflict(t *testing.T) {
	ex, repo, root := newTestExporter(t)

	// The origin row owns the folder name, so the auto mirror insert hits
	// the folder-name unique constraint. The export still succeeds: files
	// land on disk, only the mirror row is skipped, the origin untouched.
	origin := repo.Seed(certstore.Certificate{
		Store:       certstore.StoreAPIs,
		Domain:      "api.example.com",
		FolderName:  "api.example.com",
		Source:      certstore.SourceManualApply,
		Status:      certstore.StatusSuccess,
		Certificate: "CERT-PEM",
		PrivateKey:  "KEY-PEM",
		Email:       "ops@example.com",
	})

	require.NoError(t, ex.ExportCertificate(context.Background(), origin.ID))

	_, err := os.Stat(filepath.Join(root, "Apis", "api.example.com", CertFileName))
	require.NoError(t, err)

	kept := repo.Get(origin.ID)
	assert.Equal(t, certstore.SourceManualApply, kept.Source)
	assert.Equal(t, 1, repo.Len())
}

func TestExportCertificateManualOriginRefreshesExistingMirror(t *testing.T) {
	ex, repo, _ := newTestExporter(t)

	origin := repo.Seed(certstore.Certificate{
		Store:       certstore.StoreWebsites,
		Domain:      "shop.example.com",
		FolderName:  "shop.example.com",
		Source:      certstore.SourceManualApply,
		Status:      certstore.StatusSuccess,
		Certificate: "NEW-CERT",
		PrivateKey:  "NEW-KEY",
	})
	// A lone auto row for the same (store, domain) without a competing
	// folder owner would be refreshed in place; here the origin owns the
	// folder, so the mirror update is rejected and skipped instead.
	repo.Seed(certstore.Certificate{
		ID:          "mirror",
		Store:       certstore.StoreWebsites,
		Domain:      "shop.example.com",
		FolderName:  "shop.example.com-old",
		Source:      certstore.SourceAuto,
		Status:      certstore.StatusSuccess,
		Certificate: "OLD-CERT",
		PrivateKey:  "OLD-KEY",
	})

	require.NoError(t, ex.ExportCertificate(context.Background(), origin.ID))

	// Mirror keeps its old material; the conflict was logged, not raised.
	mirror := repo.Get("mirror")
	assert.Equal(t, "OLD-CERT", mirror.Certificate)
}

func TestExportCertificateNotExportable(t *testing.T) {
	ex, repo, _ := newTestExporter(t)

	tests := []struct {
		name string
		cert certstore.Certificate
	}{
		{"database store", certstore.Certificate{
			Store: certstore.StoreDatabase, Domain: "d.example.com",
			FolderName: "d.example.com", Certificate: "C", PrivateKey: "K",
		}},
		{"empty certificate", certstore.Certificate{
			Store: certstore.StoreWebsites, Domain: "e.example.com",
			FolderName: "e.example.com", PrivateKey: "K",
		}},
		{"empty key", certstore.Certificate{
			Store: certstore.StoreWebsites, Domain: "f.example.com",
			FolderName: "f.example.com", Certificate: "C",
		}},
		{"empty folder name", certstore.Certificate{
			Store: certstore.StoreWebsites, Domain: "g.example.com",
			Certificate: "C", PrivateKey: "K",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := repo.Seed(tt.cert)
			err := ex.ExportCertificate(context.Background(), cert.ID)
			require.Error(t, err)
		})
	}
}

func TestExportCertificateUnknownID(t *testing.T) {
	ex, _, _ := newTestExporter(t)

	err := ex.ExportCertificate(context.Background(), "missing")
	assert.True(t, vaulterrors.IsNotFound(err))
}

func TestExportStore(t *testing.T) {
	ex, repo, root := newTestExporter(t)

	repo.Seed(certstore.Certificate{
		Store: certstore.StoreWebsites, Domain: "a.example.com",
		FolderName: "a.example.com", Source: certstore.SourceAuto,
		Status: certstore.StatusSuccess, Certificate: "CA", PrivateKey: "KA",
	})
	repo.Seed(certstore.Certificate{
		Store: certstore.StoreWebsites, Domain: "b.example.com",
		FolderName: "b.example.com", Source: certstore.SourceAuto,
		Status: certstore.StatusSuccess, Certificate: "CB", PrivateKey: "KB",
	})
	// Missing material: counted as skipped, not an error.
	repo.Seed(certstore.Certificate{
		Store: certstore.StoreWebsites, Domain: "c.example.com",
		FolderName: "c.example.com", Source: certstore.SourceAuto,
		Status: certstore.StatusProcess,
	})

	report, err := ex.ExportStore(context.Background(), certstore.StoreWebsites)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Exported)
	assert.Equal(t, 1, report.Skipped)

	for _, folder := range []string{"a.example.com", "b.example.com"} {
		_, err := os.Stat(filepath.Join(root, "Websites", folder, CertFileName))
		require.NoError(t, err)
	}
}
