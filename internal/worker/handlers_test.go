package worker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albedosehen/certvault/internal/acme"
	"github.com/albedosehen/certvault/internal/certstore"
	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/lifecycle"
	"github.com/albedosehen/certvault/internal/pki"
	"github.com/albedosehen/certvault/internal/pool"
	certvaulttesting "github.com/albedosehen/certvault/internal/testing"
)

// trackingCache records invalidations; reads always miss.
type trackingCache struct {
	mu          sync.Mutex
	invalidated []certstore.Store
}

func (c *trackingCache) GetList(ctx context.Context, store certstore.Store, offset, limit int) (*certstore.Page, bool) {
	return nil, false
}
func (c *trackingCache) SetList(ctx context.Context, store certstore.Store, offset, limit int, page *certstore.Page) {
}
func (c *trackingCache) GetDetail(ctx context.Context, store certstore.Store, domain string) (*certstore.Certificate, bool) {
	return nil, false
}
func (c *trackingCache) SetDetail(ctx context.Context, store certstore.Store, domain string, cert *certstore.Certificate) {
}
func (c *trackingCache) InvalidateStore(ctx context.Context, store certstore.Store) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, store)
	return nil
}
func (c *trackingCache) Ping(ctx context.Context) error { return nil }
func (c *trackingCache) Close() error                   { return nil }

func (c *trackingCache) stores() []certstore.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]certstore.Store, len(c.invalidated))
	copy(out, c.invalidated)
	return out
}

// idleDriver fails the test if the worker ever reaches ACME.
type idleDriver struct{ t *testing.T }

func (d *idleDriver) Issue(ctx context.Context, req acme.IssueRequest) (*acme.IssueResult, error) {
	d.t.Fatal("worker handlers must not trigger issuance")
	return nil, nil
}

type workerFixture struct {
	handlers *Handlers
	repo     *certvaulttesting.FakeRepository
	cache    *trackingCache
	producer *certvaulttesting.RecordingProducer
	root     string
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	root := t.TempDir()
	repo := certvaulttesting.NewFakeRepository()
	cache := &trackingCache{}
	producer := certvaulttesting.NewRecordingProducer()
	logger := certvaulttesting.NewNopLogger()
	metrics := certvaulttesting.NewNopMetrics()
	parser := pki.NewParser()
	paths := pool.NewPaths(root)

	importer := pool.NewImporter(paths, repo, parser, producer, logger, metrics)
	exporter := pool.NewExporter(paths, repo, logger, metrics)
	deleter := pool.NewDeleter(paths, logger)
	svc := lifecycle.NewService(repo, cache, &idleDriver{t: t}, parser, producer, exporter, logger, metrics, 0)

	return &workerFixture{
		handlers: NewHandlers(importer, exporter, deleter, cache, svc, logger),
		repo:     repo,
		cache:    cache,
		producer: producer,
		root:     root,
	}
}

func payload(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestRegisterBindsEveryEventType(t *testing.T) {
	f := newWorkerFixture(t)

	d := events.NewDispatcher(certvaulttesting.NewNopLogger())
	f.handlers.Register(d)

	assert.ElementsMatch(t, []events.Type{
		events.TypeOperationRefresh,
		events.TypeCacheInvalidate,
		events.TypeCertificateParse,
		events.TypeFolderDelete,
		events.TypeFileOrFolderDelete,
		events.TypeCertificateExport,
	}, d.Types())
}

func TestHandleRefreshImportsStore(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	certPEM, keyPEM := certvaulttesting.GenerateLeafCertificate(t,
		"shop.example.com", nil, 30*24*time.Hour)
	certvaulttesting.WritePoolFolder(t, f.root, "Websites", "shop.example.com", certPEM, keyPEM)

	err := f.handlers.handleRefresh(ctx, payload(t, events.RefreshPayload{
		Store: "websites", Trigger: events.TriggerAPI,
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, f.repo.Len())

	// A non-event trigger re-emits the cache invalidation.
	invalidates := f.producer.EventsOfType(events.TypeCacheInvalidate)
	require.Len(t, invalidates, 1)
	assert.Equal(t, events.TriggerAPI, invalidates[0].Trigger)
	// But never a fresh refresh.
	assert.Empty(t, f.producer.EventsOfType(events.TypeOperationRefresh))
}

func TestHandleRefreshEventTriggerEmitsNothing(t *testing.T) {
	f := newWorkerFixture(t)
	ctx := context.Background()

	certPEM, keyPEM := certvaulttesting.GenerateLeafCertificate(t,
		"shop.example.com", nil, 30*24*time.Hour)
	certvaulttesting.WritePoolFolder(t, f.root, "Websites", "shop.example.com", certPEM, keyPEM)

	err := f.handlers.handleRefresh(ctx, payload(t, events.RefreshPayload{
		Store: "websites", Trigger: events.TriggerEvent,
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, f.repo.Len())
	assert.Empty(t, f.producer.Events())
}

func TestHandleRefreshDefaultsMissingTrigger(t *testing.T) {
	f := newWorkerFixture(t)

	// A payload without a trigger is treated as event-borne: do the work,
	// emit nothing.
	err := f.handlers.handleRefresh(context.Background(),
		payload(t, events.RefreshPayload{Store: "apis"}))
	require.NoError(t, err)
	assert.Empty(t, f.producer.Events())
}

func TestHandleRefreshRejectsBadStore(t *testing.T) {
	f := newWorkerFixture(t)

	err := f.handlers.handleRefresh(context.Background(),
		payload(t, events.RefreshPayload{Store: "nope", Trigger: events.TriggerAPI}))
	require.Error(t, err)

	err = f.handlers.handleRefresh(context.Background(), []byte("{broken"))
	require.Error(t, err)
}

func TestHandleCacheInvalidate(t *testing.T) {
	f := newWorkerFixture(t)

	err := f.handlers.handleCacheInvalidate(context.Background(),
		payload(t, events.CacheInvalidatePayload{
			Stores: []string{"websites", "bogus", "database"},
		}))
	require.NoError(t, err)

	// Unknown store names are skipped, known ones dropped.
	assert.Equal(t, []certstore.Store{certstore.StoreWebsites, certstore.StoreDatabase},
		f.cache.stores())
}

func TestHandleParse(t *testing.T) {
	f := newWorkerFixture(t)

	certPEM, _ := certvaulttesting.GenerateLeafCertificate(t,
		"shop.example.com", []string{"shop.example.com"}, 30*24*time.Hour)
	cert := f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreDatabase, Domain: "shop.example.com",
		Source: certstore.SourceManualAdd, Status: certstore.StatusProcess,
		Certificate: string(certPEM),
	})

	err := f.handlers.handleParse(context.Background(),
		payload(t, events.ParsePayload{CertificateID: cert.ID}))
	require.NoError(t, err)

	row := f.repo.Get(cert.ID)
	assert.Equal(t, certstore.StatusSuccess, row.Status)
	assert.True(t, row.IsValid)
}

func TestHandleFolderDelete(t *testing.T) {
	f := newWorkerFixture(t)

	dir := certvaulttesting.WritePoolFolder(t, f.root, "Websites", "shop.example.com",
		[]byte("C"), []byte("K"))

	err := f.handlers.handleFolderDelete(context.Background(),
		payload(t, events.FolderDeletePayload{Store: "websites", FolderName: "shop.example.com"}))
	require.NoError(t, err)

	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))

	// Redelivery of the same event is a no-op.
	err = f.handlers.handleFolderDelete(context.Background(),
		payload(t, events.FolderDeletePayload{Store: "websites", FolderName: "shop.example.com"}))
	require.NoError(t, err)
}

func TestHandleFileOrFolderDelete(t *testing.T) {
	f := newWorkerFixture(t)

	dir := certvaulttesting.WritePoolFolder(t, f.root, "Apis", "api.example.com",
		[]byte("C"), []byte("K"))

	err := f.handlers.handleFileOrFolderDelete(context.Background(),
		payload(t, events.FileOrFolderDeletePayload{
			Store: "apis", Path: "api.example.com/key.key", ItemType: events.ItemFile,
		}))
	require.NoError(t, err)

	_, statErr := os.Stat(filepath.Join(dir, "key.key"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestHandleExport(t *testing.T) {
	f := newWorkerFixture(t)

	cert := f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreWebsites, Domain: "shop.example.com",
		FolderName: "shop.example.com", Source: certstore.SourceAuto,
		Status: certstore.StatusSuccess, Certificate: "CERT", PrivateKey: "KEY",
	})

	err := f.handlers.handleExport(context.Background(),
		payload(t, events.ExportPayload{CertificateID: cert.ID}))
	require.NoError(t, err)

	data, readErr := os.ReadFile(filepath.Join(f.root, "Websites", "shop.example.com", "cert.crt"))
	require.NoError(t, readErr)
	assert.Equal(t, "CERT", string(data))
}
