package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albedosehen/certvault/internal/acme"
	"github.com/albedosehen/certvault/internal/certcache"
	"github.com/albedosehen/certvault/internal/certstore"
	"github.com/albedosehen/certvault/internal/config"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/health"
	"github.com/albedosehen/certvault/internal/lifecycle"
	"github.com/albedosehen/certvault/internal/middleware"
	"github.com/albedosehen/certvault/internal/pki"
	"github.com/albedosehen/certvault/internal/pool"
	certvaulttesting "github.com/albedosehen/certvault/internal/testing"
)

// passCache misses every read and swallows writes.
type passCache struct{}

func (passCache) GetList(ctx context.Context, store certstore.Store, offset, limit int) (*certstore.Page, bool) {
	return nil, false
}
func (passCache) SetList(ctx context.Context, store certstore.Store, offset, limit int, page *certstore.Page) {
}
func (passCache) GetDetail(ctx context.Context, store certstore.Store, domain string) (*certstore.Certificate, bool) {
	return nil, false
}
func (passCache) SetDetail(ctx context.Context, store certstore.Store, domain string, cert *certstore.Certificate) {
}
func (passCache) InvalidateStore(ctx context.Context, store certstore.Store) error { return nil }
func (passCache) Ping(ctx context.Context) error                                   { return nil }
func (passCache) Close() error                                                     { return nil }

var _ certcache.Cache = passCache{}

// staticDriver returns a canned issuance result.
type staticDriver struct {
	result *acme.IssueResult
	err    error
}

func (d *staticDriver) Issue(ctx context.Context, req acme.IssueRequest) (*acme.IssueResult, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.result, nil
}

// mapChallenges is an in-memory acme.ChallengeStore.
type mapChallenges struct{ tokens map[string]string }

func (m *mapChallenges) Set(token, keyAuth string) error {
	m.tokens[token] = keyAuth
	return nil
}

func (m *mapChallenges) Get(token string) (string, error) {
	auth, ok := m.tokens[token]
	if !ok {
		return "", vaulterrors.ErrChallengeNotFound
	}
	return auth, nil
}

func (m *mapChallenges) Remove(token string) error {
	delete(m.tokens, token)
	return nil
}

type serverFixture struct {
	router   http.Handler
	repo     *certvaulttesting.FakeRepository
	producer *certvaulttesting.RecordingProducer
	driver   *staticDriver
	svc      lifecycle.Service
	tokens   *mapChallenges
	root     string
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	root := t.TempDir()
	repo := certvaulttesting.NewFakeRepository()
	producer := certvaulttesting.NewRecordingProducer()
	logger := certvaulttesting.NewNopLogger()
	metrics := certvaulttesting.NewNopMetrics()
	driver := &staticDriver{}
	paths := pool.NewPaths(root)

	browser := pool.NewBrowser(paths, logger)
	exporter := pool.NewExporter(paths, repo, logger, metrics)
	svc := lifecycle.NewService(repo, passCache{}, driver, pki.NewParser(), producer, exporter, logger, metrics, 0)

	tokens := &mapChallenges{tokens: map[string]string{}}
	handlers := NewHandlers(svc, browser, exporter, tokens, logger)

	agg := health.NewAggregator(logger, metrics)
	agg.Register(health.NewProbe("noop", func(ctx context.Context) error { return nil }))

	rlCfg := config.RateLimitConfig{Enabled: false}
	limiter := middleware.NewClientRateLimiter(rlCfg, logger)
	t.Cleanup(limiter.Stop)

	router := NewRouter(handlers, agg, rlCfg, limiter, logger, metrics)

	return &serverFixture{
		router:   router,
		repo:     repo,
		producer: producer,
		driver:   driver,
		svc:      svc,
		tokens:   tokens,
		root:     root,
	}
}

func (f *serverFixture) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func seedCert(f *serverFixture, domain string) *certstore.Certificate {
	return f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreWebsites, Domain: domain,
		FolderName: domain, Source: certstore.SourceAuto,
		Status: certstore.StatusSuccess,
		Certificate: "CERT", PrivateKey: "KEY",
	})
}

func TestListEndpoint(t *testing.T) {
	f := newServerFixture(t)
	seedCert(f, "a.example.com")
	seedCert(f, "b.example.com")

	rec := f.do(t, http.MethodGet, "/api/vault/tls/check/websites", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeEnvelope(t, rec)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(2), data["total"])
	assert.Len(t, data["items"], 2)
}

func TestListEndpointPaging(t *testing.T) {
	f := newServerFixture(t)
	for i := 0; i < 5; i++ {
		seedCert(f, fmt.Sprintf("site-%d.example.com", i))
	}

	rec := f.do(t, http.MethodGet, "/api/vault/tls/check/websites?page=2&page_size=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(5), data["total"])
	assert.Equal(t, float64(2), data["offset"])
	assert.Len(t, data["items"], 2)
}

func TestListEndpointRejectsBadInput(t *testing.T) {
	f := newServerFixture(t)

	for _, target := range []string{
		"/api/vault/tls/check/nope",
		"/api/vault/tls/check/websites?page=0",
		"/api/vault/tls/check/websites?page_size=101",
		"/api/vault/tls/check/websites?page=abc",
	} {
		rec := f.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, false, decodeEnvelope(t, rec)["success"], target)
	}
}

func TestDetailEndpoint(t *testing.T) {
	f := newServerFixture(t)
	seedCert(f, "shop.example.com")

	rec := f.do(t, http.MethodGet, "/api/vault/tls/detail/websites?domain=shop.example.com", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "shop.example.com", data["domain"])
}

func TestDetailEndpointNotFound(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/api/vault/tls/detail/websites?domain=missing.example.com", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetByIDEndpoint(t *testing.T) {
	f := newServerFixture(t)
	cert := seedCert(f, "shop.example.com")

	rec := f.do(t, http.MethodGet, "/api/vault/tls/certificate/"+cert.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, cert.ID, data["id"])

	rec = f.do(t, http.MethodGet, "/api/vault/tls/certificate/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateEndpoint(t *testing.T) {
	f := newServerFixture(t)
	certPEM, keyPEM := certvaulttesting.GenerateLeafCertificate(t,
		"new.example.com", nil, 30*24*time.Hour)

	rec := f.do(t, http.MethodPost, "/api/vault/tls/create", map[string]interface{}{
		"domain":      "new.example.com",
		"certificate": string(certPEM),
		"private_key": string(keyPEM),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "database", data["store"])
	assert.Equal(t, "manual_add", data["source"])

	// The committed row travels to the worker as a parse event.
	parses := f.producer.EventsOfType(events.TypeCertificateParse)
	require.Len(t, parses, 1)
	assert.Equal(t, data["id"], parses[0].CertificateID)
}

func TestCreateEndpointValidation(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/vault/tls/create", map[string]interface{}{
		"domain": "new.example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeEnvelope(t, rec)["code"])
}

func TestCreateEndpointDuplicateConflict(t *testing.T) {
	f := newServerFixture(t)
	payload := map[string]interface{}{
		"domain":      "dup.example.com",
		"certificate": "CERT",
		"private_key": "KEY",
	}

	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/vault/tls/create", payload).Code)
	assert.Equal(t, http.StatusConflict, f.do(t, http.MethodPost, "/api/vault/tls/create", payload).Code)
}

func TestUpdateManualAddEndpoint(t *testing.T) {
	f := newServerFixture(t)
	cert := f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreDatabase, Domain: "db.example.com",
		Source: certstore.SourceManualAdd, Status: certstore.StatusSuccess,
	})

	rec := f.do(t, http.MethodPut, "/api/vault/tls/update/manual-add", map[string]interface{}{
		"id":    cert.ID,
		"email": "new@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "new@example.com", f.repo.Get(cert.ID).Email)
}

func TestUpdateEndpointRejectsAutoRow(t *testing.T) {
	f := newServerFixture(t)
	cert := seedCert(f, "auto.example.com")

	rec := f.do(t, http.MethodPut, "/api/vault/tls/update/manual-add", map[string]interface{}{
		"id":    cert.ID,
		"email": "new@example.com",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteEndpointCascades(t *testing.T) {
	f := newServerFixture(t)
	cert := seedCert(f, "gone.example.com")

	rec := f.do(t, http.MethodDelete, "/api/vault/tls/delete", map[string]interface{}{"id": cert.ID})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 0, f.repo.Len())
	deletes := f.producer.EventsOfType(events.TypeFolderDelete)
	require.Len(t, deletes, 1)
	assert.Equal(t, "gone.example.com", deletes[0].FolderName)
}

func TestApplyEndpoint(t *testing.T) {
	f := newServerFixture(t)
	certPEM, keyPEM := certvaulttesting.GenerateLeafCertificate(t,
		"applied.example.com", nil, 90*24*time.Hour)
	f.driver.result = &acme.IssueResult{CertificatePEM: certPEM, PrivateKeyPEM: keyPEM}

	rec := f.do(t, http.MethodPost, "/api/vault/tls/apply", map[string]interface{}{
		"domain":      "applied.example.com",
		"email":       "ops@example.com",
		"folder_name": "applied.example.com",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, "process", data["status"])

	f.svc.Drain()
	row := f.repo.Get(data["id"].(string))
	require.NotNil(t, row)
	assert.Equal(t, certstore.StatusSuccess, row.Status)
}

func TestApplyEndpointValidation(t *testing.T) {
	f := newServerFixture(t)

	// Missing email.
	rec := f.do(t, http.MethodPost, "/api/vault/tls/apply", map[string]interface{}{
		"domain":      "applied.example.com",
		"folder_name": "applied.example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing folder name.
	rec = f.do(t, http.MethodPost, "/api/vault/tls/apply", map[string]interface{}{
		"domain": "applied.example.com",
		"email":  "ops@example.com",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeEnvelope(t, rec)["code"])
}

func TestSearchEndpoint(t *testing.T) {
	f := newServerFixture(t)
	seedCert(f, "alpha.example.com")
	seedCert(f, "beta.example.com")

	rec := f.do(t, http.MethodPost, "/api/vault/tls/search", map[string]interface{}{
		"keyword": "alpha",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["total"])

	// A blank keyword is a validation rejection, not a full-table scan.
	rec = f.do(t, http.MethodPost, "/api/vault/tls/search", map[string]interface{}{
		"keyword": "",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/vault/tls/search", map[string]interface{}{
		"keyword": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/vault/tls/refresh/websites", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	refreshes := f.producer.EventsOfType(events.TypeOperationRefresh)
	require.Len(t, refreshes, 1)
	assert.Equal(t, events.TriggerAPI, refreshes[0].Trigger)

	// The database store has no pool directory to refresh.
	rec = f.do(t, http.MethodPost, "/api/vault/tls/refresh/database", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidateCacheEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/vault/tls/invalidate-cache/websites", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/vault/tls/invalidate-cache/all", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	invalidates := f.producer.EventsOfType(events.TypeCacheInvalidate)
	require.Len(t, invalidates, 2)
	assert.Len(t, invalidates[1].Stores, 3)

	rec = f.do(t, http.MethodPost, "/api/vault/tls/invalidate-cache/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFileEndpoints(t *testing.T) {
	f := newServerFixture(t)
	certvaulttesting.WritePoolFolder(t, f.root, "Websites", "shop.example.com",
		[]byte("CERT-PEM"), []byte("KEY-PEM"))

	rec := f.do(t, http.MethodGet, "/api/vault/file/list/websites", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeEnvelope(t, rec)["data"].([]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, "shop.example.com", entries[0].(map[string]interface{})["name"])

	rec = f.do(t, http.MethodGet, "/api/vault/file/content/websites?path=shop.example.com/cert.crt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CERT-PEM", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/vault/file/download/websites?path=shop.example.com/key.key", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "key.key")
	assert.Equal(t, "KEY-PEM", rec.Body.String())

	// Escapes are rejected before touching the filesystem.
	rec = f.do(t, http.MethodGet, "/api/vault/file/content/websites?path=../../etc/passwd", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestFileExportEndpoint(t *testing.T) {
	f := newServerFixture(t)
	seedCert(f, "exported.example.com")

	rec := f.do(t, http.MethodPost, "/api/vault/file/export/websites", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeEnvelope(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["exported"])
}

func TestChallengeEndpoint(t *testing.T) {
	f := newServerFixture(t)
	require.NoError(t, f.tokens.Set("tok123", "tok123.keyauth"))

	rec := f.do(t, http.MethodGet, "/.well-known/acme-challenge/tok123", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok123.keyauth", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	rec = f.do(t, http.MethodGet, "/.well-known/acme-challenge/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, decodeEnvelope(t, rec)["success"])
}

func TestHealthzEndpoint(t *testing.T) {
	f := newServerFixture(t)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var report health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, health.StatusHealthy, report.Status)
}
