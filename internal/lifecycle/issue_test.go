package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albedosehen/certvault/internal/acme"
	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/events"
	certvaulttesting "github.com/albedosehen/certvault/internal/testing"
)

func issuedResult(t *testing.T, cn string, sans []string) *acme.IssueResult {
	t.Helper()
	certPEM, keyPEM := certvaulttesting.GenerateLeafCertificate(t, cn, sans, 90*24*time.Hour)
	return &acme.IssueResult{CertificatePEM: certPEM, PrivateKeyPEM: keyPEM}
}

func TestApplyIssuesInBackground(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.driver.result = issuedResult(t, "shop.example.com", []string{"shop.example.com"})

	placeholder, err := f.svc.Apply(ctx, ApplyInput{
		Domain:     "shop.example.com",
		Email:      "ops@example.com",
		FolderName: "shop.example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, certstore.StoreDatabase, placeholder.Store)
	assert.Equal(t, certstore.SourceManualApply, placeholder.Source)
	assert.Equal(t, certstore.StatusProcess, placeholder.Status)
	assert.Equal(t, "shop.example.com", placeholder.FolderName)

	f.svc.Drain()

	row := f.repo.Get(placeholder.ID)
	assert.Equal(t, certstore.StatusSuccess, row.Status)
	assert.NotEmpty(t, row.Certificate)
	assert.NotEmpty(t, row.PrivateKey)
	assert.True(t, row.IsValid)
	require.NotEmpty(t, row.SANs)
	assert.Equal(t, "shop.example.com", row.SANs[0])

	calls := f.driver.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"shop.example.com"}, calls[0].Domains)
	assert.Equal(t, "ops@example.com", calls[0].Email)

	invalidates := f.producer.EventsOfType(events.TypeCacheInvalidate)
	require.NotEmpty(t, invalidates)
	assert.Equal(t, []certstore.Store{certstore.StoreDatabase}, invalidates[len(invalidates)-1].Stores)
}

func TestApplyFailureRecordsError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.driver.err = errors.New("certbot exploded")

	placeholder, err := f.svc.Apply(ctx, ApplyInput{
		Domain:     "shop.example.com",
		Email:      "ops@example.com",
		FolderName: "shop.example.com",
	})
	require.NoError(t, err)

	f.svc.Drain()

	row := f.repo.Get(placeholder.ID)
	assert.Equal(t, certstore.StatusFail, row.Status)
	require.NotNil(t, row.LastErrorMessage)
	assert.Contains(t, *row.LastErrorMessage, "certbot exploded")
	require.NotNil(t, row.LastErrorTime)
}

func TestApplyRejectsInFlightRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreDatabase, Domain: "shop.example.com",
		FolderName: "shop.example.com", Source: certstore.SourceManualApply,
		Status: certstore.StatusProcess,
	})

	_, err := f.svc.Apply(ctx, ApplyInput{
		Domain: "shop.example.com", Email: "ops@example.com", FolderName: "shop.example.com",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, vaulterrors.ErrAlreadyProcessing)
	assert.Empty(t, f.driver.calls())
}

func TestApplyValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, ApplyInput{Email: "ops@example.com", FolderName: "f"})
	require.Error(t, err)

	_, err = f.svc.Apply(ctx, ApplyInput{Domain: "shop.example.com", FolderName: "f"})
	require.Error(t, err)

	// A folder name is mandatory; issuance has nowhere to land without it.
	_, err = f.svc.Apply(ctx, ApplyInput{Domain: "shop.example.com", Email: "ops@example.com"})
	require.Error(t, err)
	var verr *vaulterrors.VaultError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, vaulterrors.ErrCodeValidation, verr.Code)
	assert.Empty(t, f.driver.calls())
}

func TestApplyReusesExistingSibling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.driver.result = issuedResult(t, "shop.example.com", nil)

	cert := f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreDatabase, Domain: "shop.example.com",
		FolderName: "shop-old", Source: certstore.SourceManualApply,
		Status: certstore.StatusFail, Email: "old@example.com",
	})

	placeholder, err := f.svc.Apply(ctx, ApplyInput{
		Domain: "shop.example.com", Email: "ops@example.com", FolderName: "shop-new",
	})
	require.NoError(t, err)

	// The same row is claimed and retargeted, not a second one inserted.
	assert.Equal(t, cert.ID, placeholder.ID)
	assert.Equal(t, certstore.StatusProcess, placeholder.Status)
	assert.Equal(t, "shop-new", placeholder.FolderName)
	assert.Equal(t, "ops@example.com", placeholder.Email)

	f.svc.Drain()
	assert.Equal(t, certstore.StatusSuccess, f.repo.Get(cert.ID).Status)
}

func TestApplyGateAdmitsExactlyOne(t *testing.T) {
	f := newFixture(t)
	f.driver.result = issuedResult(t, "shop.example.com", nil)

	f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreDatabase, Domain: "shop.example.com",
		FolderName: "shop.example.com", Source: certstore.SourceManualApply,
		Status: certstore.StatusSuccess, Email: "ops@example.com",
	})

	// Hold the driver so the winner keeps the row in process while the
	// other callers hit the gate.
	f.driver.block = make(chan struct{})

	var admitted, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Apply(context.Background(), ApplyInput{
				Domain: "shop.example.com", Email: "ops@example.com", FolderName: "shop.example.com",
			})
			if err == nil {
				admitted.Add(1)
			} else if errors.Is(err, vaulterrors.ErrAlreadyProcessing) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	close(f.driver.block)
	f.svc.Drain()

	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, int32(7), rejected.Load())
	require.Len(t, f.driver.calls(), 1)
}

func TestReapplyAutoWritesPoolFolder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.driver.result = issuedResult(t, "shop.example.com", []string{"shop.example.com"})

	cert := f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreWebsites, Domain: "shop.example.com",
		FolderName: "shop.example.com", Source: certstore.SourceAuto,
		Status: certstore.StatusSuccess, Email: "ops@example.com",
		SANs: certstore.SANList{"shop.example.com"},
	})

	inFlight, err := f.svc.ReapplyAuto(ctx, ReapplyAutoInput{ID: cert.ID, ForceRenewal: true})
	require.NoError(t, err)
	assert.Equal(t, certstore.StatusProcess, inFlight.Status)

	f.svc.Drain()

	row := f.repo.Get(cert.ID)
	assert.Equal(t, certstore.StatusSuccess, row.Status)
	// Identity never changes on reapply_auto.
	assert.Equal(t, "shop.example.com", row.Domain)
	assert.Equal(t, "shop.example.com", row.FolderName)

	// The fresh material is mirrored into the pool folder.
	data, err := os.ReadFile(filepath.Join(f.root, "Websites", "shop.example.com", "cert.crt"))
	require.NoError(t, err)
	assert.Equal(t, row.Certificate, string(data))

	calls := f.driver.calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].ForceRenewal)
}

func TestReapplyAutoFailureRestoresStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.driver.err = errors.New("validation failed")

	cert := f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreWebsites, Domain: "shop.example.com",
		FolderName: "shop.example.com", Source: certstore.SourceAuto,
		Status: certstore.StatusFail, Email: "ops@example.com",
	})

	_, err := f.svc.ReapplyAuto(ctx, ReapplyAutoInput{ID: cert.ID})
	require.NoError(t, err)

	f.svc.Drain()

	row := f.repo.Get(cert.ID)
	// Back to the pre-call status, with the failure recorded.
	assert.Equal(t, certstore.StatusFail, row.Status)
	require.NotNil(t, row.LastErrorMessage)
	assert.Contains(t, *row.LastErrorMessage, "validation failed")
}

func TestReapplyAutoRejectsInFlightRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cert := f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreWebsites, Domain: "shop.example.com",
		FolderName: "shop.example.com", Source: certstore.SourceAuto,
		Status: certstore.StatusProcess,
	})

	_, err := f.svc.ReapplyAuto(ctx, ReapplyAutoInput{ID: cert.ID})
	assert.ErrorIs(t, err, vaulterrors.ErrAlreadyProcessing)
}

func TestReapplyAutoRejectsWrongSource(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cert := f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreDatabase, Domain: "shop.example.com",
		Source: certstore.SourceManualAdd, Status: certstore.StatusSuccess,
	})

	_, err := f.svc.ReapplyAuto(ctx, ReapplyAutoInput{ID: cert.ID})
	require.Error(t, err)
}

func TestReapplyManualApplyRetargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.driver.result = issuedResult(t, "new.example.com", []string{"new.example.com"})

	cert := f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreDatabase, Domain: "old.example.com",
		FolderName: "old.example.com", Source: certstore.SourceManualApply,
		Status: certstore.StatusSuccess, Email: "ops@example.com",
	})

	_, err := f.svc.ReapplyManualApply(ctx, ReapplyManualApplyInput{
		ID:         cert.ID,
		Domain:     "new.example.com",
		FolderName: "new.example.com",
	})
	require.NoError(t, err)

	f.svc.Drain()

	row := f.repo.Get(cert.ID)
	assert.Equal(t, certstore.StatusSuccess, row.Status)
	assert.Equal(t, "new.example.com", row.Domain)
	assert.Equal(t, "new.example.com", row.FolderName)

	calls := f.driver.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "new.example.com", calls[0].FolderName)
}

func TestReapplyManualAddReparsesInline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	certPEM, keyPEM := seedPEM(t, "shop.example.com", nil, 60*24*time.Hour)

	cert := f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreDatabase, Domain: "shop.example.com",
		Source: certstore.SourceManualAdd, Status: certstore.StatusSuccess,
		Certificate: "OLD", PrivateKey: "OLD-KEY",
	})

	updated, err := f.svc.ReapplyManualAdd(ctx, ReapplyManualAddInput{
		ID:          cert.ID,
		Certificate: certPEM,
		PrivateKey:  keyPEM,
	})
	require.NoError(t, err)

	assert.Equal(t, certstore.StatusSuccess, updated.Status)
	assert.Equal(t, certPEM, updated.Certificate)
	assert.True(t, updated.IsValid)
	// No ACME involvement for pasted material.
	assert.Empty(t, f.driver.calls())
}

func TestStatusGateAdmitsExactlyOne(t *testing.T) {
	f := newFixture(t)
	f.driver.result = issuedResult(t, "shop.example.com", nil)

	cert := f.repo.Seed(certstore.Certificate{
		Store: certstore.StoreWebsites, Domain: "shop.example.com",
		FolderName: "shop.example.com", Source: certstore.SourceAuto,
		Status: certstore.StatusSuccess, Email: "ops@example.com",
	})

	// Hold the driver so the winner keeps the row in process while the
	// other callers hit the gate.
	f.driver.block = make(chan struct{})

	var admitted, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ReapplyAuto(context.Background(), ReapplyAutoInput{ID: cert.ID})
			if err == nil {
				admitted.Add(1)
			} else if errors.Is(err, vaulterrors.ErrAlreadyProcessing) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	close(f.driver.block)
	f.svc.Drain()

	// One winner holds the gate; everyone else sees the conflict.
	assert.Equal(t, int32(1), admitted.Load())
	assert.Equal(t, int32(7), rejected.Load())
}
