// Package lifecycle is the certificate orchestrator. It decides which
// operations are legal for a row given its source and status, drives ACME
// issuance to completion on background goroutines, emits the bus events that
// keep the worker role and the caches in sync, and runs the daily renewal
// loop. Everything stateful lives in the store; the orchestrator holds no
// lock beyond the row's own status gate.
package lifecycle

import (
	"context"

	"github.com/albedosehen/certvault/internal/certstore"
)

// CreateInput creates a reference-only row from operator-pasted PEMs.
type CreateInput struct {
	Domain      string
	FolderName  string
	Email       string
	Certificate string
	PrivateKey  string
}

// ApplyInput requests ACME issuance for a new manual_apply row.
type ApplyInput struct {
	Domain string
	SANs   []string
	Email  string

	// FolderName names the pool folder issuance writes under. Required.
	FolderName string

	ForceRenewal bool
}

// UpdateManualAddInput is a partial update of a manual_add row. Nil fields
// are left untouched.
type UpdateManualAddInput struct {
	ID          string
	Domain      *string
	FolderName  *string
	Email       *string
	Certificate *string
	PrivateKey  *string
}

// UpdateManualApplyInput updates a manual_apply row. Only the folder name is
// mutable; the material belongs to the ACME driver.
type UpdateManualApplyInput struct {
	ID         string
	FolderName *string
}

// ReapplyAutoInput re-issues an auto row in place. Domain and folder name
// come from the row and cannot change.
type ReapplyAutoInput struct {
	ID           string
	Email        string
	SANs         []string
	ForceRenewal bool
}

// ReapplyManualApplyInput re-runs the apply flow with fresh inputs.
type ReapplyManualApplyInput struct {
	ID           string
	Domain       string
	FolderName   string
	Email        string
	SANs         []string
	ForceRenewal bool
}

// ReapplyManualAddInput replaces the pasted material of a manual_add row and
// re-parses it.
type ReapplyManualAddInput struct {
	ID          string
	Certificate string
	PrivateKey  string
}

// RenewalReport summarizes one pass of the daily renewal loop.
type RenewalReport struct {
	Recomputed int64 `json:"recomputed"`
	Candidates int   `json:"candidates"`
	Renewed    int   `json:"renewed"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
}

// Service is the application surface of the orchestrator. The HTTP adapter
// and the event worker both talk to this interface.
type Service interface {
	// List returns one page of a store's certificates, read through the
	// cache when it is warm.
	List(ctx context.Context, store certstore.Store, offset, limit int) (*certstore.Page, error)

	// Detail looks up a certificate by store and domain. A non-nil source
	// narrows to the row with that source and bypasses the cache.
	Detail(ctx context.Context, store certstore.Store, domain string, source *certstore.Source) (*certstore.Certificate, error)

	GetByID(ctx context.Context, id string) (*certstore.Certificate, error)

	Search(ctx context.Context, q certstore.SearchQuery) (*certstore.Page, error)

	// Create persists a manual_add row and schedules its async parse.
	Create(ctx context.Context, in CreateInput) (*certstore.Certificate, error)

	UpdateManualAdd(ctx context.Context, in UpdateManualAddInput) (*certstore.Certificate, error)
	UpdateManualApply(ctx context.Context, in UpdateManualApplyInput) (*certstore.Certificate, error)

	// Delete removes a row, cascading a folder.delete event for pool-backed
	// stores.
	Delete(ctx context.Context, id string) error

	// Apply creates or refreshes a manual_apply placeholder and drives ACME
	// issuance on a background goroutine. The returned row is the process
	// placeholder.
	Apply(ctx context.Context, in ApplyInput) (*certstore.Certificate, error)

	ReapplyAuto(ctx context.Context, in ReapplyAutoInput) (*certstore.Certificate, error)
	ReapplyManualApply(ctx context.Context, in ReapplyManualApplyInput) (*certstore.Certificate, error)
	ReapplyManualAdd(ctx context.Context, in ReapplyManualAddInput) (*certstore.Certificate, error)

	// ParseCertificate re-extracts metadata from a row's PEM and writes the
	// outcome back. Worker-side counterpart of the certificate.parse event.
	ParseCertificate(ctx context.Context, id string) error

	// Refresh asks the worker role to re-import a pool store.
	Refresh(ctx context.Context, store certstore.Store) error

	// InvalidateCache asks the worker role to drop cached projections.
	InvalidateCache(ctx context.Context, stores []certstore.Store) error

	// AutoRenew recomputes expiry counters and re-issues every auto row
	// within the renewal window. Runs daily from the scheduler.
	AutoRenew(ctx context.Context) (*RenewalReport, error)

	// Drain blocks until all background issuance goroutines finish. Called
	// during shutdown.
	Drain()
}
