package certstore

import (
	"context"
	"time"
)

// UpsertInput carries the fields written by the pool importer. The importer
// upserts by folder name so a re-import refreshes material without creating
// duplicate rows.
type UpsertInput struct {
	Store       Store
	Domain      string
	FolderName  string
	Source      Source
	Status      Status
	Email       string
	Certificate string
	PrivateKey  string
	SANs        SANList
	Issuer      string
	NotBefore   *time.Time
	NotAfter    *time.Time
	IsValid     bool
	Days        int
}

// ManualAddInput carries the fields of an operator-created reference row.
type ManualAddInput struct {
	Domain      string
	FolderName  string
	Email       string
	Certificate string
	PrivateKey  string
}

// Update describes a partial row update. Nil fields are left untouched.
type Update struct {
	Domain           *string
	FolderName       *string
	Email            *string
	Certificate      *string
	PrivateKey       *string
	Status           *Status
	LastErrorMessage *string
	LastErrorTime    *time.Time
}

// SearchQuery narrows a certificate search. Nil Store/Source match all.
type SearchQuery struct {
	Keyword string
	Store   *Store
	Source  *Source
	Offset  int
	Limit   int
}

// ParseResult carries the metadata extracted from a certificate's PEM,
// written back after a parse pass.
type ParseResult struct {
	Status        Status
	SANs          SANList
	Issuer        string
	NotBefore     *time.Time
	NotAfter      *time.Time
	IsValid       bool
	Days          int
	ErrorMessage  *string
	ErrorTime     *time.Time
}

// Repository is the persistence contract for certificate rows.
type Repository interface {
	// List returns one page of a store's certificates ordered by domain,
	// along with the total row count for that store.
	List(ctx context.Context, store Store, offset, limit int) (*Page, error)

	// Search returns certificates whose domain or folder name contains the
	// keyword, newest first, optionally narrowed by store and source.
	Search(ctx context.Context, q SearchQuery) (*Page, error)

	GetByID(ctx context.Context, id string) (*Certificate, error)
	GetByDomain(ctx context.Context, store Store, domain string) (*Certificate, error)
	GetByFolderName(ctx context.Context, folderName string) (*Certificate, error)

	// FindSibling locates the row matching (store, domain, source), used
	// by the exporter to upsert the database-store mirror of an auto
	// certificate. Returns ErrCertificateNotFound when absent.
	FindSibling(ctx context.Context, store Store, domain string, source Source) (*Certificate, error)

	// Upsert creates or refreshes a row keyed by folder name. An existing
	// row keeps its source; everything else in the input is written. On a
	// duplicate-key race with a concurrent insert the write is retried
	// once against the row that won.
	Upsert(ctx context.Context, in UpsertInput) (*Certificate, error)

	// UpsertSibling creates or refreshes the row keyed by (store, domain,
	// source), used by the exporter to maintain the auto mirror of an
	// exported certificate. Unlike Upsert it never touches a row with a
	// different source; a folder-name collision with an unrelated row is
	// a DuplicateFolderName conflict.
	UpsertSibling(ctx context.Context, in UpsertInput) (*Certificate, error)

	// CreateManualAdd inserts a manual_add row in the database store.
	// A second manual_add row for the same domain is a conflict.
	CreateManualAdd(ctx context.Context, in ManualAddInput) (*Certificate, error)

	// UpdateByID applies a partial update to a row.
	UpdateByID(ctx context.Context, id string, u Update) error

	// ClaimProcessing atomically moves a row to status process and returns
	// the status it held before. Returns ErrAlreadyProcessing when the row
	// is already in process; the check and the write share one transaction.
	ClaimProcessing(ctx context.Context, id string) (Status, error)

	// UpdateParseResult writes back the outcome of a parse pass.
	UpdateParseResult(ctx context.Context, id string, r ParseResult) error

	// UpdateAllDaysRemaining recomputes days_remaining and is_valid for
	// every row that has a not_after, relative to now. Returns the number
	// of rows touched.
	UpdateAllDaysRemaining(ctx context.Context, now time.Time) (int64, error)

	// ListRenewable returns auto-sourced rows with fewer than beforeDays
	// days remaining, the daily renewal candidates.
	ListRenewable(ctx context.Context, beforeDays int) ([]Certificate, error)

	DeleteByID(ctx context.Context, id string) error

	// Ping verifies database connectivity for health checks.
	Ping(ctx context.Context) error

	Close() error
}
