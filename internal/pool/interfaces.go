package pool

import (
	"context"
	"time"

	"github.com/albedosehen/certvault/internal/certstore"
	"github.com/albedosehen/certvault/internal/events"
)

// ImportReport summarizes one import pass over a store.
type ImportReport struct {
	Store     certstore.Store `json:"store"`
	Processed int             `json:"processed"`
	Failed    int             `json:"failed"`
	Skipped   int             `json:"skipped"`
}

// Importer walks a store's pool folders into database rows.
type Importer interface {
	// ImportStore scans every folder of the store and upserts one row per
	// usable folder. The trigger is propagated to the cache invalidation
	// emitted afterwards; a trigger of TriggerEvent suppresses all
	// emission to break event loops.
	ImportStore(ctx context.Context, store certstore.Store, trigger events.Trigger) (*ImportReport, error)
}

// ExportReport summarizes an export-all pass over a store.
type ExportReport struct {
	Store    certstore.Store `json:"store"`
	Exported int             `json:"exported"`
	Skipped  int             `json:"skipped"`
}

// Exporter writes certificate rows back into pool folders.
type Exporter interface {
	// ExportCertificate writes one row's material to its pool folder and
	// upserts the row's auto sibling.
	ExportCertificate(ctx context.Context, certificateID string) error

	// ExportStore exports every exportable row of a store.
	ExportStore(ctx context.Context, store certstore.Store) (*ExportReport, error)

	// WriteFolder writes raw material into a pool folder, creating it as
	// needed. Used directly by the renewal write-back.
	WriteFolder(store certstore.Store, folderName string, certPEM, keyPEM []byte) error
}

// Deleter removes pool entries.
type Deleter interface {
	// DeleteFolder removes one certificate folder. Missing folders are
	// not an error; deletion is idempotent.
	DeleteFolder(ctx context.Context, store certstore.Store, folderName string) error

	// DeleteFileOrFolder removes an arbitrary entry below the store
	// directory.
	DeleteFileOrFolder(ctx context.Context, store certstore.Store, rel string, itemType events.ItemType) error
}

// Entry is one directory listing element.
type Entry struct {
	Name    string    `json:"name"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Browser provides read-only access to a store's folder tree.
type Browser interface {
	List(ctx context.Context, store certstore.Store, rel string) ([]Entry, error)

	// ReadFile returns a file's content and its base name.
	ReadFile(ctx context.Context, store certstore.Store, rel string) ([]byte, string, error)
}

// Watcher observes the pool tree and emits refresh events on change.
type Watcher interface {
	// Run blocks watching until the context is canceled.
	Run(ctx context.Context) error

	Close() error
}
