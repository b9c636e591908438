// Package certstore persists certificate records in MySQL. It owns the
// canonical certificate row: PEM material, extracted metadata, lifecycle
// status, and the expiry counters the renewal loop works from.
package certstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	vaulterrors "github.com/albedosehen/certvault/internal/errors"
)

// Store identifies which certificate pool a record belongs to.
type Store string

const (
	// StoreWebsites holds certificates served by the website frontends.
	StoreWebsites Store = "websites"

	// StoreAPIs holds certificates served by the API gateways.
	StoreAPIs Store = "apis"

	// StoreDatabase holds certificates that exist only as database rows,
	// with no on-disk pool folder behind them.
	StoreDatabase Store = "database"
)

// Stores lists every valid store in a stable order.
var Stores = []Store{StoreWebsites, StoreAPIs, StoreDatabase}

// ParseStore validates a store name received from the outside.
func ParseStore(s string) (Store, error) {
	switch Store(s) {
	case StoreWebsites, StoreAPIs, StoreDatabase:
		return Store(s), nil
	}
	return "", vaulterrors.WrapError(
		vaulterrors.ErrCodeInvalidStore,
		fmt.Sprintf("invalid store %q: must be one of websites, apis, database", s),
		nil,
	)
}

// HasPoolDir reports whether the store is backed by an on-disk folder tree.
// The database store is row-only.
func (s Store) HasPoolDir() bool {
	return s == StoreWebsites || s == StoreAPIs
}

// DirName returns the capitalized on-disk directory name for the store
// ("Websites", "Apis"). Empty for the database store.
func (s Store) DirName() string {
	switch s {
	case StoreWebsites:
		return "Websites"
	case StoreAPIs:
		return "Apis"
	}
	return ""
}

func (s Store) String() string { return string(s) }

// Source records how a certificate entered the system.
type Source string

const (
	// SourceAuto marks certificates imported from the pool folders.
	SourceAuto Source = "auto"

	// SourceManualApply marks certificates the ACME driver issued on an
	// operator's request.
	SourceManualApply Source = "manual_apply"

	// SourceManualAdd marks certificates stored for reference only.
	SourceManualAdd Source = "manual_add"
)

// ParseSource validates a source name received from the outside.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceAuto, SourceManualApply, SourceManualAdd:
		return Source(s), nil
	}
	return "", vaulterrors.WrapError(
		vaulterrors.ErrCodeInvalidSource,
		fmt.Sprintf("invalid source %q: must be one of auto, manual_apply, manual_add", s),
		nil,
	)
}

func (s Source) String() string { return string(s) }

// Status tracks where a certificate is in its lifecycle.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFail    Status = "fail"

	// StatusProcess marks a row with an issuance or parse in flight.
	// Lifecycle operations refuse to start while a row holds it.
	StatusProcess Status = "process"
)

func (s Status) String() string { return string(s) }

// SANList is the subject-alternative-name list persisted as a JSON column.
// A nil list maps to SQL NULL; an empty non-nil list maps to "[]". The two
// are distinct: NULL means the certificate was never parsed, "[]" means it
// was parsed and carries no SAN extension.
type SANList []string

// Value implements driver.Valuer.
func (s SANList) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal([]string(s))
}

// Scan implements sql.Scanner.
func (s *SANList) Scan(src interface{}) error {
	if src == nil {
		*s = nil
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into SANList", src)
	}

	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("malformed sans column: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	*s = out
	return nil
}

// Certificate is one row of the tls_certificates table.
type Certificate struct {
	ID         string `db:"id" json:"id"`
	Store      Store  `db:"store" json:"store"`
	Domain     string `db:"domain" json:"domain"`
	FolderName string `db:"folder_name" json:"folder_name"`
	Source     Source `db:"source" json:"source"`
	Status     Status `db:"status" json:"status"`
	Email      string `db:"email" json:"email"`

	// Certificate and PrivateKey hold PEM-encoded material. Either may be
	// empty for rows imported before their folder held usable files.
	Certificate string `db:"certificate" json:"certificate"`
	PrivateKey  string `db:"private_key" json:"private_key"`

	SANs      SANList    `db:"sans" json:"sans"`
	Issuer    string     `db:"issuer" json:"issuer"`
	NotBefore *time.Time `db:"not_before" json:"not_before"`
	NotAfter  *time.Time `db:"not_after" json:"not_after"`

	// IsValid mirrors DaysRemaining >= 0 at the time of the last
	// recomputation. Both are refreshed together.
	IsValid       bool `db:"is_valid" json:"is_valid"`
	DaysRemaining int  `db:"days_remaining" json:"days_remaining"`

	LastErrorMessage *string    `db:"last_error_message" json:"last_error_message"`
	LastErrorTime    *time.Time `db:"last_error_time" json:"last_error_time"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// RecordFailure stamps the row with a failure message and flips status.
func (c *Certificate) RecordFailure(msg string, at time.Time) {
	c.Status = StatusFail
	c.LastErrorMessage = &msg
	c.LastErrorTime = &at
}

// Page holds one page of a certificate listing together with the total
// row count of the unbounded query.
type Page struct {
	Items  []Certificate `json:"items"`
	Total  int64         `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}
