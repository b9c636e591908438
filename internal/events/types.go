// Package events carries certificate lifecycle operations over Kafka. Every
// event is a JSON body with the event type in a message header, so consumers
// route without decoding first. Producers stamp a _timestamp field into the
// body at send time.
package events

import (
	"encoding/json"
	"time"

	vaulterrors "github.com/albedosehen/certvault/internal/errors"
)

// Type names one event in the catalogue.
type Type string

const (
	// TypeOperationRefresh asks the worker to re-import a store's pool
	// folders into the database.
	TypeOperationRefresh Type = "operation.refresh"

	// TypeCacheInvalidate asks the worker to drop cached projections for
	// the named stores.
	TypeCacheInvalidate Type = "cache.invalidate"

	// TypeCertificateParse asks the worker to re-extract metadata from a
	// certificate row's PEM.
	TypeCertificateParse Type = "certificate.parse"

	// TypeFolderDelete asks the worker to remove a pool folder from disk.
	TypeFolderDelete Type = "folder.delete"

	// TypeFileOrFolderDelete asks the worker to remove an arbitrary file
	// or folder below a store's pool directory.
	TypeFileOrFolderDelete Type = "file_or_folder.delete"

	// TypeCertificateExport asks the worker to write a certificate row's
	// material back into its pool folder.
	TypeCertificateExport Type = "certificate.export"
)

// TypeHeader is the Kafka header key carrying the event type.
const TypeHeader = "event_type"

// Trigger records what initiated an operation. Refresh handlers use it to
// break event loops: a refresh triggered by an event emits no further
// events.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
	TriggerStartup   Trigger = "startup"
	TriggerWatcher   Trigger = "watcher"
	TriggerEvent     Trigger = "event"

	// API-originated triggers; advisory metadata only, but kept distinct so
	// log lines say what the operator did.
	TriggerAPI    Trigger = "api"
	TriggerAdd    Trigger = "add"
	TriggerUpdate Trigger = "update"
	TriggerDelete Trigger = "delete"
)

// ItemType distinguishes file from folder deletions.
type ItemType string

const (
	ItemFile   ItemType = "file"
	ItemFolder ItemType = "folder"
)

// RefreshPayload is the body of operation.refresh.
type RefreshPayload struct {
	Store     string  `json:"store"`
	Trigger   Trigger `json:"trigger"`
	Timestamp string  `json:"_timestamp,omitempty"`
}

// CacheInvalidatePayload is the body of cache.invalidate.
type CacheInvalidatePayload struct {
	Stores    []string `json:"stores"`
	Trigger   Trigger  `json:"trigger"`
	Timestamp string   `json:"_timestamp,omitempty"`
}

// ParsePayload is the body of certificate.parse.
type ParsePayload struct {
	CertificateID string `json:"certificate_id"`
	Timestamp     string `json:"_timestamp,omitempty"`
}

// FolderDeletePayload is the body of folder.delete.
type FolderDeletePayload struct {
	Store      string `json:"store"`
	FolderName string `json:"folder_name"`
	Timestamp  string `json:"_timestamp,omitempty"`
}

// FileOrFolderDeletePayload is the body of file_or_folder.delete.
type FileOrFolderDeletePayload struct {
	Store     string   `json:"store"`
	Path      string   `json:"path"`
	ItemType  ItemType `json:"item_type"`
	Timestamp string   `json:"_timestamp,omitempty"`
}

// ExportPayload is the body of certificate.export.
type ExportPayload struct {
	CertificateID string `json:"certificate_id"`
	Timestamp     string `json:"_timestamp,omitempty"`
}

// stamp formats the producer-side timestamp.
func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// Decode unmarshals an event body into the given payload struct.
func Decode(data []byte, out interface{}) error {
	if err := json.Unmarshal(data, out); err != nil {
		return vaulterrors.NewEventError(vaulterrors.ErrCodeEventConsumeFailed, "decode", err)
	}
	return nil
}
