package certstore

import (
	"context"

	"github.com/jmoiron/sqlx"

	vaulterrors "github.com/albedosehen/certvault/internal/errors"
)

// schemaDDL creates the certificate table when it does not exist yet. The
// folder name is globally unique across stores but nullable: rows without a
// pool folder store NULL, and the unique index admits any number of NULLs.
// domain, source and folder_name carry single-column indexes for the lookup
// paths, and the (store, domain) pair backs the listing and detail queries.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS tls_certificates (
	id                 CHAR(36)     NOT NULL,
	store              VARCHAR(16)  NOT NULL,
	domain             VARCHAR(255) NOT NULL,
	folder_name        VARCHAR(255) NULL,
	source             VARCHAR(16)  NOT NULL,
	status             VARCHAR(16)  NOT NULL DEFAULT 'process',
	email              VARCHAR(255) NOT NULL DEFAULT '',
	certificate        MEDIUMTEXT,
	private_key        MEDIUMTEXT,
	sans               JSON         NULL,
	issuer             VARCHAR(255) NOT NULL DEFAULT '',
	not_before         DATETIME     NULL,
	not_after          DATETIME     NULL,
	is_valid           TINYINT(1)   NOT NULL DEFAULT 0,
	days_remaining     INT          NOT NULL DEFAULT 0,
	last_error_message TEXT         NULL,
	last_error_time    DATETIME     NULL,
	created_at         DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at         DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	PRIMARY KEY (id),
	UNIQUE KEY uq_folder_name (folder_name),
	KEY idx_store_domain (store, domain),
	KEY idx_domain (domain),
	KEY idx_folder_name (folder_name),
	KEY idx_source (source)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
`

// EnsureSchema creates the certificate table if missing.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return vaulterrors.NewStorageError(vaulterrors.ErrCodeDatabaseUnavailable, "ensure_schema", err)
	}
	return nil
}
