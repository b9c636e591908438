package certstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/albedosehen/certvault/internal/config"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/observability"
)

// folder_name is NULL for rows without a pool folder; it reads back as the
// empty string so the model stays a plain string.
const certColumns = `id, store, domain, COALESCE(folder_name, '') AS folder_name, source, status, email,
	certificate, private_key, sans, issuer, not_before, not_after,
	is_valid, days_remaining, last_error_message, last_error_time,
	created_at, updated_at`

// mysqlRepository implements Repository on a sqlx MySQL handle.
type mysqlRepository struct {
	db     *sqlx.DB
	logger observability.Logger
	now    func() time.Time
}

// OpenDB connects to MySQL and applies the configured pool limits.
func OpenDB(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "mysql", cfg.DSN())
	if err != nil {
		return nil, vaulterrors.NewStorageError(vaulterrors.ErrCodeDatabaseUnavailable, "connect", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// NewMySQLRepository wraps a connected handle in the Repository contract and
// ensures the schema exists.
func NewMySQLRepository(ctx context.Context, db *sqlx.DB, logger observability.Logger) (Repository, error) {
	if err := EnsureSchema(ctx, db); err != nil {
		return nil, err
	}

	return &mysqlRepository{
		db:     db,
		logger: logger.WithFields(observability.Component("certstore")),
		now:    time.Now,
	}, nil
}

func (r *mysqlRepository) List(ctx context.Context, store Store, offset, limit int) (*Page, error) {
	var total int64
	err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM tls_certificates WHERE store = ?`, store)
	if err != nil {
		return nil, storageErr("list_count", err)
	}

	items := []Certificate{}
	err = r.db.SelectContext(ctx, &items,
		fmt.Sprintf(`SELECT %s FROM tls_certificates WHERE store = ? ORDER BY domain, id LIMIT ? OFFSET ?`, certColumns),
		store, limit, offset)
	if err != nil {
		return nil, storageErr("list", err)
	}

	return &Page{Items: items, Total: total, Offset: offset, Limit: limit}, nil
}

func (r *mysqlRepository) Search(ctx context.Context, q SearchQuery) (*Page, error) {
	pattern := "%" + escapeLike(q.Keyword) + "%"

	where := `(domain LIKE ? ESCAPE '\\' OR folder_name LIKE ? ESCAPE '\\')`
	args := []interface{}{pattern, pattern}
	if q.Store != nil {
		where += ` AND store = ?`
		args = append(args, *q.Store)
	}
	if q.Source != nil {
		where += ` AND source = ?`
		args = append(args, *q.Source)
	}

	var total int64
	err := r.db.GetContext(ctx, &total,
		`SELECT COUNT(*) FROM tls_certificates WHERE `+where, args...)
	if err != nil {
		return nil, storageErr("search_count", err)
	}

	items := []Certificate{}
	err = r.db.SelectContext(ctx, &items,
		fmt.Sprintf(`SELECT %s FROM tls_certificates WHERE %s ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, certColumns, where),
		append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, storageErr("search", err)
	}

	return &Page{Items: items, Total: total, Offset: q.Offset, Limit: q.Limit}, nil
}

func (r *mysqlRepository) GetByID(ctx context.Context, id string) (*Certificate, error) {
	return r.getOne(ctx,
		fmt.Sprintf(`SELECT %s FROM tls_certificates WHERE id = ?`, certColumns), id)
}

func (r *mysqlRepository) GetByDomain(ctx context.Context, store Store, domain string) (*Certificate, error) {
	return r.getOne(ctx,
		fmt.Sprintf(`SELECT %s FROM tls_certificates WHERE store = ? AND domain = ? ORDER BY updated_at DESC LIMIT 1`, certColumns),
		store, domain)
}

func (r *mysqlRepository) GetByFolderName(ctx context.Context, folderName string) (*Certificate, error) {
	// NULL never equals anything, so folderless rows are unreachable here.
	if folderName == "" {
		return nil, vaulterrors.ErrCertificateNotFound
	}
	return r.getOne(ctx,
		fmt.Sprintf(`SELECT %s FROM tls_certificates WHERE folder_name = ?`, certColumns), folderName)
}

func (r *mysqlRepository) FindSibling(ctx context.Context, store Store, domain string, source Source) (*Certificate, error) {
	return r.getOne(ctx,
		fmt.Sprintf(`SELECT %s FROM tls_certificates WHERE store = ? AND domain = ? AND source = ? LIMIT 1`, certColumns),
		store, domain, source)
}

func (r *mysqlRepository) getOne(ctx context.Context, query string, args ...interface{}) (*Certificate, error) {
	var cert Certificate
	err := r.db.GetContext(ctx, &cert, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, vaulterrors.ErrCertificateNotFound
	}
	if err != nil {
		return nil, storageErr("get", err)
	}
	return &cert, nil
}

func (r *mysqlRepository) Upsert(ctx context.Context, in UpsertInput) (*Certificate, error) {
	cert, err := r.upsertOnce(ctx, in)
	if err == nil || !isDuplicateKey(err) {
		return cert, err
	}

	// Lost the race against a concurrent insert for the same folder name.
	// The winning row exists now, so a second pass takes the update path.
	r.logger.Debug(ctx, "upsert retry after duplicate key",
		observability.FolderName(in.FolderName))
	return r.upsertOnce(ctx, in)
}

func (r *mysqlRepository) upsertOnce(ctx context.Context, in UpsertInput) (*Certificate, error) {
	existing, err := r.GetByFolderName(ctx, in.FolderName)
	if err != nil && !vaulterrors.IsNotFound(err) {
		return nil, err
	}

	if existing != nil {
		// An imported folder never changes how the row originally entered
		// the system, so source stays as stored.
		_, err = r.db.ExecContext(ctx, `
			UPDATE tls_certificates SET
				store = ?, domain = ?, status = ?,
				certificate = ?, private_key = ?, sans = ?, issuer = ?,
				not_before = ?, not_after = ?, is_valid = ?, days_remaining = ?
			WHERE id = ?`,
			in.Store, in.Domain, in.Status,
			in.Certificate, in.PrivateKey, in.SANs, in.Issuer,
			in.NotBefore, in.NotAfter, in.IsValid, in.Days,
			existing.ID)
		if err != nil {
			return nil, storageErr("upsert_update", err)
		}
		return r.GetByID(ctx, existing.ID)
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tls_certificates
			(id, store, domain, folder_name, source, status, email,
			 certificate, private_key, sans, issuer,
			 not_before, not_after, is_valid, days_remaining)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, '', ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.Store, in.Domain, in.FolderName, in.Source, in.Status,
		in.Certificate, in.PrivateKey, in.SANs, in.Issuer,
		in.NotBefore, in.NotAfter, in.IsValid, in.Days)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, err
		}
		return nil, storageErr("upsert_insert", err)
	}

	return r.GetByID(ctx, id)
}

func (r *mysqlRepository) UpsertSibling(ctx context.Context, in UpsertInput) (*Certificate, error) {
	existing, err := r.FindSibling(ctx, in.Store, in.Domain, in.Source)
	if err != nil && !vaulterrors.IsNotFound(err) {
		return nil, err
	}

	if existing != nil {
		_, err = r.db.ExecContext(ctx, `
			UPDATE tls_certificates SET
				folder_name = NULLIF(?, ''), status = ?, email = ?,
				certificate = ?, private_key = ?, sans = ?, issuer = ?,
				not_before = ?, not_after = ?, is_valid = ?, days_remaining = ?
			WHERE id = ?`,
			in.FolderName, in.Status, in.Email,
			in.Certificate, in.PrivateKey, in.SANs, in.Issuer,
			in.NotBefore, in.NotAfter, in.IsValid, in.Days,
			existing.ID)
		if err != nil {
			if isDuplicateKey(err) {
				return nil, vaulterrors.WrapError(
					vaulterrors.ErrCodeDuplicateFolderName,
					fmt.Sprintf("folder name %s belongs to another certificate", in.FolderName),
					err,
				)
			}
			return nil, storageErr("upsert_sibling_update", err)
		}
		return r.GetByID(ctx, existing.ID)
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tls_certificates
			(id, store, domain, folder_name, source, status, email,
			 certificate, private_key, sans, issuer,
			 not_before, not_after, is_valid, days_remaining)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, in.Store, in.Domain, in.FolderName, in.Source, in.Status, in.Email,
		in.Certificate, in.PrivateKey, in.SANs, in.Issuer,
		in.NotBefore, in.NotAfter, in.IsValid, in.Days)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, vaulterrors.WrapError(
				vaulterrors.ErrCodeDuplicateFolderName,
				fmt.Sprintf("folder name %s belongs to another certificate", in.FolderName),
				err,
			)
		}
		return nil, storageErr("upsert_sibling_insert", err)
	}

	return r.GetByID(ctx, id)
}

func (r *mysqlRepository) CreateManualAdd(ctx context.Context, in ManualAddInput) (*Certificate, error) {
	existing, err := r.FindSibling(ctx, StoreDatabase, in.Domain, SourceManualAdd)
	if err != nil && !vaulterrors.IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		return nil, vaulterrors.WrapError(
			vaulterrors.ErrCodeDuplicateCertificate,
			fmt.Sprintf("a manually added certificate for domain %s already exists", in.Domain),
			nil,
		)
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tls_certificates
			(id, store, domain, folder_name, source, status, email,
			 certificate, private_key)
		VALUES (?, ?, ?, NULLIF(?, ''), ?, ?, ?, ?, ?)`,
		id, StoreDatabase, in.Domain, in.FolderName, SourceManualAdd, StatusProcess,
		in.Email, in.Certificate, in.PrivateKey)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, vaulterrors.WrapError(
				vaulterrors.ErrCodeDuplicateFolderName,
				fmt.Sprintf("folder name %s is already in use", in.FolderName),
				err,
			)
		}
		return nil, storageErr("create_manual_add", err)
	}

	return r.GetByID(ctx, id)
}

func (r *mysqlRepository) UpdateByID(ctx context.Context, id string, u Update) error {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)

	add := func(column string, value interface{}) {
		set = append(set, column+" = ?")
		args = append(args, value)
	}

	if u.Domain != nil {
		add("domain", *u.Domain)
	}
	if u.FolderName != nil {
		set = append(set, "folder_name = NULLIF(?, '')")
		args = append(args, *u.FolderName)
	}
	if u.Email != nil {
		add("email", *u.Email)
	}
	if u.Certificate != nil {
		add("certificate", *u.Certificate)
	}
	if u.PrivateKey != nil {
		add("private_key", *u.PrivateKey)
	}
	if u.Status != nil {
		add("status", *u.Status)
	}
	if u.LastErrorMessage != nil {
		add("last_error_message", *u.LastErrorMessage)
	}
	if u.LastErrorTime != nil {
		add("last_error_time", *u.LastErrorTime)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	res, err := r.db.ExecContext(ctx,
		`UPDATE tls_certificates SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isDuplicateKey(err) {
			return vaulterrors.WrapError(
				vaulterrors.ErrCodeDuplicateFolderName,
				"folder name is already in use",
				err,
			)
		}
		return storageErr("update", err)
	}

	return requireRow(res)
}

func (r *mysqlRepository) ClaimProcessing(ctx context.Context, id string) (Status, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", storageErr("claim_begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status Status
	err = tx.GetContext(ctx, &status,
		`SELECT status FROM tls_certificates WHERE id = ? FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", vaulterrors.ErrCertificateNotFound
	}
	if err != nil {
		return "", storageErr("claim_select", err)
	}

	if status == StatusProcess {
		return "", vaulterrors.ErrAlreadyProcessing
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tls_certificates SET status = ? WHERE id = ?`, StatusProcess, id)
	if err != nil {
		return "", storageErr("claim_update", err)
	}

	if err := tx.Commit(); err != nil {
		return "", storageErr("claim_commit", err)
	}

	return status, nil
}

func (r *mysqlRepository) UpdateParseResult(ctx context.Context, id string, p ParseResult) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tls_certificates SET
			status = ?, sans = ?, issuer = ?,
			not_before = ?, not_after = ?, is_valid = ?, days_remaining = ?,
			last_error_message = ?, last_error_time = ?
		WHERE id = ?`,
		p.Status, p.SANs, p.Issuer,
		p.NotBefore, p.NotAfter, p.IsValid, p.Days,
		p.ErrorMessage, p.ErrorTime,
		id)
	if err != nil {
		return storageErr("update_parse_result", err)
	}
	return requireRow(res)
}

func (r *mysqlRepository) UpdateAllDaysRemaining(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tls_certificates SET
			days_remaining = FLOOR(TIMESTAMPDIFF(SECOND, ?, not_after) / 86400),
			is_valid = (not_after >= ?)
		WHERE not_after IS NOT NULL`,
		now.UTC(), now.UTC())
	if err != nil {
		return 0, storageErr("update_days_remaining", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("update_days_remaining", err)
	}
	return n, nil
}

func (r *mysqlRepository) ListRenewable(ctx context.Context, beforeDays int) ([]Certificate, error) {
	items := []Certificate{}
	err := r.db.SelectContext(ctx, &items,
		fmt.Sprintf(`SELECT %s FROM tls_certificates
			WHERE source = ? AND days_remaining < ? AND not_after IS NOT NULL
			ORDER BY days_remaining, domain`, certColumns),
		SourceAuto, beforeDays)
	if err != nil {
		return nil, storageErr("list_renewable", err)
	}
	return items, nil
}

func (r *mysqlRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tls_certificates WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete", err)
	}
	return requireRow(res)
}

func (r *mysqlRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return vaulterrors.NewStorageError(vaulterrors.ErrCodeDatabaseUnavailable, "ping", err)
	}
	return nil
}

func (r *mysqlRepository) Close() error {
	return r.db.Close()
}

// requireRow maps a zero-row update or delete to a not-found error.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("rows_affected", err)
	}
	if n == 0 {
		return vaulterrors.ErrCertificateNotFound
	}
	return nil
}

func storageErr(op string, err error) error {
	return vaulterrors.NewStorageError(vaulterrors.ErrCodeDatabaseUnavailable, op, err)
}

// isDuplicateKey reports MySQL error 1062 (ER_DUP_ENTRY).
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// escapeLike escapes the LIKE metacharacters in a user-supplied query.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
