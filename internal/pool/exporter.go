package pool

import (
	"context"
	"os"
	"path/filepath"

	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/observability"
)

// exporter implements Exporter.
type exporter struct {
	paths   *Paths
	repo    certstore.Repository
	logger  observability.Logger
	metrics observability.MetricsCollector
}

// NewExporter creates the pool exporter.
func NewExporter(
	paths *Paths,
	repo certstore.Repository,
	logger observability.Logger,
	metrics observability.MetricsCollector,
) Exporter {
	return &exporter{
		paths:   paths,
		repo:    repo,
		logger:  logger.WithFields(observability.Component("exporter")),
		metrics: metrics,
	}
}

func (e *exporter) ExportCertificate(ctx context.Context, certificateID string) error {
	cert, err := e.repo.GetByID(ctx, certificateID)
	if err != nil {
		return err
	}

	if err := exportable(cert); err != nil {
		e.metrics.RecordExport(cert.Store.String(), false)
		return err
	}

	if err := e.WriteFolder(cert.Store, cert.FolderName, []byte(cert.Certificate), []byte(cert.PrivateKey)); err != nil {
		e.metrics.RecordExport(cert.Store.String(), false)
		return err
	}

	// The exported material also lives on as the store's auto row so the
	// renewal loop picks it up. The origin row is never touched.
	if cert.Source != certstore.SourceAuto {
		_, err = e.repo.UpsertSibling(ctx, certstore.UpsertInput{
			Store:       cert.Store,
			Domain:      cert.Domain,
			FolderName:  cert.FolderName,
			Source:      certstore.SourceAuto,
			Status:      certstore.StatusSuccess,
			Email:       cert.Email,
			Certificate: cert.Certificate,
			PrivateKey:  cert.PrivateKey,
			SANs:        cert.SANs,
			Issuer:      cert.Issuer,
			NotBefore:   cert.NotBefore,
			NotAfter:    cert.NotAfter,
			IsValid:     cert.IsValid,
			Days:        cert.DaysRemaining,
		})
		if err != nil {
			if vaulterrors.IsConflict(err) {
				// The folder name belongs to a different lineage; the
				// files are on disk, only the mirror row is skipped.
				e.logger.Warn(ctx, "skipping auto sibling row, folder name is taken",
					observability.Domain(cert.Domain),
					observability.FolderName(cert.FolderName))
			} else {
				e.metrics.RecordExport(cert.Store.String(), false)
				return err
			}
		}
	}

	e.metrics.RecordExport(cert.Store.String(), true)
	e.logger.Info(ctx, "certificate exported to pool",
		observability.Store(cert.Store.String()),
		observability.Domain(cert.Domain),
		observability.FolderName(cert.FolderName))
	return nil
}

func (e *exporter) ExportStore(ctx context.Context, store certstore.Store) (*ExportReport, error) {
	if _, err := e.paths.StoreDir(store); err != nil {
		return nil, err
	}

	report := &ExportReport{Store: store}
	const pageSize = 100

	for offset := 0; ; offset += pageSize {
		page, err := e.repo.List(ctx, store, offset, pageSize)
		if err != nil {
			return nil, err
		}

		for i := range page.Items {
			cert := &page.Items[i]
			if exportable(cert) != nil {
				report.Skipped++
				continue
			}
			if err := e.ExportCertificate(ctx, cert.ID); err != nil {
				e.logger.Error(ctx, err, "failed to export certificate",
					observability.CertificateID(cert.ID),
					observability.Domain(cert.Domain))
				report.Skipped++
				continue
			}
			report.Exported++
		}

		if offset+pageSize >= int(page.Total) {
			break
		}
	}

	return report, nil
}

func (e *exporter) WriteFolder(store certstore.Store, folderName string, certPEM, keyPEM []byte) error {
	dir, err := e.paths.FolderDir(store, folderName)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return vaulterrors.NewPoolError(vaulterrors.ErrCodePoolWriteFailed, dir, err)
	}

	certPath := filepath.Join(dir, CertFileName)
	if err := os.WriteFile(certPath, certPEM, 0o644); err != nil {
		return vaulterrors.NewPoolError(vaulterrors.ErrCodePoolWriteFailed, certPath, err)
	}

	keyPath := filepath.Join(dir, KeyFileName)
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		return vaulterrors.NewPoolError(vaulterrors.ErrCodePoolWriteFailed, keyPath, err)
	}

	return nil
}

// exportable checks the row carries everything a pool folder needs.
func exportable(cert *certstore.Certificate) error {
	switch {
	case !cert.Store.HasPoolDir():
		return vaulterrors.NewValidationError("store",
			"store "+cert.Store.String()+" has no pool directory to export into")
	case cert.Certificate == "":
		return vaulterrors.NewValidationError("certificate", "certificate PEM is empty")
	case cert.PrivateKey == "":
		return vaulterrors.NewValidationError("private_key", "private key PEM is empty")
	case cert.FolderName == "":
		return vaulterrors.NewValidationError("folder_name", "folder name is empty")
	}
	return nil
}
