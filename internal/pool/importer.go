package pool

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/observability"
	"github.com/albedosehen/certvault/internal/pki"
)

// importer implements Importer.
type importer struct {
	paths    *Paths
	repo     certstore.Repository
	parser   pki.Parser
	producer events.Producer
	logger   observability.Logger
	metrics  observability.MetricsCollector
}

// NewImporter creates the pool importer.
func NewImporter(
	paths *Paths,
	repo certstore.Repository,
	parser pki.Parser,
	producer events.Producer,
	logger observability.Logger,
	metrics observability.MetricsCollector,
) Importer {
	return &importer{
		paths:    paths,
		repo:     repo,
		parser:   parser,
		producer: producer,
		logger:   logger.WithFields(observability.Component("importer")),
		metrics:  metrics,
	}
}

func (im *importer) ImportStore(ctx context.Context, store certstore.Store, trigger events.Trigger) (*ImportReport, error) {
	storeDir, err := im.paths.StoreDir(store)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{Store: store}

	entries, err := os.ReadDir(storeDir)
	if err != nil {
		if os.IsNotExist(err) {
			// A store directory that was never created holds nothing to
			// import.
			im.logger.Warn(ctx, "store directory does not exist, nothing to import",
				observability.Store(store.String()),
				observability.Path(storeDir))
			return report, nil
		}
		return nil, vaulterrors.NewPoolError(vaulterrors.ErrCodeFolderNotFound, storeDir, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		im.importFolder(ctx, store, storeDir, entry.Name(), report)
	}

	im.metrics.RecordImport(store.String(), report.Processed, report.Failed)
	im.logger.Info(ctx, "pool import finished",
		observability.Store(store.String()),
		observability.Trigger(string(trigger)),
		observability.Int("processed", report.Processed),
		observability.Int("failed", report.Failed),
		observability.Int("skipped", report.Skipped))

	// A refresh caused by a bus event must not emit again, or two workers
	// would ping-pong refreshes forever.
	if trigger != events.TriggerEvent {
		if err := im.producer.PublishCacheInvalidate(ctx, []certstore.Store{store}, trigger); err != nil {
			im.logger.Error(ctx, err, "failed to emit cache invalidation after import",
				observability.Store(store.String()))
		}
	}

	return report, nil
}

func (im *importer) importFolder(ctx context.Context, store certstore.Store, storeDir, folderName string, report *ImportReport) {
	folderDir := filepath.Join(storeDir, folderName)

	certPEM, err := os.ReadFile(filepath.Join(folderDir, CertFileName))
	if err != nil {
		im.logger.Debug(ctx, "folder has no certificate file, skipping",
			observability.FolderName(folderName))
		report.Skipped++
		return
	}

	keyPEM, err := os.ReadFile(filepath.Join(folderDir, KeyFileName))
	if err != nil {
		im.logger.Debug(ctx, "folder has no key file, skipping",
			observability.FolderName(folderName))
		report.Skipped++
		return
	}

	info, err := im.parser.Parse(certPEM)
	if err != nil {
		im.logger.Warn(ctx, "certificate in folder does not parse",
			observability.FolderName(folderName),
			observability.Error(err))
		report.Failed++
		return
	}

	if info.CommonName == "" {
		im.logger.Warn(ctx, "certificate has no common name, skipping folder",
			observability.FolderName(folderName))
		report.Skipped++
		return
	}

	_, err = im.repo.Upsert(ctx, certstore.UpsertInput{
		Store:       store,
		Domain:      info.CommonName,
		FolderName:  folderName,
		Source:      certstore.SourceAuto,
		Status:      certstore.StatusSuccess,
		Certificate: string(certPEM),
		PrivateKey:  string(keyPEM),
		SANs:        certstore.SANList(info.AllDomains),
		Issuer:      info.Issuer,
		NotBefore:   &info.NotBefore,
		NotAfter:    &info.NotAfter,
		IsValid:     info.IsValid,
		Days:        info.DaysRemaining,
	})
	if err != nil {
		im.logger.Error(ctx, err, "failed to persist imported folder",
			observability.FolderName(folderName),
			observability.Domain(info.CommonName))
		report.Failed++
		return
	}

	report.Processed++
}
