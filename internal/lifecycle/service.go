package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/albedosehen/certvault/internal/acme"
	"github.com/albedosehen/certvault/internal/certcache"
	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/observability"
	"github.com/albedosehen/certvault/internal/pki"
	"github.com/albedosehen/certvault/internal/pool"
)

const (
	// maxPageSize bounds list and search pages.
	maxPageSize = 100

	// renewBeforeDays is the default renewal window: auto rows with fewer
	// days remaining are re-issued by the daily loop.
	renewBeforeDays = 10
)

type service struct {
	repo     certstore.Repository
	cache    certcache.Cache
	driver   acme.Driver
	parser   pki.Parser
	producer events.Producer
	exporter pool.Exporter
	logger   observability.Logger
	metrics  observability.MetricsCollector
	now      func() time.Time

	renewBefore int

	bg sync.WaitGroup
}

// NewService creates the orchestrator. A non-positive renewBefore falls back
// to the default window.
func NewService(
	repo certstore.Repository,
	cache certcache.Cache,
	driver acme.Driver,
	parser pki.Parser,
	producer events.Producer,
	exporter pool.Exporter,
	logger observability.Logger,
	metrics observability.MetricsCollector,
	renewBefore int,
) Service {
	if renewBefore <= 0 {
		renewBefore = renewBeforeDays
	}
	return &service{
		repo:        repo,
		cache:       cache,
		driver:      driver,
		parser:      parser,
		producer:    producer,
		exporter:    exporter,
		logger:      logger.WithFields(observability.Component("lifecycle")),
		metrics:     metrics,
		now:         time.Now,
		renewBefore: renewBefore,
	}
}

func (s *service) List(ctx context.Context, store certstore.Store, offset, limit int) (*certstore.Page, error) {
	if offset < 0 {
		return nil, vaulterrors.NewValidationError("offset", "offset must not be negative")
	}
	if limit < 1 || limit > maxPageSize {
		return nil, vaulterrors.NewValidationError("limit",
			fmt.Sprintf("limit must be between 1 and %d", maxPageSize))
	}

	if page, ok := s.cache.GetList(ctx, store, offset, limit); ok {
		return page, nil
	}

	page, err := s.repo.List(ctx, store, offset, limit)
	if err != nil {
		return nil, err
	}
	s.cache.SetList(ctx, store, offset, limit, page)
	return page, nil
}

func (s *service) Detail(ctx context.Context, store certstore.Store, domain string, source *certstore.Source) (*certstore.Certificate, error) {
	if domain == "" {
		return nil, vaulterrors.NewValidationError("domain", "domain is required")
	}

	// A source-narrowed lookup is an operator drill-down; it skips the
	// cache, whose detail key carries no source.
	if source != nil {
		return s.repo.FindSibling(ctx, store, domain, *source)
	}

	if cert, ok := s.cache.GetDetail(ctx, store, domain); ok {
		return cert, nil
	}

	cert, err := s.repo.GetByDomain(ctx, store, domain)
	if err != nil {
		return nil, err
	}
	s.cache.SetDetail(ctx, store, domain, cert)
	return cert, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*certstore.Certificate, error) {
	if id == "" {
		return nil, vaulterrors.NewValidationError("id", "id is required")
	}
	return s.repo.GetByID(ctx, id)
}

func (s *service) Search(ctx context.Context, q certstore.SearchQuery) (*certstore.Page, error) {
	if strings.TrimSpace(q.Keyword) == "" {
		return nil, vaulterrors.NewValidationError("keyword", "keyword must not be blank")
	}
	if q.Offset < 0 {
		return nil, vaulterrors.NewValidationError("offset", "offset must not be negative")
	}
	if q.Limit < 1 || q.Limit > maxPageSize {
		return nil, vaulterrors.NewValidationError("limit",
			fmt.Sprintf("limit must be between 1 and %d", maxPageSize))
	}
	return s.repo.Search(ctx, q)
}

func (s *service) Create(ctx context.Context, in CreateInput) (*certstore.Certificate, error) {
	switch {
	case in.Domain == "":
		return nil, vaulterrors.NewValidationError("domain", "domain is required")
	case in.Certificate == "":
		return nil, vaulterrors.NewValidationError("certificate", "certificate PEM is required")
	case in.PrivateKey == "":
		return nil, vaulterrors.NewValidationError("private_key", "private key PEM is required")
	}

	cert, err := s.repo.CreateManualAdd(ctx, certstore.ManualAddInput{
		Domain:      in.Domain,
		FolderName:  in.FolderName,
		Email:       in.Email,
		Certificate: in.Certificate,
		PrivateKey:  in.PrivateKey,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "manual certificate created",
		observability.CertificateID(cert.ID),
		observability.Domain(cert.Domain))

	// The parse event must follow the committed row or the worker races a
	// row it cannot see yet.
	if err := s.producer.PublishCacheInvalidate(ctx, []certstore.Store{certstore.StoreDatabase}, events.TriggerAdd); err != nil {
		return nil, err
	}
	if err := s.producer.PublishParse(ctx, cert.ID); err != nil {
		return nil, err
	}

	return cert, nil
}

func (s *service) UpdateManualAdd(ctx context.Context, in UpdateManualAddInput) (*certstore.Certificate, error) {
	cert, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if err := requireSource(cert, certstore.SourceManualAdd); err != nil {
		return nil, err
	}

	update := certstore.Update{
		Domain:      in.Domain,
		FolderName:  in.FolderName,
		Email:       in.Email,
		Certificate: in.Certificate,
		PrivateKey:  in.PrivateKey,
	}

	// Touching the material invalidates everything parsed from it; the row
	// goes back in flight until the worker re-parses.
	reparse := in.Certificate != nil
	if reparse {
		status := certstore.StatusProcess
		update.Status = &status
	}

	if err := s.repo.UpdateByID(ctx, in.ID, update); err != nil {
		return nil, err
	}

	if reparse {
		if err := s.producer.PublishParse(ctx, in.ID); err != nil {
			return nil, err
		}
	}
	if err := s.emitUpdated(ctx, cert.Store); err != nil {
		return nil, err
	}

	return s.repo.GetByID(ctx, in.ID)
}

func (s *service) UpdateManualApply(ctx context.Context, in UpdateManualApplyInput) (*certstore.Certificate, error) {
	cert, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if err := requireSource(cert, certstore.SourceManualApply); err != nil {
		return nil, err
	}
	if in.FolderName == nil {
		return nil, vaulterrors.NewValidationError("folder_name", "no fields to update")
	}
	if *in.FolderName == "" {
		return nil, vaulterrors.NewValidationError("folder_name", "folder_name must not be empty")
	}

	if err := s.repo.UpdateByID(ctx, in.ID, certstore.Update{FolderName: in.FolderName}); err != nil {
		return nil, err
	}
	if err := s.emitUpdated(ctx, cert.Store); err != nil {
		return nil, err
	}

	return s.repo.GetByID(ctx, in.ID)
}

func (s *service) Delete(ctx context.Context, id string) error {
	cert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return err
	}

	s.logger.Info(ctx, "certificate deleted",
		observability.CertificateID(id),
		observability.Domain(cert.Domain),
		observability.Store(cert.Store.String()))

	if cert.Store.HasPoolDir() && cert.FolderName != "" {
		if err := s.producer.PublishFolderDelete(ctx, cert.Store, cert.FolderName); err != nil {
			return err
		}
	}

	// Every store: a deleted row may have been exported or mirrored across
	// stores, so all listings are suspect.
	return s.producer.PublishCacheInvalidate(ctx, certstore.Stores, events.TriggerDelete)
}

func (s *service) ParseCertificate(ctx context.Context, id string) error {
	cert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if cert.Certificate == "" {
		return s.repo.UpdateParseResult(ctx, id, s.parseFailure("no certificate material to parse"))
	}

	info, err := s.parser.Parse([]byte(cert.Certificate))
	if err != nil {
		s.logger.Warn(ctx, "certificate does not parse",
			observability.CertificateID(id),
			observability.Error(err))
		return s.repo.UpdateParseResult(ctx, id, s.parseFailure(err.Error()))
	}

	if info.CommonName != cert.Domain {
		return s.repo.UpdateParseResult(ctx, id, s.parseFailure(
			fmt.Sprintf("certificate common name %q does not match domain %q", info.CommonName, cert.Domain)))
	}

	s.metrics.SetCertificateExpiry(cert.Domain, info.NotAfter)

	return s.repo.UpdateParseResult(ctx, id, certstore.ParseResult{
		Status:    certstore.StatusSuccess,
		SANs:      certstore.SANList(info.AllDomains),
		Issuer:    info.Issuer,
		NotBefore: &info.NotBefore,
		NotAfter:  &info.NotAfter,
		IsValid:   info.IsValid,
		Days:      info.DaysRemaining,
	})
}

func (s *service) Refresh(ctx context.Context, store certstore.Store) error {
	if !store.HasPoolDir() {
		return vaulterrors.NewValidationError("store",
			"store "+store.String()+" has no pool to refresh")
	}
	return s.producer.PublishRefresh(ctx, store, events.TriggerAPI)
}

func (s *service) InvalidateCache(ctx context.Context, stores []certstore.Store) error {
	if len(stores) == 0 {
		return vaulterrors.NewValidationError("stores", "at least one store is required")
	}
	return s.producer.PublishCacheInvalidate(ctx, stores, events.TriggerAPI)
}

func (s *service) Drain() {
	s.bg.Wait()
}

// parseFailure builds the fail outcome of a parse pass: everything derived is
// zeroed, identity fields stay.
func (s *service) parseFailure(msg string) certstore.ParseResult {
	at := s.now()
	return certstore.ParseResult{
		Status:       certstore.StatusFail,
		SANs:         certstore.SANList{},
		ErrorMessage: &msg,
		ErrorTime:    &at,
	}
}

// emitUpdated publishes the cache invalidation every successful update ends
// with, plus a pool refresh when the row's store is disk-backed.
func (s *service) emitUpdated(ctx context.Context, store certstore.Store) error {
	if err := s.producer.PublishCacheInvalidate(ctx, []certstore.Store{store}, events.TriggerUpdate); err != nil {
		return err
	}
	if store.HasPoolDir() {
		return s.producer.PublishRefresh(ctx, store, events.TriggerUpdate)
	}
	return nil
}

func requireSource(cert *certstore.Certificate, want certstore.Source) error {
	if cert.Source == certstore.SourceAuto {
		return vaulterrors.WrapError(vaulterrors.ErrCodeImmutableSource,
			"auto-managed certificates cannot be manually updated", nil)
	}
	if cert.Source != want {
		return vaulterrors.NewValidationError("source",
			fmt.Sprintf("certificate has source %s, expected %s", cert.Source, want))
	}
	return nil
}
