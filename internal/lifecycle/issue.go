package lifecycle

import (
	"context"

	"github.com/albedosehen/certvault/internal/acme"
	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/events"
	"github.com/albedosehen/certvault/internal/observability"
)

// issuanceJob describes one background ACME run and what to do with its
// outcome.
type issuanceJob struct {
	id  string
	req acme.IssueRequest

	// failStatus is written on failure: StatusFail for a fresh apply, the
	// pre-call status for reapplies.
	failStatus certstore.Status

	// writePool mirrors the issued material into the pool folder of store.
	writePool bool
	store     certstore.Store

	invalidate []certstore.Store
}

func (s *service) Apply(ctx context.Context, in ApplyInput) (*certstore.Certificate, error) {
	switch {
	case in.Domain == "":
		return nil, vaulterrors.NewValidationError("domain", "domain is required")
	case in.Email == "":
		return nil, vaulterrors.NewValidationError("email", "email is required for ACME issuance")
	case in.FolderName == "":
		return nil, vaulterrors.NewValidationError("folder_name", "folder_name is required for ACME issuance")
	}

	existing, err := s.repo.FindSibling(ctx, certstore.StoreDatabase, in.Domain, certstore.SourceManualApply)
	if err != nil && !vaulterrors.IsNotFound(err) {
		return nil, err
	}

	var placeholder *certstore.Certificate
	if existing != nil {
		// The claim re-reads the status under row lock, so a concurrent
		// apply on the same certificate loses here rather than at the
		// lookup above.
		prev, err := s.repo.ClaimProcessing(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		if err := s.repo.UpdateByID(ctx, existing.ID, certstore.Update{
			FolderName: &in.FolderName,
			Email:      &in.Email,
		}); err != nil {
			s.restoreStatus(ctx, existing.ID, prev, "")
			return nil, err
		}
		placeholder, err = s.repo.GetByID(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
	} else {
		// No row yet. Concurrent first-time applies race only on the
		// insert, and the unique folder_name key serializes those.
		placeholder, err = s.repo.UpsertSibling(ctx, certstore.UpsertInput{
			Store:      certstore.StoreDatabase,
			Domain:     in.Domain,
			FolderName: in.FolderName,
			Source:     certstore.SourceManualApply,
			Status:     certstore.StatusProcess,
			Email:      in.Email,
		})
		if err != nil {
			return nil, err
		}
	}

	s.logger.Info(ctx, "issuance started",
		observability.CertificateID(placeholder.ID),
		observability.Domain(in.Domain),
		observability.FolderName(in.FolderName))

	s.spawnIssuance(ctx, issuanceJob{
		id: placeholder.ID,
		req: acme.IssueRequest{
			Domains:      domainList(in.Domain, in.SANs),
			Email:        in.Email,
			FolderName:   in.FolderName,
			ForceRenewal: in.ForceRenewal,
		},
		failStatus: certstore.StatusFail,
		invalidate: []certstore.Store{certstore.StoreDatabase},
	})

	return placeholder, nil
}

func (s *service) ReapplyAuto(ctx context.Context, in ReapplyAutoInput) (*certstore.Certificate, error) {
	cert, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if cert.Source != certstore.SourceAuto {
		return nil, vaulterrors.NewValidationError("source",
			"certificate has source "+cert.Source.String()+", expected auto")
	}
	if !cert.Store.HasPoolDir() {
		return nil, vaulterrors.NewValidationError("store",
			"auto certificate in store "+cert.Store.String()+" cannot be reapplied")
	}

	prev, err := s.repo.ClaimProcessing(ctx, in.ID)
	if err != nil {
		return nil, err
	}

	email := in.Email
	if email == "" {
		email = cert.Email
	}
	sans := in.SANs
	if len(sans) == 0 {
		sans = cert.SANs
	}

	s.spawnIssuance(ctx, issuanceJob{
		id: in.ID,
		req: acme.IssueRequest{
			Domains:      domainList(cert.Domain, sans),
			Email:        email,
			FolderName:   cert.FolderName,
			ForceRenewal: in.ForceRenewal,
		},
		failStatus: prev,
		writePool:  true,
		store:      cert.Store,
		invalidate: []certstore.Store{cert.Store},
	})

	return s.repo.GetByID(ctx, in.ID)
}

func (s *service) ReapplyManualApply(ctx context.Context, in ReapplyManualApplyInput) (*certstore.Certificate, error) {
	cert, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if err := requireSource(cert, certstore.SourceManualApply); err != nil {
		return nil, err
	}

	prev, err := s.repo.ClaimProcessing(ctx, in.ID)
	if err != nil {
		return nil, err
	}

	// Reapply may retarget the row before issuance runs.
	update := certstore.Update{}
	domain := cert.Domain
	folder := cert.FolderName
	if in.Domain != "" && in.Domain != cert.Domain {
		domain = in.Domain
		update.Domain = &in.Domain
	}
	if in.FolderName != "" && in.FolderName != cert.FolderName {
		folder = in.FolderName
		update.FolderName = &in.FolderName
	}
	email := in.Email
	if email == "" {
		email = cert.Email
	} else if email != cert.Email {
		update.Email = &email
	}

	if update.Domain != nil || update.FolderName != nil || update.Email != nil {
		if err := s.repo.UpdateByID(ctx, in.ID, update); err != nil {
			s.restoreStatus(ctx, in.ID, prev, "")
			return nil, err
		}
	}

	s.spawnIssuance(ctx, issuanceJob{
		id: in.ID,
		req: acme.IssueRequest{
			Domains:      domainList(domain, in.SANs),
			Email:        email,
			FolderName:   folder,
			ForceRenewal: in.ForceRenewal,
		},
		failStatus: prev,
		invalidate: []certstore.Store{cert.Store},
	})

	return s.repo.GetByID(ctx, in.ID)
}

func (s *service) ReapplyManualAdd(ctx context.Context, in ReapplyManualAddInput) (*certstore.Certificate, error) {
	cert, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	if err := requireSource(cert, certstore.SourceManualAdd); err != nil {
		return nil, err
	}
	if in.Certificate == "" {
		return nil, vaulterrors.NewValidationError("certificate", "certificate PEM is required")
	}

	prev, err := s.repo.ClaimProcessing(ctx, in.ID)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateByID(ctx, in.ID, certstore.Update{
		Certificate: &in.Certificate,
		PrivateKey:  &in.PrivateKey,
	}); err != nil {
		s.restoreStatus(ctx, in.ID, prev, "")
		return nil, err
	}

	// The material is already in hand, so the re-parse runs inline instead
	// of round-tripping through the bus.
	if err := s.ParseCertificate(ctx, in.ID); err != nil {
		s.restoreStatus(ctx, in.ID, prev, err.Error())
		return nil, err
	}

	if err := s.producer.PublishCacheInvalidate(ctx, []certstore.Store{cert.Store}, events.TriggerUpdate); err != nil {
		return nil, err
	}

	return s.repo.GetByID(ctx, in.ID)
}

// spawnIssuance runs the job on a detached goroutine. The request context's
// cancellation must not abort issuance midway, but its values (request id)
// stay for logging.
func (s *service) spawnIssuance(ctx context.Context, job issuanceJob) {
	bgCtx := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.runIssuance(bgCtx, job)
	}()
}

func (s *service) runIssuance(ctx context.Context, job issuanceJob) {
	res, err := s.driver.Issue(ctx, job.req)
	if err != nil {
		s.logger.Error(ctx, err, "issuance failed",
			observability.CertificateID(job.id),
			observability.FolderName(job.req.FolderName))
		s.restoreStatus(ctx, job.id, job.failStatus, err.Error())
		s.emitInvalidate(ctx, job.invalidate)
		return
	}

	if err := s.persistIssued(ctx, job.id, res.CertificatePEM, res.PrivateKeyPEM); err != nil {
		s.logger.Error(ctx, err, "failed to persist issued certificate",
			observability.CertificateID(job.id))
		s.restoreStatus(ctx, job.id, job.failStatus, err.Error())
		s.emitInvalidate(ctx, job.invalidate)
		return
	}

	if job.writePool {
		if err := s.exporter.WriteFolder(job.store, job.req.FolderName, res.CertificatePEM, res.PrivateKeyPEM); err != nil {
			// The row is authoritative; a pool write failure is recovered
			// by the next export or import pass.
			s.logger.Error(ctx, err, "failed to write issued material to pool",
				observability.Store(job.store.String()),
				observability.FolderName(job.req.FolderName))
		}
	}

	if res.Warning != "" {
		s.logger.Warn(ctx, "issuance degraded to existing material",
			observability.CertificateID(job.id),
			observability.String("warning", res.Warning))
	}
	s.logger.Info(ctx, "issuance finished",
		observability.CertificateID(job.id),
		observability.FolderName(job.req.FolderName),
		observability.Bool("reused", res.Reused))

	s.emitInvalidate(ctx, job.invalidate)
}

// persistIssued writes the PEMs and the metadata parsed from them, moving
// the row to success.
func (s *service) persistIssued(ctx context.Context, id string, certPEM, keyPEM []byte) error {
	info, err := s.parser.Parse(certPEM)
	if err != nil {
		return vaulterrors.WrapError(vaulterrors.ErrCodeCertificateParse,
			"issued certificate does not parse", err)
	}

	certText := string(certPEM)
	keyText := string(keyPEM)
	if err := s.repo.UpdateByID(ctx, id, certstore.Update{
		Certificate: &certText,
		PrivateKey:  &keyText,
	}); err != nil {
		return err
	}

	s.metrics.SetCertificateExpiry(info.CommonName, info.NotAfter)

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

// restoreStatus puts a row back to the given status, recording the error
// that interrupted the operation when there is one.
func (s *service) restoreStatus(ctx context.Context, id string, status certstore.Status, errMsg string) {
	update := certstore.Update{Status: &status}
	if errMsg != "" {
		at := s.now()
		update.LastErrorMessage = &errMsg
		update.LastErrorTime = &at
	}
	if err := s.repo.UpdateByID(ctx, id, update); err != nil {
		s.logger.Error(ctx, err, "failed to restore certificate status",
			observability.CertificateID(id))
	}
}

func (s *service) emitInvalidate(ctx context.Context, stores []certstore.Store) {
	if len(stores) == 0 {
		return
	}
	if err := s.producer.PublishCacheInvalidate(ctx, stores, events.TriggerUpdate); err != nil {
		s.logger.Error(ctx, err, "failed to emit cache invalidation")
	}
}

// domainList builds the ACME domain list: primary first, then extra names,
// deduplicated in order.
func domainList(domain string, sans []string) []string {
	out := []string{domain}
	seen := map[string]bool{domain: true}
	for _, san := range sans {
		if san == "" || seen[san] {
			continue
		}
		seen[san] = true
		out = append(out, san)
	}
	return out
}
