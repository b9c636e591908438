package lifecycle

import (
	"context"

	"github.com/albedosehen/certvault/internal/acme"
	"github.com/albedosehen/certvault/internal/certstore"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/observability"
)

func (s *service) AutoRenew(ctx context.Context) (*RenewalReport, error) {
	report := &RenewalReport{}

	recomputed, err := s.repo.UpdateAllDaysRemaining(ctx, s.now())
	if err != nil {
		return nil, err
	}
	report.Recomputed = recomputed

	candidates, err := s.repo.ListRenewable(ctx, s.renewBefore)
	if err != nil {
		return nil, err
	}
	report.Candidates = len(candidates)

	s.logger.Info(ctx, "renewal loop started",
		observability.Int64("recomputed", recomputed),
		observability.Int("candidates", len(candidates)))

	for i := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		s.renewOne(ctx, &candidates[i], report)
	}

	s.logger.Info(ctx, "renewal loop finished",
		observability.Int("renewed", report.Renewed),
		observability.Int("failed", report.Failed),
		observability.Int("skipped", report.Skipped))

	return report, nil
}

func (s *service) renewOne(ctx context.Context, cert *certstore.Certificate, report *RenewalReport) {
	// An auto row in the database store has no pool folder to renew into;
	// it can only exist through operator error.
	if !cert.Store.HasPoolDir() {
		s.logger.Warn(ctx, "skipping auto certificate outside a pool store",
			observability.CertificateID(cert.ID),
			observability.Domain(cert.Domain),
			observability.Store(cert.Store.String()))
		report.Skipped++
		return
	}

	prev, err := s.repo.ClaimProcessing(ctx, cert.ID)
	if err != nil {
		if vaulterrors.IsConflict(err) {
			s.logger.Warn(ctx, "certificate already in flight, skipping renewal",
				observability.CertificateID(cert.ID),
				observability.Domain(cert.Domain))
		} else {
			s.logger.Error(ctx, err, "failed to claim certificate for renewal",
				observability.CertificateID(cert.ID))
		}
		report.Skipped++
		return
	}

	res, err := s.driver.Issue(ctx, acme.IssueRequest{
		Domains:      domainList(cert.Domain, cert.SANs),
		Email:        cert.Email,
		FolderName:   cert.FolderName,
		ForceRenewal: true,
	})
	if err != nil {
		s.logger.Error(ctx, err, "renewal failed",
			observability.Domain(cert.Domain),
			observability.Int("days_remaining", cert.DaysRemaining))
		s.restoreStatus(ctx, cert.ID, prev, err.Error())
		s.metrics.RecordRenewal(cert.Domain, false)
		report.Failed++
		return
	}

	if err := s.persistIssued(ctx, cert.ID, res.CertificatePEM, res.PrivateKeyPEM); err != nil {
		s.logger.Error(ctx, err, "failed to persist renewed certificate",
			observability.Domain(cert.Domain))
		s.restoreStatus(ctx, cert.ID, prev, err.Error())
		s.metrics.RecordRenewal(cert.Domain, false)
		report.Failed++
		return
	}

	// The worker role owns the pool write; the renewed material travels as
	// a certificate.export event.
	if err := s.producer.PublishExport(ctx, cert.ID); err != nil {
		s.logger.Error(ctx, err, "failed to emit export after renewal",
			observability.CertificateID(cert.ID))
	}

	s.metrics.RecordRenewal(cert.Domain, true)
	s.logger.Info(ctx, "certificate renewed",
		observability.Domain(cert.Domain),
		observability.FolderName(cert.FolderName))
	report.Renewed++
}
