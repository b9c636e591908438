package acme

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"github.com/albedosehen/certvault/internal/config"
	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/observability"
	"github.com/albedosehen/certvault/internal/pki"
)

const certbotBinary = "certbot"

// reuseWindow is the minimum remaining validity for on-disk material to
// satisfy a request without spawning certbot.
const reuseWindow = 24 * time.Hour

// Certbot spawns are throttled well below the CA's own limits; concurrent
// issuance requests queue here instead of stacking subprocesses.
var spawnLimit = rate.Every(5 * time.Second)

// rateLimitPattern recognizes the CA's duplicate-certificate rate limit
// answer in certbot output and captures the advertised retry time.
var rateLimitPattern = regexp.MustCompile(`(?is)too many certificates.*?retry after (\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})`)

// certbotDriver implements Driver by shelling out to certbot.
type certbotDriver struct {
	cfg     config.CertsConfig
	runner  CommandRunner
	parser  pki.Parser
	limiter *rate.Limiter
	logger  observability.Logger
	metrics observability.MetricsCollector
	now     func() time.Time
}

// NewDriver creates the certbot-backed Driver.
func NewDriver(
	cfg config.CertsConfig,
	runner CommandRunner,
	parser pki.Parser,
	logger observability.Logger,
	metrics observability.MetricsCollector,
) Driver {
	return &certbotDriver{
		cfg:     cfg,
		runner:  runner,
		parser:  parser,
		limiter: rate.NewLimiter(spawnLimit, 1),
		logger:  logger.WithFields(observability.Component("acme")),
		metrics: metrics,
		now:     time.Now,
	}
}

func (d *certbotDriver) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	start := d.now()
	res, err := d.issue(ctx, req)
	elapsed := d.now().Sub(start)

	domain := ""
	if len(req.Domains) > 0 {
		domain = req.Domains[0]
	}
	d.metrics.RecordACMEAttempt(domain, outcomeOf(res, err), elapsed)

	return res, err
}

func (d *certbotDriver) issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	if len(req.Domains) == 0 {
		return nil, vaulterrors.NewValidationError("domains", "at least one domain is required")
	}
	if req.FolderName == "" {
		return nil, vaulterrors.NewValidationError("folder_name", "folder name is required")
	}

	domain := req.Domains[0]

	if !req.ForceRenewal {
		if res := d.tryReuse(ctx, req.FolderName); res != nil {
			d.logger.Info(ctx, "reusing existing certificate material",
				observability.Domain(domain),
				observability.FolderName(req.FolderName))
			return res, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.MaxWaitTime)
	defer cancel()

	if err := d.limiter.Wait(ctx); err != nil {
		return nil, d.timeoutErr(domain, err)
	}

	args := d.certbotArgs(req)
	d.logger.Info(ctx, "running certbot",
		observability.Domain(domain),
		observability.FolderName(req.FolderName),
		observability.Bool("force_renewal", req.ForceRenewal))

	output, exitCode, err := d.runner.Run(ctx, certbotBinary, args...)

	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, d.timeoutErr(domain, err)
	}

	if retryAfter, limited := matchRateLimit(output); limited {
		return d.handleRateLimit(ctx, req, domain, retryAfter)
	}

	if err != nil || exitCode != 0 {
		cause := err
		if cause == nil {
			cause = fmt.Errorf("certbot exited with code %d: %s", exitCode, tail(output))
		}
		return nil, vaulterrors.NewACMEError(vaulterrors.ErrCodeACMEFailed, domain, cause)
	}

	certPEM, keyPEM, err := d.readLineage(req.FolderName)
	if err != nil {
		// Exit 0 with no material means certbot decided not to act.
		return nil, vaulterrors.NewACMEError(
			vaulterrors.ErrCodeCertFilesMissing, domain,
			errors.New("files not found"),
		)
	}

	return &IssueResult{CertificatePEM: certPEM, PrivateKeyPEM: keyPEM}, nil
}

// tryReuse returns existing lineage material when it is still valid for at
// least the reuse window.
func (d *certbotDriver) tryReuse(ctx context.Context, folderName string) *IssueResult {
	certPEM, keyPEM, err := d.readLineage(folderName)
	if err != nil {
		return nil
	}

	info, err := d.parser.Parse(certPEM)
	if err != nil {
		d.logger.Warn(ctx, "existing lineage material does not parse, reissuing",
			observability.FolderName(folderName),
			observability.Error(err))
		return nil
	}

	if info.NotAfter.Sub(d.now()) < reuseWindow {
		return nil
	}

	return &IssueResult{CertificatePEM: certPEM, PrivateKeyPEM: keyPEM, Reused: true}
}

// handleRateLimit downgrades a rate-limit refusal to a success with warning
// when prior material exists, otherwise fails with the retry time attached.
func (d *certbotDriver) handleRateLimit(ctx context.Context, req IssueRequest, domain, retryAfter string) (*IssueResult, error) {
	if !req.ForceRenewal {
		if certPEM, keyPEM, err := d.readLineage(req.FolderName); err == nil {
			warning := fmt.Sprintf("rate limited until %s, serving existing certificate", retryAfter)
			d.logger.Warn(ctx, "certificate authority rate limit hit, degrading to existing material",
				observability.Domain(domain),
				observability.String("retry_after", retryAfter))
			return &IssueResult{CertificatePEM: certPEM, PrivateKeyPEM: keyPEM, Warning: warning}, nil
		}
	}

	err := vaulterrors.NewACMEError(
		vaulterrors.ErrCodeACMERateLimited, domain,
		fmt.Errorf("too many certificates issued, retry after %s", retryAfter),
	)
	return nil, err.WithContext("rate_limit", true).WithContext("retry_after", retryAfter)
}

func (d *certbotDriver) timeoutErr(domain string, cause error) error {
	seconds := int(d.cfg.MaxWaitTime.Seconds())
	return vaulterrors.NewACMEError(
		vaulterrors.ErrCodeACMETimeout, domain,
		fmt.Errorf("timeout after %ds", seconds),
	).WithContext("cause", cause.Error())
}

// certbotArgs builds the certonly invocation. Certbot keeps its state under
// a dot-directory inside the certificate pool so one volume carries
// everything.
func (d *certbotDriver) certbotArgs(req IssueRequest) []string {
	base := filepath.Join(d.cfg.Dir, ".certbot")

	args := []string{
		"certonly",
		"--webroot",
		"--webroot-path", d.cfg.ACMEChallengeDir,
		"--email", req.Email,
		"--agree-tos",
		"--non-interactive",
		"--cert-name", req.FolderName,
		"--config-dir", filepath.Join(base, "config"),
		"--work-dir", filepath.Join(base, "work"),
		"--logs-dir", filepath.Join(base, "logs"),
	}

	if req.ForceRenewal {
		args = append(args, "--force-renewal")
	}

	for _, domain := range req.Domains {
		args = append(args, "-d", domain)
	}

	return args
}

// readLineage loads the lineage's fullchain and key from the certbot live
// directory.
func (d *certbotDriver) readLineage(folderName string) (certPEM, keyPEM []byte, err error) {
	live := filepath.Join(d.cfg.Dir, ".certbot", "config", "live", folderName)

	certPEM, err = os.ReadFile(filepath.Join(live, "fullchain.pem"))
	if err != nil {
		return nil, nil, err
	}

	keyPEM, err = os.ReadFile(filepath.Join(live, "privkey.pem"))
	if err != nil {
		return nil, nil, err
	}

	return certPEM, keyPEM, nil
}

func matchRateLimit(output []byte) (retryAfter string, limited bool) {
	m := rateLimitPattern.FindSubmatch(output)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

func outcomeOf(res *IssueResult, err error) string {
	switch {
	case err == nil && res != nil && res.Reused:
		return "reused"
	case err == nil && res != nil && res.Warning != "":
		return "rate_limited_degraded"
	case err == nil:
		return "success"
	}

	var vaultErr *vaulterrors.VaultError
	if errors.As(err, &vaultErr) {
		switch vaultErr.Code {
		case vaulterrors.ErrCodeACMERateLimited:
			return "rate_limited"
		case vaulterrors.ErrCodeACMETimeout:
			return "timeout"
		}
	}
	return "fail"
}

// tail trims command output to its last line for error messages.
func tail(output []byte) string {
	const maxLen = 200
	s := string(output)
	if len(s) > maxLen {
		s = s[len(s)-maxLen:]
	}
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' && i < len(s)-1 {
			return s[i+1:]
		}
	}
	return s
}
