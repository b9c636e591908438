// Package acme issues certificates by driving the certbot CLI over the
// HTTP-01 webroot flow. The subprocess is the integration boundary: this
// package owns its argument list, its working directories, and the
// classification of its failure modes. It also serves the webroot challenge
// files certbot writes during validation.
package acme

import "context"

// IssueRequest describes one issuance attempt.
type IssueRequest struct {
	// Domains lists every requested name, primary domain first. The first
	// entry becomes the certificate CN.
	Domains []string

	// Email is the ACME account contact.
	Email string

	// FolderName names the certbot lineage; material lands under
	// live/{FolderName}/ in the certbot config dir.
	FolderName string

	// ForceRenewal skips the reuse pre-check and passes --force-renewal.
	ForceRenewal bool
}

// IssueResult carries the issued material.
type IssueResult struct {
	CertificatePEM []byte
	PrivateKeyPEM  []byte

	// Reused is true when existing on-disk material satisfied the request
	// without spawning certbot.
	Reused bool

	// Warning is set when the CA rate limit was hit but prior material
	// could still be served, downgrading the failure.
	Warning string
}

// Driver issues certificates.
type Driver interface {
	// Issue obtains a certificate for the request, either by reusing
	// recent on-disk material or by running certbot. Blocking; bounded by
	// the configured maximum wait time.
	Issue(ctx context.Context, req IssueRequest) (*IssueResult, error)
}

// CommandRunner executes an external command and returns its combined
// output. Tests substitute it to exercise the driver without a certbot
// binary.
type CommandRunner interface {
	// Run executes name with args. exitCode is meaningful only when err is
	// nil or the command itself failed; a context deadline surfaces as
	// ctx.Err wrapped in err.
	Run(ctx context.Context, name string, args ...string) (output []byte, exitCode int, err error)
}

// ChallengeStore resolves HTTP-01 challenge tokens to their key
// authorizations.
type ChallengeStore interface {
	// Set writes a challenge token. Used by operators pre-staging
	// challenges; certbot writes its own files through the webroot.
	Set(token, keyAuth string) error

	// Get resolves a token. Returns ErrChallengeNotFound when no file
	// backs it.
	Get(token string) (string, error)

	// Remove deletes a token. Missing tokens are not an error.
	Remove(token string) error
}
