// Package pki extracts certificate metadata from PEM-encoded X.509
// certificates. The rest of the system treats certificates as opaque PEM
// blobs; this package is the single place that looks inside them.
package pki

import "time"

// CertificateInfo holds the metadata extracted from a leaf certificate.
type CertificateInfo struct {
	// CommonName is the subject CN, empty when the certificate has none.
	CommonName string

	// SANs lists the DNS entries of the SAN extension in declaration
	// order, deduplicated.
	SANs []string

	// AllDomains is CommonName first (when present) followed by SANs,
	// deduplicated. This is the canonical domain list persisted with a
	// certificate row.
	AllDomains []string

	// Issuer is the issuing CA display name: organization when present,
	// otherwise the issuer CN, otherwise "Unknown".
	Issuer string

	NotBefore time.Time
	NotAfter  time.Time

	// DaysRemaining is floor((NotAfter - now) / 24h); negative once the
	// certificate has expired.
	DaysRemaining int

	// IsValid is true while DaysRemaining >= 0.
	IsValid bool
}

// Parser extracts metadata from PEM-encoded certificates.
type Parser interface {
	// Parse reads the first CERTIFICATE block of certPEM (the leaf in a
	// chain file) and returns its metadata.
	Parse(certPEM []byte) (*CertificateInfo, error)
}

// Matches reports whether domain equals the certificate CN or one of its
// SAN entries. Comparison is exact; wildcard entries only match themselves.
func (c *CertificateInfo) Matches(domain string) bool {
	if domain == "" {
		return false
	}
	if c.CommonName == domain {
		return true
	}
	for _, san := range c.SANs {
		if san == domain {
			return true
		}
	}
	return false
}
