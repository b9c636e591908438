package pki

import (
	"crypto/x509"
	"encoding/pem"
	"math"
	"time"

	vaulterrors "github.com/albedosehen/certvault/internal/errors"
)

const unknownIssuer = "Unknown"

// x509Parser implements Parser with the standard library certificate codec.
type x509Parser struct {
	now func() time.Time
}

// NewParser creates a Parser that evaluates validity against the wall clock.
func NewParser() Parser {
	return &x509Parser{now: time.Now}
}

// NewParserAt creates a Parser with a fixed clock source. Used by tests and
// the daily expiry recomputation.
func NewParserAt(now func() time.Time) Parser {
	return &x509Parser{now: now}
}

func (p *x509Parser) Parse(certPEM []byte) (*CertificateInfo, error) {
	block := findCertificateBlock(certPEM)
	if block == nil {
		return nil, vaulterrors.WrapError(
			vaulterrors.ErrCodeCertificateParse,
			"no CERTIFICATE block found in PEM data",
			nil,
		)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, vaulterrors.WrapError(
			vaulterrors.ErrCodeCertificateParse,
			"failed to parse certificate",
			err,
		)
	}

	cn := cert.Subject.CommonName
	sans := dedupe(cert.DNSNames)

	days := DaysRemainingAt(cert.NotAfter, p.now())

	return &CertificateInfo{
		CommonName:    cn,
		SANs:          sans,
		AllDomains:    allDomains(cn, sans),
		Issuer:        issuerName(cert),
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
		DaysRemaining: days,
		IsValid:       days >= 0,
	}, nil
}

// findCertificateBlock scans the PEM data for the first CERTIFICATE block,
// skipping any other block types (keys, parameters) that share the file.
func findCertificateBlock(data []byte) *pem.Block {
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil
		}
		if block.Type == "CERTIFICATE" {
			return block
		}
	}
	return nil
}

// issuerName picks a display name for the issuing CA. The organization is
// preferred over the issuer CN since intermediates carry generic CNs ("R3").
func issuerName(cert *x509.Certificate) string {
	if len(cert.Issuer.Organization) > 0 && cert.Issuer.Organization[0] != "" {
		return cert.Issuer.Organization[0]
	}
	if cert.Issuer.CommonName != "" {
		return cert.Issuer.CommonName
	}
	return unknownIssuer
}

// allDomains builds the canonical domain list: CN first, SAN entries after,
// deduplicated while preserving order.
func allDomains(cn string, sans []string) []string {
	domains := make([]string, 0, len(sans)+1)
	seen := make(map[string]struct{}, len(sans)+1)

	if cn != "" {
		domains = append(domains, cn)
		seen[cn] = struct{}{}
	}

	for _, san := range sans {
		if _, ok := seen[san]; ok {
			continue
		}
		seen[san] = struct{}{}
		domains = append(domains, san)
	}

	return domains
}

func dedupe(entries []string) []string {
	out := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// DaysRemainingAt computes floor((notAfter - now) / 24h). The result is
// negative once notAfter has passed, which flips IsValid.
func DaysRemainingAt(notAfter, now time.Time) int {
	return int(math.Floor(notAfter.Sub(now).Hours() / 24))
}
