// Package testing provides shared fixtures and helpers for certvault tests:
// self-signed certificate generation, pool directory builders, environment
// management, and lightweight logger doubles.
package testing

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albedosehen/certvault/internal/config"
	"github.com/albedosehen/certvault/internal/observability"
)

const TestTimeout = 10 * time.Second

// CertSpec describes a self-signed test certificate. Because the certificate
// is self-signed, the subject organization doubles as the issuer organization.
type CertSpec struct {
	CommonName string
	SANs       []string
	Org        string
	Country    string
	NotBefore  time.Time
	NotAfter   time.Time
}

// GenerateCertificate creates a self-signed certificate and returns the
// certificate and private key as PEM.
func GenerateCertificate(t *testing.T, spec CertSpec) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err, "failed to generate test key")

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err, "failed to generate serial number")

	subject := pkix.Name{CommonName: spec.CommonName}
	if spec.Org != "" {
		subject.Organization = []string{spec.Org}
	}
	if spec.Country != "" {
		subject.Country = []string{spec.Country}
	}

	notBefore := spec.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now().Add(-time.Hour)
	}
	notAfter := spec.NotAfter
	if notAfter.IsZero() {
		notAfter = time.Now().Add(90 * 24 * time.Hour)
	}

	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		DNSNames:              spec.SANs,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err, "failed to create test certificate")

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err, "failed to marshal test key")
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return certPEM, keyPEM
}

// GenerateLeafCertificate creates a certificate for cn with the given SANs,
// valid from an hour ago until validFor from now.
func GenerateLeafCertificate(t *testing.T, cn string, sans []string, validFor time.Duration) (certPEM, keyPEM []byte) {
	t.Helper()

	return GenerateCertificate(t, CertSpec{
		CommonName: cn,
		SANs:       sans,
		Org:        "Test CA",
		NotAfter:   time.Now().Add(validFor),
	})
}

// GenerateExpiredCertificate creates a certificate whose NotAfter is already
// in the past.
func GenerateExpiredCertificate(t *testing.T, cn string, sans []string) (certPEM, keyPEM []byte) {
	t.Helper()

	return GenerateCertificate(t, CertSpec{
		CommonName: cn,
		SANs:       sans,
		Org:        "Test CA",
		NotBefore:  time.Now().Add(-48 * time.Hour),
		NotAfter:   time.Now().Add(-24 * time.Hour),
	})
}

// WritePoolFolder writes cert.crt and key.key into
// {certsDir}/{storeDir}/{folderName}/ and returns the folder path. storeDir
// is the capitalized on-disk form ("Websites" or "Apis").
func WritePoolFolder(t *testing.T, certsDir, storeDir, folderName string, certPEM, keyPEM []byte) string {
	t.Helper()

	dir := filepath.Join(certsDir, storeDir, folderName)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "cert.crt"), certPEM, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.key"), keyPEM, 0o600))

	return dir
}

// GetTestConfig returns a configuration suitable for unit tests: temp
// directories, random listen ports, scheduling disabled.
func GetTestConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.GetDefaultConfig()

	cfg.Server.Port = 0
	cfg.Metrics.Enabled = false
	cfg.Certs.Dir = t.TempDir()
	cfg.Certs.ACMEChallengeDir = t.TempDir()
	cfg.Certs.ReadOnStartup = false
	cfg.Schedule.Enabled = false
	cfg.Certs.MaxWaitTime = 5 * time.Second

	return cfg
}

func SetEnvVars(t *testing.T, vars map[string]string) func() {
	t.Helper()

	originalVars := make(map[string]string)

	for key, value := range vars {
		originalVars[key] = os.Getenv(key)
		err := os.Setenv(key, value)
		require.NoError(t, err, "failed to set environment variable %s", key)
	}

	return func() {
		for key, originalValue := range originalVars {
			if originalValue == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, originalValue)
			}
		}
	}
}

func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			assert.Fail(t, "condition was not met within timeout", msg)
			return
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}

func WaitForCondition(t *testing.T, condition func() bool, timeout, interval time.Duration) bool {
	t.Helper()

	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(interval)
	}

	return false
}

func RunConcurrently(t *testing.T, n int, fn func(i int)) {
	t.Helper()

	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		go func(index int) {
			defer wg.Done()
			fn(index)
		}(i)
	}

	wg.Wait()
}

func TestContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()

	return context.WithTimeout(context.Background(), TestTimeout)
}

func TestContextWithTimeout(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()

	return context.WithTimeout(context.Background(), timeout)
}

// NopLogger discards all log output. Useful where a test only needs a
// Logger to satisfy a constructor.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (l *NopLogger) Debug(ctx context.Context, msg string, fields ...observability.Field) {}
func (l *NopLogger) Info(ctx context.Context, msg string, fields ...observability.Field)  {}
func (l *NopLogger) Warn(ctx context.Context, msg string, fields ...observability.Field)  {}
func (l *NopLogger) Error(ctx context.Context, err error, msg string, fields ...observability.Field) {
}
func (l *NopLogger) WithFields(fields ...observability.Field) observability.Logger { return l }
func (l *NopLogger) WithContext(ctx context.Context) observability.Logger          { return l }

// CountingLogger counts log calls per level while discarding output.
type CountingLogger struct {
	InfoCount  int
	ErrorCount int
	WarnCount  int
	DebugCount int
	mu         sync.Mutex
}

func NewCountingLogger() *CountingLogger {
	return &CountingLogger{}
}

func (cl *CountingLogger) Debug(ctx context.Context, msg string, fields ...observability.Field) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.DebugCount++
}

func (cl *CountingLogger) Info(ctx context.Context, msg string, fields ...observability.Field) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.InfoCount++
}

func (cl *CountingLogger) Warn(ctx context.Context, msg string, fields ...observability.Field) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.WarnCount++
}

func (cl *CountingLogger) Error(ctx context.Context, err error, msg string, fields ...observability.Field) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.ErrorCount++
}

func (cl *CountingLogger) WithFields(fields ...observability.Field) observability.Logger {
	return cl
}

func (cl *CountingLogger) WithContext(ctx context.Context) observability.Logger {
	return cl
}

func (cl *CountingLogger) GetCounts() (info, errors, warn, debug int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.InfoCount, cl.ErrorCount, cl.WarnCount, cl.DebugCount
}

func (cl *CountingLogger) Reset() {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.InfoCount = 0
	cl.ErrorCount = 0
	cl.WarnCount = 0
	cl.DebugCount = 0
}
