package config

import (
	"context"
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/albedosehen/certvault/internal/observability"
)

type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(ctx context.Context, msg string, fields ...observability.Field) {
	args := []interface{}{ctx, msg}
	for _, field := range fields {
		args = append(args, field)
	}
	m.Called(args...)
}

func (m *MockLogger) Info(ctx context.Context, msg string, fields ...observability.Field) {
	args := []interface{}{ctx, msg}
	for _, field := range fields {
		args = append(args, field)
	}
	m.Called(args...)
}

func (m *MockLogger) Warn(ctx context.Context, msg string, fields ...observability.Field) {
	args := []interface{}{ctx, msg}
	for _, field := range fields {
		args = append(args, field)
	}
	m.Called(args...)
}

func (m *MockLogger) Error(ctx context.Context, err error, msg string, fields ...observability.Field) {
	args := []interface{}{ctx, err, msg}
	for _, field := range fields {
		args = append(args, field)
	}
	m.Called(args...)
}

func (m *MockLogger) WithFields(fields ...observability.Field) observability.Logger {
	args := make([]interface{}, len(fields))
	for i, field := range fields {
		args[i] = field
	}
	m.Called(args...)
	return m
}

func (m *MockLogger) WithContext(ctx context.Context) observability.Logger {
	m.Called(ctx)
	return m
}

func newQuietMockLogger() *MockLogger {
	mockLogger := new(MockLogger)
	mockLogger.On("Debug", mock.Anything, mock.Anything).Return().Maybe()
	mockLogger.On("Info", mock.Anything, mock.Anything).Return().Maybe()
	mockLogger.On("Info", mock.Anything, mock.Anything, mock.Anything).Return().Maybe()
	mockLogger.On("Warn", mock.Anything, mock.Anything).Return().Maybe()
	return mockLogger
}

// chdirT mirrors testing.T.Chdir (Go 1.24+), which is unavailable on the
// toolchain used to build this module.
func chdirT(t *testing.T, dir string) {
	t.Helper()

	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("chdirT: getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdirT: chdir %s: %v", dir, err)
	}
	t.Setenv("PWD", dir)
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("chdirT: restore %s: %v", prev, err)
		}
	})
}

func TestDopplerProvider_IsConfigured(t *testing.T) {
	chdirT(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	provider := NewDopplerProvider(newQuietMockLogger())

	t.Run("configured_when_token_present", func(t *testing.T) {
		t.Setenv("DOPPLER_TOKEN", "test-token")
		assert.True(t, provider.isDopplerConfigured())
	})

	t.Run("not_configured_without_token_or_config_file", func(t *testing.T) {
		t.Setenv("DOPPLER_TOKEN", "")
		assert.False(t, provider.isDopplerConfigured())
	})
}

func TestDopplerProvider_CLIAvailability(t *testing.T) {
	provider := NewDopplerProvider(newQuietMockLogger())

	t.Run("unavailable_with_empty_path", func(t *testing.T) {
		t.Setenv("PATH", "")
		assert.False(t, provider.isDopplerCLIAvailable())
	})

	t.Run("matches_lookpath", func(t *testing.T) {
		_, err := exec.LookPath("doppler")
		assert.Equal(t, err == nil, provider.isDopplerCLIAvailable())
	})
}

func TestDopplerProvider_LoadSecrets_NoopWhenUnconfigured(t *testing.T) {
	chdirT(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DOPPLER_TOKEN", "")

	provider := NewDopplerProvider(newQuietMockLogger())

	err := provider.LoadSecrets()
	assert.NoError(t, err)
}
