package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultError_Error_WithAndWithoutCause(t *testing.T) {
	tests := []struct {
		name     string
		err      *VaultError
		expected string
	}{
		{
			name: "message_only",
			err: &VaultError{
				Code:    ErrCodeCertificateNotFound,
				Message: "certificate not found",
			},
			expected: "certificate not found",
		},
		{
			name: "message_with_cause",
			err: &VaultError{
				Code:    ErrCodeACMEFailed,
				Message: "acme issuance for domain shop.example.com failed",
				Cause:   fmt.Errorf("exit status 1"),
			},
			expected: "acme issuance for domain shop.example.com failed: exit status 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestVaultError_Is_MatchesByCode(t *testing.T) {
	err := NewCertificateError(ErrCodeCertificateNotFound, "shop.example.com", nil)

	assert.True(t, errors.Is(err, ErrCertificateNotFound))
	assert.False(t, errors.Is(err, ErrAlreadyProcessing))
}

func TestVaultError_Unwrap_ReturnsCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := NewStorageError(ErrCodeDatabaseUnavailable, "list", cause)

	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestVaultErrorCode_HTTPStatus_Mapping(t *testing.T) {
	tests := []struct {
		code     VaultErrorCode
		expected int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeInvalidStore, http.StatusBadRequest},
		{ErrCodeAlreadyProcessing, http.StatusConflict},
		{ErrCodeDuplicateFolderName, http.StatusConflict},
		{ErrCodeImmutableSource, http.StatusConflict},
		{ErrCodeCertificateNotFound, http.StatusNotFound},
		{ErrCodeChallengeNotFound, http.StatusNotFound},
		{ErrCodeACMERateLimited, http.StatusTooManyRequests},
		{ErrCodeACMETimeout, http.StatusGatewayTimeout},
		{ErrCodeACMEFailed, http.StatusBadGateway},
		{ErrCodeCertificateParse, http.StatusUnprocessableEntity},
		{ErrCodePathTraversal, http.StatusForbidden},
		{ErrCodeDatabaseUnavailable, http.StatusServiceUnavailable},
		{ErrCodeInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.code.HTTPStatus())
		})
	}
}

func TestWithContext_AccumulatesKeys(t *testing.T) {
	err := WrapError(ErrCodeACMEFailed, "issuance failed", nil).
		WithContext("domain", "shop.example.com").
		WithContext("attempt", 3)

	require.NotNil(t, err.Context)
	assert.Equal(t, "shop.example.com", err.Context["domain"])
	assert.Equal(t, 3, err.Context["attempt"])
}

func TestHTTPStatusFor_FallsBackToInternalError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusFor(fmt.Errorf("plain error")))
	assert.Equal(t, http.StatusConflict, HTTPStatusFor(ErrAlreadyProcessing))
	assert.Equal(t, http.StatusNotFound, HTTPStatusFor(fmt.Errorf("wrapped: %w", ErrCertificateNotFound)))
}

func TestIsConflict_And_IsNotFound(t *testing.T) {
	assert.True(t, IsConflict(ErrAlreadyProcessing))
	assert.True(t, IsConflict(NewCertificateError(ErrCodeDuplicateFolderName, "shop.example.com", nil)))
	assert.False(t, IsConflict(ErrCertificateNotFound))

	assert.True(t, IsNotFound(ErrCertificateNotFound))
	assert.True(t, IsNotFound(fmt.Errorf("lookup: %w", ErrChallengeNotFound)))
	assert.False(t, IsNotFound(ErrRateLimited))
}
