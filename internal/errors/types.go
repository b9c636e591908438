package errors

import (
	"errors"
	"fmt"
	"net/http"
)

type VaultError struct {
	Code       VaultErrorCode         `json:"code"`
	Message    string                 `json:"message"`
	Cause      error                  `json:"-"`
	Context    map[string]interface{} `json:"context,omitempty"`
	HTTPStatus int                    `json:"http_status,omitempty"`
}

// VaultErrorCode defines specific error conditions within the certificate system.
type VaultErrorCode int

// Error code constants for different certificate error conditions.
const (
	// Validation errors
	ErrCodeValidation VaultErrorCode = iota + 1000
	ErrCodeInvalidStore
	ErrCodeInvalidSource
	ErrCodeMissingField

	// Conflict errors
	ErrCodeAlreadyProcessing
	ErrCodeDuplicateFolderName
	ErrCodeDuplicateCertificate
	ErrCodeImmutableSource

	// Not-found errors
	ErrCodeCertificateNotFound
	ErrCodeFolderNotFound
	ErrCodeFileNotFound
	ErrCodeChallengeNotFound

	// ACME issuance errors
	ErrCodeACMERateLimited
	ErrCodeACMETimeout
	ErrCodeACMEFailed
	ErrCodeCertFilesMissing

	// Certificate parsing errors
	ErrCodeCertificateParse
	ErrCodeCertificateExpired

	// Storage and transport errors
	ErrCodeDatabaseUnavailable
	ErrCodeCacheUnavailable
	ErrCodeEventPublishFailed
	ErrCodeEventConsumeFailed
	ErrCodePoolWriteFailed
	ErrCodePathTraversal

	// Security-related errors
	ErrCodeRateLimited
	ErrCodeAccessDenied

	// Configuration-related errors
	ErrCodeConfigInvalid
	ErrCodeConfigMissing
	ErrCodeConfigValidation

	// Health check-related errors
	ErrCodeHealthCheckFailed
	ErrCodeHealthCheckTimeout
	ErrCodeCircuitBreakerOpen

	// Internal errors
	ErrCodeInternalError
	ErrCodeServiceUnavailable
	ErrCodeNotImplemented
)

func (e *VaultError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *VaultError) Unwrap() error {
	return e.Cause
}

func (e *VaultError) Is(target error) bool {
	if t, ok := target.(*VaultError); ok {
		return e.Code == t.Code
	}
	return false
}

func (e *VaultError) As(target interface{}) bool {
	if t, ok := target.(**VaultError); ok {
		*t = e
		return true
	}
	return false
}

func (e *VaultError) WithContext(key string, value interface{}) *VaultError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *VaultError) WithHTTPStatus(status int) *VaultError {
	e.HTTPStatus = status
	return e
}

func (code VaultErrorCode) String() string {
	switch code {
	case ErrCodeValidation:
		return "validation"
	case ErrCodeInvalidStore:
		return "invalid_store"
	case ErrCodeInvalidSource:
		return "invalid_source"
	case ErrCodeMissingField:
		return "missing_field"
	case ErrCodeAlreadyProcessing:
		return "already_processing"
	case ErrCodeDuplicateFolderName:
		return "duplicate_folder_name"
	case ErrCodeDuplicateCertificate:
		return "duplicate_certificate"
	case ErrCodeImmutableSource:
		return "immutable_source"
	case ErrCodeCertificateNotFound:
		return "certificate_not_found"
	case ErrCodeFolderNotFound:
		return "folder_not_found"
	case ErrCodeFileNotFound:
		return "file_not_found"
	case ErrCodeChallengeNotFound:
		return "challenge_not_found"
	case ErrCodeACMERateLimited:
		return "acme_rate_limited"
	case ErrCodeACMETimeout:
		return "acme_timeout"
	case ErrCodeACMEFailed:
		return "acme_failed"
	case ErrCodeCertFilesMissing:
		return "cert_files_missing"
	case ErrCodeCertificateParse:
		return "certificate_parse"
	case ErrCodeCertificateExpired:
		return "certificate_expired"
	case ErrCodeDatabaseUnavailable:
		return "database_unavailable"
	case ErrCodeCacheUnavailable:
		return "cache_unavailable"
	case ErrCodeEventPublishFailed:
		return "event_publish_failed"
	case ErrCodeEventConsumeFailed:
		return "event_consume_failed"
	case ErrCodePoolWriteFailed:
		return "pool_write_failed"
	case ErrCodePathTraversal:
		return "path_traversal"
	case ErrCodeRateLimited:
		return "rate_limited"
	case ErrCodeAccessDenied:
		return "access_denied"
	case ErrCodeConfigInvalid:
		return "config_invalid"
	case ErrCodeConfigMissing:
		return "config_missing"
	case ErrCodeConfigValidation:
		return "config_validation"
	case ErrCodeHealthCheckFailed:
		return "health_check_failed"
	case ErrCodeHealthCheckTimeout:
		return "health_check_timeout"
	case ErrCodeCircuitBreakerOpen:
		return "circuit_breaker_open"
	case ErrCodeInternalError:
		return "internal_error"
	case ErrCodeServiceUnavailable:
		return "service_unavailable"
	case ErrCodeNotImplemented:
		return "not_implemented"
	default:
		return "unknown_error"
	}
}

func (code VaultErrorCode) HTTPStatus() int {
	switch code {
	case ErrCodeValidation, ErrCodeInvalidStore, ErrCodeInvalidSource, ErrCodeMissingField:
		return http.StatusBadRequest
	case ErrCodeAlreadyProcessing, ErrCodeDuplicateFolderName, ErrCodeDuplicateCertificate, ErrCodeImmutableSource:
		return http.StatusConflict
	case ErrCodeCertificateNotFound, ErrCodeFolderNotFound, ErrCodeFileNotFound, ErrCodeChallengeNotFound:
		return http.StatusNotFound
	case ErrCodeACMERateLimited, ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeACMETimeout, ErrCodeHealthCheckTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeACMEFailed, ErrCodeCertFilesMissing:
		return http.StatusBadGateway
	case ErrCodeCertificateParse, ErrCodeCertificateExpired:
		return http.StatusUnprocessableEntity
	case ErrCodeAccessDenied, ErrCodePathTraversal:
		return http.StatusForbidden
	case ErrCodeDatabaseUnavailable, ErrCodeCacheUnavailable, ErrCodeCircuitBreakerOpen, ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeNotImplemented:
		return http.StatusNotImplemented
	case ErrCodeEventPublishFailed, ErrCodeEventConsumeFailed, ErrCodePoolWriteFailed,
		ErrCodeConfigInvalid, ErrCodeConfigMissing, ErrCodeConfigValidation, ErrCodeHealthCheckFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func NewCertificateError(code VaultErrorCode, domain string, cause error) *VaultError {
	err := &VaultError{
		Code:       code,
		Message:    fmt.Sprintf("certificate error: %s", code.String()),
		Cause:      cause,
		Context:    map[string]interface{}{"domain": domain},
		HTTPStatus: code.HTTPStatus(),
	}

	if cause != nil {
		err.Message = fmt.Sprintf("certificate %s: %s", domain, cause.Error())
	}

	return err
}

func NewACMEError(code VaultErrorCode, domain string, cause error) *VaultError {
	err := &VaultError{
		Code:       code,
		Message:    fmt.Sprintf("acme error: %s", code.String()),
		Cause:      cause,
		Context:    map[string]interface{}{"domain": domain},
		HTTPStatus: code.HTTPStatus(),
	}

	if cause != nil {
		err.Message = fmt.Sprintf("acme issuance for domain %s: %s", domain, cause.Error())
	}

	return err
}

func NewPoolError(code VaultErrorCode, path string, cause error) *VaultError {
	err := &VaultError{
		Code:       code,
		Message:    fmt.Sprintf("pool error: %s", code.String()),
		Cause:      cause,
		Context:    map[string]interface{}{"path": path},
		HTTPStatus: code.HTTPStatus(),
	}

	if cause != nil {
		err.Message = fmt.Sprintf("certificate pool path %s: %s", path, cause.Error())
	}

	return err
}

func NewEventError(code VaultErrorCode, eventType string, cause error) *VaultError {
	err := &VaultError{
		Code:       code,
		Message:    fmt.Sprintf("event error: %s", code.String()),
		Cause:      cause,
		Context:    map[string]interface{}{"event_type": eventType},
		HTTPStatus: code.HTTPStatus(),
	}

	if cause != nil {
		err.Message = fmt.Sprintf("event %s: %s", eventType, cause.Error())
	}

	return err
}

func NewStorageError(code VaultErrorCode, operation string, cause error) *VaultError {
	err := &VaultError{
		Code:       code,
		Message:    fmt.Sprintf("storage error: %s", code.String()),
		Cause:      cause,
		Context:    map[string]interface{}{"operation": operation},
		HTTPStatus: code.HTTPStatus(),
	}

	if cause != nil {
		err.Message = fmt.Sprintf("storage operation %s: %s", operation, cause.Error())
	}

	return err
}

func NewConfigError(code VaultErrorCode, field string, cause error) *VaultError {
	err := &VaultError{
		Code:       code,
		Message:    fmt.Sprintf("configuration error: %s", code.String()),
		Cause:      cause,
		Context:    map[string]interface{}{"field": field},
		HTTPStatus: code.HTTPStatus(),
	}

	if cause != nil {
		err.Message = fmt.Sprintf("configuration field %s: %s", field, cause.Error())
	}

	return err
}

func NewValidationError(field, reason string) *VaultError {
	return &VaultError{
		Code:       ErrCodeValidation,
		Message:    reason,
		Context:    map[string]interface{}{"field": field},
		HTTPStatus: ErrCodeValidation.HTTPStatus(),
	}
}

func WrapError(code VaultErrorCode, message string, cause error) *VaultError {
	return &VaultError{
		Code:       code,
		Message:    message,
		Cause:      cause,
		Context:    make(map[string]interface{}),
		HTTPStatus: code.HTTPStatus(),
	}
}

var (
	ErrCertificateNotFound = &VaultError{
		Code:       ErrCodeCertificateNotFound,
		Message:    "certificate not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrChallengeNotFound = &VaultError{
		Code:       ErrCodeChallengeNotFound,
		Message:    "Challenge token not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrAlreadyProcessing = &VaultError{
		Code:       ErrCodeAlreadyProcessing,
		Message:    "certificate is already being processed",
		HTTPStatus: http.StatusConflict,
	}

	ErrRateLimited = &VaultError{
		Code:       ErrCodeRateLimited,
		Message:    "rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrCircuitBreakerOpen = &VaultError{
		Code:       ErrCodeCircuitBreakerOpen,
		Message:    "circuit breaker is open",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

func IsTemporary(err error) bool {
	var vaultErr *VaultError
	if errors.As(err, &vaultErr) {
		switch vaultErr.Code {
		case ErrCodeACMETimeout, ErrCodeHealthCheckTimeout,
			ErrCodeDatabaseUnavailable, ErrCodeCacheUnavailable,
			ErrCodeCircuitBreakerOpen, ErrCodeServiceUnavailable:
			return true
		}
	}
	return false
}

func IsRetryable(err error) bool {
	var vaultErr *VaultError
	if errors.As(err, &vaultErr) {
		switch vaultErr.Code {
		case ErrCodeACMETimeout, ErrCodeDatabaseUnavailable,
			ErrCodeEventPublishFailed, ErrCodeServiceUnavailable:
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool {
	var vaultErr *VaultError
	if errors.As(err, &vaultErr) {
		switch vaultErr.Code {
		case ErrCodeCertificateNotFound, ErrCodeFolderNotFound,
			ErrCodeFileNotFound, ErrCodeChallengeNotFound:
			return true
		}
	}
	return false
}

func IsConflict(err error) bool {
	var vaultErr *VaultError
	if errors.As(err, &vaultErr) {
		switch vaultErr.Code {
		case ErrCodeAlreadyProcessing, ErrCodeDuplicateFolderName,
			ErrCodeDuplicateCertificate, ErrCodeImmutableSource:
			return true
		}
	}
	return false
}

func HTTPStatusFor(err error) int {
	var vaultErr *VaultError
	if errors.As(err, &vaultErr) {
		if vaultErr.HTTPStatus != 0 {
			return vaultErr.HTTPStatus
		}
		return vaultErr.Code.HTTPStatus()
	}
	return http.StatusInternalServerError
}
