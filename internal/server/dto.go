package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	vaulterrors "github.com/albedosehen/certvault/internal/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type createRequest struct {
	Domain      string `json:"domain" validate:"required,hostname_rfc1123"`
	FolderName  string `json:"folder_name" validate:"omitempty,max=255"`
	Email       string `json:"email" validate:"omitempty,email"`
	Certificate string `json:"certificate" validate:"required"`
	PrivateKey  string `json:"private_key" validate:"required"`
}

type updateManualAddRequest struct {
	ID          string  `json:"id" validate:"required"`
	Domain      *string `json:"domain" validate:"omitempty,hostname_rfc1123"`
	FolderName  *string `json:"folder_name" validate:"omitempty,max=255"`
	Email       *string `json:"email" validate:"omitempty,email"`
	Certificate *string `json:"certificate"`
	PrivateKey  *string `json:"private_key"`
}

type updateManualApplyRequest struct {
	ID         string  `json:"id" validate:"required"`
	FolderName *string `json:"folder_name" validate:"omitempty,max=255"`
}

type deleteRequest struct {
	ID string `json:"id" validate:"required"`
}

type applyRequest struct {
	Domain       string   `json:"domain" validate:"required,hostname_rfc1123"`
	SANs         []string `json:"sans" validate:"omitempty,dive,hostname_rfc1123"`
	Email        string   `json:"email" validate:"required,email"`
	FolderName   string   `json:"folder_name" validate:"required,max=255"`
	ForceRenewal bool     `json:"force_renewal"`
}

type reapplyAutoRequest struct {
	ID           string   `json:"id" validate:"required"`
	Email        string   `json:"email" validate:"omitempty,email"`
	SANs         []string `json:"sans" validate:"omitempty,dive,hostname_rfc1123"`
	ForceRenewal bool     `json:"force_renewal"`
}

type reapplyManualApplyRequest struct {
	ID           string   `json:"id" validate:"required"`
	Domain       string   `json:"domain" validate:"omitempty,hostname_rfc1123"`
	FolderName   string   `json:"folder_name" validate:"omitempty,max=255"`
	Email        string   `json:"email" validate:"omitempty,email"`
	SANs         []string `json:"sans" validate:"omitempty,dive,hostname_rfc1123"`
	ForceRenewal bool     `json:"force_renewal"`
}

type reapplyManualAddRequest struct {
	ID          string `json:"id" validate:"required"`
	Certificate string `json:"certificate" validate:"required"`
	PrivateKey  string `json:"private_key"`
}

type searchRequest struct {
	Keyword  string  `json:"keyword" validate:"required,max=255"`
	Store    *string `json:"store"`
	Source   *string `json:"source"`
	Page     int     `json:"page" validate:"omitempty,min=1"`
	PageSize int     `json:"page_size" validate:"omitempty,min=1,max=100"`
}

// decodeAndValidate unmarshals the body into dst and runs its struct tags.
// Failures come back as typed validation errors so the envelope carries the
// offending field.
func decodeAndValidate(r *http.Request, validate *validator.Validate, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return vaulterrors.NewValidationError("body", fmt.Sprintf("invalid request body: %v", err))
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := strings.ToLower(verrs[0].Field())
			return vaulterrors.NewValidationError(field,
				fmt.Sprintf("field %q failed validation rule %q", field, verrs[0].Tag()))
		}
		return vaulterrors.NewValidationError("body", err.Error())
	}
	return nil
}

// paging converts the page/page_size query parameters into an offset/limit
// pair. Page numbering starts at 1.
func paging(r *http.Request) (offset, limit int, err error) {
	page := 1
	size := defaultPageSize

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, vaulterrors.NewValidationError("page", "page must be a positive integer")
		}
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		size, err = strconv.Atoi(raw)
		if err != nil || size < 1 || size > maxPageSize {
			return 0, 0, vaulterrors.NewValidationError("page_size",
				fmt.Sprintf("page_size must be between 1 and %d", maxPageSize))
		}
	}

	return (page - 1) * size, size, nil
}
