package server

import (
	"encoding/json"
	"errors"
	"net/http"

	vaulterrors "github.com/albedosehen/certvault/internal/errors"
	"github.com/albedosehen/certvault/internal/middleware"
	"github.com/albedosehen/certvault/internal/observability"
)

// envelope is the uniform response body. Every endpoint answers with it,
// success and failure alike.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondOK(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func respondAccepted(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusAccepted, envelope{Success: true, Message: message, Data: data})
}

func respondCreated(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: message, Data: data})
}

// respondError maps a typed error onto its HTTP disposition. Unexpected
// errors answer 500 without leaking their cause.
func respondError(w http.ResponseWriter, r *http.Request, logger observability.Logger, err error) {
	status := vaulterrors.HTTPStatusFor(err)

	var verr *vaulterrors.VaultError
	body := envelope{Success: false, Message: "internal server error"}
	if errors.As(err, &verr) {
		body.Message = verr.Message
		body.Code = verr.Code.String()
	}

	if status >= http.StatusInternalServerError {
		logger.Error(r.Context(), err, "request failed",
			observability.RequestID(middleware.GetRequestID(r.Context())),
			observability.Method(r.Method),
			observability.Path(r.URL.Path),
			observability.Status(status))
	}

	writeJSON(w, status, body)
}
