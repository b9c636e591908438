package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/albedosehen/certvault/internal/observability"
)

// Recovery converts handler panics into 500 responses instead of dropping
// the connection.
func Recovery(logger observability.Logger) Middleware {
	log := logger.WithFields(observability.Component("http"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error(r.Context(), fmt.Errorf("panic: %v", rec), "panic recovered",
						observability.RequestID(GetRequestID(r.Context())),
						observability.Method(r.Method),
						observability.Path(r.URL.Path),
						observability.String("stack", string(debug.Stack())),
					)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]interface{}{
						"success": false,
						"message": "internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
