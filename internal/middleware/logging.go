package middleware

import (
	"net/http"
	"time"

	"github.com/albedosehen/certvault/internal/observability"
)

// Logging emits one structured access log line per request.
func Logging(logger observability.Logger) Middleware {
	log := logger.WithFields(observability.Component("http"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			log.Info(r.Context(), "request handled",
				observability.RequestID(GetRequestID(r.Context())),
				observability.Method(r.Method),
				observability.Path(r.URL.Path),
				observability.Status(sw.status),
				observability.Duration("duration", time.Since(start)),
				observability.RemoteAddr(ClientIP(r)),
				observability.UserAgent(r.UserAgent()),
			)
		})
	}
}
