package health

import (
	"encoding/json"
	"net/http"
)

// NewHandler serves the aggregated readiness report. A degraded report
// answers 503 so load balancers rotate the instance out.
func NewHandler(agg Aggregator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := agg.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if !report.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
}
