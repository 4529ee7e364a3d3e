package middleware

import (
	"net/http"

	"share-gateway/pkg/logging"
)

// Correlation assigns every request a correlation ID and echoes it back so
// callers can quote it in support requests.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithCorrelationID(r.Context())
		w.Header().Set("X-Correlation-ID", logging.GetCorrelationID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
