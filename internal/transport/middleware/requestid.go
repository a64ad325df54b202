package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hanifrahman/talenthub-payments/pkg/logger"
)

const traceHeader = "X-Trace-ID"

// RequestID honors an inbound X-Trace-ID or mints one, stamps it on the
// response, and scopes the context logger to it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(traceHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		ctx := logger.With(r.Context(), "trace_id", traceID)
		w.Header().Set(traceHeader, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
