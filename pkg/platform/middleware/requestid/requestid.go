// Package requestid assigns a correlation ID and request time to every
// inbound request before handlers run.
package requestid

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"inkdrop/pkg/requestcontext"
)

// HeaderRequestID is echoed back to clients for support correlation.
const HeaderRequestID = "X-Request-Id"

// Middleware injects a request ID (reusing the inbound header when present)
// and a request-scoped timestamp into the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now())

		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
