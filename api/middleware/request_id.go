package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID assigns a request id to every request, honoring one the
// caller already supplied, and echoes it back in the response header.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}
