package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/foodrescue-backend/api/validators"
	"github.com/angelmondragon/foodrescue-backend/pkg/logger"
)

const (
	requestIDHeader    = "X-Request-Id"
	maxRequestIDLength = 128
)

// RequestID propagates the caller's X-Request-Id or mints a new one, echoing it
// on the response and attaching it to the request logger.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := requestIDFrom(r)
			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestIDFrom(r *http.Request) string {
	raw := r.Header.Get(requestIDHeader)
	if len(raw) > maxRequestIDLength {
		return uuid.NewString()
	}
	if id := validators.SanitizeString(raw, maxRequestIDLength); id != "" {
		return id
	}
	return uuid.NewString()
}
