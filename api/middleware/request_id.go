package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"

	"github.com/artisanalley/marketplace-backend/pkg/logger"
)

const RequestIDHeader = "X-Request-Id"

// Inbound ids are echoed only when they look like an id, never arbitrary text.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{8,128}$`)

// RequestID propagates a caller-supplied X-Request-Id or mints one, echoes it
// on the response and tags the request's log context with it.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if !requestIDPattern.MatchString(id) {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
