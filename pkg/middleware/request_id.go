package middleware

import (
	"net/http"

	"github.com/acme/catalog-console/pkg/requestid"
	"github.com/go-chi/chi/v5/middleware"
)

// RequestID takes the request ID from the X-Request-Id header the console
// client sends, or generates one, and stores it in the request context.
// The ID is echoed in the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(middleware.RequestIDHeader)
		if requestID == "" {
			requestID = requestid.Generate()
		}

		w.Header().Set(middleware.RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(requestid.ToContext(r.Context(), requestID)))
	})
}

// GetRequestIDFromRequest returns the request ID stored by RequestID, or "".
func GetRequestIDFromRequest(r *http.Request) string {
	return requestid.FromContext(r.Context())
}
