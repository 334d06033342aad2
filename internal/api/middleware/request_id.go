package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/xpmail/formhub/internal/observability"
)

const (
	requestIDHeader       = "X-Request-ID"
	maxIncomingRequestIDs = 128
)

// RequestID runs first in the chain: ensures every request has an X-Request-ID in context
// and in the response header. A client-sent id is kept when it is short and printable; otherwise one is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if !acceptableRequestID(id) {
			id = uuid.Must(uuid.NewV7()).String()
		}

		ctx := context.WithValue(r.Context(), observability.RequestIDKey, id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func acceptableRequestID(id string) bool {
	if id == "" || len(id) > maxIncomingRequestIDs {
		return false
	}

	for i := range len(id) {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}

	return true
}
