package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/xpmail/formhub/internal/api/response"
	"github.com/xpmail/formhub/internal/api/validation"
)

// UserIDHeader carries the authenticated owner id, set by the identity-aware front end.
const UserIDHeader = "X-User-ID"

type ownerIDKey struct{}

// OwnerID returns the owner id stored by Auth, or "".
func OwnerID(ctx context.Context) string {
	id, _ := ctx.Value(ownerIDKey{}).(string)

	return id
}

// WithOwnerID returns ctx carrying ownerID, as Auth does.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey{}, ownerID)
}

// Auth validates the API key from the Authorization header and stores the caller's owner id
// from X-User-ID in the request context.
func Auth(apiKey string) func(http.Handler) http.Handler {
	expected := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.RespondUnauthorized(w, "Missing Authorization header")

				return
			}

			// Expected format: "Bearer <api-key>"
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				response.RespondUnauthorized(w, "Invalid Authorization header format. Expected: Bearer <api-key>")

				return
			}

			token = strings.TrimSpace(token)
			if token == "" {
				response.RespondUnauthorized(w, "API key is empty")

				return
			}

			if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
				response.RespondUnauthorized(w, "Invalid API key")

				return
			}

			ownerID := r.Header.Get(UserIDHeader)
			if err := validation.ValidateOwnerID(ownerID); err != nil {
				response.RespondUnauthorized(w, err.Error())

				return
			}

			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), ownerID)))
		})
	}
}
