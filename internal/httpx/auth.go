package httpx

import (
	"context"
	"net/http"
	"strings"

	"bookswap/internal/apperr"

	"github.com/google/uuid"
)

type contextKey string

const userIDKey contextKey = "user_id"

// TokenVerifier resolves a session token to the user it was issued for.
type TokenVerifier interface {
	Verify(token string) (uuid.UUID, error)
}

// Authenticate returns middleware that requires a valid Bearer session token
// and places the session's user id in the request context.
func Authenticate(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				JSON(w, http.StatusUnauthorized, ErrorEnvelope{Error: "missing or invalid authorization header", Code: apperr.Code(apperr.ErrUnauthorized)})
				return
			}
			userID, err := v.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				Error(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// WithUserID returns a copy of ctx carrying the current user's id.
func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the current user's id from the request context.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// CurrentUser is UserID for handlers: it writes a 401 and returns false when
// the request carries no session.
func CurrentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := UserID(r.Context())
	if !ok {
		Error(w, apperr.ErrUnauthorized)
	}
	return id, ok
}
