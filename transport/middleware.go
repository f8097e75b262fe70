package transport

import (
	"context"
	"net/http"
	"strings"

	"dm-lab/auth"
	apperrors "dm-lab/errors"
)

type contextKey string

const userIDKey contextKey = "userID"

// UserIDFrom extracts the authenticated identity placed by the middleware.
func UserIDFrom(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// tokenFrom looks for credentials in, by priority, the Authorization
// header, the query string, then the session cookie. The query form exists
// for websocket clients that cannot set headers.
func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}
	if c, err := r.Cookie("jwt"); err == nil {
		return c.Value
	}
	return ""
}

// RequireAuth verifies the token and injects the user ID into the request
// context.
func RequireAuth(authenticator auth.Authenticator, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFrom(r)
		if token == "" {
			writeError(w, apperrors.ErrInvalidCredentials)
			return
		}
		userID, err := authenticator.Verify(token)
		if err != nil {
			writeError(w, apperrors.ErrInvalidCredentials)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}
