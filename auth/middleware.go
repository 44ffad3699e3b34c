package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

var userIDKey = contextKey{}

// UserIDFrom extracts the authenticated user id placed by Middleware. The
// second return is false on unauthenticated requests.
func UserIDFrom(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

// WithUserID returns a context carrying the authenticated user id. Exposed for
// handlers under test.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// Middleware rejects requests without a valid bearer token and stores the
// token's user id in the request context.
func Middleware(tokens *TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"NOT_AUTHENTICATED"}`, http.StatusUnauthorized)
				return
			}
			claims, err := tokens.Validate(token)
			if err != nil {
				http.Error(w, `{"error":"NOT_AUTHENTICATED"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.UserID)))
		})
	}
}

// BearerToken pulls the token from the Authorization header, falling back to
// the "token" query parameter for websocket clients that cannot set headers.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, found := strings.CutPrefix(header, "Bearer "); found {
		return after
	}
	return r.URL.Query().Get("token")
}
