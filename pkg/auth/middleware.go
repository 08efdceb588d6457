package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey string

const userKey contextKey = "user"

// BearerToken extracts the token from the Authorization header, falling back
// to the token query parameter used by websocket clients.
func BearerToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	if token == "" {
		return r.URL.Query().Get("token")
	}
	return strings.TrimPrefix(token, "Bearer ")
}

// Middleware rejects requests without a valid token and stores the claims in
// the request context.
func (t *Tokens) Middleware(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		claims, err := t.Validate(token)
		if err != nil {
			log.WithError(err).Debug("Rejected token")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(userKey).(*Claims)
	return claims, ok
}
