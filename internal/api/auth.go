package api

import (
	"context"
	"net/http"

	"github.com/fuomag9/targetwatch/internal/auth"
)

type contextKey string

const ownerContextKey contextKey = "owner"

// AuthMiddleware requires a valid bearer token and stores its owner id in
// the request context.
func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.FromRequest(r, false)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
				return
			}
			ownerID, err := auth.ParseToken(token, jwtSecret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ownerContextKey, ownerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerContextKey).(string)
	return owner
}
