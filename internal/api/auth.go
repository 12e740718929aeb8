package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/MikeSquared-Agency/macha/internal/session"
)

// UserHeader carries the signed-in user's id, set by the fronting auth proxy.
const UserHeader = "X-User-ID"

// BearerAuthMiddleware rejects requests without the shared API token. An
// empty token disables the check. Browsers cannot set headers on a
// websocket handshake, so the token is also read from ?access_token=.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				got = r.URL.Query().Get("access_token")
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func identityFrom(r *http.Request) session.Identity {
	return session.Identity{UserID: strings.TrimSpace(r.Header.Get(UserHeader))}
}
