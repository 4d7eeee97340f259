package daemon

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"modelscanner/internal/logging"
)

// authMiddleware validates the caller's token against tokens. The token may
// arrive as a "token" query parameter or an "Authorization: Bearer" header.
// A missing token is 401, an unknown one 403. With no tokens configured every
// request passes.
func (s *apiServer) authMiddleware(tokens []string, next http.Handler) http.Handler {
	if len(tokens) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := requestToken(r)
		if token == "" {
			s.log(r.Context()).Warn("request without token",
				logging.String("path", r.URL.Path),
				logging.String(logging.FieldEventType, "api_auth_missing"),
			)
			s.writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		if !tokenAllowed(tokens, token) {
			s.log(r.Context()).Warn("request with unknown token",
				logging.String("path", r.URL.Path),
				logging.String(logging.FieldEventType, "api_auth_rejected"),
			)
			s.writeError(w, http.StatusForbidden, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

func tokenAllowed(tokens []string, token string) bool {
	allowed := false
	for _, candidate := range tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			allowed = true
		}
	}
	return allowed
}
