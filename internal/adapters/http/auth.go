package httpadapter

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/GoBeromsu/My-awesome-RA/internal/core/domain"
)

// bearerAuthMiddleware requires "Authorization: Bearer <apiKey>" on every
// request. An empty apiKey disables the check.
func bearerAuthMiddleware(next http.Handler, apiKey string) http.Handler {
	if apiKey == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isAuthorizedBearerHeader(r.Header.Get("Authorization"), apiKey) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="evidence-panel"`)
		err := domain.WrapError(domain.ErrUnauthorized, "authenticate", errors.New("missing or invalid bearer token"))
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error(), RequestID: requestIDFromContext(r.Context())})
	})
}

func isAuthorizedBearerHeader(headerValue, expectedToken string) bool {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" || expectedToken == "" {
		return false
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) == 1
}
