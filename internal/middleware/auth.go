package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	apperrors "sendqueue/internal/errors"
	"sendqueue/internal/httputil"

	"github.com/sirupsen/logrus"
)

// AdminAuth requires "Authorization: Bearer <token>". An empty token
// disables the check.
func AdminAuth(token string, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			given := httputil.BearerToken(r)
			if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
				logger.WithFields(logrus.Fields{
					"url":       r.URL.Path,
					"remote_ip": httputil.ClientIP(r, false),
				}).Warn("Rejected admin request with bad token")
				WriteError(w, apperrors.NewAuthError("invalid admin token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError renders err as the standard JSON error body.
func WriteError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apperrors.HTTPStatusCode(err))
	_ = json.NewEncoder(w).Encode(apperrors.ToHTTPResponse(err))
}
