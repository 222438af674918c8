package server

import (
	"crypto/subtle"
	"net/http"
)

// BasicAuth wraps next with HTTP Basic authentication. Credentials are
// read per request so configuration changes apply without a restart.
// Uses constant-time comparison to prevent timing attacks.
func BasicAuth(credentials func() (username, password string), next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wantUser, wantPass := credentials()

		user, pass, ok := r.BasicAuth()
		userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser)) == 1
		passMatch := subtle.ConstantTimeCompare([]byte(pass), []byte(wantPass)) == 1
		if !ok || !userMatch || !passMatch {
			w.Header().Set("WWW-Authenticate", `Basic realm="zwfm-recorder"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}
