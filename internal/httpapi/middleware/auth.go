package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// APIKeyName is the header, query parameter and cookie name accepted for keys.
const APIKeyName = "api_key"

type Keys struct {
	Public []string
	Admin  []string

	// AdminUser and AdminPassword enable HTTP Basic admin access when both are set.
	AdminUser     string
	AdminPassword string
}

func (k Keys) basicEnabled() bool { return k.AdminUser != "" && k.AdminPassword != "" }

// readAuth returns the first API key found in the request, checking the
// Authorization bearer token, X-API-Key, then api_key as header, query and cookie.
func readAuth(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if k := r.Header.Get("X-API-Key"); k != "" {
		return strings.TrimSpace(k)
	}
	if k := r.Header.Get(APIKeyName); k != "" {
		return strings.TrimSpace(k)
	}
	if k := r.URL.Query().Get(APIKeyName); k != "" {
		return strings.TrimSpace(k)
	}
	if c, err := r.Cookie(APIKeyName); err == nil && c.Value != "" {
		return strings.TrimSpace(c.Value)
	}
	return ""
}

func hasKey(given string, set []string) bool {
	if given == "" || len(set) == 0 {
		return false
	}
	for _, k := range set {
		if subtle.ConstantTimeCompare([]byte(k), []byte(given)) == 1 {
			return true
		}
	}
	return false
}

func isBasicAdmin(r *http.Request, keys Keys) bool {
	if !keys.basicEnabled() {
		return false
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(keys.AdminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(keys.AdminPassword)) == 1
	return userOK && passOK
}

func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// RequireAny allows requests that present a public or admin key, or admin
// Basic credentials. If nothing is configured it allows all requests (handy
// for local dev).
func RequireAny(keys Keys) func(http.Handler) http.Handler {
	enabled := len(keys.Public) > 0 || len(keys.Admin) > 0 || keys.basicEnabled()
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := readAuth(r)
			if hasKey(key, keys.Public) || hasKey(key, keys.Admin) || isBasicAdmin(r, keys) {
				next.ServeHTTP(w, r)
				return
			}
			if keys.basicEnabled() {
				w.Header().Set("WWW-Authenticate", `Basic realm="urlmonitor"`)
			}
			deny(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

// RequireAdmin only permits an admin key or admin Basic credentials.
// If no admin access is configured, it allows all requests (dev).
func RequireAdmin(keys Keys) func(http.Handler) http.Handler {
	enabled := len(keys.Admin) > 0 || keys.basicEnabled()
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasKey(readAuth(r), keys.Admin) || isBasicAdmin(r, keys) {
				next.ServeHTTP(w, r)
				return
			}
			deny(w, http.StatusForbidden, "forbidden")
		})
	}
}
