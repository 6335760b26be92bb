package api

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"
)

// AuthConfig holds the credentials accepted by the API.
type AuthConfig struct {
	Users  map[string]string // username -> password
	Tokens map[string]bool   // bearer tokens, also accepted as X-API-Key
}

// NewAuthConfig returns a config accepting the given bearer tokens. Empty
// tokens are ignored; nil is returned when none remain.
func NewAuthConfig(tokens ...string) *AuthConfig {
	cfg := &AuthConfig{Users: map[string]string{}, Tokens: map[string]bool{}}
	for _, t := range tokens {
		if t != "" {
			cfg.Tokens[t] = true
		}
	}
	if len(cfg.Tokens) == 0 {
		return nil
	}
	return cfg
}

// openPaths bypass authentication.
var openPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// authMiddleware requires Basic, Bearer or X-API-Key credentials on every
// path except openPaths.
func authMiddleware(cfg AuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if openPaths[r.URL.Path] || cfg.allows(r) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="bigsh API"`)
		writeError(w, http.StatusUnauthorized, "authentication required")
	})
}

func (cfg AuthConfig) allows(r *http.Request) bool {
	if auth := r.Header.Get("Authorization"); auth != "" && cfg.checkAuthorization(auth) {
		return true
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return cfg.Tokens[key]
	}
	return false
}

func (cfg AuthConfig) checkAuthorization(auth string) bool {
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return cfg.Tokens[token]
	}
	encoded, ok := strings.CutPrefix(auth, "Basic ")
	if !ok {
		return false
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}
	user, pass, ok := strings.Cut(string(payload), ":")
	if !ok {
		return false
	}
	expected, exists := cfg.Users[user]
	return exists && subtle.ConstantTimeCompare([]byte(pass), []byte(expected)) == 1
}
