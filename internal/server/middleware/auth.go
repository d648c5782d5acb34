package middleware

import (
	"crypto/subtle"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentstation/blockquote/internal/server/response"
)

// APIKeyEnv is read when no key is configured explicitly.
const APIKeyEnv = "BLOCKQUOTE_API_KEY"

// AuthConfig controls API key checks.
type AuthConfig struct {
	Enabled     bool
	APIKey      string
	HeaderName  string
	PublicPaths []string
}

// DefaultAuthConfig returns a disabled config keyed from the environment.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		APIKey:      os.Getenv(APIKeyEnv),
		HeaderName:  "X-API-Key",
		PublicPaths: []string{"/health", "/metrics"},
	}
}

// Auth rejects requests to non-public paths that lack the API key. With no
// key configured every protected request is rejected.
func Auth(cfg AuthConfig, logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if slices.Contains(cfg.PublicPaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			key := presentedKey(r, cfg.HeaderName)
			if key == "" || cfg.APIKey == "" ||
				subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) != 1 {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Bool("key_provided", key != "").
					Msg("Authentication failed")
				response.Unauthorized(w, "Provide a valid API key in the "+cfg.HeaderName+" header")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// presentedKey reads header, then Authorization with or without a Bearer
// prefix.
func presentedKey(r *http.Request, header string) string {
	if key := r.Header.Get(header); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ")
}
