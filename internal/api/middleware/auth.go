package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/scanhunter/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

// Auth checks the operator API key against a single bcrypt hash.
type Auth struct {
	keyHash []byte
}

// NewAuth creates Auth for the given bcrypt hash. An empty hash disables
// authentication; the server refuses that outside development.
func NewAuth(apiKeyHash string) *Auth {
	return &Auth{keyHash: []byte(apiKeyHash)}
}

// Enabled reports whether requests must carry an API key.
func (a *Auth) Enabled() bool { return len(a.keyHash) > 0 }

// Authenticate validates the Bearer token and records a caller identifier in
// the request context for rate limiting.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		rawKey := extractBearerToken(r)
		if rawKey == "" {
			response.Error(w, http.StatusUnauthorized,
				response.CodeInvalidToken, "Missing or invalid Authorization header", nil)
			return
		}

		if bcrypt.CompareHashAndPassword(a.keyHash, []byte(rawKey)) != nil {
			response.Error(w, http.StatusUnauthorized,
				response.CodeInvalidToken, "Invalid API key", nil)
			return
		}

		r = r.WithContext(setCaller(r.Context(), callerID(rawKey)))
		next.ServeHTTP(w, r)
	})
}

// callerID is a stable, non-reversible identifier for an API key.
func callerID(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:8])
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
