package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// openPaths are served without a token.
var openPaths = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	cfg Config
}

// NewMiddleware constructs Middleware with validation config.
func NewMiddleware(cfg Config) Middleware {
	return Middleware{cfg: cfg}
}

// Wrap attaches authentication handling to an http.Handler. Verified claims are available to
// next through FromContext.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, open := openPaths[r.URL.Path]; open {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := Parse(bearerToken(r), m.cfg)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"type": "unauthorized", "detail": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return header[len("Bearer "):]
}
