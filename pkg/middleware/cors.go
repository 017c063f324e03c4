package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// CORSConfig configures cross-origin access for the assistant UI.
type CORSConfig struct {
	// AllowedOrigins may contain "*" to allow any origin.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	MaxAge           int // seconds
	AllowCredentials bool
}

// DefaultCORSConfig allows any origin and exposes the correlation and session
// headers so the UI can read them.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		ExposedHeaders: []string{CorrelationHeader, SessionHeader},
		MaxAge:         3600,
	}
}

// corsPolicy is a CORSConfig with its header values rendered once.
type corsPolicy struct {
	wildcard    bool
	origins     map[string]bool
	credentials bool
	static      http.Header
}

func newCORSPolicy(cfg CORSConfig) corsPolicy {
	methods := cmpOr(cfg.AllowedMethods, []string{"GET", "POST", "DELETE", "OPTIONS"})
	headers := cmpOr(cfg.AllowedHeaders, []string{"Accept", "Content-Type", CorrelationHeader, SessionHeader})
	maxAge := cfg.MaxAge
	if maxAge == 0 {
		maxAge = 3600
	}

	p := corsPolicy{
		wildcard: slices.Contains(cfg.AllowedOrigins, "*"),
		origins:  make(map[string]bool, len(cfg.AllowedOrigins)),
		static: http.Header{
			"Access-Control-Allow-Methods": {strings.Join(methods, ", ")},
			"Access-Control-Allow-Headers": {strings.Join(headers, ", ")},
			"Access-Control-Max-Age":       {strconv.Itoa(maxAge)},
		},
	}
	p.credentials = cfg.AllowCredentials && !p.wildcard
	for _, o := range cfg.AllowedOrigins {
		p.origins[o] = true
	}
	if len(cfg.ExposedHeaders) > 0 {
		p.static.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposedHeaders, ", "))
	}
	return p
}

func cmpOr(v, fallback []string) []string {
	if len(v) == 0 {
		return fallback
	}
	return v
}

// apply writes the CORS headers for origin. Disallowed origins get none.
func (p corsPolicy) apply(h http.Header, origin string) {
	switch {
	case p.wildcard:
		h.Set("Access-Control-Allow-Origin", "*")
	case origin != "" && p.origins[origin]:
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	default:
		return
	}

	for k, v := range p.static {
		h[k] = v
	}
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}

// CORS sets cross-origin headers and answers preflight requests with 204.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			policy.apply(w.Header(), r.Header.Get("Origin"))

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
