package http

import (
	"net/http"
	"strings"
)

// corsPolicy is the parsed CORS_ORIGINS allow-list.
type corsPolicy struct {
	any     bool
	origins map[string]bool
}

func newCORSPolicy(allowedOrigins []string) corsPolicy {
	p := corsPolicy{origins: make(map[string]bool, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[o] = true
		}
	}
	return p
}

func (p corsPolicy) allows(origin string) bool {
	return p.any || p.origins[origin]
}

// setHeaders writes the response headers for an allowed origin. Browsers
// need ETag exposed to revalidate /api/scene.
func (p corsPolicy) setHeaders(h http.Header, origin string) {
	if p.any {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	}
	h.Set("Access-Control-Expose-Headers", "ETag")
}

// CORS applies the allow-list. "*" allows any origin. Preflights from
// unknown origins are rejected; simple requests pass through without headers.
func CORS(allowedOrigins []string, next http.Handler) http.Handler {
	policy := newCORSPolicy(allowedOrigins)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		preflight := origin != "" && r.Method == http.MethodOptions &&
			r.Header.Get("Access-Control-Request-Method") != ""

		switch {
		case origin == "":
			next.ServeHTTP(w, r)
		case !policy.allows(origin) && preflight:
			writeError(w, http.StatusForbidden, codeForbidden, "origin not allowed")
		case !policy.allows(origin):
			next.ServeHTTP(w, r)
		case preflight:
			policy.setHeaders(w.Header(), origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, If-None-Match")
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
		default:
			policy.setHeaders(w.Header(), origin)
			next.ServeHTTP(w, r)
		}
	})
}
