package server

import (
	"fmt"
	"net/http"
	"strings"

	"serial-led-bridge/internal/logger"
)

// OriginGate enforces the cross-origin allow-list. Requests without an Origin
// header (same-origin, local files, non-browser clients) always pass.
type OriginGate struct {
	allowed map[string]bool
	list    []string
}

func NewOriginGate(origins []string) *OriginGate {
	g := &OriginGate{allowed: make(map[string]bool, len(origins))}
	for _, o := range origins {
		g.allowed[o] = true
		g.list = append(g.list, o)
	}
	return g
}

// Allow reports whether a request declaring origin may proceed. Origins are
// compared exactly; there is no wildcard or pattern matching.
func (g *OriginGate) Allow(origin string) bool {
	return origin == "" || g.allowed[origin]
}

// CheckOrigin adapts Allow for the websocket upgrader.
func (g *OriginGate) CheckOrigin(r *http.Request) bool {
	return g.Allow(r.Header.Get("Origin"))
}

// Middleware rejects requests from origins outside the allow-list before they
// reach any handler and adds the CORS response headers for allowed ones.
func (g *OriginGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if !g.Allow(origin) {
			logger.Warn("CORS: request BLOCKED from origin %s (%s %s). Allowed origins: %s",
				origin, r.Method, r.URL.Path, strings.Join(g.list, ", "))
			http.Error(w, fmt.Sprintf("Origin %s is not allowed by the CORS policy.", origin), http.StatusForbidden)
			return
		}
		if origin == "" {
			logger.Debug("CORS: request allowed from same origin/unknown (%s %s)", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
			return
		}

		logger.Info("CORS: request allowed from origin %s (%s %s)", origin, r.Method, r.URL.Path)
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
				h.Set("Access-Control-Allow-Headers", reqHeaders)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
