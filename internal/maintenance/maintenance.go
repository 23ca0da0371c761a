// Package maintenance gates public traffic behind a switchable 503 page
// while leaving health checks and allowlisted admin addresses open.
package maintenance

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/kalmarr/matrixcbs/internal/config"
	"github.com/kalmarr/matrixcbs/internal/routes"
	"github.com/rs/zerolog"
)

var maintenanceLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	maintenanceLogger = l
}

type Gate struct {
	mu      sync.RWMutex
	enabled bool

	allowedIPs map[string]struct{}
	retryAfter int
}

func NewGate(cfg config.MaintenanceConfig) *Gate {
	allowed := make(map[string]struct{}, len(cfg.AllowedIPs))
	for _, ip := range cfg.AllowedIPs {
		allowed[ip] = struct{}{}
	}

	return &Gate{
		enabled:    cfg.Enabled,
		allowedIPs: allowed,
		retryAfter: 300,
	}
}

func (g *Gate) Enabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.enabled
}

func (g *Gate) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
}

// Middleware returns 503 for all requests while the gate is up, except for
// health probes, robots.txt and allowlisted client addresses.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		if r.URL.Path == routes.HealthPath || r.URL.Path == routes.RobotsPath {
			next.ServeHTTP(w, r)
			return
		}

		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if _, ok := g.allowedIPs[host]; ok {
			next.ServeHTTP(w, r)
			return
		}

		maintenanceLogger.Debug().Str("remote", host).Str("path", r.URL.Path).Msg("Request rejected by maintenance gate")

		w.Header().Set(config.HRetryAfter, strconv.Itoa(g.retryAfter))
		http.Error(w, config.ErrMaintenanceBody, http.StatusServiceUnavailable)
	})
}

// ServeState is the admin endpoint for reading and flipping the gate.
func (g *Gate) ServeState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:

	case http.MethodPost:
		var payload struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}
		g.SetEnabled(payload.Enabled)
		maintenanceLogger.Info().Bool("enabled", payload.Enabled).Msg("Maintenance mode toggled")

	default:
		http.Error(w, config.HTTPErrMethodNotAllowed, http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set(config.HCType, config.CTypeJSON)
	_ = json.NewEncoder(w).Encode(map[string]bool{"enabled": g.Enabled()})
}
