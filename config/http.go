package config

import (
	"strings"
	"time"
)

// HTTPConfig contains status API server configuration.
type HTTPConfig struct {
	// Enabled starts the status API listener.
	Enabled bool `env:"HTTP_ENABLED" envDefault:"false"`

	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// StaleAfter makes /healthz fail once no cycle has completed for this long.
	// Defaults to three poll intervals.
	StaleAfter time.Duration `env:"HTTP_HEALTH_STALE_AFTER"`

	// ShutdownTimeout bounds graceful shutdown of open connections.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize(interval time.Duration) {
	h.Addr = strings.TrimSpace(h.Addr)
	if h.Addr == "" {
		h.Enabled = false
	}
	if h.StaleAfter <= 0 {
		h.StaleAfter = 3 * interval
	}
	h.ShutdownTimeout = clampDuration(h.ShutdownTimeout, 10*time.Second, time.Second, time.Minute)
}
