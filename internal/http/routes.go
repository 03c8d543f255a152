// Package httpx serves the read-only status API of the tracker.
package httpx

import (
	"log/slog"
	"net/http"
	"time"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Board      *StateBoard   // Required
	StaleAfter time.Duration // Optional: health turns 503 after this long without a cycle
	Logger     *slog.Logger  // Optional
}

// NewRouter creates the status API router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	board := services.Board
	if board == nil {
		board = NewStateBoard()
	}

	health := &HealthHandlers{Board: board, StaleAfter: services.StaleAfter}
	status := &StatusHandlers{Board: board}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", health.Health)
	mux.HandleFunc("HEAD /healthz", health.Health)
	mux.HandleFunc("GET /api/status", status.List)
	mux.HandleFunc("GET /api/status/{job}/{env}", status.Get)

	return Chain(mux, Recover(logger), AccessLog(logger))
}
