package httpx

import (
	"net/http"
	"time"
)

// HealthHandlers reports liveness of the poll loop.
type HealthHandlers struct {
	Board *StateBoard
	// StaleAfter turns /healthz into 503 once no cycle has completed for this long.
	// Zero disables the staleness check.
	StaleAfter time.Duration
	Now        func() time.Time
}

type healthResponse struct {
	Status    string     `json:"status"`
	LastCycle *time.Time `json:"last_cycle,omitempty"`
}

// Health returns 200 while cycles keep completing. Before the first cycle the process is
// considered healthy.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	code := http.StatusOK

	if h.Board != nil {
		if last := h.Board.UpdatedAt(); !last.IsZero() {
			resp.LastCycle = &last
			if h.StaleAfter > 0 && h.now().Sub(last) > h.StaleAfter {
				resp.Status = "stale"
				code = http.StatusServiceUnavailable
			}
		}
	}

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		return
	}
	WriteJSON(w, code, resp)
}

func (h *HealthHandlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
