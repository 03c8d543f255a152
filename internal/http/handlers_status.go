package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/target/jobtracker/internal/domain/model"
)

// StatusHandlers serves the last computed state of every tracked job.
type StatusHandlers struct {
	Board *StateBoard
}

type jobStatusView struct {
	Job         string    `json:"job"`
	Env         string    `json:"env"`
	Status      string    `json:"status"`
	Healthy     bool      `json:"healthy"`
	Since       time.Time `json:"since"`
	Message     string    `json:"message"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

type statusListResponse struct {
	Jobs      []jobStatusView `json:"jobs"`
	Unhealthy int             `json:"unhealthy"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

func toView(st model.FinalState) jobStatusView {
	return jobStatusView{
		Job:         st.Job,
		Env:         st.Env,
		Status:      st.Status.String(),
		Healthy:     st.Status.Healthy(),
		Since:       st.Since,
		Message:     st.Message,
		EvaluatedAt: st.EvaluatedAt,
	}
}

// List returns all job states. With ?unhealthy=true only unhealthy jobs are listed.
func (h *StatusHandlers) List(w http.ResponseWriter, r *http.Request) {
	onlyUnhealthy := false
	if raw := r.URL.Query().Get("unhealthy"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_query", Message: "unhealthy must be a boolean"})
			return
		}
		onlyUnhealthy = v
	}

	resp := statusListResponse{Jobs: []jobStatusView{}}
	for _, st := range h.Board.Snapshot() {
		if !st.Status.Healthy() {
			resp.Unhealthy++
		} else if onlyUnhealthy {
			continue
		}
		resp.Jobs = append(resp.Jobs, toView(st))
	}
	if updated := h.Board.UpdatedAt(); !updated.IsZero() {
		resp.UpdatedAt = &updated
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Get returns the state of a single job addressed by /api/status/{job}/{env}.
func (h *StatusHandlers) Get(w http.ResponseWriter, r *http.Request) {
	job, env := r.PathValue("job"), r.PathValue("env")
	st, ok := h.Board.Get(job, env)
	if !ok {
		WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Message: "job " + model.JobKey(job, env) + " is not tracked"})
		return
	}
	WriteJSON(w, http.StatusOK, toView(st))
}
