package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/target/jobtracker/internal/domain/model"
)

func TestHealthHandlerBeforeFirstCycle(t *testing.T) {
	h := &HealthHandlers{Board: NewStateBoard(), StaleAfter: time.Minute}
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	resp := rec.Result()
	t.Cleanup(func() { _ = resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %q", ct)
	}
	if body := rec.Body.String(); body != "{\"status\":\"ok\"}\n" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestHealthHandlerStale(t *testing.T) {
	now := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC)
	board := NewStateBoard()
	board.Record(model.FinalState{Job: "a", Env: "P", EvaluatedAt: now.Add(-10 * time.Minute)})

	h := &HealthHandlers{Board: board, StaleAfter: 5 * time.Minute, Now: func() time.Time { return now }}
	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	want := "{\"status\":\"stale\",\"last_cycle\":\"2024-03-05T06:50:00Z\"}\n"
	if body := rec.Body.String(); body != want {
		t.Fatalf("unexpected body: %q", body)
	}

	h.StaleAfter = 0
	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("staleness check disabled, expected 200, got %d", rec.Code)
	}
}

func TestHealthHandlerHEAD(t *testing.T) {
	h := &HealthHandlers{Board: NewStateBoard()}
	req := httptest.NewRequest(http.MethodHead, "/healthz", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	resp := rec.Result()
	t.Cleanup(func() { _ = resp.Body.Close() })

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %q", ct)
	}
	if bodyLen := rec.Body.Len(); bodyLen != 0 {
		t.Fatalf("expected empty body for HEAD request, got %d bytes", bodyLen)
	}
}
