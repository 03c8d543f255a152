// Package pagerduty triggers PagerDuty incidents for unhealthy jobs through the Events API v2.
package pagerduty

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/jobtracker/internal/observability/notify"
	"github.com/target/jobtracker/internal/observability/notify/httpsink"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Endpoint   string // defaults to APIEndpoint
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client publishes events via PagerDuty's Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	retryLimit int
	client     *http.Client
}

var _ notify.Sink = (*Client)(nil)

// NewClient constructs a PagerDuty events client from config. Callers must provide a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &Client{
		routingKey: key,
		source:     httpsink.Fallback(strings.TrimSpace(cfg.Source), "jobtracker"),
		component:  httpsink.Fallback(strings.TrimSpace(cfg.Component), "jobtracker"),
		endpoint:   httpsink.Fallback(strings.TrimSpace(cfg.Endpoint), APIEndpoint),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     hc,
	}, nil
}

// SendJobAlert submits a trigger event to PagerDuty.
func (c *Client) SendJobAlert(ctx context.Context, payload notify.JobAlertPayload) error {
	body, err := json.Marshal(c.buildEvent(payload))
	if err != nil {
		return fmt.Errorf("encode pagerduty payload: %w", err)
	}
	return httpsink.PostJSON(ctx, c.client, "pagerduty api", c.endpoint, body, c.retryLimit)
}

func (c *Client) buildEvent(payload notify.JobAlertPayload) map[string]any {
	severity := httpsink.Fallback(strings.ToLower(payload.Severity), notify.SeverityCritical)

	occurredAt := payload.OccurredAt.UTC()
	if payload.OccurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	custom := map[string]any{
		"job":      payload.Job,
		"env":      payload.Env,
		"status":   payload.Status,
		"message":  payload.Message,
		"host":     payload.Host,
		"cycle_id": payload.CycleID,
	}
	if !payload.Since.IsZero() {
		custom["since"] = payload.Since.UTC().Format(time.RFC3339)
	}
	for k, v := range payload.Metadata {
		if _, exists := custom[k]; !exists {
			custom[k] = v
		}
	}

	// One incident per job; repeated triggers while it is open are grouped by PagerDuty.
	dedupKey := "jobtracker:" + payload.JobKey()

	return map[string]any{
		"routing_key":  c.routingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]any{
			"summary": fmt.Sprintf("Job %s (%s) is %s",
				httpsink.Fallback(payload.Job, "unknown"),
				httpsink.Fallback(payload.Env, "unknown"),
				httpsink.Fallback(payload.Status, "UNKNOWN")),
			"severity":       severity,
			"source":         c.source,
			"component":      c.component,
			"timestamp":      occurredAt.Format(time.RFC3339),
			"custom_details": custom,
		},
	}
}
