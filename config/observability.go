package config

import (
	"strings"
	"time"
)

const defaultObservabilityName = "jobtracker"

// ObservabilityConfig groups configuration that controls metrics and alert fan-out.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig controls emission of metrics to a StatsD agent.
type ObservabilityMetricsConfig struct {
	Enabled       bool          `env:"OBSERVABILITY_METRICS_ENABLED"        envDefault:"false"`
	StatsdAddress string        `env:"OBSERVABILITY_METRICS_STATSD_ADDRESS" envDefault:"127.0.0.1:8125"`
	Prefix        string        `env:"OBSERVABILITY_METRICS_PREFIX"         envDefault:"jobtracker"`
	FlushInterval time.Duration `env:"OBSERVABILITY_METRICS_FLUSH_INTERVAL" envDefault:"1s"`
}

// Sanitize normalises derived fields and enforces safe defaults.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.StatsdAddress = strings.TrimSpace(c.StatsdAddress)
	if c.StatsdAddress == "" {
		c.Enabled = false
	}
	c.Prefix = strings.TrimSpace(c.Prefix)
	c.FlushInterval = clampDuration(c.FlushInterval, time.Second, 100*time.Millisecond, time.Minute)
}

// IsEnabled returns true when metrics emission is active after sanitisation.
func (c *ObservabilityMetricsConfig) IsEnabled() bool {
	return c.Enabled && c.StatsdAddress != ""
}

// DedupeBackend selects where alert deduplication markers live.
type DedupeBackend string

const (
	// DedupeBackendMemory keeps markers in process memory.
	DedupeBackendMemory DedupeBackend = "memory"
	// DedupeBackendRedis shares markers between tracker replicas.
	DedupeBackendRedis DedupeBackend = "redis"
)

// ObservabilityNotificationsConfig controls outbound job alerts.
type ObservabilityNotificationsConfig struct {
	Enabled       bool                        `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"        envDefault:"false"`
	Timeout       time.Duration               `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"        envDefault:"5s"`
	RetryLimit    int                         `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT"    envDefault:"3"`
	DedupeTTL     time.Duration               `env:"OBSERVABILITY_NOTIFICATIONS_DEDUPE_TTL"     envDefault:"1h"`
	DedupeBackend DedupeBackend               `env:"OBSERVABILITY_NOTIFICATIONS_DEDUPE_BACKEND" envDefault:"memory"`
	Slack         SlackNotificationConfig     `                                                                    envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty     PagerDutyNotificationConfig `                                                                    envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.RetryLimit < 0 {
		c.RetryLimit = 0
	}
	if c.DedupeTTL <= 0 {
		c.DedupeTTL = time.Hour
	}
	c.DedupeBackend = DedupeBackend(strings.ToLower(strings.TrimSpace(string(c.DedupeBackend))))
	if c.DedupeBackend != DedupeBackendRedis {
		c.DedupeBackend = DedupeBackendMemory
	}

	c.Slack.sanitize()
	c.PagerDuty.sanitize()

	if !c.Enabled {
		c.Slack.Enabled = false
		c.PagerDuty.Enabled = false
		c.DedupeBackend = DedupeBackendMemory
		return
	}

	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		c.Slack.Enabled = false
	}

	if c.PagerDuty.Enabled && c.PagerDuty.RoutingKey == "" {
		c.PagerDuty.Enabled = false
	}
}

// SlackNotificationConfig controls Slack webhook fan-out.
type SlackNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME"    envDefault:"jobtracker"`
}

func (c *SlackNotificationConfig) sanitize() {
	c.WebhookURL = strings.TrimSpace(c.WebhookURL)
	c.Channel = strings.TrimSpace(c.Channel)
	if c.Username = strings.TrimSpace(c.Username); c.Username == "" {
		c.Username = defaultObservabilityName
	}
}

// PagerDutyNotificationConfig controls PagerDuty Events API v2 fan-out.
type PagerDutyNotificationConfig struct {
	Enabled    bool   `env:"ENABLED"     envDefault:"false"`
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"jobtracker"`
	Component  string `env:"COMPONENT"   envDefault:"jobtracker"`
	Endpoint   string `env:"ENDPOINT"`
}

func (c *PagerDutyNotificationConfig) sanitize() {
	c.RoutingKey = strings.TrimSpace(c.RoutingKey)
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.Source = strings.TrimSpace(c.Source); c.Source == "" {
		c.Source = defaultObservabilityName
	}
	if c.Component = strings.TrimSpace(c.Component); c.Component == "" {
		c.Component = defaultObservabilityName
	}
}
