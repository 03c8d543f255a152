package config

import (
	"errors"
	"strings"
	"time"

	apperrors "github.com/target/jobtracker/internal/errors"
)

// SourceKind selects how pending records are drained from source hosts.
type SourceKind string

const (
	// SourceKindExec runs the queue handler on each host over ssh.
	SourceKindExec SourceKind = "exec"
	// SourceKindRedis drains one Redis list per host.
	SourceKindRedis SourceKind = "redis"
)

// SourceConfig contains event source settings. Hosts themselves come from the job catalog.
type SourceConfig struct {
	Kind SourceKind `env:"SOURCE_KIND" envDefault:"exec"`

	// Workers bounds concurrent host fetches.
	Workers int `env:"SOURCE_WORKERS" envDefault:"4"`

	// BatchSize is the number of records removed from a host queue per cycle.
	BatchSize int `env:"SOURCE_BATCH_SIZE" envDefault:"100"`

	SSHBinary      string        `env:"SOURCE_SSH_BINARY"      envDefault:"ssh"`
	ConnectTimeout time.Duration `env:"SOURCE_CONNECT_TIMEOUT" envDefault:"10s"`

	// SSHStrictHostKeys is passed as ssh StrictHostKeyChecking: yes, accept-new or no.
	SSHStrictHostKeys string `env:"SOURCE_SSH_STRICT_HOST_KEYS" envDefault:"accept-new"`

	RedisKeyPrefix string `env:"SOURCE_REDIS_KEY_PREFIX" envDefault:"jobtracker:events:"`

	// JMESPath expressions mapping a source record onto an event. Empty values use the
	// default record layout.
	Fields FieldMappingConfig `envPrefix:"SOURCE_FIELD_"`
}

// FieldMappingConfig holds one JMESPath expression per event field.
type FieldMappingConfig struct {
	ID        string `env:"ID"`
	Timestamp string `env:"TIMESTAMP"`
	Env       string `env:"ENV"`
	Job       string `env:"JOB"`
	Kind      string `env:"KIND"`
	Message   string `env:"MESSAGE"`
}

// Sanitize applies guardrails to source configuration values.
func (c *SourceConfig) Sanitize() {
	c.Kind = SourceKind(strings.ToLower(strings.TrimSpace(string(c.Kind))))
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	c.SSHBinary = strings.TrimSpace(c.SSHBinary)
	c.ConnectTimeout = clampDuration(c.ConnectTimeout, 10*time.Second, time.Second, 5*time.Minute)
	c.RedisKeyPrefix = strings.TrimSpace(c.RedisKeyPrefix)
	if c.SSHStrictHostKeys = strings.ToLower(strings.TrimSpace(c.SSHStrictHostKeys)); c.SSHStrictHostKeys == "" {
		c.SSHStrictHostKeys = "accept-new"
	}
}

// Validate checks the source kind and ssh host key policy.
func (c *SourceConfig) Validate() error {
	var errs []error
	switch c.Kind {
	case SourceKindExec, SourceKindRedis:
	default:
		errs = append(errs, apperrors.ValidationField("SOURCE_KIND",
			"invalid source kind "+string(c.Kind)+" (valid options: exec, redis)"))
	}
	switch c.SSHStrictHostKeys {
	case "yes", "accept-new", "no":
	default:
		errs = append(errs, apperrors.ValidationField("SOURCE_SSH_STRICT_HOST_KEYS",
			"invalid host key policy "+c.SSHStrictHostKeys+" (valid options: yes, accept-new, no)"))
	}
	return errors.Join(errs...)
}
