package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/target/jobtracker/internal/domain/model"
	"github.com/target/jobtracker/internal/domain/rules"
	apperrors "github.com/target/jobtracker/internal/errors"
)

// Catalog is the YAML document listing tracked jobs and the hosts their events come from.
//
//	keywords: {start: START, error: ERROR, end: END}
//	hosts:
//	  - hostname: src1.example.com
//	    user: tracker
//	    key: /etc/jobtracker/id_rsa
//	    message_queue: /var/spool/jobs.q
//	    message_queue_handler: /usr/local/bin/queue
//	jobs:
//	  - name: etl_load
//	    env: P
//	    schedule: cyclic
//	    timeout: "01:00:00"
//	    cyclic_interval: "00:15:00"
//	    max_errors_before_alerting: 2
type Catalog struct {
	Keywords *KeywordsConfig `yaml:"keywords"`
	Hosts    []HostConfig    `yaml:"hosts"`
	Jobs     []JobConfig     `yaml:"jobs"`
}

// KeywordsConfig overrides the event kinds of all jobs or of a single job.
type KeywordsConfig struct {
	Start string `yaml:"start"`
	Error string `yaml:"error"`
	End   string `yaml:"end"`
}

// HostConfig is one source host.
type HostConfig struct {
	Hostname     string `yaml:"hostname"`
	User         string `yaml:"user"`
	Key          string `yaml:"key"`
	Queue        string `yaml:"message_queue"`
	QueueHandler string `yaml:"message_queue_handler"`
}

// JobConfig is one tracked job as written in the catalog.
type JobConfig struct {
	Name           string          `yaml:"name"`
	Env            string          `yaml:"env"`
	Schedule       string          `yaml:"schedule"`
	Timeout        Span            `yaml:"timeout"`
	CyclicInterval Span            `yaml:"cyclic_interval"`
	DailyStart     TimeOfDay       `yaml:"daily_start_time"`
	DailyMaxDelay  Span            `yaml:"daily_start_max_delay"`
	AlertThreshold int             `yaml:"max_errors_before_alerting"`
	Keywords       *KeywordsConfig `yaml:"keywords"`
}

// Span is a duration written as hh:mm[:ss]. Hours are unbounded.
type Span time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Span) UnmarshalYAML(node *yaml.Node) error {
	d, err := ParseSpan(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*s = Span(d)
	return nil
}

// TimeOfDay is an offset from local midnight written as hh:mm[:ss].
type TimeOfDay time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *TimeOfDay) UnmarshalYAML(node *yaml.Node) error {
	d, err := rules.ParseClock(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*t = TimeOfDay(d)
	return nil
}

// ParseSpan parses "hh:mm" or "hh:mm:ss" where hh may exceed 24.
func ParseSpan(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q: want hh:mm[:ss]", s)
	}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || (i > 0 && n > 59) {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		total += time.Duration(n) * units[i]
	}
	return total, nil
}

// LoadCatalog reads and decodes the catalog at path. Unknown keys are rejected.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.ValidationField("JOBS_CONFIG", "job catalog "+path+" does not exist")
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "parse job catalog")
	}
	return &c, nil
}

// JobSpecs converts the catalog into validated job specs in document order. Keywords
// resolve job entry first, then the catalog, then defaults.
func (c *Catalog) JobSpecs(defaults model.Keywords) ([]model.JobSpec, error) {
	if len(c.Jobs) == 0 {
		return nil, apperrors.Validation("job catalog lists no jobs")
	}
	base := mergeKeywords(defaults, c.Keywords)

	specs := make([]model.JobSpec, 0, len(c.Jobs))
	seen := make(map[string]int, len(c.Jobs))
	var errs []error
	for i, j := range c.Jobs {
		spec := j.spec(base)
		if err := spec.Validate(); err != nil {
			errs = append(errs, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "jobs[%d]", i))
			continue
		}
		if prev, dup := seen[spec.Key()]; dup {
			errs = append(errs, apperrors.Validationf("jobs[%d]: %s duplicates jobs[%d]", i, spec.Key(), prev))
			continue
		}
		seen[spec.Key()] = i
		specs = append(specs, spec)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return specs, nil
}

// HostList returns the configured hosts, rejecting entries without a hostname.
func (c *Catalog) HostList() ([]HostConfig, error) {
	if len(c.Hosts) == 0 {
		return nil, apperrors.Validation("job catalog lists no source hosts")
	}
	for i, h := range c.Hosts {
		if strings.TrimSpace(h.Hostname) == "" {
			return nil, apperrors.Validationf("hosts[%d]: hostname is required", i)
		}
	}
	return c.Hosts, nil
}

func (j JobConfig) spec(base model.Keywords) model.JobSpec {
	threshold := j.AlertThreshold
	if threshold == 0 {
		threshold = 1
	}
	return model.JobSpec{
		Name:           strings.TrimSpace(j.Name),
		Env:            strings.TrimSpace(j.Env),
		Schedule:       model.ScheduleKind(strings.ToLower(strings.TrimSpace(j.Schedule))),
		Timeout:        time.Duration(j.Timeout),
		CyclicInterval: time.Duration(j.CyclicInterval),
		DailyStart:     time.Duration(j.DailyStart),
		DailyMaxDelay:  time.Duration(j.DailyMaxDelay),
		AlertThreshold: threshold,
		Keywords:       mergeKeywords(base, j.Keywords),
	}
}

func mergeKeywords(base model.Keywords, override *KeywordsConfig) model.Keywords {
	if override == nil {
		return base
	}
	if s := strings.TrimSpace(override.Start); s != "" {
		base.Start = s
	}
	if s := strings.TrimSpace(override.Error); s != "" {
		base.Error = s
	}
	if s := strings.TrimSpace(override.End); s != "" {
		base.End = s
	}
	return base
}
