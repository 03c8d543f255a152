// Package notify renders final job states to the monitoring backend: per-job status files
// read by a local check, or event lines sent to an event console.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/target/jobtracker/internal/core"
	"github.com/target/jobtracker/internal/domain/model"
	"github.com/target/jobtracker/internal/util"
)

// StatusFileSuffix is appended to the job key to form the status file name.
const StatusFileSuffix = ".state"

// Monitoring severity codes written to status files.
const (
	CodeOK       = 0
	CodeWarning  = 1
	CodeCritical = 2
	CodeUnknown  = 3
)

// SeverityCode maps a job status to the local check severity. Warning is never produced.
func SeverityCode(s model.Status) int {
	switch {
	case s.Healthy():
		return CodeOK
	case s.Critical():
		return CodeCritical
	default:
		return CodeUnknown
	}
}

// StatusFileReporterOptions groups dependencies for StatusFileReporter.
type StatusFileReporterOptions struct {
	Dir    string       // Required: directory holding one status file per job
	Prefix string       // Optional: service name prefix
	Logger *slog.Logger // Optional
}

// StatusFileReporter overwrites <dir>/<name>__<env>.state with one status line per cycle.
type StatusFileReporter struct {
	dir    string
	prefix string
	logger *slog.Logger
}

var _ core.StatusReporter = (*StatusFileReporter)(nil)

// NewStatusFileReporter creates the status directory when missing.
func NewStatusFileReporter(opts StatusFileReporterOptions) (*StatusFileReporter, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("status directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create status dir: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusFileReporter{
		dir:    opts.Dir,
		prefix: opts.Prefix,
		logger: logger.With("component", "status_file_reporter"),
	}, nil
}

// Path returns the status file of job.
func (r *StatusFileReporter) Path(job model.JobSpec) string {
	return filepath.Join(r.dir, job.Key()+StatusFileSuffix)
}

// StatusLine renders the local check line for state.
func (r *StatusFileReporter) StatusLine(job model.JobSpec, state model.FinalState) string {
	return fmt.Sprintf("%d %s%s - %s %s\n",
		SeverityCode(state.Status), r.prefix, strings.ToLower(job.Name), job.Name, state.Message)
}

// Report replaces the status file of job.
func (r *StatusFileReporter) Report(ctx context.Context, job model.JobSpec, state model.FinalState) error {
	line := r.StatusLine(job, state)
	path := r.Path(job)
	r.logger.DebugContext(ctx, "writing status file", "job", job.Name, "env", job.Env, "path", path, "line", strings.TrimSpace(line))

	// Mode 0644 so the monitoring agent can read the file.
	if err := util.WriteFileAtomic(path, []byte(line), 0o644); err != nil {
		return fmt.Errorf("write status file %s: %w", path, err)
	}
	return nil
}
