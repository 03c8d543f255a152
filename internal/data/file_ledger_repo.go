package data

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/target/jobtracker/internal/core"
	"github.com/target/jobtracker/internal/domain/model"
	apperrors "github.com/target/jobtracker/internal/errors"
	"github.com/target/jobtracker/internal/util"
)

// LedgerFileSuffix is appended to the job key to form the ledger file name.
const LedgerFileSuffix = ".job_history"

// FileLedgerRepo stores one job ledger as a JSON-lines file, most recent entry first.
// Writes replace the whole file through a temp file and rename so readers never see a
// partial ledger.
type FileLedgerRepo struct {
	mu   sync.Mutex
	path string
}

var _ core.LedgerRepository = (*FileLedgerRepo)(nil)

// NewFileLedgerRepo returns a repository backed by path.
func NewFileLedgerRepo(path string) *FileLedgerRepo {
	return &FileLedgerRepo{path: path}
}

// NewFileLedgerFactory opens per-job ledger files under runDir, creating it when missing.
func NewFileLedgerFactory(runDir string) (core.LedgerRepositoryFactory, error) {
	if runDir == "" {
		return nil, apperrors.ValidationField("TRACKER_RUN_DIR", "run directory is required")
	}
	if err := os.MkdirAll(runDir, 0o750); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	return func(job model.JobSpec) (core.LedgerRepository, error) {
		return NewFileLedgerRepo(LedgerFilePath(runDir, job.Name, job.Env)), nil
	}, nil
}

// LedgerFilePath returns the ledger file of the (name, env) pair inside runDir.
func LedgerFilePath(runDir, name, env string) string {
	return filepath.Join(runDir, model.JobKey(name, env)+LedgerFileSuffix)
}

// Path returns the backing file.
func (r *FileLedgerRepo) Path() string { return r.path }

// Read returns the stored entries. A missing file is an empty ledger.
func (r *FileLedgerRepo) Read(ctx context.Context) ([]model.ExecutionEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	raw, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "read ledger %s", r.path)
	}

	var entries []model.ExecutionEntry
	sc := bufio.NewScanner(bytes.NewReader(raw))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var e model.ExecutionEntry
		if err := json.Unmarshal(text, &e); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeValidation, "ledger %s line %d", r.path, line)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "scan ledger %s", r.path)
	}
	return entries, nil
}

// Write atomically replaces the ledger file with entries.
func (r *FileLedgerRepo) Write(ctx context.Context, entries []model.ExecutionEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode ledger entry %s: %w", e.ID, err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := util.WriteFileAtomic(r.path, buf.Bytes(), 0o640); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeUnavailable, "write ledger %s", r.path)
	}
	return nil
}
