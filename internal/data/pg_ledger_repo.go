package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/target/jobtracker/internal/core"
	"github.com/target/jobtracker/internal/data/pgxutil"
	"github.com/target/jobtracker/internal/domain/model"
	apperrors "github.com/target/jobtracker/internal/errors"
)

const ledgerTable = "job_ledger"

var ledgerColumns = []string{"job_key", "position", "entry_id", "started_at", "ended_at", "result"}

// PgLedgerRepo stores one job ledger in the job_ledger table. The position column keeps the
// most-recent-first order of the ledger.
type PgLedgerRepo struct {
	db     *sql.DB
	jobKey string
}

var _ core.LedgerRepository = (*PgLedgerRepo)(nil)

// NewPgLedgerRepo returns a repository for the ledger identified by jobKey.
func NewPgLedgerRepo(db *sql.DB, jobKey string) *PgLedgerRepo {
	return &PgLedgerRepo{db: db, jobKey: jobKey}
}

// NewPgLedgerFactory opens per-job repositories sharing db.
func NewPgLedgerFactory(db *sql.DB) (core.LedgerRepositoryFactory, error) {
	if db == nil {
		return nil, apperrors.Validation("database connection is required for the postgres ledger backend")
	}
	return func(job model.JobSpec) (core.LedgerRepository, error) {
		return NewPgLedgerRepo(db, job.Key()), nil
	}, nil
}

// Read returns the stored entries, most recent first.
func (r *PgLedgerRepo) Read(ctx context.Context) ([]model.ExecutionEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entry_id, started_at, ended_at, result
		FROM job_ledger
		WHERE job_key = $1
		ORDER BY position`, r.jobKey)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("query ledger %s: %w", r.jobKey, err))
	}
	defer func() { _ = rows.Close() }()

	var entries []model.ExecutionEntry
	for rows.Next() {
		var e model.ExecutionEntry
		if err := rows.Scan(&e.ID, &e.Start, &e.End, &e.Result); err != nil {
			return nil, apperrors.MapDBError(fmt.Errorf("scan ledger %s: %w", r.jobKey, err))
		}
		e.Start = e.Start.UTC()
		e.End = e.End.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("iterate ledger %s: %w", r.jobKey, err))
	}
	return entries, nil
}

// Write replaces the stored ledger within one transaction.
func (r *PgLedgerRepo) Write(ctx context.Context, entries []model.ExecutionEntry) error {
	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{r.jobKey, i, e.ID, e.Start, e.End, e.Result}
	}

	err := pgxutil.WithPgxTx(ctx, r.db, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `DELETE FROM job_ledger WHERE job_key = $1`, r.jobKey); err != nil {
				return fmt.Errorf("clear ledger: %w", err)
			}
			if len(rows) == 0 {
				return nil
			}
			if _, err := tx.CopyFrom(ctx, pgx.Identifier{ledgerTable}, ledgerColumns, pgx.CopyFromRows(rows)); err != nil {
				return fmt.Errorf("copy ledger rows: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return apperrors.MapDBError(fmt.Errorf("write ledger %s: %w", r.jobKey, err))
	}
	return nil
}

// LedgerSummary describes one stored ledger.
type LedgerSummary struct {
	JobKey  string
	Entries int
	Latest  time.Time
}

// ListLedgers summarizes every ledger in the table, ordered by job key.
func ListLedgers(ctx context.Context, db *sql.DB) ([]LedgerSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT job_key, count(*), max(ended_at)
		FROM job_ledger
		GROUP BY job_key
		ORDER BY job_key`)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("list ledgers: %w", err))
	}
	defer func() { _ = rows.Close() }()

	var out []LedgerSummary
	for rows.Next() {
		var s LedgerSummary
		if err := rows.Scan(&s.JobKey, &s.Entries, &s.Latest); err != nil {
			return nil, apperrors.MapDBError(fmt.Errorf("scan ledger summary: %w", err))
		}
		s.Latest = s.Latest.UTC()
		out = append(out, s)
	}
	return out, apperrors.MapDBError(rows.Err())
}
