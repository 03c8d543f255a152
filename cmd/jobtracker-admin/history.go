package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/target/jobtracker/config"
	"github.com/target/jobtracker/internal/bootstrap"
	"github.com/target/jobtracker/internal/core"
	"github.com/target/jobtracker/internal/data"
	"github.com/target/jobtracker/internal/domain/model"
)

const historyTimeLayout = "2006-01-02 15:04:05"

type historyOptions struct {
	Job string
	Env string
}

func parseHistoryFlags(args []string) (historyOptions, error) {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts historyOptions
	fs.StringVar(&opts.Job, "job", "", "Job name (required)")
	fs.StringVar(&opts.Env, "env", "I", "Job environment")

	if err := fs.Parse(args); err != nil {
		return historyOptions{}, err
	}
	opts.Job = strings.TrimSpace(opts.Job)
	opts.Env = strings.TrimSpace(opts.Env)
	if opts.Job == "" {
		return historyOptions{}, errors.New("-job is required")
	}
	if opts.Env == "" {
		return historyOptions{}, errors.New("-env must not be empty")
	}
	return opts, nil
}

func runHistory(cmdCtx *commandContext, args []string) error {
	opts, err := parseHistoryFlags(args)
	if err != nil {
		return err
	}
	loc, err := cmdCtx.Config.Tracker.Location()
	if err != nil {
		return fmt.Errorf("load timezone: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	repo, source, closeFn, err := openLedger(cmdCtx, opts)
	if err != nil {
		return err
	}
	defer closeFn()

	entries, err := repo.Read(ctx)
	if err != nil {
		return fmt.Errorf("read ledger: %w", err)
	}

	if err := writef(cmdCtx.Out, "\nGetting ledger entries from %s\n\n", source); err != nil {
		return err
	}
	return writeHistory(cmdCtx.Out, entries, loc)
}

// openLedger opens the ledger of one job on the configured backend.
//
//nolint:ireturn // the repository is chosen from configuration.
func openLedger(cmdCtx *commandContext, opts historyOptions) (core.LedgerRepository, string, func(), error) {
	if cmdCtx.Config.Ledger.Backend != config.LedgerBackendPostgres {
		path := data.LedgerFilePath(cmdCtx.Config.Ledger.RunDir, opts.Job, opts.Env)
		return data.NewFileLedgerRepo(path), path, func() {}, nil
	}

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return nil, "", nil, fmt.Errorf("connect db: %w", err)
	}
	closeFn := func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}
	key := model.JobKey(opts.Job, opts.Env)
	return data.NewPgLedgerRepo(db, key), "job_ledger/" + key, closeFn, nil
}

// writeHistory prints entries, most recent first. Running executions show only their start;
// completed ones show the end time of day.
func writeHistory(w io.Writer, entries []model.ExecutionEntry, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}
	if err := writeln(w, "FROM                - UNTIL    : RESULT"); err != nil {
		return err
	}
	if err := writeln(w, strings.Repeat("-", 62)); err != nil {
		return err
	}
	if len(entries) == 0 {
		return writeln(w, "(no entries)")
	}
	for _, e := range entries {
		from := "unknown            "
		if e.StartKnown() {
			from = e.Start.In(loc).Format(historyTimeLayout)
		}
		var err error
		if e.Running() {
			err = writef(w, "%s            : %s\n", from, e.Result)
		} else {
			err = writef(w, "%s - %s : %s\n", from, e.End.In(loc).Format(time.TimeOnly), e.Result)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func runListLedgers(cmdCtx *commandContext, _ []string) error {
	if cmdCtx.Config.Ledger.Backend != config.LedgerBackendPostgres {
		return errors.New("ledgers requires LEDGER_BACKEND=postgres")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, time.Minute)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: cmdCtx.Config.Postgres, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	summaries, err := data.ListLedgers(ctx, db)
	if err != nil {
		return err
	}
	return writeLedgerSummaries(cmdCtx.Out, summaries)
}

func writeLedgerSummaries(w io.Writer, summaries []data.LedgerSummary) error {
	if len(summaries) == 0 {
		return writeln(w, "(no ledgers found)")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "JOB\tENTRIES\tLATEST\n"); err != nil {
		return err
	}
	for _, s := range summaries {
		if err := writef(tw, "%s\t%d\t%s\n", s.JobKey, s.Entries, s.Latest.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return tw.Flush()
}
