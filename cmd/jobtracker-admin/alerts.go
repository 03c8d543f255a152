package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/jobtracker/internal/domain/model"
	"github.com/target/jobtracker/internal/service/alerting"
)

type markerOptions struct {
	Job    string
	Env    string
	All    bool
	DryRun bool
}

func parseMarkerFlags(name string, args []string, requireScope bool) (markerOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts markerOptions
	fs.StringVar(&opts.Job, "job", "", "Restrict to one job")
	fs.StringVar(&opts.Env, "env", "", "Restrict to one environment (requires -job)")
	fs.BoolVar(&opts.All, "all", false, "Select markers of every job")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Print actions without executing")

	if err := fs.Parse(args); err != nil {
		return markerOptions{}, err
	}
	opts.Job = strings.TrimSpace(opts.Job)
	opts.Env = strings.TrimSpace(opts.Env)

	if opts.Env != "" && opts.Job == "" {
		return markerOptions{}, errors.New("-env requires -job")
	}
	if requireScope && opts.Job == "" && !opts.All {
		return markerOptions{}, errors.New("either -job or -all is required")
	}
	if opts.All && opts.Job != "" {
		return markerOptions{}, errors.New("-all cannot be combined with -job")
	}
	return opts, nil
}

// markerPattern builds the SCAN pattern matching the selected markers.
func markerPattern(opts markerOptions) string {
	switch {
	case opts.Job != "" && opts.Env != "":
		return alerting.DedupeKeyPrefix + model.JobKey(opts.Job, opts.Env) + ":*"
	case opts.Job != "":
		return alerting.DedupeKeyPrefix + opts.Job + "__*"
	default:
		return alerting.DedupeKeyPrefix + "*"
	}
}

func renderTTL(d time.Duration) string {
	switch d {
	case -1 * time.Second:
		return "no expiry"
	case -2 * time.Second:
		return "key missing"
	default:
		return d.String()
	}
}

func withRedis(cmdCtx *commandContext, fn func(ctx context.Context, client redis.UniversalClient) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 2*time.Minute)
	defer cancel()

	client, err := maybeConnectRedis(ctx, cmdCtx.Logger, &cmdCtx.Config.Redis)
	if errors.Is(err, errRedisNotConfigured) {
		if writeErr := writeln(os.Stderr, "Redis client is not available"); writeErr != nil {
			return fmt.Errorf("print redis availability: %w", writeErr)
		}
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()
	return fn(ctx, client)
}

func runListAlertMarkers(cmdCtx *commandContext, args []string) error {
	opts, err := parseMarkerFlags("list-alert-markers", args, false)
	if err != nil {
		return err
	}
	return withRedis(cmdCtx, func(ctx context.Context, client redis.UniversalClient) error {
		pattern := markerPattern(opts)
		cmdCtx.Logger.Info("scanning redis", "pattern", pattern)

		if err := writef(cmdCtx.Out, "\nAlert markers in Redis\n"); err != nil {
			return err
		}
		total := 0
		iter := client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()
			total++
			ttl, ttlErr := client.TTL(ctx, key).Result()
			if ttlErr != nil {
				cmdCtx.Logger.ErrorContext(ctx, "failed to fetch TTL", "key", key, "error", ttlErr)
				if err := writef(cmdCtx.Out, "  %s (TTL: error: %v)\n", key, ttlErr); err != nil {
					return err
				}
				continue
			}
			if err := writef(cmdCtx.Out, "  %s (TTL: %s)\n", key, renderTTL(ttl)); err != nil {
				return err
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if total == 0 {
			return writeln(cmdCtx.Out, "(no keys found)")
		}
		return writef(cmdCtx.Out, "\nTotal keys: %d\n", total)
	})
}

type markerDeleteStats struct {
	total    int
	deleted  int64
	failures int
}

func runClearAlertMarkers(cmdCtx *commandContext, args []string) error {
	opts, err := parseMarkerFlags("clear-alert-markers", args, true)
	if err != nil {
		return err
	}
	return withRedis(cmdCtx, func(ctx context.Context, client redis.UniversalClient) error {
		stats, err := deleteMarkers(ctx, cmdCtx.Logger, client, opts)
		if err != nil {
			return err
		}
		switch {
		case stats.total == 0:
			return writeln(cmdCtx.Out, "No alert markers found in Redis")
		case opts.DryRun:
			return writef(cmdCtx.Out, "Dry-run: would delete %d/%d keys\n", stats.deleted, stats.total)
		default:
			return writef(cmdCtx.Out, "Deleted %d/%d keys (%d failed batches)\n", stats.deleted, stats.total, stats.failures)
		}
	})
}

func deleteMarkers(ctx context.Context, logger *slog.Logger, client redis.UniversalClient, opts markerOptions) (markerDeleteStats, error) {
	const batchCap = 500
	var stats markerDeleteStats

	flush := func(batch []string) {
		if len(batch) == 0 {
			return
		}
		if opts.DryRun {
			stats.deleted += int64(len(batch))
			return
		}
		n, err := client.Del(ctx, batch...).Result()
		if err != nil {
			stats.failures++
			logger.ErrorContext(ctx, "failed to delete alert markers", "count", len(batch), "error", err)
			return
		}
		stats.deleted += n
	}

	pattern := markerPattern(opts)
	logger.Info("scanning redis", "pattern", pattern, "dry_run", opts.DryRun)

	iter := client.Scan(ctx, 0, pattern, 100).Iterator()
	batch := make([]string, 0, batchCap)
	for iter.Next(ctx) {
		stats.total++
		batch = append(batch, iter.Val())
		if len(batch) == batchCap {
			flush(batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return stats, fmt.Errorf("redis scan: %w", err)
	}
	flush(batch)
	return stats, nil
}
