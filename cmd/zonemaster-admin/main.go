// Command zonemaster-admin provides operational tooling for the backend
// database: applying migrations, backfilling the delegation class on
// historical rows, and inspecting queue statistics.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/huguei/zonemaster-backend/config"
	"github.com/huguei/zonemaster-backend/internal/bootstrap"
	"github.com/huguei/zonemaster-backend/internal/data"
	"github.com/huguei/zonemaster-backend/internal/service"
)

const commandTimeout = 30 * time.Minute

type commandFn func(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

func commands() []command {
	return []command{
		{
			name:        "migrate",
			description: "apply pending database migrations",
			run:         runMigrate,
		},
		{
			name:        "backfill",
			description: "re-derive the delegation class for unclassified rows",
			run:         runBackfill,
		},
		{
			name:        "stats",
			description: "print per-state test counts",
			run:         runStats,
		},
	}
}

func main() {
	logger := bootstrap.InitLogger()
	if err := run(logger); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI entrypoint must exit non-zero on failure.
	}
}

func run(logger *slog.Logger) error {
	if len(os.Args) < 2 {
		usage()
		return fmt.Errorf("a command is required")
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		usage()
		return nil
	}

	var cmd *command
	for _, c := range commands() {
		if c.name == name {
			cmd = &c
			break
		}
	}
	if cmd == nil {
		usage()
		return fmt.Errorf("unknown command %q", name)
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	return cmd.run(ctx, &cfg, logger, os.Args[2:])
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: zonemaster-admin <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "commands:")
	for _, c := range commands() {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", c.name, c.description)
	}
}

// withDatabase connects to PostgreSQL, runs fn, and closes the connection.
func withDatabase(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
	fn func(ctx context.Context, db *sql.DB) error,
) error {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Warn("close database", "error", cerr)
		}
	}()

	return fn(ctx, db)
}

func runMigrate(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(ctx, cfg, logger, func(ctx context.Context, db *sql.DB) error {
		return bootstrap.RunMigrations(ctx, db, logger)
	})
}

func runBackfill(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("backfill", flag.ContinueOnError)
	batchSize := fs.Int("batch-size", 500, "rows fetched per page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(ctx, cfg, logger, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewTestRepo(db, data.RepoConfig{
			ReuseWindow: cfg.Backend.ReuseWindow,
			Logger:      logger,
		})

		backfill, err := service.NewBackfillService(service.BackfillServiceOptions{
			Store:     repo,
			Backend:   cfg.Backend,
			BatchSize: *batchSize,
			Logger:    logger,
		})
		if err != nil {
			return err
		}

		report, err := backfill.Run(ctx)
		if err != nil {
			return err
		}

		printBackfillReport(report)
		return nil
	})
}

func printBackfillReport(report *service.BackfillReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "scanned\t%d\n", report.Scanned)
	fmt.Fprintf(w, "updated\t%d\n", report.Updated)
	fmt.Fprintf(w, "skipped\t%d\n", report.Skipped)
	fmt.Fprintf(w, "failed\t%d\n", len(report.Failures))
	_ = w.Flush()

	if len(report.Failures) == 0 {
		return
	}

	ids := make([]int64, 0, len(report.Failures))
	for id := range report.Failures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fmt.Fprintln(os.Stderr, "rows left untouched:")
	for _, id := range ids {
		fmt.Fprintf(os.Stderr, "  test %d: %v\n", id, report.Failures[id])
	}
}

func runStats(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(ctx, cfg, logger, func(ctx context.Context, db *sql.DB) error {
		repo := data.NewTestRepo(db, data.RepoConfig{
			ReuseWindow: cfg.Backend.ReuseWindow,
			Logger:      logger,
		})

		stats, err := repo.Stats(ctx)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "queued\t%d\n", stats.Queued)
		fmt.Fprintf(w, "running\t%d\n", stats.Running)
		fmt.Fprintf(w, "completed\t%d\n", stats.Completed)
		fmt.Fprintf(w, "failed\t%d\n", stats.Failed)
		fmt.Fprintf(w, "total\t%d\n", stats.Queued+stats.Running+stats.Completed+stats.Failed)
		return w.Flush()
	})
}
