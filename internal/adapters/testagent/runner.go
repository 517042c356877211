// Package testagent pulls queued tests from the store, executes them
// against the injected DNS probing engine, and advances their state.
package testagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/huguei/zonemaster-backend/internal/core"
	"github.com/huguei/zonemaster-backend/internal/domain/model"
	"github.com/huguei/zonemaster-backend/internal/domain/params"
	"github.com/huguei/zonemaster-backend/internal/observability/metrics"
	"github.com/huguei/zonemaster-backend/internal/observability/statsd"
)

// RunnerOptions configures the test agent.
type RunnerOptions struct {
	Store  core.RunnerStore // Required: claim/advance store surface
	Engine core.Engine      // Required: DNS probing engine

	Defaults params.Defaults // Canonicalization defaults, must match the submit path

	Concurrency  int           // worker goroutines; defaults to 1
	PollInterval time.Duration // claim retry interval when notifications are quiet; defaults to 10s
	TestTimeout  time.Duration // per-test engine budget; defaults to 10m

	Progress core.ProgressSink // Optional: in-flight progress reporting
	Metrics  statsd.Sink       // Optional: run counters
	Logger   *slog.Logger      // Optional: structured logger
}

// Runner claims queued tests and drives them to a terminal state. Several
// runners may share one database; FOR UPDATE SKIP LOCKED in the store keeps
// their claims disjoint.
type Runner struct {
	store        core.RunnerStore
	engine       core.Engine
	defaults     params.Defaults
	workers      int
	pollInterval time.Duration
	testTimeout  time.Duration
	progress     core.ProgressSink
	metrics      statsd.Sink
	logger       *slog.Logger

	wakeOnce sync.Once
	wake     chan struct{}
}

var _ core.Runner = (*Runner)(nil)

// NewRunner constructs a test agent.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Store == nil {
		return nil, errors.New("RunnerStore is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("Engine is required")
	}

	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	testTimeout := opts.TestTimeout
	if testTimeout <= 0 {
		testTimeout = 10 * time.Minute
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "test_agent")
	}

	return &Runner{
		store:        opts.Store,
		engine:       opts.Engine,
		defaults:     opts.Defaults,
		workers:      workers,
		pollInterval: pollInterval,
		testTimeout:  testTimeout,
		progress:     opts.Progress,
		metrics:      opts.Metrics,
		logger:       logger,
	}, nil
}

// Execute nudges the agent that a specific test was just queued. The agent
// picks work from the store, never from this call, so a missed nudge only
// delays pickup until the next notification or poll.
func (r *Runner) Execute(_ context.Context, hashID string, _ model.CanonicalParams) {
	select {
	case r.wakeChan() <- struct{}{}:
	default:
	}
	if r.logger != nil {
		r.logger.Debug("test queued for pickup", "hash_id", hashID)
	}
}

func (r *Runner) wakeChan() chan struct{} {
	r.wakeOnce.Do(func() {
		r.wake = make(chan struct{}, 1)
	})
	return r.wake
}

// Run starts the notification listener plus worker goroutines and
// processes tests until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.logger != nil {
		r.logger.InfoContext(ctx, "starting test agent",
			"workers", r.workers,
			"poll_interval", r.pollInterval,
			"test_timeout", r.testTimeout,
		)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return r.listenLoop(ctx)
	})
	for range r.workers {
		g.Go(func() error {
			return r.workerLoop(ctx)
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// listenLoop forwards database queue notifications to the wake channel.
// Listen errors are logged and retried after the poll interval; workers
// still make progress through their own polling.
func (r *Runner) listenLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		if err := r.store.WaitForNotification(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if r.logger != nil {
				r.logger.WarnContext(ctx, "queue notification wait failed", "err", err)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.pollInterval):
			}
			continue
		}

		select {
		case r.wakeChan() <- struct{}{}:
		default:
		}
	}
	return ctx.Err()
}

func (r *Runner) workerLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		test, err := r.store.ClaimNext(ctx)
		switch {
		case err == nil:
			r.processTest(ctx, test)
		case errors.Is(err, model.ErrNoTestsAvailable):
			if !r.waitForWork(ctx) {
				return ctx.Err()
			}
		default:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("claim next test: %w", err)
		}
	}
	return ctx.Err()
}

func (r *Runner) waitForWork(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-r.wakeChan():
		return true
	case <-time.After(r.pollInterval):
		return true
	}
}

// processTest runs one claimed test to a terminal state. Failures inside
// the engine fail the test; failures talking to the store are logged and
// left for the janitor to reap.
func (r *Runner) processTest(ctx context.Context, test *model.Test) {
	start := time.Now()

	canonical, err := r.canonicalFor(test)
	if err != nil {
		r.failTest(ctx, test.HashID, fmt.Sprintf("stored parameters unusable: %v", err), start)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, r.testTimeout)
	defer cancel()

	entries, err := r.engine.Run(runCtx, canonical, func(percent int) {
		r.reportProgress(ctx, test.HashID, percent)
	})
	if err != nil {
		r.failTest(ctx, test.HashID, err.Error(), start)
		return
	}

	results, err := json.Marshal(entries)
	if err != nil {
		r.failTest(ctx, test.HashID, fmt.Sprintf("encode results: %v", err), start)
		return
	}

	if _, err := r.store.Advance(ctx, core.AdvanceParams{
		HashID:   test.HashID,
		NewState: model.TestStateCompleted,
		Results:  results,
	}); err != nil {
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "complete test failed",
				"hash_id", test.HashID, "err", err)
		}
		return
	}

	metrics.EmitRun(r.metrics, metrics.RunMetric{
		State:    string(model.TestStateCompleted),
		Duration: time.Since(start),
	})
	if r.logger != nil {
		r.logger.InfoContext(ctx, "test completed",
			"hash_id", test.HashID,
			"domain", test.Domain,
			"duration", time.Since(start),
		)
	}
}

// canonicalFor rebuilds the canonical parameters the engine needs from the
// stored raw submission.
func (r *Runner) canonicalFor(test *model.Test) (model.CanonicalParams, error) {
	raw, err := test.RawParams()
	if err != nil {
		return model.CanonicalParams{}, fmt.Errorf("decode params: %w", err)
	}
	return params.Canonicalize(raw, r.defaults)
}

func (r *Runner) reportProgress(ctx context.Context, hashID string, percent int) {
	if r.progress == nil {
		return
	}
	if err := r.progress.Set(ctx, hashID, percent); err != nil && r.logger != nil {
		r.logger.DebugContext(ctx, "progress report failed",
			"hash_id", hashID, "err", err)
	}
}

func (r *Runner) failTest(ctx context.Context, hashID, reason string, start time.Time) {
	report, err := json.Marshal([]model.ResultEntry{{
		Module: "backend",
		Level:  "critical",
		Tag:    "TEST_DIED",
		Args:   map[string]any{"reason": reason},
	}})
	if err != nil {
		report = []byte(`[]`)
	}

	if _, advErr := r.store.Advance(ctx, core.AdvanceParams{
		HashID:   hashID,
		NewState: model.TestStateFailed,
		Results:  report,
	}); advErr != nil {
		if r.logger != nil {
			r.logger.ErrorContext(ctx, "fail test failed",
				"hash_id", hashID, "err", advErr, "reason", reason)
		}
		return
	}

	metrics.EmitRun(r.metrics, metrics.RunMetric{
		State:    string(model.TestStateFailed),
		Duration: time.Since(start),
	})
	if r.logger != nil {
		r.logger.WarnContext(ctx, "test failed",
			"hash_id", hashID, "reason", reason)
	}
}
