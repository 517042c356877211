package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/huguei/zonemaster-backend/internal/core"
	"github.com/huguei/zonemaster-backend/internal/observability/metrics"
	"github.com/huguei/zonemaster-backend/internal/observability/statsd"
)

// JanitorServiceOptions groups dependencies for JanitorService.
type JanitorServiceOptions struct {
	Store         core.JanitorStore // Required: reaper store surface
	Interval      time.Duration     // Required: time between sweeps
	RunningMaxAge time.Duration     // Required: age after which a running test is abandoned
	Metrics       statsd.Sink       // Optional: reap counters
	Logger        *slog.Logger      // Optional: structured logger
}

// JanitorService periodically fails running tests whose runner disappeared,
// so their identity slot frees up and an identical submission can create
// new work again.
type JanitorService struct {
	store         core.JanitorStore
	interval      time.Duration
	runningMaxAge time.Duration
	metrics       statsd.Sink
	logger        *slog.Logger
}

// NewJanitorService constructs a new JanitorService.
func NewJanitorService(opts JanitorServiceOptions) (*JanitorService, error) {
	if opts.Store == nil {
		return nil, errors.New("JanitorStore is required")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("Interval must be positive")
	}
	if opts.RunningMaxAge <= 0 {
		return nil, errors.New("RunningMaxAge must be positive")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "janitor")
	}

	return &JanitorService{
		store:         opts.Store,
		interval:      opts.Interval,
		runningMaxAge: opts.RunningMaxAge,
		metrics:       opts.Metrics,
		logger:        logger,
	}, nil
}

// Run sweeps until ctx is done. The first sweep is delayed by a random
// fraction of the interval so multiple instances do not sweep in lockstep.
func (s *JanitorService) Run(ctx context.Context) error {
	jitter := time.Duration(rand.Int63n(int64(s.interval)/2 + 1))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Sweep(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sweep performs a single reap pass. Errors are logged, not returned; the
// next tick retries.
func (s *JanitorService) Sweep(ctx context.Context) {
	count, err := s.store.FailOverdue(ctx, s.runningMaxAge)
	if err != nil {
		if s.logger != nil && !errors.Is(err, context.Canceled) {
			s.logger.ErrorContext(ctx, "janitor sweep failed", "err", err)
		}
		return
	}

	metrics.EmitReaped(s.metrics, count)
	if count > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "reaped abandoned tests",
			"count", count,
			"running_max_age", s.runningMaxAge,
		)
	}
}
