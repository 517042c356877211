// Package devengine provides a development stand-in for the DNS probing
// engine. It produces a plausible result set without sending a single DNS
// query, which is enough to exercise the full submission/progress/result
// flow locally.
package devengine

import (
	"context"
	"time"

	"github.com/huguei/zonemaster-backend/internal/core"
	"github.com/huguei/zonemaster-backend/internal/domain/model"
)

// Version is the engine version reported in dev results.
const Version = "dev"

// Engine simulates a test run. Each run reports progress in steps and
// finishes with a fixed, well-formed result set.
type Engine struct {
	// StepDelay is the pause between simulated progress steps. Zero means
	// no pause, which is what tests want.
	StepDelay time.Duration
}

var _ core.Engine = (*Engine)(nil)

// Run simulates one test.
func (e *Engine) Run(ctx context.Context, canonical model.CanonicalParams, progress func(percent int)) ([]model.ResultEntry, error) {
	for _, percent := range []int{20, 40, 60, 80} {
		if err := e.pause(ctx); err != nil {
			return nil, err
		}
		if progress != nil {
			progress(percent)
		}
	}

	entries := []model.ResultEntry{
		{
			Module: "system",
			Level:  "info",
			Tag:    "GLOBAL_VERSION",
			Args:   map[string]any{"version": Version},
		},
	}

	if !canonical.IPv4 && !canonical.IPv6 {
		entries = append(entries, model.ResultEntry{
			Module: "system",
			Level:  "warning",
			Tag:    "NO_NETWORK",
		})
		return entries, nil
	}

	entries = append(entries, model.ResultEntry{
		Module:   "delegation",
		Testcase: "delegation01",
		Level:    "info",
		Tag:      "DELEGATION_OK",
		Args:     map[string]any{"domain": canonical.Domain},
	})
	return entries, nil
}

func (e *Engine) pause(ctx context.Context) error {
	if e.StepDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.StepDelay):
		return nil
	}
}
