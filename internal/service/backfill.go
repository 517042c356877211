package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/huguei/zonemaster-backend/config"
	"github.com/huguei/zonemaster-backend/internal/core"
	"github.com/huguei/zonemaster-backend/internal/domain/params"
)

// BackfillServiceOptions groups dependencies for BackfillService.
type BackfillServiceOptions struct {
	Store     core.BackfillStore   // Required: backfill store surface
	Backend   config.BackendConfig // Required: canonicalization defaults
	BatchSize int                  // Optional: rows per page, default 500
	Logger    *slog.Logger         // Optional: structured logger
}

// BackfillService re-derives the delegation class for rows registered
// before classification existed. It runs the exact canonicalization and
// classification the live path runs, so backfilled rows get the value
// they would have gotten at submission time.
type BackfillService struct {
	store     core.BackfillStore
	defaults  params.Defaults
	batchSize int
	logger    *slog.Logger
}

// BackfillReport summarizes one backfill run.
type BackfillReport struct {
	// Scanned is the number of unclassified rows examined.
	Scanned int
	// Updated is the number of rows that received a class.
	Updated int
	// Skipped is the number of rows classified concurrently by another run.
	Skipped int
	// Failures lists rows whose stored parameters could not be
	// re-canonicalized, by test id. Those rows are left untouched.
	Failures map[int64]error
}

// NewBackfillService constructs a new BackfillService.
func NewBackfillService(opts BackfillServiceOptions) (*BackfillService, error) {
	if opts.Store == nil {
		return nil, errors.New("BackfillStore is required")
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "backfill")
	}

	return &BackfillService{
		store:     opts.Store,
		defaults:  params.Defaults{Profile: opts.Backend.DefaultProfile},
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Run classifies every unclassified row, paging by id. It is idempotent: a
// second run finds nothing left to do, and a run racing the live path or
// another backfill never overwrites a class already written. Rows with
// undecodable parameters are reported and skipped rather than aborting the
// whole run.
func (s *BackfillService) Run(ctx context.Context) (*BackfillReport, error) {
	report := &BackfillReport{Failures: make(map[int64]error)}

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		tests, err := s.store.ListUnclassified(ctx, afterID, s.batchSize)
		if err != nil {
			return report, fmt.Errorf("list unclassified tests: %w", err)
		}
		if len(tests) == 0 {
			break
		}

		for _, t := range tests {
			afterID = t.ID
			report.Scanned++

			raw, decodeErr := t.RawParams()
			if decodeErr != nil {
				report.Failures[t.ID] = fmt.Errorf("decode params: %w", decodeErr)
				continue
			}

			canonical, canonErr := params.Canonicalize(raw, s.defaults)
			if canonErr != nil {
				report.Failures[t.ID] = fmt.Errorf("canonicalize params: %w", canonErr)
				continue
			}

			class := params.Classify(canonical)
			updated, setErr := s.store.SetClass(ctx, t.ID, class.Undelegated())
			if setErr != nil {
				return report, fmt.Errorf("set class for test %d: %w", t.ID, setErr)
			}
			if updated {
				report.Updated++
			} else {
				report.Skipped++
			}
		}
	}

	if s.logger != nil {
		s.logger.InfoContext(ctx, "backfill finished",
			"scanned", report.Scanned,
			"updated", report.Updated,
			"skipped", report.Skipped,
			"failures", len(report.Failures),
		)
	}

	return report, nil
}
