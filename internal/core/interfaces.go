// Package core declares the ports between the test services and their
// collaborators: the relational test store, the DNS probing engine, and the
// in-flight progress sink.
package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/huguei/zonemaster-backend/internal/domain/model"
)

// NewTest carries everything the store needs to register a test.
type NewTest struct {
	HashID      string
	Domain      string
	Params      json.RawMessage
	Undelegated bool
	BatchID     *string
}

// AdvanceParams describes a state transition reported by the runner.
type AdvanceParams struct {
	HashID   string
	NewState model.TestState
	// Results is required for terminal states and ignored otherwise.
	Results json.RawMessage
}

// BatchRegistration carries one atomic batch submission.
type BatchRegistration struct {
	BatchID string
	Params  json.RawMessage
	Members []NewTest
}

// TestStore persists test records keyed by their content-addressed
// identity. Implementations serialize the lookup-or-create reuse check and
// all state transitions through database transactions; no in-process shared
// state is assumed.
type TestStore interface {
	// LookupOrCreate registers the test unless a reusable one with the same
	// identity exists. It returns the surviving row and whether a new row
	// was created. The reuse decision is the store's single policy point.
	LookupOrCreate(ctx context.Context, t NewTest) (*model.Test, bool, error)

	// CreateBatch registers all members in one transaction; either every
	// member is registered (or reused) or none are visible.
	CreateBatch(ctx context.Context, reg BatchRegistration) (*model.BatchResult, error)

	// Advance applies a state transition, enforcing
	// queued -> running -> {completed, failed}.
	Advance(ctx context.Context, p AdvanceParams) (*model.Test, error)

	// GetByHashID returns the most recent test for the identity.
	GetByHashID(ctx context.Context, hashID string) (*model.Test, error)

	// History returns a filtered, paginated page of test summaries, newest
	// submissions first.
	History(ctx context.Context, opts model.HistoryOptions) (*model.HistoryPage, error)
}

// RunnerStore is the store surface the test agent uses to claim work.
type RunnerStore interface {
	// ClaimNext atomically moves the oldest queued test to running and
	// returns it, or model.ErrNoTestsAvailable.
	ClaimNext(ctx context.Context) (*model.Test, error)

	// WaitForNotification blocks until the store signals that new tests
	// were queued, or ctx is done.
	WaitForNotification(ctx context.Context) error

	Advance(ctx context.Context, p AdvanceParams) (*model.Test, error)
}

// BackfillStore is the store surface the classification backfill uses.
type BackfillStore interface {
	// ListUnclassified returns up to limit rows with no delegation class,
	// with id greater than afterID, in ascending id order.
	ListUnclassified(ctx context.Context, afterID int64, limit int) ([]*model.Test, error)

	// SetClass persists a re-derived class for a row that still lacks one.
	// It returns false when the row was classified in the meantime.
	SetClass(ctx context.Context, id int64, undelegated bool) (bool, error)
}

// JanitorStore is the store surface of the external-reaper role: failing
// running tests whose runner disappeared.
type JanitorStore interface {
	// FailOverdue fails running tests started more than maxAge ago and
	// returns how many rows were affected.
	FailOverdue(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Runner hands a freshly created test to the probing worker without
// blocking on its completion.
type Runner interface {
	Execute(ctx context.Context, hashID string, canonical model.CanonicalParams)
}

// Engine is the opaque DNS probing collaborator. It executes one test and
// reports in-flight progress through the callback.
type Engine interface {
	Run(ctx context.Context, canonical model.CanonicalParams, progress func(percent int)) ([]model.ResultEntry, error)
}

// ProgressSink stores worker-reported in-flight progress values, keyed by
// test identity. Values are ephemeral; absence is not an error.
type ProgressSink interface {
	Set(ctx context.Context, hashID string, percent int) error
	Get(ctx context.Context, hashID string) (int, bool, error)
}
