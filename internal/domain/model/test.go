package model

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNoTestsAvailable is returned when no queued tests are available for a
// runner to claim.
var ErrNoTestsAvailable = errors.New("no tests available")

// TestState represents the lifecycle state of a test.
type TestState string

const (
	// TestStateQueued indicates the test is registered and waiting for a runner.
	TestStateQueued TestState = "queued"
	// TestStateRunning indicates a runner is executing the test.
	TestStateRunning TestState = "running"
	// TestStateCompleted indicates the test finished and results are stored.
	TestStateCompleted TestState = "completed"
	// TestStateFailed indicates the test aborted; results hold the failure report.
	TestStateFailed TestState = "failed"
)

// Valid returns true if the TestState is valid.
func (s TestState) Valid() bool {
	return s == TestStateQueued || s == TestStateRunning ||
		s == TestStateCompleted || s == TestStateFailed
}

// Terminal returns true for states that end the lifecycle.
func (s TestState) Terminal() bool {
	return s == TestStateCompleted || s == TestStateFailed
}

// CanAdvanceTo reports whether the state machine allows moving from s to
// next. The only legal chain is queued -> running -> {completed, failed};
// no transition skips running and terminal states accept nothing.
func (s TestState) CanAdvanceTo(next TestState) bool {
	switch s {
	case TestStateQueued:
		return next == TestStateRunning
	case TestStateRunning:
		return next == TestStateCompleted || next == TestStateFailed
	default:
		return false
	}
}

// Progress values derived from state when the runner has not reported an
// in-flight figure.
const (
	ProgressQueued  = 0
	ProgressRunning = 50
	ProgressDone    = 100
)

// Test is one unit of requested-and-tracked delegation test work, identified
// by a content hash of its canonical parameters.
type Test struct {
	ID          int64           `json:"id"                     db:"id"`
	HashID      string          `json:"hash_id"                db:"hash_id"`
	Domain      string          `json:"domain"                 db:"domain"`
	Params      json.RawMessage `json:"params"                 db:"params"`
	Undelegated *bool           `json:"undelegated,omitempty"  db:"undelegated"`
	State       TestState       `json:"state"                  db:"state"`
	Progress    int             `json:"progress"               db:"progress"`
	Results     json.RawMessage `json:"results,omitempty"      db:"results"`
	BatchID     *string         `json:"batch_id,omitempty"     db:"batch_id"`
	CreatedAt   time.Time       `json:"created_at"             db:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"   db:"started_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"     db:"ended_at"`
}

// Class returns the delegation class of the test. Rows written before the
// undelegated column existed have no class until the backfill routine
// re-derives it; those report ClassDelegated with ok=false.
func (t *Test) Class() (DelegationClass, bool) {
	if t.Undelegated == nil {
		return ClassDelegated, false
	}
	return ClassFromUndelegated(*t.Undelegated), true
}

// RawParams decodes the stored raw parameters.
func (t *Test) RawParams() (TestParams, error) {
	var p TestParams
	if err := json.Unmarshal(t.Params, &p); err != nil {
		return TestParams{}, err
	}
	return p, nil
}

// ResultEntry is one message produced by the DNS probing engine. The engine
// reports a machine tag plus arguments; the accessor fills Message with the
// localized rendering for the caller's language.
type ResultEntry struct {
	Module   string         `json:"module"`
	Testcase string         `json:"testcase,omitempty"`
	Level    string         `json:"level"`
	Tag      string         `json:"tag"`
	Args     map[string]any `json:"args,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// TestStats counts tests per state, used by the admin tooling.
type TestStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}
