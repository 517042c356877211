// Package data implements the PostgreSQL-backed test store.
package data

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/huguei/zonemaster-backend/internal/domain/model"
)

// notifyChannel is the LISTEN/NOTIFY channel signalled when a test is queued.
const notifyChannel = "test_queued"

// RepoConfig holds configuration options for the test repository.
type RepoConfig struct {
	// ReuseWindow is how long a terminal test may still satisfy a new,
	// identical submission. Non-terminal tests are reused regardless of age.
	ReuseWindow  time.Duration
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// TestRepo provides database operations for test registration and tracking.
type TestRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewTestRepo creates a new TestRepo instance with the given database connection and configuration.
func NewTestRepo(db *sql.DB, cfg RepoConfig) *TestRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}

	return &TestRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       cfg.Logger,
	}
}

const testColumns = `
  id,
  hash_id,
  domain,
  params,
  undelegated,
  state,
  progress,
  results,
  batch_id,
  created_at,
  started_at,
  ended_at
`

type testRowScanner interface {
	Scan(dest ...any) error
}

type testRowData struct {
	params, results    []byte
	undelegated        sql.NullBool
	batchID            sql.NullString
	startedAt, endedAt sql.NullTime
}

func (d *testRowData) scanInto(scanner testRowScanner, t *model.Test) error {
	return scanner.Scan(
		&t.ID,
		&t.HashID,
		&t.Domain,
		&d.params,
		&d.undelegated,
		&t.State,
		&t.Progress,
		&d.results,
		&d.batchID,
		&t.CreatedAt,
		&d.startedAt,
		&d.endedAt,
	)
}

func (d *testRowData) apply(t *model.Test) {
	t.Params = cloneJSON(d.params)
	if len(d.results) > 0 {
		t.Results = append(json.RawMessage(nil), d.results...)
	}
	t.Undelegated = cloneNullableBool(d.undelegated)
	t.BatchID = cloneNullableString(d.batchID)
	t.StartedAt = cloneNullableTime(d.startedAt)
	t.EndedAt = cloneNullableTime(d.endedAt)
}

func scanTestFromRow(scanner testRowScanner) (*model.Test, error) {
	t := &model.Test{}
	var data testRowData
	if err := data.scanInto(scanner, t); err != nil {
		return nil, err
	}

	data.apply(t)
	return t, nil
}

// collectTestFromRows collects a single test from pgx rows.
func collectTestFromRows(rows pgx.Rows) (*model.Test, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}

	t, err := scanTestFromRow(rows)
	if err != nil {
		return nil, err
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, rowsErr
	}

	return t, nil
}

func cloneJSON(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return append(json.RawMessage(nil), raw...)
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableBool(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	b := nb.Bool
	return &b
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
