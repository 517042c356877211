package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/huguei/zonemaster-backend/internal/core"
	"github.com/huguei/zonemaster-backend/internal/data/pgxutil"
	"github.com/huguei/zonemaster-backend/internal/domain/model"
	apperrors "github.com/huguei/zonemaster-backend/internal/errors"
)

// reusableTestSQL finds the test a new, identical submission may reuse:
// any non-terminal test for the identity, or a terminal one created inside
// the reuse window. This query is the single point where reuse policy lives.
const reusableTestSQL = `
  SELECT ` + testColumns + `
  FROM tests
  WHERE hash_id = $1
    AND (state IN ('queued', 'running') OR created_at > $2)
  ORDER BY id DESC
  LIMIT 1`

const insertTestSQL = `
  INSERT INTO tests (hash_id, domain, params, undelegated, state, progress, batch_id, created_at)
  VALUES ($1, $2, $3, $4, 'queued', 0, $5, $6)
  RETURNING ` + testColumns

// LookupOrCreate registers a test unless a reusable one with the same
// identity already exists. The lookup and the insert run in one
// transaction; the partial unique index on (hash_id) over non-terminal
// states closes the race between two concurrent submissions of the same
// canonical parameters — the loser re-reads the winner's row.
func (r *TestRepo) LookupOrCreate(ctx context.Context, t core.NewTest) (*model.Test, bool, error) {
	var (
		test    *model.Test
		created bool
	)

	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			var err error
			test, created, err = r.lookupOrCreateInTx(ctx, tx, t)
			return err
		},
	})
	if txErr != nil {
		if apperrors.IsUniqueViolation(txErr) {
			// Lost the insert race; the winner's row is now visible.
			existing, err := r.GetByHashID(ctx, t.HashID)
			if err != nil {
				return nil, false, fmt.Errorf("reread after identity conflict: %w", err)
			}
			return existing, false, nil
		}
		return nil, false, apperrors.MapDBError(txErr)
	}

	if r.logger != nil && created {
		r.logger.DebugContext(ctx, "test created",
			"hash_id", test.HashID,
			"domain", test.Domain,
			"undelegated", t.Undelegated,
		)
	}

	return test, created, nil
}

func (r *TestRepo) lookupOrCreateInTx(
	ctx context.Context,
	tx pgx.Tx,
	t core.NewTest,
) (*model.Test, bool, error) {
	existing, err := r.findReusableInTx(ctx, tx, t.HashID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	test, err := r.insertTestInTx(ctx, tx, t)
	if err != nil {
		return nil, false, err
	}
	return test, true, nil
}

func (r *TestRepo) findReusableInTx(ctx context.Context, tx pgx.Tx, hashID string) (*model.Test, error) {
	cutoff := r.timeProvider.Now().Add(-r.cfg.ReuseWindow).UTC()

	rows, err := tx.Query(ctx, reusableTestSQL, hashID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find reusable test: %w", err)
	}
	test, collectErr := collectTestFromRows(rows)
	rows.Close()
	if errors.Is(collectErr, pgx.ErrNoRows) {
		return nil, nil
	}
	if collectErr != nil {
		return nil, fmt.Errorf("collect reusable test: %w", collectErr)
	}
	return test, nil
}

func (r *TestRepo) insertTestInTx(ctx context.Context, tx pgx.Tx, t core.NewTest) (*model.Test, error) {
	rows, err := tx.Query(ctx, insertTestSQL,
		t.HashID,
		t.Domain,
		[]byte(t.Params),
		t.Undelegated,
		t.BatchID,
		r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert test: %w", err)
	}
	test, collectErr := collectTestFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, fmt.Errorf("collect test: %w", collectErr)
	}

	if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, notifyChannel, test.HashID); execErr != nil {
		return nil, fmt.Errorf("send test notification: %w", execErr)
	}

	return test, nil
}

// GetByHashID returns the most recent test for the identity.
func (r *TestRepo) GetByHashID(ctx context.Context, hashID string) (*model.Test, error) {
	var test *model.Test
	err := pgxutil.WithPgxConn(ctx, r.DB, func(pgxConn *pgx.Conn) error {
		rows, err := pgxConn.Query(ctx, `
			SELECT `+testColumns+`
			FROM tests
			WHERE hash_id = $1
			ORDER BY id DESC
			LIMIT 1
		`, hashID)
		if err != nil {
			return err
		}
		defer rows.Close()
		test, err = collectTestFromRows(rows)
		return err
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("test %s not found", hashID)
	}
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get test: %w", err))
	}
	return test, nil
}

// Advance applies a worker-reported state transition. The current state is
// read under FOR UPDATE so a crashed-and-retried worker cannot double-apply
// a transition or overwrite a terminal state.
func (r *TestRepo) Advance(ctx context.Context, p core.AdvanceParams) (*model.Test, error) {
	if !p.NewState.Valid() {
		return nil, apperrors.Validationf("invalid state: %q", p.NewState)
	}

	var test *model.Test
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			var err error
			test, err = r.advanceInTx(ctx, tx, p)
			return err
		},
	})
	if txErr != nil {
		var appErr *apperrors.AppError
		if errors.As(txErr, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.MapDBError(txErr)
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "test advanced",
			"hash_id", p.HashID,
			"state", p.NewState,
		)
	}

	return test, nil
}

func (r *TestRepo) advanceInTx(ctx context.Context, tx pgx.Tx, p core.AdvanceParams) (*model.Test, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+testColumns+`
		FROM tests
		WHERE hash_id = $1
		ORDER BY id DESC
		LIMIT 1
		FOR UPDATE
	`, p.HashID)
	if err != nil {
		return nil, fmt.Errorf("lock test: %w", err)
	}
	current, collectErr := collectTestFromRows(rows)
	rows.Close()
	if errors.Is(collectErr, pgx.ErrNoRows) {
		return nil, apperrors.NotFoundf("test %s not found", p.HashID)
	}
	if collectErr != nil {
		return nil, fmt.Errorf("collect test: %w", collectErr)
	}

	if !current.State.CanAdvanceTo(p.NewState) {
		return nil, apperrors.InvalidTransitionf(
			"cannot advance test %s from %s to %s", p.HashID, current.State, p.NewState)
	}

	now := r.timeProvider.Now().UTC()
	return r.applyTransitionInTx(ctx, tx, current, p, now)
}

func (r *TestRepo) applyTransitionInTx(
	ctx context.Context,
	tx pgx.Tx,
	current *model.Test,
	p core.AdvanceParams,
	now time.Time,
) (*model.Test, error) {
	var (
		rows pgx.Rows
		err  error
	)

	if p.NewState == model.TestStateRunning {
		rows, err = tx.Query(ctx, `
			UPDATE tests
			SET state = 'running', progress = $2, started_at = $3
			WHERE id = $1
			RETURNING `+testColumns,
			current.ID, model.ProgressRunning, now)
	} else {
		rows, err = tx.Query(ctx, `
			UPDATE tests
			SET state = $2, progress = $3, results = $4, ended_at = $5
			WHERE id = $1
			RETURNING `+testColumns,
			current.ID, p.NewState, model.ProgressDone, []byte(p.Results), now)
	}
	if err != nil {
		return nil, fmt.Errorf("apply transition: %w", err)
	}
	test, collectErr := collectTestFromRows(rows)
	rows.Close()
	if collectErr != nil {
		return nil, fmt.Errorf("collect advanced test: %w", collectErr)
	}
	return test, nil
}

// SQL used by ClaimNext to atomically hand the oldest queued test to a runner.
const claimNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM tests
    WHERE state = 'queued'
    ORDER BY created_at ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE tests t
  SET state = 'running',
      progress = $1,
      started_at = $2
  FROM cte
  WHERE t.id = cte.id
  RETURNING t.id, t.hash_id, t.domain, t.params, t.undelegated, t.state, t.progress, t.results, t.batch_id, t.created_at, t.started_at, t.ended_at`

// ClaimNext atomically moves the oldest queued test to running and returns
// it. FOR UPDATE SKIP LOCKED lets concurrent agents claim disjoint tests.
func (r *TestRepo) ClaimNext(ctx context.Context) (*model.Test, error) {
	var test *model.Test
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now().UTC()
			rows, qerr := tx.Query(ctx, claimNextUpdateSQL, model.ProgressRunning, now)
			if qerr != nil {
				return fmt.Errorf("claim test: %w", qerr)
			}
			defer rows.Close()

			t, cerr := collectTestFromRows(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoTestsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("collect claimed test: %w", cerr)
			}
			test = t
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, model.ErrNoTestsAvailable) {
			return nil, model.ErrNoTestsAvailable
		}
		return nil, apperrors.MapDBError(err)
	}
	return test, nil
}

// WaitForNotification waits for a PostgreSQL notification indicating new
// tests are queued.
func (r *TestRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			_ = cerr
		}
	}()

	quoted := pgx.Identifier{notifyChannel}.Sanitize()

	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, execErr)
	}
	defer func() {
		if _, execErr := conn.ExecContext(context.Background(), "UNLISTEN "+quoted); execErr != nil {
			_ = execErr
		}
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}
