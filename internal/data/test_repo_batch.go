package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/huguei/zonemaster-backend/internal/core"
	"github.com/huguei/zonemaster-backend/internal/data/pgxutil"
	"github.com/huguei/zonemaster-backend/internal/domain/model"
	apperrors "github.com/huguei/zonemaster-backend/internal/errors"
)

// CreateBatch registers all batch members in one transaction. Either the
// batch row and every member are committed together or nothing is, so
// history readers never observe a partially registered batch. Members
// whose identity matches a reusable test reuse it, exactly as StartTest
// would.
func (r *TestRepo) CreateBatch(ctx context.Context, reg core.BatchRegistration) (*model.BatchResult, error) {
	if len(reg.Members) == 0 {
		return nil, apperrors.Validation("batch has no members")
	}

	result := &model.BatchResult{
		BatchID: reg.BatchID,
		Members: make([]model.BatchMember, 0, len(reg.Members)),
	}

	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, `
				INSERT INTO batches (id, params, created_at)
				VALUES ($1, $2, $3)
			`, reg.BatchID, []byte(reg.Params), r.timeProvider.Now().UTC()); err != nil {
				return fmt.Errorf("insert batch: %w", err)
			}

			for _, member := range reg.Members {
				test, created, err := r.lookupOrCreateInTx(ctx, tx, member)
				if err != nil {
					return fmt.Errorf("register batch member %s: %w", member.Domain, err)
				}
				result.Members = append(result.Members, model.BatchMember{
					Domain: member.Domain,
					HashID: test.HashID,
					Reused: !created,
				})
			}
			return nil
		},
	})
	if txErr != nil {
		return nil, apperrors.MapDBError(txErr)
	}

	if r.logger != nil {
		r.logger.DebugContext(ctx, "batch registered",
			"batch_id", reg.BatchID,
			"members", len(result.Members),
		)
	}

	return result, nil
}

// GetBatch returns the batch row by its identifier.
func (r *TestRepo) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	var batch model.Batch
	var params []byte
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, params, created_at
		FROM batches
		WHERE id = $1
	`, batchID).Scan(&batch.ID, &params, &batch.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFoundf("batch %s not found", batchID)
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	batch.Params = cloneJSON(params)
	return &batch, nil
}
