package data

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/huguei/zonemaster-backend/internal/data/pgxutil"
	"github.com/huguei/zonemaster-backend/internal/domain/model"
	apperrors "github.com/huguei/zonemaster-backend/internal/errors"
)

// ListUnclassified returns up to limit rows whose delegation class was
// never derived, with id greater than afterID, in ascending id order. The
// backfill routine pages through the historical set with this.
func (r *TestRepo) ListUnclassified(ctx context.Context, afterID int64, limit int) ([]*model.Test, error) {
	if limit <= 0 {
		limit = 100
	}

	var result []*model.Test
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			SELECT `+testColumns+`
			FROM tests
			WHERE undelegated IS NULL AND id > $1
			ORDER BY id ASC
			LIMIT $2
		`, afterID, limit)
		if err != nil {
			return fmt.Errorf("query unclassified tests: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			t, scanErr := scanTestFromRow(rows)
			if scanErr != nil {
				return fmt.Errorf("scan unclassified test: %w", scanErr)
			}
			result = append(result, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	return result, nil
}

// SetClass persists a re-derived delegation class for a historical row.
// The guard on undelegated IS NULL keeps the routine idempotent and makes
// sure it never overwrites a class written by the live path or by a
// concurrent backfill run. Raw parameters, results, and identities are
// untouched.
func (r *TestRepo) SetClass(ctx context.Context, id int64, undelegated bool) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE tests
		SET undelegated = $2
		WHERE id = $1 AND undelegated IS NULL
	`, id, undelegated)
	if err != nil {
		return false, apperrors.MapDBError(fmt.Errorf("set delegation class: %w", err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set class rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
