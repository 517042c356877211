package data

import (
	"context"
	"fmt"
	"time"

	"github.com/huguei/zonemaster-backend/internal/domain/model"
	apperrors "github.com/huguei/zonemaster-backend/internal/errors"
)

// abandonedResults is the failure report attached to tests whose runner
// disappeared.
const abandonedResults = `[{"module":"backend","level":"critical","tag":"TEST_ABANDONED","message":"runner disappeared; test failed by janitor"}]`

// FailOverdue fails running tests started more than maxAge ago on behalf
// of a runner that will never report back. This is the external-reaper
// role; the store's own transition logic is not involved because there is
// no worker left to drive it.
func (r *TestRepo) FailOverdue(ctx context.Context, maxAge time.Duration) (int64, error) {
	now := r.timeProvider.Now().UTC()
	cutoff := now.Add(-maxAge)

	res, err := r.DB.ExecContext(ctx, `
		UPDATE tests
		SET state = 'failed',
		    progress = $1,
		    results = $2::jsonb,
		    ended_at = $3
		WHERE state = 'running'
		  AND started_at IS NOT NULL
		  AND started_at < $4
	`, model.ProgressDone, abandonedResults, now, cutoff)
	if err != nil {
		return 0, apperrors.MapDBError(fmt.Errorf("fail overdue tests: %w", err))
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("fail overdue rows affected: %w", err)
	}

	if r.logger != nil && rowsAffected > 0 {
		r.logger.InfoContext(ctx, "failed abandoned tests",
			"count", rowsAffected,
			"max_age", maxAge,
		)
	}

	return rowsAffected, nil
}
