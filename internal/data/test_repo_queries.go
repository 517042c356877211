package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/huguei/zonemaster-backend/internal/data/pgxutil"
	"github.com/huguei/zonemaster-backend/internal/domain/model"
	apperrors "github.com/huguei/zonemaster-backend/internal/errors"
)

// historyFilterBuilder accumulates WHERE conditions for history queries.
type historyFilterBuilder struct {
	conditions []string
	args       []any
	argIdx     int
}

func (b *historyFilterBuilder) add(condition string, value any) {
	b.conditions = append(b.conditions, fmt.Sprintf(condition, b.argIdx))
	b.args = append(b.args, value)
	b.argIdx++
}

func buildHistoryQuery(opts model.HistoryOptions) (string, []any) {
	builder := &historyFilterBuilder{argIdx: 1}

	// The id snapshot pins the page window so rows inserted mid-pagination
	// cannot shift offsets of pages already served.
	builder.add("id <= $%d", opts.BeforeID)

	if opts.Filter.Domain != nil {
		builder.add("domain = $%d", strings.ToLower(strings.TrimSpace(*opts.Filter.Domain)))
	}
	if opts.Filter.Class != nil {
		builder.add("undelegated = $%d", opts.Filter.Class.Undelegated())
	}

	query := `
		SELECT hash_id, domain, undelegated, state, created_at, ended_at
		FROM tests
		WHERE ` + strings.Join(builder.conditions, " AND ") + `
		ORDER BY created_at DESC, id ASC
		LIMIT $` + fmt.Sprint(builder.argIdx) + ` OFFSET $` + fmt.Sprint(builder.argIdx+1)

	args := append(builder.args, opts.Limit, opts.Offset)
	return query, args
}

// History returns a filtered, paginated page of test summaries, newest
// submissions first with ascending id as the tie break.
func (r *TestRepo) History(ctx context.Context, opts model.HistoryOptions) (*model.HistoryPage, error) {
	if opts.Limit <= 0 {
		return nil, apperrors.Validation("history limit must be positive")
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	if opts.BeforeID <= 0 {
		maxID, err := r.maxTestID(ctx)
		if err != nil {
			return nil, err
		}
		opts.BeforeID = maxID
	}

	page := &model.HistoryPage{
		Results:  []model.TestSummary{},
		BeforeID: opts.BeforeID,
	}
	if opts.BeforeID == 0 {
		return page, nil
	}

	query, args := buildHistoryQuery(opts)

	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query history: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				summary     model.TestSummary
				undelegated *bool
			)
			if err := rows.Scan(
				&summary.HashID,
				&summary.Domain,
				&undelegated,
				&summary.State,
				&summary.CreatedAt,
				&summary.EndedAt,
			); err != nil {
				return fmt.Errorf("scan history row: %w", err)
			}
			summary.Undelegated = undelegated
			page.Results = append(page.Results, summary)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	return page, nil
}

func (r *TestRepo) maxTestID(ctx context.Context) (int64, error) {
	var maxID int64
	if err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM tests`).Scan(&maxID); err != nil {
		return 0, apperrors.MapDBError(fmt.Errorf("snapshot max test id: %w", err))
	}
	return maxID, nil
}

// Stats returns counts of tests in each state.
func (r *TestRepo) Stats(ctx context.Context) (*model.TestStats, error) {
	var s model.TestStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE state = 'queued')    AS queued,
    count(*) FILTER (WHERE state = 'running')   AS running,
    count(*) FILTER (WHERE state = 'completed') AS completed,
    count(*) FILTER (WHERE state = 'failed')    AS failed
  FROM tests
  `).Scan(
		&s.Queued,
		&s.Running,
		&s.Completed,
		&s.Failed,
	)
	if err != nil {
		return nil, apperrors.MapDBError(fmt.Errorf("get test stats: %w", err))
	}
	return &s, nil
}
