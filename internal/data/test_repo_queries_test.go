package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huguei/zonemaster-backend/internal/domain/model"
)

func TestBuildHistoryQuery(t *testing.T) {
	t.Run("snapshot only", func(t *testing.T) {
		query, args := buildHistoryQuery(model.HistoryOptions{
			BeforeID: 42,
			Limit:    100,
			Offset:   0,
		})

		assert.Contains(t, query, "id <= $1")
		assert.Contains(t, query, "LIMIT $2 OFFSET $3")
		assert.NotContains(t, query, "domain =")
		assert.NotContains(t, query, "undelegated =")
		assert.Equal(t, []any{int64(42), 100, 0}, args)
	})

	t.Run("domain filter normalized", func(t *testing.T) {
		domain := "  EXAMPLE.org "
		query, args := buildHistoryQuery(model.HistoryOptions{
			Filter:   model.HistoryFilter{Domain: &domain},
			BeforeID: 42,
			Limit:    100,
		})

		assert.Contains(t, query, "domain = $2")
		require.Len(t, args, 4)
		assert.Equal(t, "example.org", args[1])
	})

	t.Run("class filter maps to the stored boolean", func(t *testing.T) {
		class := model.ClassUndelegated
		query, args := buildHistoryQuery(model.HistoryOptions{
			Filter:   model.HistoryFilter{Class: &class},
			BeforeID: 42,
			Limit:    100,
		})

		assert.Contains(t, query, "undelegated = $2")
		require.Len(t, args, 4)
		assert.Equal(t, true, args[1])
	})

	t.Run("all filters combine with AND", func(t *testing.T) {
		domain := "example.org"
		class := model.ClassDelegated
		query, args := buildHistoryQuery(model.HistoryOptions{
			Filter:   model.HistoryFilter{Domain: &domain, Class: &class},
			BeforeID: 7,
			Limit:    10,
			Offset:   20,
		})

		assert.Contains(t, query, "id <= $1 AND domain = $2 AND undelegated = $3")
		assert.Contains(t, query, "LIMIT $4 OFFSET $5")
		assert.Equal(t, []any{int64(7), "example.org", false, 10, 20}, args)
	})

	t.Run("newest first with stable tie break", func(t *testing.T) {
		query, _ := buildHistoryQuery(model.HistoryOptions{BeforeID: 1, Limit: 1})
		assert.Contains(t, query, "ORDER BY created_at DESC, id ASC")
	})
}
