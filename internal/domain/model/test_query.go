package model

import "time"

// HistoryFilter restricts history queries. Nil fields mean "no filter".
type HistoryFilter struct {
	Domain *string
	Class  *DelegationClass
}

// HistoryOptions carries filter plus pagination for history queries.
//
// BeforeID pins the page window to a snapshot of the store: the first page
// returns the highest test id it saw, and callers pass it back so that
// tests inserted mid-pagination cannot shift offsets of rows already
// returned. Zero means "no snapshot yet".
type HistoryOptions struct {
	Filter   HistoryFilter
	Offset   int
	Limit    int
	BeforeID int64
}

// TestSummary is the per-row projection returned by history queries.
type TestSummary struct {
	HashID      string          `json:"hash_id"               db:"hash_id"`
	Domain      string          `json:"domain"                db:"domain"`
	Undelegated *bool           `json:"undelegated,omitempty" db:"undelegated"`
	State       TestState       `json:"state"                 db:"state"`
	CreatedAt   time.Time       `json:"created_at"            db:"created_at"`
	EndedAt     *time.Time      `json:"ended_at,omitempty"    db:"ended_at"`
}

// HistoryPage is one page of history results plus the snapshot cursor for
// the next call.
type HistoryPage struct {
	Results  []TestSummary `json:"results"`
	BeforeID int64         `json:"before_id"`
}

// ProgressResponse reports how far along a test is, in percent.
type ProgressResponse struct {
	HashID   string    `json:"hash_id"`
	State    TestState `json:"state"`
	Progress int       `json:"progress"`
}

// ResultsResponse bundles the stored outcome of a terminal test with the
// original parameters reconstructed for the caller.
type ResultsResponse struct {
	HashID    string          `json:"hash_id"`
	Params    TestParams      `json:"params"`
	Class     DelegationClass `json:"class"`
	CreatedAt time.Time       `json:"created_at"`
	Results   []ResultEntry   `json:"results"`
}
