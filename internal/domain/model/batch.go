package model

import (
	"encoding/json"
	"time"
)

// Batch groups tests registered in one atomic submission sharing a
// parameter template.
type Batch struct {
	ID        string          `json:"id"         db:"id"`
	Params    json.RawMessage `json:"params"     db:"params"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// BatchMember links a batch to one registered test, preserving the
// submission order of the domains.
type BatchMember struct {
	Domain string `json:"domain"`
	HashID string `json:"hash_id"`
	// Reused is true when the member satisfied an existing test instead of
	// creating new work.
	Reused bool `json:"reused"`
}

// BatchResult is the outcome of a batch registration.
type BatchResult struct {
	BatchID string        `json:"batch_id"`
	Members []BatchMember `json:"members"`
}

// StartBatchRequest is the raw batch submission: a list of domains plus a
// shared parameter template applied to each of them.
type StartBatchRequest struct {
	Domains []string   `json:"domains"`
	Params  TestParams `json:"params"`
}
