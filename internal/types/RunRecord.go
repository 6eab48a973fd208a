package types

import (
	"time"

	"github.com/holiman/uint256"
)

// RunRecord is a persisted run: its input snapshot next to the result it produced.
type RunRecord struct {
	RunNumber  int64       `json:"run_number"`
	RunID      string      `json:"run_id"`
	Timestamp  time.Time   `json:"timestamp"`
	ChunkCount uint64      `json:"chunk_count"`
	Strategies []string    `json:"strategies"`
	CurrentApr uint256.Int `json:"current_apr"`
	NewApr     uint256.Int `json:"new_apr"`
	Accepted   bool        `json:"accepted"`
	Snapshot   Snapshot    `json:"snapshot"`
	Result     Result      `json:"result"`
}

// RunSummary aggregates the stored run history.
type RunSummary struct {
	TotalRuns    int64     `json:"total_runs"`
	AcceptedRuns int64     `json:"accepted_runs"`
	LastRunID    string    `json:"last_run_id,omitempty"`
	LastRunAt    time.Time `json:"last_run_at,omitempty"`
}
