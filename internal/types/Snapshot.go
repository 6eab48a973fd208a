/*

This file contains the input snapshot of a run and the result handed to the encoder.

*/

package types

import (
	"time"

	"github.com/holiman/uint256"
)

// Snapshot is the complete input of one allocation run. The three slices are
// positional: index i of each refers to the same strategy.
type Snapshot struct {
	ChunkCount           uint64         `json:"chunk_count"`
	TotalInitialAmount   uint256.Int    `json:"total_initial_amount"`
	TotalAvailableAmount uint256.Int    `json:"total_available_amount"`
	InitialPositions     []Position     `json:"initial_positions"`
	StrategyCaps         []StrategyCaps `json:"strategy_caps"`
	CurveParams          []CurveParams  `json:"curve_params"`
}

// DiagnosticKind classifies a non-fatal condition raised during a run.
type DiagnosticKind string

const (
	// DiagnosticNoFeasibleStrategy means no strategy could take the chunk within its max debt.
	DiagnosticNoFeasibleStrategy DiagnosticKind = "NO_FEASIBLE_STRATEGY"
	// DiagnosticZeroApr means strategies had room but none produced a positive APR.
	DiagnosticZeroApr DiagnosticKind = "ZERO_APR"
)

// Diagnostic is a warning surfaced alongside a result.
type Diagnostic struct {
	Kind       DiagnosticKind `json:"kind"`
	ChunkIndex uint64         `json:"chunk_index"`
	Action     string         `json:"action"` // fallback or skipped
}

// Result is the outcome of one run. Plan is empty whenever Accepted is false.
type Result struct {
	RunID       string       `json:"run_id"`
	Timestamp   time.Time    `json:"timestamp"`
	Plan        []Position   `json:"plan"`
	Actions     ActionPlan   `json:"actions"`
	CurrentApr  uint256.Int  `json:"current_apr"`
	NewApr      uint256.Int  `json:"new_apr"`
	Accepted    bool         `json:"accepted"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}
