package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/elys-network/allocator/internal/types"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"
)

// Store adapts the package-level persistence functions to the engine's RunStore.
type Store struct{}

// SaveRunRecord implements engine.RunStore.
func (Store) SaveRunRecord(ctx context.Context, snapshot *types.Snapshot, result *types.Result) error {
	_, err := SaveRunRecord(ctx, snapshot, result)
	return err
}

// NewRunRecord assembles the record stored for one run.
func NewRunRecord(snapshot *types.Snapshot, result *types.Result) types.RunRecord {
	strategies := make([]string, len(snapshot.InitialPositions))
	for i := range snapshot.InitialPositions {
		strategies[i] = snapshot.InitialPositions[i].Strategy.Hex()
	}
	return types.RunRecord{
		RunID:      result.RunID,
		Timestamp:  result.Timestamp,
		ChunkCount: snapshot.ChunkCount,
		Strategies: strategies,
		CurrentApr: result.CurrentApr,
		NewApr:     result.NewApr,
		Accepted:   result.Accepted,
		Snapshot:   *snapshot,
		Result:     *result,
	}
}

// SaveRunRecord stores one run and returns its run number.
func SaveRunRecord(ctx context.Context, snapshot *types.Snapshot, result *types.Result) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}
	if snapshot == nil || result == nil {
		return 0, fmt.Errorf("snapshot and result are required")
	}

	record := NewRunRecord(snapshot, result)

	// Marshal all JSONB fields
	snapshotJSON, err := json.Marshal(&record.Snapshot)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	resultJSON, err := json.Marshal(&record.Result)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal result: %w", err)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	runNumber, err := incrementRunNumber(ctx, tx)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO allocation_runs (
			run_id, run_number, run_timestamp, chunk_count, strategies,
			current_apr, new_apr, accepted, snapshot, result
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err = tx.ExecContext(ctx, query,
		record.RunID, runNumber, record.Timestamp, strconv.FormatUint(record.ChunkCount, 10), pq.Array(record.Strategies),
		record.CurrentApr.Dec(), record.NewApr.Dec(), record.Accepted, snapshotJSON, resultJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save run record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run record: %w", err)
	}

	log.Info().
		Str("run_id", record.RunID).
		Int64("run_number", runNumber).
		Bool("accepted", record.Accepted).
		Msg("Run record saved to database")

	return runNumber, nil
}
