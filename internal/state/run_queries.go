package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/elys-network/allocator/internal/types"
	"github.com/holiman/uint256"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// ErrRunNotFound is returned by LoadRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `
	run_number, run_id, run_timestamp, chunk_count, strategies,
	current_apr, new_apr, accepted, snapshot, result`

// runRow holds the raw column values of one allocation_runs row.
type runRow struct {
	record       types.RunRecord
	chunkCount   string
	currentApr   string
	newApr       string
	snapshotJSON []byte
	resultJSON   []byte
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (types.RunRecord, error) {
	var row runRow
	err := scanner.Scan(
		&row.record.RunNumber, &row.record.RunID, &row.record.Timestamp, &row.chunkCount,
		pq.Array(&row.record.Strategies), // Use pq.Array for PostgreSQL array
		&row.currentApr, &row.newApr, &row.record.Accepted, &row.snapshotJSON, &row.resultJSON,
	)
	if err != nil {
		return types.RunRecord{}, err
	}
	return row.decode()
}

// decode converts the NUMERIC and JSONB columns into their typed fields.
func (row *runRow) decode() (types.RunRecord, error) {
	record := row.record

	chunkCount, err := strconv.ParseUint(row.chunkCount, 10, 64)
	if err != nil {
		return types.RunRecord{}, fmt.Errorf("run %s: chunk_count %q: %w", record.RunID, row.chunkCount, err)
	}
	record.ChunkCount = chunkCount

	for _, col := range []struct {
		name string
		text string
		dst  *uint256.Int
	}{
		{"current_apr", row.currentApr, &record.CurrentApr},
		{"new_apr", row.newApr, &record.NewApr},
	} {
		if err := col.dst.SetFromDecimal(col.text); err != nil {
			return types.RunRecord{}, fmt.Errorf("run %s: %s %q: %w", record.RunID, col.name, col.text, err)
		}
	}

	if err := json.Unmarshal(row.snapshotJSON, &record.Snapshot); err != nil {
		return types.RunRecord{}, fmt.Errorf("run %s: failed to unmarshal snapshot: %w", record.RunID, err)
	}
	if err := json.Unmarshal(row.resultJSON, &record.Result); err != nil {
		return types.RunRecord{}, fmt.Errorf("run %s: failed to unmarshal result: %w", record.RunID, err)
	}
	return record, nil
}

// LoadRecentRuns retrieves the most recent runs, newest first.
func LoadRecentRuns(ctx context.Context, limit int) ([]types.RunRecord, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	query := `SELECT ` + runColumns + ` FROM allocation_runs ORDER BY run_timestamp DESC, run_number DESC LIMIT $1`
	rows, err := DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	runs := make([]types.RunRecord, 0, limit)
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan run row")
			continue // Skip this row and continue with others
		}
		runs = append(runs, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// LoadRun retrieves one run by id.
func LoadRun(ctx context.Context, runID string) (*types.RunRecord, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `SELECT ` + runColumns + ` FROM allocation_runs WHERE run_id = $1`
	record, err := scanRun(DB.QueryRowContext(ctx, query, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	return &record, nil
}

// GetRunSummary aggregates the stored history.
func GetRunSummary(ctx context.Context) (*types.RunSummary, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	summary := &types.RunSummary{}
	err := DB.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE accepted)
		FROM allocation_runs`).Scan(&summary.TotalRuns, &summary.AcceptedRuns)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	if summary.TotalRuns == 0 {
		return summary, nil
	}

	err = DB.QueryRowContext(ctx, `
		SELECT run_id, run_timestamp FROM allocation_runs
		ORDER BY run_timestamp DESC, run_number DESC LIMIT 1`).Scan(&summary.LastRunID, &summary.LastRunAt)
	if err != nil {
		return nil, fmt.Errorf("failed to load last run: %w", err)
	}

	return summary, nil
}
