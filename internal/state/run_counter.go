/*

This file manages the persistent run counter.
Run numbers are stored in the database so they keep increasing across restarts.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ensureRunCounterTable creates the run_counter table if it doesn't exist
func ensureRunCounterTable() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	createTableSQL := `
		CREATE TABLE IF NOT EXISTS run_counter (
			id INTEGER PRIMARY KEY DEFAULT 1,
			current_run BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT single_row_check CHECK (id = 1)
		);

		-- Insert initial row if it doesn't exist
		INSERT INTO run_counter (id, current_run)
		VALUES (1, 0)
		ON CONFLICT (id) DO NOTHING;
	`

	if _, err := DB.Exec(createTableSQL); err != nil {
		return fmt.Errorf("failed to create run_counter table: %w", err)
	}

	log.Debug().Msg("Ensured run_counter table exists")
	return nil
}

// GetCurrentRunNumber retrieves the number of the last stored run.
func GetCurrentRunNumber(ctx context.Context) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	var currentRun int64
	err := DB.QueryRowContext(ctx, `SELECT current_run FROM run_counter WHERE id = 1;`).Scan(&currentRun)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Warn().Msg("No run counter row found, initializing to 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current run number: %w", err)
	}

	return currentRun, nil
}

// incrementRunNumber bumps the counter inside tx and returns the new value.
func incrementRunNumber(ctx context.Context, tx *sql.Tx) (int64, error) {
	updateQuery := `
		UPDATE run_counter
		SET current_run = current_run + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_run;`

	var next int64
	if err := tx.QueryRowContext(ctx, updateQuery).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to increment run number: %w", err)
	}
	return next, nil
}
