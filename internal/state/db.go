package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// ErrDBNotInitialized is returned by every query when InitDB has not succeeded.
var ErrDBNotInitialized = errors.New("database not initialized")

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(10)
	DB.SetMaxIdleConns(10)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
		DB = nil
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS allocation_runs (
			run_id UUID PRIMARY KEY,
			run_number BIGINT NOT NULL,
			run_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			chunk_count NUMERIC(20, 0) NOT NULL,
			strategies TEXT[] NOT NULL,

			-- Blended APRs are 256-bit integers
			current_apr NUMERIC(78, 0) NOT NULL,
			new_apr NUMERIC(78, 0) NOT NULL,
			accepted BOOLEAN NOT NULL,

			snapshot JSONB NOT NULL,
			result JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_allocation_runs_timestamp ON allocation_runs(run_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_allocation_runs_accepted ON allocation_runs(accepted);
	`
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}

	if err := ensureRunCounterTable(); err != nil {
		return err
	}

	log.Info().Msg("Database schema ensured (allocation_runs, run_counter).")
	return nil
}

// DropSchema removes every allocator table. EnsureSchema recreates them.
func DropSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	dropTablesQuery := `
		DROP TABLE IF EXISTS allocation_runs CASCADE;
		DROP TABLE IF EXISTS run_counter CASCADE;
	`
	if _, err := DB.Exec(dropTablesQuery); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}

	log.Warn().Msg("Dropped allocation_runs and run_counter")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
