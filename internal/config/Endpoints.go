package config

import (
	"github.com/rs/zerolog/log"
)

// Database endpoint configuration loaded from environment variables.
// Persistence of run records is enabled only when DB_HOST is set.
var (
	DBHost     string
	DBPort     uint64
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// loadDatabaseConfig loads the PostgreSQL endpoint from environment variables.
// This function is called by LoadConfig() in General.go.
func loadDatabaseConfig() error {
	DBHost = getEnvWithDefault("DB_HOST", "")
	if DBHost == "" {
		log.Info().Msg("DB_HOST not set, run records will not be persisted")
		return nil
	}

	var err error
	DBPort = DefaultDBPort
	if _, set := lookupNonEmpty("DB_PORT"); set {
		DBPort, err = getEnvAsUint64("DB_PORT")
		if err != nil {
			return err
		}
	}

	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}

	DBPassword = getEnvWithDefault("DB_PASSWORD", "")
	DBName = getEnvWithDefault("DB_NAME", DefaultDBName)
	DBSSLMode = getEnvWithDefault("DB_SSLMODE", DefaultDBSSLMode)

	log.Debug().
		Str("DBHost", DBHost).
		Uint64("DBPort", DBPort).
		Str("DBName", DBName).
		Str("DBSSLMode", DBSSLMode).
		Msg("Database configuration loaded successfully.")

	return nil
}

// PersistenceEnabled reports whether a database endpoint was configured.
func PersistenceEnabled() bool {
	return DBHost != ""
}

func lookupNonEmpty(key string) (string, bool) {
	value, err := getEnv(key)
	return value, err == nil && value != ""
}
