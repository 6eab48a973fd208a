package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFile, when set, receives a copy of every log entry.
	LogFile string

	// InfeasiblePolicy decides what happens to a chunk no strategy can take: fallback, skip or fail.
	InfeasiblePolicy string
	// ConserveRemainder books only the integer-division leftover on the final chunk.
	ConserveRemainder bool

	// WebPort is the listen port of the serve command.
	WebPort string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Every variable is optional and falls back to the defaults in Parameters.go.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	LogLevel = strings.ToLower(getEnvWithDefault("LOG_LEVEL", DefaultLogLevel))
	LogFile = getEnvWithDefault("LOG_FILE", "")

	InfeasiblePolicy = strings.ToLower(getEnvWithDefault("ALLOCATOR_INFEASIBLE_POLICY", DefaultInfeasiblePolicy))
	if _, err = AllocatorOptions(); err != nil {
		return err
	}

	ConserveRemainder, err = getEnvAsBool("ALLOCATOR_CONSERVE_REMAINDER", false)
	if err != nil {
		return err
	}

	WebPort = getEnvWithDefault("WEB_PORT", DefaultWebPort)
	if _, err = strconv.ParseUint(WebPort, 10, 16); err != nil {
		return errors.New("environment variable WEB_PORT must be a valid port, got: " + WebPort)
	}

	// Load database configuration
	if err := loadDatabaseConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("LogLevel", LogLevel).
		Str("InfeasiblePolicy", InfeasiblePolicy).
		Bool("ConserveRemainder", ConserveRemainder).
		Str("WebPort", WebPort).
		Bool("PersistenceEnabled", PersistenceEnabled()).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvWithDefault retrieves a string environment variable or the fallback when unset or empty.
func getEnvWithDefault(key, fallback string) string {
	value, err := getEnv(key)
	if err != nil || value == "" {
		return fallback
	}
	return value
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsBool retrieves an environment variable as a bool, using fallback when unset.
func getEnvAsBool(key string, fallback bool) (bool, error) {
	valueStr, err := getEnv(key)
	if err != nil || valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.New("environment variable " + key + " must be a valid bool, got: " + valueStr)
	}
	return value, nil
}
