package main

import (
	"os"

	"github.com/elys-network/allocator/internal/config"
	"github.com/elys-network/allocator/internal/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// main is the entry point for the allocator.
func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Allocator failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "allocator",
		Short:         "Reallocate vault capital across lending strategies to maximize blended APR",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Debug().Msg(".env file not found. Relying on OS environment variables.")
			}

			// Load configuration from environment variables
			if err := config.LoadConfig(); err != nil {
				return err
			}

			logger.Initialize(config.LogLevel, config.LogFile)
			return nil
		},
	}

	root.AddCommand(
		newComputeCmd(),
		newServeCmd(),
		newEncodeCmd(),
		newInspectCmd(),
	)
	return root
}
