package main

import (
	"os/signal"
	"syscall"

	"github.com/elys-network/allocator/internal/config"
	"github.com/elys-network/allocator/internal/engine"
	"github.com/elys-network/allocator/internal/metrics"
	"github.com/elys-network/allocator/internal/state"
	"github.com/elys-network/allocator/internal/web"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// openDatabase connects to PostgreSQL with the loaded config and ensures the schema.
func openDatabase() error {
	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: int(config.DBPort),
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		return err
	}
	if err := state.EnsureSchema(); err != nil {
		state.CloseDB()
		return err
	}
	return nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the run history dashboard, the dry-run API and Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			persistence := config.PersistenceEnabled()

			var runStore engine.RunStore
			if persistence {
				if err := openDatabase(); err != nil {
					return err
				}
				defer state.CloseDB()
				runStore = state.Store{}
			} else {
				log.Warn().Msg("DB_HOST not set. Serving without run history.")
			}

			opts, err := config.AllocatorOptions()
			if err != nil {
				return err
			}
			m := metrics.Default()
			eng, err := engine.NewEngine(engine.Config{Options: opts, Metrics: m, Store: runStore})
			if err != nil {
				return err
			}

			webServer := web.NewWebServer(web.Config{
				Port:        config.WebPort,
				Engine:      eng,
				Metrics:     m,
				Persistence: persistence,
			})

			// Create context for graceful shutdown
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting allocator web dashboard")
				errCh <- webServer.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				log.Info().Msg("Shutdown signal received")
				return nil
			}
		},
	}
}

