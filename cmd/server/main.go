// Skylink Control Plane — natural-language drone orchestration.
//
// This is the main entry point for the Skylink server. It provides:
//   - Agent Registry (one agent per drone, strict per-drone serialization)
//   - Command pipeline (interpret → validate → execute → report)
//   - Simulated drone backend with battery and no-fly-zone modeling
//   - Execution report history (in-memory or Redis)
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/skylink-io/skylink/internal/config"
	"github.com/skylink-io/skylink/pkg/server"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// .env is optional; real deployments configure via the environment.
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg(".env loaded")
	}

	root := &cobra.Command{
		Use:          "skylink",
		Short:        "Skylink drone control plane",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control plane HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().Msg("Skylink control plane starting")

			cfg := config.Load()
			if port > 0 {
				cfg.Port = port
			}

			ctx := context.Background()
			srv, err := server.NewWithConfig(ctx, cfg)
			if err != nil {
				return fmt.Errorf("initialize server: %w", err)
			}

			httpServer := &http.Server{
				Addr:         fmt.Sprintf(":%d", srv.Port),
				Handler:      srv.Handler,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			}

			go func() {
				sigChan := make(chan os.Signal, 1)
				signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
				<-sigChan

				log.Info().Msg("shutting down gracefully")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := httpServer.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("http shutdown")
				}
				if err := srv.ShutdownFunc(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("component shutdown")
				}
			}()

			log.Info().Int("port", srv.Port).Msg("Skylink is airborne")

			if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides SKYLINK_PORT)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(config.Load().Version)
		},
	}
}
