// Package server provides the public entry point for initializing the
// Skylink control plane.
//
// This package exists in pkg/ (not internal/) so that embedding programs
// can compose the full server and mount the handler themselves:
//
//	srv, err := server.New(ctx)
//	http.ListenAndServe(":8080", srv.Handler)
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/skylink-io/skylink/internal/agent"
	"github.com/skylink-io/skylink/internal/api"
	"github.com/skylink-io/skylink/internal/api/handlers"
	"github.com/skylink-io/skylink/internal/config"
	"github.com/skylink-io/skylink/internal/drone"
	"github.com/skylink-io/skylink/internal/history"
	"github.com/skylink-io/skylink/internal/interpret"
	"github.com/skylink-io/skylink/internal/metrics"
	"github.com/skylink-io/skylink/internal/plan"
	"github.com/skylink-io/skylink/internal/telemetry"
	"github.com/skylink-io/skylink/pkg/models"
)

// Server holds the initialized Skylink control plane.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Registry is the process-wide agent registry, exposed so embedding
	// programs can pre-initialize agents.
	Registry *agent.Registry

	// History is the execution report store.
	History history.Store

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown: it drains the
	// registry and flushes telemetry.
	ShutdownFunc func(context.Context) error
}

// New initializes all control plane components from the environment.
func New(ctx context.Context) (*Server, error) {
	return NewWithConfig(ctx, config.Load())
}

// NewWithConfig initializes the control plane with an explicit configuration.
func NewWithConfig(_ context.Context, cfg *config.Config) (*Server, error) {
	otelShutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	hist, err := newHistoryStore(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("init history store: %w", err)
	}
	log.Info().Str("backend", cfg.History.Backend).Msg("history store initialized")

	provider, err := interpret.NewProvider(interpret.Config{
		Backend:    cfg.LLM.Backend,
		Model:      cfg.LLM.Model,
		OllamaHost: cfg.LLM.OllamaHost,
	})
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	interpreter := interpret.New(provider, m)
	log.Info().Str("backend", provider.Name()).Msg("interpreter initialized")

	world := &drone.World{
		Envelope:  cfg.World.Envelope,
		Obstacles: cfg.World.Obstacles,
	}
	factory := func(id models.DroneID, profile models.DroneProfile) drone.Controller {
		return drone.NewSim(id, profile, world, drone.WithTimeScale(cfg.Executor.SimTimeScale))
	}

	agents := agent.NewRegistry(factory, cfg.Profile,
		agent.BusyPolicy(cfg.Executor.BusyPolicy), cfg.Executor.OpTimeout, m)
	validator := plan.NewValidator(cfg.World.Envelope, cfg.World.Obstacles)

	h := handlers.New(agents, validator, interpreter, hist, m)
	router := api.NewRouter(cfg, h, registry)

	shutdown := func(ctx context.Context) error {
		if err := agents.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("registry shutdown reported errors")
		}
		if err := hist.Close(); err != nil {
			log.Warn().Err(err).Msg("history store close failed")
		}
		return otelShutdown(ctx)
	}

	return &Server{
		Handler:      router,
		Registry:     agents,
		History:      hist,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}

func newHistoryStore(cfg config.HistoryConfig) (history.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return history.NewMemoryStore(history.WithMemoryTTL(cfg.TTL)), nil
	case "redis":
		return history.NewRedisStore(cfg.RedisAddress, cfg.RedisPassword, cfg.RedisDB,
			history.WithRedisTTL(cfg.TTL)), nil
	default:
		return nil, fmt.Errorf("unsupported history backend %q", cfg.Backend)
	}
}
