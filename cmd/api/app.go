package main

import (
	"context"
	"fmt"
	"go-autoagent/internal/config"
	"go-autoagent/internal/engine"
	"go-autoagent/internal/notify"
	"go-autoagent/internal/packs"
	"go-autoagent/internal/planner"
	"go-autoagent/internal/store"
	"go-autoagent/internal/store/memory"
	"go-autoagent/internal/store/postgres"
	"go-autoagent/internal/workspace"
	"go-autoagent/pkg/logger"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	zLog "github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms/openai"
)

// app owns everything the engine needs and releases it on close.
type app struct {
	engine  *engine.Engine
	hub     *notify.Hub
	closers []func()
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	a := &app{hub: notify.NewHub()}
	a.closers = append(a.closers, a.hub.Close)

	repo, err := a.store(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	ws, err := workspace.NewLocal(cfg.WorkspacePath)
	if err != nil {
		a.close()
		return nil, err
	}

	procs := packs.NewProcesses()
	a.closers = append(a.closers, procs.Close)
	registry, err := packs.NewRegistry(packs.Config{
		RestrictCodeExecution: cfg.RestrictCodeExecution,
		AutoInstall:           cfg.AutoInstallPacks,
		Processes:             procs,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	sinks := notify.Multi{a.hub, notify.Log{Logger: logger.Component("events")}}
	if cfg.NATSURL != "" {
		conn, err := notify.ConnectNATS(cfg.NATSURL, "go-autoagent")
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, func() { drain(conn) })
		sinks = append(sinks, notify.NewNATS(conn, cfg.NATSSubject))
	}

	// The openai client only reads its key from the environment.
	if cfg.OpenAIAPIKey != "" && os.Getenv("OPENAI_API_KEY") == "" {
		_ = os.Setenv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	}
	llm, err := openai.New()
	if err != nil {
		a.close()
		return nil, fmt.Errorf("openai: %w", err)
	}
	chain := chains.NewLLMChain(llm, planner.NextStepPrompt)

	a.engine, err = engine.New(engine.Dependencies{
		Store:       repo,
		Registry:    registry,
		Planner:     planner.New(planner.ChainCompleter{Chain: chain}, planner.Options{}),
		Workspaces:  ws,
		Events:      sinks,
		Metrics:     engine.DefaultMetrics(),
		StepTimeout: cfg.StepTimeout(),
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) store(ctx context.Context, cfg config.Config) (store.Repository, error) {
	if cfg.DatabaseURL == "" {
		zLog.Info().Msg("DATABASE_URL is not set, tasks are kept in memory")
		return memory.New(), nil
	}
	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, 30*time.Second)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)

	repo := postgres.New(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, nil
}

// close runs closers in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func drain(conn *nats.Conn) {
	if err := conn.Drain(); err != nil {
		zLog.Warn().Err(err).Msg("failed to drain NATS connection")
	}
}
