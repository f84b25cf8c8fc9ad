package main

import (
	"context"
	"errors"
	"fmt"
	"go-autoagent/internal/agents/runner/actor"
	"go-autoagent/internal/agents/runner/handler"
	"go-autoagent/internal/api"
	"go-autoagent/internal/config"
	"go-autoagent/pkg/logger"
	"go-autoagent/pkg/models"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	protoactor "github.com/asynkron/protoactor-go/actor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zLog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var cfg config.Config

	root := &cobra.Command{
		Use:           "autoagent",
		Short:         "Drives objectives to completion one planned step at a time",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			if err := logger.NewGlobal(cfg.LogLevel, cfg.LogPretty); err != nil {
				log.Printf("failed to initialize logger: %v", err)
				return err
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cfg)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional yaml config file, environment variables take precedence")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cfg)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as yaml",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "run <objective>",
		Short: "Work one objective to completion in-process",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runObjective(cmd, cfg, strings.Join(args, " "))
		},
	})

	return root
}

func serve(cfg config.Config) error {
	zLog.Info().Msg("starting server")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	system := protoactor.NewActorSystem()
	root := system.Root
	server := api.New(api.Dependencies{
		Tasks:         a.engine,
		Root:          root,
		Runner:        actor.NewProducer(root, handler.New(a.engine, cfg.StepTimeout()+5*time.Minute), cfg.StepRate),
		Notifications: a.hub,
		Metrics:       promhttp.Handler(),
		MaxSteps:      cfg.MaxSteps,
		Addr:          cfg.Addr(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		zLog.Info().Msg("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	zLog.Info().Msg("server exiting")
	return err
}

var errBudgetExhausted = errors.New("step budget exhausted")

func runObjective(cmd *cobra.Command, cfg config.Config, objective string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	task, err := a.engine.CreateTask(ctx, objective)
	if err != nil {
		return err
	}
	zLog.Info().Str(logger.TaskIDField, task.ID).Str("workspace", task.Workspace).Msg("working on objective")

	for i := 0; cfg.MaxSteps == 0 || i < cfg.MaxSteps; i++ {
		res, err := a.engine.ExecuteNextStep(ctx, task.ID)
		if err != nil {
			return err
		}
		if res.Step != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s: %s\n", res.Step.Index, res.Step.Pack, summarize(*res.Step))
		}
		if res.Task.Status.Terminal() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", res.Task.Status, res.Task.Conclusion)
			if res.Task.Status == models.TaskFailed {
				return fmt.Errorf("task %s failed", task.ID)
			}
			return nil
		}
	}
	return fmt.Errorf("%w after %d steps", errBudgetExhausted, cfg.MaxSteps)
}

func summarize(step models.Step) string {
	text := step.Output
	if step.Status == models.StepFailed {
		text = fmt.Sprintf("failed (%s): %s", step.ErrorKind, step.Error)
	}
	text = strings.TrimSpace(text)
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
