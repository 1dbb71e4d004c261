package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agenciageraleads/summi-worker/internal/api"
	"github.com/agenciageraleads/summi-worker/internal/biz/usecase"
	"github.com/agenciageraleads/summi-worker/internal/conf"
	"github.com/agenciageraleads/summi-worker/internal/data"
	"github.com/agenciageraleads/summi-worker/internal/data/migrations"
	"github.com/agenciageraleads/summi-worker/internal/mcp"
	"github.com/agenciageraleads/summi-worker/internal/service"
)

var version = "dev"

var (
	cfg    *conf.Config
	logger zerolog.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "summi",
		Short:         "Summi WhatsApp digest worker",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			cfg = conf.LoadFromEnv()
			logger = newLogger(cfg.Log)
			return nil
		},
	}

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newSchedulerCmd(),
		newRunHourlyCmd(),
		newAnalyzeCmd(),
		newMigrateCmd(),
		newMCPCmd(),
	)
	return root
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// bootstrap validates the config and wires the app
func bootstrap(ctx context.Context) (*app, error) {
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("Invalid config")
		return nil, err
	}
	return newApp(ctx, cfg, logger)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve webhooks and the HTTP API, with the hourly scheduler when enabled",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if cfg.Schedule.EnableHourlyJob {
				sched := a.scheduler()
				if err := sched.Start(ctx); err != nil {
					return err
				}
				defer sched.Stop()
			}

			srv := api.NewServer(cfg.HTTP.Addr, api.NewRouter(a.apiHandler(), cfg.HTTP.InternalToken, logger), logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(srv.Start)
			g.Go(func() error {
				<-gctx.Done()
				logger.Info().Msg("Shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return srv.Stop(shutdownCtx)
			})
			return g.Wait()
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "worker [analysis|summary]",
		Short:     "Consume one job queue",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(usecase.RoleAnalysis), string(usecase.RoleSummary)},
		RunE: func(cmd *cobra.Command, args []string) error {
			role := usecase.RoleAnalysis
			if len(args) == 1 {
				role = usecase.QueueRole(args[0])
			}

			ctx, stop := signalContext()
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.repos.Redis == nil {
				return errors.New("REDIS_URL is required for queue workers")
			}

			queueName := cfg.Queue.AnalysisName
			if role == usecase.RoleSummary {
				queueName = cfg.Queue.SummaryName
			}
			if backlog, err := a.repos.Redis.QueueLength(ctx, queueName); err == nil {
				logger.Info().Str("queue", queueName).Int64("backlog", backlog).Msg("Queue backlog")
			}

			return service.NewWorker(a.repos.Queue, queueName, role, a.uc.Dispatcher, logger).Run(ctx)
		},
	}
}

func newSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Fire the hourly digest tick on schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cfg.Schedule.EnableHourlyJob {
				logger.Info().Msg("ENABLE_HOURLY_JOB=false, exiting")
				return nil
			}

			ctx, stop := signalContext()
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := a.scheduler()
			if err := sched.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()
			sched.Stop()
			return nil
		},
	}
}

func newRunHourlyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-hourly",
		Short: "Run one digest tick now and print its report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.uc.Aggregation.RunTick(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <user-id>",
		Short: "Classify one subscriber's conversations now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := a.uc.Analysis.AnalyzeUser(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Apply or inspect the store schema",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.ValidateDatabase(); err != nil {
				return err
			}
			db, err := data.OpenDB(cfg.Database.Driver, cfg.Database.URL)
			if err != nil {
				return err
			}
			defer db.Close()

			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			switch action {
			case "down":
				err = migrations.Down(db, cfg.Database.Driver)
			case "status":
				err = migrations.Status(db, cfg.Database.Driver)
			default:
				err = migrations.Run(db, cfg.Database.Driver)
			}
			if err != nil {
				return err
			}
			logger.Info().Str("action", action).Str("driver", cfg.Database.Driver).Msg("Migrations done")
			return nil
		},
	}
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve operator tools over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			h := mcp.NewHandler(a.uc.Analysis, a.uc.Aggregation, a.repos.Queue, mcp.QueueNames{
				Analysis: cfg.Queue.AnalysisName,
				Summary:  cfg.Queue.SummaryName,
			}, logger)
			return mcp.NewServer(h, version).RunStdio(ctx)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
