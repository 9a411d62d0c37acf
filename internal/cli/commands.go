package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/couchcryptid/brewery-data-etl/internal/adapter/http"
	"github.com/couchcryptid/brewery-data-etl/internal/pipeline"
)

func newStageCmd(a *app, stage pipeline.Stage, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(stage),
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, cleanup, err := a.newPipeline()
			if err != nil {
				return err
			}
			defer cleanup()

			err = p.RunStage(cmd.Context(), stage, pipeline.NewRunID())
			a.pushMetrics(cmd.Context(), string(stage))
			return err
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run extract, transform, and aggregate in sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, cleanup, err := a.newPipeline()
			if err != nil {
				return err
			}
			defer cleanup()

			runID := pipeline.NewRunID()
			err = p.RunAll(cmd.Context(), runID)
			a.pushMetrics(cmd.Context(), "run")
			if err == nil {
				a.logger.Info("pipeline run succeeded", "run_id", runID)
			}
			return err
		},
	}
}

func newScheduleCmd(a *app) *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the pipeline on a cron schedule and serve health and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Settings are fixed for the process lifetime; reject gaps before the first tick.
			if err := a.cfg.ValidateAll(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			p, cleanup, err := a.newPipeline()
			if err != nil {
				return err
			}
			defer cleanup()

			sched := pipeline.NewScheduler(p, a.cfg, a.logger, a.metrics, nil)
			srv := httpadapter.NewServer(a.cfg.HTTPAddr, p, a.logger)

			g, ctx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})

			g.Go(func() error {
				return sched.Run(ctx)
			})

			if runNow {
				g.Go(func() error {
					if err := sched.RunOnce(ctx); err != nil && ctx.Err() == nil {
						a.logger.Error("initial run failed", "error", err)
					}
					return nil
				})
			}

			g.Go(func() error {
				<-ctx.Done()
				a.logger.Info("shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					a.logger.Error("http server shutdown error", "error", err)
				}
				return nil
			})

			err = g.Wait()
			a.logger.Info("shutdown complete")
			return err
		},
	}

	cmd.Flags().BoolVar(&runNow, "run-now", false, "Start one run immediately instead of waiting for the first tick")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		// Overrides the root hook: printing the version needs no configuration.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "etl version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
