// Command chatctl runs maintenance jobs against the chat database: the
// retention sweep, role seeding and the background summary worker.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"BranchChat/pkg/app"
	"BranchChat/pkg/config"
	"BranchChat/pkg/logger"
	"BranchChat/pkg/queue"
	svc "BranchChat/pkg/services"
	"BranchChat/pkg/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chatctl",
		Short:         "Maintenance commands for the branching chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(sweepCmd(), seedRolesCmd(), workerCmd())
	return root
}

func boot() (*app.App, error) {
	if err := config.Load(); err != nil {
		return nil, err
	}
	log, err := logger.New(config.AppEnv)
	if err != nil {
		return nil, err
	}
	return app.New(log)
}

func sweepCmd() *cobra.Command {
	var (
		at            string
		retentionDays int
	)
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Hard-delete conversations soft-deleted longer than the retention window",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := boot()
			if err != nil {
				return err
			}
			defer a.Close()

			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("--now: %w", err)
				}
			}
			sweeper := a.Sweeper
			if retentionDays > 0 {
				sweeper = svc.NewRetentionSweeper(a.DB, a.Cache, time.Duration(retentionDays)*24*time.Hour, a.Log)
			}
			removed, err := sweeper.Sweep(cmd.Context(), now)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d conversations\n", removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "now", "", "reference time (RFC3339); defaults to the current time")
	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "override RETENTION_DAYS")
	return cmd
}

func seedRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-roles",
		Short: "Insert the default message roles if missing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := boot()
			if err != nil {
				return err
			}
			defer a.Close()
			if err := store.SeedRoles(a.DB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "roles seeded")
			return nil
		},
	}
}

func workerCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued summary recomputes and scheduled retention sweeps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := boot()
			if err != nil {
				return err
			}
			defer a.Close()
			if config.RedisURL == "" {
				return fmt.Errorf("worker needs REDIS_URL")
			}

			server, err := queue.NewAsynqServer(config.RedisURL, concurrency, a.Log)
			if err != nil {
				return err
			}
			server.Register(svc.SummaryTaskType, svc.SummaryTaskHandler(a.Trigger, a.Log))
			server.Register(svc.SweepTaskType, svc.SweepTaskHandler(a.Sweeper))

			scheduler, err := queue.NewScheduler(config.RedisURL)
			if err != nil {
				return err
			}
			spec := fmt.Sprintf("@every %dm", max(config.SweepIntervalMinutes, 1))
			if _, err := scheduler.Every(spec, svc.NewSweepTask(), queue.EnqueueOption{UniqueTTL: time.Minute}); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a.Log.Info("worker started", "concurrency", concurrency, "sweep", spec)

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return server.Run(ctx) })
			g.Go(func() error { return scheduler.Run(ctx) })
			return g.Wait()
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "number of concurrent task handlers")
	return cmd
}

