package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scienceon/tutor-batch/internal/scheduler"
	"github.com/scienceon/tutor-batch/internal/server"
	"github.com/scienceon/tutor-batch/internal/store"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and, when elected leader, the cron batch",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := initIndices(ctx, env.Store, cfg); err != nil {
			return err
		}

		runner, err := scheduler.NewCronRunner(cfg.Scheduler, env.Runner.Run)
		if err != nil {
			return err
		}

		// Every replica serves HTTP; only the election winner drives the
		// cron loop. With no cron configured there is nothing to lead, so
		// the replica skips the election and takes manual triggers only.
		if runner.Scheduled() {
			// The election uses its own store handle so followers can
			// release it once the outcome is known.
			electionStore, err := store.Open(cfg.Store)
			if err != nil {
				return err
			}
			if scheduler.NewElector(electionStore, cfg.Election).Elect(ctx) {
				go runner.Loop(ctx)
			} else {
				zap.L().Info("serve: running without scheduler, another process leads")
			}
			electionStore.Close()
		} else {
			zap.L().Info("serve: scheduling disabled, manual triggers only")
		}

		return server.New(env.Store, runner, cfg.Server).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
