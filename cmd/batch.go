package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var batchIDs []string

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run one evaluation cycle and exit",
	Long:  "Evaluates the given reports, or every report modified since the latest persisted result when no ids are passed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("batch"); err != nil {
			return err
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

		zap.L().Info("batch: starting one-off cycle", zap.Strings("ids", batchIDs))
		return env.Runner.Run(ctx, batchIDs)
	},
}

func init() {
	batchCmd.Flags().StringSliceVar(&batchIDs, "ids", nil, "report ids to evaluate (default: all changed)")
	rootCmd.AddCommand(batchCmd)
}
