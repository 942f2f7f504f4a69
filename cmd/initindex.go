package main

import (
	"github.com/spf13/cobra"
)

// The election index is cleared here, before the fleet rolls, rather
// than in serve: a replica clearing it at startup would wipe the leases
// of replicas already running.
var initCmd = &cobra.Command{
	Use:   "init-index",
	Short: "Create missing indices and reset the election index",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		env, err := initEnv(cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := initIndices(cmd.Context(), env.Store, cfg); err != nil {
			return err
		}
		return clearElection(cmd.Context(), env.Store, cfg)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
