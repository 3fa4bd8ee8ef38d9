package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/msageha/cmdrelay/internal/setup"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the data directory, default config and an empty store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, err := resolveDataDir()
		if err != nil {
			return err
		}
		if err := setup.Run(dataDir, resolveConfigPath(dataDir)); err != nil {
			return fmt.Errorf("init: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", dataDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
