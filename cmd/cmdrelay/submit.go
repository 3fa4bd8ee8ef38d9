package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/msageha/cmdrelay/internal/command"
)

var submitSource string

var submitCmd = &cobra.Command{
	Use:   "submit <name[:payload]>",
	Short: "Append one pending command to the store",
	Long: `Append one pending command to the store.

The input is split at the first ':' into command name and payload.
On failure the unsent input is printed so it can be retried.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		raw := strings.Join(args, " ")
		w := command.NewWriter(e.store, sourceOr(submitSource, e.cfg), command.WithLogger(e.logger))
		rec, err := w.Submit(raw)
		if err != nil {
			var we *command.WriteError
			if errors.As(err, &we) {
				fmt.Fprintf(cmd.ErrOrStderr(), "not sent: %s\n", we.Input)
			}
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rec.Timestamp)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitSource, "source", "", "Source tag (default: config source)")
	rootCmd.AddCommand(submitCmd)
}
