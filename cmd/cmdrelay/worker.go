package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/msageha/cmdrelay/internal/worker"
)

var workerOnce bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Execute pending commands and write their results back",
	Long: `Execute pending commands with the argv configured under worker.commands
and record success or failed with the command output. Only one worker may
run per data directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		w := worker.New(e.store, worker.NewCommandExecutor(e.cfg.Worker),
			worker.WithSources(e.cfg.Worker.Sources...),
			worker.WithInterval(e.cfg.Worker.Interval()),
			worker.WithLogger(e.logger),
		)

		if workerOnce {
			n, err := w.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d\n", n)
			return nil
		}
		return w.Run(ctx)
	},
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "Process pending records once and exit")
	rootCmd.AddCommand(workerCmd)
}
