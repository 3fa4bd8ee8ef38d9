package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/msageha/cmdrelay/internal/notify"
	"github.com/msageha/cmdrelay/internal/poller"
	"github.com/msageha/cmdrelay/internal/result"
)

var watchSource string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll the store and print results for this source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d := newDriver(e, sourceOr(watchSource, e.cfg), newSink(e, cmd.OutOrStdout()))
		return d.Run(ctx)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchSource, "source", "", "Source tag to follow (default: config source)")
	rootCmd.AddCommand(watchCmd)
}

func newSink(e *env, out io.Writer) notify.Sink {
	sinks := notify.Multi{notify.NewWriter(out)}
	if e.cfg.Notify.Desktop {
		sinks = append(sinks, notify.NewDesktop(e.logger))
	}
	return sinks
}

func newDriver(e *env, source string, sink notify.Sink) *poller.Driver {
	r := result.NewReader(e.store, source, e.logger)
	opts := append(poller.FromConfig(e.cfg.Poller, e.store.Path()), poller.WithLogger(e.logger))
	return poller.New(r, sink, opts...)
}

// runUntilDone runs d until ctx ends and then polls once more.
func runUntilDone(ctx context.Context, d *poller.Driver) error {
	err := d.Run(ctx)
	d.PollOnce()
	return err
}
