package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/msageha/cmdrelay/internal/command"
	"github.com/msageha/cmdrelay/internal/model"
	"github.com/msageha/cmdrelay/internal/notify"
)

var (
	consoleSource string
	consoleWait   time.Duration
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Submit commands from stdin and print their results",
	Long: `Read one command per line from stdin and submit it, while polling
the store for results in the background.

On EOF the console keeps polling until every command it submitted has a
result, or until --wait has passed. An interrupt stops it at once.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		defer e.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		source := sourceOr(consoleSource, e.cfg)
		w := command.NewWriter(e.store, source, command.WithLogger(e.logger))
		sess := newSession()
		d := newDriver(e, source, notify.Multi{newSink(e, cmd.OutOrStdout()), sess})

		return consoleLoop(ctx, cmd.InOrStdin(), cmd.ErrOrStderr(), w, sess, consoleWait, func(ctx context.Context) error {
			return runUntilDone(ctx, d)
		})
	},
}

func init() {
	consoleCmd.Flags().StringVar(&consoleSource, "source", "", "Source tag (default: config source)")
	consoleCmd.Flags().DurationVar(&consoleWait, "wait", 30*time.Second, "How long to wait for outstanding results after EOF (0: exit at once)")
	rootCmd.AddCommand(consoleCmd)
}

type submitter interface {
	Submit(raw string) (model.Record, error)
}

// session tracks the records one console submitted until their results have
// been delivered. A result can be delivered before submitted is called for
// it, so early deliveries are remembered.
type session struct {
	mu        sync.Mutex
	waiting   map[string]struct{}
	delivered map[string]struct{}
	closed    bool
	done      chan struct{}
	once      sync.Once
}

func newSession() *session {
	return &session{
		waiting:   make(map[string]struct{}),
		delivered: make(map[string]struct{}),
		done:      make(chan struct{}),
	}
}

func (s *session) submitted(ts string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.delivered[ts]; ok {
		delete(s.delivered, ts)
		return
	}
	s.waiting[ts] = struct{}{}
}

func (s *session) Deliver(n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.waiting[n.Timestamp]; ok {
		delete(s.waiting, n.Timestamp)
	} else {
		s.delivered[n.Timestamp] = struct{}{}
	}
	s.settleLocked()
}

func (s *session) inputClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.settleLocked()
}

func (s *session) settleLocked() {
	if s.closed && len(s.waiting) == 0 {
		s.once.Do(func() { close(s.done) })
	}
}

func (s *session) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiting)
}

// consoleLoop submits every non-blank input line and runs poll alongside it.
// After EOF it waits up to wait for the session's outstanding results.
func consoleLoop(ctx context.Context, in io.Reader, errOut io.Writer, sub submitter, sess *session, wait time.Duration, poll func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The scanner goroutine is not part of the group: a blocked read on
	// stdin cannot be interrupted.
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poll(gctx)
	})
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					sess.inputClosed()
					awaitResults(gctx, errOut, sess, wait)
					return nil
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				rec, err := sub.Submit(line)
				if err != nil {
					var we *command.WriteError
					if errors.As(err, &we) {
						fmt.Fprintf(errOut, "not sent: %s (%v)\n", we.Input, we.Err)
						continue
					}
					return err
				}
				sess.submitted(rec.Timestamp)
			}
		}
	})
	return g.Wait()
}

func awaitResults(ctx context.Context, errOut io.Writer, sess *session, wait time.Duration) {
	if wait <= 0 {
		return
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-sess.done:
	case <-ctx.Done():
	case <-timer.C:
		fmt.Fprintf(errOut, "gave up waiting for %d result(s) after %s\n", sess.pending(), wait)
	}
}
