// Package poller drives the result reader on a fixed period for the lifetime
// of the host process and hands every notification to a sink.
package poller

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/msageha/cmdrelay/internal/model"
	"github.com/msageha/cmdrelay/internal/notify"
	"github.com/msageha/cmdrelay/internal/result"
)

type State int32

const (
	StateIdle State = iota
	StatePolling
)

func (s State) String() string {
	if s == StatePolling {
		return "polling"
	}
	return "idle"
}

// Poller is the part of the result reader the driver needs.
type Poller interface {
	Poll() (result.PollResult, error)
}

type Driver struct {
	reader Poller
	sink   notify.Sink
	logger *zap.SugaredLogger

	initialDelay time.Duration
	interval     time.Duration
	debounce     time.Duration
	watchPath    string

	state         atomic.Int32
	polls         atomic.Int64
	missingLogged bool
}

type Option func(*Driver)

func WithInitialDelay(d time.Duration) Option {
	return func(dr *Driver) { dr.initialDelay = d }
}

func WithInterval(d time.Duration) Option {
	return func(dr *Driver) { dr.interval = d }
}

// WithWatch also polls shortly after the store file at path changes on disk.
// The periodic schedule keeps running regardless.
func WithWatch(path string, debounce time.Duration) Option {
	return func(dr *Driver) {
		dr.watchPath = filepath.Clean(path)
		dr.debounce = debounce
	}
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(dr *Driver) { dr.logger = logger }
}

// FromConfig translates the poller section of the config into options.
func FromConfig(cfg model.PollerConfig, storePath string) []Option {
	opts := []Option{
		WithInitialDelay(cfg.InitialDelay()),
		WithInterval(cfg.Interval()),
	}
	if cfg.Watch {
		opts = append(opts, WithWatch(storePath, cfg.Debounce()))
	}
	return opts
}

func New(reader Poller, sink notify.Sink, opts ...Option) *Driver {
	d := &Driver{
		reader:       reader,
		sink:         sink,
		logger:       zap.NewNop().Sugar(),
		initialDelay: time.Second,
		interval:     time.Second,
		debounce:     200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.interval <= 0 {
		d.interval = time.Second
	}
	return d
}

func (d *Driver) State() State {
	return State(d.state.Load())
}

// Polls reports how many polls have completed.
func (d *Driver) Polls() int64 {
	return d.polls.Load()
}

// Run polls after the initial delay and then every interval until ctx is
// done. A failed poll is logged and the schedule continues.
func (d *Driver) Run(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	if d.watchPath != "" {
		w, err := d.startWatcher()
		if err != nil {
			d.logger.Warnw("store watch disabled", "path", d.watchPath, "error", err)
		} else {
			defer w.Close()
			events, watchErrs = w.Events, w.Errors
		}
	}

	timer := time.NewTimer(d.initialDelay)
	defer timer.Stop()
	due := time.Now().Add(d.initialDelay)

	d.logger.Infow("polling driver started",
		"initial_delay", d.initialDelay, "interval", d.interval, "watch", events != nil)

	for {
		select {
		case <-ctx.Done():
			d.logger.Infow("polling driver stopped", "polls", d.Polls())
			return nil

		case <-timer.C:
			d.PollOnce()
			timer.Reset(d.interval)
			due = time.Now().Add(d.interval)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != d.watchPath || !storeChanged(ev) {
				continue
			}
			d.logger.Debugw("store changed", "op", ev.Op.String())
			// Pull the next poll forward without postponing one already close.
			if next := time.Now().Add(d.debounce); next.Before(due) {
				timer.Reset(d.debounce)
				due = next
			}

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			d.logger.Warnw("store watch error", "error", err)
		}
	}
}

// The directory is watched rather than the file: the worker replaces the
// file by rename, which would drop a watch on the file itself.
func (d *Driver) startWatcher() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(d.watchPath)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(d.watchPath), err)
	}
	return w, nil
}

func storeChanged(ev fsnotify.Event) bool {
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

// PollOnce runs one poll and delivers its notifications in file order.
// It returns the number delivered.
func (d *Driver) PollOnce() int {
	d.state.Store(int32(StatePolling))
	defer d.state.Store(int32(StateIdle))
	defer d.polls.Add(1)

	res, err := d.reader.Poll()
	switch {
	case errors.Is(err, result.ErrStoreMissing):
		if !d.missingLogged {
			d.logger.Infow("record store missing, waiting for first submission")
			d.missingLogged = true
		}
		return 0
	case err != nil:
		d.logger.Errorw("poll failed", "error", err)
		return 0
	}
	d.missingLogged = false

	if len(res.Skipped) > 0 {
		d.logger.Debugw("malformed rows skipped", "count", len(res.Skipped))
	}

	for _, n := range res.Notifications {
		d.deliver(n)
	}
	if len(res.Notifications) > 0 {
		d.logger.Infow("poll", "scanned", res.Scanned, "notifications", len(res.Notifications))
	}
	return len(res.Notifications)
}

func (d *Driver) deliver(n model.Notification) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Errorw("notification sink panicked", "timestamp", n.Timestamp, "panic", r)
		}
	}()
	d.sink.Deliver(n)
}
