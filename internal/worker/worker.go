// Package worker is a reference implementation of the external worker: it
// executes pending records and writes their terminal status back to the store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/cmdrelay/internal/lock"
	"github.com/msageha/cmdrelay/internal/model"
	"github.com/msageha/cmdrelay/internal/store"
)

// Store is the part of the record store the worker needs.
type Store interface {
	Path() string
	Scan() (store.ScanResult, error)
	Update(timestamp string, status model.Status, resultPayload string) (model.Record, error)
}

type Worker struct {
	store    Store
	exec     Executor
	sources  map[string]bool
	interval time.Duration
	logger   *zap.SugaredLogger
}

type Option func(*Worker)

// WithSources restricts the worker to records created by these sources.
func WithSources(sources ...string) Option {
	return func(w *Worker) {
		for _, s := range sources {
			w.sources[s] = true
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(w *Worker) { w.interval = d }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(w *Worker) { w.logger = logger }
}

func New(s Store, exec Executor, opts ...Option) *Worker {
	w := &Worker{
		store:    s,
		exec:     exec,
		sources:  make(map[string]bool),
		interval: time.Second,
		logger:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// LockPath is the single-instance guard next to the store.
func (w *Worker) LockPath() string {
	return filepath.Join(filepath.Dir(w.store.Path()), "worker.lock")
}

func (w *Worker) accepts(rec model.Record) bool {
	if rec.Status != model.StatusPending {
		return false
	}
	return len(w.sources) == 0 || w.sources[rec.Source]
}

// ProcessOnce executes every pending record currently in the store, oldest
// first, and returns how many were completed.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	res, err := w.store.Scan()
	if errors.Is(err, store.ErrStoreMissing) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	done := 0
	for _, rec := range res.Records {
		if !w.accepts(rec) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return done, err
		}

		started := time.Now()
		status, output := w.exec.Execute(ctx, rec)
		if ctx.Err() != nil {
			// Leave the record pending for the next run.
			return done, ctx.Err()
		}

		if _, err := w.store.Update(rec.Timestamp, status, output); err != nil {
			if errors.Is(err, model.ErrInvalidTransition) || errors.Is(err, store.ErrRecordNotFound) {
				w.logger.Warnw("record changed underneath worker", "timestamp", rec.Timestamp, "error", err)
				continue
			}
			return done, fmt.Errorf("update %s: %w", rec.Timestamp, err)
		}
		done++
		w.logger.Infow("command finished",
			"timestamp", rec.Timestamp,
			"command", rec.CommandName,
			"source", rec.Source,
			"status", status,
			"elapsed", time.Since(started).Round(time.Millisecond))
	}
	return done, nil
}

// Run holds the single-instance lock and processes pending records every
// interval until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	fl := lock.NewFileLock(w.LockPath())
	if err := fl.TryLock(); err != nil {
		return fmt.Errorf("worker lock: %w", err)
	}
	defer fl.Unlock()

	w.logger.Infow("worker started", "store", w.store.Path(), "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Errorw("worker pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			w.logger.Infow("worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce is a single locked pass.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	fl := lock.NewFileLock(w.LockPath())
	if err := fl.TryLock(); err != nil {
		return 0, fmt.Errorf("worker lock: %w", err)
	}
	defer fl.Unlock()
	return w.ProcessOnce(ctx)
}
