// Package command implements the producer side of the exchange: it turns raw
// user input into pending records appended to the store.
package command

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/msageha/cmdrelay/internal/model"
)

// Separator splits a raw input into command name and payload.
const Separator = ":"

// Appender is the part of the store the writer needs.
type Appender interface {
	Append(rec model.Record) error
}

// WriteError is returned when a submission could not be appended. Input holds
// the raw text so the caller can offer it again.
type WriteError struct {
	Input string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("submit %q: %v", e.Input, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ParseInput splits on the first separator only. Without a separator the whole
// input is the command name and the payload is empty.
func ParseInput(raw string) (name, payload string) {
	name, payload, _ = strings.Cut(raw, Separator)
	return name, payload
}

type Writer struct {
	store  Appender
	source string
	now    func() time.Time
	logger *zap.SugaredLogger

	mu   sync.Mutex
	last time.Time
}

type Option func(*Writer)

func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(w *Writer) { w.logger = logger }
}

// NewWriter returns a writer tagging every record with source.
func NewWriter(store Appender, source string, opts ...Option) *Writer {
	w := &Writer{
		store:  store,
		source: source,
		now:    time.Now,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) Source() string {
	return w.source
}

// Submit appends one pending record for raw and returns it.
func (w *Writer) Submit(raw string) (model.Record, error) {
	name, payload := ParseInput(raw)
	rec := model.Record{
		Timestamp:      w.nextTimestamp(),
		Source:         w.source,
		CommandName:    name,
		CommandPayload: payload,
		Status:         model.StatusPending,
	}

	if err := w.store.Append(rec); err != nil {
		w.logger.Warnw("submit failed", "command", name, "error", err)
		return model.Record{}, &WriteError{Input: raw, Err: err}
	}
	w.logger.Infow("submitted", "timestamp", rec.Timestamp, "command", name, "source", w.source)
	return rec, nil
}

// nextTimestamp never repeats or goes backwards within one writer.
func (w *Writer) nextTimestamp() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts := w.now().UTC()
	if !ts.After(w.last) {
		ts = w.last.Add(time.Nanosecond)
	}
	w.last = ts
	return ts.Format(model.TimestampLayout)
}
