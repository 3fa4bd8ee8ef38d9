// Package result implements the consumer side of the exchange: it scans the
// store for records created by one source and reports each terminal status once.
package result

import (
	"go.uber.org/zap"

	"github.com/msageha/cmdrelay/internal/model"
	"github.com/msageha/cmdrelay/internal/store"
)

// ErrStoreMissing is returned by Poll when the store has not been created yet.
var ErrStoreMissing = store.ErrStoreMissing

// Scanner is the part of the store the reader needs.
type Scanner interface {
	Scan() (store.ScanResult, error)
}

// AckSet remembers timestamps whose terminal status was already reported.
// It only grows.
type AckSet map[string]struct{}

func (a AckSet) Has(ts string) bool {
	_, ok := a[ts]
	return ok
}

func (a AckSet) Add(ts string) {
	a[ts] = struct{}{}
}

// Collect returns notifications for records of source that are terminal and
// not yet in acked, in the order given, and adds them to acked.
func Collect(records []model.Record, source string, acked AckSet) []model.Notification {
	var out []model.Notification
	for _, rec := range records {
		if rec.Source != source || acked.Has(rec.Timestamp) {
			continue
		}
		if !model.IsTerminal(rec.Status) {
			continue
		}
		out = append(out, model.NotificationFor(rec))
		acked.Add(rec.Timestamp)
	}
	return out
}

// PollResult is the outcome of one scan.
type PollResult struct {
	Notifications []model.Notification
	Skipped       []store.RowParseError
	Scanned       int
}

// Reader owns the acknowledged set for one consumer. It is not safe for
// concurrent use; one polling loop drives it.
type Reader struct {
	store  Scanner
	source string
	acked  AckSet
	logger *zap.SugaredLogger
}

func NewReader(s Scanner, source string, logger *zap.SugaredLogger) *Reader {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Reader{
		store:  s,
		source: source,
		acked:  make(AckSet),
		logger: logger,
	}
}

func (r *Reader) Source() string {
	return r.source
}

// Acknowledged reports how many timestamps have been notified so far.
func (r *Reader) Acknowledged() int {
	return len(r.acked)
}

// Poll scans the store once. A missing store yields an empty result and
// ErrStoreMissing; other read failures are returned as *store.ReadError.
func (r *Reader) Poll() (PollResult, error) {
	res, err := r.store.Scan()
	if err != nil {
		return PollResult{}, err
	}

	for _, sk := range res.Skipped {
		r.logger.Debugw("row skipped", "line", sk.Line, "reason", sk.Reason)
	}

	return PollResult{
		Notifications: Collect(res.Records, r.source, r.acked),
		Skipped:       res.Skipped,
		Scanned:       len(res.Records),
	}, nil
}
