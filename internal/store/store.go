// Package store implements the shared CSV record store.
//
// Producers only ever append. The worker changes a row's status by replacing
// the whole file through a temp file and rename. Both take an exclusive flock
// on a sidecar "<store>.lock" file so an append can never land in a file that
// is about to be replaced. Readers take no lock.
package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/msageha/cmdrelay/internal/atomicfile"
	"github.com/msageha/cmdrelay/internal/lock"
	"github.com/msageha/cmdrelay/internal/model"
)

type Store struct {
	path   string
	backup bool
}

type Option func(*Store)

// WithBackup keeps a copy of the previous file as "<store>.bak" on every Update.
func WithBackup(enabled bool) Option {
	return func(s *Store) { s.backup = enabled }
}

func New(path string, opts ...Option) *Store {
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) LockPath() string {
	return s.path + ".lock"
}

// ScanResult holds the well-formed records in file order and the rows skipped on the way.
type ScanResult struct {
	Records []model.Record
	Skipped []RowParseError
}

func (s *Store) acquire() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return nil, fmt.Errorf("ensure store dir: %w", err)
	}
	fl := lock.NewFileLock(s.LockPath())
	if err := fl.Lock(); err != nil {
		return nil, err
	}
	return func() { _ = fl.Unlock() }, nil
}

// Init creates the store with only a header row. An existing non-empty store
// is left untouched but its header is checked.
func (s *Store) Init() error {
	unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	data, err := os.ReadFile(s.path)
	if err == nil && len(data) > 0 {
		return ValidateHeaderFromBytes(data)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &ReadError{Path: s.path, Err: err}
	}

	content, err := encodeRows(model.Header)
	if err != nil {
		return err
	}
	return atomicfile.Write(s.path, content, atomicfile.WithValidate(ValidateHeaderFromBytes))
}

// Append adds one record as a single write. The header row is written first
// when the file is new or empty.
func (s *Store) Append(rec model.Record) error {
	unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat store: %w", err)
	}

	var rows [][]string
	var prefix []byte
	if info.Size() == 0 {
		rows = append(rows, model.Header)
	} else {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err != nil {
			f.Close()
			return fmt.Errorf("read store tail: %w", err)
		}
		if last[0] != '\n' {
			prefix = []byte{'\n'}
		}
	}
	rows = append(rows, rec.Fields())

	content, err := encodeRows(rows...)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(append(prefix, content...)); err != nil {
		f.Close()
		return fmt.Errorf("append record: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync store: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

// Scan reads every row currently on disk. Rows that do not have the record
// shape are reported in Skipped and never abort the scan.
func (s *Store) Scan() (ScanResult, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ScanResult{}, ErrStoreMissing
		}
		return ScanResult{}, &ReadError{Path: s.path, Err: err}
	}
	return scan(data), nil
}

func scan(data []byte) ScanResult {
	var res ScanResult
	first := true
	eachRow(data, func(r row) bool {
		if first {
			first = false
			if isHeader(r.fields) {
				return true
			}
			res.Skipped = append(res.Skipped, RowParseError{Line: r.line, Reason: "header row missing"})
		}
		rec, perr := ParseRow(r.line, r.fields)
		if perr != nil {
			res.Skipped = append(res.Skipped, *perr)
			return true
		}
		res.Records = append(res.Records, rec)
		return true
	}, func(pe RowParseError) {
		first = false
		res.Skipped = append(res.Skipped, pe)
	})
	return res
}

// ParseRow converts one CSV row into a record.
func ParseRow(line int, fields []string) (model.Record, *RowParseError) {
	if len(fields) != model.NumColumns {
		return model.Record{}, &RowParseError{
			Line:   line,
			Reason: fmt.Sprintf("expected %d fields, got %d", model.NumColumns, len(fields)),
		}
	}
	if fields[model.ColTimestamp] == "" {
		return model.Record{}, &RowParseError{Line: line, Reason: "empty timestamp"}
	}
	status, err := model.ParseStatus(fields[model.ColStatus])
	if err != nil {
		return model.Record{}, &RowParseError{Line: line, Reason: err.Error()}
	}
	return model.Record{
		Timestamp:      fields[model.ColTimestamp],
		Source:         fields[model.ColSource],
		CommandName:    fields[model.ColCommandName],
		CommandPayload: fields[model.ColCommandPayload],
		Status:         status,
		ResultPayload:  fields[model.ColResultPayload],
	}, nil
}

// Update moves the record identified by timestamp to a terminal status.
// Every other byte of the file is kept verbatim, malformed rows included.
func (s *Store) Update(timestamp string, status model.Status, resultPayload string) (model.Record, error) {
	unlock, err := s.acquire()
	if err != nil {
		return model.Record{}, err
	}
	defer unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.Record{}, ErrStoreMissing
		}
		return model.Record{}, &ReadError{Path: s.path, Err: err}
	}

	start, end, rec, err := locate(data, timestamp)
	if err != nil {
		return model.Record{}, err
	}
	if err := model.ValidateTransition(rec.Status, status); err != nil {
		return model.Record{}, fmt.Errorf("record %s: %w", timestamp, err)
	}

	rec.Status = status
	rec.ResultPayload = resultPayload
	row, err := encodeRows(rec.Fields())
	if err != nil {
		return model.Record{}, err
	}

	content := make([]byte, 0, len(data)+len(row))
	content = append(content, data[:start]...)
	content = append(content, row...)
	content = append(content, data[end:]...)

	err = atomicfile.Write(s.path, content,
		atomicfile.WithValidate(ValidateHeaderFromBytes),
		atomicfile.WithBackup(s.backup))
	if err != nil {
		return model.Record{}, err
	}
	return rec, nil
}

// locate returns the byte range of the row for timestamp. With duplicate
// timestamps the first pending row wins, otherwise the first match.
func locate(data []byte, timestamp string) (int64, int64, model.Record, error) {
	found := false
	var start, end int64
	var match model.Record
	eachRow(data, func(r row) bool {
		if len(r.fields) == 0 || r.fields[model.ColTimestamp] != timestamp {
			return true
		}
		rec, perr := ParseRow(r.line, r.fields)
		if perr != nil {
			return true
		}
		if !found || (match.Status != model.StatusPending && rec.Status == model.StatusPending) {
			found = true
			start, end, match = r.start, r.end, rec
		}
		return match.Status != model.StatusPending
	}, func(RowParseError) {})

	if !found {
		return 0, 0, model.Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, timestamp)
	}
	return start, end, match, nil
}

func encodeRows(rows ...[]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return buf.Bytes(), nil
}
