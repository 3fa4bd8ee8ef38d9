// Package status summarises the record store for operators.
package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/msageha/cmdrelay/internal/model"
	"github.com/msageha/cmdrelay/internal/store"
)

type StoreStatus struct {
	Path    string         `json:"path"`
	Exists  bool           `json:"exists"`
	Total   int            `json:"total"`
	Pending int            `json:"pending"`
	Success int            `json:"success"`
	Failed  int            `json:"failed"`
	Skipped int            `json:"skipped_rows"`
	Sources []SourceStatus `json:"sources,omitempty"`
	Oldest  string         `json:"oldest_pending,omitempty"`
}

type SourceStatus struct {
	Source  string `json:"source"`
	Pending int    `json:"pending"`
	Success int    `json:"success"`
	Failed  int    `json:"failed"`
}

type Scanner interface {
	Path() string
	Scan() (store.ScanResult, error)
}

// Summarize counts records by status, overall and per source.
func Summarize(s Scanner) (StoreStatus, error) {
	st := StoreStatus{Path: s.Path()}
	res, err := s.Scan()
	if errors.Is(err, store.ErrStoreMissing) {
		return st, nil
	}
	if err != nil {
		return st, err
	}
	st.Exists = true
	st.Skipped = len(res.Skipped)

	bySource := make(map[string]*SourceStatus)
	for _, rec := range res.Records {
		src, ok := bySource[rec.Source]
		if !ok {
			src = &SourceStatus{Source: rec.Source}
			bySource[rec.Source] = src
		}
		st.Total++
		switch rec.Status {
		case model.StatusPending:
			st.Pending++
			src.Pending++
			if st.Oldest == "" {
				st.Oldest = rec.Timestamp
			}
		case model.StatusSuccess:
			st.Success++
			src.Success++
		case model.StatusFailed:
			st.Failed++
			src.Failed++
		}
	}

	for _, src := range bySource {
		st.Sources = append(st.Sources, *src)
	}
	sort.Slice(st.Sources, func(i, j int) bool {
		return st.Sources[i].Source < st.Sources[j].Source
	})
	return st, nil
}

// Run summarises the store and prints it as text or JSON.
func Run(s Scanner, w io.Writer, jsonOutput bool) error {
	st, err := Summarize(s)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(w, st)
	return nil
}

func printStatus(w io.Writer, st StoreStatus) {
	fmt.Fprintf(w, "Store: %s\n", st.Path)
	if !st.Exists {
		fmt.Fprintln(w, "  (not created yet)")
		return
	}
	fmt.Fprintf(w, "  total=%d pending=%d success=%d failed=%d skipped_rows=%d\n",
		st.Total, st.Pending, st.Success, st.Failed, st.Skipped)
	if st.Oldest != "" {
		fmt.Fprintf(w, "  oldest pending: %s\n", st.Oldest)
	}
	if len(st.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, src := range st.Sources {
			fmt.Fprintf(w, "  %-16s pending=%d success=%d failed=%d\n",
				src.Source, src.Pending, src.Success, src.Failed)
		}
	}
}
