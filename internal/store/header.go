package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/msageha/cmdrelay/internal/model"
)

func isHeader(fields []string) bool {
	if len(fields) != len(model.Header) {
		return false
	}
	for i, name := range model.Header {
		if fields[i] != name {
			return false
		}
	}
	return true
}

func ValidateHeader(fields []string) error {
	if !isHeader(fields) {
		return fmt.Errorf("unexpected header %q (want %q)",
			strings.Join(fields, ","), strings.Join(model.Header, ","))
	}
	return nil
}

// ValidateHeaderFromBytes checks that content starts with the store header row.
func ValidateHeaderFromBytes(content []byte) error {
	r := newCSVReader(bytes.NewReader(content))
	fields, err := r.Read()
	if err == io.EOF {
		return fmt.Errorf("missing header")
	}
	if err != nil {
		return fmt.Errorf("parse header: %w", err)
	}
	return ValidateHeader(fields)
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return cr
}
