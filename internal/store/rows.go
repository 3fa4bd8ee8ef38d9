package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
)

// row is one CSV record and the byte range it occupies in the file.
type row struct {
	line   int
	start  int64
	end    int64
	fields []string
}

// eachRow calls fn for every record in data in file order until fn returns
// false. A record that fails to parse is passed to bad and reading resumes on
// the physical line after the one it started on, so an unterminated quote
// costs one line instead of the rest of the file.
func eachRow(data []byte, fn func(row) bool, bad func(RowParseError)) {
	base, lineBase := 0, 1
	for base < len(data) {
		cr := newCSVReader(bytes.NewReader(data[base:]))
		resume := len(data)
		for {
			off := cr.InputOffset()
			fields, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				var pe *csv.ParseError
				if !errors.As(err, &pe) {
					// bytes.Reader only fails with EOF.
					return
				}
				bad(RowParseError{Line: lineBase + pe.StartLine - 1, Reason: pe.Err.Error()})
				resume = base + lineEnd(data[base:], pe.StartLine)
				lineBase += pe.StartLine
				break
			}
			line, _ := cr.FieldPos(0)
			r := row{
				line:   lineBase + line - 1,
				start:  int64(base) + off,
				end:    int64(base) + cr.InputOffset(),
				fields: fields,
			}
			if !fn(r) {
				return
			}
		}
		base = resume
	}
}

// lineEnd returns the offset just past the n-th newline in b, or len(b).
func lineEnd(b []byte, n int) int {
	pos := 0
	for i := 0; i < n; i++ {
		j := bytes.IndexByte(b[pos:], '\n')
		if j < 0 {
			return len(b)
		}
		pos += j + 1
	}
	return pos
}
