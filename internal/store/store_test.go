package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/cmdrelay/internal/model"
)

const headerLine = "timestamp,source,command_name,command_payload,status,result_payload\n"

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "shared", "commands.csv"), opts...)
}

func pendingRecord(ts, name, payload string) model.Record {
	return model.Record{
		Timestamp:      ts,
		Source:         "ui",
		CommandName:    name,
		CommandPayload: payload,
		Status:         model.StatusPending,
	}
}

func writeStore(t *testing.T, s *Store, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0644))
}

func TestAppend_CreatesHeaderAndRow(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Append(pendingRecord("t1", "build", "")))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, headerLine+"t1,ui,build,,pending,\n", string(data))
}

func TestAppend_OneRowPerCall(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(pendingRecord(fmt.Sprintf("t%d", i), "build", "")))
		res, err := s.Scan()
		require.NoError(t, err)
		assert.Len(t, res.Records, i+1)
		assert.Empty(t, res.Skipped)
	}
}

func TestAppend_RepairsMissingTrailingNewline(t *testing.T) {
	s := newTestStore(t)
	writeStore(t, s, headerLine+"t1,ui,build,,pending,")

	require.NoError(t, s.Append(pendingRecord("t2", "test", "")))

	res, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "t1", res.Records[0].Timestamp)
	assert.Equal(t, "t2", res.Records[1].Timestamp)
}

func TestAppend_EscapesSeparators(t *testing.T) {
	s := newTestStore(t)
	rec := pendingRecord("t1", "echo", "a,b \"quoted\"\nsecond line")

	require.NoError(t, s.Append(rec))

	res, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, rec, res.Records[0])
}

func TestAppend_UnwritableDir(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0500))
	t.Cleanup(func() { os.Chmod(dir, 0755) })

	s := New(filepath.Join(dir, "commands.csv"))
	assert.Error(t, s.Append(pendingRecord("t1", "build", "")))
}

func TestScan_MissingStore(t *testing.T) {
	s := newTestStore(t)

	res, err := s.Scan()
	assert.ErrorIs(t, err, ErrStoreMissing)
	assert.Empty(t, res.Records)
}

func TestScan_SkipsMalformedRows(t *testing.T) {
	s := newTestStore(t)
	writeStore(t, s, headerLine+
		"t1,ui,build,,pending,\n"+
		"t2,ui,only,four\n"+
		"t3,ui,x,,weird,\n"+
		"t4,ui,bad\"quote,,pending,\n"+
		"t5,ui,deploy,staging,success,ok\n"+
		"t6,ui,a,b,failed,boom,extra\n"+
		",ui,a,b,failed,boom\n"+
		"t7,other,lint,,failed,exit 1\n")

	res, err := s.Scan()
	require.NoError(t, err)

	var stamps []string
	for _, r := range res.Records {
		stamps = append(stamps, r.Timestamp)
	}
	assert.Equal(t, []string{"t1", "t5", "t7"}, stamps)

	var lines []int
	for _, sk := range res.Skipped {
		lines = append(lines, sk.Line)
	}
	assert.Equal(t, []int{3, 4, 5, 7, 8}, lines)
	assert.Contains(t, res.Skipped[0].Reason, "expected 6 fields, got 4")
	assert.Contains(t, res.Skipped[1].Reason, "unknown status")
}

func TestScan_UnterminatedQuoteSkipsOneLine(t *testing.T) {
	s := newTestStore(t)
	writeStore(t, s, headerLine+
		"t1,ui,build,,success,ok\n"+
		"t2,legacy,\"oops,,pending,\n"+
		"t3,ui,test,,pending,\n"+
		"t4,ui,lint,,failed,exit 1\n")

	res, err := s.Scan()
	require.NoError(t, err)

	var stamps []string
	for _, r := range res.Records {
		stamps = append(stamps, r.Timestamp)
	}
	assert.Equal(t, []string{"t1", "t3", "t4"}, stamps)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, 3, res.Skipped[0].Line)

	require.NoError(t, s.Append(pendingRecord("t5", "deploy", "prod")))
	_, err = s.Update("t3", model.StatusSuccess, "passed")
	require.NoError(t, err)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, headerLine+
		"t1,ui,build,,success,ok\n"+
		"t2,legacy,\"oops,,pending,\n"+
		"t3,ui,test,,success,passed\n"+
		"t4,ui,lint,,failed,exit 1\n"+
		"t5,ui,deploy,prod,pending,\n", string(data))

	res, err = s.Scan()
	require.NoError(t, err)
	require.Len(t, res.Records, 4)
	assert.Equal(t, "t5", res.Records[3].Timestamp)
}

func TestLineEnd(t *testing.T) {
	b := []byte("a\nbb\nccc")
	assert.Equal(t, 0, lineEnd(b, 0))
	assert.Equal(t, 2, lineEnd(b, 1))
	assert.Equal(t, 5, lineEnd(b, 2))
	assert.Equal(t, len(b), lineEnd(b, 3))
}

func TestScan_MissingHeaderStillReadsRows(t *testing.T) {
	s := newTestStore(t)
	writeStore(t, s, "t1,ui,build,,success,ok\n")

	res, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "header row missing", res.Skipped[0].Reason)
}

func TestScan_EmptyFile(t *testing.T) {
	s := newTestStore(t)
	writeStore(t, s, "")

	res, err := s.Scan()
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Empty(t, res.Skipped)
}

func TestInit_CreatesHeaderOnly(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Init())
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, headerLine, string(data))

	require.NoError(t, s.Append(pendingRecord("t1", "build", "")))
	require.NoError(t, s.Init())
	res, err := s.Scan()
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
}

func TestInit_RejectsForeignHeader(t *testing.T) {
	s := newTestStore(t)
	writeStore(t, s, "id,name\n1,x\n")

	assert.Error(t, s.Init())
}

func TestUpdate_SetsTerminalStatus(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(pendingRecord("t1", "build", "")))
	require.NoError(t, s.Append(pendingRecord("t2", "deploy", "staging")))

	rec, err := s.Update("t2", model.StatusSuccess, "deployed, 3 hosts")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, rec.Status)

	res, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, model.StatusPending, res.Records[0].Status)
	assert.Equal(t, model.Record{
		Timestamp:      "t2",
		Source:         "ui",
		CommandName:    "deploy",
		CommandPayload: "staging",
		Status:         model.StatusSuccess,
		ResultPayload:  "deployed, 3 hosts",
	}, res.Records[1])
}

func TestUpdate_PreservesOtherBytes(t *testing.T) {
	s := newTestStore(t)
	original := headerLine +
		"t1,ui,build,,pending,\n" +
		"garbage row without shape\n" +
		"t2,other,x,\"a,b\",pending,\n"
	writeStore(t, s, original)

	_, err := s.Update("t1", model.StatusFailed, "exit 2")
	require.NoError(t, err)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	want := strings.Replace(original, "t1,ui,build,,pending,\n", "t1,ui,build,,failed,exit 2\n", 1)
	assert.Equal(t, want, string(data))
}

func TestUpdate_RejectsSecondTransition(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(pendingRecord("t1", "build", "")))

	_, err := s.Update("t1", model.StatusSuccess, "ok")
	require.NoError(t, err)

	_, err = s.Update("t1", model.StatusFailed, "late")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	_, err = s.Update("t1", model.StatusPending, "")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
}

func TestUpdate_NotFoundAndMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Update("t1", model.StatusSuccess, "")
	assert.ErrorIs(t, err, ErrStoreMissing)

	require.NoError(t, s.Append(pendingRecord("t1", "build", "")))
	_, err = s.Update("nope", model.StatusSuccess, "")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestUpdate_BackupAndMode(t *testing.T) {
	s := newTestStore(t, WithBackup(true))
	require.NoError(t, s.Append(pendingRecord("t1", "build", "")))
	require.NoError(t, os.Chmod(s.Path(), 0640))
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	_, err = s.Update("t1", model.StatusSuccess, "ok")
	require.NoError(t, err)

	bak, err := os.ReadFile(s.Path() + ".bak")
	require.NoError(t, err)
	assert.Equal(t, string(before), string(bak))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0640), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".cmdrelay-tmp-"), "temp file left behind: %s", e.Name())
	}
}

func TestUpdate_DuplicateTimestampPrefersPending(t *testing.T) {
	s := newTestStore(t)
	writeStore(t, s, headerLine+
		"t1,ui,build,,success,first\n"+
		"t1,ui,build,,pending,\n")

	_, err := s.Update("t1", model.StatusFailed, "second")
	require.NoError(t, err)

	res, err := s.Scan()
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "first", res.Records[0].ResultPayload)
	assert.Equal(t, model.StatusFailed, res.Records[1].Status)
}

func TestConcurrentAppendAndUpdate_NoLostRows(t *testing.T) {
	s := newTestStore(t)
	const seeded, appended = 20, 50
	for i := 0; i < seeded; i++ {
		require.NoError(t, s.Append(pendingRecord(fmt.Sprintf("seed-%02d", i), "build", "")))
	}

	var wg sync.WaitGroup
	errs := make(chan error, seeded+appended)
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < appended; i++ {
			if err := s.Append(pendingRecord(fmt.Sprintf("new-%02d", i), "test", "")); err != nil {
				errs <- err
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < seeded; i++ {
			if _, err := s.Update(fmt.Sprintf("seed-%02d", i), model.StatusSuccess, "ok"); err != nil {
				errs <- err
			}
		}
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent operation failed: %v", err)
	}

	res, err := s.Scan()
	require.NoError(t, err)
	assert.Empty(t, res.Skipped)
	require.Len(t, res.Records, seeded+appended)

	success := 0
	for _, r := range res.Records {
		if r.Status == model.StatusSuccess {
			success++
		}
	}
	assert.Equal(t, seeded, success)
}

func TestReadError_Unwrap(t *testing.T) {
	inner := errors.New("disk on fire")
	err := error(&ReadError{Path: "x", Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "disk on fire")
}
