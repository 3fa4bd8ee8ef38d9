package status

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/msageha/cmdrelay/internal/store"
)

func TestSummarize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.csv")
	content := "timestamp,source,command_name,command_payload,status,result_payload\n" +
		"t1,ui,build,,success,ok\n" +
		"t2,ui,test,,pending,\n" +
		"t3,batch,deploy,prod,failed,denied\n" +
		"t4,batch,deploy,staging,pending,\n" +
		"broken row\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	st, err := Summarize(store.New(path))
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !st.Exists || st.Total != 4 || st.Pending != 2 || st.Success != 1 || st.Failed != 1 || st.Skipped != 1 {
		t.Errorf("unexpected totals: %+v", st)
	}
	if st.Oldest != "t2" {
		t.Errorf("oldest pending: got %q, want %q", st.Oldest, "t2")
	}
	if len(st.Sources) != 2 || st.Sources[0].Source != "batch" || st.Sources[1].Source != "ui" {
		t.Fatalf("sources: %+v", st.Sources)
	}
	if st.Sources[0].Failed != 1 || st.Sources[0].Pending != 1 {
		t.Errorf("batch counts: %+v", st.Sources[0])
	}
}

func TestRun_MissingStore(t *testing.T) {
	var buf bytes.Buffer
	s := store.New(filepath.Join(t.TempDir(), "commands.csv"))

	if err := Run(s, &buf, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(buf.String(), "not created yet") {
		t.Errorf("output: %q", buf.String())
	}
}

func TestRun_JSON(t *testing.T) {
	dir := t.TempDir()
	s := store.New(filepath.Join(dir, "commands.csv"))
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Run(s, &buf, true); err != nil {
		t.Fatalf("Run: %v", err)
	}
	var st StoreStatus
	if err := json.Unmarshal(buf.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Exists || st.Total != 0 {
		t.Errorf("unexpected status: %+v", st)
	}
}
