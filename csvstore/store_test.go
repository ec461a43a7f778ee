package csvstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pithecus-labs/creditrunner/types"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "input.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp csv: %v", err)
	}
	return path
}

func TestOpen_AddsStatusColumn(t *testing.T) {
	path := writeTempCSV(t, "Email,Name\na@example.com,Alice\nb@example.com,Bob\n")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if !s.Header().HasColumn(types.StatusColumn) {
		t.Fatal("expected Status column to be added")
	}
	if s.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", s.Len())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "Status") {
		t.Error("expected rewritten file to contain Status header")
	}
}

func TestOpen_StripsBOM(t *testing.T) {
	content := "\xef\xbb\xbfEmail,Status\na@example.com,\n"
	path := writeTempCSV(t, content)

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if got := s.Header().Columns()[0]; got != "Email" {
		t.Errorf("expected first column Email, got %q", got)
	}
}

func TestOpen_PadsRaggedRows(t *testing.T) {
	path := writeTempCSV(t, "A,B,C\n1,2\n")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	row := s.Rows()[0]
	if row.Get("C") != "" {
		t.Errorf("expected padded empty cell, got %q", row.Get("C"))
	}
}

func TestOpen_TooManyCellsErrors(t *testing.T) {
	path := writeTempCSV(t, "A,B\n1,2,3\n")

	_, err := Open(path)
	if err == nil {
		t.Fatal("expected CsvError for ragged row with extra cells")
	}
}

func TestCheckpoint_MarksRowDoneAtomically(t *testing.T) {
	path := writeTempCSV(t, "Email,Status\na@example.com,\nb@example.com,\n")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	s.Rows()[0].MarkDone()
	if err := s.Checkpoint(); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	if !s2.Rows()[0].IsDone() {
		t.Error("expected row 0 Status=done to survive checkpoint")
	}
	if s2.Rows()[1].IsDone() {
		t.Error("expected row 1 untouched")
	}
}

func TestOutputWriter_FormulaGuard(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "output.csv")

	w := NewOutputWriter(path)
	row := types.NewOutputRow([]string{"name", "note"})
	row.Set("name", "Alice")
	row.Set("note", "=cmd|' /C calc'!A0")
	if err := w.WriteRow(row); err != nil {
		t.Fatalf("write row: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"="`) {
		t.Errorf("expected quoted formula-guarded cell, got %q", out)
	}
	if strings.Contains(out, "=cmd|") {
		t.Error("raw formula payload must not appear unguarded")
	}
}

func TestOutputWriter_HeaderOnlyOnFirstWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "output.csv")

	w := NewOutputWriter(path)
	row := types.NewOutputRow([]string{"a"})
	row.Set("a", "1")
	if err := w.WriteRow(row); err != nil {
		t.Fatalf("write 1: %v", err)
	}
	if err := w.WriteRow(row); err != nil {
		t.Fatalf("write 2: %v", err)
	}
	w.Close()

	data, _ := os.ReadFile(path)
	if strings.Count(string(data), "a\r\n") != 1 {
		t.Errorf("expected exactly one header line, got: %q", string(data))
	}
}
