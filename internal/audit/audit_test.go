package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSinkAppendIsNewlineDelimitedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log.jsonl")
	s := NewSink(path)

	if err := s.Append(Entry{Event: "task_started", TaskID: "t1"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := s.Append(Entry{Event: "task_completed", TaskID: "t1"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	var lines []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		lines = append(lines, e)
	}

	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Event != "task_started" || lines[1].Event != "task_completed" {
		t.Fatalf("entries out of order: %+v", lines)
	}
	if lines[0].Timestamp.IsZero() {
		t.Fatal("Append() did not stamp Timestamp")
	}
}

func TestPreviewTruncates(t *testing.T) {
	long := "this is a very long string that exceeds the preview limit by a wide margin"
	got := Preview(long, 10)
	if got != "this is a ..." {
		t.Fatalf("Preview() = %q", got)
	}

	short := "short"
	if got := Preview(short, 10); got != short {
		t.Fatalf("Preview() = %q, want unchanged %q", got, short)
	}
}
