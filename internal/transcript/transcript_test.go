package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

var records = []string{
	`{"type":"system","subtype":"init"}`,
	"{\n  \"type\": \"assistant\",\n  \"message\": {\"id\": \"m1\"}\n}",
	`{"type":"result","subtype":"success","total_cost_usd":0.25}`,
}

func writeAll(t *testing.T, path string) *Writer {
	t.Helper()
	w, err := Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, rec := range records {
		if err := w.Write(json.RawMessage(rec)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return w
}

func readAll(t *testing.T, path string) []string {
	t.Helper()
	var got []string
	if err := Read(path, func(raw json.RawMessage) error {
		got = append(got, string(raw))
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	return got
}

func TestWriter_PlainRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl")
	w := writeAll(t, path)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got := readAll(t, path)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[1] != `{"type":"assistant","message":{"id":"m1"}}` {
		t.Errorf("expected compacted record, got %s", got[1])
	}
}

func TestWriter_CompressedRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.jsonl.zst")
	w := writeAll(t, path)
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// zstd frame magic number.
	if len(raw) < 4 || raw[0] != 0x28 || raw[1] != 0xB5 || raw[2] != 0x2F || raw[3] != 0xFD {
		t.Errorf("expected a zstd frame, got % x", raw[:min(len(raw), 4)])
	}

	got := readAll(t, path)
	if len(got) != 3 || got[0] != records[0] || got[2] != records[2] {
		t.Errorf("unexpected records %v", got)
	}
}

func TestWriter_AppendsAcrossRuns(t *testing.T) {
	for _, name := range []string{"runs.jsonl", "runs.jsonl.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			writeAll(t, path).Close()
			writeAll(t, path).Close()

			if got := readAll(t, path); len(got) != 6 {
				t.Errorf("expected 6 records after two runs, got %d", len(got))
			}
		})
	}
}

func TestWriter_Summary(t *testing.T) {
	w := writeAll(t, filepath.Join(t.TempDir(), "run.jsonl"))
	defer w.Close()
	w.Write(json.RawMessage(`{"type":"result","is_error":true,"total_cost_usd":0.5}`))

	s := w.Summary()
	if s.RecordCount != 4 || s.ResultCount != 2 || s.ErrorCount != 1 {
		t.Errorf("unexpected counters %+v", s)
	}
	if s.CostUSD != 0.75 {
		t.Errorf("expected cost 0.75, got %v", s.CostUSD)
	}
}

func TestWriter_RejectsInvalidAndClosed(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "run.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write(json.RawMessage(`{"type":`)); err == nil {
		t.Error("expected an error for invalid JSON")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := w.Write(json.RawMessage(`{"type":"user"}`)); err == nil {
		t.Error("expected an error writing to a closed transcript")
	}
}
