// Package transcript records the raw wire records of CLI runs as JSONL,
// optionally zstd-compressed.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/chemistrywow31/claudecode/internal/protocol"
)

// CompressedSuffix selects zstd compression when a path ends with it.
const CompressedSuffix = ".zst"

const maxRecordSize = 16 * 1024 * 1024

// Writer appends wire records to a transcript file, one compact JSON object
// per line. It is safe for concurrent use.
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	out     io.Writer
	encoder *zstd.Encoder
	closed  bool

	startTime   time.Time
	recordCount int64
	resultCount int64
	errorCount  int64
	costUSD     float64
}

// Create opens path for appending, creating it if needed. Paths ending in
// CompressedSuffix are written as a zstd stream; appending to an existing
// compressed transcript adds a new frame.
func Create(path string) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening transcript %q: %w", path, err)
	}

	w := &Writer{file: file, out: file, startTime: time.Now()}
	if strings.HasSuffix(path, CompressedSuffix) {
		encoder, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		w.encoder = encoder
		w.out = encoder
	}
	return w, nil
}

// Write appends one record. Whitespace inside the record is compacted so
// each record occupies exactly one line.
func (w *Writer) Write(raw json.RawMessage) error {
	var line bytes.Buffer
	if err := json.Compact(&line, raw); err != nil {
		return fmt.Errorf("compacting transcript record: %w", err)
	}
	line.WriteByte('\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("transcript is closed")
	}

	if _, err := w.out.Write(line.Bytes()); err != nil {
		return fmt.Errorf("writing transcript record: %w", err)
	}
	if w.encoder != nil {
		// Each record ends a zstd block.
		if err := w.encoder.Flush(); err != nil {
			return fmt.Errorf("flushing transcript: %w", err)
		}
	}

	w.recordCount++
	if rec, err := protocol.ParseRecord(raw); err == nil && rec.Type == protocol.RecordResult {
		w.resultCount++
		if rec.IsError {
			w.errorCount++
		}
		if rec.TotalCostUSD != nil {
			w.costUSD += *rec.TotalCostUSD
		}
	}
	return nil
}

// Close finishes the compressed stream, if any, and closes the file.
// Calling it more than once returns nil.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var encErr error
	if w.encoder != nil {
		encErr = w.encoder.Close()
	}
	return errors.Join(encErr, w.file.Close())
}

// Summary aggregates what a transcript has recorded so far.
type Summary struct {
	RecordCount int64         `json:"record_count"`
	ResultCount int64         `json:"result_count"`
	ErrorCount  int64         `json:"error_count"`
	CostUSD     float64       `json:"cost_usd"`
	Duration    time.Duration `json:"duration"`
}

// Summary returns the counters of records written through w.
func (w *Writer) Summary() Summary {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Summary{
		RecordCount: w.recordCount,
		ResultCount: w.resultCount,
		ErrorCount:  w.errorCount,
		CostUSD:     w.costUSD,
		Duration:    time.Since(w.startTime),
	}
}

// Read calls fn for every record in the transcript at path, in order.
func Read(path string, fn func(json.RawMessage) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening transcript %q: %w", path, err)
	}
	defer file.Close()

	var in io.Reader = file
	if strings.HasSuffix(path, CompressedSuffix) {
		decoder, err := zstd.NewReader(file)
		if err != nil {
			return fmt.Errorf("creating zstd decoder: %w", err)
		}
		defer decoder.Close()
		in = decoder
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		record := make(json.RawMessage, len(line))
		copy(record, line)
		if err := fn(record); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading transcript %q: %w", path, err)
	}
	return nil
}
