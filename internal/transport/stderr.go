package transport

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

const stderrScannerBufSize = 1024 * 1024 // 1 MB

// lineRing keeps the most recent lines within a line and byte budget.
type lineRing struct {
	buf      []string
	start    int
	count    int
	size     int
	maxBytes int
	dropped  int
}

func newLineRing(maxLines, maxBytes int) *lineRing {
	return &lineRing{
		buf:      make([]string, maxLines),
		maxBytes: maxBytes,
	}
}

func (r *lineRing) push(line string) {
	if len(line) > r.maxBytes {
		line = line[:r.maxBytes]
	}
	if r.count == len(r.buf) {
		r.evict()
	}
	r.buf[(r.start+r.count)%len(r.buf)] = line
	r.count++
	r.size += len(line)
	for r.size > r.maxBytes && r.count > 1 {
		r.evict()
	}
}

func (r *lineRing) evict() {
	r.size -= len(r.buf[r.start])
	r.buf[r.start] = ""
	r.start = (r.start + 1) % len(r.buf)
	r.count--
	r.dropped++
}

// lines returns the retained lines in arrival order.
func (r *lineRing) lines() []string {
	out := make([]string, r.count)
	for i := range out {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// stderrCollector drains a child's stderr into a lineRing.
type stderrCollector struct {
	mu     sync.Mutex
	ring   *lineRing
	done   chan struct{}
	logger *slog.Logger
}

func newStderrCollector(maxLines, maxBytes int, logger *slog.Logger) *stderrCollector {
	return &stderrCollector{
		ring:   newLineRing(maxLines, maxBytes),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// drain reads r until EOF or a read error and then closes done.
func (c *stderrCollector) drain(r io.Reader) {
	defer close(c.done)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), stderrScannerBufSize)
	for scanner.Scan() {
		line := scanner.Text()
		c.logger.Debug("cli stderr", "line", line)
		c.mu.Lock()
		c.ring.push(line)
		c.mu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		c.logger.Debug("stderr scanner stopped", "error", err)
		// Keep the pipe drained so the child never blocks on a full buffer.
		_, _ = io.Copy(io.Discard, r)
	}
}

// String returns the retained output, prefixed with a marker when older
// lines were dropped.
func (c *stderrCollector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	text := strings.Join(c.ring.lines(), "\n")
	if c.ring.dropped > 0 {
		return fmt.Sprintf("[%d earlier lines truncated]\n%s", c.ring.dropped, text)
	}
	return text
}

// Truncated reports whether any line was dropped.
func (c *stderrCollector) Truncated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ring.dropped > 0
}
