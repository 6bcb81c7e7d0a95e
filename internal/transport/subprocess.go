package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chemistrywow31/claudecode/internal/protocol"
)

// State is the lifecycle state of a transport.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateExited  State = "exited"
	StateClosed  State = "closed"
)

// ErrAlreadyReceiving is returned by a second ReceiveMessages call on the
// same connection.
var ErrAlreadyReceiving = errors.New("transport: messages are already being received")

// process is one running CLI child. The transport owns both read ends; the
// reaper goroutine is the only caller of cmd.Wait.
type process struct {
	cmd       *exec.Cmd
	stdout    *os.File
	stderr    *os.File
	collector *stderrCollector

	exited  chan struct{}
	waitErr error // valid once exited is closed

	receiving atomic.Bool
	stopOnce  sync.Once
}

// start spawns the CLI with args.
func start(cfg Config, args []string, logger *slog.Logger) (*process, error) {
	path, err := Locate(cfg.CLIPath)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, args...)
	cmd.Dir = cfg.Dir
	cmd.Env = BuildEnv(nil, cfg.Env, cfg.Version)
	setProcessGroup(cmd)

	var files []*os.File
	pipe := func() (*os.File, *os.File, error) {
		r, w, err := os.Pipe()
		if err == nil {
			files = append(files, r, w)
		}
		return r, w, err
	}
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}

	stdinR, stdinW, err := pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutR, stdoutW, err := pipe()
	if err != nil {
		closeFiles()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := pipe()
	if err != nil {
		closeFiles()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	logger.Debug("starting cli", "command", describe(path, args), "dir", cfg.Dir)
	if err := cmd.Start(); err != nil {
		closeFiles()
		if cfg.Dir != "" {
			if _, statErr := os.Stat(cfg.Dir); statErr != nil {
				err = fmt.Errorf("working directory %s: %w", cfg.Dir, statErr)
			}
		}
		return nil, NewCLINotFoundError(path, err)
	}

	// The child holds its own copies. Closing stdin right away tells the
	// CLI no further input follows.
	stdinR.Close()
	stdinW.Close()
	stdoutW.Close()
	stderrW.Close()

	lines, bytes := cfg.stderrLimits()
	p := &process{
		cmd:       cmd,
		stdout:    stdoutR,
		stderr:    stderrR,
		collector: newStderrCollector(lines, bytes, logger),
		exited:    make(chan struct{}),
	}
	go p.collector.drain(stderrR)
	go p.reap()
	return p, nil
}

func (p *process) reap() {
	p.waitErr = p.cmd.Wait()
	close(p.exited)
}

func (p *process) hasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// stop closes the read ends and makes sure the child is gone: SIGTERM,
// then SIGKILL after grace unless force is false.
func (p *process) stop(grace time.Duration, force bool, logger *slog.Logger) {
	p.stdout.Close()

	if !p.hasExited() {
		if err := terminate(p.cmd.Process); err != nil {
			logger.Debug("terminate cli", "pid", p.cmd.Process.Pid, "error", err)
		}
		timer := time.NewTimer(grace)
		select {
		case <-p.exited:
		case <-timer.C:
			if force {
				logger.Warn("cli ignored SIGTERM, killing", "pid", p.cmd.Process.Pid, "grace", grace)
				if err := forceKill(p.cmd.Process); err != nil {
					logger.Debug("kill cli", "pid", p.cmd.Process.Pid, "error", err)
				}
				<-p.exited
			} else {
				logger.Warn("cli still running after grace period", "pid", p.cmd.Process.Pid, "grace", grace)
			}
		}
		timer.Stop()
	}

	p.stderr.Close()
}

// waitExit blocks until the child exits and converts a non-zero status into
// a ProcessError carrying the captured stderr.
func (p *process) waitExit(ctx context.Context, logger *slog.Logger) error {
	select {
	case <-p.exited:
	case <-ctx.Done():
		return ctx.Err()
	}

	code := exitCode(p.waitErr)
	if code == 0 {
		return nil
	}

	timer := time.NewTimer(defaultStderrTimeout)
	defer timer.Stop()
	select {
	case <-p.collector.done:
	case <-timer.C:
		logger.Warn("timed out collecting cli stderr")
	}
	return NewProcessError(code, p.collector.String())
}

// Subprocess streams the CLI's stream-json output.
type Subprocess struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	proc      *process
	teardowns int
}

var _ Transport = (*Subprocess)(nil)

// NewSubprocess creates a Subprocess. Nothing is spawned until Connect or
// ReceiveMessages.
func NewSubprocess(cfg Config) *Subprocess {
	return &Subprocess{cfg: cfg, logger: cfg.logger()}
}

// Connect spawns the CLI. It does nothing while a process is already held.
func (t *Subprocess) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.proc != nil {
		return nil
	}

	p, err := start(t.cfg, t.cfg.argv(), t.logger)
	if err != nil {
		return err
	}
	t.proc = p
	return nil
}

// ReceiveMessages connects if needed, then calls fn for every message in
// arrival order until the output ends. The process is always released
// before it returns.
func (t *Subprocess) ReceiveMessages(ctx context.Context, fn func(protocol.Message) error) error {
	if err := t.Connect(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	p := t.proc
	t.mu.Unlock()
	if p == nil {
		return ctx.Err()
	}
	if !p.receiving.CompareAndSwap(false, true) {
		return ErrAlreadyReceiving
	}
	defer t.release(p)

	stopWatch := context.AfterFunc(ctx, func() { t.release(p) })
	defer stopWatch()

	dec := protocol.NewDecoder(p.stdout, t.cfg.MaxBufferSize)
	mapper := protocol.Mapper{NewID: t.cfg.NewID}
	for {
		raw, err := dec.Next()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, io.EOF) {
				break
			}
			var decodeErr *protocol.CLIJSONDecodeError
			if errors.As(err, &decodeErr) {
				return err
			}
			if errors.Is(err, os.ErrClosed) {
				t.logger.Debug("cli stdout closed")
			} else {
				t.logger.Warn("reading cli stdout", "error", err)
			}
			break
		}

		if t.cfg.OnRecord != nil {
			t.cfg.OnRecord(raw)
		}
		rec, err := protocol.ParseRecord(raw)
		if err != nil {
			t.logger.Debug("skipping wire record", "error", err)
			continue
		}
		msg := mapper.Map(rec)
		if msg == nil {
			continue
		}
		if err := fn(msg); err != nil {
			return err
		}
	}

	return p.waitExit(ctx, t.logger)
}

// Disconnect closes the streams and terminates the process if it is still
// running. It is safe to call more than once.
func (t *Subprocess) Disconnect() error {
	t.mu.Lock()
	p := t.proc
	t.mu.Unlock()
	if p != nil {
		t.release(p)
	}
	return nil
}

// release tears p down exactly once. Concurrent callers block until the
// teardown has finished.
func (t *Subprocess) release(p *process) {
	p.stopOnce.Do(func() {
		t.mu.Lock()
		if t.proc == p {
			t.proc = nil
		}
		t.teardowns++
		t.mu.Unlock()

		p.stop(t.cfg.gracePeriod(), !t.cfg.DisableForceKill, t.logger)
	})
}

// Connected reports whether a process is held and has not exited.
func (t *Subprocess) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.proc != nil && !t.proc.hasExited()
}

// State reports the lifecycle state.
func (t *Subprocess) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.proc != nil && t.proc.hasExited():
		return StateExited
	case t.proc != nil:
		return StateRunning
	case t.teardowns > 0:
		return StateClosed
	default:
		return StateIdle
	}
}
