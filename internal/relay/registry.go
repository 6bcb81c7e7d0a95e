package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chemistrywow31/claudecode"
)

const (
	defaultHistoryLimit     = 1000
	defaultSubscriberBufCap = 256
)

var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunActive   = errors.New("run is still running")
	ErrMaxRuns     = errors.New("maximum run limit reached")
)

// Querier runs one query. *claudecode.Client satisfies it.
type Querier interface {
	Query(ctx context.Context, prompt string, opts *claudecode.Options, fn func(claudecode.Message) error) error
}

// Registry runs queries in the background and fans their messages out to
// subscribers.
type Registry struct {
	querier Querier
	maxRuns int
	logger  *slog.Logger

	mu       sync.RWMutex
	runs     map[string]*managedRun
	defaults *claudecode.Options

	wg sync.WaitGroup
}

type managedRun struct {
	run       Run // guarded by Registry.mu
	cancel    context.CancelFunc
	cancelled bool // guarded by Registry.mu
	done      chan struct{}

	history     *history[RunEvent]
	subscribers map[string]chan RunEvent
	closed      bool
	subMu       sync.Mutex
}

// NewRegistry creates a registry that runs at most maxRuns queries at once.
func NewRegistry(querier Querier, maxRuns int, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		querier: querier,
		maxRuns: maxRuns,
		logger:  logger,
		runs:    make(map[string]*managedRun),
	}
}

// SetDefaults replaces the options used by runs started without options.
// nil clears them.
func (r *Registry) SetDefaults(opts *claudecode.Options) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if opts == nil {
		r.defaults = nil
		return
	}
	o := *opts
	r.defaults = &o
}

// Start launches prompt in the background and returns the new run.
func (r *Registry) Start(prompt string, opts *claudecode.Options) (Run, error) {
	if opts != nil {
		if err := opts.Validate(); err != nil {
			return Run{}, err
		}
	}

	r.mu.Lock()
	active := 0
	for _, mr := range r.runs {
		if !mr.run.Finished() {
			active++
		}
	}
	if active >= r.maxRuns {
		r.mu.Unlock()
		return Run{}, fmt.Errorf("%w (%d)", ErrMaxRuns, r.maxRuns)
	}
	if opts == nil && r.defaults != nil {
		o := *r.defaults
		opts = &o
	}

	ctx, cancel := context.WithCancel(context.Background())
	mr := &managedRun{
		run: Run{
			ID:        uuid.New().String(),
			Prompt:    prompt,
			State:     RunRunning,
			CreatedAt: time.Now().UTC(),
		},
		cancel:      cancel,
		done:        make(chan struct{}),
		history:     newHistory[RunEvent](defaultHistoryLimit),
		subscribers: make(map[string]chan RunEvent),
	}
	r.runs[mr.run.ID] = mr
	snapshot := mr.run
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Info("run started", "run", snapshot.ID)
	go r.execute(ctx, mr, opts)
	return snapshot, nil
}

func (r *Registry) execute(ctx context.Context, mr *managedRun, opts *claudecode.Options) {
	defer r.wg.Done()
	defer mr.cancel()

	var resultErr string
	err := r.querier.Query(ctx, mr.run.Prompt, opts, func(msg claudecode.Message) error {
		r.mu.Lock()
		mr.run.Messages++
		if result, ok := msg.(*claudecode.ResultMessage); ok {
			mr.run.SessionID = result.SessionID
			if cost, ok := result.CostUSD(); ok {
				mr.run.CostUSD = cost
			}
			if result.IsError {
				resultErr = result.Result
				if resultErr == "" {
					resultErr = result.Status
				}
			}
		}
		r.mu.Unlock()

		r.publish(mr, RunEvent{
			RunID:     mr.run.ID,
			Type:      EventMessage,
			Message:   msg,
			Timestamp: time.Now().UTC(),
		})
		return nil
	})

	r.finish(mr, err, resultErr)
}

// finish records the terminal state, publishes it and closes every
// subscriber channel.
func (r *Registry) finish(mr *managedRun, err error, resultErr string) {
	now := time.Now().UTC()

	r.mu.Lock()
	run := &mr.run
	switch {
	case mr.cancelled:
		run.State = RunCancelled
	case err != nil:
		run.State = RunFailed
		run.Error = err.Error()
		var procErr *claudecode.ProcessError
		if errors.As(err, &procErr) {
			code := procErr.ExitCode
			run.ExitCode = &code
		}
	case resultErr != "":
		run.State = RunFailed
		run.Error = resultErr
	default:
		run.State = RunCompleted
	}
	run.FinishedAt = &now
	snapshot := mr.run
	r.mu.Unlock()

	r.logger.Info("run finished", "run", snapshot.ID, "state", snapshot.State, "messages", snapshot.Messages)
	if snapshot.Error != "" {
		r.logger.Debug("run error", "run", snapshot.ID, "error", snapshot.Error)
	}

	r.publish(mr, RunEvent{
		RunID:     snapshot.ID,
		Type:      EventFinished,
		Run:       snapshot,
		Timestamp: now,
	})

	mr.subMu.Lock()
	for id, ch := range mr.subscribers {
		close(ch)
		delete(mr.subscribers, id)
	}
	mr.closed = true
	mr.subMu.Unlock()

	close(mr.done)
}

// publish stores an event in the history and sends it to all subscribers.
// Slow subscribers lose events rather than stall the run.
func (r *Registry) publish(mr *managedRun, event RunEvent) {
	mr.subMu.Lock()
	defer mr.subMu.Unlock()

	mr.history.append(event)
	for id, ch := range mr.subscribers {
		select {
		case ch <- event:
		default:
			r.logger.Warn("subscriber channel full, dropping event", "run", event.RunID, "subscriber", id)
		}
	}
}

func (r *Registry) lookup(id string) (*managedRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mr, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return mr, nil
}

// Get returns a snapshot of a run.
func (r *Registry) Get(id string) (Run, error) {
	mr, err := r.lookup(id)
	if err != nil {
		return Run{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return mr.run, nil
}

// List returns snapshots of all runs, oldest first.
func (r *Registry) List() []Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Run, 0, len(r.runs))
	for _, mr := range r.runs {
		result = append(result, mr.run)
	}
	sortRuns(result)
	return result
}

// Messages returns the buffered messages of a run in arrival order.
func (r *Registry) Messages(id string) ([]claudecode.Message, error) {
	mr, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	mr.subMu.Lock()
	events := mr.history.snapshot()
	mr.subMu.Unlock()

	msgs := make([]claudecode.Message, 0, len(events))
	for _, event := range events {
		if event.Type == EventMessage {
			msgs = append(msgs, event.Message)
		}
	}
	return msgs, nil
}

// Cancel stops a running query. Cancelling a finished run does nothing.
func (r *Registry) Cancel(id string) error {
	mr, err := r.lookup(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if mr.run.Finished() {
		r.mu.Unlock()
		return nil
	}
	mr.cancelled = true
	r.mu.Unlock()

	r.logger.Info("cancelling run", "run", id)
	mr.cancel()
	return nil
}

// Wait blocks until the run finishes or ctx is done.
func (r *Registry) Wait(ctx context.Context, id string) (Run, error) {
	mr, err := r.lookup(id)
	if err != nil {
		return Run{}, err
	}
	select {
	case <-mr.done:
	case <-ctx.Done():
		return Run{}, ctx.Err()
	}
	return r.Get(id)
}

// Remove forgets a finished run.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	mr, ok := r.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if !mr.run.Finished() {
		return fmt.Errorf("%w: %s", ErrRunActive, id)
	}
	delete(r.runs, id)
	return nil
}

// Subscribe returns the buffered history of a run and a channel carrying
// every later event. The channel is closed once the run has finished; for a
// finished run it is returned closed.
func (r *Registry) Subscribe(id string) (string, <-chan RunEvent, []RunEvent, error) {
	mr, err := r.lookup(id)
	if err != nil {
		return "", nil, nil, err
	}

	subID := uuid.New().String()
	ch := make(chan RunEvent, defaultSubscriberBufCap)

	// History and registration happen under one lock so no event is
	// missed or repeated.
	mr.subMu.Lock()
	events := mr.history.snapshot()
	evicted := mr.history.evicted
	if mr.closed {
		close(ch)
	} else {
		mr.subscribers[subID] = ch
	}
	mr.subMu.Unlock()

	if evicted > 0 {
		r.logger.Debug("subscriber history truncated", "run", id, "evicted", evicted)
	}
	return subID, ch, events, nil
}

// Unsubscribe removes a subscriber from a run.
func (r *Registry) Unsubscribe(runID, subID string) {
	mr, err := r.lookup(runID)
	if err != nil {
		return
	}

	mr.subMu.Lock()
	if ch, exists := mr.subscribers[subID]; exists {
		close(ch)
		delete(mr.subscribers, subID)
	}
	mr.subMu.Unlock()
}

// Shutdown cancels every running query and waits for them to finish or
// for ctx to be done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	ids := make([]string, 0, len(r.runs))
	for id, mr := range r.runs {
		if !mr.run.Finished() {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Cancel(id)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
