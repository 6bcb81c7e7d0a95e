package relay

import (
	"slices"
	"strings"
	"time"

	"github.com/chemistrywow31/claudecode"
)

// RunState is the lifecycle state of a run.
type RunState string

const (
	RunRunning   RunState = "running"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
	RunCancelled RunState = "cancelled"
)

// Run is a snapshot of one query executed by the relay.
type Run struct {
	ID         string     `json:"id"`
	Prompt     string     `json:"prompt"`
	State      RunState   `json:"state"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	Messages  int     `json:"messages"`
	SessionID string  `json:"sessionId,omitempty"`
	CostUSD   float64 `json:"costUsd,omitempty"`
	Error     string  `json:"error,omitempty"`
	ExitCode  *int    `json:"exitCode,omitempty"`
}

// Finished reports whether the run reached a terminal state.
func (r Run) Finished() bool {
	return r.State != RunRunning
}

// EventType distinguishes message and finish events.
type EventType string

const (
	EventMessage  EventType = "message"
	EventFinished EventType = "finished"
)

// RunEvent is one entry of a run's history.
type RunEvent struct {
	RunID     string
	Type      EventType
	Message   claudecode.Message // EventMessage only
	Run       Run                // final snapshot, EventFinished only
	Timestamp time.Time
}

func sortRuns(runs []Run) {
	slices.SortFunc(runs, func(a, b Run) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
