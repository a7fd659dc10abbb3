// Package state tracks what has happened to every (node, stage) pair.
//
// The cluster state is the only shared mutable structure in a run. All
// mutations go through one mutex so concurrent stage completions cannot
// race, and the full attempt history round-trips through the state file
// to support resumed runs.
package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is the lifecycle state of a stage attempt.
type Outcome string

const (
	// OutcomePending marks an attempt that is scheduled but not started.
	OutcomePending Outcome = "pending"
	// OutcomeRunning marks an attempt currently executing on the node.
	OutcomeRunning Outcome = "running"
	// OutcomeSucceeded marks a stage that completed with exit code 0.
	OutcomeSucceeded Outcome = "succeeded"
	// OutcomeFailed marks a stage whose attempts are exhausted or whose
	// command reported a logical failure.
	OutcomeFailed Outcome = "failed"
	// OutcomeBlocked marks a stage that never ran because a prerequisite
	// node or stage did not succeed.
	OutcomeBlocked Outcome = "blocked"
	// OutcomeSkipped marks a stage that was not scheduled, either because
	// it already succeeded in a previous run or because the run was
	// cancelled before reaching it.
	OutcomeSkipped Outcome = "skipped"
)

// Terminal reports whether the outcome ends the attempt lifecycle.
func (o Outcome) Terminal() bool {
	switch o {
	case OutcomeSucceeded, OutcomeFailed, OutcomeBlocked, OutcomeSkipped:
		return true
	}
	return false
}

// Attempt is one recorded execution (or non-execution) of a stage on a node.
type Attempt struct {
	Node       string    `json:"node"`
	Stage      string    `json:"stage"`
	Attempt    int       `json:"attempt"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

type key struct {
	node, stage string
}

// Cluster is the aggregate run state: every attempt for every (node,
// stage), plus run metadata. Safe for concurrent use.
type Cluster struct {
	mu        sync.Mutex
	runID     string
	startedAt time.Time
	history   []Attempt
	counts    map[key]int
	latest    map[key]int // index into history
}

// New creates an empty cluster state for a fresh run.
func New() *Cluster {
	return &Cluster{
		runID:     uuid.NewString(),
		startedAt: time.Now().UTC(),
		counts:    make(map[key]int),
		latest:    make(map[key]int),
	}
}

// RunID returns the run identifier.
func (c *Cluster) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// StartedAt returns when this run state was created.
func (c *Cluster) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.startedAt
}

// Begin records the start of a new attempt for (node, stage) and returns
// its attempt number, starting at 1.
func (c *Cluster) Begin(node, stage string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{node, stage}
	n := c.counts[k] + 1
	c.counts[k] = n
	c.history = append(c.history, Attempt{
		Node:      node,
		Stage:     stage,
		Attempt:   n,
		Outcome:   OutcomeRunning,
		StartedAt: time.Now().UTC(),
	})
	c.latest[k] = len(c.history) - 1
	return n
}

// Finish records the terminal outcome of a previously begun attempt.
func (c *Cluster) Finish(node, stage string, attempt int, outcome Outcome, errDetail string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i := len(c.history) - 1; i >= 0; i-- {
		a := &c.history[i]
		if a.Node == node && a.Stage == stage && a.Attempt == attempt {
			a.Outcome = outcome
			a.Error = errDetail
			a.FinishedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("state: no attempt %d for %s/%s", attempt, node, stage)
}

// Record adds a single already-terminal attempt, used for blocked and
// skipped stages that never execute.
func (c *Cluster) Record(node, stage string, outcome Outcome, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key{node, stage}
	n := c.counts[k] + 1
	c.counts[k] = n
	now := time.Now().UTC()
	c.history = append(c.history, Attempt{
		Node:       node,
		Stage:      stage,
		Attempt:    n,
		Outcome:    outcome,
		Error:      detail,
		StartedAt:  now,
		FinishedAt: now,
	})
	c.latest[k] = len(c.history) - 1
}

// Latest returns the most recent attempt for (node, stage).
func (c *Cluster) Latest(node, stage string) (Attempt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.latest[key{node, stage}]
	if !ok {
		return Attempt{}, false
	}
	return c.history[i], true
}

// Succeeded reports whether the latest attempt for (node, stage) succeeded.
func (c *Cluster) Succeeded(node, stage string) bool {
	a, ok := c.Latest(node, stage)
	return ok && a.Outcome == OutcomeSucceeded
}

// AttemptCount returns how many attempts were recorded for (node, stage).
func (c *Cluster) AttemptCount(node, stage string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[key{node, stage}]
}

// Attempts returns a copy of the full attempt history in record order.
func (c *Cluster) Attempts() []Attempt {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Attempt, len(c.history))
	copy(out, c.history)
	return out
}
