// Package observe provides structured observability for orchestration runs.
package observe

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// EventType classifies orchestration events.
type EventType string

const (
	// EventRunStarted indicates an orchestration run has started.
	EventRunStarted EventType = "run.started"
	// EventRunFinished indicates an orchestration run has finished.
	EventRunFinished EventType = "run.finished"

	// EventStageStarted indicates a stage attempt has started on a node.
	EventStageStarted EventType = "stage.started"
	// EventStageSucceeded indicates a stage succeeded on a node.
	EventStageSucceeded EventType = "stage.succeeded"
	// EventStageFailed indicates a stage failed terminally on a node.
	EventStageFailed EventType = "stage.failed"
	// EventStageRetrying indicates a transient failure that will be retried.
	EventStageRetrying EventType = "stage.retrying"
	// EventStageSkipped indicates a stage was not scheduled.
	EventStageSkipped EventType = "stage.skipped"
	// EventStageBlocked indicates a stage could not run because a
	// prerequisite never succeeded.
	EventStageBlocked EventType = "stage.blocked"
)

// Event is one structured orchestration event.
type Event struct {
	Type      EventType
	Stage     string
	Node      string
	Message   string
	Timestamp time.Time
	Fields    map[string]string
}

// Observer receives orchestration events and free-form log lines.
type Observer interface {
	// Printf logs a free-form line.
	Printf(format string, v ...any)

	// Event emits a structured event.
	Event(event Event)
}

// ConsoleObserver writes events through the standard log package.
type ConsoleObserver struct{}

// NewConsoleObserver creates a console-backed observer.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{}
}

// Printf implements Observer.
func (o *ConsoleObserver) Printf(format string, v ...any) {
	log.Printf(format, v...)
}

// Event implements Observer.
func (o *ConsoleObserver) Event(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	parts := []string{string(event.Type)}
	if event.Stage != "" {
		parts = append(parts, fmt.Sprintf("[%s]", event.Stage))
	}
	if event.Node != "" {
		parts = append(parts, fmt.Sprintf("node=%s", event.Node))
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}
	if len(event.Fields) > 0 {
		fieldParts := make([]string, 0, len(event.Fields))
		for k, v := range event.Fields {
			fieldParts = append(fieldParts, fmt.Sprintf("%s=%s", k, v))
		}
		parts = append(parts, "("+strings.Join(fieldParts, ", ")+")")
	}

	log.Print(strings.Join(parts, " "))
}

// Nop discards everything. Used by tests and dry runs.
type Nop struct{}

// Printf implements Observer.
func (Nop) Printf(string, ...any) {}

// Event implements Observer.
func (Nop) Event(Event) {}
