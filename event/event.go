// Package event provides event definitions and the event bus for the refresher.
package event

import (
	"time"
)

// EventType identifies a refresh lifecycle event
type EventType string

const (
	// Batch lifecycle events
	EventBatchStarted   EventType = "batch.started"
	EventBatchCompleted EventType = "batch.completed"

	// Unit lifecycle events
	EventUnitStarted EventType = "unit.started"
	EventUnitSuccess EventType = "unit.success"
	EventUnitSkipped EventType = "unit.skipped"
	EventUnitFailed  EventType = "unit.failed"

	// Worker events
	EventWorkerRunStarted  EventType = "worker.run_started"
	EventWorkerRunFinished EventType = "worker.run_finished"
)

// Event describes one refresh lifecycle occurrence
type Event struct {
	Type      EventType      // event type
	TaskID    string         // task key of the unit (unit events only)
	TaskType  string         // task type of the unit (unit events only)
	Timestamp time.Time      // when the event was created
	Data      map[string]any // additional payload
	Error     error          // failure detail (failed events only)
}

// NewEvent creates a new event with the given type and automatically sets the timestamp.
func NewEvent(eventType EventType) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      make(map[string]any),
	}
}

// WithTaskID sets the task key on the event.
func (e Event) WithTaskID(taskID string) Event {
	e.TaskID = taskID
	return e
}

// WithTaskType sets the task type on the event.
func (e Event) WithTaskType(taskType string) Event {
	e.TaskType = taskType
	return e
}

// WithError sets the error on the event.
func (e Event) WithError(err error) Event {
	e.Error = err
	return e
}

// WithData sets a key-value pair in the event data.
func (e Event) WithData(key string, value any) Event {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// String returns the string representation of the event type.
func (t EventType) String() string {
	return string(t)
}
