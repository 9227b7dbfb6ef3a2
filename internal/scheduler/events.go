package scheduler

import "time"

// EventKind identifies a run notification.
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventResult   EventKind = "result"
	EventFinished EventKind = "finished"
	EventFailed   EventKind = "failed"
)

// Event is delivered to observers synchronously, in run order, from the
// goroutine driving the run. Observers must not call Start.
type Event struct {
	Kind     EventKind
	RunID    string
	Index    int
	Total    int
	Prompt   string
	Response string
	Err      error
	Options  Options
	At       time.Time
}

// Observer receives run events.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }
