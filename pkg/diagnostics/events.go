package diagnostics

// EventType identifies a scheduler event.
type EventType uint8

const (
	// EventQueued is emitted when a validated run joins the queue.
	EventQueued EventType = iota

	// EventStarted is emitted when a run is granted the permit.
	EventStarted

	// EventCompleted is emitted after a run wrote its results.
	EventCompleted

	// EventInterrupted is emitted when a queued or running entry is cancelled.
	EventInterrupted
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventQueued:
		return "QUEUED"
	case EventStarted:
		return "STARTED"
	case EventCompleted:
		return "COMPLETED"
	case EventInterrupted:
		return "INTERRUPTED"
	default:
		return "UNKNOWN"
	}
}

// Event is a scheduler event.
type Event struct {
	Type EventType
	Name string

	// State is the final DiagnosticsState for EventCompleted.
	State string
}

// EventHandler receives scheduler events.
type EventHandler func(Event)

// OnEvent registers a handler. Handlers run on their own goroutine.
func (s *Scheduler) OnEvent(handler EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, handler)
}

func (s *Scheduler) emit(event Event) {
	s.mu.Lock()
	handlers := append([]EventHandler(nil), s.handlers...)
	s.mu.Unlock()

	for _, handler := range handlers {
		go handler(event)
	}
}
