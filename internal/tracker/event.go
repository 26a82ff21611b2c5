package tracker

// Event tells the tracker why the client is announcing.
type Event int32

// Tracker announce events
const (
	EventNone Event = iota
	EventCompleted
	EventStarted
	EventStopped
)

// String returns the event name as it appears in the announce query.
func (e Event) String() string {
	switch e {
	case EventCompleted:
		return "completed"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	}
	return "empty"
}
