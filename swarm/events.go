package swarm

import "time"

// EventType classifies the records on the event stream.
type EventType string

// Event types
const (
	EventStarted   EventType = "started"
	EventMetadata  EventType = "metadata"
	EventProgress  EventType = "progress"
	EventWarning   EventType = "warning"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
)

// Event is a machine readable record about a state change of a swarm.
type Event struct {
	Time           time.Time `json:"time"`
	Type           EventType `json:"type"`
	InfoHash       string    `json:"info_hash"`
	Message        string    `json:"message,omitempty"`
	BytesCompleted int64     `json:"bytes_completed"`
	BytesTotal     int64     `json:"bytes_total"`
}

const eventBufferSize = 128

// Called from the run loop only. Slow consumers lose events instead of
// blocking the loop.
func (t *transfer) publishEvent(typ EventType, message string) {
	e := Event{
		Time:     time.Now(),
		Type:     typ,
		InfoHash: t.infoHashString(),
		Message:  message,
	}
	if t.info != nil {
		e.BytesTotal = t.info.TotalLength
		e.BytesCompleted = t.bytesComplete()
	}
	select {
	case t.events <- e:
	default:
		t.log.Debugln("event stream full, dropping event:", typ)
	}
}
