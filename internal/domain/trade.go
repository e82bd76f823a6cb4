package domain

import "time"

// EventKind classifies journal events.
type EventKind string

const (
	EventOpened     EventKind = "OPENED"
	EventModified   EventKind = "MODIFIED"
	EventClosed     EventKind = "CLOSED"
	EventDeleted    EventKind = "DELETED"
	EventSuccessor  EventKind = "SUCCESSOR"
	EventAdopted    EventKind = "ADOPTED"
	EventAnomaly    EventKind = "ANOMALY"
	EventDesync     EventKind = "DESYNC"
	EventEmergency  EventKind = "EMERGENCY"
	EventUnresolved EventKind = "UNRESOLVED"
)

// JournalEvent is one entry of the audit trail.
type JournalEvent struct {
	ID        string    // uuid
	RunID     string    // uuid of the process run that recorded the event
	Ticket    int64     // 0 when the event is not bound to a ticket
	Kind      EventKind // What happened
	Message   string    // Human-readable detail
	CreatedAt time.Time
}
