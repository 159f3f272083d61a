package types

// Status is a type for the lifecycle status of a configuration resource
// (e.g. billing rule, alert configuration, tenant) in the database.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDeleted  Status = "deleted"
)

// EventStatus tracks a usage event through the processing pipeline.
type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusProcessing EventStatus = "processing"
	EventStatusCompleted  EventStatus = "completed"
	EventStatusFailed     EventStatus = "failed"
	EventStatusRetrying   EventStatus = "retrying"
	EventStatusDeadLetter EventStatus = "dead_letter"
)

// IsTerminal reports whether the status is a terminal state for the
// processing pipeline. Dead-lettered events are never reprocessed.
func (s EventStatus) IsTerminal() bool {
	return s == EventStatusCompleted || s == EventStatusDeadLetter
}
