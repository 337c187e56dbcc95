package mq

import (
	"encoding/json"
	"time"
)

// ApplicationEventMessage is the body relayed for every audit event
// (application.created, application.status_changed, application.email_linked).
type ApplicationEventMessage struct {
	EventID       int64           `json:"event_id"`
	EventType     string          `json:"event_type"`
	ApplicationID int64           `json:"application_id"`
	MessageID     *int64          `json:"message_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurred_at"`
	TraceID       string          `json:"trace_id,omitempty"`
}
