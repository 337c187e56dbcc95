package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventApplicationCreated EventType = "APPLICATION_CREATED"
	EventStatusChange       EventType = "STATUS_CHANGE"
	EventEmailReceived      EventType = "EMAIL_RECEIVED"
)

// EventPayload is implemented by the fixed set of audit payloads below.
type EventPayload interface {
	EventType() EventType
}

type ApplicationCreatedPayload struct {
	Status                   Status  `json:"status"`
	TriggeredByMessage       int64   `json:"triggered_by_email"`
	Intent                   Intent  `json:"intent"`
	ClassificationConfidence float64 `json:"classification_confidence"`
	ExtractionConfidence     float64 `json:"extraction_confidence"`
	Source                   string  `json:"source"`
}

func (ApplicationCreatedPayload) EventType() EventType { return EventApplicationCreated }

type StatusChangePayload struct {
	PreviousStatus           Status   `json:"previous_status"`
	NewStatus                Status   `json:"new_status"`
	TriggeredByMessage       int64    `json:"triggered_by_email"`
	AutoClassified           bool     `json:"auto_classified"`
	ClassificationConfidence float64  `json:"classification_confidence"`
	KeywordsMatched          []string `json:"keywords_matched,omitempty"`
	Reasoning                string   `json:"reasoning,omitempty"`
}

func (StatusChangePayload) EventType() EventType { return EventStatusChange }

type EmailReceivedPayload struct {
	MessageID                int64    `json:"email_id"`
	Intent                   Intent   `json:"email_type"`
	ClassificationConfidence float64  `json:"classification_confidence"`
	ExtractionConfidence     float64  `json:"extraction_confidence"`
	MatchScore               float64  `json:"match_score"`
	MatchReasons             []string `json:"match_reasons,omitempty"`
	Subject                  string   `json:"subject"`
	Sender                   string   `json:"sender"`
}

func (EmailReceivedPayload) EventType() EventType { return EventEmailReceived }

// ApplicationEvent is an append-only audit record.
type ApplicationEvent struct {
	ID            int64        `json:"id"`
	ApplicationID int64        `json:"application_id"`
	MessageID     *int64       `json:"message_id,omitempty"`
	Payload       EventPayload `json:"payload"`
	CreatedAt     time.Time    `json:"created_at"`
}

func (e ApplicationEvent) Type() EventType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.EventType()
}

// MarshalJSON adds the event type next to the payload.
func (e ApplicationEvent) MarshalJSON() ([]byte, error) {
	type plain ApplicationEvent
	return json.Marshal(struct {
		plain
		EventType EventType `json:"event_type"`
	}{plain(e), e.Type()})
}

func EncodePayload(p EventPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("nil event payload")
	}
	return json.Marshal(p)
}

// DecodePayload restores the typed payload stored under eventType.
func DecodePayload(eventType EventType, data []byte) (EventPayload, error) {
	switch eventType {
	case EventApplicationCreated:
		var p ApplicationCreatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return p, nil
	case EventStatusChange:
		var p StatusChangePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return p, nil
	case EventEmailReceived:
		var p EmailReceivedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}
