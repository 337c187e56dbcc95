package mq

import "time"

// RoutingKeyMessagesIngested is the routing key MessagesIngestedPayload is published under.
const RoutingKeyMessagesIngested = "messages.ingested"

// MessagesIngestedPayload is published by the ingestion side once new
// messages for an owner are stored.
type MessagesIngestedPayload struct {
	OwnerID    int64     `json:"owner_id"`
	MessageIDs []int64   `json:"message_ids,omitempty"`
	Count      int       `json:"count"`
	IngestedAt time.Time `json:"ingested_at"`
	TraceID    string    `json:"trace_id,omitempty"`
}
