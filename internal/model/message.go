package model

import "time"

// Message is one recruitment email as delivered by the ingestion side.
type Message struct {
	ID             int64     `json:"id"`
	OwnerID        int64     `json:"owner_id"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	Snippet        string    `json:"snippet"`
	Sender         string    `json:"sender"`
	ReceivedAt     time.Time `json:"received_at"`
	Classification *Intent   `json:"classification,omitempty"`
	ApplicationID  *int64    `json:"application_id,omitempty"`
}

// Content returns the body, falling back to the snippet when the body is empty.
func (m Message) Content() string {
	if m.Body != "" {
		return m.Body
	}
	return m.Snippet
}

func (m Message) IsLinked() bool {
	return m.ApplicationID != nil
}
