package model

import "fmt"

// Status is the lifecycle state of an application.
type Status string

const (
	StatusApplied       Status = "applied"
	StatusAcknowledged  Status = "acknowledged"
	StatusScreening     Status = "screening"
	StatusInterview     Status = "interview"
	StatusTechnicalTest Status = "technical_test"
	StatusOffer         Status = "offer"
	StatusRejected      Status = "rejected"
	StatusAccepted      Status = "accepted"
	StatusOnHold        Status = "on_hold"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []Status{
	StatusApplied,
	StatusAcknowledged,
	StatusScreening,
	StatusInterview,
	StatusTechnicalTest,
	StatusOffer,
	StatusRejected,
	StatusAccepted,
	StatusOnHold,
}

func (s Status) Valid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsActive reports whether records in this status are eligible for automatic matching.
func (s Status) IsActive() bool {
	switch s {
	case StatusApplied, StatusAcknowledged, StatusScreening, StatusInterview:
		return true
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusAccepted
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown application status %q", v)
	}
	return s, nil
}
