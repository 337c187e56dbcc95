package model

import "time"

type Urgency string

const (
	UrgencyNormal Urgency = "NORMAL"
	UrgencyHigh   Urgency = "HIGH"
	UrgencyUrgent Urgency = "URGENT"
)

// SourceAutoDetected marks applications created by the pipeline.
const SourceAutoDetected = "auto-detected from email"

type Application struct {
	ID               int64      `json:"id"`
	OwnerID          int64      `json:"owner_id"`
	CompanyName      string     `json:"company_name"`
	JobTitle         string     `json:"job_title"`
	Status           Status     `json:"status"`
	Location         string     `json:"location,omitempty"`
	ContactName      string     `json:"contact_name,omitempty"`
	ContactEmail     string     `json:"contact_email,omitempty"`
	InterviewDate    *time.Time `json:"interview_date,omitempty"`
	ResponseDeadline *time.Time `json:"response_deadline,omitempty"`
	NextActionAt     *time.Time `json:"next_action_at,omitempty"`
	JobReference     string     `json:"job_reference,omitempty"`
	Urgency          Urgency    `json:"urgency"`
	Notes            string     `json:"notes,omitempty"`
	Source           string     `json:"source"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (a Application) IsAutoDetected() bool {
	return a.Source == SourceAutoDetected
}

// ApplicationUpdate carries the fields to change; nil fields are left untouched.
type ApplicationUpdate struct {
	Status           *Status
	Location         *string
	ContactName      *string
	ContactEmail     *string
	InterviewDate    *time.Time
	ResponseDeadline *time.Time
	NextActionAt     *time.Time
}

func (u ApplicationUpdate) IsEmpty() bool {
	return u.Status == nil && u.Location == nil && u.ContactName == nil &&
		u.ContactEmail == nil && u.InterviewDate == nil && u.ResponseDeadline == nil &&
		u.NextActionAt == nil
}

// Apply copies the non-nil fields of u onto a.
func (u ApplicationUpdate) Apply(a *Application) {
	if u.Status != nil {
		a.Status = *u.Status
	}
	if u.Location != nil {
		a.Location = *u.Location
	}
	if u.ContactName != nil {
		a.ContactName = *u.ContactName
	}
	if u.ContactEmail != nil {
		a.ContactEmail = *u.ContactEmail
	}
	if u.InterviewDate != nil {
		a.InterviewDate = u.InterviewDate
	}
	if u.ResponseDeadline != nil {
		a.ResponseDeadline = u.ResponseDeadline
	}
	if u.NextActionAt != nil {
		a.NextActionAt = u.NextActionAt
	}
}

// StatusSummary aggregates an owner's applications and messages.
type StatusSummary struct {
	OwnerID                 int64          `json:"owner_id"`
	TotalApplications       int            `json:"total_applications"`
	AutoCreatedApplications int            `json:"auto_created_applications"`
	ManualApplications      int            `json:"manual_applications"`
	ByStatus                map[Status]int `json:"by_status"`
	TotalMessages           int            `json:"total_messages"`
	LinkedMessages          int            `json:"linked_messages"`
	UnlinkedMessages        int            `json:"unlinked_messages"`
	AutomationRate          float64        `json:"automation_rate"`
}
