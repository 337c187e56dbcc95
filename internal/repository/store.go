// Package repository persists messages, applications and their audit events.
package repository

import (
	"context"
	"errors"
	"time"

	"recruitrack/internal/model"
)

var ErrNotFound = errors.New("record not found")

// Store is the record store the pipeline reads from and writes through.
type Store interface {
	// FetchNewMessages returns up to limit unclassified, unlinked, unquarantined messages, newest first.
	FetchNewMessages(ctx context.Context, ownerID int64, limit int) ([]model.Message, error)
	GetMessage(ctx context.Context, id int64) (*model.Message, error)
	ListApplications(ctx context.Context, ownerID int64) ([]model.Application, error)
	ListEvents(ctx context.Context, applicationID int64) ([]model.ApplicationEvent, error)
	// ListPendingOwners returns the owners that have unprocessed messages.
	ListPendingOwners(ctx context.Context) ([]int64, error)
	// ClearClassification also lifts a quarantine so the message is fetched again.
	ClearClassification(ctx context.Context, messageID int64) error
	// QuarantineMessage parks a message that keeps failing so later batches skip it.
	QuarantineMessage(ctx context.Context, messageID int64) error
	StatusSummary(ctx context.Context, ownerID int64) (*model.StatusSummary, error)
	// WithinTx runs fn in one transaction, rolled back when fn returns an error.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is the set of mutations applied for one message.
type Tx interface {
	// LockMessage re-reads the message row and holds it until the transaction ends.
	LockMessage(ctx context.Context, messageID int64) (*model.Message, error)
	SetClassification(ctx context.Context, messageID int64, intent model.Intent) error
	// LinkMessage sets the application link unless one exists; linked reports whether it did.
	LinkMessage(ctx context.Context, messageID, applicationID int64) (linked bool, err error)
	GetApplication(ctx context.Context, id int64) (*model.Application, error)
	CreateApplication(ctx context.Context, app *model.Application) error
	UpdateApplication(ctx context.Context, id int64, upd model.ApplicationUpdate) error
	AppendEvent(ctx context.Context, event *model.ApplicationEvent) error
}

// RoutingKeyFor maps an audit event type to the broker routing key it is relayed under.
func RoutingKeyFor(t model.EventType) string {
	switch t {
	case model.EventApplicationCreated:
		return "application.created"
	case model.EventStatusChange:
		return "application.status_changed"
	case model.EventEmailReceived:
		return "application.email_linked"
	default:
		return "application.event"
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const messageColumns = `id, owner_id, subject, body, snippet, sender, received_at, classification, application_id`

func scanMessage(row rowScanner) (*model.Message, error) {
	var (
		m              model.Message
		classification *string
	)
	err := row.Scan(
		&m.ID,
		&m.OwnerID,
		&m.Subject,
		&m.Body,
		&m.Snippet,
		&m.Sender,
		&m.ReceivedAt,
		&classification,
		&m.ApplicationID,
	)
	if err != nil {
		return nil, err
	}
	if classification != nil {
		intent := model.Intent(*classification)
		m.Classification = &intent
	}
	return &m, nil
}

const applicationColumns = `id, owner_id, company_name, job_title, status, location, contact_name,
		contact_email, interview_date, response_deadline, next_action_at, job_reference,
		urgency, notes, source, created_at, updated_at`

func scanApplication(row rowScanner) (*model.Application, error) {
	var (
		a       model.Application
		status  string
		urgency string
	)
	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.CompanyName,
		&a.JobTitle,
		&status,
		&a.Location,
		&a.ContactName,
		&a.ContactEmail,
		&a.InterviewDate,
		&a.ResponseDeadline,
		&a.NextActionAt,
		&a.JobReference,
		&urgency,
		&a.Notes,
		&a.Source,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = model.Status(status)
	a.Urgency = model.Urgency(urgency)
	return &a, nil
}

const eventColumns = `id, application_id, message_id, event_type, payload, created_at`

func scanEvent(row rowScanner) (*model.ApplicationEvent, error) {
	var (
		e         model.ApplicationEvent
		eventType string
		payload   []byte
	)
	if err := row.Scan(&e.ID, &e.ApplicationID, &e.MessageID, &eventType, &payload, &e.CreatedAt); err != nil {
		return nil, err
	}
	p, err := model.DecodePayload(model.EventType(eventType), payload)
	if err != nil {
		return nil, err
	}
	e.Payload = p
	return &e, nil
}

// prepareApplication fills the defaults a new record needs before insert.
func prepareApplication(app *model.Application, now time.Time) error {
	if app.Status == "" {
		app.Status = model.StatusApplied
	}
	if !app.Status.Valid() {
		return errors.New("invalid application status " + string(app.Status))
	}
	if app.Urgency == "" {
		app.Urgency = model.UrgencyNormal
	}
	if app.Source == "" {
		app.Source = "manual"
	}
	app.CreatedAt = now
	app.UpdatedAt = now
	return nil
}

// finishSummary derives the manual, unlinked and rate fields from the raw counts.
func finishSummary(s *model.StatusSummary) {
	s.ManualApplications = s.TotalApplications - s.AutoCreatedApplications
	s.UnlinkedMessages = s.TotalMessages - s.LinkedMessages
	if s.TotalApplications > 0 {
		s.AutomationRate = float64(s.AutoCreatedApplications) / float64(s.TotalApplications) * 100
	}
}

// updateAssignments renders the SET list for upd; placeholder formats the n-th bind parameter.
func updateAssignments(upd model.ApplicationUpdate, placeholder func(n int) string) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = "+placeholder(len(args)))
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.Location != nil {
		add("location", *upd.Location)
	}
	if upd.ContactName != nil {
		add("contact_name", *upd.ContactName)
	}
	if upd.ContactEmail != nil {
		add("contact_email", *upd.ContactEmail)
	}
	if upd.InterviewDate != nil {
		add("interview_date", *upd.InterviewDate)
	}
	if upd.ResponseDeadline != nil {
		add("response_deadline", *upd.ResponseDeadline)
	}
	if upd.NextActionAt != nil {
		add("next_action_at", *upd.NextActionAt)
	}
	return sets, args
}
