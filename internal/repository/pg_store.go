package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	mqcontracts "recruitrack/contracts/mq"
	"recruitrack/internal/model"
	"recruitrack/pkg/outbox"
	"recruitrack/pkg/trace"
)

// PGStore is the PostgreSQL record store. Every audit event is queued in the
// outbox within the same transaction.
type PGStore struct {
	db     *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewPGStore(db *pgxpool.Pool, logger *zap.Logger) *PGStore {
	return &PGStore{
		db:     db,
		outbox: outbox.NewRepository(db),
		logger: logger,
	}
}

func (s *PGStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PGStore) FetchNewMessages(ctx context.Context, ownerID int64, limit int) ([]model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE owner_id = $1 AND classification IS NULL AND application_id IS NULL AND quarantined_at IS NULL
		ORDER BY received_at DESC, id DESC
		LIMIT $2
	`
	rows, err := s.db.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query new messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *PGStore) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	m, err := scanMessage(s.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}
	return m, nil
}

func (s *PGStore) ListApplications(ctx context.Context, ownerID int64) ([]model.Application, error) {
	rows, err := s.db.Query(ctx, `SELECT `+applicationColumns+` FROM applications WHERE owner_id = $1 ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var out []model.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PGStore) ListEvents(ctx context.Context, applicationID int64) ([]model.ApplicationEvent, error) {
	rows, err := s.db.Query(ctx, `SELECT `+eventColumns+` FROM application_events WHERE application_id = $1 ORDER BY id`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []model.ApplicationEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *PGStore) ListPendingOwners(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT owner_id FROM messages
		WHERE classification IS NULL AND application_id IS NULL AND quarantined_at IS NULL
		ORDER BY owner_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending owners: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PGStore) ClearClassification(ctx context.Context, messageID int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE messages SET classification = NULL, quarantined_at = NULL WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("failed to clear classification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) QuarantineMessage(ctx context.Context, messageID int64) error {
	tag, err := s.db.Exec(ctx, `UPDATE messages SET quarantined_at = NOW() WHERE id = $1`, messageID)
	if err != nil {
		return fmt.Errorf("failed to quarantine message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) StatusSummary(ctx context.Context, ownerID int64) (*model.StatusSummary, error) {
	summary := &model.StatusSummary{OwnerID: ownerID, ByStatus: make(map[model.Status]int)}

	rows, err := s.db.Query(ctx, `
		SELECT status, COUNT(*), COUNT(*) FILTER (WHERE source = $2)
		FROM applications WHERE owner_id = $1
		GROUP BY status
	`, ownerID, model.SourceAutoDetected)
	if err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			status      string
			total, auto int
		)
		if err := rows.Scan(&status, &total, &auto); err != nil {
			return nil, err
		}
		summary.ByStatus[model.Status(status)] = total
		summary.TotalApplications += total
		summary.AutoCreatedApplications += auto
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(application_id) FROM messages WHERE owner_id = $1
	`, ownerID).Scan(&summary.TotalMessages, &summary.LinkedMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	finishSummary(summary)
	return summary, nil
}

func (s *PGStore) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				s.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(&pgTx{tx: tx, outbox: s.outbox}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) LockMessage(ctx context.Context, messageID int64) (*model.Message, error) {
	m, err := scanMessage(t.tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1 FOR UPDATE`, messageID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock message %d: %w", messageID, err)
	}
	return m, nil
}

func (t *pgTx) SetClassification(ctx context.Context, messageID int64, intent model.Intent) error {
	tag, err := t.tx.Exec(ctx, `UPDATE messages SET classification = $1 WHERE id = $2`, string(intent), messageID)
	if err != nil {
		return fmt.Errorf("failed to set classification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) LinkMessage(ctx context.Context, messageID, applicationID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE messages SET application_id = $1
		WHERE id = $2 AND application_id IS NULL
	`, applicationID, messageID)
	if err != nil {
		return false, fmt.Errorf("failed to link message: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check message: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (t *pgTx) GetApplication(ctx context.Context, id int64) (*model.Application, error) {
	a, err := scanApplication(t.tx.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application %d: %w", id, err)
	}
	return a, nil
}

func (t *pgTx) CreateApplication(ctx context.Context, app *model.Application) error {
	if err := prepareApplication(app, time.Now().UTC()); err != nil {
		return err
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO applications (owner_id, company_name, job_title, status, location, contact_name,
			contact_email, interview_date, response_deadline, next_action_at, job_reference,
			urgency, notes, source, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id
	`,
		app.OwnerID, app.CompanyName, app.JobTitle, string(app.Status), app.Location, app.ContactName,
		app.ContactEmail, app.InterviewDate, app.ResponseDeadline, app.NextActionAt, app.JobReference,
		string(app.Urgency), app.Notes, app.Source, app.CreatedAt, app.UpdatedAt,
	).Scan(&app.ID)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateApplication(ctx context.Context, id int64, upd model.ApplicationUpdate) error {
	if upd.IsEmpty() {
		return nil
	}
	sets, args := updateAssignments(upd, func(n int) string { return "$" + strconv.Itoa(n) })
	args = append(args, time.Now().UTC(), id)
	query := fmt.Sprintf(`UPDATE applications SET %s, updated_at = $%d WHERE id = $%d`,
		strings.Join(sets, ", "), len(args)-1, len(args))

	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update application %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *pgTx) AppendEvent(ctx context.Context, event *model.ApplicationEvent) error {
	payload, err := model.EncodePayload(event.Payload)
	if err != nil {
		return err
	}
	event.CreatedAt = time.Now().UTC()

	err = t.tx.QueryRow(ctx, `
		INSERT INTO application_events (application_id, message_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, event.ApplicationID, event.MessageID, string(event.Type()), payload, event.CreatedAt).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert application event: %w", err)
	}

	msg := mqcontracts.ApplicationEventMessage{
		EventID:       event.ID,
		EventType:     string(event.Type()),
		ApplicationID: event.ApplicationID,
		MessageID:     event.MessageID,
		Payload:       payload,
		OccurredAt:    event.CreatedAt,
		TraceID:       trace.FromContext(ctx),
	}
	_, err = t.outbox.Enqueue(ctx, t.tx, "application", event.ApplicationID, RoutingKeyFor(event.Type()), msg)
	return err
}
