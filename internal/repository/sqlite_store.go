package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"recruitrack/internal/model"
)

// SQLiteSchema creates the tables used by SQLiteStore.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS applications (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id          INTEGER  NOT NULL,
	company_name      TEXT     NOT NULL DEFAULT '',
	job_title         TEXT     NOT NULL DEFAULT '',
	status            TEXT     NOT NULL DEFAULT 'applied',
	location          TEXT     NOT NULL DEFAULT '',
	contact_name      TEXT     NOT NULL DEFAULT '',
	contact_email     TEXT     NOT NULL DEFAULT '',
	interview_date    DATETIME,
	response_deadline DATETIME,
	next_action_at    DATETIME,
	job_reference     TEXT     NOT NULL DEFAULT '',
	urgency           TEXT     NOT NULL DEFAULT 'NORMAL',
	notes             TEXT     NOT NULL DEFAULT '',
	source            TEXT     NOT NULL DEFAULT 'manual',
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id       INTEGER  NOT NULL,
	subject        TEXT     NOT NULL DEFAULT '',
	body           TEXT     NOT NULL DEFAULT '',
	snippet        TEXT     NOT NULL DEFAULT '',
	sender         TEXT     NOT NULL DEFAULT '',
	received_at    DATETIME NOT NULL,
	classification TEXT,
	application_id INTEGER REFERENCES applications (id),
	quarantined_at DATETIME
);
CREATE INDEX IF NOT EXISTS idx_messages_owner ON messages (owner_id, received_at);
CREATE TABLE IF NOT EXISTS application_events (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	application_id INTEGER  NOT NULL REFERENCES applications (id),
	message_id     INTEGER REFERENCES messages (id),
	event_type     TEXT     NOT NULL,
	payload        TEXT     NOT NULL,
	created_at     DATETIME NOT NULL
);
`

// SQLiteStore is the embedded record store used for local runs and tests.
// It has no outbox; events are only kept in application_events.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLiteStore(db *sql.DB, logger *zap.Logger) *SQLiteStore {
	return &SQLiteStore{db: db, logger: logger}
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SQLiteSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertMessage stores an ingested message and sets its id.
func (s *SQLiteStore) InsertMessage(ctx context.Context, m *model.Message) error {
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now().UTC()
	}
	var classification *string
	if m.Classification != nil {
		c := string(*m.Classification)
		classification = &c
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (owner_id, subject, body, snippet, sender, received_at, classification, application_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.OwnerID, m.Subject, m.Body, m.Snippet, m.Sender, m.ReceivedAt.UTC(), classification, m.ApplicationID)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteStore) FetchNewMessages(ctx context.Context, ownerID int64, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE owner_id = ? AND classification IS NULL AND application_id IS NULL AND quarantined_at IS NULL
		ORDER BY received_at DESC, id DESC
		LIMIT ?
	`, ownerID, limit)
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

func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message %d: %w", id, err)
	}
	return m, nil
}

func (s *SQLiteStore) ListApplications(ctx context.Context, ownerID int64) ([]model.Application, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE owner_id = ? ORDER BY id`, ownerID)
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

func (s *SQLiteStore) ListEvents(ctx context.Context, applicationID int64) ([]model.ApplicationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM application_events WHERE application_id = ? ORDER BY id`, applicationID)
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

func (s *SQLiteStore) ListPendingOwners(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
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

func (s *SQLiteStore) ClearClassification(ctx context.Context, messageID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET classification = NULL, quarantined_at = NULL WHERE id = ?`, messageID)
	if err != nil {
		return fmt.Errorf("failed to clear classification: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) QuarantineMessage(ctx context.Context, messageID int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE messages SET quarantined_at = ? WHERE id = ?`, time.Now().UTC(), messageID)
	if err != nil {
		return fmt.Errorf("failed to quarantine message: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) StatusSummary(ctx context.Context, ownerID int64) (*model.StatusSummary, error) {
	summary := &model.StatusSummary{OwnerID: ownerID, ByStatus: make(map[model.Status]int)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*), SUM(CASE WHEN source = ? THEN 1 ELSE 0 END)
		FROM applications WHERE owner_id = ?
		GROUP BY status
	`, model.SourceAutoDetected, ownerID)
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

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(application_id) FROM messages WHERE owner_id = ?
	`, ownerID).Scan(&summary.TotalMessages, &summary.LinkedMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}

	finishSummary(summary)
	return summary, nil
}

func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	if err = fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx *sql.Tx
}

// LockMessage reads inside the transaction; the single connection already serializes writers.
func (t *sqlTx) LockMessage(ctx context.Context, messageID int64) (*model.Message, error) {
	m, err := scanMessage(t.tx.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock message %d: %w", messageID, err)
	}
	return m, nil
}

func (t *sqlTx) SetClassification(ctx context.Context, messageID int64, intent model.Intent) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE messages SET classification = ? WHERE id = ?`, string(intent), messageID)
	if err != nil {
		return fmt.Errorf("failed to set classification: %w", err)
	}
	return requireRow(res)
}

func (t *sqlTx) LinkMessage(ctx context.Context, messageID, applicationID int64) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE messages SET application_id = ?
		WHERE id = ? AND application_id IS NULL
	`, applicationID, messageID)
	if err != nil {
		return false, fmt.Errorf("failed to link message: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return true, nil
	}

	var exists int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE id = ?`, messageID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check message: %w", err)
	}
	if exists == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

func (t *sqlTx) GetApplication(ctx context.Context, id int64) (*model.Application, error) {
	a, err := scanApplication(t.tx.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application %d: %w", id, err)
	}
	return a, nil
}

func (t *sqlTx) CreateApplication(ctx context.Context, app *model.Application) error {
	if err := prepareApplication(app, time.Now().UTC()); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO applications (owner_id, company_name, job_title, status, location, contact_name,
			contact_email, interview_date, response_deadline, next_action_at, job_reference,
			urgency, notes, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		app.OwnerID, app.CompanyName, app.JobTitle, string(app.Status), app.Location, app.ContactName,
		app.ContactEmail, app.InterviewDate, app.ResponseDeadline, app.NextActionAt, app.JobReference,
		string(app.Urgency), app.Notes, app.Source, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	if app.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read application id: %w", err)
	}
	return nil
}

func (t *sqlTx) UpdateApplication(ctx context.Context, id int64, upd model.ApplicationUpdate) error {
	if upd.IsEmpty() {
		return nil
	}
	sets, args := updateAssignments(upd, func(int) string { return "?" })
	args = append(args, time.Now().UTC(), id)
	query := fmt.Sprintf(`UPDATE applications SET %s, updated_at = ? WHERE id = ?`, strings.Join(sets, ", "))

	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update application %d: %w", id, err)
	}
	return requireRow(res)
}

func (t *sqlTx) AppendEvent(ctx context.Context, event *model.ApplicationEvent) error {
	payload, err := model.EncodePayload(event.Payload)
	if err != nil {
		return err
	}
	event.CreatedAt = time.Now().UTC()

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO application_events (application_id, message_id, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, event.ApplicationID, event.MessageID, string(event.Type()), string(payload), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert application event: %w", err)
	}
	if event.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read event id: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
