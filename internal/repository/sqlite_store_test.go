package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recruitrack/internal/model"
	"recruitrack/pkg/db"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	conn, err := db.OpenSQLite(context.Background(), ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store := NewSQLiteStore(conn, zap.NewNop())
	require.NoError(t, store.EnsureSchema(context.Background()))
	return store
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	older := &model.Message{OwnerID: 1, Subject: "old", Sender: "a@x.com", ReceivedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	newer := &model.Message{OwnerID: 1, Subject: "new", Sender: "b@x.com", ReceivedAt: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)}
	other := &model.Message{OwnerID: 2, Subject: "other", ReceivedAt: time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC)}
	for _, m := range []*model.Message{older, newer, other} {
		require.NoError(t, store.InsertMessage(ctx, m))
	}

	msgs, err := store.FetchNewMessages(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "new", msgs[0].Subject)
	assert.Equal(t, "old", msgs[1].Subject)
	assert.Nil(t, msgs[0].Classification)
	assert.Nil(t, msgs[0].ApplicationID)

	var appID int64
	err = store.WithinTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.SetClassification(ctx, newer.ID, model.IntentAcknowledgment))

		app := &model.Application{OwnerID: 1, CompanyName: "Techcorp", JobTitle: "Développeur Python", Status: model.StatusAcknowledged, Source: model.SourceAutoDetected}
		require.NoError(t, tx.CreateApplication(ctx, app))
		appID = app.ID

		linked, err := tx.LinkMessage(ctx, newer.ID, app.ID)
		require.NoError(t, err)
		assert.True(t, linked)

		linked, err = tx.LinkMessage(ctx, newer.ID, app.ID)
		require.NoError(t, err)
		assert.False(t, linked)

		return tx.AppendEvent(ctx, &model.ApplicationEvent{
			ApplicationID: app.ID,
			MessageID:     &newer.ID,
			Payload: model.ApplicationCreatedPayload{
				Status:             model.StatusAcknowledged,
				TriggeredByMessage: newer.ID,
				Intent:             model.IntentAcknowledgment,
				Source:             model.SourceAutoDetected,
			},
		})
	})
	require.NoError(t, err)

	got, err := store.GetMessage(ctx, newer.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Classification)
	assert.Equal(t, model.IntentAcknowledgment, *got.Classification)
	require.NotNil(t, got.ApplicationID)
	assert.Equal(t, appID, *got.ApplicationID)

	events, err := store.ListEvents(ctx, appID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventApplicationCreated, events[0].Type())
	payload, ok := events[0].Payload.(model.ApplicationCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, newer.ID, payload.TriggeredByMessage)

	owners, err := store.ListPendingOwners(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, owners)

	summary, err := store.StatusSummary(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalApplications)
	assert.Equal(t, 1, summary.AutoCreatedApplications)
	assert.Equal(t, 0, summary.ManualApplications)
	assert.Equal(t, 2, summary.TotalMessages)
	assert.Equal(t, 1, summary.LinkedMessages)
	assert.Equal(t, 1, summary.UnlinkedMessages)
	assert.Equal(t, 1, summary.ByStatus[model.StatusAcknowledged])
	assert.InDelta(t, 100.0, summary.AutomationRate, 1e-9)
}

func TestSQLiteStoreUpdateApplication(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	app := &model.Application{OwnerID: 1, CompanyName: "Nova", JobTitle: "Data Engineer"}
	require.NoError(t, store.WithinTx(ctx, func(tx Tx) error { return tx.CreateApplication(ctx, app) }))
	assert.Equal(t, model.StatusApplied, app.Status)
	assert.Equal(t, "manual", app.Source)

	interview := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	status := model.StatusInterview
	loc := "Lyon"
	err := store.WithinTx(ctx, func(tx Tx) error {
		return tx.UpdateApplication(ctx, app.ID, model.ApplicationUpdate{Status: &status, Location: &loc, InterviewDate: &interview})
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(tx Tx) error {
		got, err := tx.GetApplication(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusInterview, got.Status)
		assert.Equal(t, "Lyon", got.Location)
		require.NotNil(t, got.InterviewDate)
		assert.True(t, interview.Equal(*got.InterviewDate))
		assert.Nil(t, got.ResponseDeadline)

		_, err = tx.GetApplication(ctx, app.ID+100)
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLiteStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	msg := &model.Message{OwnerID: 1, Subject: "hello"}
	require.NoError(t, store.InsertMessage(ctx, msg))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.SetClassification(ctx, msg.ID, model.IntentOffer))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Classification)
}

func TestSQLiteStoreQuarantine(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	msg := &model.Message{OwnerID: 1, Subject: "stuck"}
	require.NoError(t, store.InsertMessage(ctx, msg))
	require.NoError(t, store.QuarantineMessage(ctx, msg.ID))

	msgs, err := store.FetchNewMessages(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	owners, err := store.ListPendingOwners(ctx)
	require.NoError(t, err)
	assert.Empty(t, owners)

	require.NoError(t, store.ClearClassification(ctx, msg.ID))
	msgs, err = store.FetchNewMessages(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)

	assert.ErrorIs(t, store.QuarantineMessage(ctx, 42), ErrNotFound)
}

func TestSQLiteStoreLockMessageSeesCommittedLink(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	msg := &model.Message{OwnerID: 1, Subject: "hello"}
	require.NoError(t, store.InsertMessage(ctx, msg))
	app := &model.Application{OwnerID: 1, CompanyName: "Nova", JobTitle: "Data Engineer"}
	err := store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.CreateApplication(ctx, app); err != nil {
			return err
		}
		_, err := tx.LinkMessage(ctx, msg.ID, app.ID)
		return err
	})
	require.NoError(t, err)

	err = store.WithinTx(ctx, func(tx Tx) error {
		got, err := tx.LockMessage(ctx, msg.ID)
		require.NoError(t, err)
		require.NotNil(t, got.ApplicationID)
		assert.Equal(t, app.ID, *got.ApplicationID)

		_, err = tx.LockMessage(ctx, 42)
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestSQLiteStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.GetMessage(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.ClearClassification(ctx, 42), ErrNotFound)

	err = store.WithinTx(ctx, func(tx Tx) error {
		_, err := tx.LinkMessage(ctx, 42, 1)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithinTxRollsBackWhenEventInsertFails(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	store := NewSQLiteStore(conn, zap.NewNop())
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE messages SET classification").
		WithArgs("interview", int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO application_events").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	msgID := int64(5)
	err = store.WithinTx(ctx, func(tx Tx) error {
		if err := tx.SetClassification(ctx, msgID, model.IntentInterview); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &model.ApplicationEvent{
			ApplicationID: 3,
			MessageID:     &msgID,
			Payload:       model.StatusChangePayload{PreviousStatus: model.StatusApplied, NewStatus: model.StatusInterview},
		})
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert application event")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithinTxCommitFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer conn.Close()

	store := NewSQLiteStore(conn, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	err = store.WithinTx(context.Background(), func(Tx) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to commit transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRoutingKeyFor(t *testing.T) {
	assert.Equal(t, "application.created", RoutingKeyFor(model.EventApplicationCreated))
	assert.Equal(t, "application.status_changed", RoutingKeyFor(model.EventStatusChange))
	assert.Equal(t, "application.email_linked", RoutingKeyFor(model.EventEmailReceived))
}

func TestUpdateAssignments(t *testing.T) {
	status := model.StatusOffer
	name := "Jane"
	sets, args := updateAssignments(model.ApplicationUpdate{Status: &status, ContactName: &name}, func(n int) string {
		return "$" + string(rune('0'+n))
	})
	assert.Equal(t, []string{"status = $1", "contact_name = $2"}, sets)
	assert.Equal(t, []any{"offer", "Jane"}, args)
}
