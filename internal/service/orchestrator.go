// Package service runs the per-message pipeline and the batches built on it.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"recruitrack/internal/classifier"
	"recruitrack/internal/model"
	"recruitrack/internal/repository"
	"recruitrack/internal/status"
	"recruitrack/internal/textnorm"
	"recruitrack/pkg/logger"
	"recruitrack/pkg/metrics"
	"recruitrack/pkg/otel"
	"recruitrack/pkg/util"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	errAlreadyLinked   = errors.New("message already linked")
)

type Action string

const (
	ActionCreated Action = "created"
	ActionLinked  Action = "linked"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
	ActionError   Action = "error"
)

// Outcome describes what happened to one message.
type Outcome struct {
	MessageID     int64        `json:"message_id"`
	Action        Action       `json:"action"`
	Intent        model.Intent `json:"intent,omitempty"`
	Confidence    float64      `json:"confidence"`
	ApplicationID *int64       `json:"application_id,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Error         string       `json:"error,omitempty"`
	ErrorKind     string       `json:"error_kind,omitempty"`
}

type Classifier interface {
	Classify(ctx context.Context, subject, body, sender string) model.ClassificationResult
}

// Extractor resolves relative dates against ref, the time the message was received.
type Extractor interface {
	ExtractAt(ctx context.Context, subject, body, sender string, ref time.Time) model.ExtractionResult
}

type Matcher interface {
	FindMatches(ctx context.Context, subject, body, sender string, candidates []model.Application) []model.MatchCandidate
}

// Thresholds gate the mutations the orchestrator may apply.
type Thresholds struct {
	// StatusUpdate is the classification confidence a status change must exceed.
	StatusUpdate float64
	// Creation is the extraction confidence a new application must exceed.
	Creation float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{StatusUpdate: 0.7, Creation: 0.8}
}

type Orchestrator struct {
	store      repository.Store
	classifier Classifier
	extractor  Extractor
	matcher    Matcher
	thresholds Thresholds
	locker     Locker
	now        func() time.Time
	logger     *zap.Logger
}

func NewOrchestrator(
	store repository.Store,
	classifier Classifier,
	extractor Extractor,
	matcher Matcher,
	thresholds Thresholds,
	logger *zap.Logger,
) *Orchestrator {
	defaults := DefaultThresholds()
	if thresholds.StatusUpdate <= 0 {
		thresholds.StatusUpdate = defaults.StatusUpdate
	}
	if thresholds.Creation <= 0 {
		thresholds.Creation = defaults.Creation
	}
	return &Orchestrator{
		store:      store,
		classifier: classifier,
		extractor:  extractor,
		matcher:    matcher,
		thresholds: thresholds,
		now:        time.Now,
		logger:     logger,
	}
}

// WithLocker makes Reprocess take the same per-message lock as batch runs.
func (o *Orchestrator) WithLocker(l Locker) *Orchestrator {
	o.locker = l
	return o
}

// ProcessMessage classifies msg, finds the application it belongs to and
// applies the resulting mutations in one transaction. A failure rolls back
// everything for msg and yields an ActionError outcome along with the error.
func (o *Orchestrator) ProcessMessage(ctx context.Context, msg model.Message) (out Outcome, err error) {
	ctx, span := otel.StartSpan(ctx, "orchestrator.process_message",
		attribute.Int64("message.id", msg.ID),
		attribute.Int64("owner.id", msg.OwnerID),
	)
	log := logger.WithTrace(ctx, o.logger).With(zap.Int64("message_id", msg.ID))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing message %d: %v", msg.ID, r)
			log.Error("Recovered panic", zap.Any("panic", r), zap.Stack("stack"))
		}
		if err != nil {
			_, kind := util.ClassifyError(err)
			out = Outcome{
				MessageID: msg.ID,
				Action:    ActionError,
				Intent:    out.Intent,
				Error:     err.Error(),
				ErrorKind: kind,
			}
			log.Error("Message processing failed", zap.String("error_kind", kind), zap.Error(err))
		}
		metrics.IncrementMessageProcessed(string(out.Action))
		span.SetAttributes(attribute.String("outcome", string(out.Action)))
		otel.EndSpan(span, err)
	}()

	out, err = o.process(ctx, msg, log)
	return out, err
}

func (o *Orchestrator) process(ctx context.Context, msg model.Message, log *zap.Logger) (Outcome, error) {
	content := msg.Content()
	cls := o.classifier.Classify(ctx, msg.Subject, content, msg.Sender)
	ref := msg.ReceivedAt
	if ref.IsZero() {
		ref = o.now()
	}
	ext := o.extractor.ExtractAt(ctx, msg.Subject, content, msg.Sender, ref)

	out := Outcome{MessageID: msg.ID, Intent: cls.Intent, Confidence: cls.Confidence}

	var match *model.MatchCandidate
	if !msg.IsLinked() {
		candidates, err := o.store.ListApplications(ctx, msg.OwnerID)
		if err != nil {
			return out, err
		}
		if matches := o.matcher.FindMatches(ctx, msg.Subject, content, msg.Sender, candidates); len(matches) > 0 {
			match = &matches[0]
		}
	}

	err := o.store.WithinTx(ctx, func(tx repository.Tx) error {
		// The row may have been linked since msg was read.
		current, err := tx.LockMessage(ctx, msg.ID)
		if err != nil {
			return fmt.Errorf("lock message: %w", err)
		}
		if err := tx.SetClassification(ctx, msg.ID, cls.Intent); err != nil {
			return fmt.Errorf("set classification: %w", err)
		}

		switch {
		case current.IsLinked():
			linkedTo := *current.ApplicationID
			if match != nil && match.ApplicationID != linkedTo {
				match = nil
			}
			return o.applyToExisting(ctx, tx, msg, linkedTo, match, cls, ext, &out)
		case match != nil:
			return o.applyToExisting(ctx, tx, msg, match.ApplicationID, match, cls, ext, &out)
		case o.canCreate(cls, ext):
			return o.create(ctx, tx, msg, cls, ext, &out)
		default:
			out.Action = ActionSkipped
			out.Reason = o.skipReason(cls, ext)
			return nil
		}
	})
	if err != nil {
		return out, err
	}

	log.Info("Message processed",
		zap.String("action", string(out.Action)),
		zap.String("intent", string(cls.Intent)),
		zap.Float64("classification_confidence", cls.Confidence),
		zap.Float64("extraction_confidence", ext.Confidence),
		zap.Int64p("application_id", out.ApplicationID),
	)
	return out, nil
}

// applyToExisting links msg to the application and applies the status the
// intent implies when the transition table allows it.
func (o *Orchestrator) applyToExisting(
	ctx context.Context,
	tx repository.Tx,
	msg model.Message,
	applicationID int64,
	match *model.MatchCandidate,
	cls model.ClassificationResult,
	ext model.ExtractionResult,
	out *Outcome,
) error {
	out.ApplicationID = &applicationID
	out.Action = ActionLinked

	linked, err := tx.LinkMessage(ctx, msg.ID, applicationID)
	if err != nil {
		return fmt.Errorf("link message: %w", err)
	}
	if linked {
		payload := model.EmailReceivedPayload{
			MessageID:                msg.ID,
			Intent:                   cls.Intent,
			ClassificationConfidence: cls.Confidence,
			ExtractionConfidence:     ext.Confidence,
			Subject:                  msg.Subject,
			Sender:                   msg.Sender,
		}
		if match != nil {
			payload.MatchScore = match.Score
			payload.MatchReasons = match.Reasons
		}
		if err := o.appendEvent(ctx, tx, applicationID, msg.ID, payload); err != nil {
			return err
		}
	}

	if cls.Confidence <= o.thresholds.StatusUpdate {
		out.Reason = "classification confidence too low for a status change"
		return nil
	}
	next, ok := classifier.SuggestedStatus(cls.Intent)
	if !ok {
		return nil
	}

	app, err := tx.GetApplication(ctx, applicationID)
	if err != nil {
		return fmt.Errorf("load application: %w", err)
	}
	if !status.CanTransition(app.Status, next) {
		out.Reason = fmt.Sprintf("transition %s -> %s not allowed", app.Status, next)
		return nil
	}

	upd := o.statusUpdate(app, next, cls.Intent, ext)
	if err := tx.UpdateApplication(ctx, applicationID, upd); err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	err = o.appendEvent(ctx, tx, applicationID, msg.ID, model.StatusChangePayload{
		PreviousStatus:           app.Status,
		NewStatus:                next,
		TriggeredByMessage:       msg.ID,
		AutoClassified:           true,
		ClassificationConfidence: cls.Confidence,
		KeywordsMatched:          cls.KeywordsMatched,
		Reasoning:                cls.Reasoning,
	})
	if err != nil {
		return err
	}

	out.Action = ActionUpdated
	out.Reason = fmt.Sprintf("%s -> %s", app.Status, next)
	return nil
}

// statusUpdate sets the new status and reminder and fills the fields the
// application does not have yet.
func (o *Orchestrator) statusUpdate(app *model.Application, next model.Status, intent model.Intent, ext model.ExtractionResult) model.ApplicationUpdate {
	upd := model.ApplicationUpdate{Status: &next}
	if delay, ok := classifier.ReminderDelay(intent); ok {
		at := o.now().UTC().Add(delay)
		upd.NextActionAt = &at
	}
	if app.Location == "" && ext.Location != "" {
		upd.Location = &ext.Location
	}
	if app.ContactName == "" && ext.ContactName != "" {
		upd.ContactName = &ext.ContactName
	}
	if app.ContactEmail == "" && ext.ContactEmail != "" {
		upd.ContactEmail = &ext.ContactEmail
	}
	if app.InterviewDate == nil && ext.Details.InterviewDate != nil {
		upd.InterviewDate = ext.Details.InterviewDate
	}
	if app.ResponseDeadline == nil && ext.Details.ResponseDeadline != nil {
		upd.ResponseDeadline = ext.Details.ResponseDeadline
	}
	return upd
}

func (o *Orchestrator) canCreate(cls model.ClassificationResult, ext model.ExtractionResult) bool {
	return ext.Confidence > o.thresholds.Creation &&
		strings.TrimSpace(ext.CompanyName) != "" &&
		strings.TrimSpace(ext.JobTitle) != "" &&
		cls.Intent == model.IntentAcknowledgment
}

func (o *Orchestrator) skipReason(cls model.ClassificationResult, ext model.ExtractionResult) string {
	switch {
	case ext.Confidence <= o.thresholds.Creation:
		return fmt.Sprintf("no match and extraction confidence %.2f too low", ext.Confidence)
	case ext.CompanyName == "" || ext.JobTitle == "":
		return "no match and company or job title missing"
	default:
		return fmt.Sprintf("no match and intent %s does not open an application", cls.Intent)
	}
}

func (o *Orchestrator) create(ctx context.Context, tx repository.Tx, msg model.Message, cls model.ClassificationResult, ext model.ExtractionResult, out *Outcome) error {
	initial, ok := classifier.SuggestedStatus(cls.Intent)
	if !ok {
		initial = model.StatusAcknowledged
	}

	app := &model.Application{
		OwnerID:          msg.OwnerID,
		CompanyName:      ext.CompanyName,
		JobTitle:         ext.JobTitle,
		Status:           initial,
		Location:         ext.Location,
		ContactName:      ext.ContactName,
		ContactEmail:     ext.ContactEmail,
		InterviewDate:    ext.Details.InterviewDate,
		ResponseDeadline: ext.Details.ResponseDeadline,
		JobReference:     ext.Details.JobReference,
		Urgency:          ext.Details.Urgency,
		Notes:            creationNotes(msg, ext),
		Source:           model.SourceAutoDetected,
	}
	if delay, ok := classifier.ReminderDelay(cls.Intent); ok {
		at := o.now().UTC().Add(delay)
		app.NextActionAt = &at
	}
	if err := tx.CreateApplication(ctx, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}

	linked, err := tx.LinkMessage(ctx, msg.ID, app.ID)
	if err != nil {
		return fmt.Errorf("link message: %w", err)
	}
	if !linked {
		return fmt.Errorf("%w: message %d", errAlreadyLinked, msg.ID)
	}
	err = o.appendEvent(ctx, tx, app.ID, msg.ID, model.ApplicationCreatedPayload{
		Status:                   app.Status,
		TriggeredByMessage:       msg.ID,
		Intent:                   cls.Intent,
		ClassificationConfidence: cls.Confidence,
		ExtractionConfidence:     ext.Confidence,
		Source:                   app.Source,
	})
	if err != nil {
		return err
	}

	out.Action = ActionCreated
	out.ApplicationID = &app.ID
	return nil
}

func (o *Orchestrator) appendEvent(ctx context.Context, tx repository.Tx, applicationID, messageID int64, payload model.EventPayload) error {
	event := &model.ApplicationEvent{
		ApplicationID: applicationID,
		MessageID:     &messageID,
		Payload:       payload,
	}
	if err := tx.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("append %s event: %w", payload.EventType(), err)
	}
	return nil
}

// Reprocess clears the message's classification and runs it through the
// pipeline again. Links and applied transitions are not repeated.
func (o *Orchestrator) Reprocess(ctx context.Context, messageID int64) (Outcome, error) {
	if o.locker != nil {
		if !o.locker.Acquire(ctx, lockScope, messageID) {
			return Outcome{MessageID: messageID, Action: ActionSkipped, Reason: "locked by another worker"}, nil
		}
		defer o.locker.Release(ctx, lockScope, messageID)
	}
	if err := o.store.ClearClassification(ctx, messageID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Outcome{MessageID: messageID, Action: ActionError}, ErrMessageNotFound
		}
		return Outcome{MessageID: messageID, Action: ActionError}, err
	}
	msg, err := o.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Outcome{MessageID: messageID, Action: ActionError}, ErrMessageNotFound
		}
		return Outcome{MessageID: messageID, Action: ActionError}, err
	}
	return o.ProcessMessage(ctx, *msg)
}

func creationNotes(msg model.Message, ext model.ExtractionResult) string {
	var b strings.Builder
	b.WriteString("Auto-detected from email.\n")
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	if !msg.ReceivedAt.IsZero() {
		fmt.Fprintf(&b, "Received: %s\n", msg.ReceivedAt.UTC().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(&b, "From: %s\n", msg.Sender)
	if len(ext.Details.TechKeywords) > 0 {
		fmt.Fprintf(&b, "Technologies: %s\n", strings.Join(ext.Details.TechKeywords, ", "))
	}
	if ext.Details.Salary != "" {
		fmt.Fprintf(&b, "Salary: %s\n", ext.Details.Salary)
	}
	if ext.Details.Urgency != "" && ext.Details.Urgency != model.UrgencyNormal {
		fmt.Fprintf(&b, "Urgency: %s\n", ext.Details.Urgency)
	}
	excerpt := msg.Snippet
	if excerpt == "" {
		excerpt = msg.Body
	}
	if excerpt = strings.TrimSpace(textnorm.Truncate(excerpt, 200)); excerpt != "" {
		fmt.Fprintf(&b, "Excerpt: %s\n", excerpt)
	}
	return strings.TrimRight(b.String(), "\n")
}
