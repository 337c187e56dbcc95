package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"recruitrack/internal/model"
	"recruitrack/internal/repository"
	"recruitrack/pkg/logger"
	"recruitrack/pkg/metrics"
	"recruitrack/pkg/trace"
	"recruitrack/pkg/util"
)

const lockScope = "message"

var (
	ErrResultsUnavailable = errors.New("batch result store not configured")
	ErrInvalidLimit       = errors.New("limit must be positive")
)

type MessageProcessor interface {
	ProcessMessage(ctx context.Context, msg model.Message) (Outcome, error)
}

type Locker interface {
	Acquire(ctx context.Context, scope string, id int64) bool
	Release(ctx context.Context, scope string, id int64)
}

// AttemptCounter counts failed attempts per message.
type AttemptCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Get(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

type BatchError struct {
	MessageID int64  `json:"message_id"`
	Error     string `json:"error"`
	Kind      string `json:"kind"`
}

type BatchResult struct {
	BatchID    string       `json:"batch_id"`
	OwnerID    int64        `json:"owner_id"`
	Status     BatchStatus  `json:"status"`
	Processed  int          `json:"processed"`
	Created    int          `json:"created"`
	Updated    int          `json:"updated"`
	Linked     int          `json:"linked"`
	Skipped    int          `json:"skipped"`
	Errors     []BatchError `json:"errors"`
	Details    []Outcome    `json:"details"`
	Failure    string       `json:"failure,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
}

func (r *BatchResult) record(o Outcome) {
	r.Details = append(r.Details, o)
	switch o.Action {
	case ActionCreated:
		r.Created++
	case ActionUpdated:
		r.Updated++
	case ActionLinked:
		r.Linked++
	case ActionSkipped:
		r.Skipped++
	case ActionError:
		r.Errors = append(r.Errors, BatchError{MessageID: o.MessageID, Error: o.Error, Kind: o.ErrorKind})
		return
	}
	r.Processed++
}

type BatchConfig struct {
	DefaultLimit int
	MaxLimit     int
	// MaxAttempts failed runs quarantine a message.
	MaxAttempts int64
	ResultTTL   time.Duration
}

func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		DefaultLimit: 50,
		MaxLimit:     500,
		MaxAttempts:  3,
		ResultTTL:    time.Hour,
	}
}

type BatchRunner struct {
	store     repository.Store
	processor MessageProcessor
	locker    Locker
	attempts  AttemptCounter
	results   util.TTLStore
	cfg       BatchConfig
	logger    *zap.Logger

	wg sync.WaitGroup
}

type BatchOption func(*BatchRunner)

func WithLocker(l Locker) BatchOption {
	return func(r *BatchRunner) { r.locker = l }
}

func WithAttemptCounter(c AttemptCounter) BatchOption {
	return func(r *BatchRunner) { r.attempts = c }
}

func WithResultStore(s util.TTLStore) BatchOption {
	return func(r *BatchRunner) { r.results = s }
}

func NewBatchRunner(store repository.Store, processor MessageProcessor, cfg BatchConfig, logger *zap.Logger, opts ...BatchOption) *BatchRunner {
	defaults := DefaultBatchConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaults.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = defaults.MaxLimit
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = defaults.ResultTTL
	}
	r := &BatchRunner{
		store:     store,
		processor: processor,
		cfg:       cfg,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *BatchRunner) clampLimit(limit int) int {
	if limit <= 0 {
		return r.cfg.DefaultLimit
	}
	return min(limit, r.cfg.MaxLimit)
}

// ProcessBatch runs up to limit pending messages of the owner, newest first,
// one at a time. Per-message failures are recorded in the result; an error is
// returned only when the messages cannot be fetched.
func (r *BatchRunner) ProcessBatch(ctx context.Context, ownerID int64, limit int) (*BatchResult, error) {
	return r.run(ctx, uuid.NewString(), ownerID, limit)
}

func (r *BatchRunner) run(ctx context.Context, batchID string, ownerID int64, limit int) (*BatchResult, error) {
	ctx, _ = trace.Ensure(ctx)
	log := logger.WithTrace(ctx, r.logger).With(zap.String("batch_id", batchID), zap.Int64("owner_id", ownerID))

	start := time.Now()
	result := &BatchResult{
		BatchID:   batchID,
		OwnerID:   ownerID,
		Status:    BatchRunning,
		Errors:    []BatchError{},
		Details:   []Outcome{},
		StartedAt: start.UTC(),
	}
	defer func() {
		metrics.RecordBatchDuration(time.Since(start))
		finished := time.Now().UTC()
		result.FinishedAt = &finished
		r.saveResult(ctx, result)
	}()

	messages, err := r.store.FetchNewMessages(ctx, ownerID, r.clampLimit(limit))
	if err != nil {
		result.Status = BatchFailed
		result.Failure = err.Error()
		log.Error("Failed to fetch new messages", zap.Error(err))
		return result, fmt.Errorf("fetch new messages: %w", err)
	}

	log.Info("Batch started", zap.Int("messages", len(messages)))
	for _, msg := range messages {
		result.record(r.processOne(ctx, msg, log))
	}
	result.Status = BatchCompleted

	log.Info("Batch completed",
		zap.Int("processed", result.Processed),
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("linked", result.Linked),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

func (r *BatchRunner) processOne(ctx context.Context, msg model.Message, log *zap.Logger) Outcome {
	retryKey := util.FormatRetryKey(lockScope, msg.ID)

	if r.attempts != nil {
		if n, err := r.attempts.Get(ctx, retryKey); err == nil && n >= r.cfg.MaxAttempts {
			log.Warn("Skipping quarantined message", zap.Int64("message_id", msg.ID), zap.Int64("attempts", n))
			r.quarantine(ctx, msg.ID, log)
			return Outcome{MessageID: msg.ID, Action: ActionSkipped, Reason: "quarantined"}
		}
	}

	if r.locker != nil {
		if !r.locker.Acquire(ctx, lockScope, msg.ID) {
			return Outcome{MessageID: msg.ID, Action: ActionSkipped, Reason: "locked by another worker"}
		}
		defer r.locker.Release(ctx, lockScope, msg.ID)
	}

	out, err := r.processor.ProcessMessage(ctx, msg)
	if err != nil {
		if out.Action != ActionError {
			_, kind := util.ClassifyError(err)
			out = Outcome{MessageID: msg.ID, Action: ActionError, Error: err.Error(), ErrorKind: kind}
		}
		if r.attempts != nil {
			if n, cErr := r.attempts.IncrementAndGet(ctx, retryKey); cErr == nil && n >= r.cfg.MaxAttempts {
				log.Warn("Message quarantined after repeated failures",
					zap.Int64("message_id", msg.ID),
					zap.Int64("attempts", n),
				)
				r.quarantine(ctx, msg.ID, log)
			}
		}
		return out
	}

	if r.attempts != nil {
		if err := r.attempts.Reset(ctx, retryKey); err != nil {
			log.Debug("Failed to reset attempt counter", zap.Int64("message_id", msg.ID), zap.Error(err))
		}
	}
	return out
}

// quarantine parks the message in the store so it stops taking a batch slot.
func (r *BatchRunner) quarantine(ctx context.Context, messageID int64, log *zap.Logger) {
	if err := r.store.QuarantineMessage(context.WithoutCancel(ctx), messageID); err != nil {
		log.Error("Failed to quarantine message", zap.Int64("message_id", messageID), zap.Error(err))
	}
}

func (r *BatchRunner) saveResult(ctx context.Context, result *BatchResult) {
	if r.results == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		r.logger.Error("Failed to encode batch result", zap.String("batch_id", result.BatchID), zap.Error(err))
		return
	}
	if err := r.results.Put(context.WithoutCancel(ctx), result.BatchID, data, r.cfg.ResultTTL); err != nil {
		r.logger.Warn("Failed to store batch result", zap.String("batch_id", result.BatchID), zap.Error(err))
	}
}

// Submit starts a batch in the background and returns its id. The result,
// running or finished, can be read back with Batch until it expires.
func (r *BatchRunner) Submit(ctx context.Context, ownerID int64, limit int) (string, error) {
	if r.results == nil {
		return "", ErrResultsUnavailable
	}
	if limit < 0 {
		return "", ErrInvalidLimit
	}

	batchID := uuid.NewString()
	pending := &BatchResult{
		BatchID:   batchID,
		OwnerID:   ownerID,
		Status:    BatchRunning,
		Errors:    []BatchError{},
		Details:   []Outcome{},
		StartedAt: time.Now().UTC(),
	}
	r.saveResult(ctx, pending)

	runCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.run(runCtx, batchID, ownerID, limit); err != nil {
			r.logger.Error("Background batch failed", zap.String("batch_id", batchID), zap.Error(err))
		}
	}()
	return batchID, nil
}

// Batch returns a stored batch result; found is false once it expired.
func (r *BatchRunner) Batch(ctx context.Context, batchID string) (*BatchResult, bool, error) {
	if r.results == nil {
		return nil, false, ErrResultsUnavailable
	}
	data, found, err := r.results.Get(ctx, batchID)
	if err != nil || !found {
		return nil, found, err
	}
	var result BatchResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("decode batch result: %w", err)
	}
	return &result, true, nil
}

// RunPending processes one batch for every owner with pending messages.
func (r *BatchRunner) RunPending(ctx context.Context) (int, error) {
	owners, err := r.store.ListPendingOwners(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending owners: %w", err)
	}
	total := 0
	for _, owner := range owners {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		result, err := r.ProcessBatch(ctx, owner, r.cfg.DefaultLimit)
		if err != nil {
			r.logger.Error("Batch failed", zap.Int64("owner_id", owner), zap.Error(err))
			continue
		}
		total += result.Processed
	}
	return total, nil
}

// Wait blocks until every submitted batch has finished.
func (r *BatchRunner) Wait() {
	r.wg.Wait()
}
