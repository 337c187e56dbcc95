package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "recruitrack/contracts/mq"
	"recruitrack/internal/service"
	"recruitrack/pkg/logger"
	"recruitrack/pkg/trace"
	"recruitrack/pkg/util"
)

type BatchProcessor interface {
	ProcessBatch(ctx context.Context, ownerID int64, limit int) (*service.BatchResult, error)
}

type DLQPublisher interface {
	PublishToDLQ(ctx context.Context, routingKey string, body []byte, originalError string) error
}

// MessagesIngestedHandler runs a batch for the owner named in a
// messages.ingested event.
type MessagesIngestedHandler struct {
	runner BatchProcessor
	dlq    DLQPublisher
	logger *zap.Logger
}

func NewMessagesIngestedHandler(runner BatchProcessor, dlq DLQPublisher, logger *zap.Logger) *MessagesIngestedHandler {
	return &MessagesIngestedHandler{
		runner: runner,
		dlq:    dlq,
		logger: logger,
	}
}

// Handle acks malformed payloads after parking them in the DLQ and requeues
// only when the batch could not start for a retryable reason.
func (h *MessagesIngestedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var payload mqcontracts.MessagesIngestedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		h.park(ctx, raw, fmt.Errorf("bad_payload: %w", err))
		return nil
	}
	if payload.OwnerID <= 0 {
		h.park(ctx, raw, errors.New("bad_payload: owner_id missing"))
		return nil
	}

	if payload.TraceID != "" {
		ctx = trace.WithContext(ctx, payload.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger)
	log.Info("Messages ingested",
		zap.Int64("owner_id", payload.OwnerID),
		zap.Int("count", payload.Count),
	)

	limit := max(payload.Count, len(payload.MessageIDs))
	result, err := h.runner.ProcessBatch(ctx, payload.OwnerID, limit)
	if err != nil {
		retryable, kind := util.ClassifyError(err)
		log.Error("Batch could not run",
			zap.Int64("owner_id", payload.OwnerID),
			zap.String("error_type", kind),
			zap.Bool("retryable", retryable),
			zap.Error(err),
		)
		if retryable {
			return err
		}
		return nil
	}

	log.Info("Batch finished for ingested messages",
		zap.String("batch_id", result.BatchID),
		zap.Int("processed", result.Processed),
		zap.Int("errors", len(result.Errors)),
	)
	return nil
}

func (h *MessagesIngestedHandler) park(ctx context.Context, raw json.RawMessage, cause error) {
	h.logger.Error("Invalid messages.ingested payload, sending to DLQ",
		zap.String("raw", string(raw)),
		zap.Error(cause),
	)
	if h.dlq == nil {
		return
	}
	if err := h.dlq.PublishToDLQ(ctx, mqcontracts.RoutingKeyMessagesIngested, raw, cause.Error()); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.Error(err))
	}
}
