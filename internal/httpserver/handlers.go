package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recruitrack/internal/model"
	"recruitrack/internal/service"
	"recruitrack/pkg/logger"
)

type BatchService interface {
	Submit(ctx context.Context, ownerID int64, limit int) (string, error)
	Batch(ctx context.Context, batchID string) (*service.BatchResult, bool, error)
	ProcessBatch(ctx context.Context, ownerID int64, limit int) (*service.BatchResult, error)
}

type Reprocessor interface {
	Reprocess(ctx context.Context, messageID int64) (service.Outcome, error)
}

type SummaryService interface {
	StatusSummary(ctx context.Context, ownerID int64) (*model.StatusSummary, error)
	ApplicationEvents(ctx context.Context, applicationID int64) ([]model.ApplicationEvent, error)
}

// OutboxReplayer requeues events the relay gave up on.
type OutboxReplayer interface {
	ReplayFailed(ctx context.Context, limit int) (int64, error)
}

type Handler struct {
	batches     BatchService
	reprocessor Reprocessor
	summaries   SummaryService
	outbox      OutboxReplayer
	logger      *zap.Logger
}

func NewHandler(batches BatchService, reprocessor Reprocessor, summaries SummaryService, logger *zap.Logger) *Handler {
	return &Handler{
		batches:     batches,
		reprocessor: reprocessor,
		summaries:   summaries,
		logger:      logger,
	}
}

func (h *Handler) WithOutboxReplayer(r OutboxReplayer) *Handler {
	h.outbox = r
	return h
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// TriggerBatch handles POST /owners/:owner_id/batches?limit=N[&wait=true]
func (h *Handler) TriggerBatch(c *gin.Context) {
	ownerID, ok := idParam(c, "owner_id")
	if !ok {
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger)

	if c.Query("wait") != "true" {
		batchID, err := h.batches.Submit(ctx, ownerID, limit)
		if err == nil {
			c.JSON(http.StatusAccepted, gin.H{"batch_id": batchID, "status": service.BatchRunning})
			return
		}
		if !errors.Is(err, service.ErrResultsUnavailable) {
			log.Error("Failed to submit batch", zap.Int64("owner_id", ownerID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to submit batch"})
			return
		}
	}

	result, err := h.batches.ProcessBatch(ctx, ownerID, limit)
	if err != nil {
		log.Error("Batch failed", zap.Int64("owner_id", ownerID), zap.Error(err))
		body := gin.H{"error": "batch failed"}
		if result != nil {
			body["batch_id"] = result.BatchID
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetBatch handles GET /batches/:batch_id
func (h *Handler) GetBatch(c *gin.Context) {
	result, found, err := h.batches.Batch(c.Request.Context(), c.Param("batch_id"))
	switch {
	case errors.Is(err, service.ErrResultsUnavailable):
		c.JSON(http.StatusNotImplemented, gin.H{"error": "batch results are not retained"})
	case err != nil:
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to load batch", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load batch"})
	case !found:
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
	default:
		c.JSON(http.StatusOK, result)
	}
}

// Reprocess handles POST /messages/:message_id/reprocess
func (h *Handler) Reprocess(c *gin.Context) {
	messageID, ok := idParam(c, "message_id")
	if !ok {
		return
	}
	out, err := h.reprocessor.Reprocess(c.Request.Context(), messageID)
	switch {
	case errors.Is(err, service.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, out)
	default:
		c.JSON(http.StatusOK, out)
	}
}

// StatusSummary handles GET /owners/:owner_id/summary
func (h *Handler) StatusSummary(c *gin.Context) {
	ownerID, ok := idParam(c, "owner_id")
	if !ok {
		return
	}
	summary, err := h.summaries.StatusSummary(c.Request.Context(), ownerID)
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to build summary", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build summary"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ApplicationEvents handles GET /applications/:application_id/events
func (h *Handler) ApplicationEvents(c *gin.Context) {
	appID, ok := idParam(c, "application_id")
	if !ok {
		return
	}
	events, err := h.summaries.ApplicationEvents(c.Request.Context(), appID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// ReplayOutbox handles POST /outbox/replay?limit=N
func (h *Handler) ReplayOutbox(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}
	n, err := h.outbox.ReplayFailed(c.Request.Context(), limit)
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to replay outbox events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replay events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"replayed": n})
}
