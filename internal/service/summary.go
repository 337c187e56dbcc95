package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"recruitrack/internal/model"
	"recruitrack/internal/repository"
)

// Summarizer reports how an owner's applications and messages stand.
type Summarizer struct {
	store  repository.Store
	logger *zap.Logger
}

func NewSummarizer(store repository.Store, logger *zap.Logger) *Summarizer {
	return &Summarizer{store: store, logger: logger}
}

func (s *Summarizer) StatusSummary(ctx context.Context, ownerID int64) (*model.StatusSummary, error) {
	summary, err := s.store.StatusSummary(ctx, ownerID)
	if err != nil {
		s.logger.Error("Failed to build status summary", zap.Int64("owner_id", ownerID), zap.Error(err))
		return nil, fmt.Errorf("status summary for owner %d: %w", ownerID, err)
	}
	for _, st := range model.AllStatuses {
		if _, ok := summary.ByStatus[st]; !ok {
			summary.ByStatus[st] = 0
		}
	}
	return summary, nil
}

// ApplicationEvents returns the audit trail of one application, oldest first.
func (s *Summarizer) ApplicationEvents(ctx context.Context, applicationID int64) ([]model.ApplicationEvent, error) {
	events, err := s.store.ListEvents(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("events for application %d: %w", applicationID, err)
	}
	return events, nil
}
