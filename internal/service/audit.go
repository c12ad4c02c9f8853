package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"parking-service/internal/domain/parking"
)

// AuditLog serves the gate event audit trail and enforces its retention.
type AuditLog struct {
	repo GateEventStore
	log  zerolog.Logger
	now  func() time.Time
}

func NewAuditLog(repo GateEventStore, log zerolog.Logger) *AuditLog {
	return &AuditLog{
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

func (a *AuditLog) WithClock(now func() time.Time) *AuditLog {
	a.now = now
	return a
}

func (a *AuditLog) List(ctx context.Context, filter parking.GateEventFilter) ([]parking.GateEvent, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, fmt.Errorf("%w: from must not be after to", parking.ErrInvalidInput)
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	events, err := a.repo.ListGateEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list gate events: %w", err)
	}
	return events, nil
}

// Cleanup removes audit rows older than retention.
func (a *AuditLog) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", parking.ErrInvalidInput)
	}

	cutoff := a.now().Add(-retention)
	deleted, err := a.repo.DeleteGateEventsBefore(ctx, cutoff)
	if err != nil {
		a.log.Error().Err(err).Dur("retention", retention).Msg("failed to cleanup old gate events")
		return 0, err
	}
	if deleted > 0 {
		a.log.Info().Int64("deleted_count", deleted).Time("cutoff", cutoff).Msg("cleaned up old gate events")
	}
	return deleted, nil
}

// RunRetention calls Cleanup every interval until ctx is done. A zero
// retention disables it.
func (a *AuditLog) RunRetention(ctx context.Context, retention, interval time.Duration) error {
	if retention <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		// Cleanup errors are logged and retried on the next tick.
		_, _ = a.Cleanup(ctx, retention)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
