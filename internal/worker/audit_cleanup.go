package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/physio-api/internal/repository"
)

type AuditCleanupWorker struct {
	repo            repository.AuditRepository
	retentionDays   int
	cleanupInterval time.Duration
	now             func() time.Time
}

func NewAuditCleanupWorker(repo repository.AuditRepository, retentionDays int, cleanupInterval time.Duration) *AuditCleanupWorker {
	return &AuditCleanupWorker{
		repo:            repo,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
	}
}

func (w *AuditCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	log.Info().
		Int("retention_days", w.retentionDays).
		Dur("interval", w.cleanupInterval).
		Msg("Starting audit cleanup worker")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.cleanup(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Audit cleanup failed")
			}
		}
	}
}

func (w *AuditCleanupWorker) cleanup(ctx context.Context) error {
	cutoff := w.now().AddDate(0, 0, -w.retentionDays)

	rows, err := w.repo.Cleanup(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	log.Info().Int64("rows", rows).Time("cutoff", cutoff).Msg("Cleaned up audit logs")
	return nil
}
