package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
)

type outboxRepository struct {
	*BaseRepository
}

func NewOutboxRepository(base *BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	query := `
		INSERT INTO outbox_events (
			id, event_type, payload, status, retry_count, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	event.Status = model.OutboxStatusPending

	_, err := r.conn(ctx).ExecContext(ctx, query,
		event.ID,
		event.EventType,
		[]byte(event.Payload),
		event.Status,
		event.RetryCount,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox event: %w", mapError(err))
	}
	return nil
}

// GetPendingEventsWithLock must run inside WithTx; the row locks are held
// until that transaction ends.
func (r *outboxRepository) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	query := `
		SELECT id, event_type, payload, status, error_message, retry_count,
			retry_at, created_at, processed_at, updated_at
		FROM outbox_events
		WHERE status IN ('pending', 'retry')
		AND (retry_at IS NULL OR retry_at <= NOW())
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`

	events := []*model.OutboxEvent{}
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &events, query, limit); err != nil {
		return nil, fmt.Errorf("failed to get pending events: %w", mapError(err))
	}
	return events, nil
}

func (r *outboxRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM outbox_events WHERE status IN ('pending', 'retry')`
	if err := sqlx.GetContext(ctx, r.conn(ctx), &count, query); err != nil {
		return 0, fmt.Errorf("failed to count pending events: %w", mapError(err))
	}
	return count, nil
}

func (r *outboxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error {
	query := `
		UPDATE outbox_events
		SET status = $1,
			error_message = $2,
			retry_at = $3,
			retry_count = CASE WHEN $1 = 'retry' THEN retry_count + 1 ELSE retry_count END,
			processed_at = CASE WHEN $1 = 'processed' THEN NOW() ELSE processed_at END,
			updated_at = NOW()
		WHERE id = $4
	`
	if _, err := r.conn(ctx).ExecContext(ctx, query, status, errorMessage, retryAt, id); err != nil {
		return fmt.Errorf("failed to update event status: %w", mapError(err))
	}
	return nil
}

func (r *outboxRepository) MoveToDeadLetter(ctx context.Context, event *model.OutboxEvent) error {
	insert := `
		INSERT INTO outbox_events_deadletter (
			event_id, event_type, payload, error_message,
			retry_count, last_retry_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
	`
	conn := r.conn(ctx)
	if _, err := conn.ExecContext(ctx, insert, event.ID, event.EventType, []byte(event.Payload),
		event.ErrorMessage, event.RetryCount, event.RetryAt); err != nil {
		return fmt.Errorf("failed to dead-letter event: %w", mapError(err))
	}

	if _, err := conn.ExecContext(ctx, `UPDATE outbox_events SET status = $1, updated_at = NOW() WHERE id = $2`,
		model.OutboxStatusFailed, event.ID); err != nil {
		return fmt.Errorf("failed to mark event failed: %w", mapError(err))
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM outbox_events
		WHERE status = 'processed'
		AND processed_at < $1
	`
	result, err := r.conn(ctx).ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete processed events: %w", err)
	}

	return result.RowsAffected()
}
