package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
)

type auditRepository struct {
	*BaseRepository
}

func NewAuditRepository(base *BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, log *model.AuditLog) error {
	query := `
        INSERT INTO audit_logs (
            id, user_id, action, entity_type, entity_id,
            changes, metadata, ip_address, user_agent, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `

	_, err := r.conn(ctx).ExecContext(ctx, query,
		log.ID,
		log.UserID,
		log.Action,
		log.EntityType,
		log.EntityID,
		nullableJSON(log.Changes),
		nullableJSON(log.Metadata),
		log.IPAddress,
		log.UserAgent,
		log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", mapError(err))
	}
	return nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	query := `
        DELETE FROM audit_logs
        WHERE created_at < $1
    `

	result, err := r.conn(ctx).ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup audit logs: %w", err)
	}

	return result.RowsAffected()
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
