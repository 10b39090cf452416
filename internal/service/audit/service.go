package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
)

type requestInfoKey struct{}

// RequestInfo is the client address and agent recorded with each entry.
type RequestInfo struct {
	IPAddress string
	UserAgent string
}

// WithRequestInfo stores info on ctx for Log to pick up.
func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

func RequestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

type Service struct {
	repo repository.AuditRepository
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

type LogOptions struct {
	Changes  interface{}
	Metadata interface{}
}

// Log creates an audit log entry. It joins the caller's transaction when
// ctx carries one.
func (s *Service) Log(ctx context.Context, userID uuid.UUID, action, entityType string, entityID uuid.UUID, opts *LogOptions) error {
	var changes, metadata json.RawMessage
	var err error

	if opts != nil {
		if opts.Changes != nil {
			if changes, err = json.Marshal(opts.Changes); err != nil {
				return fmt.Errorf("failed to marshal audit changes: %w", err)
			}
		}
		if opts.Metadata != nil {
			if metadata, err = json.Marshal(opts.Metadata); err != nil {
				return fmt.Errorf("failed to marshal audit metadata: %w", err)
			}
		}
	}

	info := RequestInfoFrom(ctx)
	entry := &model.AuditLog{
		ID:         uuid.New(),
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
		Metadata:   metadata,
		IPAddress:  info.IPAddress,
		UserAgent:  info.UserAgent,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}
