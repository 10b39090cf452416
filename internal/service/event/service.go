package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
	"github.com/jwalitptl/physio-api/internal/service/audit"
)

// Change describes one successful mutation.
type Change struct {
	Type       string
	Action     string
	EntityType string
	EntityID   uuid.UUID
	PlanID     uuid.UUID
	ActorID    uuid.UUID
	// Data is the affected row; it becomes the event payload and the audit
	// changes.
	Data interface{}
}

// Payload is the JSON body of every treatment plan outbox event.
type Payload struct {
	TreatmentPlanID uuid.UUID   `json:"treatment_plan_id"`
	ActorUserID     uuid.UUID   `json:"actor_user_id"`
	Data            interface{} `json:"data,omitempty"`
}

type EventService struct {
	outboxRepo repository.OutboxRepository
	auditor    *audit.Service
}

func NewEventService(outboxRepo repository.OutboxRepository, auditor *audit.Service) *EventService {
	return &EventService{
		outboxRepo: outboxRepo,
		auditor:    auditor,
	}
}

// Emit writes the outbox event and the audit entry for ch. Call it inside
// the transaction that made the change so both commit or neither does.
func (s *EventService) Emit(ctx context.Context, ch Change) error {
	payload, err := json.Marshal(Payload{
		TreatmentPlanID: ch.PlanID,
		ActorUserID:     ch.ActorID,
		Data:            ch.Data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	event := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: ch.Type,
		Payload:   payload,
	}
	if err := s.outboxRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("failed to create outbox event: %w", err)
	}

	return s.auditor.Log(ctx, ch.ActorID, ch.Action, ch.EntityType, ch.EntityID, &audit.LogOptions{
		Changes:  ch.Data,
		Metadata: map[string]interface{}{"event_id": event.ID, "event_type": ch.Type},
	})
}
