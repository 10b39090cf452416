package treatmentplan

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
	"github.com/jwalitptl/physio-api/internal/service/authz"
	"github.com/jwalitptl/physio-api/internal/service/event"
	apperrors "github.com/jwalitptl/physio-api/pkg/errors"
)

func (s *Service) ListExercises(ctx context.Context, actor *model.Actor, planID uuid.UUID) ([]*model.PrescribedExerciseResponse, error) {
	plan, err := s.getPlan(ctx, actor, authz.ActionRead, planID)
	if err != nil {
		return nil, err
	}

	items, err := s.items.ListByPlan(ctx, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plan exercises: %w", err)
	}
	return s.assembleItems(ctx, items)
}

// AddExercise appends one exercise after the plan's current last position.
// Losing a position race to a concurrent append retries the whole
// transaction.
func (s *Service) AddExercise(ctx context.Context, actor *model.Actor, planID uuid.UUID, input *model.PrescribedExerciseInput) (*model.PrescribedExerciseResponse, error) {
	plan, err := s.getPlan(ctx, actor, authz.ActionManageExercises, planID)
	if err != nil {
		return nil, err
	}
	if err := validateExerciseInput("", input); err != nil {
		return nil, err
	}

	exercise, err := s.exercises.Get(ctx, *input.ExerciseID)
	if err != nil {
		return nil, err
	}

	item := newPrescribedExercise(plan.ID, input, s.now())

	for attempt := 1; ; attempt++ {
		err = s.tx.WithTx(ctx, func(ctx context.Context) error {
			if err := s.items.Append(ctx, item); err != nil {
				return err
			}
			return s.events.Emit(ctx, event.Change{
				Type:       model.EventPlanExerciseAdded,
				Action:     model.AuditActionCreate,
				EntityType: model.AuditEntityPrescribedExercise,
				EntityID:   item.ID,
				PlanID:     plan.ID,
				ActorID:    actor.UserID,
				Data:       item,
			})
		})
		if err == nil || !errors.Is(err, repository.ErrConflict) || attempt >= s.appendAttempts {
			break
		}
		log.Debug().
			Str("treatment_plan_id", plan.ID.String()).
			Int("attempt", attempt).
			Msg("Order index conflict, retrying append")
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("treatment plan", err)
		}
		return nil, fmt.Errorf("failed to add exercise to treatment plan: %w", err)
	}

	return buildExerciseResponse(item, exercise), nil
}

// RemoveExercise deletes one prescribed exercise of the plan. Positions of
// the remaining rows are left as they are.
func (s *Service) RemoveExercise(ctx context.Context, actor *model.Actor, planID, itemID uuid.UUID) error {
	plan, err := s.getPlan(ctx, actor, authz.ActionManageExercises, planID)
	if err != nil {
		return err
	}

	item, err := s.items.Get(ctx, plan.ID, itemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("prescribed exercise", err)
		}
		return fmt.Errorf("failed to get prescribed exercise: %w", err)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.items.Delete(ctx, plan.ID, item.ID); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.Change{
			Type:       model.EventPlanExerciseRemoved,
			Action:     model.AuditActionDelete,
			EntityType: model.AuditEntityPrescribedExercise,
			EntityID:   item.ID,
			PlanID:     plan.ID,
			ActorID:    actor.UserID,
			Data:       item,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("prescribed exercise", err)
		}
		return fmt.Errorf("failed to remove exercise from treatment plan: %w", err)
	}
	return nil
}
