// Package treatmentplan manages treatment plans and their ordered lists of
// prescribed exercises. Every entry point runs the access policy before it
// touches plan or prescribed exercise rows.
package treatmentplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
	"github.com/jwalitptl/physio-api/internal/service/authz"
	"github.com/jwalitptl/physio-api/internal/service/event"
	apperrors "github.com/jwalitptl/physio-api/pkg/errors"
)

// DefaultAppendAttempts bounds how often an append is retried after losing
// a position race.
const DefaultAppendAttempts = 5

type ProfileLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	GetPhysiotherapist(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	Patients(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Profile, error)
	Physiotherapists(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Profile, error)
}

type ExerciseLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*model.Exercise, error)
	GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Exercise, error)
	GetAll(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Exercise, error)
}

type EventEmitter interface {
	Emit(ctx context.Context, ch event.Change) error
}

type TreatmentPlanService interface {
	List(ctx context.Context, actor *model.Actor, filters model.TreatmentPlanFilters) ([]*model.TreatmentPlanResponse, error)
	Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.TreatmentPlanResponse, error)
	Create(ctx context.Context, actor *model.Actor, req *model.CreateTreatmentPlanRequest) (*model.TreatmentPlanResponse, error)
	Update(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.UpdateTreatmentPlanRequest) (*model.TreatmentPlanResponse, error)
	Delete(ctx context.Context, actor *model.Actor, id uuid.UUID) error
	ListExercises(ctx context.Context, actor *model.Actor, planID uuid.UUID) ([]*model.PrescribedExerciseResponse, error)
	AddExercise(ctx context.Context, actor *model.Actor, planID uuid.UUID, input *model.PrescribedExerciseInput) (*model.PrescribedExerciseResponse, error)
	RemoveExercise(ctx context.Context, actor *model.Actor, planID, itemID uuid.UUID) error
}

type Service struct {
	tx             repository.Transactor
	plans          repository.TreatmentPlanRepository
	items          repository.PlanExerciseRepository
	profiles       ProfileLookup
	exercises      ExerciseLookup
	events         EventEmitter
	appendAttempts int
	now            func() time.Time
}

func NewService(
	tx repository.Transactor,
	plans repository.TreatmentPlanRepository,
	items repository.PlanExerciseRepository,
	profiles ProfileLookup,
	exercises ExerciseLookup,
	events EventEmitter,
) *Service {
	return &Service{
		tx:             tx,
		plans:          plans,
		items:          items,
		profiles:       profiles,
		exercises:      exercises,
		events:         events,
		appendAttempts: DefaultAppendAttempts,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) List(ctx context.Context, actor *model.Actor, filters model.TreatmentPlanFilters) ([]*model.TreatmentPlanResponse, error) {
	if filters.Status != "" && !model.PlanStatus(filters.Status).Valid() {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid status %q", filters.Status), nil)
	}

	scoped, visible := authz.ScopeFilters(actor, filters)
	if !visible {
		return []*model.TreatmentPlanResponse{}, nil
	}

	plans, err := s.plans.List(ctx, &scoped)
	if err != nil {
		return nil, fmt.Errorf("failed to list treatment plans: %w", err)
	}
	return s.assemble(ctx, plans, nil)
}

func (s *Service) Get(ctx context.Context, actor *model.Actor, id uuid.UUID) (*model.TreatmentPlanResponse, error) {
	plan, err := s.getPlan(ctx, actor, authz.ActionRead, id)
	if err != nil {
		return nil, err
	}
	return s.assembleOne(ctx, plan, nil)
}

// Create stores the plan, its exercises, its event and its audit entry in
// one transaction. All references are checked first, so a missing patient,
// physiotherapist or exercise persists nothing.
func (s *Service) Create(ctx context.Context, actor *model.Actor, req *model.CreateTreatmentPlanRequest) (*model.TreatmentPlanResponse, error) {
	ownerID, err := authz.ResolvePlanOwner(actor, req.PhysiotherapistID)
	if err != nil {
		return nil, err
	}
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	if _, err := s.profiles.GetPatient(ctx, *req.PatientID); err != nil {
		return nil, err
	}
	if actor.Role == model.RoleAdmin {
		if _, err := s.profiles.GetPhysiotherapist(ctx, ownerID); err != nil {
			return nil, err
		}
	}

	exerciseIDs := make([]uuid.UUID, 0, len(req.Exercises))
	for _, in := range req.Exercises {
		exerciseIDs = append(exerciseIDs, *in.ExerciseID)
	}
	if len(exerciseIDs) > 0 {
		if _, err := s.exercises.GetAll(ctx, exerciseIDs); err != nil {
			return nil, err
		}
	}

	now := s.now()
	plan := &model.TreatmentPlan{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PatientID:         *req.PatientID,
		PhysiotherapistID: ownerID,
		Title:             req.Title,
		Description:       req.Description,
		Goals:             req.Goals,
		StartDate:         *req.StartDate,
		EndDate:           req.EndDate,
		Status:            model.PlanStatusActive,
	}

	items := make([]*model.PrescribedExercise, len(req.Exercises))
	for i := range req.Exercises {
		items[i] = newPrescribedExercise(plan.ID, &req.Exercises[i], now)
		items[i].OrderIndex = i + 1
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.plans.Create(ctx, plan); err != nil {
			return err
		}
		if len(items) > 0 {
			if err := s.items.BulkInsert(ctx, items); err != nil {
				return err
			}
		}
		return s.events.Emit(ctx, event.Change{
			Type:       model.EventTreatmentPlanCreated,
			Action:     model.AuditActionCreate,
			EntityType: model.AuditEntityTreatmentPlan,
			EntityID:   plan.ID,
			PlanID:     plan.ID,
			ActorID:    actor.UserID,
			Data:       planSnapshot{Plan: plan, Exercises: items},
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("referenced record", err)
		}
		return nil, fmt.Errorf("failed to create treatment plan: %w", err)
	}

	return s.assembleOne(ctx, plan, items)
}

func (s *Service) Update(ctx context.Context, actor *model.Actor, id uuid.UUID, req *model.UpdateTreatmentPlanRequest) (*model.TreatmentPlanResponse, error) {
	plan, err := s.getPlan(ctx, actor, authz.ActionUpdate, id)
	if err != nil {
		return nil, err
	}

	if err := applyUpdate(plan, req); err != nil {
		return nil, err
	}
	plan.UpdatedAt = s.now()

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.plans.Update(ctx, plan); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.Change{
			Type:       model.EventTreatmentPlanUpdated,
			Action:     model.AuditActionUpdate,
			EntityType: model.AuditEntityTreatmentPlan,
			EntityID:   plan.ID,
			PlanID:     plan.ID,
			ActorID:    actor.UserID,
			Data:       req,
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("treatment plan", err)
		}
		return nil, fmt.Errorf("failed to update treatment plan: %w", err)
	}

	return s.assembleOne(ctx, plan, nil)
}

// Delete removes the plan's exercises and then the plan in one transaction.
// The plan row is locked first so a concurrent append cannot slip a row in
// between. A plan that is still referenced afterwards is a store error, not
// a missing plan.
func (s *Service) Delete(ctx context.Context, actor *model.Actor, id uuid.UUID) error {
	plan, err := s.getPlan(ctx, actor, authz.ActionDelete, id)
	if err != nil {
		return err
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.plans.Lock(ctx, plan.ID); err != nil {
			return err
		}
		removed, err := s.items.DeleteByPlan(ctx, plan.ID)
		if err != nil {
			return err
		}
		if err := s.plans.Delete(ctx, plan.ID); err != nil {
			return err
		}
		return s.events.Emit(ctx, event.Change{
			Type:       model.EventTreatmentPlanDeleted,
			Action:     model.AuditActionDelete,
			EntityType: model.AuditEntityTreatmentPlan,
			EntityID:   plan.ID,
			PlanID:     plan.ID,
			ActorID:    actor.UserID,
			Data:       map[string]interface{}{"plan": plan, "exercises_removed": removed},
		})
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("treatment plan", err)
		}
		return fmt.Errorf("failed to delete treatment plan: %w", err)
	}
	return nil
}

// getPlan loads a plan and applies the policy for action.
func (s *Service) getPlan(ctx context.Context, actor *model.Actor, action authz.Action, id uuid.UUID) (*model.TreatmentPlan, error) {
	plan, err := s.plans.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("treatment plan", err)
		}
		return nil, fmt.Errorf("failed to get treatment plan: %w", err)
	}

	if err := authz.Check(actor, action, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// notFound names the entity a missing reference points at, falling back to
// resource.
func notFound(resource string, err error) error {
	var ref *repository.MissingReferenceError
	if errors.As(err, &ref) && ref.Entity != "record" {
		resource = ref.Entity
	}
	return apperrors.NotFound(resource, err)
}

type planSnapshot struct {
	Plan      *model.TreatmentPlan        `json:"plan"`
	Exercises []*model.PrescribedExercise `json:"exercises"`
}
