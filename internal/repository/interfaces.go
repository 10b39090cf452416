package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/physio-api/internal/model"
)

var (
	// ErrNotFound is returned when a row (or a referenced row) does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
)

// MissingReferenceError is returned when a write names a row that does not
// exist. It matches ErrNotFound.
type MissingReferenceError struct {
	Entity     string
	Constraint string
}

func (e *MissingReferenceError) Error() string {
	return fmt.Sprintf("referenced %s not found: %s", e.Entity, e.Constraint)
}

func (e *MissingReferenceError) Is(target error) bool {
	return target == ErrNotFound
}

// All repository interfaces in one file
type (
	// Transactor runs fn in a single database transaction. Repositories
	// called with the ctx passed to fn take part in that transaction.
	Transactor interface {
		WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	}

	TreatmentPlanRepository interface {
		Create(ctx context.Context, plan *model.TreatmentPlan) error
		Get(ctx context.Context, id uuid.UUID) (*model.TreatmentPlan, error)
		// Lock takes a row lock on the plan for the rest of the transaction.
		// Appends to a locked plan wait for it.
		Lock(ctx context.Context, id uuid.UUID) error
		Update(ctx context.Context, plan *model.TreatmentPlan) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filters *model.TreatmentPlanFilters) ([]*model.TreatmentPlan, error)
	}

	// PlanExerciseRepository owns the ordered treatment_plan_exercises rows.
	PlanExerciseRepository interface {
		// BulkInsert stores items with the OrderIndex already set on each.
		BulkInsert(ctx context.Context, items []*model.PrescribedExercise) error
		// Append stores item after the plan's current last position and
		// sets item.OrderIndex. Returns ErrConflict when a concurrent append
		// took the same position.
		Append(ctx context.Context, item *model.PrescribedExercise) error
		Get(ctx context.Context, planID, id uuid.UUID) (*model.PrescribedExercise, error)
		Delete(ctx context.Context, planID, id uuid.UUID) error
		DeleteByPlan(ctx context.Context, planID uuid.UUID) (int64, error)
		ListByPlan(ctx context.Context, planID uuid.UUID) ([]*model.PrescribedExercise, error)
		ListByPlans(ctx context.Context, planIDs []uuid.UUID) ([]*model.PrescribedExercise, error)
	}

	ExerciseRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Exercise, error)
		ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Exercise, error)
	}

	ProfileRepository interface {
		GetPatient(ctx context.Context, id uuid.UUID) (*model.Profile, error)
		GetPhysiotherapist(ctx context.Context, id uuid.UUID) (*model.Profile, error)
		GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
		GetPhysiotherapistByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
		ListPatients(ctx context.Context, ids []uuid.UUID) ([]*model.Profile, error)
		ListPhysiotherapists(ctx context.Context, ids []uuid.UUID) ([]*model.Profile, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		CountPending(ctx context.Context) (int64, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string, retryAt *time.Time) error
		MoveToDeadLetter(ctx context.Context, event *model.OutboxEvent) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}
)
