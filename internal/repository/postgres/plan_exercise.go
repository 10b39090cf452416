package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
)

const planExerciseColumns = `
	id, treatment_plan_id, exercise_id, sets, repetitions, duration,
	notes, order_index, created_at`

type planExerciseRepository struct {
	*BaseRepository
}

func NewPlanExerciseRepository(base *BaseRepository) repository.PlanExerciseRepository {
	return &planExerciseRepository{base}
}

func (r *planExerciseRepository) BulkInsert(ctx context.Context, items []*model.PrescribedExercise) error {
	query := `
		INSERT INTO treatment_plan_exercises (` + planExerciseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	conn := r.conn(ctx)
	for _, item := range items {
		_, err := conn.ExecContext(ctx, query,
			item.ID,
			item.TreatmentPlanID,
			item.ExerciseID,
			item.Sets,
			item.Repetitions,
			item.Duration,
			item.Notes,
			item.OrderIndex,
			item.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert prescribed exercise %d: %w", item.OrderIndex, mapError(err))
		}
	}
	return nil
}

// Append computes the next position and inserts in one statement. The
// (treatment_plan_id, order_index) unique constraint turns a lost race into
// ErrConflict instead of a duplicate position.
func (r *planExerciseRepository) Append(ctx context.Context, item *model.PrescribedExercise) error {
	query := `
		INSERT INTO treatment_plan_exercises (` + planExerciseColumns + `)
		SELECT $1::uuid, $2::uuid, $3::uuid, $4::int, $5::int, $6::int, $7::text,
			COALESCE(MAX(order_index), 0) + 1, $8::timestamptz
		FROM treatment_plan_exercises
		WHERE treatment_plan_id = $2::uuid
		RETURNING order_index
	`

	err := sqlx.GetContext(ctx, r.conn(ctx), &item.OrderIndex, query,
		item.ID,
		item.TreatmentPlanID,
		item.ExerciseID,
		item.Sets,
		item.Repetitions,
		item.Duration,
		item.Notes,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append prescribed exercise: %w", mapError(err))
	}
	return nil
}

func (r *planExerciseRepository) Get(ctx context.Context, planID, id uuid.UUID) (*model.PrescribedExercise, error) {
	query := `
		SELECT ` + planExerciseColumns + `
		FROM treatment_plan_exercises
		WHERE id = $1 AND treatment_plan_id = $2
	`

	var item model.PrescribedExercise
	if err := sqlx.GetContext(ctx, r.conn(ctx), &item, query, id, planID); err != nil {
		return nil, fmt.Errorf("failed to get prescribed exercise: %w", mapError(err))
	}
	return &item, nil
}

// Delete removes one row scoped to its plan. Remaining rows keep their
// positions.
func (r *planExerciseRepository) Delete(ctx context.Context, planID, id uuid.UUID) error {
	query := `DELETE FROM treatment_plan_exercises WHERE id = $1 AND treatment_plan_id = $2`

	result, err := r.conn(ctx).ExecContext(ctx, query, id, planID)
	if err != nil {
		return fmt.Errorf("failed to delete prescribed exercise: %w", mapDeleteError(err))
	}
	if err := expectAffected(result); err != nil {
		return fmt.Errorf("failed to delete prescribed exercise: %w", err)
	}
	return nil
}

func (r *planExerciseRepository) DeleteByPlan(ctx context.Context, planID uuid.UUID) (int64, error) {
	result, err := r.conn(ctx).ExecContext(ctx,
		`DELETE FROM treatment_plan_exercises WHERE treatment_plan_id = $1`, planID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete plan exercises: %w", mapDeleteError(err))
	}
	return result.RowsAffected()
}

func (r *planExerciseRepository) ListByPlan(ctx context.Context, planID uuid.UUID) ([]*model.PrescribedExercise, error) {
	query := `
		SELECT ` + planExerciseColumns + `
		FROM treatment_plan_exercises
		WHERE treatment_plan_id = $1
		ORDER BY order_index ASC
	`

	items := []*model.PrescribedExercise{}
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &items, query, planID); err != nil {
		return nil, fmt.Errorf("failed to list plan exercises: %w", mapError(err))
	}
	return items, nil
}

func (r *planExerciseRepository) ListByPlans(ctx context.Context, planIDs []uuid.UUID) ([]*model.PrescribedExercise, error) {
	items := []*model.PrescribedExercise{}
	if len(planIDs) == 0 {
		return items, nil
	}

	query := `
		SELECT ` + planExerciseColumns + `
		FROM treatment_plan_exercises
		WHERE treatment_plan_id = ANY($1::uuid[])
		ORDER BY treatment_plan_id, order_index ASC
	`

	if err := sqlx.SelectContext(ctx, r.conn(ctx), &items, query, uuidArray(planIDs)); err != nil {
		return nil, fmt.Errorf("failed to list plan exercises: %w", mapError(err))
	}
	return items, nil
}
