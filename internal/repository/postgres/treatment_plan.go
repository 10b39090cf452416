package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
)

const treatmentPlanColumns = `
	id, patient_id, physiotherapist_id, title, description, goals,
	start_date, end_date, status, created_at, updated_at`

type treatmentPlanRepository struct {
	*BaseRepository
}

func NewTreatmentPlanRepository(base *BaseRepository) repository.TreatmentPlanRepository {
	return &treatmentPlanRepository{base}
}

func (r *treatmentPlanRepository) Create(ctx context.Context, plan *model.TreatmentPlan) error {
	query := `
		INSERT INTO treatment_plans (` + treatmentPlanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.conn(ctx).ExecContext(ctx, query,
		plan.ID,
		plan.PatientID,
		plan.PhysiotherapistID,
		plan.Title,
		plan.Description,
		plan.Goals,
		plan.StartDate,
		plan.EndDate,
		plan.Status,
		plan.CreatedAt,
		plan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create treatment plan: %w", mapError(err))
	}
	return nil
}

func (r *treatmentPlanRepository) Get(ctx context.Context, id uuid.UUID) (*model.TreatmentPlan, error) {
	query := `SELECT ` + treatmentPlanColumns + ` FROM treatment_plans WHERE id = $1`

	var plan model.TreatmentPlan
	if err := sqlx.GetContext(ctx, r.conn(ctx), &plan, query, id); err != nil {
		return nil, fmt.Errorf("failed to get treatment plan: %w", mapError(err))
	}
	return &plan, nil
}

func (r *treatmentPlanRepository) Lock(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	query := `SELECT id FROM treatment_plans WHERE id = $1 FOR UPDATE`
	if err := sqlx.GetContext(ctx, r.conn(ctx), &locked, query, id); err != nil {
		return fmt.Errorf("failed to lock treatment plan: %w", mapError(err))
	}
	return nil
}

func (r *treatmentPlanRepository) Update(ctx context.Context, plan *model.TreatmentPlan) error {
	query := `
		UPDATE treatment_plans
		SET title = $1, description = $2, goals = $3, start_date = $4,
			end_date = $5, status = $6, updated_at = $7
		WHERE id = $8
	`

	result, err := r.conn(ctx).ExecContext(ctx, query,
		plan.Title,
		plan.Description,
		plan.Goals,
		plan.StartDate,
		plan.EndDate,
		plan.Status,
		plan.UpdatedAt,
		plan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update treatment plan: %w", mapError(err))
	}
	if err := expectAffected(result); err != nil {
		return fmt.Errorf("failed to update treatment plan: %w", err)
	}
	return nil
}

func (r *treatmentPlanRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.conn(ctx).ExecContext(ctx, `DELETE FROM treatment_plans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete treatment plan: %w", mapDeleteError(err))
	}
	if err := expectAffected(result); err != nil {
		return fmt.Errorf("failed to delete treatment plan: %w", err)
	}
	return nil
}

func (r *treatmentPlanRepository) List(ctx context.Context, filters *model.TreatmentPlanFilters) ([]*model.TreatmentPlan, error) {
	query := `SELECT ` + treatmentPlanColumns + ` FROM treatment_plans WHERE 1=1`
	var args []interface{}

	if filters != nil {
		if filters.PatientID != nil {
			args = append(args, *filters.PatientID)
			query += fmt.Sprintf(" AND patient_id = $%d", len(args))
		}
		if filters.PhysiotherapistID != nil {
			args = append(args, *filters.PhysiotherapistID)
			query += fmt.Sprintf(" AND physiotherapist_id = $%d", len(args))
		}
		if filters.Status != "" {
			args = append(args, filters.Status)
			query += fmt.Sprintf(" AND status = $%d", len(args))
		}
	}
	query += " ORDER BY created_at DESC, id"

	plans := []*model.TreatmentPlan{}
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &plans, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list treatment plans: %w", mapError(err))
	}
	return plans, nil
}
