package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
)

// Catalog columns are optional upstream; blanks are normalised here.
const exerciseColumns = `
	id, name,
	COALESCE(description, '') AS description,
	COALESCE(category, '') AS category,
	COALESCE(difficulty, '') AS difficulty,
	COALESCE(duration, 0) AS duration,
	COALESCE(instructions, '') AS instructions,
	COALESCE(video_url, '') AS video_url,
	COALESCE(image_url, '') AS image_url,
	created_at, updated_at`

type exerciseRepository struct {
	*BaseRepository
}

func NewExerciseRepository(base *BaseRepository) repository.ExerciseRepository {
	return &exerciseRepository{base}
}

func (r *exerciseRepository) Get(ctx context.Context, id uuid.UUID) (*model.Exercise, error) {
	query := `SELECT ` + exerciseColumns + ` FROM exercises WHERE id = $1`

	var exercise model.Exercise
	if err := sqlx.GetContext(ctx, r.conn(ctx), &exercise, query, id); err != nil {
		return nil, fmt.Errorf("failed to get exercise: %w", mapError(err))
	}
	return &exercise, nil
}

func (r *exerciseRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*model.Exercise, error) {
	exercises := []*model.Exercise{}
	if len(ids) == 0 {
		return exercises, nil
	}

	query := `SELECT ` + exerciseColumns + ` FROM exercises WHERE id = ANY($1::uuid[])`
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &exercises, query, uuidArray(ids)); err != nil {
		return nil, fmt.Errorf("failed to list exercises: %w", mapError(err))
	}
	return exercises, nil
}
