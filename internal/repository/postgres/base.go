package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/physio-api/internal/repository"
)

// Postgres error codes mapped onto repository sentinels.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

type txKey struct{}

// BaseRepository provides common functionality for all repositories
type BaseRepository struct {
	db *sqlx.DB
}

// NewBaseRepository creates a new base repository
func NewBaseRepository(db *sqlx.DB) *BaseRepository {
	return &BaseRepository{db: db}
}

// WithTx executes fn within a transaction. Nested calls join the outer
// transaction.
func (r *BaseRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// conn returns the transaction bound to ctx, or the pool.
func (r *BaseRepository) conn(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return r.db
}

// mapError translates driver errors into repository sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", repository.ErrConflict, pqErr.Constraint)
		case pqForeignKeyViolation:
			return &repository.MissingReferenceError{
				Entity:     referencedEntity(pqErr.Constraint),
				Constraint: pqErr.Constraint,
			}
		}
	}
	return err
}

// mapDeleteError is mapError for DELETE statements, where a foreign key
// violation means the row is still referenced.
func mapDeleteError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
		return fmt.Errorf("%w: still referenced by %s", repository.ErrConflict, pqErr.Constraint)
	}
	return mapError(err)
}

var foreignKeyEntities = map[string]string{
	"treatment_plans_patient_id_fkey":                 "patient",
	"treatment_plans_physiotherapist_id_fkey":         "physiotherapist",
	"treatment_plan_exercises_treatment_plan_id_fkey": "treatment plan",
	"treatment_plan_exercises_exercise_id_fkey":       "exercise",
}

func referencedEntity(constraint string) string {
	if entity, ok := foreignKeyEntities[constraint]; ok {
		return entity
	}
	return "record"
}

func expectAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func uuidArray(ids []uuid.UUID) pq.StringArray {
	out := make(pq.StringArray, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
