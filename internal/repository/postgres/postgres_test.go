package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
)

func newMockBase(t *testing.T) (*BaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBaseRepository(sqlx.NewDb(db, "postgres")), mock
}

func TestWithTx_CommitsWorkDoneThroughContext(t *testing.T) {
	base, mock := newMockBase(t)
	plans := NewTreatmentPlanRepository(base)
	items := NewPlanExerciseRepository(base)
	planID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM treatment_plan_exercises WHERE treatment_plan_id = $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM treatment_plans WHERE id = $1")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := base.WithTx(context.Background(), func(ctx context.Context) error {
		if _, err := items.DeleteByPlan(ctx, planID); err != nil {
			return err
		}
		return plans.Delete(ctx, planID)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	base, mock := newMockBase(t)
	plans := NewTreatmentPlanRepository(base)
	items := NewPlanExerciseRepository(base)
	planID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM treatment_plan_exercises").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM treatment_plans").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := base.WithTx(context.Background(), func(ctx context.Context) error {
		if _, err := items.DeleteByPlan(ctx, planID); err != nil {
			return err
		}
		return plans.Delete(ctx, planID)
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_NestedCallJoinsOuterTransaction(t *testing.T) {
	base, mock := newMockBase(t)

	mock.ExpectBegin()
	mock.ExpectCommit()

	err := base.WithTx(context.Background(), func(ctx context.Context) error {
		return base.WithTx(ctx, func(ctx context.Context) error { return nil })
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanExerciseAppend_ReturnsAssignedPosition(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPlanExerciseRepository(base)

	item := &model.PrescribedExercise{
		ID:              uuid.New(),
		TreatmentPlanID: uuid.New(),
		ExerciseID:      uuid.New(),
		Sets:            3,
		Repetitions:     10,
		CreatedAt:       time.Now(),
	}

	mock.ExpectQuery(regexp.QuoteMeta("COALESCE(MAX(order_index), 0) + 1")).
		WillReturnRows(sqlmock.NewRows([]string{"order_index"}).AddRow(4))

	require.NoError(t, repo.Append(context.Background(), item))
	assert.Equal(t, 4, item.OrderIndex)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanExerciseAppend_UniqueViolationIsConflict(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPlanExerciseRepository(base)

	mock.ExpectQuery("INSERT INTO treatment_plan_exercises").
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: "treatment_plan_exercises_plan_order_key"})

	err := repo.Append(context.Background(), &model.PrescribedExercise{ID: uuid.New()})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestPlanExerciseAppend_MissingPlanIsNotFound(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPlanExerciseRepository(base)

	mock.ExpectQuery("INSERT INTO treatment_plan_exercises").
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation, Constraint: "treatment_plan_exercises_treatment_plan_id_fkey"})

	err := repo.Append(context.Background(), &model.PrescribedExercise{ID: uuid.New()})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPlanExerciseAppend_MissingExerciseNamesReference(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPlanExerciseRepository(base)

	mock.ExpectQuery("INSERT INTO treatment_plan_exercises").
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation, Constraint: "treatment_plan_exercises_exercise_id_fkey"})

	err := repo.Append(context.Background(), &model.PrescribedExercise{ID: uuid.New()})
	require.ErrorIs(t, err, repository.ErrNotFound)

	var ref *repository.MissingReferenceError
	require.ErrorAs(t, err, &ref)
	assert.Equal(t, "exercise", ref.Entity)
}

func TestTreatmentPlanDelete_StillReferencedIsConflict(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTreatmentPlanRepository(base)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM treatment_plans WHERE id = $1")).
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation, Constraint: "treatment_plan_exercises_treatment_plan_id_fkey"})

	err := repo.Delete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTreatmentPlanLock(t *testing.T) {
	t.Run("locks existing row", func(t *testing.T) {
		base, mock := newMockBase(t)
		repo := NewTreatmentPlanRepository(base)
		planID := uuid.New()

		mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM treatment_plans WHERE id = $1 FOR UPDATE")).
			WithArgs(planID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(planID.String()))

		require.NoError(t, repo.Lock(context.Background(), planID))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row is not found", func(t *testing.T) {
		base, mock := newMockBase(t)
		repo := NewTreatmentPlanRepository(base)

		mock.ExpectQuery("FOR UPDATE").WillReturnError(sql.ErrNoRows)

		err := repo.Lock(context.Background(), uuid.New())
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestPlanExerciseDelete_NoRowIsNotFound(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPlanExerciseRepository(base)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM treatment_plan_exercises WHERE id = $1 AND treatment_plan_id = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlanExerciseListByPlansSkipsEmptyInput(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewPlanExerciseRepository(base)

	items, err := repo.ListByPlans(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTreatmentPlanGet_NoRowsIsNotFound(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTreatmentPlanRepository(base)

	mock.ExpectQuery("FROM treatment_plans WHERE id = ").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTreatmentPlanList_AppliesFilters(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewTreatmentPlanRepository(base)

	patientID := uuid.New()
	planID := uuid.New()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "patient_id", "physiotherapist_id", "title", "description", "goals",
		"start_date", "end_date", "status", "created_at", "updated_at",
	}).AddRow(
		planID.String(), patientID.String(), uuid.New().String(), "Knee rehab", "ACL recovery", "",
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil, "active", now, now,
	)

	mock.ExpectQuery(regexp.QuoteMeta("AND patient_id = $1 AND status = $2 ORDER BY created_at DESC")).
		WithArgs(patientID.String(), "active").
		WillReturnRows(rows)

	plans, err := repo.List(context.Background(), &model.TreatmentPlanFilters{
		PatientID: &patientID,
		Status:    "active",
	})

	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, planID, plans[0].ID)
	assert.Equal(t, "2024-01-01", plans[0].StartDate.String())
	assert.Nil(t, plans[0].EndDate)
	assert.Equal(t, model.PlanStatusActive, plans[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
