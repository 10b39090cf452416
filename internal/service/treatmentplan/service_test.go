package treatmentplan

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
	"github.com/jwalitptl/physio-api/pkg/errors"
)

func intPtr(v int) *int { return &v }

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }

func datePtr(d model.Date) *model.Date { return &d }

func (f *fixture) createRequest(patient string, exercises ...string) *model.CreateTreatmentPlanRequest {
	req := &model.CreateTreatmentPlanRequest{
		PatientID:   uuidPtr(f.patient[patient].ID),
		Title:       "Knee rehab",
		Description: "Post-op rehabilitation",
		Goals:       "Full range of motion",
		StartDate:   datePtr(model.NewDate(2024, 1, 10)),
	}
	for _, name := range exercises {
		req.Exercises = append(req.Exercises, model.PrescribedExerciseInput{
			ExerciseID:  uuidPtr(f.ex[name].ID),
			Sets:        intPtr(3),
			Repetitions: intPtr(10),
		})
	}
	return req
}

func (f *fixture) mustCreate(t *testing.T, physio, patient string, exercises ...string) *model.TreatmentPlanResponse {
	t.Helper()
	plan, err := f.svc.Create(context.Background(), f.physioActor(physio), f.createRequest(patient, exercises...))
	require.NoError(t, err)
	return plan
}

func orderIndexes(items []*model.PrescribedExerciseResponse) []int {
	out := make([]int, 0, len(items))
	for _, item := range items {
		out = append(out, item.OrderIndex)
	}
	return out
}

func TestCreate_AssignsPositionsInRequestOrder(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	plan := f.mustCreate(t, "pat", "alice", "bridge", "squat", "plank")

	assert.Equal(t, model.PlanStatusActive, plan.Status)
	assert.Equal(t, f.physio["pat"].ID, plan.PhysiotherapistID)
	assert.Equal(t, "Alice", plan.PatientName)
	assert.Equal(t, "Alice@clinic.test", plan.PatientEmail)
	assert.Equal(t, "Pat", plan.PhysiotherapistName)
	require.NotNil(t, plan.Patient)
	assert.Equal(t, f.patient["alice"].UserID, plan.Patient.UserID)
	require.Len(t, plan.Exercises, 3)
	assert.Equal(t, []int{1, 2, 3}, orderIndexes(plan.Exercises))
	assert.Equal(t, "Glute Bridge", plan.Exercises[0].Name)
	assert.Equal(t, 45, plan.Exercises[0].Duration)
	assert.Equal(t, 0, plan.Exercises[0].PrescribedDuration)

	got, err := f.svc.Get(ctx, f.physioActor("pat"), plan.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, orderIndexes(got.Exercises))
	assert.Equal(t, "Plank", got.Exercises[2].Name)
	assert.Equal(t, "Knee rehab", got.Title)

	assert.Equal(t, []string{model.EventTreatmentPlanCreated}, f.store.eventTypes())
}

func TestCreate_WithoutExercisesReturnsEmptyList(t *testing.T) {
	f := newFixture()

	plan := f.mustCreate(t, "pat", "alice")

	assert.NotNil(t, plan.Exercises)
	assert.Empty(t, plan.Exercises)
}

func TestCreate_AppliesExerciseDefaults(t *testing.T) {
	f := newFixture()
	req := f.createRequest("alice")
	req.Exercises = []model.PrescribedExerciseInput{{ExerciseID: uuidPtr(f.ex["squat"].ID)}}

	plan, err := f.svc.Create(context.Background(), f.physioActor("pat"), req)
	require.NoError(t, err)

	require.Len(t, plan.Exercises, 1)
	assert.Equal(t, model.DefaultSets, plan.Exercises[0].Sets)
	assert.Equal(t, model.DefaultRepetitions, plan.Exercises[0].Repetitions)
	assert.Equal(t, model.DefaultDuration, plan.Exercises[0].PrescribedDuration)
}

func TestCreate_PhysiotherapistCannotAssignAnotherOwner(t *testing.T) {
	f := newFixture()
	req := f.createRequest("alice")
	req.PhysiotherapistID = uuidPtr(f.physio["sam"].ID)

	plan, err := f.svc.Create(context.Background(), f.physioActor("pat"), req)
	require.NoError(t, err)

	assert.Equal(t, f.physio["pat"].ID, plan.PhysiotherapistID)
}

func TestCreate_AdminMustNameExistingPhysiotherapist(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.admin(), f.createRequest("alice"))
	assert.Equal(t, errors.ErrBadRequest, errors.CodeOf(err))

	req := f.createRequest("alice")
	req.PhysiotherapistID = uuidPtr(uuid.New())
	_, err = f.svc.Create(ctx, f.admin(), req)
	assert.True(t, errors.IsNotFound(err))

	assert.Empty(t, f.store.plans)

	req.PhysiotherapistID = uuidPtr(f.physio["sam"].ID)
	plan, err := f.svc.Create(ctx, f.admin(), req)
	require.NoError(t, err)
	assert.Equal(t, f.physio["sam"].ID, plan.PhysiotherapistID)
}

func TestCreate_RejectsBeforePersisting(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture, req *model.CreateTreatmentPlanRequest)
		code   errors.ErrorCode
	}{
		{
			name: "unknown patient",
			mutate: func(f *fixture, req *model.CreateTreatmentPlanRequest) {
				req.PatientID = uuidPtr(uuid.New())
			},
			code: errors.ErrNotFound,
		},
		{
			name: "unknown exercise in the middle",
			mutate: func(f *fixture, req *model.CreateTreatmentPlanRequest) {
				req.Exercises[1].ExerciseID = uuidPtr(uuid.New())
			},
			code: errors.ErrNotFound,
		},
		{
			name: "end before start",
			mutate: func(f *fixture, req *model.CreateTreatmentPlanRequest) {
				req.EndDate = datePtr(model.NewDate(2024, 1, 9))
			},
			code: errors.ErrBadRequest,
		},
		{
			name: "zero sets",
			mutate: func(f *fixture, req *model.CreateTreatmentPlanRequest) {
				req.Exercises[0].Sets = intPtr(0)
			},
			code: errors.ErrBadRequest,
		},
		{
			name: "negative duration",
			mutate: func(f *fixture, req *model.CreateTreatmentPlanRequest) {
				req.Exercises[2].Duration = intPtr(-5)
			},
			code: errors.ErrBadRequest,
		},
		{
			name: "blank title",
			mutate: func(f *fixture, req *model.CreateTreatmentPlanRequest) {
				req.Title = "   "
			},
			code: errors.ErrBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := f.createRequest("alice", "squat", "bridge", "plank")
			tt.mutate(f, req)

			_, err := f.svc.Create(context.Background(), f.physioActor("pat"), req)
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
			assert.Empty(t, f.store.plans)
			assert.Empty(t, f.store.items)
			assert.Empty(t, f.store.events)
		})
	}
}

func TestCreate_EventFailureRollsBackEverything(t *testing.T) {
	f := newFixture()
	f.store.emitErr = stderrors.New("outbox unavailable")

	_, err := f.svc.Create(context.Background(), f.physioActor("pat"), f.createRequest("alice", "squat", "plank"))
	require.Error(t, err)

	_, isApp := errors.As(err)
	assert.False(t, isApp)
	assert.Empty(t, f.store.plans)
	assert.Empty(t, f.store.items)
}

func TestCreate_PatientIsForbidden(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(context.Background(), f.patientActor("alice"), f.createRequest("alice"))
	assert.True(t, errors.IsForbidden(err))
	assert.Empty(t, f.store.plans)
}

func TestList_ScopesByRole(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	alicePlan := f.mustCreate(t, "pat", "alice", "squat")
	bobPlan := f.mustCreate(t, "sam", "bob")
	f.mustCreate(t, "pat", "bob")

	plans, err := f.svc.List(ctx, f.patientActor("alice"), model.TreatmentPlanFilters{})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, alicePlan.ID, plans[0].ID)
	assert.Len(t, plans[0].Exercises, 1)

	plans, err = f.svc.List(ctx, f.patientActor("alice"), model.TreatmentPlanFilters{PatientID: uuidPtr(f.patient["bob"].ID)})
	require.NoError(t, err)
	assert.Empty(t, plans)

	plans, err = f.svc.List(ctx, f.physioActor("sam"), model.TreatmentPlanFilters{})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, bobPlan.ID, plans[0].ID)

	plans, err = f.svc.List(ctx, f.admin(), model.TreatmentPlanFilters{PatientID: uuidPtr(f.patient["bob"].ID)})
	require.NoError(t, err)
	assert.Len(t, plans, 2)

	plans, err = f.svc.List(ctx, f.admin(), model.TreatmentPlanFilters{})
	require.NoError(t, err)
	assert.Len(t, plans, 3)
}

func TestList_FiltersByStatus(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	plan := f.mustCreate(t, "pat", "alice")
	f.mustCreate(t, "pat", "bob")

	paused := model.PlanStatusPaused
	_, err := f.svc.Update(ctx, f.physioActor("pat"), plan.ID, &model.UpdateTreatmentPlanRequest{Status: &paused})
	require.NoError(t, err)

	plans, err := f.svc.List(ctx, f.physioActor("pat"), model.TreatmentPlanFilters{Status: "paused"})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, plan.ID, plans[0].ID)

	_, err = f.svc.List(ctx, f.physioActor("pat"), model.TreatmentPlanFilters{Status: "archived"})
	assert.Equal(t, errors.ErrBadRequest, errors.CodeOf(err))
}

func TestGet_VisibilityByRole(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	plan := f.mustCreate(t, "pat", "alice")

	_, err := f.svc.Get(ctx, f.patientActor("alice"), plan.ID)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, f.admin(), plan.ID)
	assert.NoError(t, err)

	_, err = f.svc.Get(ctx, f.physioActor("sam"), plan.ID)
	assert.True(t, errors.IsNotFound(err))
	_, err = f.svc.Get(ctx, f.patientActor("bob"), plan.ID)
	assert.True(t, errors.IsNotFound(err))

	_, err = f.svc.Get(ctx, f.admin(), uuid.New())
	assert.True(t, errors.IsNotFound(err))
}

func TestUpdate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	plan := f.mustCreate(t, "pat", "alice", "squat")

	t.Run("partial update keeps other fields", func(t *testing.T) {
		title := "Knee rehab phase 2"
		completed := model.PlanStatusCompleted
		got, err := f.svc.Update(ctx, f.physioActor("pat"), plan.ID, &model.UpdateTreatmentPlanRequest{
			Title:  &title,
			Status: &completed,
		})
		require.NoError(t, err)

		assert.Equal(t, title, got.Title)
		assert.Equal(t, model.PlanStatusCompleted, got.Status)
		assert.Equal(t, plan.Description, got.Description)
		assert.True(t, got.UpdatedAt.After(plan.UpdatedAt))
		assert.Len(t, got.Exercises, 1)
		assert.Equal(t, "Alice", got.PatientName)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		bogus := model.PlanStatus("archived")
		empty := ""
		requests := []*model.UpdateTreatmentPlanRequest{
			{Status: &bogus},
			{Title: &empty},
			{EndDate: datePtr(model.NewDate(2023, 12, 31))},
			{StartDate: datePtr(model.NewDate(2024, 3, 1)), EndDate: datePtr(model.NewDate(2024, 2, 1))},
		}
		for _, req := range requests {
			_, err := f.svc.Update(ctx, f.physioActor("pat"), plan.ID, req)
			assert.Equal(t, errors.ErrBadRequest, errors.CodeOf(err))
		}

		stored := f.store.plans[plan.ID]
		assert.Nil(t, stored.EndDate)
		assert.Equal(t, model.PlanStatusCompleted, stored.Status)
	})

	t.Run("access", func(t *testing.T) {
		goals := "walk unaided"
		_, err := f.svc.Update(ctx, f.physioActor("sam"), plan.ID, &model.UpdateTreatmentPlanRequest{Goals: &goals})
		assert.True(t, errors.IsForbidden(err))
		_, err = f.svc.Update(ctx, f.patientActor("alice"), plan.ID, &model.UpdateTreatmentPlanRequest{Goals: &goals})
		assert.True(t, errors.IsForbidden(err))
		_, err = f.svc.Update(ctx, f.admin(), plan.ID, &model.UpdateTreatmentPlanRequest{Goals: &goals})
		assert.NoError(t, err)
	})
}

func TestDelete_RemovesPlanAndExercises(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	plan := f.mustCreate(t, "pat", "alice", "squat", "plank")
	other := f.mustCreate(t, "pat", "bob", "bridge")

	require.NoError(t, f.svc.Delete(ctx, f.physioActor("pat"), plan.ID))

	_, err := f.svc.Get(ctx, f.physioActor("pat"), plan.ID)
	assert.True(t, errors.IsNotFound(err))
	require.Len(t, f.store.items, 1)
	for _, item := range f.store.items {
		assert.Equal(t, other.ID, item.TreatmentPlanID)
	}

	err = f.svc.Delete(ctx, f.physioActor("pat"), plan.ID)
	assert.True(t, errors.IsNotFound(err))
}

func TestDelete_ByAnotherPhysiotherapistIsForbidden(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	plan := f.mustCreate(t, "pat", "alice", "squat")

	err := f.svc.Delete(ctx, f.physioActor("sam"), plan.ID)
	assert.True(t, errors.IsForbidden(err))

	err = f.svc.Delete(ctx, f.patientActor("alice"), plan.ID)
	assert.True(t, errors.IsForbidden(err))

	assert.Contains(t, f.store.plans, plan.ID)
	assert.Len(t, f.store.items, 1)
}

func TestDelete_EventFailureKeepsPlan(t *testing.T) {
	f := newFixture()
	plan := f.mustCreate(t, "pat", "alice", "squat")
	f.store.emitErr = stderrors.New("outbox unavailable")

	require.Error(t, f.svc.Delete(context.Background(), f.physioActor("pat"), plan.ID))

	assert.Contains(t, f.store.plans, plan.ID)
	assert.Len(t, f.store.items, 1)
}

func TestCreate_ReferenceDeletedMidRequestIsNotFound(t *testing.T) {
	f := newFixture()
	f.store.createErr = &repository.MissingReferenceError{
		Entity:     "patient",
		Constraint: "treatment_plans_patient_id_fkey",
	}

	_, err := f.svc.Create(context.Background(), f.physioActor("pat"), f.createRequest("alice", "squat"))
	require.Error(t, err)

	assert.True(t, errors.IsNotFound(err))
	assert.Contains(t, err.Error(), "patient not found")
	assert.Empty(t, f.store.plans)
	assert.Empty(t, f.store.items)
	assert.Empty(t, f.store.events)
}

func TestDelete_LocksPlanBeforeRemovingExercises(t *testing.T) {
	f := newFixture()
	plan := f.mustCreate(t, "pat", "alice", "squat")

	require.NoError(t, f.svc.Delete(context.Background(), f.physioActor("pat"), plan.ID))
	assert.Equal(t, []uuid.UUID{plan.ID}, f.store.locked)
}

func TestDelete_StillReferencedPlanIsStoreError(t *testing.T) {
	f := newFixture()
	plan := f.mustCreate(t, "pat", "alice", "squat")
	f.store.deleteErr = fmt.Errorf("%w: still referenced by treatment_plan_exercises_treatment_plan_id_fkey", repository.ErrConflict)

	err := f.svc.Delete(context.Background(), f.physioActor("pat"), plan.ID)
	require.Error(t, err)

	assert.False(t, errors.IsNotFound(err))
	assert.Equal(t, errors.ErrInternal, errors.CodeOf(err))
	assert.Contains(t, f.store.plans, plan.ID)
	assert.Len(t, f.store.items, 1)
}
