package treatmentplan

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/pkg/errors"
)

// validateCreate checks what binding tags cannot express.
func validateCreate(req *model.CreateTreatmentPlanRequest) error {
	if req.PatientID == nil || *req.PatientID == uuid.Nil {
		return errors.BadRequest("patient_id is required", nil)
	}
	if strings.TrimSpace(req.Title) == "" {
		return errors.BadRequest("title is required", nil)
	}
	if strings.TrimSpace(req.Description) == "" {
		return errors.BadRequest("description is required", nil)
	}
	if req.StartDate == nil {
		return errors.BadRequest("start_date is required", nil)
	}
	if err := validateDates(*req.StartDate, req.EndDate); err != nil {
		return err
	}
	for i := range req.Exercises {
		if err := validateExerciseInput(fmt.Sprintf("exercises[%d].", i), &req.Exercises[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateDates(start model.Date, end *model.Date) error {
	if end != nil && end.Before(start) {
		return errors.BadRequest("end_date must not be before start_date", nil)
	}
	return nil
}

func validateExerciseInput(prefix string, in *model.PrescribedExerciseInput) error {
	if in.ExerciseID == nil || *in.ExerciseID == uuid.Nil {
		return errors.BadRequest(prefix+"exercise_id is required", nil)
	}
	if in.Sets != nil && *in.Sets < 1 {
		return errors.BadRequest(prefix+"sets must be at least 1", nil)
	}
	if in.Repetitions != nil && *in.Repetitions < 1 {
		return errors.BadRequest(prefix+"repetitions must be at least 1", nil)
	}
	if in.Duration != nil && *in.Duration < 0 {
		return errors.BadRequest(prefix+"duration must not be negative", nil)
	}
	return nil
}

// applyUpdate copies the provided fields onto plan.
func applyUpdate(plan *model.TreatmentPlan, req *model.UpdateTreatmentPlanRequest) error {
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return errors.BadRequest("title must not be empty", nil)
		}
		plan.Title = *req.Title
	}
	if req.Description != nil {
		plan.Description = *req.Description
	}
	if req.Goals != nil {
		plan.Goals = *req.Goals
	}
	if req.StartDate != nil {
		plan.StartDate = *req.StartDate
	}
	if req.EndDate != nil {
		end := *req.EndDate
		plan.EndDate = &end
	}
	if req.Status != nil {
		if !req.Status.Valid() {
			return errors.BadRequest(fmt.Sprintf("invalid status %q", *req.Status), nil)
		}
		plan.Status = *req.Status
	}
	return validateDates(plan.StartDate, plan.EndDate)
}

// newPrescribedExercise fills defaults for omitted parameters. OrderIndex is
// left for the caller.
func newPrescribedExercise(planID uuid.UUID, in *model.PrescribedExerciseInput, now time.Time) *model.PrescribedExercise {
	item := &model.PrescribedExercise{
		ID:              uuid.New(),
		TreatmentPlanID: planID,
		ExerciseID:      *in.ExerciseID,
		Sets:            model.DefaultSets,
		Repetitions:     model.DefaultRepetitions,
		Duration:        model.DefaultDuration,
		CreatedAt:       now,
	}
	if in.Sets != nil {
		item.Sets = *in.Sets
	}
	if in.Repetitions != nil {
		item.Repetitions = *in.Repetitions
	}
	if in.Duration != nil {
		item.Duration = *in.Duration
	}
	if in.Notes != nil {
		item.Notes = *in.Notes
	}
	return item
}
