package treatmentplan

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/jwalitptl/physio-api/internal/model"
)

// assemble builds responses for plans with batched lookups. itemsByPlan may
// be nil, in which case the exercise rows are loaded.
func (s *Service) assemble(ctx context.Context, plans []*model.TreatmentPlan, itemsByPlan map[uuid.UUID][]*model.PrescribedExercise) ([]*model.TreatmentPlanResponse, error) {
	out := make([]*model.TreatmentPlanResponse, 0, len(plans))
	if len(plans) == 0 {
		return out, nil
	}

	planIDs := make([]uuid.UUID, 0, len(plans))
	patientIDs := make([]uuid.UUID, 0, len(plans))
	physioIDs := make([]uuid.UUID, 0, len(plans))
	for _, p := range plans {
		planIDs = append(planIDs, p.ID)
		patientIDs = append(patientIDs, p.PatientID)
		physioIDs = append(physioIDs, p.PhysiotherapistID)
	}

	if itemsByPlan == nil {
		items, err := s.items.ListByPlans(ctx, planIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to list plan exercises: %w", err)
		}
		itemsByPlan = make(map[uuid.UUID][]*model.PrescribedExercise, len(plans))
		for _, item := range items {
			itemsByPlan[item.TreatmentPlanID] = append(itemsByPlan[item.TreatmentPlanID], item)
		}
	}

	patients, err := s.profiles.Patients(ctx, patientIDs)
	if err != nil {
		return nil, err
	}
	physios, err := s.profiles.Physiotherapists(ctx, physioIDs)
	if err != nil {
		return nil, err
	}

	var exerciseIDs []uuid.UUID
	for _, items := range itemsByPlan {
		for _, item := range items {
			exerciseIDs = append(exerciseIDs, item.ExerciseID)
		}
	}
	exercises, err := s.exercises.GetMany(ctx, exerciseIDs)
	if err != nil {
		return nil, err
	}

	for _, p := range plans {
		resp := buildPlanResponse(p, patients[p.PatientID], physios[p.PhysiotherapistID])
		resp.Exercises = buildExerciseResponses(itemsByPlan[p.ID], exercises)
		out = append(out, resp)
	}
	return out, nil
}

func (s *Service) assembleOne(ctx context.Context, plan *model.TreatmentPlan, items []*model.PrescribedExercise) (*model.TreatmentPlanResponse, error) {
	var itemsByPlan map[uuid.UUID][]*model.PrescribedExercise
	if items != nil {
		itemsByPlan = map[uuid.UUID][]*model.PrescribedExercise{plan.ID: items}
	}

	out, err := s.assemble(ctx, []*model.TreatmentPlan{plan}, itemsByPlan)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (s *Service) assembleItems(ctx context.Context, items []*model.PrescribedExercise) ([]*model.PrescribedExerciseResponse, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ExerciseID)
	}
	exercises, err := s.exercises.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	return buildExerciseResponses(items, exercises), nil
}

func buildPlanResponse(plan *model.TreatmentPlan, patient, physio *model.Profile) *model.TreatmentPlanResponse {
	resp := &model.TreatmentPlanResponse{TreatmentPlan: *plan}
	if patient != nil {
		resp.PatientName = patient.FullName
		resp.PatientEmail = patient.Email
		resp.Patient = summary(patient)
	}
	if physio != nil {
		resp.PhysiotherapistName = physio.FullName
		resp.PhysiotherapistEmail = physio.Email
		resp.Physiotherapist = summary(physio)
	}
	return resp
}

func summary(p *model.Profile) *model.PersonSummary {
	return &model.PersonSummary{ID: p.ID, UserID: p.UserID, FullName: p.FullName, Email: p.Email}
}

// buildExerciseResponses always returns a non-nil slice sorted by position.
func buildExerciseResponses(items []*model.PrescribedExercise, exercises map[uuid.UUID]*model.Exercise) []*model.PrescribedExerciseResponse {
	out := make([]*model.PrescribedExerciseResponse, 0, len(items))
	for _, item := range items {
		out = append(out, buildExerciseResponse(item, exercises[item.ExerciseID]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out
}

func buildExerciseResponse(item *model.PrescribedExercise, exercise *model.Exercise) *model.PrescribedExerciseResponse {
	resp := &model.PrescribedExerciseResponse{
		ID:                 item.ID,
		TreatmentPlanID:    item.TreatmentPlanID,
		ExerciseID:         item.ExerciseID,
		Sets:               item.Sets,
		Repetitions:        item.Repetitions,
		Notes:              item.Notes,
		OrderIndex:         item.OrderIndex,
		PrescribedDuration: item.Duration,
		CreatedAt:          item.CreatedAt,
	}
	if exercise != nil {
		resp.Name = exercise.Name
		resp.Description = exercise.Description
		resp.Category = exercise.Category
		resp.Difficulty = exercise.Difficulty
		resp.Duration = exercise.Duration
		resp.Instructions = exercise.Instructions
		resp.VideoURL = exercise.VideoURL
		resp.ImageURL = exercise.ImageURL
		resp.Exercise = exercise
	}
	return resp
}
