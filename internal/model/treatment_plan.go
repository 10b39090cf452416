package model

import (
	"time"

	"github.com/google/uuid"
)

type PlanStatus string

const (
	PlanStatusActive    PlanStatus = "active"
	PlanStatusPaused    PlanStatus = "paused"
	PlanStatusCompleted PlanStatus = "completed"
	PlanStatusCancelled PlanStatus = "cancelled"
)

var validPlanStatuses = map[PlanStatus]bool{
	PlanStatusActive:    true,
	PlanStatusPaused:    true,
	PlanStatusCompleted: true,
	PlanStatusCancelled: true,
}

func (s PlanStatus) Valid() bool {
	return validPlanStatuses[s]
}

// Defaults applied to prescribed exercises when the request omits them.
const (
	DefaultSets        = 1
	DefaultRepetitions = 1
	DefaultDuration    = 0
)

type TreatmentPlan struct {
	Base
	PatientID         uuid.UUID  `json:"patient_id" db:"patient_id"`
	PhysiotherapistID uuid.UUID  `json:"physiotherapist_id" db:"physiotherapist_id"`
	Title             string     `json:"title" db:"title"`
	Description       string     `json:"description" db:"description"`
	Goals             string     `json:"goals" db:"goals"`
	StartDate         Date       `json:"start_date" db:"start_date"`
	EndDate           *Date      `json:"end_date" db:"end_date"`
	Status            PlanStatus `json:"status" db:"status"`
}

// PrescribedExercise links a plan to a catalog exercise. OrderIndex is
// 1-based and unique within a plan; gaps are allowed after removals.
type PrescribedExercise struct {
	ID              uuid.UUID `json:"id" db:"id"`
	TreatmentPlanID uuid.UUID `json:"treatment_plan_id" db:"treatment_plan_id"`
	ExerciseID      uuid.UUID `json:"exercise_id" db:"exercise_id"`
	Sets            int       `json:"sets" db:"sets"`
	Repetitions     int       `json:"repetitions" db:"repetitions"`
	Duration        int       `json:"duration" db:"duration"`
	Notes           string    `json:"notes" db:"notes"`
	OrderIndex      int       `json:"order_index" db:"order_index"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

type TreatmentPlanFilters struct {
	PatientID         *uuid.UUID
	PhysiotherapistID *uuid.UUID
	Status            string
}

type CreateTreatmentPlanRequest struct {
	PatientID         *uuid.UUID                `json:"patient_id" binding:"required"`
	PhysiotherapistID *uuid.UUID                `json:"physiotherapist_id"`
	Title             string                    `json:"title" binding:"required,max=255"`
	Description       string                    `json:"description" binding:"required"`
	Goals             string                    `json:"goals"`
	StartDate         *Date                     `json:"start_date" binding:"required"`
	EndDate           *Date                     `json:"end_date"`
	Exercises         []PrescribedExerciseInput `json:"exercises" binding:"omitempty,dive"`
}

type UpdateTreatmentPlanRequest struct {
	Title       *string     `json:"title" binding:"omitempty,max=255"`
	Description *string     `json:"description"`
	Goals       *string     `json:"goals"`
	StartDate   *Date       `json:"start_date"`
	EndDate     *Date       `json:"end_date"`
	Status      *PlanStatus `json:"status"`
}

type PrescribedExerciseInput struct {
	ExerciseID  *uuid.UUID `json:"exercise_id" binding:"required"`
	Sets        *int       `json:"sets"`
	Repetitions *int       `json:"repetitions"`
	Duration    *int       `json:"duration"`
	Notes       *string    `json:"notes"`
}

// PersonSummary is the nested patient/physiotherapist object in responses.
type PersonSummary struct {
	ID       uuid.UUID `json:"id"`
	UserID   uuid.UUID `json:"user_id"`
	FullName string    `json:"full_name"`
	Email    string    `json:"email"`
}

// TreatmentPlanResponse is the assembled wire shape of a plan. The flat
// name/email fields are kept for existing clients.
type TreatmentPlanResponse struct {
	TreatmentPlan
	PatientName          string                        `json:"patient_name"`
	PatientEmail         string                        `json:"patient_email"`
	PhysiotherapistName  string                        `json:"physiotherapist_name"`
	PhysiotherapistEmail string                        `json:"physiotherapist_email"`
	Patient              *PersonSummary                `json:"patient,omitempty"`
	Physiotherapist      *PersonSummary                `json:"physiotherapist,omitempty"`
	Exercises            []*PrescribedExerciseResponse `json:"exercises"`
}

// PrescribedExerciseResponse flattens the catalog entry onto the prescribed
// row. Duration carries the catalog value; the plan-specific value is
// PrescribedDuration.
type PrescribedExerciseResponse struct {
	ID                 uuid.UUID `json:"id"`
	TreatmentPlanID    uuid.UUID `json:"treatment_plan_id"`
	ExerciseID         uuid.UUID `json:"exercise_id"`
	Sets               int       `json:"sets"`
	Repetitions        int       `json:"repetitions"`
	Notes              string    `json:"notes"`
	OrderIndex         int       `json:"order_index"`
	PrescribedDuration int       `json:"prescribed_duration"`
	CreatedAt          time.Time `json:"created_at"`

	Name         string `json:"name"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	Difficulty   string `json:"difficulty"`
	Duration     int    `json:"duration"`
	Instructions string `json:"instructions"`
	VideoURL     string `json:"video_url"`
	ImageURL     string `json:"image_url"`

	Exercise *Exercise `json:"exercise,omitempty"`
}
