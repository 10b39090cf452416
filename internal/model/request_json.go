package model

import (
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/physio-api/pkg/validator"
)

const (
	reasonUUID = "must be a valid UUID"
	reasonDate = "must be a date in YYYY-MM-DD format"
)

// The request types below decode their UUID and date fields separately so a
// malformed value is reported against its JSON name.

func (r *CreateTreatmentPlanRequest) UnmarshalJSON(data []byte) error {
	type plain CreateTreatmentPlanRequest
	aux := struct {
		*plain
		PatientID         json.RawMessage   `json:"patient_id"`
		PhysiotherapistID json.RawMessage   `json:"physiotherapist_id"`
		StartDate         json.RawMessage   `json:"start_date"`
		EndDate           json.RawMessage   `json:"end_date"`
		Exercises         []json.RawMessage `json:"exercises"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	fields := []struct {
		name, reason string
		raw          json.RawMessage
		dst          interface{}
	}{
		{"patient_id", reasonUUID, aux.PatientID, &r.PatientID},
		{"physiotherapist_id", reasonUUID, aux.PhysiotherapistID, &r.PhysiotherapistID},
		{"start_date", reasonDate, aux.StartDate, &r.StartDate},
		{"end_date", reasonDate, aux.EndDate, &r.EndDate},
	}
	for _, f := range fields {
		if err := decodeField(f.name, f.reason, f.raw, f.dst); err != nil {
			return err
		}
	}

	r.Exercises = nil
	if aux.Exercises != nil {
		r.Exercises = make([]PrescribedExerciseInput, len(aux.Exercises))
		for i, raw := range aux.Exercises {
			if err := json.Unmarshal(raw, &r.Exercises[i]); err != nil {
				return validator.Nest(fmt.Sprintf("exercises[%d]", i), err)
			}
		}
	}
	return nil
}

func (r *UpdateTreatmentPlanRequest) UnmarshalJSON(data []byte) error {
	type plain UpdateTreatmentPlanRequest
	aux := struct {
		*plain
		StartDate json.RawMessage `json:"start_date"`
		EndDate   json.RawMessage `json:"end_date"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if err := decodeField("start_date", reasonDate, aux.StartDate, &r.StartDate); err != nil {
		return err
	}
	return decodeField("end_date", reasonDate, aux.EndDate, &r.EndDate)
}

func (in *PrescribedExerciseInput) UnmarshalJSON(data []byte) error {
	type plain PrescribedExerciseInput
	aux := struct {
		*plain
		ExerciseID json.RawMessage `json:"exercise_id"`
	}{plain: (*plain)(in)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	return decodeField("exercise_id", reasonUUID, aux.ExerciseID, &in.ExerciseID)
}

// decodeField leaves dst untouched when the field was absent. A JSON null
// clears it.
func decodeField(name, reason string, raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &validator.FieldError{Field: name, Reason: reason, Err: err}
	}
	return nil
}
