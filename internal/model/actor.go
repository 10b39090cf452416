package model

import "github.com/google/uuid"

// Role is the caller's role as asserted by the identity token.
type Role string

const (
	RolePatient         Role = "patient"
	RolePhysiotherapist Role = "physiotherapist"
	RoleAdmin           Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RolePhysiotherapist, RoleAdmin:
		return true
	}
	return false
}

// Actor is the authenticated caller together with the profile id backing
// its role. PatientID is set only for patients and PhysiotherapistID only
// for physiotherapists.
type Actor struct {
	UserID            uuid.UUID `json:"user_id"`
	Role              Role      `json:"role"`
	PatientID         uuid.UUID `json:"patient_id,omitempty"`
	PhysiotherapistID uuid.UUID `json:"physiotherapist_id,omitempty"`
}
