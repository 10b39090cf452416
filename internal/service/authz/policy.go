// Package authz decides who may read or change a treatment plan. Every
// function here is pure; callers fetch the plan and translate decisions.
package authz

import (
	"github.com/google/uuid"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/pkg/errors"
)

type Decision int

const (
	Allow Decision = iota
	// DenyNotFound hides the plan's existence from the caller.
	DenyNotFound
	DenyForbidden
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyNotFound:
		return "deny-not-found"
	default:
		return "deny-forbidden"
	}
}

type Action string

const (
	ActionRead            Action = "read"
	ActionUpdate          Action = "update"
	ActionDelete          Action = "delete"
	ActionManageExercises Action = "manage_exercises"
)

// Resource holds the owner ids of a plan.
type Resource struct {
	PatientID         uuid.UUID
	PhysiotherapistID uuid.UUID
}

func ResourceOf(plan *model.TreatmentPlan) Resource {
	return Resource{PatientID: plan.PatientID, PhysiotherapistID: plan.PhysiotherapistID}
}

// Decide applies the plan access rules. Reads of someone else's plan are
// DenyNotFound; writes by a non-owner physiotherapist, and any write by a
// patient or unknown role, are DenyForbidden.
func Decide(actor *model.Actor, action Action, res Resource) Decision {
	if actor == nil {
		return DenyForbidden
	}

	switch actor.Role {
	case model.RoleAdmin:
		return Allow

	case model.RolePhysiotherapist:
		if actor.PhysiotherapistID == uuid.Nil {
			return DenyForbidden
		}
		if actor.PhysiotherapistID == res.PhysiotherapistID {
			return Allow
		}
		if action == ActionRead {
			return DenyNotFound
		}
		return DenyForbidden

	case model.RolePatient:
		if action != ActionRead || actor.PatientID == uuid.Nil {
			return DenyForbidden
		}
		if actor.PatientID == res.PatientID {
			return Allow
		}
		return DenyNotFound
	}

	return DenyForbidden
}

// Err converts a deny decision into the error returned to clients. It
// returns nil for Allow.
func Err(d Decision) error {
	switch d {
	case Allow:
		return nil
	case DenyNotFound:
		return errors.NotFound("treatment plan", nil)
	default:
		return errors.Forbidden("permission denied", nil)
	}
}

// Check is Decide followed by Err.
func Check(actor *model.Actor, action Action, plan *model.TreatmentPlan) error {
	return Err(Decide(actor, action, ResourceOf(plan)))
}

// ResolvePlanOwner returns the physiotherapist who will own a new plan.
// Admins must name one; physiotherapists always own what they create and
// any id they send is ignored.
func ResolvePlanOwner(actor *model.Actor, requested *uuid.UUID) (uuid.UUID, error) {
	if actor == nil {
		return uuid.Nil, errors.Forbidden("permission denied", nil)
	}

	switch actor.Role {
	case model.RoleAdmin:
		if requested == nil || *requested == uuid.Nil {
			return uuid.Nil, errors.BadRequest("physiotherapist_id is required", nil)
		}
		return *requested, nil
	case model.RolePhysiotherapist:
		if actor.PhysiotherapistID == uuid.Nil {
			return uuid.Nil, errors.Forbidden("physiotherapist profile not found", nil)
		}
		return actor.PhysiotherapistID, nil
	}

	return uuid.Nil, errors.Forbidden("only physiotherapists and admins can create treatment plans", nil)
}

// ScopeFilters narrows list filters to what actor may see. visible is
// false when the requested filters can only match plans the actor cannot
// see; the caller should return an empty list without querying.
func ScopeFilters(actor *model.Actor, filters model.TreatmentPlanFilters) (scoped model.TreatmentPlanFilters, visible bool) {
	if actor == nil {
		return filters, false
	}

	switch actor.Role {
	case model.RoleAdmin:
		return filters, true

	case model.RolePhysiotherapist:
		own := actor.PhysiotherapistID
		if own == uuid.Nil {
			return filters, false
		}
		if filters.PhysiotherapistID != nil && *filters.PhysiotherapistID != own {
			return filters, false
		}
		filters.PhysiotherapistID = &own
		return filters, true

	case model.RolePatient:
		own := actor.PatientID
		if own == uuid.Nil {
			return filters, false
		}
		if filters.PatientID != nil && *filters.PatientID != own {
			return filters, false
		}
		filters.PatientID = &own
		return filters, true
	}

	return filters, false
}
