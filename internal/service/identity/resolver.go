// Package identity turns a verified token subject into an Actor.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/pkg/errors"
)

// ProfileFinder finds the profile backing a user's role.
type ProfileFinder interface {
	PatientByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	PhysiotherapistByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
}

type Resolver struct {
	profiles ProfileFinder
}

func NewResolver(profiles ProfileFinder) *Resolver {
	return &Resolver{profiles: profiles}
}

// Resolve attaches the patient or physiotherapist id to the caller. A role
// whose profile is missing is a permission error, not an authentication
// one.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, role string) (*model.Actor, error) {
	actor := &model.Actor{UserID: userID, Role: model.Role(role)}

	switch actor.Role {
	case model.RoleAdmin:
		return actor, nil

	case model.RolePhysiotherapist:
		profile, err := r.profiles.PhysiotherapistByUserID(ctx, userID)
		if err != nil {
			return nil, profileError("physiotherapist", err)
		}
		actor.PhysiotherapistID = profile.ID
		return actor, nil

	case model.RolePatient:
		profile, err := r.profiles.PatientByUserID(ctx, userID)
		if err != nil {
			return nil, profileError("patient", err)
		}
		actor.PatientID = profile.ID
		return actor, nil
	}

	return nil, errors.Forbidden(fmt.Sprintf("role %q is not permitted", role), nil)
}

func profileError(kind string, err error) error {
	if errors.IsNotFound(err) {
		return errors.Forbidden(kind+" profile not found", err)
	}
	return fmt.Errorf("failed to resolve %s profile: %w", kind, err)
}
