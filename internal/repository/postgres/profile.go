package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
)

const (
	patientProfileQuery = `
		SELECT p.id, p.user_id, u.full_name, u.email
		FROM patients p
		JOIN users u ON u.id = p.user_id`

	physiotherapistProfileQuery = `
		SELECT p.id, p.user_id, u.full_name, u.email
		FROM physiotherapists p
		JOIN users u ON u.id = p.user_id`
)

type profileRepository struct {
	*BaseRepository
}

func NewProfileRepository(base *BaseRepository) repository.ProfileRepository {
	return &profileRepository{base}
}

func (r *profileRepository) GetPatient(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	return r.getOne(ctx, patientProfileQuery+` WHERE p.id = $1`, id, "patient")
}

func (r *profileRepository) GetPhysiotherapist(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	return r.getOne(ctx, physiotherapistProfileQuery+` WHERE p.id = $1`, id, "physiotherapist")
}

func (r *profileRepository) GetPatientByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	return r.getOne(ctx, patientProfileQuery+` WHERE p.user_id = $1`, userID, "patient")
}

func (r *profileRepository) GetPhysiotherapistByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	return r.getOne(ctx, physiotherapistProfileQuery+` WHERE p.user_id = $1`, userID, "physiotherapist")
}

func (r *profileRepository) ListPatients(ctx context.Context, ids []uuid.UUID) ([]*model.Profile, error) {
	return r.list(ctx, patientProfileQuery, ids, "patients")
}

func (r *profileRepository) ListPhysiotherapists(ctx context.Context, ids []uuid.UUID) ([]*model.Profile, error) {
	return r.list(ctx, physiotherapistProfileQuery, ids, "physiotherapists")
}

func (r *profileRepository) getOne(ctx context.Context, query string, arg uuid.UUID, kind string) (*model.Profile, error) {
	var profile model.Profile
	if err := sqlx.GetContext(ctx, r.conn(ctx), &profile, query, arg); err != nil {
		return nil, fmt.Errorf("failed to get %s profile: %w", kind, mapError(err))
	}
	return &profile, nil
}

func (r *profileRepository) list(ctx context.Context, base string, ids []uuid.UUID, kind string) ([]*model.Profile, error) {
	profiles := []*model.Profile{}
	if len(ids) == 0 {
		return profiles, nil
	}

	query := base + ` WHERE p.id = ANY($1::uuid[])`
	if err := sqlx.SelectContext(ctx, r.conn(ctx), &profiles, query, uuidArray(ids)); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, mapError(err))
	}
	return profiles, nil
}
