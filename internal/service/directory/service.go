// Package directory looks up patient and physiotherapist profiles.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/jwalitptl/physio-api/internal/model"
	"github.com/jwalitptl/physio-api/internal/repository"
	apperrors "github.com/jwalitptl/physio-api/pkg/errors"
)

type kind string

const (
	kindPatient         kind = "patient"
	kindPhysiotherapist kind = "physiotherapist"
)

type Service struct {
	repo  repository.ProfileRepository
	cache *gocache.Cache
}

// NewService caches profiles for ttl. Profiles change rarely and a stale
// name in a response is acceptable for that long.
func NewService(repo repository.ProfileRepository, ttl time.Duration) *Service {
	return &Service{
		repo:  repo,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	return s.get(ctx, kindPatient, id, s.repo.GetPatient)
}

func (s *Service) GetPhysiotherapist(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	return s.get(ctx, kindPhysiotherapist, id, s.repo.GetPhysiotherapist)
}

// PatientByUserID is not cached so a newly created profile is seen at once.
func (s *Service) PatientByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	return s.byUser(ctx, kindPatient, userID, s.repo.GetPatientByUserID)
}

func (s *Service) PhysiotherapistByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	return s.byUser(ctx, kindPhysiotherapist, userID, s.repo.GetPhysiotherapistByUserID)
}

// Patients returns the found profiles keyed by id. Unknown ids are absent.
func (s *Service) Patients(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Profile, error) {
	return s.many(ctx, kindPatient, ids, s.repo.ListPatients)
}

func (s *Service) Physiotherapists(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Profile, error) {
	return s.many(ctx, kindPhysiotherapist, ids, s.repo.ListPhysiotherapists)
}

type getFunc func(ctx context.Context, id uuid.UUID) (*model.Profile, error)

type listFunc func(ctx context.Context, ids []uuid.UUID) ([]*model.Profile, error)

func cacheKey(k kind, id uuid.UUID) string {
	return string(k) + ":" + id.String()
}

func (s *Service) get(ctx context.Context, k kind, id uuid.UUID, fetch getFunc) (*model.Profile, error) {
	if cached, ok := s.cache.Get(cacheKey(k, id)); ok {
		return cached.(*model.Profile), nil
	}

	profile, err := fetch(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound(string(k), err)
		}
		return nil, fmt.Errorf("failed to get %s: %w", k, err)
	}

	s.cache.SetDefault(cacheKey(k, id), profile)
	return profile, nil
}

func (s *Service) byUser(ctx context.Context, k kind, userID uuid.UUID, fetch getFunc) (*model.Profile, error) {
	profile, err := fetch(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound(string(k), err)
		}
		return nil, fmt.Errorf("failed to get %s by user: %w", k, err)
	}

	s.cache.SetDefault(cacheKey(k, profile.ID), profile)
	return profile, nil
}

func (s *Service) many(ctx context.Context, k kind, ids []uuid.UUID, fetch listFunc) (map[uuid.UUID]*model.Profile, error) {
	out := make(map[uuid.UUID]*model.Profile, len(ids))
	var missing []uuid.UUID

	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		if cached, ok := s.cache.Get(cacheKey(k, id)); ok {
			out[id] = cached.(*model.Profile)
			continue
		}
		out[id] = nil
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		profiles, err := fetch(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s profiles: %w", k, err)
		}
		for _, p := range profiles {
			out[p.ID] = p
			s.cache.SetDefault(cacheKey(k, p.ID), p)
		}
	}

	for id, p := range out {
		if p == nil {
			delete(out, id)
		}
	}
	return out, nil
}
