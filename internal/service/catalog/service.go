// Package catalog reads the exercise library. Entries are treated as
// immutable references.
package catalog

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

type Service struct {
	repo  repository.ExerciseRepository
	cache *gocache.Cache
}

func NewService(repo repository.ExerciseRepository, ttl time.Duration) *Service {
	return &Service{
		repo:  repo,
		cache: gocache.New(ttl, 2*ttl),
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Exercise, error) {
	if cached, ok := s.cache.Get(id.String()); ok {
		return cached.(*model.Exercise), nil
	}

	exercise, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("exercise", err)
		}
		return nil, fmt.Errorf("failed to get exercise: %w", err)
	}

	s.cache.SetDefault(id.String(), exercise)
	return exercise, nil
}

// GetMany returns the found exercises keyed by id. Unknown ids are absent.
func (s *Service) GetMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Exercise, error) {
	out := make(map[uuid.UUID]*model.Exercise, len(ids))
	var missing []uuid.UUID

	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		if cached, ok := s.cache.Get(id.String()); ok {
			out[id] = cached.(*model.Exercise)
			continue
		}
		out[id] = nil
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		exercises, err := s.repo.ListByIDs(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("failed to list exercises: %w", err)
		}
		for _, e := range exercises {
			out[e.ID] = e
			s.cache.SetDefault(e.ID.String(), e)
		}
	}

	for id, e := range out {
		if e == nil {
			delete(out, id)
		}
	}
	return out, nil
}

// GetAll is GetMany that fails with NotFound when any id is unknown.
func (s *Service) GetAll(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*model.Exercise, error) {
	found, err := s.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			return nil, apperrors.NotFound("exercise", fmt.Errorf("exercise %s", id))
		}
	}
	return found, nil
}
