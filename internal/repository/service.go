package repository

import (
	"context"
	"errors"

	"github.com/plated-app/ratings-api/internal/domain"
	"github.com/plated-app/ratings-api/internal/ratings"
	"github.com/plated-app/ratings-api/internal/store"
)

// Service adapts the row-level repository to the rating surface the
// HTTP layer consumes. Derived statistics are computed by the same
// domain helpers the file-backed ledger uses, so both backends agree on
// rounding and ordering.
type Service struct {
	st   *store.Store
	repo *Repository
}

// NewService wires a rating service over the given store.
func NewService(st *store.Store) *Service {
	return &Service{st: st, repo: New(st)}
}

// Stats implements ratings.Service.
func (s *Service) Stats(ctx context.Context, targetID string) (domain.Collection, error) {
	rows, err := s.repo.Ratings.ListByTarget(ctx, targetID)
	if err != nil {
		return domain.Collection{}, err
	}
	return domain.Summarize(rows), nil
}

// Percentages implements ratings.Service.
func (s *Service) Percentages(ctx context.Context, targetID string) (map[int]int, error) {
	c, err := s.Stats(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return domain.Percentages(c.Breakdown, c.Total), nil
}

// RatingFor implements ratings.Service.
func (s *Service) RatingFor(ctx context.Context, targetID, raterID string) (domain.Rating, error) {
	rating, err := s.repo.Ratings.Get(ctx, targetID, raterID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Rating{}, ratings.ErrNoRating
		}
		return domain.Rating{}, err
	}
	return rating, nil
}

// Submit implements ratings.Service.
func (s *Service) Submit(ctx context.Context, params ratings.SubmitParams) (domain.Collection, bool, error) {
	if err := params.Validate(); err != nil {
		return domain.Collection{}, false, err
	}

	_, inserted, err := s.repo.Ratings.Upsert(ctx, RatingUpsertParams{
		TargetID:    params.TargetID,
		RaterID:     params.Rater.ID,
		RaterName:   params.Rater.Name,
		RaterAvatar: params.Rater.Avatar,
		Score:       params.Score,
		Review:      params.Review,
	})
	if err != nil {
		return domain.Collection{}, false, err
	}

	updated, err := s.Stats(ctx, params.TargetID)
	if err != nil {
		return domain.Collection{}, false, err
	}
	return updated, inserted, nil
}

// Delete implements ratings.Service.
func (s *Service) Delete(ctx context.Context, targetID, raterID string) (domain.Collection, error) {
	if _, err := s.repo.Ratings.Delete(ctx, targetID, raterID); err != nil {
		return domain.Collection{}, err
	}
	return s.Stats(ctx, targetID)
}

// Reset implements ratings.Service.
func (s *Service) Reset(ctx context.Context) error {
	return s.repo.Ratings.ResetAll(ctx)
}

// Health implements ratings.Service.
func (s *Service) Health(ctx context.Context) error {
	return s.st.HealthCheck(ctx)
}
