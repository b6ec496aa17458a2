package service

import (
	"context"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
	"github.com/natours/tours-api/internal/core/query"
)

// ReviewStore wraps the review store so every committed write triggers a
// recalculation of the affected tour's rating rollup.
//
// Updates and deletes look the review up first to capture its tour, since
// after a delete the review is gone. The recalculation runs only once the
// mutation has returned successfully.
type ReviewStore struct {
	reviews ports.Store[domain.Review]
	tours   TourFinder
	ratings ports.RatingRecalculator
	log     zerolog.Logger
}

// TourFinder resolves a visible tour by id.
type TourFinder interface {
	FindByID(ctx context.Context, id string, populate ...string) (*domain.Tour, error)
}

func NewReviewStore(reviews ports.Store[domain.Review], tours TourFinder, ratings ports.RatingRecalculator, log zerolog.Logger) *ReviewStore {
	return &ReviewStore{reviews: reviews, tours: tours, ratings: ratings, log: log}
}

// Create stores a review of an existing tour.
func (s *ReviewStore) Create(ctx context.Context, doc *domain.Review) (*domain.Review, error) {
	if _, err := s.tours.FindByID(ctx, doc.Tour.Hex()); err != nil {
		return nil, err
	}
	created, err := s.reviews.Create(ctx, doc)
	if err != nil {
		return nil, err
	}
	s.recalculate(ctx, created.Tour.Hex())
	return created, nil
}

func (s *ReviewStore) FindByID(ctx context.Context, id string, populate ...string) (*domain.Review, error) {
	return s.reviews.FindByID(ctx, id, populate...)
}

func (s *ReviewStore) FindMany(ctx context.Context, spec query.Spec) ([]*domain.Review, error) {
	return s.reviews.FindMany(ctx, spec)
}

func (s *ReviewStore) UpdateByID(ctx context.Context, id string, set bson.M) (*domain.Review, error) {
	before, err := s.reviews.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.reviews.UpdateByID(ctx, id, set)
	if err != nil {
		return nil, err
	}
	s.recalculate(ctx, before.Tour.Hex())
	if updated.Tour != before.Tour {
		s.recalculate(ctx, updated.Tour.Hex())
	}
	return updated, nil
}

func (s *ReviewStore) DeleteByID(ctx context.Context, id string) error {
	before, err := s.reviews.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.reviews.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.recalculate(ctx, before.Tour.Hex())
	return nil
}

// recalculate never fails the request: the review write has already
// committed, and the next write to the same tour recomputes from scratch.
func (s *ReviewStore) recalculate(ctx context.Context, tourID string) {
	if err := s.ratings.Recalculate(ctx, tourID); err != nil {
		s.log.Error().Err(err).Str("tour_id", tourID).Msg("rating recalculation failed")
	}
}
