package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/natours/tours-api/internal/core/domain"
)

// RatingSource computes the grouped rating aggregate of a tour's reviews.
type RatingSource interface {
	RatingStats(ctx context.Context, tourID string) (domain.RatingStats, error)
}

// RatingSink stores a tour's rating rollup.
type RatingSink interface {
	SetRatings(ctx context.Context, tourID string, quantity int, average float64) error
}

// RatingService recomputes a tour's rollup from the full set of its current
// reviews. It never adjusts counters incrementally, so concurrent
// recalculations converge on the same result.
type RatingService struct {
	source RatingSource
	sink   RatingSink
	log    zerolog.Logger
}

func NewRatingService(source RatingSource, sink RatingSink, log zerolog.Logger) *RatingService {
	return &RatingService{source: source, sink: sink, log: log}
}

// Recalculate implements ports.RatingRecalculator. A tour without reviews
// goes back to 0 ratings and the default average.
func (s *RatingService) Recalculate(ctx context.Context, tourID string) error {
	stats, err := s.source.RatingStats(ctx, tourID)
	if err != nil {
		return fmt.Errorf("recalculate ratings: %w", err)
	}

	quantity, average := 0, domain.DefaultRatingsAverage
	if stats.Quantity > 0 {
		quantity = stats.Quantity
		average = domain.RoundRating(stats.Average)
	}

	if err := s.sink.SetRatings(ctx, tourID, quantity, average); err != nil {
		return fmt.Errorf("recalculate ratings: %w", err)
	}

	s.log.Debug().
		Str("tour_id", tourID).
		Int("ratings_quantity", quantity).
		Float64("ratings_average", average).
		Msg("tour ratings recalculated")
	return nil
}
