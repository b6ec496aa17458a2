package ports

import (
	"context"

	"github.com/natours/tours-api/internal/core/domain"
)

// TourRepository persists tours. Secret tours are invisible to every read.
type TourRepository interface {
	Store[domain.Tour]
	// SetRatings overwrites the rating rollup of a tour.
	SetRatings(ctx context.Context, tourID string, quantity int, average float64) error
	Stats(ctx context.Context, minRating float64) ([]domain.TourStat, error)
	MonthlyPlan(ctx context.Context, year int) ([]domain.MonthlyPlan, error)
	// Within returns tours whose start location lies inside the spherical cap
	// centred on lng/lat with the given radius in radians.
	Within(ctx context.Context, lng, lat, radius float64) ([]*domain.Tour, error)
	// Distances returns every tour ordered by distance from lng/lat, scaled
	// from meters by multiplier.
	Distances(ctx context.Context, lng, lat, multiplier float64) ([]domain.TourDistance, error)
}

// ReviewRepository persists reviews; at most one per (tour, user).
type ReviewRepository interface {
	Store[domain.Review]
	RatingStats(ctx context.Context, tourID string) (domain.RatingStats, error)
}

// BookingRepository persists bookings.
type BookingRepository interface {
	Store[domain.Booking]
	FindByUser(ctx context.Context, userID string) ([]*domain.Booking, error)
	FindToursByIDs(ctx context.Context, ids []string) ([]*domain.Tour, error)
}
