package ports

import (
	"context"
	"time"

	"github.com/natours/tours-api/internal/core/domain"
)

// RatingRecalculator recomputes a tour's rating rollup from its reviews.
type RatingRecalculator interface {
	Recalculate(ctx context.Context, tourID string) error
}

// UserService covers the self-service account operations.
type UserService interface {
	UpdateMe(ctx context.Context, userID string, name, email *string) (*domain.User, error)
	DeleteMe(ctx context.Context, userID string) error
}

// TourService covers the tour reports and geo queries.
type TourService interface {
	Stats(ctx context.Context) ([]domain.TourStat, error)
	MonthlyPlan(ctx context.Context, year int) ([]domain.MonthlyPlan, error)
	Within(ctx context.Context, distance float64, latlng, unit string) ([]*domain.Tour, error)
	Distances(ctx context.Context, latlng, unit string) ([]domain.TourDistance, error)
}

// PaymentGateway creates hosted checkouts and verifies their completion.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error)
	// ParseCompleted verifies a webhook payload. It returns nil, nil for
	// verified events other than a completed checkout.
	ParseCompleted(payload []byte, signature string) (*domain.CheckoutCompleted, error)
}

// BookingService covers checkout and the bookings of the current user.
type BookingService interface {
	Checkout(ctx context.Context, user *domain.User, tourID, baseURL string) (*domain.CheckoutSession, error)
	CompleteCheckout(ctx context.Context, payload []byte, signature string) error
	MyTours(ctx context.Context, userID string) ([]*domain.Tour, error)
}

// RateDecision is the outcome of counting one request against a limit.
type RateDecision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RateLimiter counts requests per client key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateDecision, error)
}
