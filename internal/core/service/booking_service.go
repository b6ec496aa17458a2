package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
)

type bookingService struct {
	tours    ports.Store[domain.Tour]
	users    ports.UserRepository
	bookings ports.BookingRepository
	payments ports.PaymentGateway
	log      zerolog.Logger
}

// NewBookingService returns checkout and booking lookups. payments may be
// nil when no payment provider is configured; checkout then fails.
func NewBookingService(
	tours ports.Store[domain.Tour],
	users ports.UserRepository,
	bookings ports.BookingRepository,
	payments ports.PaymentGateway,
	log zerolog.Logger,
) ports.BookingService {
	return &bookingService{tours: tours, users: users, bookings: bookings, payments: payments, log: log}
}

// Checkout opens a hosted checkout for one seat on a tour.
func (s *bookingService) Checkout(ctx context.Context, user *domain.User, tourID, baseURL string) (*domain.CheckoutSession, error) {
	if s.payments == nil {
		return nil, domain.Unexpected("Payments are not available right now. Try again later!")
	}
	tour, err := s.tours.FindByID(ctx, tourID)
	if err != nil {
		return nil, err
	}

	sess, err := s.payments.CreateCheckout(ctx, domain.CheckoutRequest{
		TourID:        tour.ID.Hex(),
		TourName:      tour.Name + " Tour",
		TourSummary:   tour.Summary,
		ImageURL:      fmt.Sprintf("%s/img/tours/%s", baseURL, tour.ImageCover),
		UnitAmount:    int64(math.Round(tour.Price * 100)),
		CustomerEmail: user.Email,
		UserID:        user.ID.Hex(),
		SuccessURL:    fmt.Sprintf("%s/my-tours?alert=booking", baseURL),
		CancelURL:     fmt.Sprintf("%s/tour/%s", baseURL, tour.Slug),
	})
	if err != nil {
		return nil, fmt.Errorf("checkout: %w", err)
	}
	return sess, nil
}

// CompleteCheckout records the booking of a verified, completed checkout.
// Replayed webhooks for an already recorded session are accepted.
func (s *bookingService) CompleteCheckout(ctx context.Context, payload []byte, signature string) error {
	if s.payments == nil {
		return domain.Unexpected("Payments are not available right now. Try again later!")
	}
	evt, err := s.payments.ParseCompleted(payload, signature)
	if err != nil {
		return domain.Validation(fmt.Sprintf("Webhook error: %v", err))
	}
	if evt == nil {
		return nil
	}

	user, err := s.checkoutUser(ctx, evt)
	if err != nil {
		return err
	}
	tourID, err := primitive.ObjectIDFromHex(evt.TourID)
	if err != nil {
		return domain.Validation("Webhook error: checkout has no tour reference")
	}

	booking := &domain.Booking{
		Tour:            tourID,
		User:            user.ID,
		Price:           float64(evt.AmountTotal) / 100,
		StripeSessionID: evt.SessionID,
	}
	if _, err := s.bookings.Create(ctx, booking); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.log.Debug().Str("session_id", evt.SessionID).Msg("checkout already recorded")
			return nil
		}
		return err
	}
	s.log.Info().
		Str("session_id", evt.SessionID).
		Str("tour_id", evt.TourID).
		Str("user_id", user.ID.Hex()).
		Msg("booking created from checkout")
	return nil
}

func (s *bookingService) checkoutUser(ctx context.Context, evt *domain.CheckoutCompleted) (*domain.User, error) {
	if evt.UserID != "" {
		return s.users.FindByID(ctx, evt.UserID)
	}
	return s.users.FindByEmail(ctx, evt.CustomerEmail)
}

// MyTours returns the tours the user has booked.
func (s *bookingService) MyTours(ctx context.Context, userID string) ([]*domain.Tour, error) {
	bookings, err := s.bookings.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.Tour.Hex())
	}
	if len(ids) == 0 {
		return []*domain.Tour{}, nil
	}
	return s.bookings.FindToursByIDs(ctx, ids)
}
