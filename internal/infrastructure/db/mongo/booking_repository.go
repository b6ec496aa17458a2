package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/natours/tours-api/internal/core/domain"
)

const collectionBookings = "bookings"

// BookingRepository implements ports.BookingRepository.
type BookingRepository struct {
	*Collection[domain.Booking]
	db *mongo.Database
}

func NewBookingRepository(db *mongo.Database) *BookingRepository {
	r := &BookingRepository{db: db}
	r.Collection = NewCollection[domain.Booking](db, collectionBookings, "booking",
		WithConflictMessage[domain.Booking]("Booking already recorded for this checkout"),
		WithPopulator[domain.Booking]("user", r.populateUsers),
		WithPopulator[domain.Booking]("tour", r.populateTours),
		WithDefaultPopulate[domain.Booking]("user", "tour"),
	)
	return r
}

func (r *BookingRepository) populateUsers(ctx context.Context, bookings []*domain.Booking) error {
	ids := make([]primitive.ObjectID, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.User)
	}
	users, err := loadUserSummaries(ctx, r.db, uniqueIDs(ids))
	if err != nil {
		return err
	}
	for _, b := range bookings {
		if u, ok := users[b.User]; ok {
			u := u
			b.UserDetails = &u
		}
	}
	return nil
}

var tourSummaryProjection = bson.M{"name": 1, "slug": 1, "price": 1, "imageCover": 1, "summary": 1}

func (r *BookingRepository) populateTours(ctx context.Context, bookings []*domain.Booking) error {
	ids := make([]primitive.ObjectID, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.Tour)
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil
	}
	cur, err := r.db.Collection(collectionTours).Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetProjection(tourSummaryProjection))
	if err != nil {
		return fmt.Errorf("load tours: %w", err)
	}
	var tours []domain.TourSummary
	if err := cur.All(ctx, &tours); err != nil {
		return fmt.Errorf("decode tours: %w", err)
	}
	byID := make(map[primitive.ObjectID]domain.TourSummary, len(tours))
	for _, t := range tours {
		byID[t.ID] = t
	}
	for _, b := range bookings {
		if t, ok := byID[b.Tour]; ok {
			t := t
			b.TourDetails = &t
		}
	}
	return nil
}

func (r *BookingRepository) FindByUser(ctx context.Context, userID string) ([]*domain.Booking, error) {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, domain.NotFound("No user found with that ID")
	}
	return r.Find(ctx, bson.M{"user": oid}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
}

// FindToursByIDs loads the visible tours with the given ids.
func (r *BookingRepository) FindToursByIDs(ctx context.Context, ids []string) ([]*domain.Tour, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"$and": bson.A{visibleTours, bson.M{"_id": bson.M{"$in": objectIDs(ids)}}}}
	cur, err := r.db.Collection(collectionTours).Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("find booked tours: %w", err)
	}
	tours := make([]*domain.Tour, 0)
	if err := cur.All(ctx, &tours); err != nil {
		return nil, fmt.Errorf("decode booked tours: %w", err)
	}
	for _, t := range tours {
		t.Hydrate()
	}
	return tours, nil
}

// EnsureIndexes makes checkout completion idempotent per Stripe session.
func (r *BookingRepository) EnsureIndexes(ctx context.Context) error {
	return r.Collection.EnsureIndexes(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "stripeSessionId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "tour", Value: 1}}},
	})
}
