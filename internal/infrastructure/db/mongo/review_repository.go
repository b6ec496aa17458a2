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

const collectionReviews = "reviews"

// ReviewRepository implements ports.ReviewRepository. Every read attaches
// the author's public profile.
type ReviewRepository struct {
	*Collection[domain.Review]
	db *mongo.Database
}

func NewReviewRepository(db *mongo.Database) *ReviewRepository {
	r := &ReviewRepository{db: db}
	r.Collection = NewCollection[domain.Review](db, collectionReviews, "review",
		WithConflictMessage[domain.Review]("You have already reviewed this tour"),
		WithPopulator[domain.Review]("author", populateAuthors(db)),
		WithDefaultPopulate[domain.Review]("author"),
	)
	return r
}

func populateAuthors(db *mongo.Database) Populator[domain.Review] {
	return func(ctx context.Context, reviews []*domain.Review) error {
		ids := make([]primitive.ObjectID, 0, len(reviews))
		for _, rv := range reviews {
			ids = append(ids, rv.User)
		}
		users, err := loadUserSummaries(ctx, db, uniqueIDs(ids))
		if err != nil {
			return err
		}
		for _, rv := range reviews {
			if u, ok := users[rv.User]; ok {
				author := domain.UserSummary{ID: u.ID, Name: u.Name, Photo: u.Photo}
				rv.Author = &author
			}
		}
		return nil
	}
}

// findReviews loads reviews with their authors, for eager loading on tours.
func findReviews(ctx context.Context, db *mongo.Database, filter bson.M) ([]*domain.Review, error) {
	cur, err := db.Collection(collectionReviews).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("find reviews: %w", err)
	}
	reviews := make([]*domain.Review, 0)
	if err := cur.All(ctx, &reviews); err != nil {
		return nil, fmt.Errorf("decode reviews: %w", err)
	}
	if err := populateAuthors(db)(ctx, reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

type ratingGroup struct {
	Quantity int     `bson:"nRating"`
	Average  float64 `bson:"avgRating"`
}

// RatingStats counts and averages the ratings of every review of a tour.
func (r *ReviewRepository) RatingStats(ctx context.Context, tourID string) (domain.RatingStats, error) {
	oid, err := primitive.ObjectIDFromHex(tourID)
	if err != nil {
		return domain.RatingStats{}, domain.NotFound("No tour found with that ID")
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"tour": oid}}},
		{{Key: "$group", Value: bson.M{
			"_id":       "$tour",
			"nRating":   bson.M{"$sum": 1},
			"avgRating": bson.M{"$avg": "$rating"},
		}}},
	}
	cur, err := r.Raw().Aggregate(ctx, pipeline)
	if err != nil {
		return domain.RatingStats{}, fmt.Errorf("rating stats: %w", err)
	}
	var groups []ratingGroup
	if err := cur.All(ctx, &groups); err != nil {
		return domain.RatingStats{}, fmt.Errorf("decode rating stats: %w", err)
	}
	if len(groups) == 0 {
		return domain.RatingStats{}, nil
	}
	return domain.RatingStats{Quantity: groups[0].Quantity, Average: groups[0].Average}, nil
}

// EnsureIndexes enforces one review per (tour, user).
func (r *ReviewRepository) EnsureIndexes(ctx context.Context) error {
	return r.Collection.EnsureIndexes(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tour", Value: 1}, {Key: "user", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
}
