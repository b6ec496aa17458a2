package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/natours/tours-api/internal/core/domain"
)

const collectionTours = "tours"

var visibleTours = bson.M{"secretTour": bson.M{"$ne": true}}

// TourRepository implements ports.TourRepository.
type TourRepository struct {
	*Collection[domain.Tour]
	db *mongo.Database
}

func NewTourRepository(db *mongo.Database) *TourRepository {
	r := &TourRepository{db: db}
	r.Collection = NewCollection[domain.Tour](db, collectionTours, "tour",
		WithBaseFilter[domain.Tour](visibleTours),
		WithConflictMessage[domain.Tour]("A tour with that name already exists"),
		WithPopulator[domain.Tour]("guides", r.populateGuides),
		WithPopulator[domain.Tour]("reviews", r.populateReviews),
		WithDefaultPopulate[domain.Tour]("guides"),
	)
	return r
}

func (r *TourRepository) populateGuides(ctx context.Context, tours []*domain.Tour) error {
	var ids []primitive.ObjectID
	for _, t := range tours {
		ids = append(ids, t.Guides...)
	}
	guides, err := loadUserSummaries(ctx, r.db, uniqueIDs(ids))
	if err != nil {
		return err
	}
	for _, t := range tours {
		t.GuideProfiles = nil
		for _, id := range t.Guides {
			if g, ok := guides[id]; ok {
				t.GuideProfiles = append(t.GuideProfiles, g)
			}
		}
	}
	return nil
}

func (r *TourRepository) populateReviews(ctx context.Context, tours []*domain.Tour) error {
	ids := make([]primitive.ObjectID, 0, len(tours))
	for _, t := range tours {
		ids = append(ids, t.ID)
	}
	reviews, err := findReviews(ctx, r.db, bson.M{"tour": bson.M{"$in": ids}})
	if err != nil {
		return err
	}
	byTour := make(map[primitive.ObjectID][]*domain.Review, len(tours))
	for _, rv := range reviews {
		byTour[rv.Tour] = append(byTour[rv.Tour], rv)
	}
	for _, t := range tours {
		t.Reviews = byTour[t.ID]
	}
	return nil
}

// SetRatings writes the rollup directly. Secret tours are rated as well.
func (r *TourRepository) SetRatings(ctx context.Context, tourID string, quantity int, average float64) error {
	oid, err := r.objectID(tourID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = r.Raw().UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{
		"ratingsQuantity": quantity,
		"ratingsAverage":  average,
	}})
	if err != nil {
		return fmt.Errorf("set ratings: %w", err)
	}
	return nil
}

// Stats groups well-rated tours by difficulty, cheapest bucket first.
func (r *TourRepository) Stats(ctx context.Context, minRating float64) ([]domain.TourStat, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$and": bson.A{visibleTours, bson.M{"ratingsAverage": bson.M{"$gte": minRating}}}}}},
		{{Key: "$group", Value: bson.M{
			"_id":        bson.M{"$toUpper": "$difficulty"},
			"numTours":   bson.M{"$sum": 1},
			"numRatings": bson.M{"$sum": "$ratingsQuantity"},
			"avgRating":  bson.M{"$avg": "$ratingsAverage"},
			"avgPrice":   bson.M{"$avg": "$price"},
			"minPrice":   bson.M{"$min": "$price"},
			"maxPrice":   bson.M{"$max": "$price"},
		}}},
		{{Key: "$sort", Value: bson.M{"avgPrice": 1}}},
	}
	stats := make([]domain.TourStat, 0)
	if err := r.aggregate(ctx, pipeline, &stats); err != nil {
		return nil, fmt.Errorf("tour stats: %w", err)
	}
	return stats, nil
}

// MonthlyPlan counts tour starts per month of year, busiest month first.
func (r *TourRepository) MonthlyPlan(ctx context.Context, year int) ([]domain.MonthlyPlan, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(1, 0, 0)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: visibleTours}},
		{{Key: "$unwind", Value: "$startDates"}},
		{{Key: "$match", Value: bson.M{"startDates": bson.M{"$gte": from, "$lt": to}}}},
		{{Key: "$group", Value: bson.M{
			"_id":           bson.M{"$month": "$startDates"},
			"numTourStarts": bson.M{"$sum": 1},
			"tours":         bson.M{"$push": "$name"},
		}}},
		{{Key: "$addFields", Value: bson.M{"month": "$_id"}}},
		{{Key: "$project", Value: bson.M{"_id": 0}}},
		{{Key: "$sort", Value: bson.D{{Key: "numTourStarts", Value: -1}, {Key: "month", Value: 1}}}},
		{{Key: "$limit", Value: 12}},
	}
	plan := make([]domain.MonthlyPlan, 0)
	if err := r.aggregate(ctx, pipeline, &plan); err != nil {
		return nil, fmt.Errorf("monthly plan: %w", err)
	}
	return plan, nil
}

func (r *TourRepository) Within(ctx context.Context, lng, lat, radius float64) ([]*domain.Tour, error) {
	return r.Find(ctx, bson.M{
		"startLocation": bson.M{"$geoWithin": bson.M{
			"$centerSphere": bson.A{bson.A{lng, lat}, radius},
		}},
	})
}

func (r *TourRepository) Distances(ctx context.Context, lng, lat, multiplier float64) ([]domain.TourDistance, error) {
	pipeline := mongo.Pipeline{
		// $geoNear must be the first stage
		{{Key: "$geoNear", Value: bson.M{
			"near":               bson.M{"type": "Point", "coordinates": bson.A{lng, lat}},
			"distanceField":      "distance",
			"distanceMultiplier": multiplier,
			"query":              visibleTours,
		}}},
		{{Key: "$project", Value: bson.M{"distance": 1, "name": 1}}},
	}
	out := make([]domain.TourDistance, 0)
	if err := r.aggregate(ctx, pipeline, &out); err != nil {
		return nil, fmt.Errorf("tour distances: %w", err)
	}
	return out, nil
}

func (r *TourRepository) aggregate(ctx context.Context, pipeline mongo.Pipeline, out any) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := r.Raw().Aggregate(ctx, pipeline)
	if err != nil {
		return err
	}
	return cur.All(ctx, out)
}

// EnsureIndexes creates the unique name, price/rating, slug and geo indexes.
func (r *TourRepository) EnsureIndexes(ctx context.Context) error {
	return r.Collection.EnsureIndexes(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "price", Value: 1}, {Key: "ratingsAverage", Value: -1}}},
		{Keys: bson.D{{Key: "slug", Value: 1}}},
		{Keys: bson.D{{Key: "startLocation", Value: "2dsphere"}}},
	})
}
