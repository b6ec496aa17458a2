package domain

import (
	"math"
	"time"

	"github.com/gosimple/slug"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DifficultyEasy      = "easy"
	DifficultyMedium    = "medium"
	DifficultyDifficult = "difficult"
)

// DefaultRatingsAverage is the "unrated" sentinel a tour carries while it
// has no reviews. It is not a real average.
const DefaultRatingsAverage = 4.5

// GeoPoint is a GeoJSON point with optional itinerary metadata.
// Coordinates are [longitude, latitude].
type GeoPoint struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
	Address     string    `bson:"address,omitempty" json:"address,omitempty"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	Day         int       `bson:"day,omitempty" json:"day,omitempty"`
}

// Tour is the bookable product. RatingsAverage and RatingsQuantity are a
// rollup of the tour's reviews and are only ever written by the rating
// recalculation.
type Tour struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name            string               `bson:"name" json:"name" validate:"required,min=10,max=40"`
	Slug            string               `bson:"slug" json:"slug"`
	Duration        int                  `bson:"duration" json:"duration" validate:"required,gt=0"`
	MaxGroupSize    int                  `bson:"maxGroupSize" json:"maxGroupSize" validate:"required,gt=0"`
	Difficulty      string               `bson:"difficulty" json:"difficulty" validate:"required,oneof=easy medium difficult"`
	RatingsAverage  float64              `bson:"ratingsAverage" json:"ratingsAverage" validate:"gte=1,lte=5"`
	RatingsQuantity int                  `bson:"ratingsQuantity" json:"ratingsQuantity" validate:"gte=0"`
	Price           float64              `bson:"price" json:"price" validate:"required,gt=0"`
	PriceDiscount   float64              `bson:"priceDiscount,omitempty" json:"priceDiscount,omitempty" validate:"omitempty,gte=0,ltfield=Price"`
	Summary         string               `bson:"summary" json:"summary" validate:"required"`
	Description     string               `bson:"description,omitempty" json:"description,omitempty"`
	ImageCover      string               `bson:"imageCover" json:"imageCover" validate:"required"`
	Images          []string             `bson:"images,omitempty" json:"images,omitempty"`
	StartDates      []time.Time          `bson:"startDates,omitempty" json:"startDates,omitempty"`
	SecretTour      bool                 `bson:"secretTour,omitempty" json:"secretTour,omitempty"`
	StartLocation   *GeoPoint            `bson:"startLocation,omitempty" json:"startLocation,omitempty"`
	Locations       []GeoPoint           `bson:"locations,omitempty" json:"locations,omitempty"`
	Guides          []primitive.ObjectID `bson:"guides,omitempty" json:"guides,omitempty"`
	CreatedAt       time.Time            `bson:"createdAt" json:"createdAt"`
	Version         int                  `bson:"__v" json:"__v,omitempty"`

	DurationWeeks float64       `bson:"-" json:"durationWeeks,omitempty"`
	GuideProfiles []UserSummary `bson:"-" json:"guideProfiles,omitempty"`
	Reviews       []*Review     `bson:"-" json:"reviews,omitempty"`
}

// ApplyDefaults resets the rollup to the unrated state. A new tour has no
// reviews, so any client-provided rating values are discarded.
func (t *Tour) ApplyDefaults(now time.Time) {
	t.RatingsAverage = DefaultRatingsAverage
	t.RatingsQuantity = 0
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now.UTC()
	}
	if t.StartLocation != nil && t.StartLocation.Type == "" {
		t.StartLocation.Type = "Point"
	}
	for i := range t.Locations {
		if t.Locations[i].Type == "" {
			t.Locations[i].Type = "Point"
		}
	}
}

func (t *Tour) Normalize() {
	t.Slug = slug.Make(t.Name)
}

func (t *Tour) Hydrate() {
	if t.Duration > 0 {
		t.DurationWeeks = float64(t.Duration) / 7
	}
}

// RoundRating rounds an average to one decimal place.
func RoundRating(avg float64) float64 {
	return math.Round(avg*10) / 10
}

// TourStat is one difficulty bucket of the tour statistics report.
type TourStat struct {
	Difficulty string  `bson:"_id" json:"difficulty"`
	NumTours   int     `bson:"numTours" json:"numTours"`
	NumRatings int     `bson:"numRatings" json:"numRatings"`
	AvgRating  float64 `bson:"avgRating" json:"avgRating"`
	AvgPrice   float64 `bson:"avgPrice" json:"avgPrice"`
	MinPrice   float64 `bson:"minPrice" json:"minPrice"`
	MaxPrice   float64 `bson:"maxPrice" json:"maxPrice"`
}

// MonthlyPlan lists the tours starting in a calendar month.
type MonthlyPlan struct {
	Month         int      `bson:"month" json:"month"`
	NumTourStarts int      `bson:"numTourStarts" json:"numTourStarts"`
	Tours         []string `bson:"tours" json:"tours"`
}

// TourDistance is the distance from a reference point to a tour's start.
type TourDistance struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	Name     string             `bson:"name" json:"name"`
	Distance float64            `bson:"distance" json:"distance"`
}

// TourSummary is the eager-loaded shape of a tour attached to a booking.
type TourSummary struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	Name       string             `bson:"name" json:"name"`
	Slug       string             `bson:"slug" json:"slug"`
	Price      float64            `bson:"price" json:"price"`
	ImageCover string             `bson:"imageCover" json:"imageCover"`
	Summary    string             `bson:"summary" json:"summary"`
}
