package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Review is a user's rating of a tour. A user reviews a tour at most once.
type Review struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Review    string             `bson:"review" json:"review" validate:"required"`
	Rating    int                `bson:"rating" json:"rating" validate:"required,gte=1,lte=5"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	Tour      primitive.ObjectID `bson:"tour" json:"tour" validate:"required"`
	User      primitive.ObjectID `bson:"user" json:"user" validate:"required"`
	Version   int                `bson:"__v" json:"__v,omitempty"`

	Author *UserSummary `bson:"-" json:"author,omitempty"`
}

func (r *Review) ApplyDefaults(now time.Time) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.UTC()
	}
}

// RatingStats is the grouped aggregate over all reviews of one tour.
type RatingStats struct {
	Quantity int
	Average  float64
}
