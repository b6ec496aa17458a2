package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Booking records a paid reservation of a tour by a user.
type Booking struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Tour            primitive.ObjectID `bson:"tour" json:"tour" validate:"required"`
	User            primitive.ObjectID `bson:"user" json:"user" validate:"required"`
	Price           float64            `bson:"price" json:"price" validate:"required,gt=0"`
	Paid            *bool              `bson:"paid" json:"paid"`
	StripeSessionID string             `bson:"stripeSessionId,omitempty" json:"stripeSessionId,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	Version         int                `bson:"__v" json:"__v,omitempty"`

	TourDetails *TourSummary `bson:"-" json:"tourDetails,omitempty"`
	UserDetails *UserSummary `bson:"-" json:"userDetails,omitempty"`
}

func (b *Booking) ApplyDefaults(now time.Time) {
	if b.Paid == nil {
		paid := true
		b.Paid = &paid
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now.UTC()
	}
}

// CheckoutRequest describes the single line item of a hosted checkout.
type CheckoutRequest struct {
	TourID        string
	TourName      string
	TourSummary   string
	ImageURL      string
	UnitAmount    int64
	CustomerEmail string
	UserID        string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSession is the payment provider's hosted checkout.
type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutCompleted is the verified result of a finished checkout.
type CheckoutCompleted struct {
	SessionID     string
	TourID        string
	CustomerEmail string
	UserID        string
	AmountTotal   int64
}
