// Package payments adapts Stripe Checkout to ports.PaymentGateway.
package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/natours/tours-api/internal/core/domain"
)

const (
	currency               = "usd"
	eventCheckoutCompleted = "checkout.session.completed"
	metadataUserID         = "user_id"
)

// Stripe creates hosted checkouts and verifies webhook events.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

// NewStripe returns nil when secretKey is empty, which disables checkout.
func NewStripe(secretKey, webhookSecret string) *Stripe {
	if secretKey == "" {
		return nil
	}
	return &Stripe{api: client.New(secretKey, nil), webhookSecret: webhookSecret}
}

func (s *Stripe) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		CustomerEmail:      stripe.String(req.CustomerEmail),
		ClientReferenceID:  stripe.String(req.TourID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(req.UnitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.TourName),
						Description: stripe.String(req.TourSummary),
						Images:      stripe.StringSlice([]string{req.ImageURL}),
					},
				},
			},
		},
	}
	params.Context = ctx
	params.AddMetadata(metadataUserID, req.UserID)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return &domain.CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// ParseCompleted verifies the signature and decodes a completed checkout.
// Other verified event types yield nil, nil.
func (s *Stripe) ParseCompleted(payload []byte, signature string) (*domain.CheckoutCompleted, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}
	if event.Type != eventCheckoutCompleted {
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	out := &domain.CheckoutCompleted{
		SessionID:     sess.ID,
		TourID:        sess.ClientReferenceID,
		CustomerEmail: sess.CustomerEmail,
		UserID:        sess.Metadata[metadataUserID],
		AmountTotal:   sess.AmountTotal,
	}
	if out.CustomerEmail == "" && sess.CustomerDetails != nil {
		out.CustomerEmail = sess.CustomerDetails.Email
	}
	return out, nil
}
