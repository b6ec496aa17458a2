package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/natours/tours-api/internal/api/metrics"
	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
)

const signatureHeader = "Stripe-Signature"

// BookingHandler serves checkout, the payment webhook and the admin
// booking resource.
type BookingHandler struct {
	*Factory[domain.Booking]
	bookings ports.BookingService
	log      zerolog.Logger
}

func NewBookingHandler(store ports.Store[domain.Booking], bookings ports.BookingService, maxLimit int64, log zerolog.Logger) *BookingHandler {
	return &BookingHandler{
		Factory:  NewFactory(store, WithMaxLimit[domain.Booking](maxLimit), WithReadOnly[domain.Booking]("tourDetails", "userDetails")),
		bookings: bookings,
		log:      log,
	}
}

type checkoutResponse struct {
	Status  string          `json:"status"`
	Session checkoutSession `json:"session"`
}

type checkoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CheckoutSession opens a hosted payment page for one seat on a tour.
//
// @Summary      Create checkout session
// @Tags         bookings
// @Produce      json
// @Param        tourId  path      string  true  "Tour id"
// @Success      200     {object}  checkoutResponse
// @Failure      401     {object}  map[string]string
// @Failure      404     {object}  map[string]string
// @Security     BearerAuth
// @Router       /bookings/checkout-session/{tourId} [get]
func (h *BookingHandler) CheckoutSession(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	sess, err := h.bookings.Checkout(c.Request().Context(), user, c.Param("tourId"), origin(c))
	if err != nil {
		return err
	}
	metrics.CheckoutSessionsTotal.Inc()
	return c.JSON(http.StatusOK, checkoutResponse{
		Status:  statusSuccess,
		Session: checkoutSession{ID: sess.ID, URL: sess.URL},
	})
}

// WebhookCheckout receives payment provider events. The body is read raw
// because the signature covers the exact bytes.
//
// @Summary      Payment webhook
// @Tags         bookings
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]bool
// @Failure      400  {object}  map[string]string
// @Router       /bookings/webhook-checkout [post]
func (h *BookingHandler) WebhookCheckout(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		metrics.CheckoutWebhooksTotal.WithLabelValues("rejected").Inc()
		return domain.Validation("Webhook error: unreadable body")
	}
	if err := h.bookings.CompleteCheckout(c.Request().Context(), payload, c.Request().Header.Get(signatureHeader)); err != nil {
		metrics.CheckoutWebhooksTotal.WithLabelValues("rejected").Inc()
		h.log.Warn().Err(err).Msg("checkout webhook rejected")
		return err
	}
	metrics.CheckoutWebhooksTotal.WithLabelValues("ok").Inc()
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}

// MyTours lists the tours the current user has booked.
//
// @Summary      My booked tours
// @Tags         bookings
// @Produce      json
// @Success      200  {object}  listResponse
// @Failure      401  {object}  map[string]string
// @Security     BearerAuth
// @Router       /bookings/my-tours [get]
func (h *BookingHandler) MyTours(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	tours, err := h.bookings.MyTours(c.Request().Context(), user.ID.Hex())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse{
		Status:  statusSuccess,
		Results: len(tours),
		Data:    map[string]any{"tours": tours},
	})
}
