package api

import (
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/natours/tours-api/internal/api/handler"
	"github.com/natours/tours-api/internal/api/middleware"
	"github.com/natours/tours-api/internal/core/domain"
	"github.com/natours/tours-api/internal/core/ports"
)

const (
	bodyLimit = "10K"
	// Stripe event payloads carry the whole session object.
	webhookBodyLimit = "512K"
	webhookPath      = "/api/v1/bookings/webhook-checkout"
)

// Deps is everything the router wires into handlers.
type Deps struct {
	Auth        ports.AuthService
	RateLimiter ports.RateLimiter

	Users    *handler.UserHandler
	Tours    *handler.TourHandler
	Reviews  *handler.ReviewHandler
	Bookings *handler.BookingHandler
	Health   *handler.HealthHandler

	Log        zerolog.Logger
	Production bool
	// Metrics receives the HTTP collectors; nil means the default registry.
	Metrics prometheus.Registerer
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = NewHTTPErrorHandler(d.Log, d.Production)
	e.Validator = handler.NewValidator()

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(d.Log))
	e.Use(echomiddleware.Secure())
	e.Use(echomiddleware.BodyLimitWithConfig(echomiddleware.BodyLimitConfig{
		Limit:   bodyLimit,
		Skipper: func(c echo.Context) bool { return c.Path() == webhookPath },
	}))
	e.Use(echomiddleware.Gzip())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "tours",
		Registerer: d.Metrics,
	}))

	// --- Ops (no auth, not rate limited) ---
	e.GET("/health", d.Health.Liveness)
	e.GET("/health/ready", d.Health.Readiness)
	e.GET("/metrics", echoprometheus.NewHandler())
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	v1 := e.Group("/api/v1")
	if d.RateLimiter != nil {
		v1.Use(middleware.RateLimit(d.RateLimiter, d.Log))
	}

	protect := middleware.Protect(d.Auth)
	staff := middleware.RestrictTo(domain.Roles(domain.RoleAdmin, domain.RoleLeadGuide))
	admin := middleware.RestrictTo(domain.Roles(domain.RoleAdmin))

	registerTours(v1, d, protect, staff)
	registerReviews(v1.Group("/reviews", protect), d.Reviews)
	registerUsers(v1, d, protect, admin)
	registerBookings(v1, d, protect, staff)

	return e
}

func registerTours(v1 *echo.Group, d Deps, protect, staff echo.MiddlewareFunc) {
	h := d.Tours
	g := v1.Group("/tours")

	g.GET("/top-5-cheap", h.GetAll(nil), handler.AliasTopTours)
	g.GET("/tour-stats", h.Stats)
	g.GET("/monthly-plan/:year", h.MonthlyPlan, protect,
		middleware.RestrictTo(domain.Roles(domain.RoleAdmin, domain.RoleLeadGuide, domain.RoleGuide)))
	g.GET("/tours-within/:distance/center/:latlng/unit/:unit", h.Within)
	g.GET("/distances/:latlng/unit/:unit", h.Distances)

	g.GET("", h.GetAll(nil))
	g.POST("", h.CreateOne, protect, staff)
	g.GET("/:id", h.GetOne("reviews"))
	g.PATCH("/:id", h.UpdateOne, protect, staff)
	g.DELETE("/:id", h.DeleteOne, protect, staff)

	registerReviews(g.Group("/:tourId/reviews", protect), d.Reviews)
}

// registerReviews mounts the review routes on g, which is either /reviews
// or /tours/:tourId/reviews. Both groups are protected.
func registerReviews(g *echo.Group, h *handler.ReviewHandler) {
	reviewer := middleware.RestrictTo(domain.Roles(domain.RoleUser))
	owners := middleware.RestrictTo(domain.Roles(domain.RoleUser, domain.RoleAdmin))

	g.GET("", h.GetAll(handler.ByTour))
	g.POST("", h.CreateReview(), reviewer)
	g.GET("/:id", h.GetOne())
	g.PATCH("/:id", h.UpdateReview, owners)
	g.DELETE("/:id", h.DeleteOne, owners)
}

func registerUsers(v1 *echo.Group, d Deps, protect, admin echo.MiddlewareFunc) {
	h := d.Users
	g := v1.Group("/users")

	g.POST("/signup", h.Signup)
	g.POST("/login", h.Login)
	g.GET("/logout", h.Logout)
	g.POST("/forgotPassword", h.ForgotPassword)
	g.PATCH("/resetPassword/:token", h.ResetPassword)
	g.GET("/session", h.Session, middleware.IsLoggedIn(d.Auth))

	g.PATCH("/updateMyPassword", h.UpdateMyPassword, protect)
	g.GET("/me", h.GetMe, protect)
	g.PATCH("/updateMe", h.UpdateMe, protect)
	g.DELETE("/deleteMe", h.DeleteMe, protect)

	g.GET("", h.GetAll(nil), protect, admin)
	g.POST("", h.CreateUser, protect, admin)
	g.GET("/:id", h.GetOne(), protect, admin)
	g.PATCH("/:id", h.UpdateOne, protect, admin)
	g.DELETE("/:id", h.DeleteOne, protect, admin)
}

func registerBookings(v1 *echo.Group, d Deps, protect, staff echo.MiddlewareFunc) {
	h := d.Bookings
	g := v1.Group("/bookings")

	g.POST("/webhook-checkout", h.WebhookCheckout, echomiddleware.BodyLimit(webhookBodyLimit))
	g.GET("/checkout-session/:tourId", h.CheckoutSession, protect)
	g.GET("/my-tours", h.MyTours, protect)

	g.GET("", h.GetAll(nil), protect, staff)
	g.POST("", h.CreateOne, protect, staff)
	g.GET("/:id", h.GetOne(), protect, staff)
	g.PATCH("/:id", h.UpdateOne, protect, staff)
	g.DELETE("/:id", h.DeleteOne, protect, staff)
}
