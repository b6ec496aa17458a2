// Command api serves the tours REST API.
//
// @title                       Natours Tours API
// @version                     1.0
// @description                 Tours, reviews, accounts and bookings.
// @BasePath                    /api/v1
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	_ "github.com/natours/tours-api/docs"
	"github.com/natours/tours-api/internal/api"
	"github.com/natours/tours-api/internal/api/handler"
	"github.com/natours/tours-api/internal/core/ports"
	"github.com/natours/tours-api/internal/core/service"
	"github.com/natours/tours-api/internal/infrastructure/config"
	mongodb "github.com/natours/tours-api/internal/infrastructure/db/mongo"
	redisdb "github.com/natours/tours-api/internal/infrastructure/db/redis"
	"github.com/natours/tours-api/internal/infrastructure/mailer"
	"github.com/natours/tours-api/internal/infrastructure/payments"
	"github.com/natours/tours-api/internal/infrastructure/queue"
	"github.com/natours/tours-api/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		l := logger.Init(logger.Options{})
		l.Fatal().Err(err).Msg("tours api stopped")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, ".env")
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: "tours-api",
	})

	// --- Storage ---
	mongoClient, db, err := mongodb.Connect(ctx, mongodb.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		AppName:  "tours-api",
	})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mongoClient.Disconnect(dctx); err != nil {
			log.Error().Err(err).Msg("mongo disconnect failed")
		}
	}()

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	users := mongodb.NewUserRepository(db)
	tours := mongodb.NewTourRepository(db)
	reviews := mongodb.NewReviewRepository(db)
	bookings := mongodb.NewBookingRepository(db)
	if err := mongodb.EnsureIndexes(ctx, users, tours, reviews, bookings); err != nil {
		return err
	}

	// --- Ratings ---
	ratings := service.NewRatingService(reviews, tours, logger.Component(log, "ratings"))
	dispatcher := queue.NewDispatcher(cfg.Ratings.Workers, ratings, logger.Component(log, "ratings"))
	// Workers outlive the signal context so Stop can drain the queues.
	dispatcher.Start(context.WithoutCancel(ctx))
	reviewStore := service.NewReviewStore(reviews, tours, dispatcher, logger.Component(log, "reviews"))

	// --- Services ---
	hasher := service.NewPasswordHasher(service.HasherConfig{
		Algorithm:   cfg.Auth.PasswordHasher,
		BcryptCost:  cfg.Auth.BcryptCost,
		Concurrency: cfg.Auth.HashConcurrency,
	})
	mail := mailer.New(cfg.Mail.APIKey, cfg.Mail.FromName, cfg.Mail.FromEmail, logger.Component(log, "mailer"))
	auth := service.NewAuthService(users, hasher, mail,
		service.AuthConfig{JWTSecret: cfg.Auth.JWTSecret, TokenTTL: cfg.Auth.TokenTTL},
		logger.Component(log, "auth"),
		service.WithDenylist(redisdb.NewTokenDenylist(rdb)),
	)

	var gateway ports.PaymentGateway
	if s := payments.NewStripe(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret); s != nil {
		gateway = s
	} else {
		log.Warn().Msg("STRIPE_SECRET_KEY not set, checkout disabled")
	}
	bookingService := service.NewBookingService(tours, users, bookings, gateway, logger.Component(log, "bookings"))

	// --- HTTP ---
	maxLimit := cfg.Query.MaxLimit
	e := api.NewRouter(api.Deps{
		Auth:        auth,
		RateLimiter: redisdb.NewRateLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window),
		Users: handler.NewUserHandler(users, auth, service.NewUserService(users, log), handler.SessionCookie{
			Lifetime: time.Duration(cfg.Auth.CookieDays) * 24 * time.Hour,
			Secure:   cfg.IsProduction(),
		}, maxLimit, log),
		Tours:    handler.NewTourHandler(tours, service.NewTourService(tours), maxLimit),
		Reviews:  handler.NewReviewHandler(reviewStore, maxLimit),
		Bookings: handler.NewBookingHandler(bookings, bookingService, maxLimit, log),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"mongodb": handler.PingFunc(func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }),
			"redis":   handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		}),
		Log:        log,
		Production: cfg.IsProduction(),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("tours api listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return shutdown(e, dispatcher, log)
}

type server interface {
	Shutdown(ctx context.Context) error
}

func shutdown(e server, dispatcher *queue.Dispatcher, log zerolog.Logger) error {
	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := e.Shutdown(ctx)
	// In-flight requests may still enqueue recalculations until Shutdown
	// returns.
	dispatcher.Stop()
	return err
}
