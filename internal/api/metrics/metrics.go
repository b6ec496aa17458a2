// Package metrics defines the custom Prometheus metrics of the tours API.
// It is the single source of truth for metric names, labels and help
// strings. Metrics register with the default registry on package init and
// are exposed on /metrics next to the HTTP metrics from echoprometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tours"

// ── Auth metrics ──────────────────────────────────────────────────────────────

// SignupsTotal counts accounts created through /users/signup.
var SignupsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signups_total",
		Help:      "Total number of accounts created through sign-up.",
	},
)

// LoginsTotal counts login attempts.
// Label:
//   - result: "ok" or "failed"
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// AuthRejectionsTotal counts requests refused by the protect and role gates.
// Label:
//   - reason: "no_token", "invalid_token", "forbidden"
var AuthRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_rejections_total",
		Help:      "Total number of requests rejected by authentication or authorization.",
	},
	[]string{"reason"},
)

// RateLimitedTotal counts requests refused by the API rate limiter.
var RateLimitedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of requests refused by the rate limiter.",
	},
)

// ── Rating metrics ────────────────────────────────────────────────────────────

// RatingRecalculationsTotal counts tour rating recalculations.
// Label:
//   - result: "ok" or "error"
var RatingRecalculationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rating_recalculations_total",
		Help:      "Total number of tour rating recalculations, by result.",
	},
	[]string{"result"},
)

// RatingsQueueDepth tracks pending recalculations per dispatcher worker.
// Label:
//   - worker_id: numeric worker index
var RatingsQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ratings_queue_depth",
		Help:      "Current number of rating recalculations pending in each worker channel.",
	},
	[]string{"worker_id"},
)

// RatingRecalculationDuration measures one recalculation end to end.
var RatingRecalculationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rating_recalculation_duration_seconds",
		Help:      "Duration of a tour rating recalculation.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"result"},
)

// ── Booking metrics ───────────────────────────────────────────────────────────

// CheckoutSessionsTotal counts checkout sessions opened.
var CheckoutSessionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_sessions_total",
		Help:      "Total number of payment checkout sessions created.",
	},
)

// CheckoutWebhooksTotal counts received payment webhooks.
// Label:
//   - result: "ok" or "rejected"
var CheckoutWebhooksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_webhooks_total",
		Help:      "Total number of payment webhooks received, by result.",
	},
	[]string{"result"},
)
