package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reservo"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status code class.",
		},
		[]string{"endpoint", "code"},
	)

	checkouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by result.",
		},
		[]string{"result"},
	)

	checkoutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_duration_seconds",
			Help:      "Duration of the checkout transaction.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	reservationsConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_confirmed_total",
			Help:      "Confirmed reservations by origin (converted hold or new row).",
		},
		[]string{"origin"},
	)

	holds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_total",
			Help:      "Soft hold events by outcome.",
		},
		[]string{"outcome"},
	)

	cartEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_prune_evictions_total",
			Help:      "Cart ranges removed because their holds no longer cover them.",
		},
	)

	rebalanceCancellations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rebalance_cancellations_total",
			Help:      "Reservations cancelled after an item capacity reduction.",
		},
	)

	notificationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Notifications that could not be recorded.",
		},
	)

	reminders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_total",
			Help:      "Reminder jobs by kind and result.",
		},
		[]string{"kind", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			checkouts,
			checkoutDuration,
			reservationsConfirmed,
			holds,
			cartEvictions,
			rebalanceCancellations,
			notificationFailures,
			reminders,
		)
	})
}

// IncHTTP counts a request for an endpoint label and status code class ("2xx").
func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

func ObserveCheckout(result string, d time.Duration) {
	checkouts.WithLabelValues(result).Inc()
	checkoutDuration.Observe(d.Seconds())
}

func IncReservationConfirmed(origin string) {
	reservationsConfirmed.WithLabelValues(origin).Inc()
}

// IncHold counts hold outcomes: acquired, rejected, expired, released.
func IncHold(outcome string, n int) {
	holds.WithLabelValues(outcome).Add(float64(n))
}

func IncCartEviction() {
	cartEvictions.Inc()
}

func AddRebalanceCancellations(n int) {
	rebalanceCancellations.Add(float64(n))
}

func IncNotificationFailure() {
	notificationFailures.Inc()
}

func IncReminder(kind, result string) {
	reminders.WithLabelValues(kind, result).Inc()
}
