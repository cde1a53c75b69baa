// Package observability registers the service's prometheus metrics.
package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	activitiesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthrelay",
		Subsystem: "ingest",
		Name:      "activities_ingested_total",
		Help:      "Novel activity records folded into daily aggregates.",
	})
	duplicatesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthrelay",
		Subsystem: "ingest",
		Name:      "duplicate_records_skipped_total",
		Help:      "Redelivered activity records discarded by log id.",
	})
	eventsDebounced = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthrelay",
		Subsystem: "ingest",
		Name:      "webhook_events_debounced_total",
		Help:      "Webhook events skipped by the event-identity dedup layer.",
	})
	notificationsSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthrelay",
		Subsystem: "notify",
		Name:      "notifications_sent_total",
		Help:      "Notifications handed to the delivery sink.",
	})
	notificationsSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthrelay",
		Subsystem: "notify",
		Name:      "notifications_suppressed_total",
		Help:      "Notifications suppressed by the content-identity dedup layer.",
	})
	deliveryErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthrelay",
		Subsystem: "notify",
		Name:      "delivery_errors_total",
		Help:      "Notification delivery attempts that exhausted the retry budget.",
	})
	pollCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthrelay",
		Subsystem: "poller",
		Name:      "cycles_total",
		Help:      "Completed poll cycles.",
	})
	providerErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthrelay",
		Subsystem: "provider",
		Name:      "errors_total",
		Help:      "Provider fetch failures by kind.",
	}, []string{"kind"})
	outboxDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthrelay",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Outbox events delivered to Kafka.",
	})
	outboxFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "healthrelay",
		Subsystem: "outbox",
		Name:      "delivery_failures_total",
		Help:      "Outbox batches that failed to deliver and will be retried.",
	})
)

func init() {
	prometheus.MustRegister(
		activitiesIngested,
		duplicatesSkipped,
		eventsDebounced,
		notificationsSent,
		notificationsSuppressed,
		deliveryErrors,
		pollCycles,
		providerErrors,
		outboxDelivered,
		outboxFailed,
	)
}

func RecordActivityIngested()       { activitiesIngested.Inc() }
func RecordDuplicateSkipped()       { duplicatesSkipped.Inc() }
func RecordEventDebounced()         { eventsDebounced.Inc() }
func RecordNotificationSent()       { notificationsSent.Inc() }
func RecordNotificationSuppressed() { notificationsSuppressed.Inc() }
func RecordDeliveryError()          { deliveryErrors.Inc() }
func RecordPollCycle()              { pollCycles.Inc() }

// RecordProviderError counts a provider failure by kind (auth, transient,
// malformed).
func RecordProviderError(kind string) { providerErrors.WithLabelValues(kind).Inc() }

func RecordOutboxDelivered(n int) { outboxDelivered.Add(float64(n)) }
func RecordOutboxFailure()        { outboxFailed.Inc() }
