// Package metrics declares the prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_http_requests_total",
		Help: "HTTP requests by route pattern, method and status code.",
	}, []string{"route", "method", "code"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sched_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// Transitions counts appointment state changes by resulting status.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_appointment_transitions_total",
		Help: "Appointment state transitions by target status.",
	}, []string{"status"})

	Conflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_booking_conflicts_total",
		Help: "Rejected bookings by operation.",
	}, []string{"op"})

	SeriesOccurrences = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sched_series_occurrences",
		Help:    "Occurrences materialized per recurring create.",
		Buckets: []float64{1, 5, 10, 25, 52, 100, 200, 366},
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_notifications_total",
		Help: "Notification deliveries by sink and result.",
	}, []string{"sink", "result"})

	ReminderRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sched_reminder_runs_total",
		Help: "Reminder passes by result (ran, skipped, failed).",
	}, []string{"result"})

	RemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sched_reminders_sent_total",
		Help: "Reminder messages emitted.",
	})
)
