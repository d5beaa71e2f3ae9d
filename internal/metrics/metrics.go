package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quiz_attempt"

var (
	// SessionsStarted counts attempts created through the backend.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Attempt sessions started with a fresh backend attempt.",
	})

	// SessionsRestored counts sessions rehydrated from a checkpoint.
	SessionsRestored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_restored_total",
		Help:      "Attempt sessions restored from a checkpoint.",
	})

	// SessionsFinished counts successful submissions by trigger (manual, expiry).
	SessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_finished_total",
		Help:      "Attempt submissions accepted by the backend.",
	}, []string{"trigger"})

	// SessionsAbandoned counts explicit cancellations.
	SessionsAbandoned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_abandoned_total",
		Help:      "Attempt sessions abandoned without submission.",
	})

	// SubmissionFailures counts finish calls rejected or lost in transport.
	SubmissionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submission_failures_total",
		Help:      "Finish attempt calls that failed.",
	}, []string{"trigger"})

	// CheckpointWriteFailures counts best-effort checkpoint writes that failed.
	CheckpointWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkpoint_write_failures_total",
		Help:      "Checkpoint saves or clears that failed.",
	})

	// GuestFallbacks counts read paths retried with a guest session, by resource.
	GuestFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guest_fallbacks_total",
		Help:      "Read requests retried unauthenticated with a guest session.",
	}, []string{"resource", "outcome"})

	// EstimatedStatistics counts statistics responses built from score estimates.
	EstimatedStatistics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "estimated_statistics_total",
		Help:      "Question statistics served from the score based estimate.",
	})
)

// Trigger labels for finish metrics.
const (
	TriggerManual = "manual"
	TriggerExpiry = "expiry"
)
