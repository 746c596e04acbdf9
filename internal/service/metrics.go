package service

import (
	"errors"

	"storytrain/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	operationStart    = "start"
	operationContinue = "continue"
	operationBlock    = "generate_block"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storytrain_turns_total",
			Help: "Total number of story turns by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)
	turnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storytrain_turn_duration_seconds",
			Help:    "Histogram of end-to-end turn durations, generation included.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		},
		[]string{"operation"},
	)
	sessionLockWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storytrain_session_lock_wait_seconds",
			Help:    "Time spent waiting for the per-session lock.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~260s
		},
	)
)

// outcomeOf maps a turn error to a low-cardinality label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, models.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, models.ErrBlockNotFound):
		return "block_not_found"
	case errors.Is(err, models.ErrInvalidChoice):
		return "invalid_choice"
	case errors.Is(err, models.ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, models.ErrSessionBusy):
		return "busy"
	case errors.Is(err, models.ErrConcurrentTurn):
		return "conflict"
	default:
		return "error"
	}
}
