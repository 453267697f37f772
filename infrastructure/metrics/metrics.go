// Package metrics exposes Prometheus collectors for sessions, actions and replays.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

var (
	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "portalpilot",
		Name:      "sessions_active",
		Help:      "Number of live browser sessions.",
	})
	metricActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portalpilot",
		Name:      "actions_total",
		Help:      "Live actions executed, by action type and outcome.",
	}, []string{"action", "outcome"})
	metricActionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "portalpilot",
		Name:      "action_duration_seconds",
		Help:      "Browser action latency including the follow-up screenshot.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"action"})
	metricReplaySteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portalpilot",
		Name:      "replay_steps_total",
		Help:      "Replayed steps, by outcome.",
	}, []string{"outcome"})
	metricReplays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portalpilot",
		Name:      "replays_total",
		Help:      "Completed replays.",
	})
	metricEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portalpilot",
		Name:      "idle_evictions_total",
		Help:      "Sessions closed by the idle sweep.",
	})
)

// SessionOpened increments the active session gauge.
func SessionOpened() { metricActiveSessions.Inc() }

// SessionClosed decrements the active session gauge.
func SessionClosed() { metricActiveSessions.Dec() }

// ObserveAction records one live action.
func ObserveAction(action string, err error, elapsed time.Duration) {
	metricActions.WithLabelValues(action, outcome(err)).Inc()
	metricActionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// ReplayStep records one replayed step.
func ReplayStep(err error) {
	metricReplaySteps.WithLabelValues(outcome(err)).Inc()
}

// ReplayFinished records a completed replay.
func ReplayFinished() { metricReplays.Inc() }

// IdleEviction records a session closed for inactivity.
func IdleEviction() { metricEvictions.Inc() }

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeFailed
	}
	return OutcomeOK
}
