package statemachine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeError   = "error"
	outcomeInvalid = "invalid"
)

// Metric definitions with appropriate labels.
var (
	// TransitionsTotal counts performed transitions by machine, event and outcome.
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_transitions_total",
		Help: "Total number of transitions by machine, event and outcome (success, failure, error or invalid)",
	}, []string{"machine", "event", "outcome"})

	// CallbackHaltsTotal counts callback chains stopped by a halt.
	callbackHaltsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_callback_halts_total",
		Help: "Total number of halted callback chains by machine and callback type",
	}, []string{"machine", "type"})

	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_rollbacks_total",
		Help: "Total number of rolled back transitions by machine",
	}, []string{"machine"})

	pausesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "statemachine_pauses_total",
		Help: "Total number of transitions paused inside an around callback by machine",
	}, []string{"machine"})

	// PerformDuration tracks how long a whole collection takes to perform.
	performDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statemachine_perform_duration_seconds",
		Help:    "Duration of performing a set of transitions by outcome",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"outcome"})

	// ActionDuration tracks machine action execution time.
	actionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "statemachine_action_duration_seconds",
		Help:    "Duration of machine action execution by machine and action",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"machine", "action"})
)

func sanitizeEvent(event string) string {
	if event == "" {
		return "none"
	}

	return event
}

func outcomeOf(ok bool, err error) string {
	switch {
	case err != nil:
		return outcomeError
	case ok:
		return outcomeSuccess
	default:
		return outcomeFailure
	}
}
