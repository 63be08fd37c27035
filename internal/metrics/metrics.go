package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volume_watcher_events_total",
		Help: "Total number of events applied by the worker, by event type and outcome",
	}, []string{"type", "outcome"})

	refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volume_watcher_refreshes_total",
		Help: "Total number of notification refreshes, by kind (immediate or trailing)",
	}, []string{"kind"})

	mutesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volume_watcher_mutes_total",
		Help: "Total number of mute requests, by result",
	}, []string{"result"})

	droppedSignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volume_watcher_dropped_signals_total",
		Help: "Total number of raw signals that did not map to an event, by source",
	}, []string{"source"})

	restartsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "volume_watcher_restarts_total",
		Help: "Total number of restarts scheduled after involuntary termination",
	})

	lifecycleState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "volume_watcher_lifecycle_state",
		Help: "Current lifecycle state (0=stopped 1=starting 2=running 3=stopping-by-user 4=stopping-by-system)",
	})

	armedAlarms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "volume_watcher_armed_alarms",
		Help: "Number of force-mute window alarms currently armed",
	})
)

// RecordEvent counts one applied event. outcome is "ok" or "error".
func RecordEvent(eventType, outcome string) {
	eventsTotal.WithLabelValues(eventType, normalizeOutcome(outcome)).Inc()
}

// RecordRefresh counts one refresh. trailing selects the debounced kind.
func RecordRefresh(trailing bool) {
	kind := "immediate"
	if trailing {
		kind = "trailing"
	}
	refreshesTotal.WithLabelValues(kind).Inc()
}

// RecordMute counts one mute request.
func RecordMute(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	mutesTotal.WithLabelValues(result).Inc()
}

// RecordDroppedSignal counts a raw signal that was filtered out.
func RecordDroppedSignal(source string) {
	if strings.TrimSpace(source) == "" {
		source = "unknown"
	}
	droppedSignalsTotal.WithLabelValues(source).Inc()
}

// RecordRestartScheduled counts a scheduled self-restart.
func RecordRestartScheduled() {
	restartsTotal.Inc()
}

// SetLifecycleState publishes the numeric lifecycle state.
func SetLifecycleState(state int) {
	lifecycleState.Set(float64(state))
}

// SetArmedAlarms publishes the number of armed window alarms.
func SetArmedAlarms(n int) {
	armedAlarms.Set(float64(n))
}

func normalizeOutcome(outcome string) string {
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case "ok", "error", "stale":
		return strings.ToLower(strings.TrimSpace(outcome))
	default:
		return "unknown"
	}
}
