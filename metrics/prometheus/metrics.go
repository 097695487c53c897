// Package prometheus provides Prometheus metrics exporters for RelayKit sessions.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relaykit"

var (
	// sessionsActive is a gauge of currently active realtime sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active realtime sessions",
		},
	)

	// sessionDuration is a histogram of session lifetime from accept to teardown.
	sessionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Histogram of session lifetime in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"reason"}, // reason: client_disconnect, upstream_error, shutdown
	)

	// callsTrackedTotal is a counter of calls registered for reconstruction.
	callsTrackedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_tracked_total",
			Help:      "Total number of function calls registered for argument reconstruction",
		},
	)

	// callCompletionsTotal is a counter of calls finalized with usable arguments.
	callCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_completions_total",
			Help:      "Total number of function calls finalized with usable arguments",
		},
		[]string{"mode"}, // mode: authoritative, enumerated, timeout
	)

	// callFailuresTotal is a counter of calls finalized without usable arguments.
	callFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_failures_total",
			Help:      "Total number of function calls finalized without usable arguments",
		},
		[]string{"mode"}, // mode: authoritative, enumerated, timeout
	)

	// callRepairsTotal is a counter of completions that needed truncation repair.
	callRepairsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_repairs_total",
			Help:      "Total number of completions that required truncation repair of the argument stream",
		},
	)

	// callDuplicatesTotal is a counter of suppressed duplicate completion signals.
	callDuplicatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "call_duplicates_total",
			Help:      "Total number of duplicate completion signals suppressed",
		},
		[]string{"source"}, // source: authoritative, enumerated
	)

	// callReconstructionDuration is a histogram of first fragment to finalization.
	callReconstructionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_reconstruction_duration_seconds",
			Help:      "Time from first argument fragment to finalization in seconds",
			Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
		},
		[]string{"mode"},
	)

	// dispatchDuration is a histogram of handler execution time per dispatch.
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of tool handler execution in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"tool"},
	)

	// dispatchesTotal is a counter of call dispatches.
	dispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Total number of call dispatches",
		},
		[]string{"tool", "status"}, // status: success, error
	)

	// upstreamErrorsTotal is a counter of error events from the upstream service.
	upstreamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Total number of error events received from the upstream realtime service",
		},
		[]string{"code"},
	)

	// responsesCompletedTotal is a counter of upstream responses run to completion.
	responsesCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_completed_total",
			Help:      "Total number of upstream responses that ran to completion",
		},
	)

	// turnInterruptionsTotal is a counter of assistant turns cancelled mid-response.
	turnInterruptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_interruptions_total",
			Help:      "Total number of assistant turns cancelled mid-response",
		},
		[]string{"reason"}, // reason: speech_started, client_cancel
	)

	// transcriptSegmentsTotal is a counter of finalized transcript segments.
	transcriptSegmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_segments_total",
			Help:      "Total number of finalized transcript segments",
		},
		[]string{"role"}, // role: user, assistant
	)

	// notifyDropsTotal is a counter of events dropped by saturated listeners.
	notifyDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_drops_total",
			Help:      "Total number of events dropped because a listener buffer was full",
		},
		[]string{"listener"},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		sessionsActive,
		sessionDuration,
		callsTrackedTotal,
		callCompletionsTotal,
		callFailuresTotal,
		callRepairsTotal,
		callDuplicatesTotal,
		callReconstructionDuration,
		dispatchDuration,
		dispatchesTotal,
		upstreamErrorsTotal,
		responsesCompletedTotal,
		turnInterruptionsTotal,
		transcriptSegmentsTotal,
		notifyDropsTotal,
	}
)

// RecordSessionStart records a session accept.
func RecordSessionStart() {
	sessionsActive.Inc()
}

// RecordSessionEnd records a session teardown.
func RecordSessionEnd(reason string, durationSeconds float64) {
	sessionsActive.Dec()
	sessionDuration.WithLabelValues(reason).Observe(durationSeconds)
}

// RecordCallTracked records a call registered for reconstruction.
func RecordCallTracked() {
	callsTrackedTotal.Inc()
}

// RecordCallCompletion records a call finalized with usable arguments.
func RecordCallCompletion(mode string, repaired bool, durationSeconds float64) {
	callCompletionsTotal.WithLabelValues(mode).Inc()
	callReconstructionDuration.WithLabelValues(mode).Observe(durationSeconds)
	if repaired {
		callRepairsTotal.Inc()
	}
}

// RecordCallFailure records a call finalized without usable arguments.
func RecordCallFailure(mode string, durationSeconds float64) {
	callFailuresTotal.WithLabelValues(mode).Inc()
	callReconstructionDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordCallDuplicate records a suppressed duplicate completion signal.
func RecordCallDuplicate(source string) {
	callDuplicatesTotal.WithLabelValues(source).Inc()
}

// RecordDispatch records a tool handler dispatch.
func RecordDispatch(tool, status string, durationSeconds float64) {
	dispatchDuration.WithLabelValues(tool).Observe(durationSeconds)
	dispatchesTotal.WithLabelValues(tool, status).Inc()
}

// RecordUpstreamError records an error event from the upstream service.
func RecordUpstreamError(code string) {
	upstreamErrorsTotal.WithLabelValues(code).Inc()
}

// RecordResponseCompleted records an upstream response that ran to completion.
func RecordResponseCompleted() {
	responsesCompletedTotal.Inc()
}

// RecordTurnInterrupted records an assistant turn cancelled mid-response.
func RecordTurnInterrupted(reason string) {
	turnInterruptionsTotal.WithLabelValues(reason).Inc()
}

// RecordTranscriptSegment records a finalized transcript segment.
func RecordTranscriptSegment(role string) {
	transcriptSegmentsTotal.WithLabelValues(role).Inc()
}

// RecordNotifyDrop records an event dropped by a saturated listener.
func RecordNotifyDrop(listener string) {
	notifyDropsTotal.WithLabelValues(listener).Inc()
}
