package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AltairaLabs/RelayKit/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestRecordSessionStartEnd(t *testing.T) {
	sessionsActive.Set(0)
	sessionDuration.Reset()

	RecordSessionStart()
	active := testutil.ToFloat64(sessionsActive)
	if active != 1 {
		t.Errorf("Expected 1 active session, got %f", active)
	}

	RecordSessionStart()
	active = testutil.ToFloat64(sessionsActive)
	if active != 2 {
		t.Errorf("Expected 2 active sessions, got %f", active)
	}

	RecordSessionEnd("client_disconnect", 30.0)
	active = testutil.ToFloat64(sessionsActive)
	if active != 1 {
		t.Errorf("Expected 1 active session after end, got %f", active)
	}

	RecordSessionEnd("shutdown", 5.0)
	active = testutil.ToFloat64(sessionsActive)
	if active != 0 {
		t.Errorf("Expected 0 active sessions after end, got %f", active)
	}

	if count := testutil.CollectAndCount(sessionDuration); count == 0 {
		t.Error("Expected non-zero session duration observations")
	}
}

func TestRecordCallTracked(t *testing.T) {
	// Plain counters have no Reset, so assert the delta.
	before := testutil.ToFloat64(callsTrackedTotal)

	RecordCallTracked()
	RecordCallTracked()

	if got := testutil.ToFloat64(callsTrackedTotal) - before; got != 2 {
		t.Errorf("Expected 2 tracked calls, got %f", got)
	}
}

func TestRecordCallCompletion(t *testing.T) {
	callCompletionsTotal.Reset()
	callReconstructionDuration.Reset()
	repairsBefore := testutil.ToFloat64(callRepairsTotal)

	RecordCallCompletion("authoritative", false, 0.2)
	RecordCallCompletion("authoritative", true, 0.5)
	RecordCallCompletion("enumerated", false, 0.1)

	authoritative := testutil.ToFloat64(callCompletionsTotal.WithLabelValues("authoritative"))
	enumerated := testutil.ToFloat64(callCompletionsTotal.WithLabelValues("enumerated"))

	if authoritative != 2 {
		t.Errorf("Expected 2 authoritative completions, got %f", authoritative)
	}
	if enumerated != 1 {
		t.Errorf("Expected 1 enumerated completion, got %f", enumerated)
	}
	if repairs := testutil.ToFloat64(callRepairsTotal) - repairsBefore; repairs != 1 {
		t.Errorf("Expected 1 repair, got %f", repairs)
	}
	if count := testutil.CollectAndCount(callReconstructionDuration); count == 0 {
		t.Error("Expected non-zero reconstruction duration observations")
	}
}

func TestRecordCallFailure(t *testing.T) {
	callFailuresTotal.Reset()

	RecordCallFailure("timeout", 2.0)
	RecordCallFailure("timeout", 2.1)

	timeouts := testutil.ToFloat64(callFailuresTotal.WithLabelValues("timeout"))
	if timeouts != 2 {
		t.Errorf("Expected 2 timeout failures, got %f", timeouts)
	}
}

func TestRecordCallDuplicate(t *testing.T) {
	callDuplicatesTotal.Reset()

	RecordCallDuplicate("authoritative")
	RecordCallDuplicate("enumerated")
	RecordCallDuplicate("enumerated")

	authoritative := testutil.ToFloat64(callDuplicatesTotal.WithLabelValues("authoritative"))
	enumerated := testutil.ToFloat64(callDuplicatesTotal.WithLabelValues("enumerated"))

	if authoritative != 1 {
		t.Errorf("Expected 1 authoritative duplicate, got %f", authoritative)
	}
	if enumerated != 2 {
		t.Errorf("Expected 2 enumerated duplicates, got %f", enumerated)
	}
}

func TestRecordDispatch(t *testing.T) {
	dispatchDuration.Reset()
	dispatchesTotal.Reset()

	RecordDispatch("create_task", "success", 0.3)
	RecordDispatch("create_task", "success", 0.1)
	RecordDispatch("capture_note", "error", 1.0)

	successCount := testutil.ToFloat64(dispatchesTotal.WithLabelValues("create_task", "success"))
	errorCount := testutil.ToFloat64(dispatchesTotal.WithLabelValues("capture_note", "error"))

	if successCount != 2 {
		t.Errorf("Expected 2 success dispatches, got %f", successCount)
	}
	if errorCount != 1 {
		t.Errorf("Expected 1 error dispatch, got %f", errorCount)
	}
}

func TestRecordUpstreamError(t *testing.T) {
	upstreamErrorsTotal.Reset()

	RecordUpstreamError("rate_limit_exceeded")
	RecordUpstreamError("rate_limit_exceeded")
	RecordUpstreamError("invalid_request")

	rateLimited := testutil.ToFloat64(upstreamErrorsTotal.WithLabelValues("rate_limit_exceeded"))
	invalid := testutil.ToFloat64(upstreamErrorsTotal.WithLabelValues("invalid_request"))

	if rateLimited != 2 {
		t.Errorf("Expected 2 rate limit errors, got %f", rateLimited)
	}
	if invalid != 1 {
		t.Errorf("Expected 1 invalid request error, got %f", invalid)
	}
}

func TestRecordTranscriptSegment(t *testing.T) {
	transcriptSegmentsTotal.Reset()

	RecordTranscriptSegment("user")
	RecordTranscriptSegment("assistant")
	RecordTranscriptSegment("user")

	userCount := testutil.ToFloat64(transcriptSegmentsTotal.WithLabelValues("user"))
	assistantCount := testutil.ToFloat64(transcriptSegmentsTotal.WithLabelValues("assistant"))

	if userCount != 2 {
		t.Errorf("Expected 2 user segments, got %f", userCount)
	}
	if assistantCount != 1 {
		t.Errorf("Expected 1 assistant segment, got %f", assistantCount)
	}
}

func TestNewExporter(t *testing.T) {
	exporter := NewExporter(":9091")
	if exporter == nil {
		t.Fatal("Expected non-nil exporter")
	}
	if exporter.Registry() == nil {
		t.Error("Expected non-nil registry")
	}
}

func TestNewExporterWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9092", reg)

	if exporter.Registry() != reg {
		t.Error("Expected custom registry to be used")
	}
}

func TestExporterHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "test_counter",
		Help: "Test counter",
	})
	reg.MustRegister(counter)
	counter.Inc()

	exporter := NewExporterWithRegistry(":9093", reg)
	handler := exporter.Handler()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	resp := rec.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "test_counter") {
		t.Error("Expected response to contain test_counter metric")
	}
}

func TestExporterRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9094", reg)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "custom_counter",
		Help: "Custom counter",
	})

	err := exporter.Register(counter)
	if err != nil {
		t.Errorf("Expected no error registering counter, got %v", err)
	}

	// Registering again should fail
	err = exporter.Register(counter)
	if err == nil {
		t.Error("Expected error when registering duplicate counter")
	}
}

func TestExporterMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9095", reg)

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "must_register_counter",
		Help: "Must register counter",
	})

	// Should not panic
	exporter.MustRegister(counter)
}

func TestExporterSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	exporter := NewExporterWithRegistry(":9096", reg)

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshot_requests_total",
		Help: "Requests observed by the snapshot test",
	}, []string{"route"})
	exporter.MustRegister(counter)
	counter.WithLabelValues("/capture").Add(3)

	out, err := exporter.Snapshot()
	if err != nil {
		t.Fatalf("Expected no error from Snapshot, got %v", err)
	}

	if !strings.Contains(out, "# TYPE snapshot_requests_total counter") {
		t.Errorf("Expected TYPE line in snapshot, got:\n%s", out)
	}
	if !strings.Contains(out, `snapshot_requests_total{route="/capture"} 3`) {
		t.Errorf("Expected labeled sample in snapshot, got:\n%s", out)
	}
}

func TestExporterGatherFamilies(t *testing.T) {
	sessionsActive.Set(0)
	dispatchesTotal.Reset()

	exporter := NewExporter(":9097")
	RecordSessionStart()
	RecordDispatch("create_task", "success", 0.25)

	families, err := exporter.Registry().Gather()
	if err != nil {
		t.Fatalf("Expected no error from Gather, got %v", err)
	}

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, family := range families {
		byName[family.GetName()] = family
	}

	gauge, ok := byName["relaykit_sessions_active"]
	if !ok {
		t.Fatal("Expected relaykit_sessions_active in gathered families")
	}
	if gauge.GetType() != dto.MetricType_GAUGE {
		t.Errorf("Expected gauge type, got %v", gauge.GetType())
	}
	if got := gauge.GetMetric()[0].GetGauge().GetValue(); got != 1 {
		t.Errorf("Expected gauge value 1, got %f", got)
	}

	dispatches, ok := byName["relaykit_dispatches_total"]
	if !ok {
		t.Fatal("Expected relaykit_dispatches_total in gathered families")
	}
	if dispatches.GetType() != dto.MetricType_COUNTER {
		t.Errorf("Expected counter type, got %v", dispatches.GetType())
	}
	labels := map[string]string{}
	for _, pair := range dispatches.GetMetric()[0].GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	if labels["tool"] != "create_task" || labels["status"] != "success" {
		t.Errorf("Unexpected dispatch labels: %v", labels)
	}

	out, err := exporter.Snapshot()
	if err != nil {
		t.Fatalf("Expected no error from Snapshot, got %v", err)
	}
	if !strings.Contains(out, "relaykit_sessions_active 1") {
		t.Errorf("Expected active session gauge in snapshot, got:\n%s", out)
	}
}

func TestExporterStartShutdown(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	// Start in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- exporter.Start()
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	// Shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := exporter.Shutdown(ctx)
	if err != nil {
		t.Errorf("Expected no error on shutdown, got %v", err)
	}

	// Start should have returned with ErrServerClosed
	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			t.Errorf("Expected ErrServerClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for server to stop")
	}
}

func TestExporterDoubleStart(t *testing.T) {
	exporter := NewExporterWithRegistry(":0", prometheus.NewRegistry())

	go func() {
		_ = exporter.Start()
	}()

	time.Sleep(100 * time.Millisecond)

	// Second start should return nil immediately
	err := exporter.Start()
	if err != nil {
		t.Errorf("Expected nil on double start, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = exporter.Shutdown(ctx)
}

func TestMetricsListener(t *testing.T) {
	// Reset all resettable metrics
	sessionsActive.Set(0)
	sessionDuration.Reset()
	callCompletionsTotal.Reset()
	callFailuresTotal.Reset()
	callDuplicatesTotal.Reset()
	callReconstructionDuration.Reset()
	dispatchDuration.Reset()
	dispatchesTotal.Reset()
	upstreamErrorsTotal.Reset()
	turnInterruptionsTotal.Reset()
	transcriptSegmentsTotal.Reset()
	notifyDropsTotal.Reset()

	listener := NewMetricsListener()

	// Test session started
	listener.Handle(&events.Event{
		Type: events.EventSessionStarted,
		Data: events.SessionLifecycleData{Model: "gpt-4o-realtime-preview"},
	})
	active := testutil.ToFloat64(sessionsActive)
	if active != 1 {
		t.Errorf("Expected 1 active session after start event, got %f", active)
	}

	// Test session closed
	listener.Handle(&events.Event{
		Type: events.EventSessionClosed,
		Data: events.SessionLifecycleData{Reason: "client_disconnect", Uptime: 42 * time.Second},
	})
	active = testutil.ToFloat64(sessionsActive)
	if active != 0 {
		t.Errorf("Expected 0 active sessions after closed event, got %f", active)
	}

	// Test call tracked
	trackedBefore := testutil.ToFloat64(callsTrackedTotal)
	listener.Handle(&events.Event{
		Type: events.EventCallTracked,
		Data: events.CallEventData{CallID: "call_1", Tool: "create_task"},
	})
	if got := testutil.ToFloat64(callsTrackedTotal) - trackedBefore; got != 1 {
		t.Errorf("Expected 1 tracked call after tracked event, got %f", got)
	}

	// Test call completed
	listener.Handle(&events.Event{
		Type: events.EventCallCompleted,
		Data: events.CallEventData{
			CallID:   "call_1",
			Tool:     "create_task",
			Mode:     "authoritative",
			Repaired: true,
			Duration: 850 * time.Millisecond,
		},
	})
	completed := testutil.ToFloat64(callCompletionsTotal.WithLabelValues("authoritative"))
	if completed != 1 {
		t.Errorf("Expected 1 authoritative completion, got %f", completed)
	}

	// Test call failed
	listener.Handle(&events.Event{
		Type: events.EventCallFailed,
		Data: events.CallEventData{
			CallID:   "call_2",
			Tool:     "create_task",
			Mode:     "timeout",
			Duration: 2 * time.Second,
		},
	})
	failed := testutil.ToFloat64(callFailuresTotal.WithLabelValues("timeout"))
	if failed != 1 {
		t.Errorf("Expected 1 timeout failure, got %f", failed)
	}

	// Test call duplicate
	listener.Handle(&events.Event{
		Type: events.EventCallDuplicate,
		Data: events.CallEventData{CallID: "call_1", Source: "enumerated"},
	})
	dup := testutil.ToFloat64(callDuplicatesTotal.WithLabelValues("enumerated"))
	if dup != 1 {
		t.Errorf("Expected 1 enumerated duplicate, got %f", dup)
	}

	// Test dispatch completed
	listener.Handle(&events.Event{
		Type: events.EventDispatchCompleted,
		Data: events.DispatchEventData{
			CallID:   "call_1",
			Tool:     "create_task",
			Status:   "success",
			Duration: 120 * time.Millisecond,
		},
	})
	dispatchSuccess := testutil.ToFloat64(dispatchesTotal.WithLabelValues("create_task", "success"))
	if dispatchSuccess != 1 {
		t.Errorf("Expected 1 success dispatch, got %f", dispatchSuccess)
	}

	// Test dispatch failed
	listener.Handle(&events.Event{
		Type: events.EventDispatchFailed,
		Data: events.DispatchEventData{
			CallID:   "call_3",
			Tool:     "capture_note",
			Duration: 300 * time.Millisecond,
		},
	})
	dispatchError := testutil.ToFloat64(dispatchesTotal.WithLabelValues("capture_note", "error"))
	if dispatchError != 1 {
		t.Errorf("Expected 1 error dispatch, got %f", dispatchError)
	}

	// Test upstream error
	listener.Handle(&events.Event{
		Type: events.EventUpstreamError,
		Data: events.UpstreamErrorData{Code: "rate_limit_exceeded", Message: "too many requests"},
	})
	upstream := testutil.ToFloat64(upstreamErrorsTotal.WithLabelValues("rate_limit_exceeded"))
	if upstream != 1 {
		t.Errorf("Expected 1 upstream error, got %f", upstream)
	}

	// Test response completed
	responsesBefore := testutil.ToFloat64(responsesCompletedTotal)
	listener.Handle(&events.Event{
		Type: events.EventResponseCompleted,
		Data: events.ResponseCompletedData{ResponseID: "resp_1", CallCount: 2},
	})
	if got := testutil.ToFloat64(responsesCompletedTotal) - responsesBefore; got != 1 {
		t.Errorf("Expected 1 completed response, got %f", got)
	}

	// Test turn interrupted
	listener.Handle(&events.Event{
		Type: events.EventTurnInterrupted,
		Data: events.TurnInterruptedData{Reason: "speech_started"},
	})
	interrupted := testutil.ToFloat64(turnInterruptionsTotal.WithLabelValues("speech_started"))
	if interrupted != 1 {
		t.Errorf("Expected 1 interruption, got %f", interrupted)
	}

	// Test transcript final
	listener.Handle(&events.Event{
		Type: events.EventTranscriptFinal,
		Data: events.TranscriptData{Role: "user", Chars: 42},
	})
	transcripts := testutil.ToFloat64(transcriptSegmentsTotal.WithLabelValues("user"))
	if transcripts != 1 {
		t.Errorf("Expected 1 user transcript segment, got %f", transcripts)
	}

	// Test notify dropped
	listener.Handle(&events.Event{
		Type: events.EventNotifyDropped,
		Data: events.NotifyDroppedData{Listener: "webhook", EventType: "call.completed"},
	})
	drops := testutil.ToFloat64(notifyDropsTotal.WithLabelValues("webhook"))
	if drops != 1 {
		t.Errorf("Expected 1 notify drop, got %f", drops)
	}
}

func TestMetricsListenerFunction(t *testing.T) {
	listener := NewMetricsListener()
	fn := listener.Listener()

	if fn == nil {
		t.Error("Expected non-nil listener function")
	}

	// Verify it's callable
	sessionsActive.Set(0)
	fn(&events.Event{
		Type: events.EventSessionStarted,
		Data: events.SessionLifecycleData{},
	})

	active := testutil.ToFloat64(sessionsActive)
	if active != 1 {
		t.Errorf("Expected 1 active session via listener function, got %f", active)
	}
}

func TestMetricsListenerDispatchCompletedWithError(t *testing.T) {
	dispatchesTotal.Reset()

	listener := NewMetricsListener()

	// Dispatch completed with error status
	listener.Handle(&events.Event{
		Type: events.EventDispatchCompleted,
		Data: events.DispatchEventData{
			Tool:     "failing_tool",
			Status:   "error",
			Duration: 100 * time.Millisecond,
		},
	})

	errorCount := testutil.ToFloat64(dispatchesTotal.WithLabelValues("failing_tool", "error"))
	if errorCount != 1 {
		t.Errorf("Expected 1 dispatch error for completed with error status, got %f", errorCount)
	}
}

func TestMetricsListenerIgnoresUnknownEvents(t *testing.T) {
	listener := NewMetricsListener()

	// These should not panic
	listener.Handle(&events.Event{
		Type: events.EventSessionReady,
		Data: events.SessionLifecycleData{},
	})

	listener.Handle(&events.Event{
		Type: events.EventDispatchStarted,
		Data: events.DispatchEventData{},
	})

	listener.Handle(&events.Event{
		Type: events.EventType("unknown.event"),
	})
}

func TestMetricsListenerNilData(t *testing.T) {
	listener := NewMetricsListener()

	// These should not panic even with nil data
	listener.Handle(&events.Event{
		Type: events.EventSessionClosed,
		Data: nil,
	})

	listener.Handle(&events.Event{
		Type: events.EventCallCompleted,
		Data: nil,
	})
}
