package events

import "time"

// EventType identifies the type of event emitted by a session.
type EventType string

const (
	// EventSessionStarted marks the start of an upstream connection attempt.
	EventSessionStarted EventType = "session.started"
	// EventSessionReady marks upstream confirmation that the session is live.
	EventSessionReady EventType = "session.ready"
	// EventSessionClosed marks session teardown.
	EventSessionClosed EventType = "session.closed"

	// EventUpstreamError marks an error event received from upstream.
	EventUpstreamError EventType = "upstream.error"

	// EventTurnInterrupted marks a user barge-in that cancelled an active response.
	EventTurnInterrupted EventType = "turn.interrupted"

	// EventTranscriptFinal marks a finalized transcript segment for either role.
	EventTranscriptFinal EventType = "transcript.final"

	// EventCallTracked marks the first fragment of a new function call.
	EventCallTracked EventType = "call.tracked"
	// EventCallCompleted marks a call whose arguments were finalized and parsed.
	EventCallCompleted EventType = "call.completed"
	// EventCallFailed marks a call whose arguments could not be made parseable.
	EventCallFailed EventType = "call.failed"
	// EventCallDuplicate marks a completion or dispatch signal for an
	// already-finalized call that was recognized and ignored.
	EventCallDuplicate EventType = "call.duplicate"

	// EventResponseCompleted marks an upstream response.done observation.
	EventResponseCompleted EventType = "response.completed"

	// EventDispatchStarted marks hand-off of a completed call to the executor.
	EventDispatchStarted EventType = "dispatch.started"
	// EventDispatchCompleted marks successful executor completion.
	EventDispatchCompleted EventType = "dispatch.completed"
	// EventDispatchFailed marks executor failure.
	EventDispatchFailed EventType = "dispatch.failed"

	// EventNotifyDropped marks a client event dropped by a slow listener.
	EventNotifyDropped EventType = "notify.dropped"
)

// EventData is a marker interface for event payloads.
type EventData interface {
	eventData()
}

// Event represents a session event delivered to listeners.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Data      EventData
}

// baseEventData provides a shared marker implementation for all event payloads.
type baseEventData struct{}

func (baseEventData) eventData() {}

// SessionLifecycleData is the unified payload for session lifecycle events
// (started, ready, closed). Reason is set on closed.
type SessionLifecycleData struct {
	baseEventData
	Model  string
	Reason string        // Set on closed
	Uptime time.Duration // Set on closed
}

// UpstreamErrorData contains data for upstream error events.
type UpstreamErrorData struct {
	baseEventData
	Code    string
	Message string
}

// TurnInterruptedData contains data for barge-in events.
type TurnInterruptedData struct {
	baseEventData
	Reason string // e.g. "speech_started", "client_cancel"
}

// TranscriptData contains data for finalized transcript events.
// Chars carries length rather than content so listeners never see user text.
type TranscriptData struct {
	baseEventData
	Role  string
	Chars int
}

// CallEventData is the unified payload for call reconstruction lifecycle events
// (tracked, completed, failed, duplicate). Fields like Mode, Repaired, Error,
// Source are zero-valued when not applicable to the current phase.
type CallEventData struct {
	baseEventData
	CallID   string
	Tool     string
	Mode     string        // Set on completed/failed: which signal finalized the call
	Repaired bool          // Set on completed when truncation repair was applied
	Duration time.Duration // Set on completed/failed: first fragment to finalization
	Error    error         // Set on failed
	Source   string        // Set on duplicate: which signal was replayed
}

// ResponseCompletedData contains data for upstream response completion events.
type ResponseCompletedData struct {
	baseEventData
	ResponseID string
	CallCount  int
}

// DispatchEventData is the unified payload for executor dispatch events
// (started, completed, failed). Duration, Status, Error are zero-valued
// when not applicable to the current phase.
type DispatchEventData struct {
	baseEventData
	CallID   string
	Tool     string
	Duration time.Duration // Set on completed/failed
	Status   string        // Set on completed (e.g. "success", "error")
	Error    error         // Set on failed
}

// NotifyDroppedData contains data for listener overflow events.
type NotifyDroppedData struct {
	baseEventData
	Listener  string
	EventType string
}
