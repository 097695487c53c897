package events

import "time"

// Emitter provides helpers for publishing session events with shared metadata.
// A nil Emitter (or one with a nil bus) discards everything, so instrumented
// code never needs a guard.
type Emitter struct {
	bus       *EventBus
	sessionID string
}

// NewEmitter creates a new event emitter bound to a session.
func NewEmitter(bus *EventBus, sessionID string) *Emitter {
	return &Emitter{
		bus:       bus,
		sessionID: sessionID,
	}
}

// emit publishes an event with shared context fields.
func (e *Emitter) emit(eventType EventType, data EventData) {
	if e == nil || e.bus == nil {
		return
	}

	e.bus.Publish(&Event{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Data:      data,
	})
}

// SessionStarted emits the session.started event.
func (e *Emitter) SessionStarted(model string) {
	e.emit(EventSessionStarted, SessionLifecycleData{
		Model: model,
	})
}

// SessionReady emits the session.ready event.
func (e *Emitter) SessionReady(model string) {
	e.emit(EventSessionReady, SessionLifecycleData{
		Model: model,
	})
}

// SessionClosed emits the session.closed event.
func (e *Emitter) SessionClosed(reason string, uptime time.Duration) {
	e.emit(EventSessionClosed, SessionLifecycleData{
		Reason: reason,
		Uptime: uptime,
	})
}

// UpstreamError emits the upstream.error event.
func (e *Emitter) UpstreamError(code, message string) {
	e.emit(EventUpstreamError, UpstreamErrorData{
		Code:    code,
		Message: message,
	})
}

// TurnInterrupted emits the turn.interrupted event.
func (e *Emitter) TurnInterrupted(reason string) {
	e.emit(EventTurnInterrupted, TurnInterruptedData{
		Reason: reason,
	})
}

// TranscriptFinal emits the transcript.final event.
func (e *Emitter) TranscriptFinal(role string, chars int) {
	e.emit(EventTranscriptFinal, TranscriptData{
		Role:  role,
		Chars: chars,
	})
}

// CallTracked emits the call.tracked event.
func (e *Emitter) CallTracked(callID, tool string) {
	e.emit(EventCallTracked, CallEventData{
		CallID: callID,
		Tool:   tool,
	})
}

// CallCompleted emits the call.completed event.
func (e *Emitter) CallCompleted(callID, tool, mode string, repaired bool, duration time.Duration) {
	e.emit(EventCallCompleted, CallEventData{
		CallID:   callID,
		Tool:     tool,
		Mode:     mode,
		Repaired: repaired,
		Duration: duration,
	})
}

// CallFailed emits the call.failed event.
func (e *Emitter) CallFailed(callID, tool, mode string, err error, duration time.Duration) {
	e.emit(EventCallFailed, CallEventData{
		CallID:   callID,
		Tool:     tool,
		Mode:     mode,
		Error:    err,
		Duration: duration,
	})
}

// CallDuplicate emits the call.duplicate event.
func (e *Emitter) CallDuplicate(callID, source string) {
	e.emit(EventCallDuplicate, CallEventData{
		CallID: callID,
		Source: source,
	})
}

// ResponseCompleted emits the response.completed event.
func (e *Emitter) ResponseCompleted(responseID string, callCount int) {
	e.emit(EventResponseCompleted, ResponseCompletedData{
		ResponseID: responseID,
		CallCount:  callCount,
	})
}

// DispatchStarted emits the dispatch.started event.
func (e *Emitter) DispatchStarted(callID, tool string) {
	e.emit(EventDispatchStarted, DispatchEventData{
		CallID: callID,
		Tool:   tool,
	})
}

// DispatchCompleted emits the dispatch.completed event.
func (e *Emitter) DispatchCompleted(callID, tool string, duration time.Duration, status string) {
	e.emit(EventDispatchCompleted, DispatchEventData{
		CallID:   callID,
		Tool:     tool,
		Duration: duration,
		Status:   status,
	})
}

// DispatchFailed emits the dispatch.failed event.
func (e *Emitter) DispatchFailed(callID, tool string, err error, duration time.Duration) {
	e.emit(EventDispatchFailed, DispatchEventData{
		CallID:   callID,
		Tool:     tool,
		Error:    err,
		Duration: duration,
	})
}

// NotifyDropped emits the notify.dropped event.
func (e *Emitter) NotifyDropped(listener, eventType string) {
	e.emit(EventNotifyDropped, NotifyDroppedData{
		Listener:  listener,
		EventType: eventType,
	})
}
