package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/RelayKit/events"
)

// spanEntry tracks an in-flight span and its context.
type spanEntry struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// sessionState tracks the root span for a session.
type sessionState struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// pendingEnd buffers a span completion that arrived before the corresponding start.
// The EventBus dispatches events on a worker pool, so completion events can
// race ahead of start events.
type pendingEnd struct {
	errMsg string // empty means success
	attrs  []attribute.KeyValue
}

// OTelEventListener converts session events into OTel spans in real time.
// Each session gets a root span; call reconstruction and dispatch get child
// spans keyed by call id. It is safe for concurrent use and tolerates
// out-of-order event delivery.
type OTelEventListener struct {
	tracer trace.Tracer

	mu          sync.Mutex
	sessions    map[string]*sessionState // sessionID → root span + ctx
	inflight    map[string]*spanEntry    // "call:<id>" / "dispatch:<id>" → span + ctx
	pendingEnds map[string]*pendingEnd   // buffered completions for out-of-order delivery
}

// NewOTelEventListener creates a listener that creates OTel spans from session events.
func NewOTelEventListener(tracer trace.Tracer) *OTelEventListener {
	return &OTelEventListener{
		tracer:      tracer,
		sessions:    make(map[string]*sessionState),
		inflight:    make(map[string]*spanEntry),
		pendingEnds: make(map[string]*pendingEnd),
	}
}

// StartSession creates a root span for the given session, optionally parented
// under the span context in parentCtx.
func (l *OTelEventListener) StartSession(parentCtx context.Context, sessionID string) {
	ctx, span := l.tracer.Start(parentCtx, "relaykit.session",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	l.mu.Lock()
	l.sessions[sessionID] = &sessionState{span: span, ctx: ctx}
	l.mu.Unlock()
}

// EndSession ends the root span for the given session.
func (l *OTelEventListener) EndSession(sessionID string) {
	l.mu.Lock()
	ss, ok := l.sessions[sessionID]
	if ok {
		delete(l.sessions, sessionID)
	}
	l.mu.Unlock()
	if ok {
		ss.span.End()
	}
}

// OnEvent handles a single session event and creates/completes OTel spans accordingly.
// It is safe for concurrent use and can be passed to EventBus.SubscribeAll.
func (l *OTelEventListener) OnEvent(evt *events.Event) {
	//nolint:exhaustive // Only handling span-producing events
	switch evt.Type {
	case events.EventSessionReady:
		l.handleSessionReady(evt)
	case events.EventSessionClosed:
		l.handleSessionClosed(evt)
	case events.EventCallTracked:
		l.startCall(evt)
	case events.EventCallCompleted:
		l.completeCall(evt)
	case events.EventCallFailed:
		l.failCall(evt)
	case events.EventCallDuplicate:
		l.handleCallDuplicate(evt)
	case events.EventDispatchStarted:
		l.startDispatch(evt)
	case events.EventDispatchCompleted:
		l.completeDispatch(evt)
	case events.EventDispatchFailed:
		l.failDispatch(evt)
	case events.EventTurnInterrupted:
		l.handleTurnInterrupted(evt)
	case events.EventResponseCompleted:
		l.handleResponseCompleted(evt)
	case events.EventTranscriptFinal:
		l.handleTranscriptFinal(evt)
	case events.EventUpstreamError:
		l.handleUpstreamError(evt)
	}
}

// sessionCtx returns the context for the session (to parent child spans).
// Falls back to context.Background() if the session is unknown.
func (l *OTelEventListener) sessionCtx(sessionID string) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ss, ok := l.sessions[sessionID]; ok {
		return ss.ctx
	}
	return context.Background()
}

// rootEvent attaches an instantaneous event to the session root span.
// No-op when the session is not tracked.
func (l *OTelEventListener) rootEvent(sessionID, name string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	ss, ok := l.sessions[sessionID]
	l.mu.Unlock()
	if ok {
		ss.span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// startSpan starts a span parented under the session root and stores it in inflight.
// If a completion was already buffered (out-of-order delivery), the span is
// immediately ended.
func (l *OTelEventListener) startSpan(
	sessionID, key, name string, kind trace.SpanKind, attrs ...attribute.KeyValue,
) {
	parentCtx := l.sessionCtx(sessionID)
	ctx, span := l.tracer.Start(parentCtx, name,
		trace.WithSpanKind(kind),
		trace.WithAttributes(attrs...),
	)
	l.mu.Lock()
	pe, havePending := l.pendingEnds[key]
	if havePending {
		delete(l.pendingEnds, key)
	} else {
		l.inflight[key] = &spanEntry{span: span, ctx: ctx}
	}
	l.mu.Unlock()

	if havePending {
		span.SetAttributes(pe.attrs...)
		if pe.errMsg != "" {
			span.SetStatus(codes.Error, pe.errMsg)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}

// endSpan ends an inflight span and removes it from the map.
// If the span hasn't started yet (out-of-order delivery), the completion is
// buffered and will be applied when startSpan creates the span.
func (l *OTelEventListener) endSpan(key string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	} else {
		l.pendingEnds[key] = &pendingEnd{attrs: attrs}
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	entry.span.SetAttributes(attrs...)
	entry.span.SetStatus(codes.Ok, "")
	entry.span.End()
}

// failSpan ends an inflight span with an error status.
// If the span hasn't started yet (out-of-order delivery), the failure is
// buffered and will be applied when startSpan creates the span.
func (l *OTelEventListener) failSpan(key, errMsg string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	entry, ok := l.inflight[key]
	if ok {
		delete(l.inflight, key)
	} else {
		l.pendingEnds[key] = &pendingEnd{errMsg: errMsg, attrs: attrs}
	}
	l.mu.Unlock()
	if !ok {
		return
	}
	entry.span.SetAttributes(attrs...)
	entry.span.SetStatus(codes.Error, errMsg)
	entry.span.End()
}

// asPtr extracts event data as a pointer, handling both value and pointer types.
func asPtr[T any](data any) (*T, bool) {
	if p, ok := data.(*T); ok {
		return p, true
	}
	if v, ok := data.(T); ok {
		return &v, true
	}
	return nil, false
}

// --- Session ---

func (l *OTelEventListener) handleSessionReady(evt *events.Event) {
	data, ok := asPtr[events.SessionLifecycleData](evt.Data)
	if !ok {
		return
	}
	l.rootEvent(evt.SessionID, "session.ready",
		attribute.String("session.model", data.Model),
	)
}

func (l *OTelEventListener) handleSessionClosed(evt *events.Event) {
	data, ok := asPtr[events.SessionLifecycleData](evt.Data)
	if !ok {
		return
	}
	l.mu.Lock()
	ss, tracked := l.sessions[evt.SessionID]
	l.mu.Unlock()
	if tracked {
		ss.span.SetAttributes(
			attribute.String("session.close_reason", data.Reason),
			attribute.Int64("session.uptime_ms", data.Uptime.Milliseconds()),
		)
	}
}

// --- Call reconstruction ---

func (l *OTelEventListener) startCall(evt *events.Event) {
	data, ok := asPtr[events.CallEventData](evt.Data)
	if !ok {
		return
	}
	l.startSpan(evt.SessionID, "call:"+data.CallID, "relaykit.call."+data.Tool,
		trace.SpanKindInternal,
		attribute.String("call.id", data.CallID),
		attribute.String("tool.name", data.Tool),
	)
}

func (l *OTelEventListener) completeCall(evt *events.Event) {
	data, ok := asPtr[events.CallEventData](evt.Data)
	if !ok {
		return
	}
	l.endSpan("call:"+data.CallID,
		attribute.String("call.mode", data.Mode),
		attribute.Bool("call.repaired", data.Repaired),
		attribute.Int64("call.duration_ms", data.Duration.Milliseconds()),
	)
}

func (l *OTelEventListener) failCall(evt *events.Event) {
	data, ok := asPtr[events.CallEventData](evt.Data)
	if !ok {
		return
	}
	errMsg := "reconstruction failed"
	if data.Error != nil {
		errMsg = data.Error.Error()
	}
	l.failSpan("call:"+data.CallID, errMsg,
		attribute.String("call.mode", data.Mode),
		attribute.Int64("call.duration_ms", data.Duration.Milliseconds()),
	)
}

func (l *OTelEventListener) handleCallDuplicate(evt *events.Event) {
	data, ok := asPtr[events.CallEventData](evt.Data)
	if !ok {
		return
	}
	l.rootEvent(evt.SessionID, "call.duplicate",
		attribute.String("call.id", data.CallID),
		attribute.String("duplicate.source", data.Source),
	)
}

// --- Dispatch ---

func (l *OTelEventListener) startDispatch(evt *events.Event) {
	data, ok := asPtr[events.DispatchEventData](evt.Data)
	if !ok {
		return
	}
	l.startSpan(evt.SessionID, "dispatch:"+data.CallID, "relaykit.dispatch."+data.Tool,
		trace.SpanKindInternal,
		attribute.String("call.id", data.CallID),
		attribute.String("tool.name", data.Tool),
	)
}

func (l *OTelEventListener) completeDispatch(evt *events.Event) {
	data, ok := asPtr[events.DispatchEventData](evt.Data)
	if !ok {
		return
	}
	l.endSpan("dispatch:"+data.CallID,
		attribute.String("dispatch.status", data.Status),
		attribute.Int64("dispatch.duration_ms", data.Duration.Milliseconds()),
	)
}

func (l *OTelEventListener) failDispatch(evt *events.Event) {
	data, ok := asPtr[events.DispatchEventData](evt.Data)
	if !ok {
		return
	}
	errMsg := "dispatch failed"
	if data.Error != nil {
		errMsg = data.Error.Error()
	}
	l.failSpan("dispatch:"+data.CallID, errMsg,
		attribute.Int64("dispatch.duration_ms", data.Duration.Milliseconds()),
	)
}

// --- Turn ---

func (l *OTelEventListener) handleTurnInterrupted(evt *events.Event) {
	data, ok := asPtr[events.TurnInterruptedData](evt.Data)
	if !ok {
		return
	}
	parentCtx := l.sessionCtx(evt.SessionID)
	_, span := l.tracer.Start(parentCtx, "relaykit.turn.interrupted",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("interrupt.reason", data.Reason),
		),
	)
	span.End()
}

func (l *OTelEventListener) handleResponseCompleted(evt *events.Event) {
	data, ok := asPtr[events.ResponseCompletedData](evt.Data)
	if !ok {
		return
	}
	l.rootEvent(evt.SessionID, "response.completed",
		attribute.String("response.id", data.ResponseID),
		attribute.Int("response.call_count", data.CallCount),
	)
}

// handleTranscriptFinal records segment length only. Transcript content never
// reaches span attributes.
func (l *OTelEventListener) handleTranscriptFinal(evt *events.Event) {
	data, ok := asPtr[events.TranscriptData](evt.Data)
	if !ok {
		return
	}
	l.rootEvent(evt.SessionID, "transcript.final",
		attribute.String("transcript.role", data.Role),
		attribute.Int("transcript.chars", data.Chars),
	)
}

func (l *OTelEventListener) handleUpstreamError(evt *events.Event) {
	data, ok := asPtr[events.UpstreamErrorData](evt.Data)
	if !ok {
		return
	}
	l.rootEvent(evt.SessionID, "upstream.error",
		attribute.String("error.code", data.Code),
		attribute.String("error.message", data.Message),
	)
}
