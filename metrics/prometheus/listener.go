package prometheus

import (
	"github.com/AltairaLabs/RelayKit/events"
)

// Status constants for metric labels.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// MetricsListener records session events as Prometheus metrics.
// It implements the events.Listener signature and should be registered
// with an EventBus using SubscribeAll.
type MetricsListener struct{}

// NewMetricsListener creates a new MetricsListener.
func NewMetricsListener() *MetricsListener {
	return &MetricsListener{}
}

// Handle processes an event and records relevant metrics.
// This method is designed to be used with EventBus.SubscribeAll.
func (l *MetricsListener) Handle(event *events.Event) {
	//exhaustive:ignore
	switch event.Type {
	case events.EventSessionStarted:
		RecordSessionStart()
	case events.EventSessionClosed:
		l.handleSessionClosed(event)
	case events.EventCallTracked:
		RecordCallTracked()
	case events.EventCallCompleted:
		l.handleCallCompleted(event)
	case events.EventCallFailed:
		l.handleCallFailed(event)
	case events.EventCallDuplicate:
		l.handleCallDuplicate(event)
	case events.EventDispatchCompleted:
		l.handleDispatchCompleted(event)
	case events.EventDispatchFailed:
		l.handleDispatchFailed(event)
	case events.EventUpstreamError:
		l.handleUpstreamError(event)
	case events.EventResponseCompleted:
		RecordResponseCompleted()
	case events.EventTurnInterrupted:
		l.handleTurnInterrupted(event)
	case events.EventTranscriptFinal:
		l.handleTranscriptFinal(event)
	case events.EventNotifyDropped:
		l.handleNotifyDropped(event)
	default:
		// Ignore events that don't have metrics
	}
}

func (l *MetricsListener) handleSessionClosed(event *events.Event) {
	if data, ok := event.Data.(events.SessionLifecycleData); ok {
		RecordSessionEnd(data.Reason, data.Uptime.Seconds())
	}
}

func (l *MetricsListener) handleCallCompleted(event *events.Event) {
	if data, ok := event.Data.(events.CallEventData); ok {
		RecordCallCompletion(data.Mode, data.Repaired, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleCallFailed(event *events.Event) {
	if data, ok := event.Data.(events.CallEventData); ok {
		RecordCallFailure(data.Mode, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleCallDuplicate(event *events.Event) {
	if data, ok := event.Data.(events.CallEventData); ok {
		RecordCallDuplicate(data.Source)
	}
}

func (l *MetricsListener) handleDispatchCompleted(event *events.Event) {
	if data, ok := event.Data.(events.DispatchEventData); ok {
		status := statusSuccess
		if data.Status == statusError {
			status = statusError
		}
		RecordDispatch(data.Tool, status, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleDispatchFailed(event *events.Event) {
	if data, ok := event.Data.(events.DispatchEventData); ok {
		RecordDispatch(data.Tool, statusError, data.Duration.Seconds())
	}
}

func (l *MetricsListener) handleUpstreamError(event *events.Event) {
	if data, ok := event.Data.(events.UpstreamErrorData); ok {
		RecordUpstreamError(data.Code)
	}
}

func (l *MetricsListener) handleTurnInterrupted(event *events.Event) {
	if data, ok := event.Data.(events.TurnInterruptedData); ok {
		RecordTurnInterrupted(data.Reason)
	}
}

func (l *MetricsListener) handleTranscriptFinal(event *events.Event) {
	if data, ok := event.Data.(events.TranscriptData); ok {
		RecordTranscriptSegment(data.Role)
	}
}

func (l *MetricsListener) handleNotifyDropped(event *events.Event) {
	if data, ok := event.Data.(events.NotifyDroppedData); ok {
		RecordNotifyDrop(data.Listener)
	}
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
