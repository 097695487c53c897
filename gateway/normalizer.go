package gateway

import (
	"fmt"
	"time"

	"github.com/AltairaLabs/RelayKit/logger"
	"github.com/AltairaLabs/RelayKit/types"
)

// ProtocolError reports an upstream message that could not be translated:
// malformed JSON, a missing required field, or an unrecognized event type.
// Protocol errors never terminate a session; callers log and count them,
// then continue with the next message.
type ProtocolError struct {
	EventType string
	Reason    string
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.EventType == "" {
		return fmt.Sprintf("protocol error: %s", e.Reason)
	}
	return fmt.Sprintf("protocol error in %q: %s", e.EventType, e.Reason)
}

// ignorableEvents are protocol acknowledgements and progress markers that
// carry nothing the session consumes. They are dropped silently rather than
// counted as protocol errors.
var ignorableEvents = map[string]bool{
	"session.updated":                                    true,
	"input_audio_buffer.committed":                       true,
	"input_audio_buffer.cleared":                         true,
	"conversation.item.created":                          true,
	"conversation.item.truncated":                        true,
	"conversation.item.deleted":                          true,
	"conversation.item.input_audio_transcription.failed": true,
	"response.created":                                   true,
	"response.output_item.done":                          true,
	"response.content_part.added":                        true,
	"response.content_part.done":                         true,
	"response.text.done":                                 true,
	"response.audio.done":                                true,
	"rate_limits.updated":                                true,
}

// Normalizer translates raw upstream messages into the module's normalized
// event vocabulary. It is stateless and performs pure translation: one wire
// message maps to at most one NormalizedEvent, and per-session ordering is
// whatever order the caller feeds messages in.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize translates one raw message. It returns (nil, nil) for
// recognized events the session has no use for, and a *ProtocolError for
// messages that cannot be translated. Timestamps are assigned at
// normalization time.
func (n *Normalizer) Normalize(data []byte) (*types.NormalizedEvent, error) {
	parsed, err := parseServerEvent(data)
	if err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("malformed event: %v", err)}
	}

	switch e := parsed.(type) {
	case *errorEvent:
		return normalized(types.EventError, &types.UpstreamError{
			Code:    e.Error.Code,
			Message: e.Error.Message,
		}), nil

	case *sessionCreatedEvent:
		logger.Debug("gateway: upstream session created",
			"upstream_id", e.Session.ID,
			"model", e.Session.Model)
		return normalized(types.EventSessionReady, nil), nil

	case *speechStartedEvent:
		return normalized(types.EventSpeechStarted, nil), nil

	case *speechStoppedEvent:
		return normalized(types.EventSpeechStopped, nil), nil

	case *textDeltaEvent:
		return normalized(types.EventTextChunk, &types.TextChunk{Text: e.Delta}), nil

	case *audioDeltaEvent:
		return normalized(types.EventAudioChunk, &types.AudioChunk{Audio: e.Delta}), nil

	case *transcriptDeltaEvent:
		return normalized(types.EventTranscriptChunk, &types.TranscriptChunk{
			Role: "assistant",
			Text: e.Delta,
		}), nil

	case *transcriptDoneEvent:
		return normalized(types.EventTranscriptChunk, &types.TranscriptChunk{
			Role:  "assistant",
			Text:  e.Transcript,
			Final: true,
		}), nil

	case *inputTranscriptionDoneEvent:
		return normalized(types.EventTranscriptChunk, &types.TranscriptChunk{
			Role:  "user",
			Text:  e.Transcript,
			Final: true,
		}), nil

	case *functionDeltaEvent:
		if e.CallID == "" {
			return nil, &ProtocolError{
				EventType: "response.function_call_arguments.delta",
				Reason:    "missing call_id",
			}
		}
		return normalized(types.EventFunctionDelta, &types.FunctionDelta{
			CallID: e.CallID,
			Name:   e.Name,
			Delta:  e.Delta,
		}), nil

	case *functionDoneEvent:
		if e.CallID == "" {
			return nil, &ProtocolError{
				EventType: "response.function_call_arguments.done",
				Reason:    "missing call_id",
			}
		}
		return normalized(types.EventFunctionDone, &types.FunctionDone{
			CallID:    e.CallID,
			Name:      e.Name,
			Arguments: e.Arguments,
		}), nil

	case *outputItemAddedEvent:
		// A function_call item announces the call's id and name before any
		// argument fragments; an empty delta registers it with the assembler.
		if e.Item.Type != "function_call" || e.Item.CallID == "" {
			return nil, nil
		}
		return normalized(types.EventFunctionDelta, &types.FunctionDelta{
			CallID: e.Item.CallID,
			Name:   e.Item.Name,
		}), nil

	case *responseDoneEvent:
		done := &types.ResponseDone{ResponseID: e.Response.ID}
		for _, item := range e.Response.Output {
			if item.Type != "function_call" || item.CallID == "" {
				continue
			}
			done.Calls = append(done.Calls, types.FinishedCall{
				CallID:    item.CallID,
				Name:      item.Name,
				Arguments: item.Arguments,
			})
		}
		return normalized(types.EventResponseDone, done), nil

	case *serverEvent:
		if e.Type == "" {
			return nil, &ProtocolError{Reason: "missing event type"}
		}
		if ignorableEvents[e.Type] {
			return nil, nil
		}
		return nil, &ProtocolError{EventType: e.Type, Reason: "unrecognized event type"}
	}

	return nil, &ProtocolError{Reason: fmt.Sprintf("unhandled event %T", parsed)}
}

func normalized(t types.EventType, payload any) *types.NormalizedEvent {
	return &types.NormalizedEvent{Type: t, Payload: payload, Timestamp: time.Now()}
}
