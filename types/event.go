package types

import "time"

// EventType identifies a normalized upstream gateway event.
type EventType string

const (
	// EventSessionReady signals the upstream session is configured and live.
	EventSessionReady EventType = "session_ready"
	// EventSpeechStarted signals upstream voice activity detection opened a turn.
	EventSpeechStarted EventType = "speech_started"
	// EventSpeechStopped signals upstream voice activity detection closed a turn.
	EventSpeechStopped EventType = "speech_stopped"
	// EventAudioChunk carries one chunk of synthesized output audio.
	EventAudioChunk EventType = "audio_chunk"
	// EventTextChunk carries one fragment of streamed output text.
	EventTextChunk EventType = "text_chunk"
	// EventTranscriptChunk carries one fragment of an audio transcript.
	EventTranscriptChunk EventType = "transcript_chunk"
	// EventFunctionDelta carries one fragment of a function call's arguments.
	EventFunctionDelta EventType = "function_delta"
	// EventFunctionDone is the authoritative completion signal for one call.
	EventFunctionDone EventType = "function_done"
	// EventResponseDone enumerates the calls a finished response contained.
	EventResponseDone EventType = "response_done"
	// EventError carries an upstream-reported error.
	EventError EventType = "error"
)

// NormalizedEvent is the uniform internal representation of one upstream
// event after protocol translation. Events for a session are delivered to
// its loop in arrival order. Payload holds the typed payload matching Type
// (for example *FunctionDelta when Type is EventFunctionDelta); event types
// with no payload carry nil.
type NormalizedEvent struct {
	Type      EventType `json:"type"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// FunctionDelta is one streamed fragment of a function call's arguments.
// Fragments for a call share a CallID; Delta is raw argument text with no
// guarantee of being valid JSON on its own.
type FunctionDelta struct {
	CallID string `json:"call_id"`
	Name   string `json:"name,omitempty"` // function name, often absent on later fragments
	Delta  string `json:"delta"`
}

// FunctionDone is the upstream's authoritative completion signal for a
// single call. Arguments is the full argument text and supersedes any
// fragments accumulated for the same CallID.
type FunctionDone struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// FinishedCall is one completed function invocation as enumerated by a
// response-complete event. Arguments may be empty when the enumeration
// omits them; the accumulated fragment buffer is used instead.
type FinishedCall struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// ResponseDone signals the upstream finished generating a response and
// enumerates every function call that response contained. Calls already
// completed through other signals must not be re-dispatched.
type ResponseDone struct {
	ResponseID string         `json:"response_id,omitempty"`
	Calls      []FinishedCall `json:"calls,omitempty"`
}

// AudioChunk is one chunk of synthesized output audio, base64-encoded as
// received from the wire.
type AudioChunk struct {
	Audio string `json:"audio"`
}

// TextChunk is one fragment of streamed assistant text.
type TextChunk struct {
	Text string `json:"text"`
}

// TranscriptChunk is one fragment of a spoken-audio transcript.
// Role distinguishes user speech transcription from assistant output.
type TranscriptChunk struct {
	Role  string `json:"role"` // "user" or "assistant"
	Text  string `json:"text"`
	Final bool   `json:"final,omitempty"` // true when this closes the utterance
}

// UpstreamError is an error event reported by the upstream gateway.
type UpstreamError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
