package gateway

import "encoding/json"

// Wire protocol for the upstream realtime gateway. Outbound events flow
// client to upstream, inbound events upstream to client. Field names and
// tags follow the realtime v1 protocol and must not change; structures
// carry only the fields this module reads or writes.

// SessionDescriptor is the complete session configuration sent in a
// session.update. Configuration is always a full replacement: every update
// carries the whole descriptor, never a patch.
//
// TurnDetection deliberately lacks omitempty: an explicit null disables
// server-side voice activity detection, while omitting the field would
// leave the upstream default in place.
type SessionDescriptor struct {
	Modalities              []string       `json:"modalities,omitempty"`
	Instructions            string         `json:"instructions,omitempty"`
	Voice                   string         `json:"voice,omitempty"`
	InputAudioFormat        string         `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string         `json:"output_audio_format,omitempty"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection `json:"turn_detection"`
	Tools                   []ToolDef      `json:"tools,omitempty"`
	ToolChoice              any            `json:"tool_choice,omitempty"`
	Temperature             float64        `json:"temperature,omitempty"`
	MaxOutputTokens         any            `json:"max_response_output_tokens,omitempty"`
}

// Transcription configures transcription of input audio.
type Transcription struct {
	Model string `json:"model"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response,omitempty"`
}

// ToolDef is the function declaration format the upstream accepts in a
// session descriptor. Type is always "function".
type ToolDef struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Outbound events. Each carries its own type tag; event ids are assigned
// by the transport at send time.

type sessionUpdateEvent struct {
	EventID string            `json:"event_id,omitempty"`
	Type    string            `json:"type"`
	Session SessionDescriptor `json:"session"`
}

type audioAppendEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
	Audio   string `json:"audio"`
}

type audioControlEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

type itemCreateEvent struct {
	EventID string           `json:"event_id,omitempty"`
	Type    string           `json:"type"`
	Item    conversationItem `json:"item"`
}

type responseCreateEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

type responseCancelEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

// conversationItem is the item shape shared by outbound item.create events
// and the output enumeration of inbound response.done events.
type conversationItem struct {
	ID        string        `json:"id,omitempty"`
	Type      string        `json:"type"` // "message", "function_call", "function_call_output"
	Status    string        `json:"status,omitempty"`
	Role      string        `json:"role,omitempty"`
	Content   []contentPart `json:"content,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Name      string        `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
}

type contentPart struct {
	Type       string `json:"type"` // "input_text", "input_audio", "text", "audio"
	Text       string `json:"text,omitempty"`
	Audio      string `json:"audio,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// Inbound events. parseServerEvent reads the type tag first, then decodes
// the payload fields the module consumes.

type serverEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

type errorEvent struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

type sessionCreatedEvent struct {
	Session upstreamSession `json:"session"`
}

type upstreamSession struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

type speechStartedEvent struct {
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

type speechStoppedEvent struct {
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

type textDeltaEvent struct {
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

type audioDeltaEvent struct {
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"` // base64-encoded audio
}

type transcriptDeltaEvent struct {
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

type transcriptDoneEvent struct {
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

type inputTranscriptionDoneEvent struct {
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

type functionDeltaEvent struct {
	ItemID string `json:"item_id"`
	CallID string `json:"call_id"`
	Name   string `json:"name,omitempty"` // usually absent; the item-added event carries it
	Delta  string `json:"delta"`
}

type functionDoneEvent struct {
	ItemID    string `json:"item_id"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type outputItemAddedEvent struct {
	ResponseID string           `json:"response_id"`
	Item       conversationItem `json:"item"`
}

type responseDoneEvent struct {
	Response responseInfo `json:"response"`
}

type responseInfo struct {
	ID     string             `json:"id"`
	Status string             `json:"status"`
	Output []conversationItem `json:"output"`
}

// parseServerEvent decodes one raw upstream message into its typed form.
// Types without a dedicated structure decode to the bare serverEvent so the
// normalizer can decide whether they are ignorable or a protocol error.
func parseServerEvent(data []byte) (any, error) {
	var base serverEvent
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, err
	}

	switch base.Type {
	case "error":
		var e errorEvent
		return &e, json.Unmarshal(data, &e)
	case "session.created":
		var e sessionCreatedEvent
		return &e, json.Unmarshal(data, &e)
	case "input_audio_buffer.speech_started":
		var e speechStartedEvent
		return &e, json.Unmarshal(data, &e)
	case "input_audio_buffer.speech_stopped":
		var e speechStoppedEvent
		return &e, json.Unmarshal(data, &e)
	case "response.text.delta":
		var e textDeltaEvent
		return &e, json.Unmarshal(data, &e)
	case "response.audio.delta":
		var e audioDeltaEvent
		return &e, json.Unmarshal(data, &e)
	case "response.audio_transcript.delta":
		var e transcriptDeltaEvent
		return &e, json.Unmarshal(data, &e)
	case "response.audio_transcript.done":
		var e transcriptDoneEvent
		return &e, json.Unmarshal(data, &e)
	case "conversation.item.input_audio_transcription.completed":
		var e inputTranscriptionDoneEvent
		return &e, json.Unmarshal(data, &e)
	case "response.function_call_arguments.delta":
		var e functionDeltaEvent
		return &e, json.Unmarshal(data, &e)
	case "response.function_call_arguments.done":
		var e functionDoneEvent
		return &e, json.Unmarshal(data, &e)
	case "response.output_item.added":
		var e outputItemAddedEvent
		return &e, json.Unmarshal(data, &e)
	case "response.done":
		var e responseDoneEvent
		return &e, json.Unmarshal(data, &e)
	default:
		return &base, nil
	}
}
