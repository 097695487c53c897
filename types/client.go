package types

// ClientEventType identifies a client-facing envelope type.
type ClientEventType string

const (
	ClientStatus     ClientEventType = "status"
	ClientTranscript ClientEventType = "transcript"
	ClientAudio      ClientEventType = "audio"
	ClientText       ClientEventType = "text"
	ClientFunction   ClientEventType = "function"
	ClientError      ClientEventType = "error"
)

// ClientEvent is the envelope delivered to downstream clients. Data holds
// the typed payload matching Type.
type ClientEvent struct {
	Type ClientEventType `json:"type"`
	Data any             `json:"data,omitempty"`
}

// ClientStatusData reports session lifecycle to clients.
// Values for Status: "connecting", "ready", "listening", "responding",
// "disconnected".
type ClientStatusData struct {
	Status string `json:"status"`
}

// ClientTranscriptData is a transcript fragment for client display.
type ClientTranscriptData struct {
	Role  string `json:"role"`
	Text  string `json:"text"`
	Final bool   `json:"final,omitempty"`
}

// ClientAudioData carries base64-encoded output audio.
type ClientAudioData struct {
	Audio string `json:"audio"`
}

// ClientTextData is a streamed text fragment for client display.
type ClientTextData struct {
	Text string `json:"text"`
}

// ClientFunctionData reports the outcome of a function call to clients.
type ClientFunctionData struct {
	Name     string `json:"name"`
	Executed bool   `json:"executed"`
	Error    string `json:"error,omitempty"`
}

// ClientErrorData reports a non-fatal error to clients.
type ClientErrorData struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
