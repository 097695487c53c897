package session

import (
	"time"

	"github.com/AltairaLabs/RelayKit/calls"
	"github.com/AltairaLabs/RelayKit/gateway"
)

// Defaults applied by Config.withDefaults.
const (
	// DefaultMaxConcurrentDispatches bounds executor goroutines per session.
	DefaultMaxConcurrentDispatches = 4
	// DefaultNotifierBuffer is the per-listener client event buffer.
	DefaultNotifierBuffer = 32
	// DefaultSetupTimeout bounds the wait for upstream session confirmation.
	DefaultSetupTimeout = 10 * time.Second
)

// Config holds the conversational parameters for one session: what the
// upstream model is told about itself, how audio flows, and how aggressively
// stalled calls are reaped. Connection-level settings (endpoint, model, key)
// live in gateway.Config; this layer only shapes the session descriptor and
// the loop's timing.
type Config struct {
	// Instructions is the system prompt sent in the session descriptor.
	Instructions string

	// Modalities selects the response channels, e.g. ["text", "audio"].
	Modalities []string

	// Voice selects the synthesis voice for audio output.
	Voice string

	// InputAudioFormat and OutputAudioFormat name the PCM encodings on the
	// wire, e.g. "pcm16".
	InputAudioFormat  string
	OutputAudioFormat string

	// TranscriptionModel enables input audio transcription when non-empty.
	TranscriptionModel string

	// TurnDetection configures server-side voice activity detection. A nil
	// value is sent as an explicit null, which disables VAD upstream; use
	// DefaultTurnDetection for the standard server_vad settings.
	TurnDetection *gateway.TurnDetection

	// Temperature adjusts response sampling when non-zero.
	Temperature float64

	// SweepInterval is how often the loop scans for stalled calls.
	SweepInterval time.Duration

	// StallTimeout is how long a call may sit incomplete with buffered
	// fragments before the sweep forces completion.
	StallTimeout time.Duration

	// MaxConcurrentDispatches bounds concurrently executing tool calls.
	MaxConcurrentDispatches int64

	// NotifierBuffer sizes each subscriber's event channel. Listeners that
	// fall further behind than this lose events.
	NotifierBuffer int

	// SetupTimeout bounds the wait for the upstream session-created
	// confirmation after connecting.
	SetupTimeout time.Duration
}

// DefaultTurnDetection returns the standard server-side VAD settings.
func DefaultTurnDetection() *gateway.TurnDetection {
	return &gateway.TurnDetection{
		Type:              "server_vad",
		Threshold:         0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 500,
		CreateResponse:    true,
	}
}

// DefaultConfig returns a Config for a bidirectional voice session with
// server VAD and input transcription enabled.
func DefaultConfig() Config {
	return Config{
		Modalities:         []string{"text", "audio"},
		Voice:              "alloy",
		InputAudioFormat:   "pcm16",
		OutputAudioFormat:  "pcm16",
		TranscriptionModel: "whisper-1",
		TurnDetection:      DefaultTurnDetection(),
	}
}

// withDefaults returns a copy of c with zero values filled in. TurnDetection
// is left alone: nil is a meaningful setting, not an omission.
func (c Config) withDefaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = calls.DefaultSweepInterval
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = calls.DefaultStallTimeout
	}
	if c.MaxConcurrentDispatches <= 0 {
		c.MaxConcurrentDispatches = DefaultMaxConcurrentDispatches
	}
	if c.NotifierBuffer <= 0 {
		c.NotifierBuffer = DefaultNotifierBuffer
	}
	if c.SetupTimeout <= 0 {
		c.SetupTimeout = DefaultSetupTimeout
	}
	return c
}
