package gateway

import (
	"errors"
	"fmt"
	"time"
)

// Connection tuning defaults. Message size is generous because audio deltas
// arrive base64-encoded in text frames.
const (
	DefaultEndpoint          = "wss://api.openai.com/v1/realtime"
	DefaultModel             = "gpt-4o-realtime-preview"
	DefaultHandshakeTimeout  = 10 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultMaxMessageSize    = 64 * 1024 * 1024
	DefaultMaxRetries        = 3
	defaultRetryBackoffBase  = time.Second
	defaultRetryBackoffMax   = 10 * time.Second
	closeGracePeriod         = 5 * time.Second

	// betaHeader opts in to the realtime protocol on the wire.
	betaHeader = "realtime=v1"
)

// Config holds transport-level settings for one upstream connection.
// Zero values select the defaults above.
type Config struct {
	// Endpoint is the WebSocket URL of the upstream gateway, without the
	// model query parameter.
	Endpoint string

	// Model selects the upstream model and is appended as a query parameter.
	Model string

	// APIKey is sent as a bearer token. When empty, APIKeyFile, APIKeyEnv,
	// and the conventional credential environment variables are consulted
	// in that order. A key may legitimately resolve to nothing for gateways
	// that authenticate some other way.
	APIKey string

	// APIKeyFile names a file holding the key, for mounted secrets.
	APIKeyFile string

	// APIKeyEnv names the environment variable holding the key.
	APIKeyEnv string

	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	HeartbeatInterval time.Duration
	MaxMessageSize    int64

	// MaxRetries bounds ConnectWithRetry attempts.
	MaxRetries int
}

// ErrEndpointRequired is returned when a Config has no endpoint and no
// default applies.
var ErrEndpointRequired = errors.New("gateway endpoint is required")

// withDefaults returns a copy of c with zero values filled in.
func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// url builds the dial target including the model selector.
func (c Config) url() string {
	return fmt.Sprintf("%s?model=%s", c.Endpoint, c.Model)
}
