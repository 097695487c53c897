// Package gateway speaks the upstream realtime wire protocol: it owns the
// WebSocket connection, serializes outbound control events, and translates
// inbound traffic into the module's normalized event vocabulary. It is a
// pure protocol layer; session semantics (call reassembly, dispatch,
// fan-out) live above it.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AltairaLabs/RelayKit/credentials"
	"github.com/AltairaLabs/RelayKit/logger"
)

// Sentinel errors for connection state.
var (
	// ErrClosed is returned for operations on a closed transport.
	ErrClosed = errors.New("gateway transport is closed")
	// ErrNotConnected is returned when no connection is established.
	ErrNotConnected = errors.New("gateway transport is not connected")
)

// Transport manages one WebSocket connection to the upstream gateway.
// Outbound writes are serialized by an internal mutex; inbound messages are
// read by a single ReceiveLoop, so ordering is preserved in both
// directions. All Send* helpers stamp a monotonically increasing event id.
type Transport struct {
	cfg Config

	mu        sync.Mutex
	conn      *websocket.Conn
	closed    bool
	closeChan chan struct{}
	eventID   atomic.Int64
}

// NewTransport creates a transport for the configured upstream. No network
// activity happens until Connect.
func NewTransport(cfg Config) *Transport {
	return &Transport{
		cfg:       cfg.withDefaults(),
		closeChan: make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	apiKey, err := credentials.Resolve(credentials.Source{
		Value:  t.cfg.APIKey,
		File:   t.cfg.APIKeyFile,
		EnvVar: t.cfg.APIKeyEnv,
	}, credentials.GatewayEnvVars...)
	if err != nil {
		return fmt.Errorf("failed to resolve gateway credential: %w", err)
	}

	headers := http.Header{}
	if apiKey != "" {
		headers.Set("Authorization", "Bearer "+apiKey)
	}
	headers.Set("OpenAI-Beta", betaHeader)

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.HandshakeTimeout}

	logger.Debug("gateway: connecting", "endpoint", t.cfg.Endpoint, "model", t.cfg.Model)

	conn, resp, err := dialer.DialContext(ctx, t.cfg.url(), headers)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
			logger.Error("gateway: dial failed", "error", err, "status", resp.StatusCode)
		}
		return fmt.Errorf("failed to connect: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	conn.SetReadLimit(t.cfg.MaxMessageSize)
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to set read deadline: %w", err)
	}

	t.conn = conn
	logger.Info("gateway: connected", "model", t.cfg.Model)
	return nil
}

// ConnectWithRetry attempts to connect with exponential backoff, up to the
// configured attempt limit.
func (t *Transport) ConnectWithRetry(ctx context.Context) error {
	var lastErr error
	backoff := defaultRetryBackoffBase

	for attempt := 1; attempt <= t.cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if lastErr = t.Connect(ctx); lastErr == nil {
			return nil
		}

		logger.Warn("gateway: connection attempt failed",
			"attempt", attempt,
			"max_attempts", t.cfg.MaxRetries,
			"error", lastErr)

		if attempt < t.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > defaultRetryBackoffMax {
				backoff = defaultRetryBackoffMax
			}
		}
	}

	return fmt.Errorf("failed to connect after %d attempts: %w", t.cfg.MaxRetries, lastErr)
}

// SendSessionUpdate sends the complete session descriptor. Every call
// replaces the upstream configuration wholesale.
func (t *Transport) SendSessionUpdate(desc SessionDescriptor) error {
	return t.send(sessionUpdateEvent{
		EventID: t.nextEventID(),
		Type:    "session.update",
		Session: desc,
	})
}

// AppendAudio streams one chunk of caller audio into the upstream input
// buffer. Data is raw PCM; encoding to base64 happens here.
func (t *Transport) AppendAudio(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return t.send(audioAppendEvent{
		EventID: t.nextEventID(),
		Type:    "input_audio_buffer.append",
		Audio:   base64.StdEncoding.EncodeToString(data),
	})
}

// CommitAudio marks the buffered input audio as a completed user turn.
func (t *Transport) CommitAudio() error {
	return t.send(audioControlEvent{EventID: t.nextEventID(), Type: "input_audio_buffer.commit"})
}

// ClearAudio discards the buffered input audio.
func (t *Transport) ClearAudio() error {
	return t.send(audioControlEvent{EventID: t.nextEventID(), Type: "input_audio_buffer.clear"})
}

// SendUserText adds a user text message to the conversation. Pair with
// RequestResponse to have the upstream answer it.
func (t *Transport) SendUserText(text string) error {
	return t.send(itemCreateEvent{
		EventID: t.nextEventID(),
		Type:    "conversation.item.create",
		Item: conversationItem{
			Type: "message",
			Role: "user",
			Content: []contentPart{
				{Type: "input_text", Text: text},
			},
		},
	})
}

// SendFunctionResult feeds a function call outcome back into the
// conversation so the upstream can incorporate it.
func (t *Transport) SendFunctionResult(callID, output string) error {
	return t.send(itemCreateEvent{
		EventID: t.nextEventID(),
		Type:    "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: callID,
			Output: output,
		},
	})
}

// RequestResponse asks the upstream to generate a response now.
func (t *Transport) RequestResponse() error {
	return t.send(responseCreateEvent{EventID: t.nextEventID(), Type: "response.create"})
}

// CancelResponse interrupts the response currently being generated.
func (t *Transport) CancelResponse() error {
	return t.send(responseCancelEvent{EventID: t.nextEventID(), Type: "response.cancel"})
}

// send serializes one outbound event under the write lock.
func (t *Transport) send(msg any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	if t.conn == nil {
		return ErrNotConnected
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := t.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Receive reads one raw message, honoring context cancellation.
func (t *Transport) Receive(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if t.conn == nil {
		t.mu.Unlock()
		return nil, ErrNotConnected
	}
	conn := t.conn
	t.mu.Unlock()

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		_, data, err := conn.ReadMessage()
		resultCh <- readResult{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		return res.data, res.err
	}
}

// ReceiveLoop reads messages into msgCh until the connection closes or an
// error occurs. A nil return means clean shutdown; any error is a transport
// failure the caller must treat as fatal for the session.
func (t *Transport) ReceiveLoop(ctx context.Context, msgCh chan<- []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.closeChan:
			return nil
		default:
		}

		data, err := t.Receive(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		select {
		case msgCh <- data:
		case <-ctx.Done():
			return ctx.Err()
		case <-t.closeChan:
			return nil
		}
	}
}

// StartHeartbeat pings the upstream on the configured interval until the
// context ends or the transport closes.
func (t *Transport) StartHeartbeat(ctx context.Context) {
	go t.heartbeatLoop(ctx)
}

func (t *Transport) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.closeChan:
			return
		case <-ticker.C:
			if !t.sendPing() {
				return
			}
		}
	}
}

// sendPing writes one ping frame. Returns false when the heartbeat loop
// should stop.
func (t *Transport) sendPing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.conn == nil {
		return false
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
		logger.Warn("gateway: failed to set ping deadline", "error", err)
		return true
	}
	if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		logger.Warn("gateway: ping failed", "error", err)
		return false
	}
	return true
}

// Close performs the close handshake and releases the connection.
// Safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.closeChan)

	if t.conn == nil {
		return nil
	}

	_ = t.conn.SetWriteDeadline(time.Now().Add(closeGracePeriod))
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = t.conn.WriteMessage(websocket.CloseMessage, closeMsg)

	return t.conn.Close()
}

// IsClosed reports whether Close has been called.
func (t *Transport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Model reports the upstream model this transport dials.
func (t *Transport) Model() string {
	return t.cfg.Model
}

// nextEventID produces the id stamped on outbound events.
func (t *Transport) nextEventID() string {
	return fmt.Sprintf("evt_%d", t.eventID.Add(1))
}
