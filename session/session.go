// Package session owns the per-session event loop that ties the module
// together: upstream events flow in through the gateway, function calls are
// reassembled by the calls package, completed calls are dispatched against
// the tool registry, and results flow back upstream and out to subscribed
// clients.
//
// Each Session runs exactly one loop goroutine, and that goroutine owns all
// call-table state. Transport events, dispatch results, and stall-sweep
// ticks all arrive as loop inputs, so no locking guards the reassembly path.
// Sessions are fully independent; nothing is shared between them.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/AltairaLabs/RelayKit/calls"
	"github.com/AltairaLabs/RelayKit/events"
	"github.com/AltairaLabs/RelayKit/gateway"
	"github.com/AltairaLabs/RelayKit/logger"
	"github.com/AltairaLabs/RelayKit/store"
	"github.com/AltairaLabs/RelayKit/tools"
	"github.com/AltairaLabs/RelayKit/types"
)

// Status is the lifecycle state of a session.
type Status string

const (
	// StatusNew means Start has not been called yet.
	StatusNew Status = "new"
	// StatusConnecting means the upstream connection is being established.
	StatusConnecting Status = "connecting"
	// StatusOpen means the session is live and processing events.
	StatusOpen Status = "open"
	// StatusClosed means the session has fully torn down.
	StatusClosed Status = "closed"
)

// Channel sizing for the loop inputs. The message channel absorbs bursts of
// audio deltas; the result channel only ever holds in-flight dispatches.
const (
	msgChannelSize    = 64
	resultChannelSize = 16
	transcriptBuffer  = 16

	// transcriptFlushTimeout bounds each store append so a slow store cannot
	// wedge the persister behind one segment.
	transcriptFlushTimeout = 5 * time.Second
)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("session already started")

// errUpstreamClosed marks a server-initiated clean close, which still ends
// the session.
var errUpstreamClosed = errors.New("upstream closed the connection")

// dispatchResult carries one finished tool execution back into the loop.
type dispatchResult struct {
	callID   string
	tool     string
	result   types.CallResult
	errMsg   string
	duration time.Duration
}

// Session is one realtime conversation: a dedicated upstream connection, a
// call assembler, and a set of subscribed clients. All methods are safe for
// concurrent use; internally every piece of call state is confined to the
// loop goroutine.
type Session struct {
	id        string
	cfg       Config
	createdAt time.Time

	transport    *gateway.Transport
	normalizer   *gateway.Normalizer
	assembler    *calls.Assembler
	registry     *tools.Registry
	configurator *Configurator
	notifier     *Notifier
	bus          *events.EventBus
	emitter      *events.Emitter
	store        store.Store

	ctx    context.Context
	cancel context.CancelFunc

	msgCh        chan []byte
	resultCh     chan dispatchResult
	transportErr chan error
	sem          *semaphore.Weighted
	dispatchWG   sync.WaitGroup

	persistCh      chan store.TranscriptSegment
	persistDone    chan struct{}
	persistStarted bool

	// Loop-owned state. Only the run goroutine touches these.
	seen           map[string]time.Time
	activeResponse bool

	protocolErrs atomic.Int64

	stateMu   sync.RWMutex
	status    Status
	startedAt time.Time

	finishOnce sync.Once
	closeOnce  sync.Once
	done       chan struct{}
}

// Option customizes a Session at construction time.
type Option func(*Session)

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithEventBus attaches a bus for session lifecycle and call events.
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Session) { s.bus = bus }
}

// WithStore attaches a store for transcript persistence. Domain handlers
// reach the store through the registry, not through the session.
func WithStore(st store.Store) Option {
	return func(s *Session) { s.store = st }
}

// New assembles a session around an unconnected transport. No goroutines
// run and no network activity happens until Start.
func New(cfg Config, transport *gateway.Transport, registry *tools.Registry, opts ...Option) *Session {
	s := &Session{
		cfg:          cfg.withDefaults(),
		createdAt:    time.Now(),
		transport:    transport,
		normalizer:   gateway.NewNormalizer(),
		registry:     registry,
		msgCh:        make(chan []byte, msgChannelSize),
		resultCh:     make(chan dispatchResult, resultChannelSize),
		transportErr: make(chan error, 1),
		seen:         make(map[string]time.Time),
		status:       StatusNew,
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	if s.registry == nil {
		// An empty registry turns any inbound call into an unknown-tool
		// failure result instead of a crash.
		s.registry = tools.NewRegistry()
	}
	s.assembler = calls.NewAssembler(s.cfg.StallTimeout)
	s.sem = semaphore.NewWeighted(s.cfg.MaxConcurrentDispatches)
	s.emitter = events.NewEmitter(s.bus, s.id)
	s.notifier = NewNotifier(s.id, s.cfg.NotifierBuffer, s.emitter)
	s.configurator = NewConfigurator(s.cfg, s.registry)
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// CreatedAt returns when the session object was constructed.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.status
}

// Done is closed when the session has fully torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// ProtocolErrors reports how many upstream messages were dropped as
// untranslatable.
func (s *Session) ProtocolErrors() int64 {
	return s.protocolErrs.Load()
}

// Subscribe registers a client listener for this session's event stream.
func (s *Session) Subscribe() (<-chan types.ClientEvent, func()) {
	return s.notifier.Subscribe()
}

// Start connects upstream, sends the session configuration, and launches
// the event loop. It returns once the upstream has confirmed the session
// and the configuration is on the wire.
func (s *Session) Start(ctx context.Context) error {
	s.stateMu.Lock()
	if s.status != StatusNew {
		s.stateMu.Unlock()
		return ErrAlreadyStarted
	}
	s.status = StatusConnecting
	s.startedAt = time.Now()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.stateMu.Unlock()

	s.notifier.Status("connecting")
	s.emitter.SessionStarted(s.transport.Model())
	logger.SessionEvent(s.id, "starting", "model", s.transport.Model())

	if err := s.transport.ConnectWithRetry(s.ctx); err != nil {
		err = fmt.Errorf("upstream connection failed: %w", err)
		s.finish("connect_failed")
		return err
	}
	if err := s.waitForReady(); err != nil {
		s.finish("setup_failed")
		return err
	}
	if err := s.configurator.Apply(s.transport); err != nil {
		s.finish("configure_failed")
		return err
	}
	s.transport.StartHeartbeat(s.ctx)

	if s.store != nil {
		s.persistCh = make(chan store.TranscriptSegment, transcriptBuffer)
		s.persistDone = make(chan struct{})
		s.persistStarted = true
		go s.persistLoop()
	}

	// Mark the session live before the loop starts so a fast transport
	// failure cannot interleave its closed state with this transition.
	s.setStatus(StatusOpen)
	s.notifier.Status("ready")
	s.emitter.SessionReady(s.transport.Model())
	logger.SessionEvent(s.id, "ready", "model", s.transport.Model())

	go s.receivePump()
	go s.run()
	return nil
}

// Close ends the session and blocks until teardown completes. Safe to call
// more than once and safe to call on a session that never started.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.stateMu.Lock()
		cancel := s.cancel
		s.stateMu.Unlock()
		if cancel != nil {
			cancel()
		} else {
			s.finish("never_started")
		}
	})
	<-s.done
	return nil
}

// SendAudio appends one chunk of caller audio to the upstream input buffer.
func (s *Session) SendAudio(data []byte) error {
	return s.transport.AppendAudio(data)
}

// CommitAudio closes the current input audio turn. Only needed when server
// VAD is disabled.
func (s *Session) CommitAudio() error {
	return s.transport.CommitAudio()
}

// ClearAudio discards buffered input audio upstream.
func (s *Session) ClearAudio() error {
	return s.transport.ClearAudio()
}

// SendText submits a typed user message and asks for a response.
func (s *Session) SendText(text string) error {
	if err := s.transport.SendUserText(text); err != nil {
		return err
	}
	return s.transport.RequestResponse()
}

// Interrupt cancels the in-progress response, if any, and discards
// buffered input audio so stale speech does not bleed into the next turn.
func (s *Session) Interrupt() error {
	if err := s.transport.CancelResponse(); err != nil {
		return err
	}
	if err := s.transport.ClearAudio(); err != nil {
		return err
	}
	s.emitter.TurnInterrupted("client_cancel")
	return nil
}

// Reconfigure replaces the session's conversational settings and re-sends
// the descriptor upstream. The upstream contract has no partial-update
// semantics, so cfg must carry the complete desired configuration: the
// descriptor always travels whole, and a nil TurnDetection disables VAD
// rather than keeping the previous setting. Loop timing and concurrency
// settings are fixed at construction, and in-flight calls are unaffected.
func (s *Session) Reconfigure(cfg Config) error {
	next := NewConfigurator(cfg.withDefaults(), s.registry)
	if err := next.Apply(s.transport); err != nil {
		return err
	}
	s.stateMu.Lock()
	s.configurator = next
	s.stateMu.Unlock()
	logger.SessionEvent(s.id, "reconfigured")
	return nil
}

// setStatus updates the lifecycle state.
func (s *Session) setStatus(st Status) {
	s.stateMu.Lock()
	s.status = st
	s.stateMu.Unlock()
}

// waitForReady consumes upstream messages until the session confirmation
// arrives or the setup timeout lapses.
func (s *Session) waitForReady() error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.SetupTimeout)
	defer cancel()

	for {
		data, err := s.transport.Receive(ctx)
		if err != nil {
			return fmt.Errorf("waiting for session confirmation: %w", err)
		}
		evt, err := s.normalizer.Normalize(data)
		if err != nil {
			s.protocolErrs.Add(1)
			logger.Warn("session: dropping untranslatable event during setup",
				"session_id", s.id, "error", err)
			continue
		}
		if evt == nil {
			continue
		}
		if evt.Type == types.EventSessionReady {
			return nil
		}
		logger.Debug("session: event before confirmation", "session_id", s.id, "type", string(evt.Type))
	}
}

// receivePump drains the transport into the loop's message channel and
// reports a fatal transport failure. A clean server-side close is still a
// session-ending condition; only a locally initiated shutdown is not.
func (s *Session) receivePump() {
	err := s.transport.ReceiveLoop(s.ctx, s.msgCh)
	if s.ctx.Err() != nil || s.transport.IsClosed() {
		return
	}
	if err == nil {
		err = errUpstreamClosed
	}
	select {
	case s.transportErr <- err:
	default:
	}
}

// run is the session event loop. It is the only goroutine that touches the
// assembler, the seen table, and the response flag.
func (s *Session) run() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.finish("closed")
			return

		case err := <-s.transportErr:
			logger.Error("session: transport failure", "session_id", s.id, "error", err)
			s.finish("transport_failure")
			return

		case data := <-s.msgCh:
			s.handleRaw(data)

		case res := <-s.resultCh:
			s.handleResult(res)

		case now := <-ticker.C:
			for _, c := range s.assembler.Sweep(now) {
				s.handleCompletion(c)
			}
		}
	}
}

// handleRaw normalizes one wire message and routes it. Untranslatable
// messages are dropped and counted; the session continues.
func (s *Session) handleRaw(data []byte) {
	evt, err := s.normalizer.Normalize(data)
	if err != nil {
		s.protocolErrs.Add(1)
		logger.Warn("session: dropping untranslatable event", "session_id", s.id, "error", err)
		return
	}
	if evt == nil {
		return
	}
	s.handleEvent(evt)
}

func (s *Session) handleEvent(evt *types.NormalizedEvent) {
	switch evt.Type {
	case types.EventSessionReady:
		logger.Debug("session: upstream session confirmed again", "session_id", s.id)

	case types.EventSpeechStarted:
		if s.activeResponse {
			if err := s.transport.CancelResponse(); err != nil {
				logger.Warn("session: barge-in cancel failed", "session_id", s.id, "error", err)
			}
			s.emitter.TurnInterrupted("speech_started")
			s.activeResponse = false
		}
		s.notifier.Status("listening")

	case types.EventSpeechStopped:
		s.activeResponse = true
		s.notifier.Status("responding")

	case types.EventAudioChunk:
		if p, ok := evt.Payload.(*types.AudioChunk); ok {
			s.activeResponse = true
			s.notifier.Publish(types.ClientEvent{
				Type: types.ClientAudio,
				Data: types.ClientAudioData{Audio: p.Audio},
			})
		}

	case types.EventTextChunk:
		if p, ok := evt.Payload.(*types.TextChunk); ok {
			s.activeResponse = true
			s.notifier.Publish(types.ClientEvent{
				Type: types.ClientText,
				Data: types.ClientTextData{Text: p.Text},
			})
		}

	case types.EventTranscriptChunk:
		if p, ok := evt.Payload.(*types.TranscriptChunk); ok {
			s.handleTranscript(p)
		}

	case types.EventFunctionDelta:
		if p, ok := evt.Payload.(*types.FunctionDelta); ok {
			s.handleFunctionDelta(p)
		}

	case types.EventFunctionDone:
		if p, ok := evt.Payload.(*types.FunctionDone); ok {
			s.handleFunctionDone(p)
		}

	case types.EventResponseDone:
		if p, ok := evt.Payload.(*types.ResponseDone); ok {
			s.handleResponseDone(p)
		}

	case types.EventError:
		if p, ok := evt.Payload.(*types.UpstreamError); ok {
			logger.Error("session: upstream error",
				"session_id", s.id, "code", p.Code, "message", p.Message)
			s.emitter.UpstreamError(p.Code, p.Message)
			s.notifier.Publish(types.ClientEvent{
				Type: types.ClientError,
				Data: types.ClientErrorData{Message: p.Message, Code: p.Code},
			})
		}
	}
}

func (s *Session) handleTranscript(p *types.TranscriptChunk) {
	s.notifier.Publish(types.ClientEvent{
		Type: types.ClientTranscript,
		Data: types.ClientTranscriptData{Role: p.Role, Text: p.Text, Final: p.Final},
	})
	if !p.Final {
		return
	}
	s.emitter.TranscriptFinal(p.Role, len(p.Text))
	if !s.persistStarted {
		return
	}
	seg := store.TranscriptSegment{Role: p.Role, Text: p.Text, At: time.Now()}
	select {
	case s.persistCh <- seg:
	default:
		logger.Warn("session: transcript persister behind, segment dropped", "session_id", s.id)
	}
}

func (s *Session) handleFunctionDelta(p *types.FunctionDelta) {
	pending := s.assembler.ApplyDelta(p.CallID, p.Name, p.Delta)
	if pending == nil {
		s.emitter.CallDuplicate(p.CallID, "delta")
		return
	}
	s.trackCall(p.CallID, pending.Name, pending.FirstSeenAt)
}

func (s *Session) handleFunctionDone(p *types.FunctionDone) {
	c := s.assembler.CompleteAuthoritative(p.CallID, p.Name, p.Arguments)
	if c == nil {
		s.emitter.CallDuplicate(p.CallID, "authoritative")
		return
	}
	s.handleCompletion(c)
}

func (s *Session) handleResponseDone(p *types.ResponseDone) {
	// Replays of calls that already finished are recognized before the
	// enumeration runs; the assembler then skips them silently.
	for _, fc := range p.Calls {
		if _, terminal := s.assembler.DoneState(fc.CallID); terminal {
			s.emitter.CallDuplicate(fc.CallID, "enumerated")
		}
	}
	for _, c := range s.assembler.CompleteEnumerated(p.Calls) {
		s.handleCompletion(c)
	}
	s.emitter.ResponseCompleted(p.ResponseID, len(p.Calls))
	s.activeResponse = false
	s.notifier.Status("listening")
}

// trackCall records the first sighting of a call id and returns the time it
// was first seen.
func (s *Session) trackCall(callID, name string, at time.Time) time.Time {
	if first, ok := s.seen[callID]; ok {
		return first
	}
	s.seen[callID] = at
	s.emitter.CallTracked(callID, name)
	logger.Debug("session: call tracked", "session_id", s.id, "call_id", callID, "tool", name)
	return at
}

// handleCompletion takes one finalized call through the dispatch gate.
func (s *Session) handleCompletion(c *calls.Completion) {
	first := s.trackCall(c.Call.CallID, c.Call.Name, time.Now())
	duration := time.Since(first)

	if c.Failed() {
		err := errors.New(c.Err)
		s.emitter.CallFailed(c.Call.CallID, c.Call.Name, string(c.Mode), err, duration)
		logger.FunctionError(s.id, c.Call.CallID, c.Call.Name, err, "mode", string(c.Mode))
		s.deliver(c.Call.Name, calls.InvalidArguments(c.Call.CallID), c.Err)
		return
	}

	if !s.assembler.BeginDispatch(c.Call.CallID) {
		s.emitter.CallDuplicate(c.Call.CallID, string(c.Mode))
		return
	}
	s.emitter.CallCompleted(c.Call.CallID, c.Call.Name, string(c.Mode), c.Repaired, duration)
	s.dispatch(c.Call, string(c.Mode))
}

// dispatch executes one call in its own goroutine, bounded by the dispatch
// semaphore, and posts the outcome back into the loop. The loop never
// blocks on execution; the goroutine never touches loop-owned state.
func (s *Session) dispatch(call types.FunctionCall, mode string) {
	s.dispatchWG.Add(1)
	go func() {
		defer s.dispatchWG.Done()

		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			return
		}
		defer s.sem.Release(1)

		s.emitter.DispatchStarted(call.CallID, call.Name)
		logger.FunctionCall(s.id, call.CallID, call.Name, mode)

		start := time.Now()
		res := s.registry.Execute(s.ctx, call.Name, call.Arguments)
		res.CallID = call.CallID

		out := dispatchResult{
			callID:   call.CallID,
			tool:     call.Name,
			duration: time.Since(start),
		}
		if res.Failed() {
			out.errMsg = res.Error
			out.result = calls.FailureResult(call.CallID, res.Error)
		} else {
			out.result = types.CallResult{CallID: call.CallID, Output: string(res.Result), Success: true}
		}

		select {
		case s.resultCh <- out:
		case <-s.ctx.Done():
			// Session closed while the result was in flight; nothing to
			// deliver it to.
		}
	}()
}

// handleResult records a dispatch outcome and feeds it back upstream.
func (s *Session) handleResult(r dispatchResult) {
	if r.errMsg != "" {
		s.emitter.DispatchFailed(r.callID, r.tool, errors.New(r.errMsg), r.duration)
		logger.FunctionError(s.id, r.callID, r.tool, errors.New(r.errMsg))
	} else {
		s.emitter.DispatchCompleted(r.callID, r.tool, r.duration, "success")
		logger.FunctionResult(s.id, r.callID, r.tool, r.duration.Milliseconds())
	}
	s.deliver(r.tool, r.result, r.errMsg)
}

// deliver records the result, sends it upstream as a function output plus a
// response request, and notifies clients. Send failures are logged but do
// not end the session; the transport error path covers fatal conditions.
func (s *Session) deliver(tool string, res types.CallResult, errMsg string) {
	s.assembler.RecordResult(res)

	if err := s.transport.SendFunctionResult(res.CallID, res.Output); err != nil {
		logger.Warn("session: failed to send function result",
			"session_id", s.id, "call_id", res.CallID, "error", err)
	} else if err := s.transport.RequestResponse(); err != nil {
		logger.Warn("session: failed to request follow-up response",
			"session_id", s.id, "error", err)
	}

	data := types.ClientFunctionData{Name: tool, Executed: res.Success}
	if !res.Success {
		data.Error = errMsg
	}
	s.notifier.Publish(types.ClientEvent{Type: types.ClientFunction, Data: data})
}

// persistLoop appends finalized transcript segments to the store in arrival
// order. It runs off the loop so a slow store never delays event handling,
// and keeps draining during teardown so final segments are flushed.
func (s *Session) persistLoop() {
	defer close(s.persistDone)
	for seg := range s.persistCh {
		ctx, cancel := context.WithTimeout(context.Background(), transcriptFlushTimeout)
		if err := s.store.AppendTranscript(ctx, s.id, seg); err != nil {
			logger.Warn("session: transcript append failed", "session_id", s.id, "error", err)
		}
		cancel()
	}
}

// finish tears the session down exactly once: cancel in-flight work, close
// the transport, flush transcripts, release subscribers, and report why.
func (s *Session) finish(reason string) {
	s.finishOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		_ = s.transport.Close()
		s.dispatchWG.Wait()

		if s.persistStarted {
			close(s.persistCh)
			<-s.persistDone
		}

		s.notifier.Status("disconnected")
		s.notifier.Close()
		s.setStatus(StatusClosed)

		var uptime time.Duration
		if !s.startedAt.IsZero() {
			uptime = time.Since(s.startedAt)
		}
		s.emitter.SessionClosed(reason, uptime)
		logger.SessionEvent(s.id, "closed",
			"reason", reason,
			"uptime_ms", uptime.Milliseconds(),
			"protocol_errors", s.protocolErrs.Load(),
			"dropped_notifications", s.notifier.Dropped())
		close(s.done)
	})
}
