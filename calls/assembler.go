// Package calls reassembles streamed function call fragments into complete,
// validated invocations and guarantees at-most-once dispatch per call id.
//
// Upstream gateways surface the same finished call through up to three
// signals: an authoritative completion event, the enumeration inside a
// response-complete event, and (when both go missing) a stall timeout.
// The Assembler folds all three into a single lifecycle with one idempotent
// dispatch gate, so a call id is executed at most once no matter which
// signals arrive or how often they repeat.
//
// An Assembler is owned by exactly one session event loop and is not safe
// for concurrent use; all methods must be called from the owning goroutine.
package calls

import (
	"encoding/json"
	"time"

	"github.com/AltairaLabs/RelayKit/types"
)

// Mode records which signal finalized a call.
type Mode string

const (
	// ModeAuthoritative marks completion by an explicit per-call signal.
	ModeAuthoritative Mode = "authoritative"
	// ModeEnumerated marks completion by a response-complete enumeration.
	ModeEnumerated Mode = "enumerated"
	// ModeTimeout marks completion forced by the stall sweep. Degraded path.
	ModeTimeout Mode = "timeout"
)

// Default timing for the stall sweep.
const (
	// DefaultSweepInterval is how often the owning loop scans for stalls.
	DefaultSweepInterval = 100 * time.Millisecond
	// DefaultStallTimeout is how long a call may sit Pending with a
	// non-empty buffer before the sweep forces completion.
	DefaultStallTimeout = 2 * time.Second
)

// invalidArgumentsMessage is the structured error reported upstream when a
// call's arguments never become valid JSON.
const invalidArgumentsMessage = "invalid arguments"

// Completion is a finalized call handed back to the owning loop. When Err
// is non-empty the arguments never parsed even after repair; Call.Arguments
// then holds the raw buffer for diagnostics and the call must not be
// dispatched.
type Completion struct {
	Call     types.FunctionCall
	Mode     Mode
	Repaired bool
	Err      string
}

// Failed reports whether the completion carries unusable arguments.
func (c *Completion) Failed() bool {
	return c.Err != ""
}

// FailureResult builds the structured failure payload delivered upstream in
// place of an execution result.
func FailureResult(callID, message string) types.CallResult {
	out, _ := json.Marshal(struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}{Success: false, Error: message})
	return types.CallResult{CallID: callID, Output: string(out), Success: false}
}

// InvalidArguments builds the failure payload for unparseable arguments.
func InvalidArguments(callID string) types.CallResult {
	return FailureResult(callID, invalidArgumentsMessage)
}

// Assembler tracks every in-flight function call for one session. Live
// calls sit in the pending table; call ids that reached a terminal state
// stay in the done set for the session's lifetime so replayed signals are
// recognized as duplicates.
type Assembler struct {
	pending map[string]*PendingCall
	done    map[string]State
	results map[string]types.CallResult

	stallTimeout time.Duration
	now          func() time.Time
}

// NewAssembler creates an assembler with the given stall timeout.
// A non-positive timeout selects DefaultStallTimeout.
func NewAssembler(stallTimeout time.Duration) *Assembler {
	if stallTimeout <= 0 {
		stallTimeout = DefaultStallTimeout
	}
	return &Assembler{
		pending:      make(map[string]*PendingCall),
		done:         make(map[string]State),
		results:      make(map[string]types.CallResult),
		stallTimeout: stallTimeout,
		now:          time.Now,
	}
}

// ApplyDelta folds one argument fragment into the call's buffer, creating
// the PendingCall on first reference. Returns nil when the fragment arrived
// after the call already reached a terminal state and was ignored.
func (a *Assembler) ApplyDelta(callID, name, delta string) *PendingCall {
	if callID == "" {
		return nil
	}
	if _, terminal := a.done[callID]; terminal {
		return nil
	}
	p, ok := a.pending[callID]
	if !ok {
		p = &PendingCall{
			CallID:      callID,
			Name:        name,
			FirstSeenAt: a.now(),
			State:       StatePending,
		}
		a.pending[callID] = p
	}
	if p.Name == "" && name != "" {
		p.Name = name
	}
	p.append(delta)
	return p
}

// CompleteAuthoritative finalizes a call from the upstream's explicit
// completion signal. The supplied argument text supersedes any accumulated
// fragments. Returns nil when the call id already reached a terminal state
// or was already finalized (a duplicate signal).
func (a *Assembler) CompleteAuthoritative(callID, name, args string) *Completion {
	p := a.claim(callID, name)
	if p == nil {
		return nil
	}
	p.overwrite(args)
	return a.finalize(p, ModeAuthoritative)
}

// CompleteEnumerated finalizes every call listed by a response-complete
// event that has not already been finalized. Enumerations carrying argument
// text override the buffer; entries without it fall back to the accumulated
// fragments. Calls already terminal are skipped silently, which makes
// replayed response-complete events harmless.
func (a *Assembler) CompleteEnumerated(finished []types.FinishedCall) []*Completion {
	var completions []*Completion
	for _, fc := range finished {
		p := a.claim(fc.CallID, fc.Name)
		if p == nil {
			continue
		}
		if fc.Arguments != "" {
			p.overwrite(fc.Arguments)
		}
		completions = append(completions, a.finalize(p, ModeEnumerated))
	}
	return completions
}

// Sweep forces completion of calls that stalled: still Pending, buffer
// non-empty, and older than the stall timeout. Runs on the owning loop's
// ticker and never blocks. Calls with an empty buffer are left alone; there
// is nothing to repair and a later signal may still name them.
func (a *Assembler) Sweep(now time.Time) []*Completion {
	var completions []*Completion
	for _, p := range a.pending {
		if p.State != StatePending {
			continue
		}
		if p.buf.Len() == 0 {
			continue
		}
		if now.Sub(p.FirstSeenAt) <= a.stallTimeout {
			continue
		}
		completions = append(completions, a.finalize(p, ModeTimeout))
	}
	return completions
}

// BeginDispatch is the single idempotent gate in front of every executor
// invocation. It returns true exactly once per call id, recording the call
// as Processed at the moment of the dispatch decision; any later attempt
// for the same id returns false. Every completion path must pass here
// before executing.
func (a *Assembler) BeginDispatch(callID string) bool {
	if _, terminal := a.done[callID]; terminal {
		return false
	}
	p, ok := a.pending[callID]
	if !ok || p.State != StateComplete {
		return false
	}
	p.State = StateProcessed
	a.done[callID] = StateProcessed
	delete(a.pending, callID)
	return true
}

// RecordResult stores the outcome of a dispatched call.
func (a *Assembler) RecordResult(res types.CallResult) {
	a.results[res.CallID] = res
}

// Result returns the recorded outcome for a call id, if any.
func (a *Assembler) Result(callID string) (types.CallResult, bool) {
	res, ok := a.results[callID]
	return res, ok
}

// DoneState returns the terminal state a call id reached, if any.
func (a *Assembler) DoneState(callID string) (State, bool) {
	s, ok := a.done[callID]
	return s, ok
}

// PendingCount returns the number of live, non-terminal calls.
func (a *Assembler) PendingCount() int {
	return len(a.pending)
}

// claim fetches or creates the PendingCall a completion signal refers to.
// Returns nil for duplicates: ids already terminal or already finalized.
func (a *Assembler) claim(callID, name string) *PendingCall {
	if callID == "" {
		return nil
	}
	if _, terminal := a.done[callID]; terminal {
		return nil
	}
	p, ok := a.pending[callID]
	if !ok {
		p = &PendingCall{
			CallID:      callID,
			Name:        name,
			FirstSeenAt: a.now(),
			State:       StatePending,
		}
		a.pending[callID] = p
	}
	if p.State != StatePending {
		return nil
	}
	if p.Name == "" && name != "" {
		p.Name = name
	}
	return p
}

// finalize freezes the buffer, validating and repairing the argument text.
// Unparseable arguments fail the call immediately: it moves to the done set
// so no later signal can resurrect it.
func (a *Assembler) finalize(p *PendingCall, mode Mode) *Completion {
	args := p.Arguments()
	repaired := false
	if !json.Valid([]byte(args)) {
		fixed := Repair(args)
		if json.Valid([]byte(fixed)) {
			args = fixed
			repaired = true
		} else {
			p.State = StateFailed
			a.done[p.CallID] = StateFailed
			delete(a.pending, p.CallID)
			return &Completion{
				Call: types.FunctionCall{CallID: p.CallID, Name: p.Name, Arguments: p.Arguments()},
				Mode: mode,
				Err:  invalidArgumentsMessage,
			}
		}
	}
	p.State = StateComplete
	return &Completion{
		Call:     types.FunctionCall{CallID: p.CallID, Name: p.Name, Arguments: args},
		Mode:     mode,
		Repaired: repaired,
	}
}
