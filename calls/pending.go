package calls

import (
	"strings"
	"time"
)

// State tracks a pending call through its lifecycle.
// Transitions are monotonic: Pending advances to Complete, Complete to
// Processed. Failed is terminal and reachable from Pending or Complete.
type State string

const (
	// StatePending means fragments are still being accumulated.
	StatePending State = "pending"
	// StateComplete means the argument text is finalized but not dispatched.
	StateComplete State = "complete"
	// StateProcessed means the call was handed to an executor. Terminal.
	StateProcessed State = "processed"
	// StateFailed means the arguments never became valid JSON. Terminal.
	StateFailed State = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateProcessed || s == StateFailed
}

// PendingCall is one in-flight function call keyed by its upstream call id.
// The argument buffer only grows while the call is Pending; completion
// freezes it.
type PendingCall struct {
	CallID      string
	Name        string
	FirstSeenAt time.Time
	State       State

	buf strings.Builder
}

// Arguments returns the accumulated argument text.
func (p *PendingCall) Arguments() string {
	return p.buf.String()
}

// append adds one fragment to the buffer. No-op once the call left Pending.
func (p *PendingCall) append(delta string) {
	if p.State != StatePending {
		return
	}
	p.buf.WriteString(delta)
}

// overwrite replaces the buffer with authoritative full-argument text.
// Only legal while the call is still Pending.
func (p *PendingCall) overwrite(args string) {
	if p.State != StatePending {
		return
	}
	p.buf.Reset()
	p.buf.WriteString(args)
}
