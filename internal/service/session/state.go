// Package session owns one call session with the voice engine: its
// lifecycle state machine, the audio and transcript it accumulates, and the
// streaming socket that drives it.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a call session.
type State int

const (
	// StateCreated - join endpoint obtained, socket not yet dialled.
	StateCreated State = iota
	// StateConnecting - socket handshake in progress.
	StateConnecting
	// StateOpen - handshake complete, no traffic yet.
	StateOpen
	// StateStreaming - outbound and inbound activities running.
	StateStreaming
	// StateClosing - the engine signalled completion; waiting for the socket to close.
	StateClosing
	// StateClosed - socket fully closed after a completed call. Terminal.
	StateClosed
	// StateFailed - handshake or socket failure, or the attempt was aborted. Terminal.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateStreaming:
		return "STREAMING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (CLOSED or FAILED).
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

// Event drives a state transition.
type Event int

const (
	EventConnect         Event = iota // socket dial begins
	EventHandshakeOK                  // socket handshake succeeded
	EventHandshakeFailed              // socket handshake failed
	EventActivity                     // outbound/inbound activities started
	EventClose                        // terminal control frame or normal remote close
	EventSocketClosed                 // read side observed the socket closed
	EventSocketError                  // socket failed while open
	EventAbort                        // attempt aborted (bad audio, cancellation)
)

// String returns the string representation of the event.
func (e Event) String() string {
	switch e {
	case EventConnect:
		return "connect"
	case EventHandshakeOK:
		return "handshake_ok"
	case EventHandshakeFailed:
		return "handshake_failed"
	case EventActivity:
		return "activity"
	case EventClose:
		return "close"
	case EventSocketClosed:
		return "socket_closed"
	case EventSocketError:
		return "socket_error"
	case EventAbort:
		return "abort"
	default:
		return fmt.Sprintf("unknown(%d)", e)
	}
}

// ErrInvalidTransition is returned when an event does not apply to the current state.
var ErrInvalidTransition = errors.New("invalid session state transition")

type transitionKey struct {
	from  State
	event Event
}

var transitions = map[transitionKey]State{
	{StateCreated, EventConnect}:            StateConnecting,
	{StateConnecting, EventHandshakeOK}:     StateOpen,
	{StateConnecting, EventHandshakeFailed}: StateFailed,
	{StateOpen, EventActivity}:              StateStreaming,
	{StateOpen, EventClose}:                 StateClosing,
	{StateOpen, EventSocketError}:           StateFailed,
	{StateStreaming, EventClose}:            StateClosing,
	{StateStreaming, EventSocketError}:      StateFailed,
	{StateClosing, EventSocketClosed}:       StateClosed,
	// A close we initiated may surface as an error on the read side.
	{StateClosing, EventSocketError}: StateClosed,
}

// Lifecycle manages the state machine for a single call session.
// Transitions are made by one goroutine; reads are safe from any.
//
// State transitions:
//
//	CREATED → CONNECTING → OPEN → STREAMING → CLOSING → CLOSED
//	              │          │        │
//	              └──────────┴────────┴──→ FAILED
//
// Rules:
//   - Every non-terminal state can be aborted to FAILED
//   - CLOSED and FAILED accept no further events
//   - A retry never reuses a Lifecycle; it starts a new session
type Lifecycle struct {
	mu      sync.RWMutex
	state   State
	history []State
}

// NewLifecycle creates a new lifecycle in CREATED state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		state:   StateCreated,
		history: []State{StateCreated},
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// History returns every state the lifecycle has been in, in order.
func (l *Lifecycle) History() []State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]State, len(l.history))
	copy(out, l.history)
	return out
}

// Apply applies an event and returns the previous and new state.
// An event that does not apply leaves the state unchanged and returns
// ErrInvalidTransition.
func (l *Lifecycle) Apply(ev Event) (from, to State, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	from = l.state
	if from.IsTerminal() {
		return from, from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
	}

	next, ok := transitions[transitionKey{from, ev}]
	if !ok && ev == EventAbort {
		next, ok = StateFailed, true
	}
	if !ok {
		return from, from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
	}

	l.state = next
	l.history = append(l.history, next)
	return from, next, nil
}
