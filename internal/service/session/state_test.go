package session

import (
	"errors"
	"testing"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateCreated, "CREATED"},
		{StateConnecting, "CONNECTING"},
		{StateOpen, "OPEN"},
		{StateStreaming, "STREAMING"},
		{StateClosing, "CLOSING"},
		{StateClosed, "CLOSED"},
		{StateFailed, "FAILED"},
		{State(99), "UNKNOWN(99)"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.expected)
		}
	}
}

func TestState_IsTerminal(t *testing.T) {
	tests := []struct {
		state    State
		terminal bool
	}{
		{StateCreated, false},
		{StateConnecting, false},
		{StateOpen, false},
		{StateStreaming, false},
		{StateClosing, false},
		{StateClosed, true},
		{StateFailed, true},
	}

	for _, tt := range tests {
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("State(%s).IsTerminal() = %v, want %v", tt.state, got, tt.terminal)
		}
	}
}

func TestLifecycle_HappyPath(t *testing.T) {
	l := NewLifecycle()

	for _, ev := range []Event{EventConnect, EventHandshakeOK, EventActivity, EventClose, EventSocketClosed} {
		if _, _, err := l.Apply(ev); err != nil {
			t.Fatalf("Apply(%s): %v", ev, err)
		}
	}

	want := []State{StateCreated, StateConnecting, StateOpen, StateStreaming, StateClosing, StateClosed}
	got := l.History()
	if len(got) != len(want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLifecycle_Transitions(t *testing.T) {
	tests := []struct {
		name  string
		from  []Event
		event Event
		want  State
		err   bool
	}{
		{"handshake failure", []Event{EventConnect}, EventHandshakeFailed, StateFailed, false},
		{"close while open", []Event{EventConnect, EventHandshakeOK}, EventClose, StateClosing, false},
		{"socket error while open", []Event{EventConnect, EventHandshakeOK}, EventSocketError, StateFailed, false},
		{"socket error while streaming", []Event{EventConnect, EventHandshakeOK, EventActivity}, EventSocketError, StateFailed, false},
		{"socket error while closing", []Event{EventConnect, EventHandshakeOK, EventActivity, EventClose}, EventSocketError, StateClosed, false},
		{"abort created", nil, EventAbort, StateFailed, false},
		{"abort streaming", []Event{EventConnect, EventHandshakeOK, EventActivity}, EventAbort, StateFailed, false},
		{"activity before open", []Event{EventConnect}, EventActivity, StateConnecting, true},
		{"socket closed while streaming", []Event{EventConnect, EventHandshakeOK, EventActivity}, EventSocketClosed, StateStreaming, true},
		{"second close", []Event{EventConnect, EventHandshakeOK, EventActivity, EventClose}, EventClose, StateClosing, true},
		{"connect twice", []Event{EventConnect}, EventConnect, StateConnecting, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle()
			for _, ev := range tt.from {
				if _, _, err := l.Apply(ev); err != nil {
					t.Fatalf("setup Apply(%s): %v", ev, err)
				}
			}

			_, to, err := l.Apply(tt.event)
			if tt.err != (err != nil) {
				t.Fatalf("Apply(%s) error = %v, want error %v", tt.event, err, tt.err)
			}
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("expected ErrInvalidTransition, got %v", err)
			}
			if to != tt.want || l.State() != tt.want {
				t.Errorf("state = %s, want %s", l.State(), tt.want)
			}
		})
	}
}

func TestLifecycle_TerminalStatesAcceptNothing(t *testing.T) {
	events := []Event{EventConnect, EventHandshakeOK, EventHandshakeFailed, EventActivity,
		EventClose, EventSocketClosed, EventSocketError, EventAbort}

	for _, terminal := range []State{StateClosed, StateFailed} {
		for _, ev := range events {
			l := &Lifecycle{state: terminal, history: []State{terminal}}
			if _, _, err := l.Apply(ev); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("%s accepted %s", terminal, ev)
			}
			if l.State() != terminal {
				t.Errorf("%s changed to %s on %s", terminal, l.State(), ev)
			}
		}
	}
}

func TestCallSession_Snapshot(t *testing.T) {
	s := New(Params{RelayID: "r-1", Attempt: 1, ID: "call-1", JoinURL: "ws://engine/join"})

	s.appendAudio([]byte{1, 2})
	s.appendAudio([]byte{3})
	s.appendTranscript(TranscriptEntry{Role: "agent", Text: "hello"})

	snap := s.Snapshot()
	if string(snap.Audio) != string([]byte{1, 2, 3}) || snap.Frames != 2 {
		t.Errorf("unexpected audio %v frames %d", snap.Audio, snap.Frames)
	}
	if len(snap.Transcript) != 1 || snap.Transcript[0].Text != "hello" {
		t.Errorf("unexpected transcript %v", snap.Transcript)
	}
	if snap.State != StateCreated || snap.ID != "call-1" || snap.RelayID != "r-1" {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	snap.Audio[0] = 9
	snap.Transcript[0].Text = "changed"
	again := s.Snapshot()
	if again.Audio[0] != 1 || again.Transcript[0].Text != "hello" {
		t.Error("snapshot shares memory with the session")
	}
}
