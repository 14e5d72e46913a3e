// Package protocol classifies messages read from the voice engine's
// streaming socket and decodes control frames into a closed set of kinds.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
)

// Message types sent by the relay.
const (
	TypeInputAudioDone = "input_audio_done"
)

// Kind identifies a decoded control frame.
type Kind int

const (
	// KindUnknown - discriminator not recognised; logged and ignored.
	KindUnknown Kind = iota
	// KindSessionCreated - engine acknowledged the socket session.
	KindSessionCreated
	// KindState - engine state change (listening, thinking, speaking).
	KindState
	// KindTranscript - a transcript line for either side of the call.
	KindTranscript
	// KindCallCompleted - the engine has finished; the session should close.
	KindCallCompleted
)

var kindsByType = map[string]Kind{
	"session_created": KindSessionCreated,
	"state":           KindState,
	"transcript":      KindTranscript,
	"call_completed":  KindCallCompleted,
}

// String returns the wire discriminator for the kind.
func (k Kind) String() string {
	switch k {
	case KindSessionCreated:
		return "session_created"
	case KindState:
		return "state"
	case KindTranscript:
		return "transcript"
	case KindCallCompleted:
		return "call_completed"
	default:
		return "unknown"
	}
}

// ControlFrame is a decoded structured text message.
type ControlFrame struct {
	Kind      Kind
	Type      string // raw discriminator as received
	SessionID string
	State     string
	Role      string
	Text      string
	Final     bool
	Raw       json.RawMessage
}

// IsTerminal reports whether the frame ends the session.
func (c ControlFrame) IsTerminal() bool {
	return c.Kind == KindCallCompleted
}

// FrameKind tags a Frame as audio or control.
type FrameKind int

const (
	FrameBinary FrameKind = iota
	FrameControl
)

// Frame is one message received from the engine: exactly one of Audio or
// Control is meaningful, selected by Kind.
type Frame struct {
	Kind    FrameKind
	Audio   []byte
	Control ControlFrame
}

// ViolationError reports a text message that could not be decoded as a
// control frame. It is never fatal to a session.
type ViolationError struct {
	Reason string
	Raw    []byte
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("protocol violation: %s", e.Reason)
}

type wireControl struct {
	Type      *string `json:"type"`
	SessionID string  `json:"session_id"`
	CallID    string  `json:"callId"`
	State     string  `json:"state"`
	Role      string  `json:"role"`
	Text      string  `json:"text"`
	Delta     string  `json:"delta"`
	Final     bool    `json:"final"`
}

// Classify turns a socket message into a Frame. Binary messages are audio.
// Text messages are decoded as control frames; one that is not a JSON object
// with a string "type" yields *ViolationError.
func Classify(messageType int, data []byte) (Frame, error) {
	switch messageType {
	case websocket.BinaryMessage:
		return Frame{Kind: FrameBinary, Audio: data}, nil
	case websocket.TextMessage:
		ctrl, err := DecodeControl(data)
		if err != nil {
			return Frame{}, err
		}
		return Frame{Kind: FrameControl, Control: ctrl}, nil
	default:
		return Frame{}, &ViolationError{Reason: fmt.Sprintf("unexpected message type %d", messageType), Raw: data}
	}
}

// DecodeControl decodes a structured text message.
func DecodeControl(data []byte) (ControlFrame, error) {
	var w wireControl
	if err := json.Unmarshal(data, &w); err != nil {
		return ControlFrame{}, &ViolationError{Reason: "invalid json frame", Raw: data}
	}
	if w.Type == nil {
		return ControlFrame{}, &ViolationError{Reason: "missing type", Raw: data}
	}

	typ := strings.TrimSpace(*w.Type)
	kind, ok := kindsByType[typ]
	if !ok {
		kind = KindUnknown
	}

	text := w.Text
	if text == "" {
		text = w.Delta
	}
	sessionID := w.SessionID
	if sessionID == "" {
		sessionID = w.CallID
	}

	return ControlFrame{
		Kind:      kind,
		Type:      typ,
		SessionID: sessionID,
		State:     w.State,
		Role:      w.Role,
		Text:      text,
		Final:     w.Final,
		Raw:       json.RawMessage(data),
	}, nil
}

// InputAudioDone is the marker the relay sends after the last audio chunk.
type InputAudioDone struct {
	Type string `json:"type"`
}

// NewInputAudioDone returns the end-of-audio marker.
func NewInputAudioDone() InputAudioDone {
	return InputAudioDone{Type: TypeInputAudioDone}
}
