package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/gorilla/websocket"
)

func TestClassify_BinaryIsAudio(t *testing.T) {
	// Binary payloads are audio even when they happen to look like JSON.
	payloads := [][]byte{{0x00, 0x01, 0xff}, []byte(`{"type":"call_completed"}`), {}}

	for _, p := range payloads {
		frame, err := Classify(websocket.BinaryMessage, p)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if frame.Kind != FrameBinary {
			t.Errorf("expected FrameBinary for %q", p)
		}
		if string(frame.Audio) != string(p) {
			t.Errorf("audio payload changed: %q", frame.Audio)
		}
	}
}

func TestClassify_ControlKinds(t *testing.T) {
	tests := []struct {
		name string
		data string
		kind Kind
	}{
		{"session created", `{"type":"session_created","session_id":"s-1"}`, KindSessionCreated},
		{"state", `{"type":"state","state":"listening"}`, KindState},
		{"transcript", `{"type":"transcript","role":"agent","text":"hi","final":true}`, KindTranscript},
		{"call completed", `{"type":"call_completed"}`, KindCallCompleted},
		{"call completed with extras", `{"type":"call_completed","reason":"hangup","state":"speaking","text":"bye"}`, KindCallCompleted},
		{"unknown", `{"type":"playback_clear_buffer"}`, KindUnknown},
		{"empty type", `{"type":""}`, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Classify(websocket.TextMessage, []byte(tt.data))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if frame.Kind != FrameControl {
				t.Fatalf("expected FrameControl")
			}
			if frame.Control.Kind != tt.kind {
				t.Errorf("expected kind %v, got %v", tt.kind, frame.Control.Kind)
			}
			if frame.Control.IsTerminal() != (tt.kind == KindCallCompleted) {
				t.Errorf("IsTerminal() = %v for kind %v", frame.Control.IsTerminal(), tt.kind)
			}
		})
	}
}

func TestDecodeControl_Fields(t *testing.T) {
	ctrl, err := DecodeControl([]byte(`{"type":"transcript","role":"user","text":"hello there","final":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ctrl.Role != "user" || ctrl.Text != "hello there" || !ctrl.Final {
		t.Errorf("unexpected transcript fields: %+v", ctrl)
	}
	if ctrl.Type != "transcript" {
		t.Errorf("expected raw type transcript, got %s", ctrl.Type)
	}

	delta, err := DecodeControl([]byte(`{"type":"transcript","role":"agent","delta":"partial"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if delta.Text != "partial" {
		t.Errorf("expected delta text, got %q", delta.Text)
	}

	created, err := DecodeControl([]byte(`{"type":"session_created","callId":"call-9"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.SessionID != "call-9" {
		t.Errorf("expected session id from callId, got %q", created.SessionID)
	}
}

func TestClassify_Violations(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `hello`},
		{"truncated", `{"type":"transcript"`},
		{"array", `["call_completed"]`},
		{"missing type", `{"state":"listening"}`},
		{"numeric type", `{"type":7}`},
		{"null", `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(websocket.TextMessage, []byte(tt.data))
			var verr *ViolationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ViolationError, got %v", err)
			}
			if string(verr.Raw) != tt.data {
				t.Errorf("expected raw payload to be kept")
			}
		})
	}
}

func TestClassify_UnexpectedMessageType(t *testing.T) {
	_, err := Classify(websocket.PingMessage, nil)
	var verr *ViolationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ViolationError, got %v", err)
	}
}

func TestKind_String(t *testing.T) {
	for typ, kind := range kindsByType {
		if kind.String() != typ {
			t.Errorf("Kind(%d).String() = %s, want %s", kind, kind.String(), typ)
		}
	}
	if KindUnknown.String() != "unknown" {
		t.Errorf("unexpected unknown string %s", KindUnknown.String())
	}
}

func TestNewInputAudioDone(t *testing.T) {
	data, err := json.Marshal(NewInputAudioDone())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"input_audio_done"}` {
		t.Errorf("unexpected marker %s", data)
	}
}
