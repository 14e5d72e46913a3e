package voicenote

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"ai-voice-relay-service/internal/service/audio"
	"ai-voice-relay-service/internal/service/relay"
)

type fakeChannel struct {
	media       map[string][]byte
	sendErr     error
	sent        []OutboundMessage
	recipients  []string
	downloadIDs []string
}

func (c *fakeChannel) Download(ctx context.Context, ref MediaRef) ([]byte, error) {
	c.downloadIDs = append(c.downloadIDs, ref.ID)
	data, ok := c.media[ref.ID]
	if !ok {
		return nil, fmt.Errorf("media %s not found", ref.ID)
	}
	return data, nil
}

func (c *fakeChannel) Send(ctx context.Context, recipient string, msg OutboundMessage) error {
	c.recipients = append(c.recipients, recipient)
	c.sent = append(c.sent, msg)
	return c.sendErr
}

type fakeRelayer struct {
	reply  *relay.Reply
	err    error
	source []byte
}

func (f *fakeRelayer) Relay(ctx context.Context, source []byte) (*relay.Reply, error) {
	f.source = source
	return f.reply, f.err
}

func voiceMessage() IncomingMessage {
	return IncomingMessage{Sender: "alice@chat", Audio: &MediaRef{ID: "m-1", MimeType: "audio/ogg; codecs=opus"}}
}

func TestHandle_VoiceReply(t *testing.T) {
	ch := &fakeChannel{media: map[string][]byte{"m-1": []byte("ogg bytes")}}
	rl := &fakeRelayer{reply: &relay.Reply{Audio: []byte("reply"), MimeType: "audio/ogg; codecs=opus"}}

	if err := NewResponder(rl, ch).Handle(context.Background(), voiceMessage()); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if string(rl.source) != "ogg bytes" {
		t.Errorf("relay got %q", rl.source)
	}
	if len(ch.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(ch.sent))
	}
	out := ch.sent[0]
	if string(out.Audio) != "reply" || !out.VoiceNote || out.MimeType != "audio/ogg; codecs=opus" || out.Text != "" {
		t.Errorf("unexpected reply %+v", out)
	}
	if ch.recipients[0] != "alice@chat" {
		t.Errorf("unexpected recipient %s", ch.recipients[0])
	}
}

func TestHandle_Notices(t *testing.T) {
	tests := []struct {
		name  string
		media map[string][]byte
		err   error
		want  string
	}{
		{"no response", map[string][]byte{"m-1": {1}}, &relay.Error{Attempts: 1, Err: audio.ErrNoResponse}, TextNoResponse},
		{"relay failure", map[string][]byte{"m-1": {1}}, &relay.Error{Attempts: 3, Err: errors.New("engine down")}, TextFailure},
		{"download failure", nil, nil, TextFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &fakeChannel{media: tt.media}
			rl := &fakeRelayer{err: tt.err}

			if err := NewResponder(rl, ch).Handle(context.Background(), voiceMessage()); err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if len(ch.sent) != 1 || ch.sent[0].Text != tt.want || ch.sent[0].Audio != nil {
				t.Errorf("expected notice %q, got %+v", tt.want, ch.sent)
			}
		})
	}
}

func TestHandle_TextMessage(t *testing.T) {
	ch := &fakeChannel{}
	rl := &fakeRelayer{}

	if err := NewResponder(rl, ch).Handle(context.Background(), IncomingMessage{Sender: "bob", Text: "hi"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0].Text != TextAcknowledge {
		t.Errorf("unexpected messages %+v", ch.sent)
	}
	if rl.source != nil || len(ch.downloadIDs) != 0 {
		t.Error("text messages must not be relayed")
	}
}

func TestHandle_EmptyMessageIgnored(t *testing.T) {
	ch := &fakeChannel{}
	if err := NewResponder(&fakeRelayer{}, ch).Handle(context.Background(), IncomingMessage{Sender: "bob"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(ch.sent) != 0 {
		t.Errorf("expected no reply, got %+v", ch.sent)
	}
}

func TestHandle_SendError(t *testing.T) {
	ch := &fakeChannel{media: map[string][]byte{"m-1": {1}}, sendErr: errors.New("offline")}
	rl := &fakeRelayer{reply: &relay.Reply{Audio: []byte{1}}}

	err := NewResponder(rl, ch).Handle(context.Background(), voiceMessage())
	if err == nil || !errors.Is(err, ch.sendErr) {
		t.Errorf("expected wrapped send error, got %v", err)
	}
}
