// Package voicenote answers voice messages from a messaging channel with
// spoken replies produced by the relay.
package voicenote

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"ai-voice-relay-service/internal/observability/logging"
	"ai-voice-relay-service/internal/service/audio"
	"ai-voice-relay-service/internal/service/relay"
)

// Notices sent instead of a voice reply.
const (
	TextNoResponse  = "Could not generate response."
	TextFailure     = "Something went wrong!"
	TextAcknowledge = "Got your message!"
)

// MediaRef identifies downloadable media on the channel.
type MediaRef struct {
	ID       string
	MimeType string
}

// IncomingMessage is a message received on the channel. Audio is set for
// voice messages; Text for plain text messages.
type IncomingMessage struct {
	Sender string
	Audio  *MediaRef
	Text   string
}

// OutboundMessage is either an audio message or a text message.
type OutboundMessage struct {
	Audio     []byte
	MimeType  string
	VoiceNote bool
	Text      string
}

// Channel is the messaging platform the responder talks to.
type Channel interface {
	Download(ctx context.Context, ref MediaRef) ([]byte, error)
	Send(ctx context.Context, recipient string, msg OutboundMessage) error
}

// Relayer produces a spoken reply for a recording.
type Relayer interface {
	Relay(ctx context.Context, source []byte) (*relay.Reply, error)
}

// Responder handles incoming messages. Every voice message is answered
// with either a voice note or a text notice.
type Responder struct {
	relayer Relayer
	channel Channel
	logger  zerolog.Logger
}

// NewResponder creates a responder.
func NewResponder(relayer Relayer, channel Channel) *Responder {
	return &Responder{
		relayer: relayer,
		channel: channel,
		logger:  logging.WithComponent("voicenote"),
	}
}

// Handle answers msg. The returned error is the channel's send error, if any.
func (r *Responder) Handle(ctx context.Context, msg IncomingMessage) error {
	logger := r.logger.With().Str("sender", msg.Sender).Logger()

	switch {
	case msg.Audio != nil:
		out := r.answerVoice(ctx, logger, *msg.Audio)
		return r.send(ctx, msg.Sender, out)
	case msg.Text != "":
		logger.Debug().Msg("Text message received")
		return r.send(ctx, msg.Sender, OutboundMessage{Text: TextAcknowledge})
	default:
		return nil
	}
}

func (r *Responder) answerVoice(ctx context.Context, logger zerolog.Logger, ref MediaRef) OutboundMessage {
	logger.Info().Str("mediaId", ref.ID).Msg("Voice message received")

	source, err := r.channel.Download(ctx, ref)
	if err != nil {
		logger.Error().Err(err).Str("mediaId", ref.ID).Msg("Failed to download voice message")
		return OutboundMessage{Text: TextFailure}
	}

	reply, err := r.relayer.Relay(ctx, source)
	switch {
	case errors.Is(err, audio.ErrNoResponse):
		return OutboundMessage{Text: TextNoResponse}
	case err != nil:
		logger.Error().Err(err).Msg("Relay failed")
		return OutboundMessage{Text: TextFailure}
	}

	return OutboundMessage{
		Audio:     reply.Audio,
		MimeType:  reply.MimeType,
		VoiceNote: true,
	}
}

func (r *Responder) send(ctx context.Context, recipient string, out OutboundMessage) error {
	if err := r.channel.Send(context.WithoutCancel(ctx), recipient, out); err != nil {
		return fmt.Errorf("send reply to %s: %w", recipient, err)
	}
	return nil
}
