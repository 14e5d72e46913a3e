package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"ai-voice-relay-service/internal/observability/metrics"
	"ai-voice-relay-service/internal/protocol"
	"ai-voice-relay-service/internal/service/audio"
)

// Config holds streaming socket settings.
type Config struct {
	HostHeader       string        // Host header sent on the handshake; empty keeps the URL host
	HandshakeTimeout time.Duration // bound on the socket handshake
	CloseTimeout     time.Duration // wait for the engine to close after call_completed
	WriteTimeout     time.Duration // per-message write deadline
}

// DefaultConfig returns the default socket settings.
func DefaultConfig() Config {
	return Config{
		HostHeader:       "voice.ultravox.ai",
		HandshakeTimeout: 10 * time.Second,
		CloseTimeout:     5 * time.Second,
		WriteTimeout:     5 * time.Second,
	}
}

// Transport connects a call session to its join endpoint and drives it to a
// terminal state.
type Transport struct {
	cfg     Config
	encoder *audio.Encoder
	dialer  *websocket.Dialer
	metrics *metrics.Metrics
}

// NewTransport creates a transport that streams source audio through encoder.
func NewTransport(cfg Config, encoder *audio.Encoder) *Transport {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultConfig().HandshakeTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = DefaultConfig().CloseTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	return &Transport{
		cfg:     cfg,
		encoder: encoder,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			Proxy:            http.ProxyFromEnvironment,
		},
		metrics: metrics.DefaultMetrics,
	}
}

type eventKind int

const (
	evFrame eventKind = iota
	evViolation
	evSocketClosed
	evOutboundDone
	evOutboundFailed
)

type event struct {
	kind  eventKind
	frame protocol.Frame
	bytes int
	err   error
}

// Run dials the session's join endpoint, streams src to the engine and
// collects the engine's audio and transcript until the session reaches CLOSED
// or FAILED. It returns nil only when the session ended CLOSED.
//
// Handshake and socket failures are returned as *TransportError. A source
// that cannot be transcoded is returned as an error wrapping
// *audio.ProcessingError.
func (t *Transport) Run(ctx context.Context, sess *CallSession, src io.Reader) error {
	if err := sess.transition(EventConnect); err != nil {
		return err
	}

	header := http.Header{}
	if t.cfg.HostHeader != "" {
		header.Set("Host", t.cfg.HostHeader)
	}

	conn, resp, err := t.dialer.DialContext(ctx, sess.JoinURL(), header)
	if err != nil {
		_ = sess.transition(EventHandshakeFailed)
		terr := &TransportError{Op: "dial", Err: err}
		if resp != nil {
			terr.StatusCode = resp.StatusCode
			resp.Body.Close()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return terr
	}
	_ = sess.transition(EventHandshakeOK)
	sess.logger.Info().Msg("Connected to voice engine")

	return t.stream(ctx, sess, conn, src)
}

func (t *Transport) stream(ctx context.Context, sess *CallSession, conn *websocket.Conn, src io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	outCtx, stopOutbound := context.WithCancel(ctx)

	events := make(chan event, 16)
	var g errgroup.Group
	g.Go(func() error {
		t.readLoop(ctx, conn, events)
		return nil
	})
	g.Go(func() error {
		t.writeLoop(outCtx, conn, src, events)
		return nil
	})
	defer func() {
		stopOutbound()
		cancel()
		conn.Close()
		_ = g.Wait()
	}()

	_ = sess.transition(EventActivity)

	var closeTimer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			_ = sess.transition(EventAbort)
			return ctx.Err()

		case <-closeTimer:
			sess.logger.Warn().
				Dur("closeTimeout", t.cfg.CloseTimeout).
				Msg("Engine did not close the socket in time")
			closeTimer = nil
			conn.Close()

		case ev := <-events:
			switch ev.kind {
			case evFrame:
				if !t.handleFrame(sess, ev.frame) || sess.State() == StateClosing {
					continue
				}
				if err := sess.transition(EventClose); err != nil {
					continue
				}
				stopOutbound()
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.cfg.WriteTimeout)); err != nil {
					sess.logger.Debug().Err(err).Msg("Failed to send close frame")
				}
				closeTimer = time.After(t.cfg.CloseTimeout)

			case evViolation:
				t.metrics.RecordProtocolViolation()
				sess.logger.Warn().Err(ev.err).Msg("Ignoring undecodable frame")

			case evOutboundDone:
				sess.logger.Info().
					Int("bytes", ev.bytes).
					Msg("Finished streaming source audio")

			case evOutboundFailed:
				if sess.State() == StateClosing {
					continue
				}
				var perr *audio.ProcessingError
				if errors.As(ev.err, &perr) {
					_ = sess.transition(EventAbort)
					return ev.err
				}
				_ = sess.transition(EventSocketError)
				return &TransportError{Op: "write", Err: ev.err}

			case evSocketClosed:
				return t.handleClosed(sess, ev.err)
			}
		}
	}
}

// handleFrame applies one inbound frame to the session and reports whether
// it was terminal.
func (t *Transport) handleFrame(sess *CallSession, frame protocol.Frame) bool {
	if frame.Kind == protocol.FrameBinary {
		sess.appendAudio(frame.Audio)
		t.metrics.RecordInboundAudio(len(frame.Audio))
		return false
	}

	ctrl := frame.Control
	t.metrics.RecordControlFrame(ctrl.Kind.String())
	switch ctrl.Kind {
	case protocol.KindSessionCreated:
		sess.logger.Info().Str("engineSessionId", ctrl.SessionID).Msg("Engine session created")
	case protocol.KindState:
		sess.logger.Debug().Str("engineState", ctrl.State).Msg("Engine state")
	case protocol.KindTranscript:
		sess.appendTranscript(TranscriptEntry{Role: ctrl.Role, Text: ctrl.Text})
		sess.logger.Debug().Str("role", ctrl.Role).Str("text", ctrl.Text).Msg("Transcript")
	case protocol.KindCallCompleted:
		sess.logger.Info().Msg("Engine completed the call")
		return true
	default:
		sess.logger.Debug().Str("type", ctrl.Type).Msg("Ignoring unknown control frame")
	}
	return false
}

func (t *Transport) handleClosed(sess *CallSession, err error) error {
	switch state := sess.State(); {
	case state == StateClosing:
		_ = sess.transition(EventSocketClosed)
		return nil
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		_ = sess.transition(EventClose)
		_ = sess.transition(EventSocketClosed)
		sess.logger.Info().Msg("Engine closed the socket")
		return nil
	default:
		_ = sess.transition(EventSocketError)
		sess.logger.Warn().Err(err).Str("state", state.String()).Msg("Socket failed")
		return &TransportError{Op: "read", Err: err}
	}
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn, events chan<- event) {
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			send(ctx, events, event{kind: evSocketClosed, err: err})
			return
		}
		frame, err := protocol.Classify(mt, data)
		if err != nil {
			if !send(ctx, events, event{kind: evViolation, err: err}) {
				return
			}
			continue
		}
		if !send(ctx, events, event{kind: evFrame, frame: frame}) {
			return
		}
	}
}

func (t *Transport) writeLoop(ctx context.Context, conn *websocket.Conn, src io.Reader, events chan<- event) {
	chunks := t.encoder.Stream(ctx, src)
	defer chunks.Close()

	fail := func(err error) {
		if ctx.Err() != nil {
			return
		}
		send(ctx, events, event{kind: evOutboundFailed, err: err})
	}

	for {
		chunk, err := chunks.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fail(err)
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			fail(fmt.Errorf("write audio chunk: %w", err))
			return
		}
		t.metrics.RecordOutboundChunk(len(chunk))
	}

	_ = conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	if err := conn.WriteJSON(protocol.NewInputAudioDone()); err != nil {
		fail(fmt.Errorf("write end of audio: %w", err))
		return
	}
	send(ctx, events, event{kind: evOutboundDone, bytes: chunks.BytesRead()})
}

func send(ctx context.Context, events chan<- event, ev event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
