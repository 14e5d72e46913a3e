// Package relay implements the voice relay: one source recording in, one
// packaged spoken reply out, retried over fresh call sessions.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"ai-voice-relay-service/internal/models"
	"ai-voice-relay-service/internal/observability/logging"
	"ai-voice-relay-service/internal/observability/metrics"
	"ai-voice-relay-service/internal/schema"
	"ai-voice-relay-service/internal/service/audio"
	"ai-voice-relay-service/internal/service/session"
)

// Initiator creates a call session bound to a fresh join endpoint.
type Initiator interface {
	Initiate(ctx context.Context, relayID string, attempt int) (*session.CallSession, error)
}

// Streamer drives a session to a terminal state while streaming src.
type Streamer interface {
	Run(ctx context.Context, sess *session.CallSession, src io.Reader) error
}

// Packager turns accumulated PCM into a deliverable artifact.
type Packager interface {
	Package(ctx context.Context, pcm []byte) (*audio.Artifact, error)
}

// EventPublisher receives relay events.
type EventPublisher interface {
	PublishTranscript(ctx context.Context, event models.TranscriptEvent) error
	PublishOutcome(ctx context.Context, event models.RelayOutcome) error
}

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultPolicy returns three attempts five seconds apart.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: 5 * time.Second}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry delay must not be negative, got %s", p.Delay)
	}
	return nil
}

func (p Policy) backoff() retry.Backoff {
	var b retry.Backoff
	if p.Delay > 0 {
		b = retry.NewConstant(p.Delay)
	} else {
		b = retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
	}
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// Reply is the outcome of a successful relay.
type Reply struct {
	RelayID    string
	SessionID  string
	Attempts   int
	Audio      []byte
	MimeType   string
	Transcript []session.TranscriptEntry
	Duration   time.Duration
}

// Relayer runs relays. It is safe for concurrent use; relays share nothing.
type Relayer struct {
	initiator Initiator
	streamer  Streamer
	packager  Packager
	policy    Policy
	publisher EventPublisher
	validator *schema.Validator
	metrics   *metrics.Metrics
	newID     func() string
	logger    zerolog.Logger
}

// Option configures a Relayer.
type Option func(*Relayer)

// WithPublisher publishes transcript and outcome events to p.
func WithPublisher(p EventPublisher) Option {
	return func(r *Relayer) { r.publisher = p }
}

// WithIDGenerator overrides relay ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Relayer) { r.newID = fn }
}

// New creates a Relayer. An invalid policy falls back to DefaultPolicy.
func New(initiator Initiator, streamer Streamer, packager Packager, policy Policy, opts ...Option) *Relayer {
	r := &Relayer{
		initiator: initiator,
		streamer:  streamer,
		packager:  packager,
		policy:    policy,
		validator: schema.New(),
		metrics:   metrics.DefaultMetrics,
		newID:     uuid.NewString,
		logger:    logging.WithComponent("relay"),
	}
	if err := policy.Validate(); err != nil {
		r.logger.Warn().Err(err).Msg("Invalid retry policy, using default")
		r.policy = DefaultPolicy()
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Relay sends source to the voice engine and returns the packaged reply.
//
// Each attempt creates a new session with a new join endpoint and streams
// the whole source from the beginning. Call creation and socket failures are
// retried up to the policy bound; bad source audio is not. A session that
// completes without any engine audio returns an *Error wrapping
// audio.ErrNoResponse and is not retried.
func (r *Relayer) Relay(ctx context.Context, source []byte) (*Reply, error) {
	relayID := r.newID()
	logger := logging.WithRelay(relayID)
	start := time.Now()
	r.metrics.RecordRelayStart()

	logger.Info().
		Int("sourceBytes", len(source)).
		Int("maxAttempts", r.policy.MaxAttempts).
		Msg("Relay started")

	attempts := 0
	var sess *session.CallSession
	err := retry.Do(ctx, r.policy.backoff(), func(ctx context.Context) error {
		attempts++
		s, err := r.attempt(ctx, relayID, attempts, source)
		if s != nil {
			sess = s
		}
		if err == nil {
			return nil
		}
		if Retryable(err) {
			logger.Warn().
				Err(err).
				Int("attempt", attempts).
				Msg("Relay attempt failed")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, r.fail(ctx, logger, relayID, sessionID(sess), attempts, start, err)
	}

	snap := sess.Snapshot()
	r.publishTranscript(ctx, logger, snap)

	artifact, err := r.packager.Package(ctx, snap.Audio)
	if err != nil {
		return nil, r.fail(ctx, logger, relayID, snap.ID, attempts, start, err)
	}

	reply := &Reply{
		RelayID:    relayID,
		SessionID:  snap.ID,
		Attempts:   attempts,
		Audio:      artifact.Data,
		MimeType:   artifact.MimeType,
		Transcript: snap.Transcript,
		Duration:   artifact.Duration,
	}

	elapsed := time.Since(start)
	r.metrics.RecordRelayEnd("", attempts, elapsed.Seconds())
	r.publishOutcome(ctx, logger, models.RelayOutcome{
		EventType:  models.EventTypeOutcome,
		RelayID:    relayID,
		SessionID:  snap.ID,
		Timestamp:  time.Now().UnixMilli(),
		Outcome:    models.OutcomeReplied,
		Attempts:   attempts,
		DurationMs: elapsed.Milliseconds(),
		AudioBytes: len(artifact.Data),
		MimeType:   artifact.MimeType,
	})

	logger.Info().
		Str("sessionId", snap.ID).
		Int("attempts", attempts).
		Int("replyBytes", len(artifact.Data)).
		Dur("replyDuration", artifact.Duration).
		Dur("elapsed", elapsed).
		Msg("Relay completed")
	return reply, nil
}

func (r *Relayer) attempt(ctx context.Context, relayID string, n int, source []byte) (*session.CallSession, error) {
	sess, err := r.initiator.Initiate(ctx, relayID, n)
	if err != nil {
		return nil, err
	}
	return sess, r.streamer.Run(ctx, sess, bytes.NewReader(source))
}

func (r *Relayer) fail(ctx context.Context, logger zerolog.Logger, relayID, sessionID string, attempts int, start time.Time, err error) error {
	outcome := models.OutcomeFailed
	var perr *audio.ProcessingError
	switch {
	case errors.Is(err, audio.ErrNoResponse):
		outcome = models.OutcomeNoResponse
	case errors.As(err, &perr):
		outcome = models.OutcomeRejected
	}

	elapsed := time.Since(start)
	r.metrics.RecordRelayEnd(outcome, attempts, elapsed.Seconds())
	r.publishOutcome(context.WithoutCancel(ctx), logger, models.RelayOutcome{
		EventType:  models.EventTypeOutcome,
		RelayID:    relayID,
		SessionID:  sessionID,
		Timestamp:  time.Now().UnixMilli(),
		Outcome:    outcome,
		Attempts:   attempts,
		DurationMs: elapsed.Milliseconds(),
		Error:      err.Error(),
	})

	ev := logger.Error()
	if outcome == models.OutcomeNoResponse {
		ev = logger.Warn()
	}
	ev.Err(err).
		Str("outcome", outcome).
		Int("attempts", attempts).
		Dur("elapsed", elapsed).
		Msg("Relay ended without a reply")

	return &Error{RelayID: relayID, Attempts: attempts, Err: err}
}

func (r *Relayer) publishTranscript(ctx context.Context, logger zerolog.Logger, snap session.Snapshot) {
	if r.publisher == nil {
		return
	}
	for i, entry := range snap.Transcript {
		role := entry.Role
		if role == "" {
			role = models.RoleUnknown
		}
		ev := models.TranscriptEvent{
			EventType: models.EventTypeTranscript,
			RelayID:   snap.RelayID,
			SessionID: snap.ID,
			Timestamp: time.Now().UnixMilli(),
			Sequence:  i,
			Role:      role,
			Text:      entry.Text,
		}
		if err := r.validator.Validate(ev); err != nil {
			logger.Error().Err(err).Msg("Dropping invalid transcript event")
			continue
		}
		if err := r.publisher.PublishTranscript(ctx, ev); err != nil {
			logger.Warn().Err(err).Msg("Failed to publish transcript event")
		}
	}
}

func (r *Relayer) publishOutcome(ctx context.Context, logger zerolog.Logger, ev models.RelayOutcome) {
	if r.publisher == nil {
		return
	}
	if err := r.validator.Validate(ev); err != nil {
		logger.Error().Err(err).Msg("Dropping invalid outcome event")
		return
	}
	if err := r.publisher.PublishOutcome(ctx, ev); err != nil {
		logger.Warn().Err(err).Msg("Failed to publish outcome event")
	}
}

func sessionID(s *session.CallSession) string {
	if s == nil {
		return ""
	}
	return s.ID()
}
