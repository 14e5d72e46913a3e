package session

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-voice-relay-service/internal/observability/logging"
	"ai-voice-relay-service/internal/observability/metrics"
	"ai-voice-relay-service/internal/service/audio"
)

// TranscriptEntry is one line of the call transcript.
type TranscriptEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Params identifies a new call session.
type Params struct {
	RelayID string
	Attempt int
	ID      string // engine call id
	JoinURL string
}

// CallSession is one relay attempt tied to one streaming connection.
// Audio and transcript are written only by the goroutine running the
// session's Transport; read them through Snapshot.
type CallSession struct {
	relayID   string
	attempt   int
	id        string
	joinURL   string
	createdAt time.Time

	lifecycle *Lifecycle
	logger    zerolog.Logger
	metrics   *metrics.Metrics

	mu         sync.RWMutex
	audio      audio.Accumulator
	transcript []TranscriptEntry
}

// New creates a session in CREATED state.
func New(p Params) *CallSession {
	return &CallSession{
		relayID:   p.RelayID,
		attempt:   p.Attempt,
		id:        p.ID,
		joinURL:   p.JoinURL,
		createdAt: time.Now().UTC(),
		lifecycle: NewLifecycle(),
		logger:    logging.WithSession(p.RelayID, p.ID, p.Attempt),
		metrics:   metrics.DefaultMetrics,
	}
}

// ID returns the engine call id.
func (s *CallSession) ID() string { return s.id }

// RelayID returns the relay this session belongs to.
func (s *CallSession) RelayID() string { return s.relayID }

// Attempt returns the 1-based attempt number within the relay.
func (s *CallSession) Attempt() int { return s.attempt }

// JoinURL returns the socket endpoint issued for this session.
func (s *CallSession) JoinURL() string { return s.joinURL }

// CreatedAt returns when the session was created, in UTC.
func (s *CallSession) CreatedAt() time.Time { return s.createdAt }

// State returns the current lifecycle state.
func (s *CallSession) State() State { return s.lifecycle.State() }

// History returns the states the session has passed through.
func (s *CallSession) History() []State {
	return s.lifecycle.History()
}

// transition applies ev, logging and counting the change.
func (s *CallSession) transition(ev Event) error {
	from, to, err := s.lifecycle.Apply(ev)
	if err != nil {
		s.logger.Debug().
			Str("event", ev.String()).
			Str("state", from.String()).
			Msg("Ignored session event")
		return err
	}
	s.metrics.RecordSessionState(to.String())
	s.logger.Debug().
		Str("event", ev.String()).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("Session state transition")
	return nil
}

func (s *CallSession) appendAudio(p []byte) {
	s.mu.Lock()
	s.audio.Append(p)
	s.mu.Unlock()
}

func (s *CallSession) appendTranscript(e TranscriptEntry) {
	s.mu.Lock()
	s.transcript = append(s.transcript, e)
	s.mu.Unlock()
}

// Snapshot is a read-only copy of a session.
type Snapshot struct {
	RelayID    string
	Attempt    int
	ID         string
	JoinURL    string
	State      State
	CreatedAt  time.Time
	Audio      []byte
	Frames     int
	Transcript []TranscriptEntry
}

// Snapshot copies the session's current contents.
func (s *CallSession) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transcript := make([]TranscriptEntry, len(s.transcript))
	copy(transcript, s.transcript)

	return Snapshot{
		RelayID:    s.relayID,
		Attempt:    s.attempt,
		ID:         s.id,
		JoinURL:    s.joinURL,
		State:      s.lifecycle.State(),
		CreatedAt:  s.createdAt,
		Audio:      s.audio.Bytes(),
		Frames:     s.audio.Frames(),
		Transcript: transcript,
	}
}
