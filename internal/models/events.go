// Package models defines the data structures for relay events.
package models

// Event types.
const (
	EventTypeTranscript = "voice.relay.transcript"
	EventTypeOutcome    = "voice.relay.outcome"
)

// Relay outcomes.
const (
	OutcomeReplied    = "replied"
	OutcomeNoResponse = "no_response"
	OutcomeFailed     = "failed"
	OutcomeRejected   = "rejected" // source audio could not be processed
)

// RoleUnknown is published for transcript lines the engine sent without a role.
const RoleUnknown = "unknown"

// TranscriptEvent is one transcript line of a completed call session.
type TranscriptEvent struct {
	EventType string `json:"eventType" validate:"required,eq=voice.relay.transcript"`
	RelayID   string `json:"relayId" validate:"required"`
	SessionID string `json:"sessionId" validate:"required"`
	Timestamp int64  `json:"timestamp" validate:"gt=0"`
	Sequence  int    `json:"sequence" validate:"gte=0"`
	Role      string `json:"role" validate:"required"`
	Text      string `json:"text"`
}

// RelayOutcome summarises one relay.
type RelayOutcome struct {
	EventType  string `json:"eventType" validate:"required,eq=voice.relay.outcome"`
	RelayID    string `json:"relayId" validate:"required"`
	SessionID  string `json:"sessionId,omitempty"`
	Timestamp  int64  `json:"timestamp" validate:"gt=0"`
	Outcome    string `json:"outcome" validate:"required,oneof=replied no_response failed rejected"`
	Attempts   int    `json:"attempts" validate:"gte=0"`
	DurationMs int64  `json:"durationMs" validate:"gte=0"`
	AudioBytes int    `json:"audioBytes" validate:"gte=0"`
	MimeType   string `json:"mimeType,omitempty"`
	Error      string `json:"error,omitempty"`
}
