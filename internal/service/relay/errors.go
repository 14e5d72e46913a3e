package relay

import (
	"context"
	"errors"
	"fmt"

	"ai-voice-relay-service/internal/service/audio"
	"ai-voice-relay-service/internal/service/session"
	"ai-voice-relay-service/internal/service/voiceengine"
)

// Error is the terminal failure of a relay. Err is the last attempt's error,
// audio.ErrNoResponse, or the context error.
type Error struct {
	RelayID  string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("relay %s failed after %d attempt(s): %v", e.RelayID, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether a new session might succeed where err failed.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var perr *audio.ProcessingError
	if errors.As(err, &perr) {
		return false
	}
	var rerr *voiceengine.RemoteServiceError
	var terr *session.TransportError
	return errors.As(err, &rerr) || errors.As(err, &terr)
}
