package session

import "fmt"

// TransportError reports a failure of the streaming socket: a handshake
// that did not complete, or a read or write on an open connection.
// These are retryable at the relay level.
type TransportError struct {
	Op         string // dial, read, write
	StatusCode int    // handshake response status, when one was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("session %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("session %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
