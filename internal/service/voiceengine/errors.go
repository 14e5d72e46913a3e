package voiceengine

import (
	"errors"
	"fmt"
)

// ErrMissingJoinURL is reported when a successful response has no join endpoint.
var ErrMissingJoinURL = errors.New("no joinUrl in response")

// RemoteServiceError reports a failed call creation: a non-2xx status, an
// undecodable body, a missing join endpoint, or (StatusCode 0) a request
// that never got a response.
type RemoteServiceError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteServiceError) Error() string {
	switch {
	case e.StatusCode == 0:
		return fmt.Sprintf("voice engine unreachable: %v", e.Err)
	case e.Err != nil:
		return fmt.Sprintf("voice engine call creation failed (status %d): %v", e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("voice engine call creation failed (status %d): %s", e.StatusCode, e.Body)
	}
}

func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}
