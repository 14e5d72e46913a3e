package audio

import (
	"errors"
	"fmt"
)

// ErrNoResponse is returned by the packager when the session closed without
// the engine sending any audio. It is distinct from a valid, short artifact.
var ErrNoResponse = errors.New("no response audio")

var errEmptySource = errors.New("source audio decoded to zero samples")

// ProcessingError reports bad input audio or a failed transcoder run.
// Retrying with the same input cannot succeed.
type ProcessingError struct {
	Op       string // encode, package
	ExitCode int    // transcoder exit code, -1 if it did not exit normally
	Stderr   string // tail of the transcoder's stderr
	Err      error
}

func (e *ProcessingError) Error() string {
	msg := fmt.Sprintf("audio %s failed", e.Op)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
