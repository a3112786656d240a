package agent

import "fmt"

// ErrKind classifies an attempt failure for retry decisions and history.
type ErrKind string

const (
	ErrAuth              ErrKind = "auth"
	ErrFieldDetection    ErrKind = "field_detection"
	ErrMappingUnresolved ErrKind = "mapping_unresolved"
	ErrUpload            ErrKind = "upload"
	ErrSubmission        ErrKind = "submission"
	ErrAIProvider        ErrKind = "ai_provider"
	ErrBrowserTimeout    ErrKind = "browser_timeout"
)

// AttemptError is a classified failure from one pass through the state
// machine. It records the state the attempt was in when the failure occurred.
type AttemptError struct {
	Kind  ErrKind
	State State
	Err   error
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("%s in state %s: %v", e.Kind, e.State, e.Err)
}

func (e *AttemptError) Unwrap() error { return e.Err }

func attemptErr(kind ErrKind, state State, format string, v ...interface{}) *AttemptError {
	return &AttemptError{Kind: kind, State: state, Err: fmt.Errorf(format, v...)}
}
