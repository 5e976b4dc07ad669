package gateway

import "fmt"

// ErrorClass classifies a tool failure for retry purposes.
type ErrorClass string

const (
	// ErrorClassTransient indicates the call may succeed on retry
	// (timeouts, rate limits, connection resets).
	ErrorClassTransient ErrorClass = "transient"
	// ErrorClassPermanent indicates retrying cannot help
	// (bad parameters, missing entity, auth failure).
	ErrorClassPermanent ErrorClass = "permanent"
)

// Classifier maps a raw tool error to its retry class.
// A nil classifier on a tool definition defaults to transient.
type Classifier func(err error) ErrorClass

// TransientToolError wraps a tool failure that is expected to be
// retryable. The gateway retries these with backoff.
type TransientToolError struct {
	Tool    string
	Attempt int
	Cause   error
}

func (e *TransientToolError) Error() string {
	return fmt.Sprintf("tool '%s' transient failure (attempt %d): %v", e.Tool, e.Attempt, e.Cause)
}

func (e *TransientToolError) Unwrap() error { return e.Cause }

// PermanentToolError wraps a tool failure that retrying cannot fix,
// either because the error was classified permanent or because the
// retry budget was exhausted.
type PermanentToolError struct {
	Tool      string
	Attempts  int
	Exhausted bool // true when a transient error ran out of retries
	Cause     error
}

func (e *PermanentToolError) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("tool '%s' failed after %d attempts: %v", e.Tool, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("tool '%s' permanent failure: %v", e.Tool, e.Cause)
}

func (e *PermanentToolError) Unwrap() error { return e.Cause }

// UnknownToolError is returned when a call names an unregistered tool.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Tool)
}
