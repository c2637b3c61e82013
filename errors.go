package lmgo

import (
	"errors"
	"fmt"

	"github.com/achieveai/lmgo/transport"
)

// Sentinel errors for common failure modes.
// These can be checked with errors.Is().
var (
	// ErrInvalidAPIKey indicates the API key is missing or malformed.
	ErrInvalidAPIKey = errors.New("lmgo: invalid API key")

	// ErrInvalidModel indicates the requested model is missing or not
	// supported by the selected provider.
	ErrInvalidModel = errors.New("lmgo: invalid or unsupported model")

	// ErrInvalidRequest indicates the request parameters are invalid.
	ErrInvalidRequest = errors.New("lmgo: invalid request")

	// ErrEmptyConversation indicates a request with no messages.
	ErrEmptyConversation = errors.New("lmgo: conversation has no messages")
)

// ValidationError reports bad input detected before dispatch. It is never
// retried and never counts as a network attempt.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed for '%s' (value: %v): %s (%v)", e.Field, e.Value, e.Reason, e.Err)
	}
	return fmt.Sprintf("validation failed for '%s' (value: %v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// MalformedResponseError reports a response that is structurally invalid at a
// point that cannot be safely skipped, e.g. an event stream with no
// message_start, or a non-streaming body that is not the expected JSON shape.
type MalformedResponseError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response from '%s': %s (%v)", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed response from '%s': %s", e.Provider, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

// PartialContentWarning reports a block-level decode issue on an otherwise
// successful turn, e.g. tool arguments that never parsed as JSON. It is
// delivered out-of-band through the client's warning handler and never fails
// the turn.
type PartialContentWarning struct {
	BlockIndex int
	BlockKind  string
	Reason     string
	Err        error
}

func (e *PartialContentWarning) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("partial content in %s block %d: %s (%v)", e.BlockKind, e.BlockIndex, e.Reason, e.Err)
	}
	return fmt.Sprintf("partial content in %s block %d: %s", e.BlockKind, e.BlockIndex, e.Reason)
}

func (e *PartialContentWarning) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is potentially retryable. True for transient
// transport failures (network errors, 429, 5xx). The executor already retries
// these internally; a retryable error surfacing to the caller means the retry
// budget was exhausted.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var httpErr *transport.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable
	}

	return errors.Is(err, transport.ErrNetwork)
}

// IsInvalidRequest checks if an error indicates invalid request parameters.
// These errors are not retryable and require request changes.
func IsInvalidRequest(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrInvalidModel) || errors.Is(err, ErrEmptyConversation) {
		return true
	}

	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsAuthError checks if an error is related to authentication.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrInvalidAPIKey) {
		return true
	}

	var httpErr *transport.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == 401 || httpErr.StatusCode == 403
	}

	return false
}
