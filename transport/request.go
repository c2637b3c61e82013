// Package transport owns HTTP execution for provider requests: a pooled
// transport shared across logical calls, a retry/backoff loop for transient
// failures, and per-request performance metrics.
package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Request is a fully shaped provider HTTP request. Header shaping (auth,
// content negotiation) happens upstream in the wire codec; the executor only
// dispatches what it is given.
type Request struct {
	// Provider names the provider dialect, used to key metrics.
	Provider string

	// Model is the model identifier, recorded in metrics.
	Model string

	// URL is the absolute endpoint URL.
	URL string

	// Header carries all request headers, credentials included.
	Header http.Header

	// Body is the encoded JSON request payload.
	Body []byte
}

// Doer is the transport seam. Production uses a pooled *http.Client; tests
// substitute canned or recorded responses without the executor knowing.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrNetwork marks network-level transport failures (dial, TLS, reset).
// Wrapped errors carry the underlying cause.
var ErrNetwork = errors.New("transport: network failure")

// ErrMissingRequest indicates an unusable Request (no URL or empty body).
// Never dispatched, never counted as an attempt.
var ErrMissingRequest = errors.New("transport: incomplete request")

// HTTPError reports a non-2xx provider response. Retryable errors are
// contained inside the executor; one surfacing to the caller means the retry
// budget was exhausted (Attempts carries the total attempt count).
type HTTPError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
	Attempts   int
}

func (e *HTTPError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("provider '%s' error (status %d, %d attempts): %s", e.Provider, e.StatusCode, e.Attempts, e.Message)
	}
	return fmt.Sprintf("provider '%s' error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}
