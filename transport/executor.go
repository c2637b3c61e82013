package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// RetryPolicy classifies HTTP outcomes and paces retries.
//
// Retryable outcomes are network-level failures and the status codes in
// retryableStatuses. All other non-2xx statuses fail immediately.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	// The default of 3 yields 4 total attempts.
	MaxRetries int

	// BaseDelay is the backoff base: the n-th retry sleeps BaseDelay * 2^(n-1),
	// capped at MaxDelay.
	BaseDelay time.Duration
	MaxDelay  time.Duration

	// RespectRetryAfter uses the Retry-After header as the backoff for
	// 429/503 when present, capped at MaxRetryAfter.
	RespectRetryAfter bool
	MaxRetryAfter     time.Duration
}

// DefaultRetryPolicy returns the standard policy: 3 retries, exponential
// backoff from 1s, Retry-After honored up to 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        3,
		BaseDelay:         time.Second,
		MaxDelay:          30 * time.Second,
		RespectRetryAfter: true,
		MaxRetryAfter:     30 * time.Second,
	}
}

var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// RetryableStatus reports whether an HTTP status code is transient.
func RetryableStatus(code int) bool {
	return retryableStatuses[code]
}

func (p RetryPolicy) delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	max := p.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}

	d := base
	for i := 1; i < retry; i++ {
		if d >= max/2 {
			return max
		}
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

// Executor dispatches provider requests over a shared pooled transport,
// retrying transient failures per its RetryPolicy and recording one
// RequestMetrics per logical call.
type Executor struct {
	client  Doer
	policy  RetryPolicy
	tracker *Tracker
	log     *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient injects the transport. Tests substitute canned or recorded
// responses through this seam.
func WithHTTPClient(d Doer) Option {
	return func(e *Executor) { e.client = d }
}

// WithRetryPolicy overrides the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Executor) { e.policy = p }
}

// WithTracker attaches a performance tracker that observes every finalized
// RequestMetrics.
func WithTracker(t *Tracker) Option {
	return func(e *Executor) { e.tracker = t }
}

// WithLogger overrides the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// defaultClient is shared across executors so connections pool across many
// logical requests instead of being recreated per call. DisableCompression
// keeps SSE bodies readable as they arrive.
var defaultClient = &http.Client{
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 2 * time.Minute,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
	},
}

// NewExecutor builds an executor. Without options it uses the shared pooled
// transport, the default retry policy, and slog.Default().
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		client: defaultClient,
		policy: DefaultRetryPolicy(),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tracker returns the executor's tracker, if one is attached.
func (e *Executor) Tracker() *Tracker {
	return e.tracker
}

// ExecuteOnce dispatches the request and returns the full response body
// along with the in-flight metrics builder. On error the builder (when
// non-nil) is already failed and recorded. On success the caller may attach
// token usage parsed from the body and must call Finish; Finish is
// idempotent, so callers that do not care about usage can call it
// immediately.
func (e *Executor) ExecuteOnce(ctx context.Context, req *Request) ([]byte, *MetricsBuilder, error) {
	resp, b, err := e.execute(ctx, req)
	if err != nil {
		if b != nil {
			b.Fail(err)
		}
		return nil, b, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("%w: reading response body: %v", ErrNetwork, err)
		b.Fail(err)
		return nil, b, err
	}

	b.AddResponseBytes(int64(len(body)))
	return body, b, nil
}

// ExecuteStreaming dispatches the request and returns the live response body
// for SSE consumption along with the in-flight metrics builder. The consumer
// must close the body and finish the builder when the stream ends.
func (e *Executor) ExecuteStreaming(ctx context.Context, req *Request) (io.ReadCloser, *MetricsBuilder, error) {
	resp, b, err := e.execute(ctx, req)
	if err != nil {
		if b != nil {
			b.Fail(err)
		}
		return nil, nil, err
	}
	return &countingReadCloser{rc: resp.Body, b: b}, b, nil
}

// execute runs the retry loop. On success the response body is still open.
// Validation failures return before any attempt and emit no metrics record.
func (e *Executor) execute(ctx context.Context, req *Request) (*http.Response, *MetricsBuilder, error) {
	if req == nil || req.URL == "" || len(req.Body) == 0 || req.Provider == "" {
		return nil, nil, ErrMissingRequest
	}

	b := newMetricsBuilder(req, e.tracker)

	var lastErr error
	var retryAfter time.Duration
	attempts := e.policy.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			b.setRetryAttempts(attempt)
			d := e.policy.delay(attempt)
			if e.policy.RespectRetryAfter && retryAfter > 0 {
				d = retryAfter
				if e.policy.MaxRetryAfter > 0 && d > e.policy.MaxRetryAfter {
					d = e.policy.MaxRetryAfter
				}
			}
			e.log.Warn("retrying provider request",
				"provider", req.Provider,
				"model", req.Model,
				"attempt", attempt,
				"delay", d,
				"error", lastErr)
			if err := sleep(ctx, d); err != nil {
				return nil, b, err
			}
		}
		retryAfter = 0

		hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
		if err != nil {
			return nil, b, err
		}
		if req.Header != nil {
			hreq.Header = req.Header.Clone()
		}

		resp, err := e.client.Do(hreq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, b, ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %v", ErrNetwork, err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			b.setStatus(resp.StatusCode)
			return resp, b, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()

		herr := &HTTPError{
			Provider:   req.Provider,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, resp.Status),
			Retryable:  RetryableStatus(resp.StatusCode),
			Attempts:   attempt + 1,
		}
		b.setStatus(resp.StatusCode)
		if !herr.Retryable {
			return nil, b, herr
		}
		if d, ok := parseRetryAfter(resp, time.Now()); ok {
			retryAfter = d
		}
		lastErr = herr
	}

	if herr, ok := lastErr.(*HTTPError); ok {
		herr.Attempts = attempts
	}
	return nil, b, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}

// errorMessage extracts a human-readable message from a provider error body.
// Both supported dialects use an {"error": {"message": ...}} envelope; bodies
// that don't parse fall back to trimmed raw text.
func errorMessage(body []byte, status string) string {
	if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		return msg
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512]
	}
	if text == "" {
		return status
	}
	return text
}

func parseRetryAfter(resp *http.Response, now time.Time) (time.Duration, bool) {
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// countingReadCloser accounts streamed response bytes into the metrics
// builder as the consumer reads them.
type countingReadCloser struct {
	rc io.ReadCloser
	b  *MetricsBuilder
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.rc.Read(p)
	if n > 0 {
		c.b.AddResponseBytes(int64(n))
	}
	return n, err
}

func (c *countingReadCloser) Close() error {
	return c.rc.Close()
}
