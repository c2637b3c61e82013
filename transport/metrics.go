package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Usage holds token accounting reported by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
}

// Total returns the number of tokens processed by the request.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// RequestMetrics describes one logical request, including all of its retries.
// Immutable once finalized by the MetricsBuilder.
type RequestMetrics struct {
	RequestID string
	Provider  string
	Model     string

	StartTime time.Time
	EndTime   time.Time

	StatusCode int

	// RetryAttempts counts failed attempts before the terminal outcome:
	// 0 for a first-attempt success, MaxRetries on exhaustion.
	RetryAttempts int

	Usage Usage

	RequestBytes  int64
	ResponseBytes int64

	ErrorMessage string
}

// Duration returns the wall time of the logical request, retries included.
func (m *RequestMetrics) Duration() time.Duration {
	return m.EndTime.Sub(m.StartTime)
}

// Succeeded reports whether the terminal outcome was a success.
func (m *RequestMetrics) Succeeded() bool {
	return m.ErrorMessage == "" && m.StatusCode >= 200 && m.StatusCode < 300
}

// MetricsBuilder accumulates metrics for an in-flight logical request.
// Exactly one RequestMetrics record is emitted per logical call regardless of
// retry count: Finish is idempotent and hands the record to the tracker once.
//
// The executor returns the builder with the response; the consumer attaches
// token usage once the response is decoded and finishes the builder. The
// executor finishes it itself only on dispatch failure.
type MetricsBuilder struct {
	mu      sync.Mutex
	m       RequestMetrics
	tracker *Tracker
	done    bool
}

func newMetricsBuilder(req *Request, tracker *Tracker) *MetricsBuilder {
	return &MetricsBuilder{
		m: RequestMetrics{
			RequestID:    uuid.NewString(),
			Provider:     req.Provider,
			Model:        req.Model,
			StartTime:    time.Now(),
			RequestBytes: int64(len(req.Body)),
		},
		tracker: tracker,
	}
}

func (b *MetricsBuilder) setRetryAttempts(n int) {
	b.mu.Lock()
	b.m.RetryAttempts = n
	b.mu.Unlock()
}

func (b *MetricsBuilder) setStatus(code int) {
	b.mu.Lock()
	b.m.StatusCode = code
	b.mu.Unlock()
}

// AddResponseBytes accounts response payload size as it is consumed.
func (b *MetricsBuilder) AddResponseBytes(n int64) {
	b.mu.Lock()
	b.m.ResponseBytes += n
	b.mu.Unlock()
}

// SetUsage records the token usage reported in the response.
func (b *MetricsBuilder) SetUsage(u Usage) {
	b.mu.Lock()
	b.m.Usage = u
	b.mu.Unlock()
}

// Fail finalizes the builder with an error outcome.
func (b *MetricsBuilder) Fail(err error) *RequestMetrics {
	b.mu.Lock()
	if !b.done && err != nil {
		b.m.ErrorMessage = err.Error()
	}
	b.mu.Unlock()
	return b.Finish()
}

// Finish seals the metrics and records them with the tracker. Subsequent
// calls return the already-finalized record.
func (b *MetricsBuilder) Finish() *RequestMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		m := b.m
		return &m
	}
	b.done = true
	b.m.EndTime = time.Now()
	m := b.m
	if b.tracker != nil {
		b.tracker.Record(&m)
	}
	return &m
}
