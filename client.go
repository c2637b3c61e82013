package lmgo

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/achieveai/lmgo/sse"
	"github.com/achieveai/lmgo/transport"
)

// Client sends conversations to a model and returns canonical messages.
type Client interface {
	// Send performs a non-streaming completion. The returned slice contains
	// finalized messages only, ending with the turn's UsageMessage.
	Send(ctx context.Context, msgs []Message, opts *ChatOptions) ([]Message, error)

	// SendStreaming performs a streaming completion. The returned channel
	// carries update and finalized messages as they arrive and is closed
	// after the terminal UsageMessage or an error item. Cancelling ctx
	// abandons the stream; blocks still open at that point are discarded.
	SendStreaming(ctx context.Context, msgs []Message, opts *ChatOptions) (<-chan StreamItem, error)
}

// StreamItem is one element of a streaming response: a message or a
// terminal error, never both.
type StreamItem struct {
	Message Message
	Err     error
}

// ClientOption configures a ChatClient.
type ClientOption func(*ChatClient)

// WithExecutor overrides the HTTP executor.
func WithExecutor(e *transport.Executor) ClientOption {
	return func(c *ChatClient) { c.exec = e }
}

// WithClientLogger overrides the client's logger.
func WithClientLogger(l *slog.Logger) ClientOption {
	return func(c *ChatClient) { c.log = l }
}

// WithWarningHandler registers a callback for partial-content warnings.
// Warnings report degraded blocks on otherwise successful turns and never
// fail the call; the default handler logs them.
func WithWarningHandler(fn func(error)) ClientOption {
	return func(c *ChatClient) { c.warnFn = fn }
}

// ChatClient is the standard Client implementation: one wire codec bound to
// a resilient executor. Safe for concurrent use.
type ChatClient struct {
	codec  Codec
	exec   *transport.Executor
	corr   *Correlator
	log    *slog.Logger
	warnFn func(error)
}

// NewChatClient builds a client around codec.
func NewChatClient(codec Codec, opts ...ClientOption) *ChatClient {
	c := &ChatClient{
		codec: codec,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		c.exec = transport.NewExecutor()
	}
	c.corr = NewCorrelator(c.log)
	return c
}

// Tracker exposes the executor's performance tracker.
func (c *ChatClient) Tracker() *transport.Tracker {
	return c.exec.Tracker()
}

func (c *ChatClient) prepare(msgs []Message, opts *ChatOptions) ([]Message, error) {
	if len(msgs) == 0 {
		return nil, ErrEmptyConversation
	}
	if opts == nil {
		return nil, fmt.Errorf("%w: options are required", ErrInvalidRequest)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return c.corr.NormalizeHistory(msgs), nil
}

func (c *ChatClient) warn(err error) {
	if c.warnFn != nil {
		c.warnFn(err)
		return
	}
	c.log.Warn("partial content in response", "provider", c.codec.Provider(), "warning", err)
}

// correlateTurn bundles the tool calls of a completed turn with the results
// the same turn carried, reporting orphan results through the warning
// handler. Turns without tool results pass through untouched, so plain
// tool-use turns keep their bare ToolCallMessage shape for the application's
// execution loop.
func (c *ChatClient) correlateTurn(msgs []Message) []Message {
	if !hasToolResult(msgs) {
		return msgs
	}
	out, errs := c.corr.Correlate(msgs)
	for _, err := range errs {
		c.warn(err)
	}
	return out
}

func hasToolResult(msgs []Message) bool {
	for _, m := range msgs {
		if _, ok := m.(ToolCallResultMessage); ok {
			return true
		}
	}
	return false
}

// Send implements Client.
func (c *ChatClient) Send(ctx context.Context, msgs []Message, opts *ChatOptions) ([]Message, error) {
	history, err := c.prepare(msgs, opts)
	if err != nil {
		return nil, err
	}

	req, err := c.codec.Encode(history, opts, false)
	if err != nil {
		return nil, err
	}

	body, mb, err := c.exec.ExecuteOnce(ctx, req)
	if err != nil {
		return nil, err
	}

	out, warnings, err := c.codec.DecodeResponse(body)
	if err != nil {
		mb.Fail(err)
		return nil, err
	}
	for _, w := range warnings {
		c.warn(w)
	}
	out = c.correlateTurn(out)

	if u, ok := lastUsage(out); ok {
		mb.SetUsage(transport.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			CachedTokens:     u.CachedTokens,
		})
	}
	mb.Finish()
	return out, nil
}

// SendStreaming implements Client.
func (c *ChatClient) SendStreaming(ctx context.Context, msgs []Message, opts *ChatOptions) (<-chan StreamItem, error) {
	history, err := c.prepare(msgs, opts)
	if err != nil {
		return nil, err
	}

	req, err := c.codec.Encode(history, opts, true)
	if err != nil {
		return nil, err
	}

	body, mb, err := c.exec.ExecuteStreaming(ctx, req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamItem)
	go c.pump(ctx, body, mb, ch)
	return ch, nil
}

// pump drives the event source into the channel until the stream ends, the
// context is cancelled, or the stream errors. Update messages flow through
// live; finalized messages are held until the turn completes so tool results
// can be correlated with their calls, and are never delivered for a turn
// that errors or is cancelled mid-stream.
func (c *ChatClient) pump(ctx context.Context, body io.ReadCloser, mb *transport.MetricsBuilder, ch chan<- StreamItem) {
	defer close(ch)
	defer body.Close()

	asm := NewAssembler(string(c.codec.Provider()),
		WithAssemblerLogger(c.log),
		WithWarningFunc(c.warn))
	src := c.codec.Stream(body)

	send := func(item StreamItem) bool {
		select {
		case ch <- item:
			return true
		case <-ctx.Done():
			mb.Fail(ctx.Err())
			return false
		}
	}

	var finals []Message
	for {
		ev, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			mb.Fail(err)
			send(StreamItem{Err: err})
			return
		}

		for _, m := range asm.Feed(ev) {
			if IsUpdate(m) {
				if !send(StreamItem{Message: m}) {
					return
				}
				continue
			}
			finals = append(finals, m)
		}

		select {
		case <-ctx.Done():
			mb.Fail(ctx.Err())
			return
		default:
		}
	}

	if !asm.Finished() {
		err := fmt.Errorf("%s stream ended before completion: %w", c.codec.Provider(), sse.ErrTruncated)
		mb.Fail(err)
		send(StreamItem{Err: err})
		return
	}

	for _, m := range c.correlateTurn(finals) {
		if !send(StreamItem{Message: m}) {
			return
		}
	}

	u := asm.UsageMessage()
	mb.SetUsage(transport.Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		CachedTokens:     u.CachedTokens,
	})
	mb.Finish()
}

// lastUsage returns the trailing UsageMessage of a decoded turn.
func lastUsage(msgs []Message) (UsageMessage, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if u, ok := msgs[i].(UsageMessage); ok {
			return u, true
		}
	}
	return UsageMessage{}, false
}
