// Package anthropicsdk is an lmgo.Client backed by the official Anthropic
// Go SDK. It trades the hand-rolled wire codec for the SDK's transport,
// which is useful when SDK-level features (automatic retries, request
// middleware) are wanted; responses still normalize through the shared
// block finalization.
package anthropicsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/achieveai/lmgo"
	"github.com/achieveai/lmgo/sse"
)

const defaultMaxTokens = 4096

// Client implements lmgo.Client over the Anthropic SDK.
type Client struct {
	client *anthropic.Client
	corr   *lmgo.Correlator
	log    *slog.Logger
	warnFn func(error)
}

// Option configures a Client.
type Option func(*Client, *[]option.RequestOption)

// WithLogger overrides the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client, _ *[]option.RequestOption) { c.log = l }
}

// WithWarningHandler registers a callback for partial-content warnings.
func WithWarningHandler(fn func(error)) Option {
	return func(c *Client, _ *[]option.RequestOption) { c.warnFn = fn }
}

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(_ *Client, ro *[]option.RequestOption) {
		*ro = append(*ro, option.WithBaseURL(u))
	}
}

// New creates a Client with the given API key.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, lmgo.ErrInvalidAPIKey
	}

	c := &Client{log: slog.Default()}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	for _, opt := range opts {
		opt(c, &reqOpts)
	}

	client := anthropic.NewClient(reqOpts...)
	c.client = &client
	c.corr = lmgo.NewCorrelator(c.log)
	return c, nil
}

// SupportsModel returns true for Anthropic model names.
func (c *Client) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

func (c *Client) warn(err error) {
	if c.warnFn != nil {
		c.warnFn(err)
		return
	}
	c.log.Warn("partial content in response", "provider", "anthropic-sdk", "warning", err)
}

func (c *Client) prepare(msgs []lmgo.Message, opts *lmgo.ChatOptions) error {
	if len(msgs) == 0 {
		return lmgo.ErrEmptyConversation
	}
	if opts == nil {
		return fmt.Errorf("%w: options are required", lmgo.ErrInvalidRequest)
	}
	return opts.Validate()
}

// Send implements lmgo.Client.
func (c *Client) Send(ctx context.Context, msgs []lmgo.Message, opts *lmgo.ChatOptions) ([]lmgo.Message, error) {
	if err := c.prepare(msgs, opts); err != nil {
		return nil, err
	}

	params, err := buildMessageParams(msgs, opts)
	if err != nil {
		return nil, err
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic API call failed: %w", err)
	}

	out, warnings := convertMessage(message)
	for _, w := range warnings {
		c.warn(w)
	}
	return c.correlateTurn(out), nil
}

// correlateTurn bundles the tool calls of a completed turn with the results
// the same turn carried. Turns without tool results pass through untouched.
func (c *Client) correlateTurn(msgs []lmgo.Message) []lmgo.Message {
	hasResult := false
	for _, m := range msgs {
		if _, ok := m.(lmgo.ToolCallResultMessage); ok {
			hasResult = true
			break
		}
	}
	if !hasResult {
		return msgs
	}
	out, errs := c.corr.Correlate(msgs)
	for _, err := range errs {
		c.warn(err)
	}
	return out
}

// convertMessage renders an SDK message through the shared block
// finalization, ending with the turn's usage.
func convertMessage(message *anthropic.Message) ([]lmgo.Message, []error) {
	var out []lmgo.Message
	var warnings []error

	for i, content := range message.Content {
		block := &lmgo.ContentBlock{}
		block.Open(i, blockStartFromUnion(&content))
		block.Close()

		msg, warn := block.Finalize()
		if warn != nil {
			warnings = append(warnings, warn)
		}
		if msg != nil {
			out = append(out, msg)
		}
	}

	out = append(out, lmgo.UsageMessage{
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		CachedTokens:     int(message.Usage.CacheReadInputTokens),
	})
	return out, warnings
}

// blockStartFromUnion maps an SDK content block onto the event-stream shape
// consumed by block assembly.
func blockStartFromUnion(content *anthropic.ContentBlockUnion) *sse.BlockStart {
	start := &sse.BlockStart{
		Kind:      content.Type,
		ToolID:    content.ID,
		ToolName:  content.Name,
		Text:      content.Text,
		Thinking:  content.Thinking,
		Signature: content.Signature,
		Input:     content.Input,
	}
	if lmgo.IsServerToolResultBlock(content.Type) {
		start.ToolUseID = content.ToolUseID
		start.Content = resultPayload(content)
	}
	for _, cite := range content.Citations {
		wc := sse.Citation{
			Type:           cite.Type,
			URL:            cite.URL,
			Title:          cite.Title,
			CitedText:      cite.CitedText,
			EncryptedIndex: cite.EncryptedIndex,
		}
		if cite.Type == "char_location" {
			startIdx := int(cite.StartCharIndex)
			endIdx := int(cite.EndCharIndex)
			wc.StartCharIndex = &startIdx
			wc.EndCharIndex = &endIdx
		}
		start.Citations = append(start.Citations, wc)
	}
	return start
}

// resultPayload rebuilds a server tool result's content in the documented
// wire shape: a result-block array on success, an error object otherwise.
// The SDK's RawJSON would carry inflated union internals; this matches what
// the wire codec stores for the same block.
func resultPayload(content *anthropic.ContentBlockUnion) json.RawMessage {
	var payload interface{}
	if content.Content.ErrorCode != "" {
		payload = map[string]interface{}{
			"type":       "web_search_tool_result_error",
			"error_code": string(content.Content.ErrorCode),
		}
	} else {
		results := make([]map[string]interface{}, 0, len(content.Content.OfWebSearchResultBlockArray))
		for _, source := range content.Content.OfWebSearchResultBlockArray {
			result := map[string]interface{}{
				"type":  "web_search_result",
				"url":   source.URL,
				"title": source.Title,
			}
			if source.PageAge != "" {
				result["page_age"] = source.PageAge
			}
			if source.EncryptedContent != "" {
				result["encrypted_content"] = source.EncryptedContent
			}
			results = append(results, result)
		}
		payload = results
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return raw
}
