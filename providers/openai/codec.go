// Package openai implements the OpenAI-compatible chat completion dialect
// used by OpenAI itself and by gateways such as OpenRouter. Streaming chunks
// are translated into the shared typed event model so block assembly is
// identical across dialects.
package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/achieveai/lmgo"
	"github.com/achieveai/lmgo/transport"
)

const (
	defaultBaseURL      = "https://api.openai.com/v1"
	chatCompletionsPath = "/chat/completions"
)

// Codec speaks the OpenAI-compatible chat completion dialect. Stateless and
// safe for concurrent use.
type Codec struct {
	apiKey  string
	baseURL string
}

// Option configures a Codec.
type Option func(*Codec)

// WithBaseURL points the codec at a compatible gateway, e.g.
// https://openrouter.ai/api/v1.
func WithBaseURL(u string) Option {
	return func(c *Codec) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// New creates a Codec with the given API key.
func New(apiKey string, opts ...Option) (*Codec, error) {
	if apiKey == "" {
		return nil, lmgo.ErrInvalidAPIKey
	}
	c := &Codec{apiKey: apiKey, baseURL: defaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Provider implements lmgo.Codec.
func (c *Codec) Provider() lmgo.ProviderID {
	return lmgo.ProviderOpenAI
}

// Encode implements lmgo.Codec.
func (c *Codec) Encode(msgs []lmgo.Message, opts *lmgo.ChatOptions, streaming bool) (*transport.Request, error) {
	if len(opts.ServerTools) > 0 {
		return nil, &lmgo.ValidationError{
			Field:  "server_tools",
			Reason: "server tools are not supported by the OpenAI dialect",
			Err:    lmgo.ErrInvalidRequest,
		}
	}

	wireMsgs, err := encodeMessages(msgs, opts)
	if err != nil {
		return nil, err
	}
	if len(wireMsgs) == 0 {
		return nil, lmgo.ErrEmptyConversation
	}

	req := &chatCompletionRequest{
		Model:       opts.Model,
		Messages:    wireMsgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stop:        opts.Stop,
		Stream:      streaming,
	}
	if streaming {
		req.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	if opts.ThinkingEnabled != nil && *opts.ThinkingEnabled {
		req.Reasoning = &reasoning{Enabled: true, MaxTokens: opts.ThinkingBudget}
	}

	for _, t := range opts.Tools {
		req.Tools = append(req.Tools, chatTool{Type: "function", Function: t.Function})
	}
	choice, err := convertToolChoice(opts.ToolChoice)
	if err != nil {
		return nil, &lmgo.ValidationError{Field: "tool_choice", Reason: err.Error(), Err: lmgo.ErrInvalidRequest}
	}
	req.ToolChoice = choice

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("openai: marshaling request: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Authorization", "Bearer "+c.apiKey)
	if streaming {
		header.Set("Accept", "text/event-stream")
	}

	return &transport.Request{
		Provider: string(lmgo.ProviderOpenAI),
		Model:    opts.Model,
		URL:      c.baseURL + chatCompletionsPath,
		Header:   header,
		Body:     body,
	}, nil
}

// encodeMessages converts canonical messages into the wire messages array.
// Adjacent same-role text merges into one wire message; tool results each
// get their own role:"tool" message because the wire correlates them by
// tool_call_id. The system prompt leads the array.
func encodeMessages(msgs []lmgo.Message, opts *lmgo.ChatOptions) ([]chatMessage, error) {
	var out []chatMessage
	seenCalls := make(map[string]bool)

	system := opts.System
	appendText := func(role string, text string) {
		if n := len(out); n > 0 && out[n-1].Role == role && out[n-1].Content != nil && len(out[n-1].ToolCalls) == 0 {
			merged := *out[n-1].Content + "\n\n" + text
			out[n-1].Content = &merged
			return
		}
		t := text
		out = append(out, chatMessage{Role: role, Content: &t})
	}

	appendCall := func(call *lmgo.ToolCallMessage) {
		seenCalls[call.ID] = true
		tc := toolCall{
			ID:       call.ID,
			Type:     "function",
			Function: functionCall{Name: call.Name, Arguments: argumentsString(call.Arguments)},
		}
		if n := len(out); n > 0 && out[n-1].Role == "assistant" && len(out[n-1].ToolCalls) > 0 {
			out[n-1].ToolCalls = append(out[n-1].ToolCalls, tc)
			return
		}
		out = append(out, chatMessage{Role: "assistant", ToolCalls: []toolCall{tc}})
	}

	appendResult := func(r *lmgo.ToolCallResultMessage) error {
		if !seenCalls[r.ID] {
			return &lmgo.ValidationError{
				Field:  "messages",
				Value:  r.ID,
				Reason: "tool result references an invocation with no preceding tool call",
				Err:    lmgo.ErrInvalidRequest,
			}
		}
		id := r.ID
		content := string(r.Result)
		if content == "" {
			content = r.ErrorCode
		}
		out = append(out, chatMessage{Role: "tool", Content: &content, ToolCallID: &id})
		return nil
	}

	for _, m := range msgs {
		switch v := m.(type) {
		case lmgo.TextMessage:
			if v.Role == lmgo.RoleSystem {
				if system == nil {
					s := v.Text
					system = &s
				}
				continue
			}
			if v.Thinking {
				// Thinking is not replayable on this wire.
				continue
			}
			role := "user"
			if v.Role == lmgo.RoleAssistant {
				role = "assistant"
			}
			appendText(role, v.Text)

		case lmgo.TextWithCitationsMessage:
			role := "user"
			if v.Role == lmgo.RoleAssistant {
				role = "assistant"
			}
			appendText(role, v.Text)

		case lmgo.ToolCallMessage:
			appendCall(&v)

		case lmgo.ToolCallResultMessage:
			if err := appendResult(&v); err != nil {
				return nil, err
			}

		case lmgo.ToolsCallAggregateMessage:
			if v.Call == nil {
				continue
			}
			appendCall(v.Call)
			for _, r := range v.Results {
				// The wire correlates by the call's id even when the provider
				// echoed a different id on the result.
				rr := *r
				rr.ID = v.Call.ID
				if err := appendResult(&rr); err != nil {
					return nil, err
				}
			}

		case lmgo.UsageMessage, lmgo.TextUpdateMessage, lmgo.ToolCallUpdateMessage:
			// Never encoded.

		default:
			return nil, &lmgo.ValidationError{
				Field:  "messages",
				Reason: fmt.Sprintf("unsupported message type %T", m),
				Err:    lmgo.ErrInvalidRequest,
			}
		}
	}

	if system != nil {
		out = append([]chatMessage{{Role: "system", Content: system}}, out...)
	}
	return out, nil
}
