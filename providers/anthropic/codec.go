// Package anthropic implements the Anthropic Messages API wire dialect:
// JSON request encoding, non-streaming response decoding, and the native
// SSE event stream.
package anthropic

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/achieveai/lmgo"
	"github.com/achieveai/lmgo/sse"
	"github.com/achieveai/lmgo/transport"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	messagesPath   = "/v1/messages"
	apiVersion     = "2023-06-01"

	defaultMaxTokens      = 4096
	defaultThinkingBudget = 4096
)

// Codec speaks the Anthropic Messages API dialect. Stateless and safe for
// concurrent use.
type Codec struct {
	apiKey  string
	baseURL string
}

// Option configures a Codec.
type Option func(*Codec)

// WithBaseURL overrides the API base URL.
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
	return lmgo.ProviderAnthropic
}

// Encode implements lmgo.Codec.
func (c *Codec) Encode(msgs []lmgo.Message, opts *lmgo.ChatOptions, streaming bool) (*transport.Request, error) {
	system, rest := hoistSystem(msgs, opts)

	wireMsgs, err := encodeMessages(rest)
	if err != nil {
		return nil, err
	}
	if len(wireMsgs) == 0 {
		return nil, lmgo.ErrEmptyConversation
	}

	req := &messageRequest{
		Model:     opts.Model,
		MaxTokens: defaultMaxTokens,
		System:    system,
		Messages:  wireMsgs,
		Stream:    streaming,
	}
	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	}
	req.Temperature = opts.Temperature
	req.TopP = opts.TopP
	req.StopSequences = opts.Stop

	if opts.ThinkingEnabled != nil && *opts.ThinkingEnabled {
		budget := defaultThinkingBudget
		if opts.ThinkingBudget != nil {
			budget = *opts.ThinkingBudget
		}
		req.Thinking = &thinking{Type: "enabled", BudgetTokens: budget}
	}

	tools, err := convertTools(opts)
	if err != nil {
		return nil, err
	}
	req.Tools = tools
	req.ToolChoice = convertToolChoice(opts.ToolChoice)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshaling request: %w", err)
	}

	if opts.EnableCaching {
		body, err = markCacheBoundary(body, req)
		if err != nil {
			return nil, err
		}
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("X-Api-Key", c.apiKey)
	header.Set("Anthropic-Version", apiVersion)
	if streaming {
		header.Set("Accept", "text/event-stream")
	}

	return &transport.Request{
		Provider: string(lmgo.ProviderAnthropic),
		Model:    opts.Model,
		URL:      c.baseURL + messagesPath,
		Header:   header,
		Body:     body,
	}, nil
}

// Stream implements lmgo.Codec. The Messages API streams in the event shape
// the demultiplexer consumes natively.
func (c *Codec) Stream(r io.Reader) lmgo.EventSource {
	return sse.NewStream(r)
}

// markCacheBoundary injects a cache_control breakpoint on the last content
// block of the last message, making the whole prompt prefix cacheable.
func markCacheBoundary(body []byte, req *messageRequest) ([]byte, error) {
	lastMsg := len(req.Messages) - 1
	lastBlock := len(req.Messages[lastMsg].Content) - 1
	if lastBlock < 0 {
		return body, nil
	}
	path := fmt.Sprintf("messages.%d.content.%d.cache_control", lastMsg, lastBlock)
	out, err := sjson.SetBytes(body, path, map[string]string{"type": "ephemeral"})
	if err != nil {
		return nil, fmt.Errorf("anthropic: marking cache boundary: %w", err)
	}
	return out, nil
}

// hoistSystem resolves the system prompt: an explicit option wins over a
// leading system-role message, and system-role messages never reach the
// messages array.
func hoistSystem(msgs []lmgo.Message, opts *lmgo.ChatOptions) (*string, []lmgo.Message) {
	var system *string
	rest := make([]lmgo.Message, 0, len(msgs))

	for _, m := range msgs {
		if t, ok := m.(lmgo.TextMessage); ok && t.Role == lmgo.RoleSystem {
			if system == nil {
				s := t.Text
				system = &s
			}
			continue
		}
		rest = append(rest, m)
	}

	if opts.System != nil {
		system = opts.System
	}
	return system, rest
}

// encodeMessages converts canonical messages into the wire messages array,
// merging adjacent same-role content into single wire messages. Tool results
// ride in user-role messages; a result referencing an invocation the
// conversation never made fails encoding.
func encodeMessages(msgs []lmgo.Message) ([]wireMessage, error) {
	var out []wireMessage
	seenCalls := make(map[string]bool)

	appendBlocks := func(role string, blocks ...wireBlock) {
		if len(blocks) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, blocks...)
			return
		}
		out = append(out, wireMessage{Role: role, Content: blocks})
	}

	encodeResult := func(r *lmgo.ToolCallResultMessage) (wireBlock, string, error) {
		if !seenCalls[r.ID] {
			return wireBlock{}, "", &lmgo.ValidationError{
				Field:  "messages",
				Value:  r.ID,
				Reason: "tool result references an invocation with no preceding tool call",
				Err:    lmgo.ErrInvalidRequest,
			}
		}
		if r.Target == lmgo.ExecutionServer {
			blockType, err := lmgo.ServerToolResultBlock(r.ToolName)
			if err != nil {
				return wireBlock{}, "", err
			}
			// Server tool results are assistant content on replay.
			return wireBlock{Type: blockType, ToolUseID: r.ID, Content: r.Result}, "assistant", nil
		}
		return wireBlock{
			Type:      "tool_result",
			ToolUseID: r.ID,
			Content:   resultContent(r),
			IsError:   r.IsError,
		}, "user", nil
	}

	for _, m := range msgs {
		switch v := m.(type) {
		case lmgo.TextMessage:
			role := "user"
			if v.Role == lmgo.RoleAssistant {
				role = "assistant"
			}
			if v.Thinking {
				appendBlocks("assistant", wireBlock{Type: "thinking", Thinking: v.Text, Signature: v.Signature})
				continue
			}
			appendBlocks(role, wireBlock{Type: "text", Text: v.Text})

		case lmgo.TextWithCitationsMessage:
			role := "user"
			if v.Role == lmgo.RoleAssistant {
				role = "assistant"
			}
			appendBlocks(role, wireBlock{Type: "text", Text: v.Text})

		case lmgo.ToolCallMessage:
			seenCalls[v.ID] = true
			appendBlocks("assistant", toolUseBlock(&v))

		case lmgo.ToolCallResultMessage:
			block, role, err := encodeResult(&v)
			if err != nil {
				return nil, err
			}
			appendBlocks(role, block)

		case lmgo.ToolsCallAggregateMessage:
			if v.Call == nil {
				continue
			}
			seenCalls[v.Call.ID] = true
			appendBlocks("assistant", toolUseBlock(v.Call))
			for _, r := range v.Results {
				// The wire correlates by the call's id even when the provider
				// echoed a different id on the result.
				rr := *r
				rr.ID = v.Call.ID
				block, role, err := encodeResult(&rr)
				if err != nil {
					return nil, err
				}
				appendBlocks(role, block)
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
	return out, nil
}

func toolUseBlock(call *lmgo.ToolCallMessage) wireBlock {
	blockType := "tool_use"
	if call.Target == lmgo.ExecutionServer {
		blockType = "server_tool_use"
	}
	input := call.Arguments
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	return wireBlock{Type: blockType, ID: call.ID, Name: call.Name, Input: input}
}

// resultContent renders a tool result payload. The wire field takes a string
// or a block array, so JSON strings pass through and any other JSON value is
// wrapped in a text block carrying its serialized form.
func resultContent(r *lmgo.ToolCallResultMessage) json.RawMessage {
	raw := r.Result
	if len(raw) == 0 {
		if r.ErrorCode != "" {
			quoted, _ := json.Marshal(r.ErrorCode)
			return quoted
		}
		return json.RawMessage(`""`)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return raw
	}

	wrapped, err := json.Marshal([]map[string]string{{"type": "text", "text": string(raw)}})
	if err != nil {
		return json.RawMessage(`""`)
	}
	return wrapped
}
