package openai

import (
	"encoding/json"
	"fmt"

	"github.com/achieveai/lmgo"
)

// chatCompletionRequest is an OpenAI-compatible chat completion request.
type chatCompletionRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	Stop          []string       `json:"stop,omitempty"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
	Tools         []chatTool     `json:"tools,omitempty"`
	ToolChoice    interface{}    `json:"tool_choice,omitempty"`
	Reasoning     *reasoning     `json:"reasoning,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// reasoning requests extended thinking on gateways that support it.
type reasoning struct {
	Enabled   bool `json:"enabled"`
	MaxTokens *int `json:"max_tokens,omitempty"`
}

// chatMessage is one message in the conversation.
type chatMessage struct {
	Role       string     `json:"role"` // "system", "user", "assistant", "tool"
	Content    *string    `json:"content,omitempty"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID *string    `json:"tool_call_id,omitempty"` // For role:"tool" messages
}

// toolCall is a function call in assistant messages.
type toolCall struct {
	Index    *int         `json:"index,omitempty"` // Streaming only
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"` // "function"
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"` // JSON string
}

// chatTool is a function tool definition.
type chatTool struct {
	Type     string              `json:"type"` // "function"
	Function lmgo.FunctionDetails `json:"function"`
}

// annotation is a citation attached to assistant content.
type annotation struct {
	Type        string       `json:"type"` // "url_citation"
	URLCitation *urlCitation `json:"url_citation,omitempty"`
}

type urlCitation struct {
	URL        string  `json:"url"`
	StartIndex int     `json:"start_index"`
	EndIndex   int     `json:"end_index"`
	Title      *string `json:"title,omitempty"`
	Content    *string `json:"content,omitempty"`
}

// reasoningDetail is one entry of the reasoning_details array produced by
// thinking-capable models.
type reasoningDetail struct {
	Type    string  `json:"type"` // "reasoning.text", "reasoning.summary", "reasoning.encrypted"
	Text    *string `json:"text,omitempty"`
	Summary *string `json:"summary,omitempty"`
	Data    *string `json:"data,omitempty"`
}

// chatCompletionResponse is a non-streaming response.
type chatCompletionResponse struct {
	ID      string    `json:"id"`
	Object  string    `json:"object"` // "chat.completion"
	Model   string    `json:"model"`
	Choices []choice  `json:"choices"`
	Usage   chatUsage `json:"usage"`
}

type choice struct {
	Index        int             `json:"index"`
	Message      responseMessage `json:"message"`
	FinishReason *string         `json:"finish_reason"`
}

type responseMessage struct {
	Role             string            `json:"role"`
	Content          *string           `json:"content"`
	ToolCalls        []toolCall        `json:"tool_calls"`
	Reasoning        *string           `json:"reasoning"`
	ReasoningDetails []reasoningDetail `json:"reasoning_details"`
	Annotations      []annotation      `json:"annotations"`
}

type chatUsage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	PromptTokensDetails *struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
}

// chatCompletionChunk is one streaming chunk.
type chatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"` // "chat.completion.chunk"
	Model   string        `json:"model"`
	Choices []chunkChoice `json:"choices"`
	Usage   *chatUsage    `json:"usage"`
}

type chunkChoice struct {
	Index        int        `json:"index"`
	Delta        chunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// chunkDelta is the incremental update in a chunk.
type chunkDelta struct {
	Role             *string           `json:"role,omitempty"`
	Content          *string           `json:"content,omitempty"`
	ToolCalls        []toolCall        `json:"tool_calls,omitempty"`
	Reasoning        *string           `json:"reasoning,omitempty"`
	ReasoningDetails []reasoningDetail `json:"reasoning_details,omitempty"`
	Annotations      []annotation      `json:"annotations,omitempty"`
}

// mapFinishReason normalizes OpenAI finish reasons to the canonical stop
// reason vocabulary.
func mapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return "end_turn"
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	default:
		return reason
	}
}

// reasoningText extracts usable thinking text from a reasoning_details
// array, skipping encrypted entries.
func reasoningText(details []reasoningDetail) string {
	var out string
	for _, d := range details {
		switch d.Type {
		case "reasoning.text":
			if d.Text != nil {
				out += *d.Text
			}
		case "reasoning.summary":
			if d.Summary != nil {
				out += *d.Summary
			}
		}
	}
	return out
}

// convertToolChoice maps the universal tool choice to the wire form.
func convertToolChoice(tc *lmgo.ToolChoice) (interface{}, error) {
	if tc == nil {
		return nil, nil
	}
	switch tc.Mode {
	case lmgo.ToolChoiceModeAuto:
		return "auto", nil
	case lmgo.ToolChoiceModeRequired:
		return "required", nil
	case lmgo.ToolChoiceModeNone:
		return "none", nil
	case lmgo.ToolChoiceModeSpecific:
		if tc.ToolName == nil {
			return nil, fmt.Errorf("specific tool choice requires tool_name")
		}
		return map[string]interface{}{
			"type":     "function",
			"function": map[string]interface{}{"name": *tc.ToolName},
		}, nil
	}
	return "auto", nil
}

// argumentsString renders canonical JSON arguments as the wire's string
// form.
func argumentsString(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	return string(args)
}
