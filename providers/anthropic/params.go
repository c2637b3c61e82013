package anthropic

import (
	"encoding/json"

	"github.com/achieveai/lmgo"
)

// messageRequest is the Messages API request body.
type messageRequest struct {
	Model         string        `json:"model"`
	MaxTokens     int           `json:"max_tokens"`
	System        *string       `json:"system,omitempty"`
	Messages      []wireMessage `json:"messages"`
	Temperature   *float64      `json:"temperature,omitempty"`
	TopP          *float64      `json:"top_p,omitempty"`
	StopSequences []string      `json:"stop_sequences,omitempty"`
	Stream        bool          `json:"stream,omitempty"`
	Thinking      *thinking     `json:"thinking,omitempty"`
	Tools         []wireTool    `json:"tools,omitempty"`
	ToolChoice    interface{}   `json:"tool_choice,omitempty"`
}

// wireMessage is one request message. Content is always the block-array
// form; the API's shorthand string form is never emitted.
type wireMessage struct {
	Role    string      `json:"role"` // "user" or "assistant"
	Content []wireBlock `json:"content"`
}

// wireBlock is one content block in a request message.
type wireBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// tool_use / server_tool_use
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// tool_result and server tool result variants
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// thinking is the extended-thinking request field.
type thinking struct {
	Type         string `json:"type"` // "enabled"
	BudgetTokens int    `json:"budget_tokens"`
}

// wireTool is a tools-array entry. Function tools carry a schema; server
// tools are named by their versioned type and carry none.
type wireTool struct {
	// Function tool fields.
	Name        string                 `json:"name,omitempty"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema,omitempty"`

	// Server tool fields.
	Type string `json:"type,omitempty"`
}

// messageResponse is the non-streaming Messages API response body.
type messageResponse struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"` // "message"
	Role         string          `json:"role"`
	Model        string          `json:"model"`
	Content      []responseBlock `json:"content"`
	StopReason   string          `json:"stop_reason"`
	StopSequence string          `json:"stop_sequence"`
	Usage        responseUsage   `json:"usage"`
}

// responseBlock is one content block in a non-streaming response.
type responseBlock struct {
	Type      string           `json:"type"`
	Text      string           `json:"text"`
	Thinking  string           `json:"thinking"`
	Signature string           `json:"signature"`
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Input     json.RawMessage  `json:"input"`
	ToolUseID string           `json:"tool_use_id"`
	Content   json.RawMessage  `json:"content"`
	Citations []wireCitation   `json:"citations"`
}

type wireCitation struct {
	Type           string `json:"type"`
	URL            string `json:"url"`
	Title          string `json:"title"`
	CitedText      string `json:"cited_text"`
	StartCharIndex *int   `json:"start_char_index"`
	EndCharIndex   *int   `json:"end_char_index"`
	EncryptedIndex string `json:"encrypted_index"`
}

type responseUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// convertTools maps universal function tools and requested server tools into
// the wire tools array.
func convertTools(opts *lmgo.ChatOptions) ([]wireTool, error) {
	if len(opts.Tools) == 0 && len(opts.ServerTools) == 0 {
		return nil, nil
	}

	tools := make([]wireTool, 0, len(opts.Tools)+len(opts.ServerTools))
	for _, t := range opts.Tools {
		tools = append(tools, wireTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	for _, name := range opts.ServerTools {
		wireType, err := lmgo.ServerToolWireType(name)
		if err != nil {
			return nil, err
		}
		tools = append(tools, wireTool{Type: wireType, Name: name})
	}
	return tools, nil
}

// convertToolChoice maps the universal tool choice to the wire form.
func convertToolChoice(tc *lmgo.ToolChoice) interface{} {
	if tc == nil {
		return nil
	}
	switch tc.Mode {
	case lmgo.ToolChoiceModeAuto:
		return map[string]interface{}{"type": "auto"}
	case lmgo.ToolChoiceModeRequired:
		return map[string]interface{}{"type": "any"}
	case lmgo.ToolChoiceModeNone:
		return map[string]interface{}{"type": "none"}
	case lmgo.ToolChoiceModeSpecific:
		if tc.ToolName == nil {
			return nil
		}
		return map[string]interface{}{"type": "tool", "name": *tc.ToolName}
	}
	return nil
}
