package lmgo

import "encoding/json"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleTool is the role of tool-result messages. Dialects that have no
	// dedicated tool role fold these into user-role wire messages.
	RoleTool Role = "tool"
)

// ExecutionTarget indicates where a tool invocation is executed.
type ExecutionTarget string

const (
	// ExecutionLocal marks function tools executed by the calling application.
	ExecutionLocal ExecutionTarget = "local"

	// ExecutionServer marks built-in tools executed by the provider itself
	// (web search, code execution, fetch).
	ExecutionServer ExecutionTarget = "server"
)

// Message is the provider-agnostic representation of one semantic unit of a
// conversation turn. It is a closed sum type: the concrete variants below are
// the only implementations.
//
// Terminal variants (TextMessage, TextWithCitationsMessage, ToolCallMessage,
// ToolCallResultMessage, ToolsCallAggregateMessage, UsageMessage) are owned by
// the caller once returned. Update variants (TextUpdateMessage,
// ToolCallUpdateMessage) are streaming previews and never appear in
// non-streaming results.
type Message interface {
	message()
}

// TextMessage is a finalized text or thinking block.
type TextMessage struct {
	Role Role
	Text string

	// Thinking marks extended-reasoning output, kept distinct from
	// user-visible text.
	Thinking bool

	// Signature carries the provider's thinking-verification signature, when
	// one was streamed. Opaque; replayed verbatim on subsequent requests.
	Signature string
}

// TextUpdateMessage is a streaming-only, non-terminal text fragment.
type TextUpdateMessage struct {
	Delta    string
	Thinking bool
}

// ToolCallMessage is a finalized tool invocation emitted by the model.
type ToolCallMessage struct {
	ID   string
	Name string

	// Arguments is the raw JSON arguments object. Always a valid JSON object;
	// an empty or unparseable wire buffer finalizes as "{}".
	Arguments json.RawMessage

	Target ExecutionTarget
}

// ToolCallUpdateMessage is a streaming-only preview of a tool invocation
// whose arguments are still arriving.
type ToolCallUpdateMessage struct {
	ID             string
	Name           string
	ArgumentsDelta string
	Target         ExecutionTarget
}

// ToolCallResultMessage carries the outcome of a tool invocation back into
// the conversation, correlated to its ToolCallMessage by ID.
type ToolCallResultMessage struct {
	ID       string
	ToolName string

	// Result is the raw JSON (or plain text) result payload. Empty when
	// IsError is set and only ErrorCode is known.
	Result json.RawMessage

	ErrorCode string
	IsError   bool
	Target    ExecutionTarget
}

// ToolsCallAggregateMessage bundles a tool invocation with its results for
// history replay, so a prior turn can be re-encoded as a single wire unit.
type ToolsCallAggregateMessage struct {
	Call    *ToolCallMessage
	Results []*ToolCallResultMessage
}

// TextWithCitationsMessage is a finalized text block carrying citation
// attachments (web search grounding, document references).
type TextWithCitationsMessage struct {
	Role      Role
	Text      string
	Citations []Citation
}

// UsageMessage reports token accounting for the turn. Exactly one is emitted
// per turn, always last.
type UsageMessage struct {
	PromptTokens     int
	CompletionTokens int
	CachedTokens     int
}

func (TextMessage) message()               {}
func (TextUpdateMessage) message()         {}
func (ToolCallMessage) message()           {}
func (ToolCallUpdateMessage) message()     {}
func (ToolCallResultMessage) message()     {}
func (ToolsCallAggregateMessage) message() {}
func (TextWithCitationsMessage) message()  {}
func (UsageMessage) message()              {}

// MessageRole returns the conversation role a message occupies on the wire.
// Tool invocations are assistant output; tool results ride on the tool role
// (folded into user messages by dialects without one). Usage and update
// messages have no wire role and report RoleAssistant.
func MessageRole(m Message) Role {
	switch v := m.(type) {
	case TextMessage:
		return v.Role
	case TextWithCitationsMessage:
		return v.Role
	case ToolCallMessage, ToolCallUpdateMessage:
		return RoleAssistant
	case ToolCallResultMessage:
		return RoleTool
	case ToolsCallAggregateMessage:
		return RoleAssistant
	default:
		return RoleAssistant
	}
}

// IsUpdate reports whether m is a streaming-only preview rather than a
// finalized message.
func IsUpdate(m Message) bool {
	switch m.(type) {
	case TextUpdateMessage, ToolCallUpdateMessage:
		return true
	default:
		return false
	}
}

// Citation represents a reference from text content to an external source.
//
// Provider mappings:
//   - Anthropic: text.citations[] (web_search_result_location, char_location)
//   - OpenAI-style: annotations[] (url_citation)
type Citation struct {
	// Type indicates the citation kind, e.g. "url_citation",
	// "web_search_result_location", "char_location".
	Type string `json:"type"`

	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`

	// StartIndex/EndIndex are character positions in the cited text, when the
	// dialect reports them.
	StartIndex *int `json:"start_index,omitempty"`
	EndIndex   *int `json:"end_index,omitempty"`

	// CitedText is the exact text that was cited.
	CitedText string `json:"cited_text,omitempty"`

	// ProviderData preserves provider-specific citation payload that does not
	// map to the normalized fields (e.g. Anthropic's encrypted_index).
	ProviderData json.RawMessage `json:"provider_data,omitempty"`
}
