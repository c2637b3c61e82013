package sse

import "encoding/json"

// EventType names the stream event phases.
type EventType string

const (
	EventMessageStart EventType = "message_start"
	EventBlockStart   EventType = "content_block_start"
	EventBlockDelta   EventType = "content_block_delta"
	EventBlockStop    EventType = "content_block_stop"
	EventMessageDelta EventType = "message_delta"
	EventMessageStop  EventType = "message_stop"
)

// Delta kinds carried by content_block_delta events.
const (
	DeltaText      = "text_delta"
	DeltaInputJSON = "input_json_delta"
	DeltaThinking  = "thinking_delta"
	DeltaSignature = "signature_delta"
	DeltaCitations = "citations_delta"
)

// Event is one typed stream event, tagged with the content-block index it
// applies to (block-scoped events only). Exactly one payload pointer is set
// for the phases that carry one. Events are transient: the demultiplexer owns
// them and consumers must not retain them across calls.
type Event struct {
	Type  EventType
	Index int

	Message *MessageStart // message_start
	Block   *BlockStart   // content_block_start
	Delta   *Delta        // content_block_delta

	// message_delta payload.
	StopReason   string
	StopSequence string
	Usage        *Usage
}

// MessageStart carries turn-level metadata from the opening event.
type MessageStart struct {
	ID    string
	Model string
	Role  string
	Usage Usage
}

// Usage is the wire token-usage shape. message_start reports input tokens,
// message_delta reports output tokens; the assembler combines the two.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// BlockStart records a content block opening: its wire kind and any metadata
// delivered up front (tool identity, pre-populated input for non-streaming
// synthesis, raw result payload for server tool results).
type BlockStart struct {
	Kind string

	ToolID   string
	ToolName string

	// ToolUseID is the invocation a *_tool_result block references.
	ToolUseID string

	// Text is initial text content, usually empty in live streams.
	Text string

	// Thinking and Signature carry complete reasoning content when the
	// block arrives already finalized.
	Thinking  string
	Signature string

	// Input carries a complete tool-arguments object when the block arrives
	// already finalized (non-streaming responses replayed as events).
	Input json.RawMessage

	// Content is the raw payload of server tool result blocks.
	Content json.RawMessage

	// Citations attached at block start.
	Citations []Citation
}

// Delta is an incremental update to an open block.
type Delta struct {
	Kind        string
	Text        string
	PartialJSON string
	Thinking    string
	Signature   string
	Citation    *Citation
}

// Citation is the wire citation shape, covering both dialects' field sets.
type Citation struct {
	Type           string `json:"type"`
	URL            string `json:"url,omitempty"`
	Title          string `json:"title,omitempty"`
	CitedText      string `json:"cited_text,omitempty"`
	StartCharIndex *int   `json:"start_char_index,omitempty"`
	EndCharIndex   *int   `json:"end_char_index,omitempty"`
	StartIndex     *int   `json:"start_index,omitempty"`
	EndIndex       *int   `json:"end_index,omitempty"`
	EncryptedIndex string `json:"encrypted_index,omitempty"`
}
