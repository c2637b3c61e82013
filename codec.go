package lmgo

import (
	"io"

	"github.com/achieveai/lmgo/sse"
	"github.com/achieveai/lmgo/transport"
)

// ProviderID identifies a wire dialect.
type ProviderID string

const (
	ProviderAnthropic ProviderID = "anthropic"
	ProviderOpenAI    ProviderID = "openai"
	ProviderLorem     ProviderID = "lorem"
)

// EventSource yields typed stream events until io.EOF. Dialects whose wire
// stream is not natively in this event shape translate into it, so one
// assembler serves every dialect.
type EventSource interface {
	Next() (*sse.Event, error)
}

// Codec translates between canonical messages and one provider's wire
// dialect. Codecs are stateless and safe for concurrent use.
type Codec interface {
	// Provider returns the dialect this codec speaks.
	Provider() ProviderID

	// Encode builds the outbound HTTP request for a conversation. It groups
	// and merges adjacent same-role messages, hoists the system prompt into
	// the dialect's top-level field, and rejects conversations the dialect
	// cannot express (e.g. a tool result with no preceding tool call).
	Encode(msgs []Message, opts *ChatOptions, streaming bool) (*transport.Request, error)

	// DecodeResponse parses a complete non-streaming response body into
	// finalized messages, ending with the turn's UsageMessage. Block-level
	// problems degrade into warnings; a structurally unusable body returns
	// an error.
	DecodeResponse(data []byte) ([]Message, []error, error)

	// Stream wraps a raw response body in the dialect's event source.
	Stream(r io.Reader) EventSource
}
