package lmgo

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/achieveai/lmgo/sse"
)

// Wire content-block kinds.
const (
	BlockKindText          = "text"
	BlockKindThinking      = "thinking"
	BlockKindToolUse       = "tool_use"
	BlockKindServerToolUse = "server_tool_use"
)

// BlockState tracks a content block's position in its lifecycle. Transitions
// are one-way: Absent → Open → Closed.
type BlockState int

const (
	BlockAbsent BlockState = iota
	BlockOpen
	BlockClosed
)

// ContentBlock accumulates one content block's streamed fragments until it
// can be finalized into a Message. The zero value is an absent block.
type ContentBlock struct {
	Index int
	Kind  string
	State BlockState

	// Tool identity, for tool_use and server_tool_use blocks.
	ToolID   string
	ToolName string

	// ToolUseID is the invocation a server tool result block references.
	ToolUseID string

	// Result is the raw payload of a server tool result block.
	Result json.RawMessage

	text      strings.Builder
	args      strings.Builder
	signature strings.Builder
	citations []Citation
}

// Open transitions the block from Absent using the metadata of a block-start
// event.
func (b *ContentBlock) Open(index int, start *sse.BlockStart) {
	b.Index = index
	b.Kind = start.Kind
	b.State = BlockOpen
	b.ToolID = start.ToolID
	b.ToolName = start.ToolName
	b.ToolUseID = start.ToolUseID
	b.Result = start.Content
	if start.Text != "" {
		b.text.WriteString(start.Text)
	}
	if start.Thinking != "" {
		b.text.WriteString(start.Thinking)
	}
	if start.Signature != "" {
		b.signature.WriteString(start.Signature)
	}
	if len(start.Input) > 0 && string(start.Input) != "{}" {
		b.args.Write(start.Input)
	}
	for _, c := range start.Citations {
		b.citations = append(b.citations, citationFromWire(c))
	}
}

// Apply accumulates one delta into the open block.
func (b *ContentBlock) Apply(d *sse.Delta) {
	switch d.Kind {
	case sse.DeltaText:
		b.text.WriteString(d.Text)
	case sse.DeltaInputJSON:
		b.args.WriteString(d.PartialJSON)
	case sse.DeltaThinking:
		b.text.WriteString(d.Thinking)
	case sse.DeltaSignature:
		b.signature.WriteString(d.Signature)
	case sse.DeltaCitations:
		if d.Citation != nil {
			b.citations = append(b.citations, citationFromWire(*d.Citation))
		}
	}
}

// Close transitions the block to Closed.
func (b *ContentBlock) Close() {
	b.State = BlockClosed
}

// IsToolUse reports whether the block is a local or server tool invocation.
func (b *ContentBlock) IsToolUse() bool {
	return b.Kind == BlockKindToolUse || b.Kind == BlockKindServerToolUse
}

// Finalize converts the accumulated block into its terminal message. A block
// with unusable content still finalizes (degraded where needed) and reports
// the degradation as a non-nil warning. A nil message with a nil warning is
// never returned; a nil message means the block kind is unrecognized.
func (b *ContentBlock) Finalize() (Message, *PartialContentWarning) {
	switch {
	case b.Kind == BlockKindText:
		if len(b.citations) > 0 {
			return TextWithCitationsMessage{
				Role:      RoleAssistant,
				Text:      b.text.String(),
				Citations: b.citations,
			}, nil
		}
		return TextMessage{Role: RoleAssistant, Text: b.text.String()}, nil

	case b.Kind == BlockKindThinking:
		return TextMessage{
			Role:      RoleAssistant,
			Text:      b.text.String(),
			Thinking:  true,
			Signature: b.signature.String(),
		}, nil

	case b.IsToolUse():
		target := ExecutionLocal
		if b.Kind == BlockKindServerToolUse {
			target = ExecutionServer
		}
		args, warn := b.finalArguments()
		return ToolCallMessage{
			ID:        b.ToolID,
			Name:      b.ToolName,
			Arguments: args,
			Target:    target,
		}, warn

	case IsServerToolResultBlock(b.Kind):
		name, _ := ServerToolNameForResultBlock(b.Kind)
		msg := ToolCallResultMessage{
			ID:       b.ToolUseID,
			ToolName: name,
			Result:   b.Result,
			Target:   ExecutionServer,
		}
		// Error results arrive as {"type":"..._error","error_code":"..."}.
		if ec := gjson.GetBytes(b.Result, "error_code"); ec.Exists() {
			msg.IsError = true
			msg.ErrorCode = ec.String()
		}
		return msg, nil
	}

	return nil, &PartialContentWarning{
		BlockIndex: b.Index,
		BlockKind:  b.Kind,
		Reason:     "unrecognized content block kind",
	}
}

// finalArguments returns the accumulated tool arguments as a guaranteed
// valid JSON object, substituting "{}" when the wire buffer never parsed.
func (b *ContentBlock) finalArguments() (json.RawMessage, *PartialContentWarning) {
	raw := strings.TrimSpace(b.args.String())
	if raw == "" {
		return json.RawMessage("{}"), nil
	}
	if !gjson.Valid(raw) {
		return json.RawMessage("{}"), &PartialContentWarning{
			BlockIndex: b.Index,
			BlockKind:  b.Kind,
			Reason:     "tool arguments were not valid JSON; substituted empty object",
		}
	}
	return json.RawMessage(raw), nil
}

// citationFromWire normalizes a wire citation into the canonical shape.
// Character offsets come from whichever index pair the dialect populated;
// unmapped fields are preserved in ProviderData.
func citationFromWire(c sse.Citation) Citation {
	out := Citation{
		Type:      c.Type,
		URL:       c.URL,
		Title:     c.Title,
		CitedText: c.CitedText,
	}
	switch {
	case c.StartCharIndex != nil || c.EndCharIndex != nil:
		out.StartIndex = c.StartCharIndex
		out.EndIndex = c.EndCharIndex
	default:
		out.StartIndex = c.StartIndex
		out.EndIndex = c.EndIndex
	}
	if c.EncryptedIndex != "" {
		data, err := json.Marshal(map[string]string{"encrypted_index": c.EncryptedIndex})
		if err == nil {
			out.ProviderData = data
		}
	}
	return out
}
