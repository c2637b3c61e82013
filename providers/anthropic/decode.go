package anthropic

import (
	"encoding/json"

	"github.com/achieveai/lmgo"
	"github.com/achieveai/lmgo/sse"
)

// DecodeResponse implements lmgo.Codec. The response's content blocks pass
// through the same finalization as streamed blocks, so both paths yield
// identical messages for identical content.
func (c *Codec) DecodeResponse(data []byte) ([]lmgo.Message, []error, error) {
	var resp messageResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, nil, &lmgo.MalformedResponseError{
			Provider: string(lmgo.ProviderAnthropic),
			Reason:   "response body is not a message object",
			Err:      err,
		}
	}
	if resp.Type != "message" {
		return nil, nil, &lmgo.MalformedResponseError{
			Provider: string(lmgo.ProviderAnthropic),
			Reason:   "unexpected response type " + resp.Type,
		}
	}

	var out []lmgo.Message
	var warnings []error

	for i, rb := range resp.Content {
		block := &lmgo.ContentBlock{}
		block.Open(i, blockStart(&rb))
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
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		CachedTokens:     resp.Usage.CacheReadInputTokens,
	})
	return out, warnings, nil
}

// blockStart renders a finalized response block in the event-stream shape
// consumed by block assembly.
func blockStart(rb *responseBlock) *sse.BlockStart {
	start := &sse.BlockStart{
		Kind:      rb.Type,
		ToolID:    rb.ID,
		ToolName:  rb.Name,
		ToolUseID: rb.ToolUseID,
		Text:      rb.Text,
		Thinking:  rb.Thinking,
		Signature: rb.Signature,
		Input:     rb.Input,
		Content:   rb.Content,
	}
	for _, c := range rb.Citations {
		start.Citations = append(start.Citations, sse.Citation{
			Type:           c.Type,
			URL:            c.URL,
			Title:          c.Title,
			CitedText:      c.CitedText,
			StartCharIndex: c.StartCharIndex,
			EndCharIndex:   c.EndCharIndex,
			EncryptedIndex: c.EncryptedIndex,
		})
	}
	return start
}
