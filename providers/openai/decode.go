package openai

import (
	"encoding/json"

	"github.com/achieveai/lmgo"
	"github.com/achieveai/lmgo/sse"
)

// DecodeResponse implements lmgo.Codec. The choice's parts are rendered as
// content blocks and pass through the shared finalization, matching what the
// streaming path produces for the same content.
func (c *Codec) DecodeResponse(data []byte) ([]lmgo.Message, []error, error) {
	var resp chatCompletionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, nil, &lmgo.MalformedResponseError{
			Provider: string(lmgo.ProviderOpenAI),
			Reason:   "response body is not a chat completion object",
			Err:      err,
		}
	}
	if len(resp.Choices) == 0 {
		return nil, nil, &lmgo.MalformedResponseError{
			Provider: string(lmgo.ProviderOpenAI),
			Reason:   "response has no choices",
		}
	}

	msg := resp.Choices[0].Message
	var starts []*sse.BlockStart

	if thinking := extractThinking(msg.Reasoning, msg.ReasoningDetails); thinking != "" {
		starts = append(starts, &sse.BlockStart{Kind: "thinking", Thinking: thinking})
	}
	if msg.Content != nil && *msg.Content != "" {
		starts = append(starts, &sse.BlockStart{
			Kind:      "text",
			Text:      *msg.Content,
			Citations: citationsFromAnnotations(msg.Annotations),
		})
	}
	for _, tc := range msg.ToolCalls {
		starts = append(starts, &sse.BlockStart{
			Kind:     "tool_use",
			ToolID:   tc.ID,
			ToolName: tc.Function.Name,
			Input:    json.RawMessage(tc.Function.Arguments),
		})
	}

	var out []lmgo.Message
	var warnings []error
	for i, start := range starts {
		block := &lmgo.ContentBlock{}
		block.Open(i, start)
		block.Close()

		m, warn := block.Finalize()
		if warn != nil {
			warnings = append(warnings, warn)
		}
		if m != nil {
			out = append(out, m)
		}
	}

	out = append(out, usageMessage(&resp.Usage))
	return out, warnings, nil
}

func extractThinking(reasoning *string, details []reasoningDetail) string {
	if text := reasoningText(details); text != "" {
		return text
	}
	if reasoning != nil {
		return *reasoning
	}
	return ""
}

func citationsFromAnnotations(anns []annotation) []sse.Citation {
	var out []sse.Citation
	for _, a := range anns {
		if a.Type != "url_citation" || a.URLCitation == nil {
			continue
		}
		uc := a.URLCitation
		start, end := uc.StartIndex, uc.EndIndex
		c := sse.Citation{
			Type:       "url_citation",
			URL:        uc.URL,
			StartIndex: &start,
			EndIndex:   &end,
		}
		if uc.Title != nil {
			c.Title = *uc.Title
		}
		if uc.Content != nil {
			c.CitedText = *uc.Content
		}
		out = append(out, c)
	}
	return out
}

func usageMessage(u *chatUsage) lmgo.UsageMessage {
	msg := lmgo.UsageMessage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
	}
	if u.PromptTokensDetails != nil {
		msg.CachedTokens = u.PromptTokensDetails.CachedTokens
	}
	return msg
}
