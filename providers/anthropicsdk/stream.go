package anthropicsdk

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/achieveai/lmgo"
	"github.com/achieveai/lmgo/sse"
)

// SendStreaming implements lmgo.Client. SDK stream events are translated
// into the shared event shape so block assembly behaves identically to the
// wire codec path.
func (c *Client) SendStreaming(ctx context.Context, msgs []lmgo.Message, opts *lmgo.ChatOptions) (<-chan lmgo.StreamItem, error) {
	if err := c.prepare(msgs, opts); err != nil {
		return nil, err
	}

	params, err := buildMessageParams(msgs, opts)
	if err != nil {
		return nil, err
	}

	out := make(chan lmgo.StreamItem)
	go c.pump(ctx, params, out)
	return out, nil
}

func (c *Client) pump(ctx context.Context, params anthropic.MessageNewParams, out chan<- lmgo.StreamItem) {
	defer close(out)

	stream := c.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	asm := lmgo.NewAssembler("anthropic-sdk",
		lmgo.WithAssemblerLogger(c.log),
		lmgo.WithWarningFunc(c.warn),
	)

	send := func(item lmgo.StreamItem) bool {
		select {
		case out <- item:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Updates flow through live; finalized messages are held until the turn
	// completes so tool results can be correlated with their calls.
	var finals []lmgo.Message
	for stream.Next() {
		ev := translateEvent(stream.Current())
		if ev == nil {
			continue
		}
		for _, msg := range asm.Feed(ev) {
			if lmgo.IsUpdate(msg) {
				if !send(lmgo.StreamItem{Message: msg}) {
					return
				}
				continue
			}
			finals = append(finals, msg)
		}
	}

	if err := stream.Err(); err != nil {
		send(lmgo.StreamItem{Err: fmt.Errorf("anthropic stream failed: %w", err)})
		return
	}
	if !asm.Finished() {
		send(lmgo.StreamItem{Err: fmt.Errorf("anthropic stream ended before completion: %w", sse.ErrTruncated)})
		return
	}

	for _, msg := range c.correlateTurn(finals) {
		if !send(lmgo.StreamItem{Message: msg}) {
			return
		}
	}
}

// translateEvent maps an SDK stream event onto the shared event model.
// Ping and unrecognized events map to nil.
func translateEvent(event anthropic.MessageStreamEventUnion) *sse.Event {
	switch e := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		return &sse.Event{
			Type: sse.EventMessageStart,
			Message: &sse.MessageStart{
				ID:    e.Message.ID,
				Model: string(e.Message.Model),
				Role:  string(e.Message.Role),
				Usage: sse.Usage{
					InputTokens:              int(e.Message.Usage.InputTokens),
					OutputTokens:             int(e.Message.Usage.OutputTokens),
					CacheReadInputTokens:     int(e.Message.Usage.CacheReadInputTokens),
					CacheCreationInputTokens: int(e.Message.Usage.CacheCreationInputTokens),
				},
			},
		}

	case anthropic.ContentBlockStartEvent:
		return &sse.Event{
			Type:  sse.EventBlockStart,
			Index: int(e.Index),
			Block: &sse.BlockStart{
				Kind:     string(e.ContentBlock.Type),
				ToolID:   e.ContentBlock.ID,
				ToolName: e.ContentBlock.Name,
			},
		}

	case anthropic.ContentBlockDeltaEvent:
		delta := &sse.Delta{Kind: string(e.Delta.Type)}
		switch e.Delta.Type {
		case "text_delta":
			delta.Text = e.Delta.Text
		case "thinking_delta":
			delta.Thinking = e.Delta.Thinking
		case "signature_delta":
			delta.Signature = e.Delta.Signature
		case "input_json_delta":
			delta.PartialJSON = e.Delta.PartialJSON
		default:
			return nil
		}
		return &sse.Event{
			Type:  sse.EventBlockDelta,
			Index: int(e.Index),
			Delta: delta,
		}

	case anthropic.ContentBlockStopEvent:
		return &sse.Event{
			Type:  sse.EventBlockStop,
			Index: int(e.Index),
		}

	case anthropic.MessageDeltaEvent:
		return &sse.Event{
			Type:       sse.EventMessageDelta,
			StopReason: string(e.Delta.StopReason),
			Usage: &sse.Usage{
				OutputTokens: int(e.Usage.OutputTokens),
			},
		}

	case anthropic.MessageStopEvent:
		return &sse.Event{Type: sse.EventMessageStop}
	}
	return nil
}
