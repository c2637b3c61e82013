package openai

import (
	"encoding/json"
	"io"
	"log/slog"
	"sort"

	"github.com/achieveai/lmgo"
	"github.com/achieveai/lmgo/sse"
)

// Stream implements lmgo.Codec. Chat completion chunks are translated into
// the shared typed event model: a synthesized message_start, one content
// block per logical run of reasoning, text, or tool call, and a terminal
// message_delta and message_stop when the wire signals [DONE].
func (c *Codec) Stream(r io.Reader) lmgo.EventSource {
	return &chunkStream{dec: sse.NewDecoder(r), log: slog.Default(), toolBlocks: make(map[int]int)}
}

type chunkStream struct {
	dec *sse.Decoder
	log *slog.Logger

	queue   []*sse.Event
	started bool
	done    bool
	err     error

	// Block allocation state.
	curKind   string // "", "thinking", "text"
	curIndex  int
	nextIndex int
	// Wire tool-call index to block index; tool calls keep their block
	// across argument fragments.
	toolBlocks map[int]int

	usage      *sse.Usage
	stopReason string
}

func (s *chunkStream) Next() (*sse.Event, error) {
	for {
		if len(s.queue) > 0 {
			ev := s.queue[0]
			s.queue = s.queue[1:]
			return ev, nil
		}
		if s.err != nil {
			return nil, s.err
		}
		if s.done {
			return nil, io.EOF
		}

		raw, err := s.dec.Next()
		if err == io.EOF {
			// The wire ended without [DONE]; the assembler-facing contract
			// is an explicit truncation error.
			s.err = sse.ErrTruncated
			if !s.started {
				s.err = sse.ErrNoMessageStart
			}
			return nil, s.err
		}
		if err != nil {
			s.err = err
			return nil, err
		}

		if string(raw.Data) == "[DONE]" {
			s.finish()
			continue
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal(raw.Data, &chunk); err != nil {
			s.log.Warn("skipping malformed stream chunk", "error", err)
			continue
		}
		s.translate(&chunk)
	}
}

func (s *chunkStream) emit(ev *sse.Event) {
	s.queue = append(s.queue, ev)
}

// translate appends the events implied by one chunk to the queue.
func (s *chunkStream) translate(chunk *chatCompletionChunk) {
	if !s.started {
		s.started = true
		s.emit(&sse.Event{
			Type: sse.EventMessageStart,
			Message: &sse.MessageStart{
				ID:    chunk.ID,
				Model: chunk.Model,
				Role:  "assistant",
			},
		})
	}

	if chunk.Usage != nil {
		s.usage = &sse.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
		}
		if chunk.Usage.PromptTokensDetails != nil {
			s.usage.CacheReadInputTokens = chunk.Usage.PromptTokensDetails.CachedTokens
		}
	}

	if len(chunk.Choices) == 0 {
		return
	}
	ch := chunk.Choices[0]

	if thinking := extractThinking(ch.Delta.Reasoning, ch.Delta.ReasoningDetails); thinking != "" {
		s.ensureRun("thinking")
		s.emit(&sse.Event{
			Type:  sse.EventBlockDelta,
			Index: s.curIndex,
			Delta: &sse.Delta{Kind: sse.DeltaThinking, Thinking: thinking},
		})
	}

	if ch.Delta.Content != nil && *ch.Delta.Content != "" {
		s.ensureRun("text")
		s.emit(&sse.Event{
			Type:  sse.EventBlockDelta,
			Index: s.curIndex,
			Delta: &sse.Delta{Kind: sse.DeltaText, Text: *ch.Delta.Content},
		})
	}

	for _, c := range citationsFromAnnotations(ch.Delta.Annotations) {
		s.ensureRun("text")
		citation := c
		s.emit(&sse.Event{
			Type:  sse.EventBlockDelta,
			Index: s.curIndex,
			Delta: &sse.Delta{Kind: sse.DeltaCitations, Citation: &citation},
		})
	}

	for _, tc := range ch.Delta.ToolCalls {
		s.translateToolCall(&tc)
	}

	if ch.FinishReason != nil && *ch.FinishReason != "" {
		s.stopReason = mapFinishReason(*ch.FinishReason)
	}
}

// ensureRun opens a block of the given kind, closing the current text or
// thinking run if it is of a different kind.
func (s *chunkStream) ensureRun(kind string) {
	if s.curKind == kind {
		return
	}
	s.closeRun()
	s.curKind = kind
	s.curIndex = s.nextIndex
	s.nextIndex++
	s.emit(&sse.Event{
		Type:  sse.EventBlockStart,
		Index: s.curIndex,
		Block: &sse.BlockStart{Kind: kind},
	})
}

func (s *chunkStream) closeRun() {
	if s.curKind == "" {
		return
	}
	s.emit(&sse.Event{Type: sse.EventBlockStop, Index: s.curIndex})
	s.curKind = ""
}

// translateToolCall routes one tool-call fragment to its block, opening the
// block when the fragment announces the call's identity.
func (s *chunkStream) translateToolCall(tc *toolCall) {
	wireIdx := 0
	if tc.Index != nil {
		wireIdx = *tc.Index
	}

	blockIdx, open := s.toolBlocks[wireIdx]
	if !open {
		s.closeRun()
		blockIdx = s.nextIndex
		s.nextIndex++
		s.toolBlocks[wireIdx] = blockIdx
		s.emit(&sse.Event{
			Type:  sse.EventBlockStart,
			Index: blockIdx,
			Block: &sse.BlockStart{Kind: "tool_use", ToolID: tc.ID, ToolName: tc.Function.Name},
		})
	}

	if tc.Function.Arguments != "" {
		s.emit(&sse.Event{
			Type:  sse.EventBlockDelta,
			Index: blockIdx,
			Delta: &sse.Delta{Kind: sse.DeltaInputJSON, PartialJSON: tc.Function.Arguments},
		})
	}
}

// finish closes open blocks and emits the terminal events.
func (s *chunkStream) finish() {
	if !s.started {
		s.err = sse.ErrNoMessageStart
		return
	}
	s.closeRun()
	var open []int
	for _, blockIdx := range s.toolBlocks {
		open = append(open, blockIdx)
	}
	sort.Ints(open)
	for _, blockIdx := range open {
		s.emit(&sse.Event{Type: sse.EventBlockStop, Index: blockIdx})
	}
	s.toolBlocks = map[int]int{}

	s.emit(&sse.Event{
		Type:       sse.EventMessageDelta,
		StopReason: s.stopReason,
		Usage:      s.usage,
	})
	s.emit(&sse.Event{Type: sse.EventMessageStop})
	s.done = true
}
