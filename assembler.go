package lmgo

import (
	"log/slog"
	"sort"

	"github.com/achieveai/lmgo/sse"
)

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithAssemblerLogger overrides the assembler's logger.
func WithAssemblerLogger(l *slog.Logger) AssemblerOption {
	return func(a *Assembler) { a.log = l }
}

// WithWarningFunc registers a callback invoked for each partial-content
// warning as it occurs. Warnings are also retained and available from
// Warnings.
func WithWarningFunc(fn func(error)) AssemblerOption {
	return func(a *Assembler) { a.warnFn = fn }
}

// Assembler folds the typed event stream into canonical messages. It tracks
// one lifecycle per content-block index, emits update messages while blocks
// are open, exactly one finalized message per block, and a terminal
// UsageMessage after message_stop.
//
// Block-level problems degrade and warn rather than fail; the stream itself
// failing is the demultiplexer's concern.
type Assembler struct {
	provider string
	log      *slog.Logger
	warnFn   func(error)

	blocks   map[int]*ContentBlock
	started  bool
	finished bool

	promptUsage  sse.Usage
	outputUsage  sse.Usage
	stopReason   string
	stopSequence string

	warnings []error
}

// NewAssembler returns an assembler for one turn. Assemblers are single-use.
func NewAssembler(provider string, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		provider: provider,
		log:      slog.Default(),
		blocks:   make(map[int]*ContentBlock),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Feed processes one event and returns the messages it produces, in order.
// Update messages precede the finalized message of their block; the terminal
// UsageMessage is produced by message_stop, always last.
func (a *Assembler) Feed(ev *sse.Event) []Message {
	if a.finished {
		return nil
	}

	switch ev.Type {
	case sse.EventMessageStart:
		a.started = true
		if ev.Message != nil {
			a.promptUsage = ev.Message.Usage
		}
		return nil

	case sse.EventBlockStart:
		return a.openBlock(ev)

	case sse.EventBlockDelta:
		return a.applyDelta(ev)

	case sse.EventBlockStop:
		return a.closeBlock(ev.Index)

	case sse.EventMessageDelta:
		a.stopReason = ev.StopReason
		a.stopSequence = ev.StopSequence
		if ev.Usage != nil {
			a.outputUsage = *ev.Usage
		}
		return nil

	case sse.EventMessageStop:
		return a.finish()
	}
	return nil
}

func (a *Assembler) openBlock(ev *sse.Event) []Message {
	if ev.Block == nil {
		a.warn(&PartialContentWarning{
			BlockIndex: ev.Index,
			Reason:     "block start without block payload",
		})
		return nil
	}
	if existing, ok := a.blocks[ev.Index]; ok && existing.State != BlockAbsent {
		a.warn(&PartialContentWarning{
			BlockIndex: ev.Index,
			BlockKind:  existing.Kind,
			Reason:     "duplicate block start for index",
		})
		return nil
	}

	b := &ContentBlock{}
	b.Open(ev.Index, ev.Block)
	a.blocks[ev.Index] = b

	// Announce tool identity as soon as it is known.
	if b.IsToolUse() {
		target := ExecutionLocal
		if b.Kind == BlockKindServerToolUse {
			target = ExecutionServer
		}
		return []Message{ToolCallUpdateMessage{
			ID:     b.ToolID,
			Name:   b.ToolName,
			Target: target,
		}}
	}
	return nil
}

func (a *Assembler) applyDelta(ev *sse.Event) []Message {
	b, ok := a.blocks[ev.Index]
	if !ok || b.State != BlockOpen {
		a.warn(&PartialContentWarning{
			BlockIndex: ev.Index,
			Reason:     "delta for a block that is not open",
		})
		return nil
	}
	if ev.Delta == nil {
		return nil
	}

	b.Apply(ev.Delta)

	switch ev.Delta.Kind {
	case sse.DeltaText:
		return []Message{TextUpdateMessage{Delta: ev.Delta.Text}}
	case sse.DeltaThinking:
		return []Message{TextUpdateMessage{Delta: ev.Delta.Thinking, Thinking: true}}
	case sse.DeltaInputJSON:
		target := ExecutionLocal
		if b.Kind == BlockKindServerToolUse {
			target = ExecutionServer
		}
		return []Message{ToolCallUpdateMessage{
			ID:             b.ToolID,
			Name:           b.ToolName,
			ArgumentsDelta: ev.Delta.PartialJSON,
			Target:         target,
		}}
	}
	// Signature and citation deltas accumulate silently.
	return nil
}

func (a *Assembler) closeBlock(index int) []Message {
	b, ok := a.blocks[index]
	if !ok || b.State != BlockOpen {
		a.warn(&PartialContentWarning{
			BlockIndex: index,
			Reason:     "stop for a block that is not open",
		})
		return nil
	}
	b.Close()

	msg, warn := b.Finalize()
	if warn != nil {
		warn.BlockIndex = index
		a.warn(warn)
	}
	if msg == nil {
		return nil
	}
	return []Message{msg}
}

func (a *Assembler) finish() []Message {
	a.finished = true

	// Blocks the provider never closed still finalize, degraded.
	var open []int
	for idx, b := range a.blocks {
		if b.State == BlockOpen {
			open = append(open, idx)
		}
	}
	sort.Ints(open)

	var out []Message
	for _, idx := range open {
		a.warn(&PartialContentWarning{
			BlockIndex: idx,
			BlockKind:  a.blocks[idx].Kind,
			Reason:     "block still open at message stop",
		})
		out = append(out, a.closeBlock(idx)...)
	}

	out = append(out, a.UsageMessage())
	return out
}

// UsageMessage combines the prompt-side usage from message_start with the
// completion-side usage from message_delta. Dialects that only report usage
// at the end of the stream carry prompt tokens in message_delta; those win
// over the (empty) message_start figures.
func (a *Assembler) UsageMessage() UsageMessage {
	u := a.Usage()
	return UsageMessage{
		PromptTokens:     u.InputTokens,
		CompletionTokens: u.OutputTokens,
		CachedTokens:     u.CacheReadInputTokens,
	}
}

// Usage returns the raw combined wire usage for metrics recording.
func (a *Assembler) Usage() sse.Usage {
	u := sse.Usage{
		InputTokens:              a.promptUsage.InputTokens,
		OutputTokens:             a.outputUsage.OutputTokens,
		CacheReadInputTokens:     a.promptUsage.CacheReadInputTokens,
		CacheCreationInputTokens: a.promptUsage.CacheCreationInputTokens,
	}
	if a.outputUsage.InputTokens > 0 {
		u.InputTokens = a.outputUsage.InputTokens
	}
	if a.outputUsage.CacheReadInputTokens > 0 {
		u.CacheReadInputTokens = a.outputUsage.CacheReadInputTokens
	}
	return u
}

// StopReason returns the provider's stop reason, when one was reported.
func (a *Assembler) StopReason() string {
	return a.stopReason
}

// StopSequence returns the matched stop sequence when the turn ended on one,
// and "" otherwise.
func (a *Assembler) StopSequence() string {
	return a.stopSequence
}

// Finished reports whether message_stop has been processed.
func (a *Assembler) Finished() bool {
	return a.finished
}

// Warnings returns the partial-content warnings accumulated so far.
func (a *Assembler) Warnings() []error {
	return a.warnings
}

func (a *Assembler) warn(w *PartialContentWarning) {
	a.warnings = append(a.warnings, w)
	a.log.Warn("partial content in stream",
		"provider", a.provider,
		"block_index", w.BlockIndex,
		"block_kind", w.BlockKind,
		"reason", w.Reason)
	if a.warnFn != nil {
		a.warnFn(w)
	}
}
