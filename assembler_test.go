package lmgo

import (
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/achieveai/lmgo/sse"
)

func quietAssembler(opts ...AssemblerOption) *Assembler {
	opts = append([]AssemblerOption{
		WithAssemblerLogger(slog.New(slog.DiscardHandler)),
	}, opts...)
	return NewAssembler("test", opts...)
}

func feedAll(a *Assembler, events []*sse.Event) []Message {
	var out []Message
	for _, ev := range events {
		out = append(out, a.Feed(ev)...)
	}
	return out
}

func textLifecycle(text string) []*sse.Event {
	return []*sse.Event{
		{Type: sse.EventMessageStart, Message: &sse.MessageStart{
			ID: "msg_1", Model: "claude-sonnet-4-20250514",
			Usage: sse.Usage{InputTokens: 10, CacheReadInputTokens: 4},
		}},
		{Type: sse.EventBlockStart, Index: 0, Block: &sse.BlockStart{Kind: BlockKindText}},
		{Type: sse.EventBlockDelta, Index: 0, Delta: &sse.Delta{Kind: sse.DeltaText, Text: text}},
		{Type: sse.EventBlockStop, Index: 0},
		{Type: sse.EventMessageDelta, StopReason: "end_turn", Usage: &sse.Usage{OutputTokens: 6}},
		{Type: sse.EventMessageStop},
	}
}

func TestAssemblerTextLifecycle(t *testing.T) {
	a := quietAssembler()
	out := feedAll(a, textLifecycle("Hello there"))

	if len(out) != 3 {
		t.Fatalf("messages = %d, want update + final + usage", len(out))
	}
	update, ok := out[0].(TextUpdateMessage)
	if !ok || update.Delta != "Hello there" {
		t.Errorf("first message = %#v", out[0])
	}
	final, ok := out[1].(TextMessage)
	if !ok || final.Text != "Hello there" || final.Role != RoleAssistant {
		t.Errorf("second message = %#v", out[1])
	}
	usage, ok := out[2].(UsageMessage)
	if !ok {
		t.Fatalf("last message = %T, want UsageMessage", out[2])
	}
	if usage.PromptTokens != 10 || usage.CompletionTokens != 6 || usage.CachedTokens != 4 {
		t.Errorf("usage = %+v", usage)
	}

	if !a.Finished() {
		t.Error("assembler should be finished")
	}
	if a.StopReason() != "end_turn" {
		t.Errorf("stop reason = %q", a.StopReason())
	}
	if len(a.Warnings()) != 0 {
		t.Errorf("unexpected warnings: %v", a.Warnings())
	}
}

func TestAssemblerToolCall(t *testing.T) {
	a := quietAssembler()
	events := []*sse.Event{
		{Type: sse.EventMessageStart, Message: &sse.MessageStart{ID: "msg_1"}},
		{Type: sse.EventBlockStart, Index: 0, Block: &sse.BlockStart{
			Kind: BlockKindToolUse, ToolID: "toolu_1", ToolName: "calculator",
		}},
		{Type: sse.EventBlockDelta, Index: 0, Delta: &sse.Delta{Kind: sse.DeltaInputJSON, PartialJSON: `{"expr"`}},
		{Type: sse.EventBlockDelta, Index: 0, Delta: &sse.Delta{Kind: sse.DeltaInputJSON, PartialJSON: `:"2+2"}`}},
		{Type: sse.EventBlockStop, Index: 0},
		{Type: sse.EventMessageStop},
	}
	out := feedAll(a, events)

	// announce, two argument updates, final call, usage
	if len(out) != 5 {
		t.Fatalf("messages = %d: %#v", len(out), out)
	}
	announce, ok := out[0].(ToolCallUpdateMessage)
	if !ok || announce.ID != "toolu_1" || announce.Name != "calculator" || announce.ArgumentsDelta != "" {
		t.Errorf("announce = %#v", out[0])
	}
	if announce.Target != ExecutionLocal {
		t.Errorf("target = %v", announce.Target)
	}
	call, ok := out[3].(ToolCallMessage)
	if !ok {
		t.Fatalf("fourth message = %T, want ToolCallMessage", out[3])
	}
	if string(call.Arguments) != `{"expr":"2+2"}` {
		t.Errorf("arguments = %s", call.Arguments)
	}
}

func TestAssemblerMalformedToolArguments(t *testing.T) {
	var warned []error
	a := quietAssembler(WithWarningFunc(func(err error) { warned = append(warned, err) }))
	events := []*sse.Event{
		{Type: sse.EventMessageStart, Message: &sse.MessageStart{ID: "msg_1"}},
		{Type: sse.EventBlockStart, Index: 0, Block: &sse.BlockStart{
			Kind: BlockKindToolUse, ToolID: "toolu_1", ToolName: "calculator",
		}},
		{Type: sse.EventBlockDelta, Index: 0, Delta: &sse.Delta{Kind: sse.DeltaInputJSON, PartialJSON: `{"expr":`}},
		{Type: sse.EventBlockStop, Index: 0},
		{Type: sse.EventMessageStop},
	}
	out := feedAll(a, events)

	var call *ToolCallMessage
	for _, m := range out {
		if c, ok := m.(ToolCallMessage); ok {
			call = &c
		}
	}
	if call == nil {
		t.Fatal("expected a finalized tool call")
	}
	if string(call.Arguments) != "{}" {
		t.Errorf("arguments = %s, want {} fallback", call.Arguments)
	}
	if len(warned) != 1 {
		t.Fatalf("warnings = %d, want 1", len(warned))
	}
	var pcw *PartialContentWarning
	if !errors.As(warned[0], &pcw) {
		t.Fatalf("warning type = %T", warned[0])
	}
}

func TestAssemblerInterleavedBlocks(t *testing.T) {
	a := quietAssembler()
	events := []*sse.Event{
		{Type: sse.EventMessageStart, Message: &sse.MessageStart{ID: "msg_1"}},
		{Type: sse.EventBlockStart, Index: 0, Block: &sse.BlockStart{Kind: BlockKindThinking}},
		{Type: sse.EventBlockStart, Index: 1, Block: &sse.BlockStart{Kind: BlockKindText}},
		{Type: sse.EventBlockDelta, Index: 1, Delta: &sse.Delta{Kind: sse.DeltaText, Text: "answer"}},
		{Type: sse.EventBlockDelta, Index: 0, Delta: &sse.Delta{Kind: sse.DeltaThinking, Thinking: "reasoning"}},
		{Type: sse.EventBlockStop, Index: 0},
		{Type: sse.EventBlockStop, Index: 1},
		{Type: sse.EventMessageStop},
	}
	out := feedAll(a, events)

	var finals []Message
	for _, m := range out {
		if !IsUpdate(m) {
			finals = append(finals, m)
		}
	}
	// thinking final, text final, usage
	if len(finals) != 3 {
		t.Fatalf("finals = %d: %#v", len(finals), finals)
	}
	thinking, ok := finals[0].(TextMessage)
	if !ok || !thinking.Thinking || thinking.Text != "reasoning" {
		t.Errorf("first final = %#v", finals[0])
	}
	text, ok := finals[1].(TextMessage)
	if !ok || text.Thinking || text.Text != "answer" {
		t.Errorf("second final = %#v", finals[1])
	}
}

func TestAssemblerClosesOpenBlocksAtStop(t *testing.T) {
	a := quietAssembler()
	events := []*sse.Event{
		{Type: sse.EventMessageStart, Message: &sse.MessageStart{ID: "msg_1"}},
		{Type: sse.EventBlockStart, Index: 0, Block: &sse.BlockStart{Kind: BlockKindText}},
		{Type: sse.EventBlockDelta, Index: 0, Delta: &sse.Delta{Kind: sse.DeltaText, Text: "cut off"}},
		{Type: sse.EventMessageStop},
	}
	out := feedAll(a, events)

	var text *TextMessage
	for _, m := range out {
		if tm, ok := m.(TextMessage); ok {
			text = &tm
		}
	}
	if text == nil || text.Text != "cut off" {
		t.Fatalf("expected degraded final text message, got %#v", out)
	}
	if len(a.Warnings()) == 0 {
		t.Error("expected a warning for the unclosed block")
	}
	if _, ok := out[len(out)-1].(UsageMessage); !ok {
		t.Error("usage message must still be last")
	}
}

func TestAssemblerWarnsOnProtocolViolations(t *testing.T) {
	a := quietAssembler()
	a.Feed(&sse.Event{Type: sse.EventMessageStart, Message: &sse.MessageStart{ID: "msg_1"}})

	// delta for a block that never started
	a.Feed(&sse.Event{Type: sse.EventBlockDelta, Index: 3, Delta: &sse.Delta{Kind: sse.DeltaText, Text: "x"}})
	// stop for a block that never started
	a.Feed(&sse.Event{Type: sse.EventBlockStop, Index: 3})
	// duplicate start
	a.Feed(&sse.Event{Type: sse.EventBlockStart, Index: 0, Block: &sse.BlockStart{Kind: BlockKindText}})
	a.Feed(&sse.Event{Type: sse.EventBlockStart, Index: 0, Block: &sse.BlockStart{Kind: BlockKindText}})

	if got := len(a.Warnings()); got != 3 {
		t.Errorf("warnings = %d, want 3: %v", got, a.Warnings())
	}
}

func TestAssemblerIgnoresEventsAfterFinish(t *testing.T) {
	a := quietAssembler()
	feedAll(a, textLifecycle("done"))

	out := a.Feed(&sse.Event{Type: sse.EventBlockStart, Index: 5, Block: &sse.BlockStart{Kind: BlockKindText}})
	if out != nil {
		t.Errorf("expected nil after finish, got %#v", out)
	}
}

func TestAssemblerServerToolResult(t *testing.T) {
	a := quietAssembler()
	resultContent := json.RawMessage(`{"type":"web_search_tool_result","results":[{"type":"web_search_result","url":"https://example.com","title":"Example"}]}`)
	events := []*sse.Event{
		{Type: sse.EventMessageStart, Message: &sse.MessageStart{ID: "msg_1"}},
		{Type: sse.EventBlockStart, Index: 0, Block: &sse.BlockStart{
			Kind: BlockKindServerToolUse, ToolID: "srvtoolu_1", ToolName: "web_search",
		}},
		{Type: sse.EventBlockStop, Index: 0},
		{Type: sse.EventBlockStart, Index: 1, Block: &sse.BlockStart{
			Kind: "web_search_tool_result", ToolUseID: "srvtoolu_1", Content: resultContent,
		}},
		{Type: sse.EventBlockStop, Index: 1},
		{Type: sse.EventMessageStop},
	}
	out := feedAll(a, events)

	var call *ToolCallMessage
	var result *ToolCallResultMessage
	for _, m := range out {
		switch v := m.(type) {
		case ToolCallMessage:
			call = &v
		case ToolCallResultMessage:
			result = &v
		}
	}
	if call == nil || call.Target != ExecutionServer {
		t.Fatalf("expected server tool call, got %#v", call)
	}
	if result == nil {
		t.Fatal("expected server tool result")
	}
	if result.ID != "srvtoolu_1" || result.ToolName != ServerToolWebSearch {
		t.Errorf("result = %+v", result)
	}
	if result.Target != ExecutionServer || result.IsError {
		t.Errorf("result = %+v", result)
	}
}

func TestAssemblerUsageFromTerminalDelta(t *testing.T) {
	// OpenAI-shaped streams report all usage in the terminal message_delta.
	a := quietAssembler()
	events := []*sse.Event{
		{Type: sse.EventMessageStart, Message: &sse.MessageStart{ID: "chatcmpl-1"}},
		{Type: sse.EventBlockStart, Index: 0, Block: &sse.BlockStart{Kind: BlockKindText}},
		{Type: sse.EventBlockDelta, Index: 0, Delta: &sse.Delta{Kind: sse.DeltaText, Text: "ok"}},
		{Type: sse.EventBlockStop, Index: 0},
		{Type: sse.EventMessageDelta, StopReason: "end_turn", Usage: &sse.Usage{
			InputTokens: 25, OutputTokens: 7, CacheReadInputTokens: 5,
		}},
		{Type: sse.EventMessageStop},
	}
	out := feedAll(a, events)

	usage, ok := out[len(out)-1].(UsageMessage)
	if !ok {
		t.Fatalf("last message = %T, want UsageMessage", out[len(out)-1])
	}
	if usage.PromptTokens != 25 || usage.CompletionTokens != 7 || usage.CachedTokens != 5 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestAssemblerStopSequence(t *testing.T) {
	a := quietAssembler()
	events := textLifecycle("done")
	events[4].StopReason = "stop_sequence"
	events[4].StopSequence = "END"
	feedAll(a, events)

	if a.StopReason() != "stop_sequence" || a.StopSequence() != "END" {
		t.Errorf("stop = %q / %q", a.StopReason(), a.StopSequence())
	}
}
