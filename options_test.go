package lmgo

import (
	"errors"
	"testing"
)

func TestChatOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    ChatOptions
		wantErr bool
		field   string
	}{
		{
			name: "minimal valid",
			opts: ChatOptions{Model: "claude-haiku-4-5-20251001"},
		},
		{
			name:    "missing model",
			opts:    ChatOptions{},
			wantErr: true,
			field:   "model",
		},
		{
			name:    "temperature out of range",
			opts:    ChatOptions{Model: "m", Temperature: float64Ptr(1.5)},
			wantErr: true,
			field:   "temperature",
		},
		{
			name:    "negative temperature",
			opts:    ChatOptions{Model: "m", Temperature: float64Ptr(-0.1)},
			wantErr: true,
			field:   "temperature",
		},
		{
			name:    "top_p out of range",
			opts:    ChatOptions{Model: "m", TopP: float64Ptr(2)},
			wantErr: true,
			field:   "top_p",
		},
		{
			name:    "zero max_tokens",
			opts:    ChatOptions{Model: "m", MaxTokens: intPtr(0)},
			wantErr: true,
			field:   "max_tokens",
		},
		{
			name:    "negative thinking budget",
			opts:    ChatOptions{Model: "m", ThinkingBudget: intPtr(-1)},
			wantErr: true,
			field:   "thinking_budget",
		},
		{
			name:    "unknown server tool",
			opts:    ChatOptions{Model: "m", ServerTools: []string{"crystal_ball"}},
			wantErr: true,
			field:   "server_tools",
		},
		{
			name: "known server tools",
			opts: ChatOptions{Model: "m", ServerTools: []string{ServerToolWebSearch, ServerToolCodeExecution, ServerToolWebFetch}},
		},
		{
			name:    "invalid tool",
			opts:    ChatOptions{Model: "m", Tools: []Tool{{Type: "retrieval"}}},
			wantErr: true,
			field:   "tools[0]",
		},
		{
			name:    "specific tool choice without name",
			opts:    ChatOptions{Model: "m", ToolChoice: &ToolChoice{Mode: ToolChoiceModeSpecific}},
			wantErr: true,
			field:   "tool_choice",
		},
		{
			name: "boundary values pass",
			opts: ChatOptions{Model: "m", Temperature: float64Ptr(0), TopP: float64Ptr(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestServerToolTables(t *testing.T) {
	wire, err := ServerToolWireType(ServerToolWebSearch)
	if err != nil || wire != "web_search_20250305" {
		t.Errorf("wire type = %q, %v", wire, err)
	}
	block, err := ServerToolResultBlock(ServerToolWebFetch)
	if err != nil || block != "web_fetch_tool_result" {
		t.Errorf("result block = %q, %v", block, err)
	}
	if _, err := ServerToolWireType("crystal_ball"); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("unknown tool error = %v", err)
	}

	name, ok := ServerToolNameForResultBlock("code_execution_tool_result")
	if !ok || name != ServerToolCodeExecution {
		t.Errorf("reverse lookup = %q, %v", name, ok)
	}
	if IsServerToolResultBlock("text") {
		t.Error("text must not be a server tool result block")
	}
}
