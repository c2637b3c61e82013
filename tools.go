package lmgo

import (
	"errors"
	"fmt"
)

// ToolChoiceMode controls tool selection behavior
type ToolChoiceMode string

const (
	ToolChoiceModeAuto     ToolChoiceMode = "auto"     // Model decides whether to use tools
	ToolChoiceModeRequired ToolChoiceMode = "required" // Model must use a tool
	ToolChoiceModeNone     ToolChoiceMode = "none"     // Model cannot use tools
	ToolChoiceModeSpecific ToolChoiceMode = "specific" // Model must use specific tool
)

// FunctionDetails represents the function definition within a tool (OpenAI
// format). This matches the universal standard used by OpenAI-style dialects
// and easily converts to Anthropic (parameters → input_schema).
type FunctionDetails struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema for parameters
}

// Tool represents a function tool in the universal OpenAI format. Dialects
// convert it to their own wire shape during encoding.
type Tool struct {
	Type     string          `json:"type"` // Always "function" for function tools
	Function FunctionDetails `json:"function"`
}

// Validate checks if the Tool is properly configured
func (t *Tool) Validate() error {
	if t.Type == "" {
		return errors.New("tool type is required")
	}

	if t.Type != "function" {
		return fmt.Errorf("unsupported tool type: %s (only 'function' is supported)", t.Type)
	}

	if t.Function.Name == "" {
		return errors.New("function name is required")
	}

	if t.Function.Parameters == nil {
		return errors.New("function parameters are required")
	}

	if schemaType, ok := t.Function.Parameters["type"].(string); !ok || schemaType != "object" {
		return errors.New("function parameters must be a JSON schema with type 'object'")
	}

	return nil
}

// NewFunctionTool creates a function tool from a name, description and JSON
// Schema parameters object.
func NewFunctionTool(name string, description string, parameters map[string]interface{}) (*Tool, error) {
	if name == "" {
		return nil, errors.New("tool name is required")
	}

	if parameters == nil {
		return nil, errors.New("parameters are required")
	}

	tool := &Tool{
		Type: "function",
		Function: FunctionDetails{
			Name:        name,
			Description: description,
			Parameters:  parameters,
		},
	}

	if err := tool.Validate(); err != nil {
		return nil, fmt.Errorf("failed to create tool: %w", err)
	}

	return tool, nil
}

// ToolChoice specifies tool selection behavior
type ToolChoice struct {
	Mode     ToolChoiceMode
	ToolName *string // Required when Mode is ToolChoiceModeSpecific
}

// Validate checks if the ToolChoice is properly configured
func (tc *ToolChoice) Validate() error {
	if tc.Mode == ToolChoiceModeSpecific && (tc.ToolName == nil || *tc.ToolName == "") {
		return errors.New("tool_name is required when mode is 'specific'")
	}

	switch tc.Mode {
	case ToolChoiceModeAuto, ToolChoiceModeRequired, ToolChoiceModeNone, ToolChoiceModeSpecific:
	default:
		return fmt.Errorf("invalid tool choice mode: %s", tc.Mode)
	}

	return nil
}

// Server tool names. These are provider-executed built-ins requested by name
// in ChatOptions.ServerTools; no schema is sent for them.
const (
	ServerToolWebSearch     = "web_search"
	ServerToolCodeExecution = "code_execution"
	ServerToolWebFetch      = "web_fetch"
)

// serverToolSpec maps a server tool name to its provider wire identifiers.
// Unknown names fail encoding rather than being guessed at.
type serverToolSpec struct {
	// wireType is the versioned tool type sent in the tools array.
	wireType string

	// resultBlock is the content-block type the provider uses to deliver
	// this tool's results.
	resultBlock string
}

var serverTools = map[string]serverToolSpec{
	ServerToolWebSearch:     {wireType: "web_search_20250305", resultBlock: "web_search_tool_result"},
	ServerToolCodeExecution: {wireType: "code_execution_20250522", resultBlock: "code_execution_tool_result"},
	ServerToolWebFetch:      {wireType: "web_fetch_20250910", resultBlock: "web_fetch_tool_result"},
}

// serverToolResultBlocks is the reverse lookup from result block type to
// tool name, used when decoding server tool result blocks.
var serverToolResultBlocks = func() map[string]string {
	m := make(map[string]string, len(serverTools))
	for name, spec := range serverTools {
		m[spec.resultBlock] = name
	}
	return m
}()

// ServerToolWireType returns the versioned wire tool type for a server tool
// name.
func ServerToolWireType(name string) (string, error) {
	spec, ok := serverTools[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown server tool %q", ErrInvalidRequest, name)
	}
	return spec.wireType, nil
}

// ServerToolResultBlock returns the result content-block type for a server
// tool name.
func ServerToolResultBlock(name string) (string, error) {
	spec, ok := serverTools[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown server tool %q", ErrInvalidRequest, name)
	}
	return spec.resultBlock, nil
}

// ServerToolNameForResultBlock maps a result content-block type back to its
// server tool name. ok is false for unrecognized block types.
func ServerToolNameForResultBlock(blockType string) (string, bool) {
	name, ok := serverToolResultBlocks[blockType]
	return name, ok
}

// IsServerToolResultBlock reports whether blockType delivers server tool
// results.
func IsServerToolResultBlock(blockType string) bool {
	_, ok := serverToolResultBlocks[blockType]
	return ok
}
