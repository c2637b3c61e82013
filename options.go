package lmgo

import "fmt"

// ChatOptions holds per-request generation parameters. Optional fields are
// pointers to distinguish "not set" from "set to zero value"; Encode omits
// unset fields from the wire request.
type ChatOptions struct {
	// Model specifies the model to use. Required.
	Model string `json:"model"`

	// MaxTokens sets the maximum number of tokens to generate.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0-1.0).
	Temperature *float64 `json:"temperature,omitempty"`

	// TopP (nucleus sampling) - cumulative probability cutoff (0.0-1.0).
	TopP *float64 `json:"top_p,omitempty"`

	// Stop sequences - generation stops if any of these are generated.
	Stop []string `json:"stop,omitempty"`

	// System prompt. Takes precedence over a leading system-role message in
	// the conversation; dialects hoist whichever applies to their top-level
	// system field.
	System *string `json:"system,omitempty"`

	// ThinkingEnabled enables extended thinking mode where the dialect
	// supports it.
	ThinkingEnabled *bool `json:"thinking_enabled,omitempty"`

	// ThinkingBudget caps thinking output tokens. Only meaningful alongside
	// ThinkingEnabled.
	ThinkingBudget *int `json:"thinking_budget,omitempty"`

	// Tools available for the model to call, in the universal function
	// format.
	Tools []Tool `json:"tools,omitempty"`

	// ServerTools names provider-executed built-ins to enable, e.g.
	// "web_search". Unknown names fail encoding.
	ServerTools []string `json:"server_tools,omitempty"`

	// ToolChoice controls whether/which tools the model must use.
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`

	// EnableCaching asks the dialect to mark cacheable prompt prefixes,
	// where the dialect supports it.
	EnableCaching bool `json:"enable_caching,omitempty"`
}

// Validate checks the options for problems detectable before dispatch.
func (o *ChatOptions) Validate() error {
	if o.Model == "" {
		return &ValidationError{Field: "model", Reason: "model is required", Err: ErrInvalidModel}
	}
	if o.Temperature != nil && (*o.Temperature < 0 || *o.Temperature > 1) {
		return &ValidationError{Field: "temperature", Value: *o.Temperature, Reason: "must be between 0.0 and 1.0"}
	}
	if o.TopP != nil && (*o.TopP < 0 || *o.TopP > 1) {
		return &ValidationError{Field: "top_p", Value: *o.TopP, Reason: "must be between 0.0 and 1.0"}
	}
	if o.MaxTokens != nil && *o.MaxTokens <= 0 {
		return &ValidationError{Field: "max_tokens", Value: *o.MaxTokens, Reason: "must be positive"}
	}
	if o.ThinkingBudget != nil && *o.ThinkingBudget <= 0 {
		return &ValidationError{Field: "thinking_budget", Value: *o.ThinkingBudget, Reason: "must be positive"}
	}
	for i := range o.Tools {
		if err := o.Tools[i].Validate(); err != nil {
			return &ValidationError{Field: fmt.Sprintf("tools[%d]", i), Reason: "invalid tool", Err: err}
		}
	}
	for _, name := range o.ServerTools {
		if _, err := ServerToolWireType(name); err != nil {
			return &ValidationError{Field: "server_tools", Value: name, Reason: "unknown server tool", Err: err}
		}
	}
	if o.ToolChoice != nil {
		if err := o.ToolChoice.Validate(); err != nil {
			return &ValidationError{Field: "tool_choice", Reason: "invalid tool choice", Err: err}
		}
	}
	return nil
}
