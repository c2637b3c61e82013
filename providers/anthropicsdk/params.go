package anthropicsdk

import (
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/tidwall/gjson"

	"github.com/achieveai/lmgo"
)

// buildMessageParams constructs SDK parameters from canonical messages.
// Shared between Send and SendStreaming.
func buildMessageParams(msgs []lmgo.Message, opts *lmgo.ChatOptions) (anthropic.MessageNewParams, error) {
	system, rest := hoistSystem(msgs, opts)

	messages, err := convertMessages(rest)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	if len(messages) == 0 {
		return anthropic.MessageNewParams{}, lmgo.ErrEmptyConversation
	}

	maxTokens := int64(defaultMaxTokens)
	if opts.MaxTokens != nil {
		maxTokens = int64(*opts.MaxTokens)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}

	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}
	if opts.TopP != nil {
		params.TopP = anthropic.Float(*opts.TopP)
	}
	if len(opts.Stop) > 0 {
		params.StopSequences = opts.Stop
	}
	if system != nil {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: *system}}
	}
	if opts.ThinkingEnabled != nil && *opts.ThinkingEnabled {
		budget := int64(defaultMaxTokens)
		if opts.ThinkingBudget != nil {
			budget = int64(*opts.ThinkingBudget)
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	tools, err := convertTools(opts)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	params.Tools = tools

	choice, err := convertToolChoice(opts.ToolChoice)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}
	if choice != nil {
		params.ToolChoice = *choice
	}

	return params, nil
}

func hoistSystem(msgs []lmgo.Message, opts *lmgo.ChatOptions) (*string, []lmgo.Message) {
	var system *string
	rest := make([]lmgo.Message, 0, len(msgs))

	for _, m := range msgs {
		if t, ok := m.(lmgo.TextMessage); ok && t.Role == lmgo.RoleSystem {
			if system == nil {
				s := t.Text
				system = &s
			}
			continue
		}
		rest = append(rest, m)
	}
	if opts.System != nil {
		system = opts.System
	}
	return system, rest
}

// convertMessages maps canonical messages onto SDK message params, merging
// adjacent same-role content.
func convertMessages(msgs []lmgo.Message) ([]anthropic.MessageParam, error) {
	type pending struct {
		role   string
		blocks []anthropic.ContentBlockParamUnion
	}
	var groups []pending
	seenCalls := make(map[string]bool)

	appendBlock := func(role string, block anthropic.ContentBlockParamUnion) {
		if n := len(groups); n > 0 && groups[n-1].role == role {
			groups[n-1].blocks = append(groups[n-1].blocks, block)
			return
		}
		groups = append(groups, pending{role: role, blocks: []anthropic.ContentBlockParamUnion{block}})
	}

	appendCall := func(call *lmgo.ToolCallMessage) {
		seenCalls[call.ID] = true
		input := call.Arguments
		if len(input) == 0 {
			input = []byte("{}")
		}
		if call.Target == lmgo.ExecutionServer {
			appendBlock("assistant", anthropic.NewServerToolUseBlock(call.ID, input))
			return
		}
		appendBlock("assistant", anthropic.NewToolUseBlock(call.ID, input, call.Name))
	}

	appendResult := func(r *lmgo.ToolCallResultMessage) error {
		if !seenCalls[r.ID] {
			return &lmgo.ValidationError{
				Field:  "messages",
				Value:  r.ID,
				Reason: "tool result references an invocation with no preceding tool call",
				Err:    lmgo.ErrInvalidRequest,
			}
		}
		if r.Target == lmgo.ExecutionServer {
			block, err := serverResultBlock(r)
			if err != nil {
				return err
			}
			// Server tool results replay as assistant content, like the
			// provider originally produced them.
			appendBlock("assistant", block)
			return nil
		}
		appendBlock("user", anthropic.NewToolResultBlock(r.ID, string(r.Result), r.IsError))
		return nil
	}

	for _, m := range msgs {
		switch v := m.(type) {
		case lmgo.TextMessage:
			if v.Thinking {
				appendBlock("assistant", anthropic.NewThinkingBlock(v.Signature, v.Text))
				continue
			}
			role := "user"
			if v.Role == lmgo.RoleAssistant {
				role = "assistant"
			}
			appendBlock(role, anthropic.NewTextBlock(v.Text))

		case lmgo.TextWithCitationsMessage:
			role := "user"
			if v.Role == lmgo.RoleAssistant {
				role = "assistant"
			}
			appendBlock(role, anthropic.NewTextBlock(v.Text))

		case lmgo.ToolCallMessage:
			appendCall(&v)

		case lmgo.ToolCallResultMessage:
			if err := appendResult(&v); err != nil {
				return nil, err
			}

		case lmgo.ToolsCallAggregateMessage:
			if v.Call == nil {
				continue
			}
			appendCall(v.Call)
			for _, r := range v.Results {
				// The wire correlates by the call's id even when the provider
				// echoed a different id on the result.
				rr := *r
				rr.ID = v.Call.ID
				if err := appendResult(&rr); err != nil {
					return nil, err
				}
			}

		case lmgo.UsageMessage, lmgo.TextUpdateMessage, lmgo.ToolCallUpdateMessage:
			// Never encoded.

		default:
			return nil, &lmgo.ValidationError{
				Field:  "messages",
				Reason: fmt.Sprintf("unsupported message type %T", m),
				Err:    lmgo.ErrInvalidRequest,
			}
		}
	}

	result := make([]anthropic.MessageParam, 0, len(groups))
	for _, g := range groups {
		switch g.role {
		case "user":
			result = append(result, anthropic.NewUserMessage(g.blocks...))
		case "assistant":
			result = append(result, anthropic.NewAssistantMessage(g.blocks...))
		}
	}
	return result, nil
}

// serverResultBlock rebuilds a web_search_tool_result block from the stored
// wire payload: a result array on success, an error object otherwise. Only
// web_search exists on the SDK path; convertTools rejects the other server
// tools up front.
func serverResultBlock(r *lmgo.ToolCallResultMessage) (anthropic.ContentBlockParamUnion, error) {
	if r.ToolName != lmgo.ServerToolWebSearch {
		return anthropic.ContentBlockParamUnion{}, &lmgo.ValidationError{
			Field:  "messages",
			Value:  r.ToolName,
			Reason: "only web_search results can be replayed through the SDK client",
			Err:    lmgo.ErrInvalidRequest,
		}
	}

	if code := gjson.GetBytes(r.Result, "error_code"); code.Exists() || r.IsError {
		errorCode := r.ErrorCode
		if errorCode == "" {
			errorCode = code.String()
		}
		return anthropic.NewWebSearchToolResultBlock(anthropic.WebSearchToolRequestErrorParam{
			ErrorCode: anthropic.WebSearchToolRequestErrorErrorCode(errorCode),
		}, r.ID), nil
	}

	var sources []struct {
		URL              string `json:"url"`
		Title            string `json:"title"`
		PageAge          string `json:"page_age"`
		EncryptedContent string `json:"encrypted_content"`
	}
	if err := json.Unmarshal(r.Result, &sources); err != nil {
		return anthropic.ContentBlockParamUnion{}, &lmgo.ValidationError{
			Field:  "messages",
			Value:  r.ID,
			Reason: "web_search result payload is not a result array",
			Err:    err,
		}
	}

	results := make([]anthropic.WebSearchResultBlockParam, len(sources))
	for i, s := range sources {
		results[i] = anthropic.WebSearchResultBlockParam{
			EncryptedContent: s.EncryptedContent,
			Title:            s.Title,
			URL:              s.URL,
			Type:             "web_search_result",
		}
		if s.PageAge != "" {
			results[i].PageAge = anthropic.Opt(s.PageAge)
		}
	}
	return anthropic.NewWebSearchToolResultBlock(results, r.ID), nil
}

// convertTools maps universal function tools and requested server tools to
// SDK tool params. Only web_search has an SDK server-tool param; other
// server tools require the native wire codec.
func convertTools(opts *lmgo.ChatOptions) ([]anthropic.ToolUnionParam, error) {
	if len(opts.Tools) == 0 && len(opts.ServerTools) == 0 {
		return nil, nil
	}

	result := make([]anthropic.ToolUnionParam, 0, len(opts.Tools)+len(opts.ServerTools))
	for i := range opts.Tools {
		result = append(result, convertFunctionTool(&opts.Tools[i]))
	}
	for _, name := range opts.ServerTools {
		if name != lmgo.ServerToolWebSearch {
			return nil, &lmgo.ValidationError{
				Field:  "server_tools",
				Value:  name,
				Reason: "only web_search is supported through the SDK client",
				Err:    lmgo.ErrInvalidRequest,
			}
		}
		result = append(result, anthropic.ToolUnionParam{
			OfWebSearchTool20250305: &anthropic.WebSearchTool20250305Param{},
		})
	}
	return result, nil
}

// convertFunctionTool converts the universal function format to the SDK's
// input_schema shape.
func convertFunctionTool(tool *lmgo.Tool) anthropic.ToolUnionParam {
	schema := anthropic.ToolInputSchemaParam{
		Properties:  tool.Function.Parameters["properties"],
		ExtraFields: make(map[string]any),
	}
	if required, ok := tool.Function.Parameters["required"].([]interface{}); ok {
		schema.Required = make([]string, 0, len(required))
		for _, v := range required {
			if str, ok := v.(string); ok {
				schema.Required = append(schema.Required, str)
			}
		}
	}
	for key, value := range tool.Function.Parameters {
		if key != "type" && key != "properties" && key != "required" {
			schema.ExtraFields[key] = value
		}
	}

	param := anthropic.ToolUnionParamOfTool(schema, tool.Function.Name)
	if tool.Function.Description != "" && param.OfTool != nil {
		param.OfTool.Description = anthropic.String(tool.Function.Description)
	}
	return param
}

func convertToolChoice(tc *lmgo.ToolChoice) (*anthropic.ToolChoiceUnionParam, error) {
	if tc == nil {
		return nil, nil
	}
	switch tc.Mode {
	case lmgo.ToolChoiceModeAuto:
		return &anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}, nil
	case lmgo.ToolChoiceModeRequired:
		return &anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}, nil
	case lmgo.ToolChoiceModeNone:
		none := anthropic.NewToolChoiceNoneParam()
		return &anthropic.ToolChoiceUnionParam{OfNone: &none}, nil
	case lmgo.ToolChoiceModeSpecific:
		if tc.ToolName == nil || *tc.ToolName == "" {
			return nil, &lmgo.ValidationError{
				Field:  "tool_choice",
				Reason: "tool_name required for specific mode",
				Err:    lmgo.ErrInvalidRequest,
			}
		}
		union := anthropic.ToolChoiceParamOfTool(*tc.ToolName)
		return &union, nil
	}
	return nil, nil
}
