package lmgo

import (
	"fmt"
	"log/slog"
)

// Correlator pairs tool invocations with their results so a completed tool
// turn can be replayed as aggregate history units, and normalizes history
// before re-encoding.
type Correlator struct {
	log *slog.Logger
}

// NewCorrelator returns a correlator logging through l. A nil l uses the
// default logger.
func NewCorrelator(l *slog.Logger) *Correlator {
	if l == nil {
		l = slog.Default()
	}
	return &Correlator{log: l}
}

func (c *Correlator) logger() *slog.Logger {
	if c == nil || c.log == nil {
		return slog.Default()
	}
	return c.log
}

// Correlate bundles each ToolCallMessage in msgs with the
// ToolCallResultMessages that answer it, replacing both with a
// ToolsCallAggregateMessage. Matching is by ID; a server tool result whose
// ID matches nothing falls back to the most recent unanswered server call
// with the same tool name, since some providers echo result IDs
// inconsistently. A name-matched result takes on the owning call's ID so
// replayed history references an invocation the provider knows about.
// Other messages pass through in order. Results that match nothing are
// dropped and reported in the returned error list.
func (c *Correlator) Correlate(msgs []Message) ([]Message, []error) {
	var out []Message
	byID := make(map[string]*ToolsCallAggregateMessage)
	var serverCalls []*ToolsCallAggregateMessage
	var errs []error

	for _, m := range msgs {
		switch v := m.(type) {
		case ToolCallMessage:
			call := v
			agg := &ToolsCallAggregateMessage{Call: &call}
			if call.ID != "" {
				byID[call.ID] = agg
			}
			if call.Target == ExecutionServer {
				serverCalls = append(serverCalls, agg)
			}
			out = append(out, agg)

		case ToolCallResultMessage:
			result := v
			agg := byID[result.ID]
			if agg == nil && result.Target == ExecutionServer {
				agg = c.matchServerByName(serverCalls, result)
				if agg != nil && agg.Call != nil {
					result.ID = agg.Call.ID
				}
			}
			if agg == nil {
				errs = append(errs, fmt.Errorf("tool result %q (%s) matches no tool call", result.ID, result.ToolName))
				continue
			}
			agg.Results = append(agg.Results, &result)

		case ToolsCallAggregateMessage:
			// Already correlated; register its call so late results attach.
			agg := v
			if agg.Call != nil && agg.Call.ID != "" {
				byID[agg.Call.ID] = &agg
			}
			out = append(out, &agg)

		default:
			out = append(out, m)
		}
	}

	// Unwrap the working pointers into values for the caller.
	for i, m := range out {
		if agg, ok := m.(*ToolsCallAggregateMessage); ok {
			out[i] = *agg
		}
	}
	return out, errs
}

// matchServerByName matches an ID-less or mismatched server tool result to
// the most recent unanswered server call of the same tool.
func (c *Correlator) matchServerByName(calls []*ToolsCallAggregateMessage, result ToolCallResultMessage) *ToolsCallAggregateMessage {
	for i := len(calls) - 1; i >= 0; i-- {
		agg := calls[i]
		if agg.Call == nil || agg.Call.Name != result.ToolName {
			continue
		}
		if len(agg.Results) > 0 {
			continue
		}
		c.logger().Warn("server tool result matched by name, not id",
			"tool", result.ToolName,
			"result_id", result.ID,
			"call_id", agg.Call.ID)
		return agg
	}
	return nil
}

// NormalizeHistory prepares a conversation for re-encoding: streaming update
// messages and usage messages are dropped, aggregates stay intact, and a
// tool call whose ID was already seen is dropped so the replayed wire never
// carries duplicate invocation IDs.
func (c *Correlator) NormalizeHistory(msgs []Message) []Message {
	seen := make(map[string]bool)
	out := make([]Message, 0, len(msgs))

	callID := func(m Message) string {
		switch v := m.(type) {
		case ToolCallMessage:
			return v.ID
		case ToolsCallAggregateMessage:
			if v.Call != nil {
				return v.Call.ID
			}
		}
		return ""
	}

	for _, m := range msgs {
		if IsUpdate(m) {
			continue
		}
		if _, ok := m.(UsageMessage); ok {
			continue
		}
		if id := callID(m); id != "" {
			if seen[id] {
				c.logger().Warn("dropping duplicate tool call from history", "id", id)
				continue
			}
			seen[id] = true
		}
		out = append(out, m)
	}
	return out
}
