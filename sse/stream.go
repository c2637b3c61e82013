package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tidwall/gjson"
)

// Structural stream errors. A stream without its framing events cannot be
// safely consumed and aborts; anything else malformed is skipped.
var (
	// ErrNoMessageStart reports a stream whose first event is not a valid
	// message_start.
	ErrNoMessageStart = errors.New("sse: stream did not begin with message_start")

	// ErrTruncated reports a stream that ended before message_stop.
	ErrTruncated = errors.New("sse: stream ended before message_stop")
)

// ServerError is an in-band error event from the provider, which terminates
// the stream.
type ServerError struct {
	ErrType string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("sse: provider stream error (%s): %s", e.ErrType, e.Message)
}

// Stream demultiplexes a raw SSE byte stream into a lazy, ordered,
// non-restartable sequence of typed events. Individual malformed events are
// skipped with a logged warning; a missing or malformed message_start or
// message_stop aborts the stream. After message_stop, Next returns io.EOF.
type Stream struct {
	dec     *Decoder
	log     *slog.Logger
	started bool
	stopped bool
	err     error
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithLogger overrides the stream's logger.
func WithLogger(l *slog.Logger) StreamOption {
	return func(s *Stream) { s.log = l }
}

// NewStream wraps r in a typed event stream.
func NewStream(r io.Reader, opts ...StreamOption) *Stream {
	s := &Stream{dec: NewDecoder(r), log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next returns the next typed event. It returns io.EOF after message_stop,
// and a structural error if the stream is unusable.
func (s *Stream) Next() (*Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.stopped {
		return nil, io.EOF
	}

	for {
		raw, err := s.dec.Next()
		if err == io.EOF {
			s.err = ErrTruncated
			return nil, s.err
		}
		if err != nil {
			s.err = err
			return nil, err
		}

		name := raw.Name
		if name == "" {
			name = gjson.GetBytes(raw.Data, "type").String()
		}

		switch EventType(name) {
		case EventMessageStart:
			ev, err := parseMessageStart(raw.Data)
			if err != nil {
				s.err = fmt.Errorf("%w: %v", ErrNoMessageStart, err)
				return nil, s.err
			}
			s.started = true
			return ev, nil

		case EventMessageStop:
			if !s.started {
				s.err = ErrNoMessageStart
				return nil, s.err
			}
			s.stopped = true
			return &Event{Type: EventMessageStop}, nil

		case EventBlockStart, EventBlockDelta, EventBlockStop, EventMessageDelta:
			if !s.started {
				s.err = ErrNoMessageStart
				return nil, s.err
			}
			ev, err := parseBlockScoped(EventType(name), raw.Data)
			if err != nil {
				// Partial-failure tolerance: skip the event, keep the stream.
				s.log.Warn("skipping malformed stream event", "event", name, "error", err)
				continue
			}
			return ev, nil

		case "ping":
			continue

		case "error":
			serr := &ServerError{
				ErrType: gjson.GetBytes(raw.Data, "error.type").String(),
				Message: gjson.GetBytes(raw.Data, "error.message").String(),
			}
			s.err = serr
			return nil, serr

		default:
			// Unknown event types are forward-compatibility noise.
			s.log.Debug("ignoring unknown stream event", "event", name)
			continue
		}
	}
}

func parseMessageStart(data []byte) (*Event, error) {
	var wire struct {
		Message struct {
			ID    string `json:"id"`
			Model string `json:"model"`
			Role  string `json:"role"`
			Usage Usage  `json:"usage"`
		} `json:"message"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	if wire.Message.ID == "" && wire.Message.Model == "" {
		return nil, errors.New("message_start missing message payload")
	}
	return &Event{
		Type: EventMessageStart,
		Message: &MessageStart{
			ID:    wire.Message.ID,
			Model: wire.Message.Model,
			Role:  wire.Message.Role,
			Usage: wire.Message.Usage,
		},
	}, nil
}

func parseBlockScoped(t EventType, data []byte) (*Event, error) {
	switch t {
	case EventBlockStart:
		var wire struct {
			Index        int `json:"index"`
			ContentBlock struct {
				Type      string          `json:"type"`
				ID        string          `json:"id"`
				Name      string          `json:"name"`
				ToolUseID string          `json:"tool_use_id"`
				Text      string          `json:"text"`
				Thinking  string          `json:"thinking"`
				Signature string          `json:"signature"`
				Input     json.RawMessage `json:"input"`
				Content   json.RawMessage `json:"content"`
				Citations []Citation      `json:"citations"`
			} `json:"content_block"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, err
		}
		if wire.ContentBlock.Type == "" {
			return nil, errors.New("content_block_start missing block type")
		}
		return &Event{
			Type:  EventBlockStart,
			Index: wire.Index,
			Block: &BlockStart{
				Kind:      wire.ContentBlock.Type,
				ToolID:    wire.ContentBlock.ID,
				ToolName:  wire.ContentBlock.Name,
				ToolUseID: wire.ContentBlock.ToolUseID,
				Text:      wire.ContentBlock.Text,
				Thinking:  wire.ContentBlock.Thinking,
				Signature: wire.ContentBlock.Signature,
				Input:     wire.ContentBlock.Input,
				Content:   wire.ContentBlock.Content,
				Citations: wire.ContentBlock.Citations,
			},
		}, nil

	case EventBlockDelta:
		var wire struct {
			Index int `json:"index"`
			Delta struct {
				Type        string    `json:"type"`
				Text        string    `json:"text"`
				PartialJSON string    `json:"partial_json"`
				Thinking    string    `json:"thinking"`
				Signature   string    `json:"signature"`
				Citation    *Citation `json:"citation"`
			} `json:"delta"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, err
		}
		if wire.Delta.Type == "" {
			return nil, errors.New("content_block_delta missing delta type")
		}
		return &Event{
			Type:  EventBlockDelta,
			Index: wire.Index,
			Delta: &Delta{
				Kind:        wire.Delta.Type,
				Text:        wire.Delta.Text,
				PartialJSON: wire.Delta.PartialJSON,
				Thinking:    wire.Delta.Thinking,
				Signature:   wire.Delta.Signature,
				Citation:    wire.Delta.Citation,
			},
		}, nil

	case EventBlockStop:
		var wire struct {
			Index int `json:"index"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, err
		}
		return &Event{Type: EventBlockStop, Index: wire.Index}, nil

	case EventMessageDelta:
		var wire struct {
			Delta struct {
				StopReason   string `json:"stop_reason"`
				StopSequence string `json:"stop_sequence"`
			} `json:"delta"`
			Usage *Usage `json:"usage"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, err
		}
		return &Event{
			Type:         EventMessageDelta,
			StopReason:   wire.Delta.StopReason,
			StopSequence: wire.Delta.StopSequence,
			Usage:        wire.Usage,
		}, nil
	}
	return nil, fmt.Errorf("unhandled event type %q", t)
}
