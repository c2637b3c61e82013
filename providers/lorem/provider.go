// Package lorem is a mock client that generates lorem ipsum responses.
// Used for testing and development without requiring real API keys.
package lorem

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	loremgen "github.com/bozaro/golorem"
	"github.com/google/uuid"

	"github.com/achieveai/lmgo"
)

const defaultMaxWords = 60

// Client implements lmgo.Client with generated text. Model names must start
// with "lorem-"; the suffix controls streaming speed (lorem-fast,
// lorem-medium, lorem-slow).
type Client struct {
	generator *loremgen.Lorem
}

// New creates a lorem client.
func New() *Client {
	return &Client{generator: loremgen.New()}
}

// SupportsModel returns true if the model name starts with "lorem-".
func (c *Client) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "lorem-")
}

func (c *Client) validate(msgs []lmgo.Message, opts *lmgo.ChatOptions) error {
	if len(msgs) == 0 {
		return lmgo.ErrEmptyConversation
	}
	if opts == nil {
		return fmt.Errorf("%w: options are required", lmgo.ErrInvalidRequest)
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if !c.SupportsModel(opts.Model) {
		return &lmgo.ValidationError{
			Field:  "model",
			Value:  opts.Model,
			Reason: "lorem models must start with 'lorem-'",
			Err:    lmgo.ErrInvalidModel,
		}
	}
	return nil
}

// streamDelay returns the delay between words based on the model name.
func streamDelay(model string) time.Duration {
	switch {
	case strings.Contains(model, "slow"):
		return 500 * time.Millisecond
	case strings.Contains(model, "fast"):
		return 33 * time.Millisecond
	default:
		return 100 * time.Millisecond
	}
}

func wordBudget(opts *lmgo.ChatOptions) int {
	if opts.MaxTokens != nil && *opts.MaxTokens < defaultMaxWords {
		return *opts.MaxTokens
	}
	return defaultMaxWords
}

// text generates roughly n words of lorem ipsum.
func (c *Client) text(n int) string {
	var fields []string
	for len(fields) < n {
		fields = append(fields, strings.Fields(c.generator.Sentence(5, 15))...)
	}
	return strings.Join(fields[:n], " ")
}

// turn builds the canonical messages of one fake turn: optional thinking,
// text, an optional tool call when tools were offered, then usage.
func (c *Client) turn(msgs []lmgo.Message, opts *lmgo.ChatOptions) []lmgo.Message {
	words := wordBudget(opts)
	var out []lmgo.Message

	if opts.ThinkingEnabled != nil && *opts.ThinkingEnabled {
		out = append(out, lmgo.TextMessage{
			Role:     lmgo.RoleAssistant,
			Text:     c.generator.Sentence(5, 10),
			Thinking: true,
		})
	}

	out = append(out, lmgo.TextMessage{
		Role: lmgo.RoleAssistant,
		Text: c.text(words),
	})

	if len(opts.Tools) > 0 {
		args, _ := json.Marshal(map[string]string{"query": c.generator.Word(3, 9)})
		out = append(out, lmgo.ToolCallMessage{
			ID:        "toolu_" + uuid.NewString(),
			Name:      opts.Tools[0].Function.Name,
			Arguments: args,
			Target:    lmgo.ExecutionLocal,
		})
	}

	prompt := 0
	for _, m := range msgs {
		if t, ok := m.(lmgo.TextMessage); ok {
			prompt += len(strings.Fields(t.Text))
		}
	}
	out = append(out, lmgo.UsageMessage{PromptTokens: prompt, CompletionTokens: words})
	return out
}

// Send implements lmgo.Client.
func (c *Client) Send(ctx context.Context, msgs []lmgo.Message, opts *lmgo.ChatOptions) ([]lmgo.Message, error) {
	if err := c.validate(msgs, opts); err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return c.turn(msgs, opts), nil
}

// SendStreaming implements lmgo.Client. Text arrives word by word as update
// messages before each finalized message.
func (c *Client) SendStreaming(ctx context.Context, msgs []lmgo.Message, opts *lmgo.ChatOptions) (<-chan lmgo.StreamItem, error) {
	if err := c.validate(msgs, opts); err != nil {
		return nil, err
	}

	delay := streamDelay(opts.Model)
	final := c.turn(msgs, opts)
	ch := make(chan lmgo.StreamItem, 10)

	go func() {
		defer close(ch)
		for _, m := range final {
			text, ok := m.(lmgo.TextMessage)
			if ok {
				for _, word := range strings.Fields(text.Text) {
					select {
					case ch <- lmgo.StreamItem{Message: lmgo.TextUpdateMessage{Delta: word + " ", Thinking: text.Thinking}}:
					case <-ctx.Done():
						return
					}
					select {
					case <-time.After(delay):
					case <-ctx.Done():
						return
					}
				}
			}
			select {
			case ch <- lmgo.StreamItem{Message: m}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
