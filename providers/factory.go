// Package providers constructs ready-to-use clients for the supported
// provider dialects.
package providers

import (
	"fmt"
	"log/slog"

	"github.com/achieveai/lmgo"
	"github.com/achieveai/lmgo/providers/anthropic"
	"github.com/achieveai/lmgo/providers/anthropicsdk"
	"github.com/achieveai/lmgo/providers/lorem"
	"github.com/achieveai/lmgo/providers/openai"
)

// Config selects and parameterizes a provider client.
type Config struct {
	// Provider selects the dialect.
	Provider lmgo.ProviderID

	// APIKey authenticates with the provider. Unused for lorem.
	APIKey string

	// BaseURL overrides the provider's default endpoint. Any OpenAI-style
	// aggregator (OpenRouter, vLLM, Together) works through the openai
	// provider with its BaseURL pointed at the aggregator.
	BaseURL string

	// UseSDK routes anthropic traffic through the official SDK client
	// instead of the wire codec.
	UseSDK bool

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// New builds a client for the configured provider.
func New(cfg Config) (lmgo.Client, error) {
	var clientOpts []lmgo.ClientOption
	if cfg.Logger != nil {
		clientOpts = append(clientOpts, lmgo.WithClientLogger(cfg.Logger))
	}

	switch cfg.Provider {
	case lmgo.ProviderAnthropic:
		if cfg.UseSDK {
			var sdkOpts []anthropicsdk.Option
			if cfg.BaseURL != "" {
				sdkOpts = append(sdkOpts, anthropicsdk.WithBaseURL(cfg.BaseURL))
			}
			if cfg.Logger != nil {
				sdkOpts = append(sdkOpts, anthropicsdk.WithLogger(cfg.Logger))
			}
			return anthropicsdk.New(cfg.APIKey, sdkOpts...)
		}
		var codecOpts []anthropic.Option
		if cfg.BaseURL != "" {
			codecOpts = append(codecOpts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		codec, err := anthropic.New(cfg.APIKey, codecOpts...)
		if err != nil {
			return nil, err
		}
		return lmgo.NewChatClient(codec, clientOpts...), nil

	case lmgo.ProviderOpenAI:
		var codecOpts []openai.Option
		if cfg.BaseURL != "" {
			codecOpts = append(codecOpts, openai.WithBaseURL(cfg.BaseURL))
		}
		codec, err := openai.New(cfg.APIKey, codecOpts...)
		if err != nil {
			return nil, err
		}
		return lmgo.NewChatClient(codec, clientOpts...), nil

	case lmgo.ProviderLorem:
		return lorem.New(), nil
	}

	return nil, fmt.Errorf("%w: unknown provider %q", lmgo.ErrInvalidRequest, cfg.Provider)
}
