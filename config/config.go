// Package config loads client settings from YAML files and the
// environment. A settings file selects the provider and model; API keys
// come from the environment (optionally a .env file) so they stay out of
// checked-in configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/achieveai/lmgo"
)

// Config describes one provider endpoint and the default request options
// sent through it.
type Config struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the key. Empty
	// selects the provider's conventional variable.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	BaseURL   string `yaml:"base_url,omitempty"`
	UseSDK    bool   `yaml:"use_sdk,omitempty"`

	MaxTokens   *int     `yaml:"max_tokens,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	System      *string  `yaml:"system,omitempty"`

	// apiKey is resolved from the environment at load time.
	apiKey string
}

// conventional API key variables per provider
var defaultKeyEnv = map[lmgo.ProviderID]string{
	lmgo.ProviderAnthropic: "ANTHROPIC_API_KEY",
	lmgo.ProviderOpenAI:    "OPENAI_API_KEY",
}

// LoadEnv walks up from the working directory and loads the first .env
// file found. Missing files are not an error; system environment
// variables still apply.
func LoadEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// Load reads a YAML settings file and resolves the API key from the
// environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML settings and resolves the API key from the
// environment.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.apiKey = os.Getenv(cfg.keyEnv())
	return &cfg, nil
}

// FromEnv builds a Config from LMGO_PROVIDER and LMGO_MODEL, for programs
// that run without a settings file. The lorem provider is the fallback so
// examples work with no environment at all.
func FromEnv() *Config {
	cfg := &Config{
		Provider: os.Getenv("LMGO_PROVIDER"),
		Model:    os.Getenv("LMGO_MODEL"),
		BaseURL:  os.Getenv("LMGO_BASE_URL"),
	}
	if cfg.Provider == "" {
		cfg.Provider = string(lmgo.ProviderLorem)
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel(cfg.ProviderID())
	}
	cfg.apiKey = os.Getenv(cfg.keyEnv())
	return cfg
}

func defaultModel(p lmgo.ProviderID) string {
	switch p {
	case lmgo.ProviderAnthropic:
		return "claude-haiku-4-5-20251001"
	case lmgo.ProviderOpenAI:
		return "gpt-4o-mini"
	default:
		return "lorem-fast"
	}
}

func (c *Config) validate() error {
	if c.Provider == "" {
		return &lmgo.ValidationError{
			Field:  "provider",
			Reason: "provider is required",
			Err:    lmgo.ErrInvalidRequest,
		}
	}
	if c.Model == "" {
		return &lmgo.ValidationError{
			Field:  "model",
			Reason: "model is required",
			Err:    lmgo.ErrInvalidModel,
		}
	}
	return nil
}

func (c *Config) keyEnv() string {
	if c.APIKeyEnv != "" {
		return c.APIKeyEnv
	}
	return defaultKeyEnv[c.ProviderID()]
}

// ProviderID returns the typed provider identifier.
func (c *Config) ProviderID() lmgo.ProviderID {
	return lmgo.ProviderID(c.Provider)
}

// APIKey returns the key resolved at load time.
func (c *Config) APIKey() string {
	return c.apiKey
}

// Options builds the request options this configuration implies.
func (c *Config) Options() *lmgo.ChatOptions {
	return &lmgo.ChatOptions{
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		System:      c.System,
	}
}
