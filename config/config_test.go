package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/achieveai/lmgo"
)

func TestParse(t *testing.T) {
	t.Setenv("TEST_LMGO_KEY", "sk-from-env")

	cfg, err := Parse([]byte(`
provider: anthropic
model: claude-haiku-4-5-20251001
api_key_env: TEST_LMGO_KEY
max_tokens: 512
temperature: 0.2
system: Be terse.
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.ProviderID() != lmgo.ProviderAnthropic {
		t.Errorf("provider = %q", cfg.Provider)
	}
	if cfg.APIKey() != "sk-from-env" {
		t.Errorf("api key = %q", cfg.APIKey())
	}

	opts := cfg.Options()
	if opts.Model != "claude-haiku-4-5-20251001" {
		t.Errorf("model = %q", opts.Model)
	}
	if opts.MaxTokens == nil || *opts.MaxTokens != 512 {
		t.Errorf("max_tokens = %v", opts.MaxTokens)
	}
	if opts.Temperature == nil || *opts.Temperature != 0.2 {
		t.Errorf("temperature = %v", opts.Temperature)
	}
	if opts.System == nil || *opts.System != "Be terse." {
		t.Errorf("system = %v", opts.System)
	}
}

func TestParseDefaultKeyEnv(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-conventional")

	cfg, err := Parse([]byte("provider: openai\nmodel: gpt-4o-mini\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.APIKey() != "sk-conventional" {
		t.Errorf("api key = %q, want conventional env var", cfg.APIKey())
	}
}

func TestParseMissingFields(t *testing.T) {
	if _, err := Parse([]byte("model: gpt-4o-mini\n")); !errors.Is(err, lmgo.ErrInvalidRequest) {
		t.Errorf("missing provider: got %v", err)
	}
	if _, err := Parse([]byte("provider: openai\n")); !errors.Is(err, lmgo.ErrInvalidModel) {
		t.Errorf("missing model: got %v", err)
	}
	if _, err := Parse([]byte("provider: [")); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lmgo.yaml")
	if err := os.WriteFile(path, []byte("provider: lorem\nmodel: lorem-fast\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "lorem-fast" {
		t.Errorf("model = %q", cfg.Model)
	}

	if _, err := Load(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("LMGO_PROVIDER", "")
	t.Setenv("LMGO_MODEL", "")

	cfg := FromEnv()
	if cfg.ProviderID() != lmgo.ProviderLorem {
		t.Errorf("provider = %q, want lorem fallback", cfg.Provider)
	}
	if cfg.Model != "lorem-fast" {
		t.Errorf("model = %q", cfg.Model)
	}
}
