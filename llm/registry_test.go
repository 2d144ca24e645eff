package llm

import (
	"context"
	"testing"
)

func TestRegistry_SelectedProvider(t *testing.T) {
	registry := NewRegistry(&ProviderConfig{SelectedProvider: ProviderAnthropic})
	name, err := registry.SelectedProvider()
	if err != nil {
		t.Fatalf("Failed to get selected provider: %v", err)
	}
	if name != ProviderAnthropic {
		t.Errorf("Expected provider 'anthropic', got '%s'", name)
	}
}

func TestRegistry_SelectedProvider_Unset(t *testing.T) {
	registry := NewRegistry(&ProviderConfig{})
	if _, err := registry.SelectedProvider(); !IsConfigurationError(err) {
		t.Errorf("Expected configuration error when no provider is selected, got %v", err)
	}
}

func TestRegistry_SelectedProvider_Unknown(t *testing.T) {
	registry := NewRegistry(&ProviderConfig{SelectedProvider: "grok"})
	if _, err := registry.SelectedProvider(); !IsConfigurationError(err) {
		t.Errorf("Expected configuration error for unknown provider, got %v", err)
	}
}

func TestRegistry_DefaultModel(t *testing.T) {
	registry := NewRegistry(&ProviderConfig{AnthropicModel: "claude-sonnet-4-20250514"})
	model, err := registry.DefaultModel(ProviderAnthropic)
	if err != nil {
		t.Fatalf("Failed to get default model: %v", err)
	}
	if model != "claude-sonnet-4-20250514" {
		t.Errorf("Expected configured model, got '%s'", model)
	}
}

func TestRegistry_DefaultModel_NoHardcodedFallback(t *testing.T) {
	registry := NewRegistry(&ProviderConfig{})
	if _, err := registry.DefaultModel(ProviderAnthropic); !IsConfigurationError(err) {
		t.Errorf("Expected configuration error when no model is configured, got %v", err)
	}
}

func TestRegistry_DefaultModel_EnvFallback(t *testing.T) {
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	registry := NewRegistry(&ProviderConfig{})
	model, err := registry.DefaultModel(ProviderOpenAI)
	if err != nil {
		t.Fatalf("Failed to get default model: %v", err)
	}
	if model != "gpt-4o-mini" {
		t.Errorf("Expected model from environment, got '%s'", model)
	}
}

func TestRegistry_IsConfigured(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	registry := NewRegistry(&ProviderConfig{})
	if registry.IsConfigured(ProviderAnthropic) {
		t.Error("anthropic should not be configured without API key")
	}
	if registry.IsConfigured(ProviderOpenAI) {
		t.Error("openai should not be configured without API key")
	}
	// Ollama needs no credentials
	if !registry.IsConfigured(ProviderOllama) {
		t.Error("ollama should always be configured")
	}

	registry.UpdateConfig(&ProviderConfig{AnthropicAPIKey: "test-key"})
	if !registry.IsConfigured(ProviderAnthropic) {
		t.Error("anthropic should be configured with API key")
	}
}

func TestRegistry_ResolveClientKey_ModelOverride(t *testing.T) {
	registry := NewRegistry(&ProviderConfig{
		AnthropicAPIKey: "test-key",
		AnthropicModel:  "claude-haiku-4-5",
	})

	key, err := registry.ResolveClientKey(ProviderAnthropic, "claude-sonnet-4-20250514")
	if err != nil {
		t.Fatalf("Failed to resolve client key: %v", err)
	}
	if key.Model != "claude-sonnet-4-20250514" {
		t.Errorf("Expected override model, got '%s'", key.Model)
	}

	key, err = registry.ResolveClientKey(ProviderAnthropic, "")
	if err != nil {
		t.Fatalf("Failed to resolve client key: %v", err)
	}
	if key.Model != "claude-haiku-4-5" {
		t.Errorf("Expected configured default model, got '%s'", key.Model)
	}
}

func TestRegistry_ResolveClientKey_MiniMaxDefaults(t *testing.T) {
	registry := NewRegistry(&ProviderConfig{MiniMaxAPIKey: "test-key"})
	key, err := registry.ResolveClientKey(ProviderMiniMax, "MiniMax-M2")
	if err != nil {
		t.Fatalf("Failed to resolve client key: %v", err)
	}
	if key.BaseURL != "https://api.minimax.io/v1" {
		t.Errorf("Expected default MiniMax base URL, got '%s'", key.BaseURL)
	}
}

func TestRegistry_ProviderFor(t *testing.T) {
	registry := NewRegistry(&ProviderConfig{OllamaHost: "http://localhost:11434", OllamaModel: "llama3.1:8b"})

	// No factory registered yet
	if _, err := registry.ProviderFor(ModelRef{Provider: ProviderOllama, ModelID: "llama3.1:8b"}); !IsConfigurationError(err) {
		t.Errorf("Expected configuration error without a factory, got %v", err)
	}

	registry.RegisterFactory(ProviderOllama, func(key *ClientKey) (Provider, error) {
		return &staticProvider{name: key.Provider}, nil
	})

	provider, err := registry.ProviderFor(ModelRef{Provider: ProviderOllama, ModelID: "llama3.1:8b"})
	if err != nil {
		t.Fatalf("Failed to build provider: %v", err)
	}
	if provider.Name() != ProviderOllama {
		t.Errorf("Expected provider 'ollama', got '%s'", provider.Name())
	}
}

type staticProvider struct {
	name ProviderName
}

func (p *staticProvider) Name() ProviderName { return p.name }
func (p *staticProvider) Available() bool    { return true }
func (p *staticProvider) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (*Response, error) {
	return &Response{Text: "ok", Provider: p.name}, nil
}
