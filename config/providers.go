package config

import (
	"github.com/quillhq/chatd/llm"
	"github.com/quillhq/chatd/pipeline"
)

// LLMProviderConfig maps the loaded configuration onto the provider registry
// settings. Environment variable fallbacks for missing keys are applied by
// the registry itself when it resolves a provider.
func LLMProviderConfig(cfg *Config) *llm.ProviderConfig {
	if cfg == nil {
		return &llm.ProviderConfig{}
	}

	return &llm.ProviderConfig{
		SelectedProvider: llm.ProviderName(cfg.Provider),

		AnthropicAPIKey: cfg.Anthropic.APIKey,
		AnthropicModel:  cfg.Anthropic.Model,
		OllamaHost:      cfg.Ollama.Host,
		OllamaModel:     cfg.Ollama.Model,
		OpenAIAPIKey:    cfg.OpenAI.APIKey,
		OpenAIBaseURL:   cfg.OpenAI.BaseURL,
		OpenAIModel:     cfg.OpenAI.Model,
		OpenAIOrg:       cfg.OpenAI.Organization,
		MiniMaxAPIKey:   cfg.MiniMax.APIKey,
		MiniMaxBaseURL:  cfg.MiniMax.BaseURL,
		MiniMaxModel:    cfg.MiniMax.Model,
	}
}

// ChatPipelineConfig maps the loaded configuration onto pipeline settings.
func ChatPipelineConfig(cfg *Config) pipeline.Config {
	if cfg == nil {
		return pipeline.Config{EnableStreaming: true}
	}

	return pipeline.Config{
		EnableStreaming:       !cfg.Pipeline.DisableStreaming,
		EnableMetrics:         cfg.Pipeline.EnableMetrics,
		MaxToolCallIterations: cfg.Pipeline.MaxToolCallIterations,
		RequestTimeout:        cfg.Pipeline.RequestTimeoutDuration(),
	}
}
