// Package minimax provides the MiniMax provider. MiniMax speaks the
// OpenAI-compatible chat completions wire format, so the client is the
// shared OpenAI adapter pointed at the MiniMax endpoint. What makes the
// provider distinct is its quirks row: it under-calls tools and its
// streaming breaks when tools are enabled, both of which the pipeline
// compensates for.
package minimax

import (
	"github.com/quillhq/chatd/llm"
	"github.com/quillhq/chatd/llm/openai"
)

const defaultBaseURL = "https://api.minimax.io/v1"

// NewClient creates a MiniMax provider client.
func NewClient(apiKey, baseURL, model string) (llm.Provider, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client, err := openai.NewCompatibleClient(llm.ProviderMiniMax, apiKey, baseURL, model)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Factory adapts NewClient to the registry's factory signature.
func Factory(key *llm.ClientKey) (llm.Provider, error) {
	return NewClient(key.APIKey, key.BaseURL, key.Model)
}
