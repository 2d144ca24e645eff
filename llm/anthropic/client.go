package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"

	"github.com/quillhq/chatd/llm"
)

// Anthropic requires max_tokens on every request; this is the ceiling used
// when the caller doesn't set one.
const defaultMaxTokens = 4096

const defaultRetryAfter = 60 * time.Second

// Client implements the llm.Provider interface for Anthropic's API.
type Client struct {
	client *anthropic.Client
	model  string
	logger zerolog.Logger
}

// NewClient creates a new Anthropic Client with the given API key.
func NewClient(apiKey, model string, logger zerolog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, llm.NewConfigurationError("api key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{
		client: &client,
		model:  model,
		logger: logger,
	}, nil
}

// Factory adapts NewClient to the registry's factory signature.
func Factory(logger zerolog.Logger) llm.FactoryFunc {
	return func(key *llm.ClientKey) (llm.Provider, error) {
		client, err := NewClient(key.APIKey, key.Model, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Name implements llm.Provider.Name.
func (c *Client) Name() llm.ProviderName {
	return llm.ProviderAnthropic
}

// Available implements llm.Provider.Available.
func (c *Client) Available() bool {
	return c.client != nil
}

// Complete implements llm.Provider.Complete.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (*llm.Response, error) {
	params, model, err := c.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}

	if opts.Stream {
		stream := c.client.Messages.NewStreaming(ctx, *params)
		return newStreamingResponse(model, stream, c.logger), nil
	}

	message, err := c.client.Messages.New(ctx, *params)
	if err != nil {
		return nil, convertError(err)
	}

	resp := &llm.Response{}
	for _, blockUnion := range message.Content {
		switch block := blockUnion.AsAny().(type) {
		case anthropic.TextBlock:
			resp.Text += block.Text
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, toolCallFromUseBlock(block.ID, block.Name, block.Input))
		}
	}

	// Log prompt cache information for tracking efficacy
	usage := message.Usage
	if usage.CacheCreationInputTokens > 0 || usage.CacheReadInputTokens > 0 {
		cacheEfficiency := float64(0)
		if usage.InputTokens > 0 {
			cacheEfficiency = float64(usage.CacheReadInputTokens) / float64(usage.InputTokens) * 100
		}
		c.logger.Debug().
			Int64("input_tokens", usage.InputTokens).
			Int64("cache_creation_tokens", usage.CacheCreationInputTokens).
			Int64("cache_read_tokens", usage.CacheReadInputTokens).
			Float64("cache_efficiency", cacheEfficiency).
			Msg("Prompt cache stats")
	}

	return llm.NormalizeResponse(resp, llm.ProviderAnthropic, model), nil
}

// buildParams converts messages and options into Anthropic API params.
func (c *Client) buildParams(messages []llm.Message, opts llm.CompletionOptions) (*anthropic.MessageNewParams, string, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, "", llm.NewConfigurationError("model is required")
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := &anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  toMessageParams(messages),
		System:    buildSystemBlocks(opts.SystemPrompt),
	}

	if opts.EnableTools && len(opts.Tools) > 0 {
		params.Tools = toToolUnionParams(opts.Tools)
		if opts.ToolChoice != nil {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{
				OfTool: &anthropic.ToolChoiceToolParam{Name: opts.ToolChoice.Function.Name},
			}
		}
	}

	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}

	return params, model, nil
}

// buildSystemBlocks creates system text blocks with prompt caching enabled.
// Placing cache_control on the system block caches the full prefix: tools,
// system, and messages up to and including the designated block, so tools
// are cached along with the system prompt.
func buildSystemBlocks(systemPrompt string) []anthropic.TextBlockParam {
	if systemPrompt == "" {
		return nil
	}
	return []anthropic.TextBlockParam{
		{Text: systemPrompt, CacheControl: anthropic.NewCacheControlEphemeralParam()},
	}
}

// convertError converts Anthropic API errors to llm.Error types.
func convertError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return llm.NewProviderError("anthropic API error", err)
	}

	switch apiErr.StatusCode {
	case http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		return llm.NewRateLimitError("anthropic rate limit", &retryAfter, err)
	case http.StatusRequestEntityTooLarge:
		return llm.NewRequestTooLargeError("anthropic request too large", err)
	case http.StatusBadRequest:
		return llm.NewInvalidRequestError("anthropic invalid request", err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return &llm.Error{
			Type:        llm.ErrorTypeConfiguration,
			Message:     "anthropic authentication failed",
			StatusCode:  apiErr.StatusCode,
			ProviderErr: err,
		}
	default:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("anthropic API error (status %d)", apiErr.StatusCode),
			Retryable:   apiErr.StatusCode >= http.StatusInternalServerError,
			StatusCode:  apiErr.StatusCode,
			ProviderErr: err,
		}
	}
}
