package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/quillhq/chatd/llm"
)

// OpenAI API errors don't directly expose retry-after headers
// We'll use a default retry after duration for rate limits
const defaultRetryAfter = 60 * time.Second

// Client implements the llm.Provider interface for OpenAI's API and for
// OpenAI-compatible endpoints reachable via a custom base URL.
type Client struct {
	client *openai.Client
	model  string // Default model to use if not specified in options
	name   llm.ProviderName
}

// NewClient creates a new OpenAI Client.
// If apiKey is empty, it will return an error.
// If baseURL is empty, it will use the default OpenAI API endpoint.
func NewClient(apiKey, baseURL, model, organization string) (*Client, error) {
	return newClient(apiKey, baseURL, model, organization, llm.ProviderOpenAI)
}

// NewCompatibleClient creates a Client for an OpenAI-compatible endpoint
// that identifies itself under a different provider name. baseURL is
// required since there is no sensible default for a third-party endpoint.
func NewCompatibleClient(name llm.ProviderName, apiKey, baseURL, model string) (*Client, error) {
	if baseURL == "" {
		return nil, llm.NewConfigurationError("base URL is required for " + string(name))
	}
	return newClient(apiKey, baseURL, model, "", name)
}

func newClient(apiKey, baseURL, model, organization string, name llm.ProviderName) (*Client, error) {
	if apiKey == "" {
		return nil, llm.NewConfigurationError("api key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
		name:   name,
	}, nil
}

// Factory adapts NewClient to the registry's factory signature.
func Factory(key *llm.ClientKey) (llm.Provider, error) {
	client, err := NewClient(key.APIKey, key.BaseURL, key.Model, key.Organization)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Name implements llm.Provider.Name.
func (c *Client) Name() llm.ProviderName {
	return c.name
}

// Available implements llm.Provider.Available.
func (c *Client) Available() bool {
	return c.client != nil
}

// Complete implements llm.Provider.Complete.
func (c *Client) Complete(ctx context.Context, messages []llm.Message, opts llm.CompletionOptions) (*llm.Response, error) {
	chatReq, model, err := c.buildRequest(messages, opts)
	if err != nil {
		return nil, err
	}

	if opts.Stream {
		chatReq.Stream = true
		stream, err := c.client.CreateChatCompletionStream(ctx, *chatReq)
		if err != nil {
			return nil, convertError(c.name, err)
		}
		return newStreamingResponse(c.name, model, stream), nil
	}

	chatResp, err := c.client.CreateChatCompletion(ctx, *chatReq)
	if err != nil {
		return nil, convertError(c.name, err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, llm.NewProviderError(fmt.Sprintf("%s: no choices in response", c.name), nil)
	}

	choice := chatResp.Choices[0]
	resp := &llm.Response{
		Text:      choice.Message.Content,
		ToolCalls: fromWireToolCalls(choice.Message.ToolCalls),
	}
	return llm.NormalizeResponse(resp, c.name, model), nil
}

// buildRequest converts messages and options into the wire request.
func (c *Client) buildRequest(messages []llm.Message, opts llm.CompletionOptions) (*openai.ChatCompletionRequest, string, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, "", llm.NewConfigurationError("model is required")
	}

	wireMsgs := toWireMessages(messages)
	if opts.SystemPrompt != "" {
		systemMsg := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemPrompt,
		}
		wireMsgs = append([]openai.ChatCompletionMessage{systemMsg}, wireMsgs...)
	}

	chatReq := &openai.ChatCompletionRequest{
		Model:    model,
		Messages: wireMsgs,
	}

	if opts.EnableTools && len(opts.Tools) > 0 {
		chatReq.Tools = toWireTools(opts.Tools)
		if opts.ToolChoice != nil {
			chatReq.ToolChoice = openai.ToolChoice{
				Type:     openai.ToolTypeFunction,
				Function: openai.ToolFunction{Name: opts.ToolChoice.Function.Name},
			}
		} else {
			chatReq.ToolChoice = "auto"
		}
	}

	if opts.MaxTokens > 0 {
		chatReq.MaxTokens = int(opts.MaxTokens)
	}
	if opts.Temperature != nil {
		chatReq.Temperature = float32(*opts.Temperature)
	}

	return chatReq, model, nil
}

// convertError converts OpenAI API errors to llm.Error types.
func convertError(name llm.ProviderName, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return llm.NewProviderError(fmt.Sprintf("%s API error", name), err)
	}

	switch apiErr.HTTPStatusCode {
	case http.StatusTooManyRequests:
		retryAfter := defaultRetryAfter
		return llm.NewRateLimitError(
			fmt.Sprintf("%s rate limit: %s", name, apiErr.Message),
			&retryAfter,
			err,
		)
	case http.StatusRequestEntityTooLarge:
		return llm.NewRequestTooLargeError(
			fmt.Sprintf("%s request too large: %s", name, apiErr.Message),
			err,
		)
	case http.StatusBadRequest:
		return &llm.Error{
			Type:        llm.ErrorTypeInvalidRequest,
			Message:     fmt.Sprintf("%s invalid request: %s", name, apiErr.Message),
			Retryable:   false,
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &llm.Error{
			Type:        llm.ErrorTypeConfiguration,
			Message:     fmt.Sprintf("%s authentication failed: %s", name, apiErr.Message),
			Retryable:   false,
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		// Server errors - potentially retryable
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("%s server error: %s", name, apiErr.Message),
			Retryable:   true,
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	default:
		return &llm.Error{
			Type:        llm.ErrorTypeProvider,
			Message:     fmt.Sprintf("%s API error: %s", name, apiErr.Message),
			Retryable:   false,
			StatusCode:  apiErr.HTTPStatusCode,
			ProviderErr: err,
		}
	}
}
