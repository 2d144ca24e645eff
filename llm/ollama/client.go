package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/quillhq/chatd/llm"
)

// Client implements the llm.Provider interface for Ollama's API.
type Client struct {
	client *api.Client
	model  string // Default model to use if not specified in options
}

// NewClient creates a new Ollama Client.
// If host is empty, it will use the default from environment (OLLAMA_HOST
// or http://localhost:11434).
func NewClient(host, model string) (*Client, error) {
	var client *api.Client
	var err error

	if host != "" {
		baseURL, err := parseHost(host)
		if err != nil {
			return nil, fmt.Errorf("invalid host: %w", err)
		}
		client = api.NewClient(baseURL, &http.Client{})
	} else {
		client, err = api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
	}

	return &Client{
		client: client,
		model:  model,
	}, nil
}

// Factory adapts NewClient to the registry's factory signature.
func Factory(key *llm.ClientKey) (llm.Provider, error) {
	client, err := NewClient(key.Host, key.Model)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// parseHost parses a host string into a URL.
func parseHost(host string) (*url.URL, error) {
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
}

// Name implements llm.Provider.Name.
func (c *Client) Name() llm.ProviderName {
	return llm.ProviderOllama
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
		return newStreamingResponse(c.client, chatReq, model), nil
	}

	var text strings.Builder
	var toolCalls []api.ToolCall
	err = c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		text.WriteString(resp.Message.Content)
		toolCalls = append(toolCalls, resp.Message.ToolCalls...)
		return nil
	})
	if err != nil {
		return nil, llm.NewProviderError("ollama chat request failed", err)
	}

	resp := &llm.Response{
		Text:      text.String(),
		ToolCalls: fromWireToolCalls(toolCalls),
	}
	return llm.NormalizeResponse(resp, llm.ProviderOllama, model), nil
}

// buildRequest converts messages and options into the Ollama request shape.
func (c *Client) buildRequest(messages []llm.Message, opts llm.CompletionOptions) (*api.ChatRequest, string, error) {
	model := opts.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return nil, "", llm.NewConfigurationError("model is required")
	}

	wireMsgs := toWireMessages(messages)
	if opts.SystemPrompt != "" {
		systemMsg := api.Message{
			Role:    "system",
			Content: opts.SystemPrompt,
		}
		wireMsgs = append([]api.Message{systemMsg}, wireMsgs...)
	}

	// Local models lose track of what their tools already did; a compact
	// outcome digest in the conversation keeps follow-ups grounded.
	if len(opts.ToolExecutionStatus) > 0 {
		wireMsgs = append(wireMsgs, api.Message{
			Role:    "system",
			Content: renderToolStatus(opts.ToolExecutionStatus),
		})
	}

	chatReq := &api.ChatRequest{
		Model:    model,
		Messages: wireMsgs,
		Stream:   new(bool), // false unless the caller streams
		Options:  make(map[string]interface{}),
	}

	if opts.EnableTools && len(opts.Tools) > 0 {
		chatReq.Tools = toWireTools(opts.Tools)
	}
	if opts.MaxTokens > 0 {
		chatReq.Options["num_predict"] = int(opts.MaxTokens)
	}
	if opts.Temperature != nil {
		chatReq.Options["temperature"] = *opts.Temperature
	}

	return chatReq, model, nil
}

// renderToolStatus formats execution outcomes for the model.
func renderToolStatus(statuses []llm.ToolStatus) string {
	var b strings.Builder
	b.WriteString("Tool execution results from this turn:\n")
	for _, st := range statuses {
		outcome := "succeeded"
		if !st.Success {
			outcome = "failed: " + st.Error
		}
		fmt.Fprintf(&b, "- %s %s (%dms)\n", st.Name, outcome, st.Duration)
	}
	b.WriteString("Use these results to answer. Do not repeat identical tool calls.")
	return b.String()
}
