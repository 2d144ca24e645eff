// Package pipeline orchestrates chat completions: model selection,
// message preparation, streaming strategy, and the bounded tool-calling
// loop. Providers, tools, and storage are injected per instance; nothing
// in here is a process-wide singleton.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quillhq/chatd/llm"
	"github.com/quillhq/chatd/tools"
)

// ChatRequest is one chat turn handed to the pipeline. Messages is the
// full conversation history including the new user message; the pipeline
// never mutates it.
type ChatRequest struct {
	ConversationID string
	Messages       []llm.Message

	// Model optionally names the model, either bare or as
	// "provider:model". Empty means use the configured default.
	Model string

	// Stream is the explicit streaming preference; nil defers to format
	// and configuration.
	Stream *bool

	// Format is the declared response format; "stream" opts into
	// streaming.
	Format string

	// EnableTools can force tools off for this request; nil means tools
	// are on whenever any are registered.
	EnableTools *bool

	SystemPrompt string

	// Context is retrieved note content to ground the answer in.
	Context string

	MaxTokens   int64
	Temperature *float64

	// Callback receives streaming output. Setting it forces client
	// streaming on.
	Callback StreamCallback
}

// ChatResult is the completed pipeline output.
type ChatResult struct {
	Text       string
	Thinking   string
	Provider   llm.ProviderName
	Model      string
	Iterations int
	ToolCalls  int
	Streamed   bool
}

// Pipeline executes chat requests end to end.
type Pipeline struct {
	config    Config
	providers *llm.Registry
	tools     *tools.Registry
	selector  *ModelSelector
	executor  *ToolExecutor
	metrics   *Metrics
	logger    zerolog.Logger
}

// New creates a Pipeline. storage may be nil to skip execution recording.
func New(cfg Config, providers *llm.Registry, toolRegistry *tools.Registry, storage ChatStorage, logger zerolog.Logger) *Pipeline {
	cfg = cfg.withDefaults()
	logger = logger.With().Str("component", "pipeline").Logger()
	metrics := newMetrics(cfg.EnableMetrics)

	return &Pipeline{
		config:    cfg,
		providers: providers,
		tools:     toolRegistry,
		selector:  NewModelSelector(providers, logger),
		executor:  NewToolExecutor(toolRegistry, storage, metrics, logger),
		metrics:   metrics,
		logger:    logger,
	}
}

// Metrics exposes the pipeline's metrics for the daemon's status surface.
func (p *Pipeline) Metrics() *Metrics {
	return p.metrics
}

// Execute runs one chat request through every stage and returns the final
// answer. Tool failures and provider hiccups degrade to best-effort text;
// only configuration problems and a dead provider surface as errors.
func (p *Pipeline) Execute(ctx context.Context, req *ChatRequest) (result *ChatResult, err error) {
	p.metrics.executionStarted()
	defer func() { p.metrics.executionFinished(err != nil) }()

	if p.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.RequestTimeout)
		defer cancel()
	}

	query := lastUserQuery(req.Messages)

	var ref llm.ModelRef
	err = p.metrics.timeStage("model_selection", func() error {
		var selErr error
		ref, selErr = p.selector.Select(req.Model, query)
		return selErr
	})
	if err != nil {
		return nil, err
	}
	quirks := llm.QuirksFor(ref.Provider)

	var messages []llm.Message
	_ = p.metrics.timeStage("message_preparation", func() error {
		messages = PrepareMessages(req.Messages, req.SystemPrompt, req.Context)
		return nil
	})

	// The prepared leading system message travels in the options so every
	// adapter places it where its wire format wants it.
	systemPrompt := ""
	if len(messages) > 0 && messages[0].Role == llm.RoleSystem {
		systemPrompt = messages[0].Content
		messages = messages[1:]
	}

	toolDefs := p.tools.Definitions()
	toolsEnabled := len(toolDefs) > 0 && quirks.SupportsTools
	if req.EnableTools != nil {
		toolsEnabled = toolsEnabled && *req.EnableTools
	}

	decision := ResolveInitialStreaming(StreamingContext{
		ConfigEnabled: p.config.EnableStreaming,
		Format:        req.Format,
		RequestStream: req.Stream,
		HasCallback:   req.Callback != nil,
		Provider:      ref.Provider,
		ToolsEnabled:  toolsEnabled,
	})

	provider, err := p.providers.ProviderFor(ref)
	if err != nil {
		return nil, err
	}
	if !provider.Available() {
		return nil, llm.NewConfigurationError(fmt.Sprintf("provider %s is not available", ref.Provider))
	}

	baseOpts := llm.CompletionOptions{
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		EnableTools:  toolsEnabled,
		SystemPrompt: systemPrompt,
	}
	if toolsEnabled {
		baseOpts.Tools = toolDefs
	}

	p.logger.Info().
		Str("conversation_id", req.ConversationID).
		Str("provider", string(ref.Provider)).
		Str("model", ref.ModelID).
		Bool("tools", toolsEnabled).
		Bool("client_stream", decision.Client).
		Bool("provider_stream", decision.Provider).
		Msg("Executing chat request")

	callback := req.Callback
	if !decision.Client {
		callback = nil
	}

	loop := NewToolLoop(p.executor, p.tools, p.config.MaxToolCallIterations, p.logger)
	loopOut, err := loop.Run(ctx, loopInput{
		provider:       provider,
		ref:            ref,
		quirks:         quirks,
		messages:       messages,
		baseOpts:       baseOpts,
		conversationID: req.ConversationID,
		decision:       decision,
		callback:       callback,
	})
	if err != nil {
		return nil, err
	}

	text, thinking := CleanResponseText(loopOut.text)
	return &ChatResult{
		Text:       text,
		Thinking:   thinking,
		Provider:   ref.Provider,
		Model:      ref.ModelID,
		Iterations: loopOut.iterations,
		ToolCalls:  loopOut.toolCalls,
		Streamed:   decision.Client,
	}, nil
}
