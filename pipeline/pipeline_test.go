package pipeline

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/quillhq/chatd/llm"
	"github.com/quillhq/chatd/tools"
)

func newTestPipeline(t *testing.T, provider llm.Provider, storage ChatStorage) (*Pipeline, *tools.Registry) {
	t.Helper()

	providers := llm.NewRegistry(&llm.ProviderConfig{
		SelectedProvider: llm.ProviderOpenAI,
		OpenAIAPIKey:     "test-key",
		OpenAIModel:      "gpt-4o",
	})
	providers.RegisterFactory(llm.ProviderOpenAI, func(*llm.ClientKey) (llm.Provider, error) {
		return provider, nil
	})

	_, registry := newTestExecutor(t, nil)
	return New(Config{}, providers, registry, storage, zerolog.Nop()), registry
}

func TestPipeline_Execute(t *testing.T) {
	provider := &scriptedProvider{
		name: llm.ProviderOpenAI,
		steps: []scriptedStep{
			{resp: toolResp("", toolCall("call_1", "search_notes", `{"query": "go"}`))},
			{resp: textResp("assistant: <thinking>checking the hits</thinking>Found 2 notes.")},
		},
	}
	storage := &memoryStorage{}
	pipeline, _ := newTestPipeline(t, provider, storage)

	result, err := pipeline.Execute(context.Background(), &ChatRequest{
		ConversationID: "conv-1",
		Messages:       []llm.Message{llm.NewTextMessage(llm.RoleUser, "find my notes about go")},
		SystemPrompt:   "You are a note assistant.",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if result.Text != "Found 2 notes." {
		t.Errorf("Text = %q, want the prefix and thinking stripped", result.Text)
	}
	if result.Thinking != "checking the hits" {
		t.Errorf("Thinking = %q", result.Thinking)
	}
	if result.Provider != llm.ProviderOpenAI || result.Model != "gpt-4o" {
		t.Errorf("resolved %s:%s, want openai:gpt-4o", result.Provider, result.Model)
	}
	if result.Iterations != 1 || result.ToolCalls != 1 {
		t.Errorf("Iterations = %d, ToolCalls = %d, want 1/1", result.Iterations, result.ToolCalls)
	}
	if result.Streamed {
		t.Error("no callback and no opt-in, Streamed should be false")
	}

	// The leading system message travels in the options, not the history.
	initial := provider.calls[0]
	if initial.opts.SystemPrompt != "You are a note assistant." {
		t.Errorf("SystemPrompt = %q", initial.opts.SystemPrompt)
	}
	for _, msg := range initial.messages {
		if msg.Role == llm.RoleSystem {
			t.Error("system message should not remain in the history")
		}
	}
	if len(initial.opts.Tools) == 0 {
		t.Error("tool definitions not attached")
	}

	if len(storage.records) != 1 {
		t.Errorf("stored %d tool executions, want 1", len(storage.records))
	}

	snap := pipeline.Metrics().Snapshot()
	if snap.TotalExecutions != 1 || snap.FailedExecutions != 0 {
		t.Errorf("metrics = %+v", snap)
	}
	if snap.ToolCallsExecuted != 1 {
		t.Errorf("ToolCallsExecuted = %d, want 1", snap.ToolCallsExecuted)
	}
}

func TestPipeline_Execute_ToolsForcedOff(t *testing.T) {
	provider := &scriptedProvider{
		name:  llm.ProviderOpenAI,
		steps: []scriptedStep{{resp: textResp("No tools used.")}},
	}
	pipeline, _ := newTestPipeline(t, provider, nil)

	enable := false
	result, err := pipeline.Execute(context.Background(), &ChatRequest{
		ConversationID: "conv-1",
		Messages:       []llm.Message{llm.NewTextMessage(llm.RoleUser, "hello")},
		EnableTools:    &enable,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ToolCalls != 0 {
		t.Errorf("ToolCalls = %d, want 0", result.ToolCalls)
	}

	initial := provider.calls[0]
	if initial.opts.EnableTools {
		t.Error("EnableTools should be off for this request")
	}
	if len(initial.opts.Tools) != 0 {
		t.Error("tool definitions attached despite tools being off")
	}
}

func TestPipeline_Execute_CallbackStreams(t *testing.T) {
	provider := &scriptedProvider{
		name:  llm.ProviderOpenAI,
		steps: []scriptedStep{{resp: textResp("Streamed answer.")}},
	}
	pipeline, _ := newTestPipeline(t, provider, nil)

	collector := &chunkCollector{}
	result, err := pipeline.Execute(context.Background(), &ChatRequest{
		ConversationID: "conv-1",
		Messages:       []llm.Message{llm.NewTextMessage(llm.RoleUser, "hello")},
		Callback:       collector.callback,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !result.Streamed {
		t.Error("Streamed should be true with a callback")
	}
	if collector.text() != "Streamed answer." {
		t.Errorf("client saw %q", collector.text())
	}
	if collector.doneCount() != 1 {
		t.Errorf("done chunks = %d, want 1", collector.doneCount())
	}
}

func TestPipeline_Execute_NoProviderConfigured(t *testing.T) {
	providers := llm.NewRegistry(&llm.ProviderConfig{})
	_, registry := newTestExecutor(t, nil)
	pipeline := New(Config{}, providers, registry, nil, zerolog.Nop())

	_, err := pipeline.Execute(context.Background(), &ChatRequest{
		ConversationID: "conv-1",
		Messages:       []llm.Message{llm.NewTextMessage(llm.RoleUser, "hello")},
	})
	if err == nil {
		t.Fatal("expected a configuration error")
	}
	if !llm.IsConfigurationError(err) {
		t.Errorf("err = %v, want a configuration error", err)
	}

	snap := pipeline.Metrics().Snapshot()
	if snap.FailedExecutions != 1 {
		t.Errorf("FailedExecutions = %d, want 1", snap.FailedExecutions)
	}
}

// unavailableProvider reports itself unconfigured.
type unavailableProvider struct{ scriptedProvider }

func (p *unavailableProvider) Available() bool { return false }

func TestPipeline_Execute_ProviderUnavailable(t *testing.T) {
	provider := &unavailableProvider{scriptedProvider{name: llm.ProviderOpenAI}}
	pipeline, _ := newTestPipeline(t, provider, nil)

	_, err := pipeline.Execute(context.Background(), &ChatRequest{
		ConversationID: "conv-1",
		Messages:       []llm.Message{llm.NewTextMessage(llm.RoleUser, "hello")},
	})
	if err == nil {
		t.Fatal("expected an error for an unavailable provider")
	}
	if !llm.IsConfigurationError(err) {
		t.Errorf("err = %v, want a configuration error", err)
	}
}

func TestPipeline_Execute_ExplicitModel(t *testing.T) {
	provider := &scriptedProvider{
		name:  llm.ProviderOpenAI,
		steps: []scriptedStep{{resp: textResp("ok")}},
	}
	pipeline, _ := newTestPipeline(t, provider, nil)

	result, err := pipeline.Execute(context.Background(), &ChatRequest{
		ConversationID: "conv-1",
		Messages:       []llm.Message{llm.NewTextMessage(llm.RoleUser, "hello")},
		Model:          "openai:gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini", result.Model)
	}
	if provider.calls[0].opts.Model != "gpt-4o-mini" {
		t.Errorf("provider saw model %q", provider.calls[0].opts.Model)
	}
}
