package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/quillhq/chatd/llm"
	"github.com/quillhq/chatd/tools"
)

func testToolDef(name string) llm.ToolDefinition {
	return llm.ToolDefinition{
		Type: "function",
		Function: llm.FunctionDefinition{
			Name:        name,
			Description: "test tool",
			Parameters:  map[string]any{"type": "object"},
		},
	}
}

// memoryStorage is an in-memory ChatStorage for tests.
type memoryStorage struct {
	mu      sync.Mutex
	records []*ToolExecutionRecord
	err     error
}

func (m *memoryStorage) RecordToolExecution(_ context.Context, rec *ToolExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func newTestExecutor(t *testing.T, storage ChatStorage) (*ToolExecutor, *tools.Registry) {
	t.Helper()
	registry := tools.NewRegistry(zerolog.Nop())

	register := func(name string, handler tools.Handler) {
		if err := registry.Register(&tools.Tool{Definition: testToolDef(name), Handler: handler}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	register("search_notes", func(_ context.Context, args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		return "results for " + query, nil
	})
	register("empty_search", func(context.Context, map[string]any) (any, error) {
		return "[]", nil
	})
	register("failing_tool", func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("backend unavailable")
	})
	register("panicking_tool", func(context.Context, map[string]any) (any, error) {
		panic("boom")
	})

	executor := NewToolExecutor(registry, storage, newMetrics(false), zerolog.Nop())
	return executor, registry
}

func toolCall(id, name, args string) llm.ToolCall {
	return llm.ToolCall{ID: id, Type: "function", Function: llm.FunctionCall{Name: name, Arguments: args}}
}

func TestToolExecutor_Execute(t *testing.T) {
	storage := &memoryStorage{}
	executor, _ := newTestExecutor(t, storage)

	calls := []llm.ToolCall{
		toolCall("call_1", "search_notes", `{"query": "golang"}`),
		toolCall("call_2", "search_notes", `{"query": "testing"}`),
	}
	outcomes := executor.Execute(context.Background(), "conv-1", calls, nil)

	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	for i, outcome := range outcomes {
		if outcome.failed {
			t.Errorf("outcome %d unexpectedly failed: %s", i, outcome.status.Error)
		}
		if outcome.message.Role != llm.RoleTool {
			t.Errorf("outcome %d message role = %q, want tool", i, outcome.message.Role)
		}
		if outcome.message.ToolCallID != calls[i].ID {
			t.Errorf("outcome %d tool call id = %q, want %q", i, outcome.message.ToolCallID, calls[i].ID)
		}
		if !outcome.status.Success {
			t.Errorf("outcome %d status not successful", i)
		}
	}
	if outcomes[0].message.Content != "results for golang" {
		t.Errorf("content = %q", outcomes[0].message.Content)
	}

	if len(storage.records) != 2 {
		t.Fatalf("got %d stored records, want 2", len(storage.records))
	}
	rec := storage.records[0]
	if rec.ConversationID != "conv-1" || rec.Name != "search_notes" {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Arguments) == 0 {
		t.Error("record arguments not captured")
	}
}

func TestToolExecutor_UnknownTool(t *testing.T) {
	executor, _ := newTestExecutor(t, nil)

	outcomes := executor.Execute(context.Background(), "conv-1",
		[]llm.ToolCall{toolCall("call_1", "no_such_tool", "{}")}, nil)

	if len(outcomes) != 1 {
		t.Fatalf("got %d outcomes, want 1", len(outcomes))
	}
	outcome := outcomes[0]
	if !outcome.failed {
		t.Fatal("expected a failed outcome")
	}
	if !strings.HasPrefix(outcome.message.Content, "Error:") {
		t.Errorf("content = %q, want an Error: message", outcome.message.Content)
	}
	if !strings.Contains(outcome.message.Content, "Available tools:") {
		t.Errorf("content %q missing corrective guidance", outcome.message.Content)
	}
}

func TestToolExecutor_HandlerError(t *testing.T) {
	executor, _ := newTestExecutor(t, nil)

	outcomes := executor.Execute(context.Background(), "conv-1",
		[]llm.ToolCall{toolCall("call_1", "failing_tool", "{}")}, nil)

	outcome := outcomes[0]
	if !outcome.failed || outcome.status.Success {
		t.Fatal("expected a failed outcome")
	}
	if !strings.Contains(outcome.message.Content, "backend unavailable") {
		t.Errorf("content %q missing the handler error", outcome.message.Content)
	}
}

func TestToolExecutor_HandlerPanic(t *testing.T) {
	executor, _ := newTestExecutor(t, nil)

	outcomes := executor.Execute(context.Background(), "conv-1",
		[]llm.ToolCall{toolCall("call_1", "panicking_tool", "{}")}, nil)

	outcome := outcomes[0]
	if !outcome.failed {
		t.Fatal("panic should become a failed outcome")
	}
	if !strings.Contains(outcome.status.Error, "tool panicked") {
		t.Errorf("status error = %q", outcome.status.Error)
	}
}

func TestToolExecutor_EmptyResultAnnotated(t *testing.T) {
	executor, _ := newTestExecutor(t, nil)

	outcomes := executor.Execute(context.Background(), "conv-1",
		[]llm.ToolCall{toolCall("call_1", "empty_search", "{}")}, nil)

	outcome := outcomes[0]
	if !outcome.empty {
		t.Error("outcome should be marked empty")
	}
	if outcome.failed {
		t.Error("empty is not failure")
	}
	if !strings.Contains(outcome.message.Content, "returned no results") {
		t.Errorf("content %q missing the empty-result note", outcome.message.Content)
	}
}

func TestToolExecutor_BackfillsMissingCallID(t *testing.T) {
	executor, _ := newTestExecutor(t, nil)

	outcomes := executor.Execute(context.Background(), "conv-1",
		[]llm.ToolCall{toolCall("", "search_notes", `{"query": "x"}`)}, nil)

	if outcomes[0].call.ID != "tool_0" {
		t.Errorf("call id = %q, want tool_0", outcomes[0].call.ID)
	}
	if outcomes[0].message.ToolCallID != "tool_0" {
		t.Errorf("message tool call id = %q, want tool_0", outcomes[0].message.ToolCallID)
	}
}

func TestToolExecutor_EmitsLifecycleEvents(t *testing.T) {
	executor, _ := newTestExecutor(t, nil)

	var mu sync.Mutex
	var events []llm.ToolExecutionEvent
	emit := func(e llm.ToolExecutionEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}

	executor.Execute(context.Background(), "conv-1",
		[]llm.ToolCall{toolCall("call_1", "search_notes", `{"query": "x"}`)}, emit)

	if len(events) != 2 {
		t.Fatalf("got %d events, want start and complete", len(events))
	}
	if events[0].Type != llm.ToolEventStart {
		t.Errorf("first event = %q, want start", events[0].Type)
	}
	if events[1].Type != llm.ToolEventComplete {
		t.Errorf("second event = %q, want complete", events[1].Type)
	}
	if events[1].Result == "" {
		t.Error("complete event missing result preview")
	}
}

func TestToolExecutor_StorageFailureDoesNotFailCall(t *testing.T) {
	storage := &memoryStorage{err: errors.New("disk full")}
	executor, _ := newTestExecutor(t, storage)

	outcomes := executor.Execute(context.Background(), "conv-1",
		[]llm.ToolCall{toolCall("call_1", "search_notes", `{"query": "x"}`)}, nil)

	if outcomes[0].failed {
		t.Error("storage failure must not fail the tool call")
	}
}

func TestPreviewKeepsRunesWhole(t *testing.T) {
	if got := preview("short", 10); got != "short" {
		t.Errorf("preview = %q, want unchanged", got)
	}

	// Byte 8 lands mid-rune; the cut backs up to the boundary at byte 6.
	got := preview(strings.Repeat("€", 10), 8)
	if !utf8.ValidString(got) {
		t.Errorf("preview is not valid UTF-8: %q", got)
	}
	if got != "€€..." {
		t.Errorf("preview = %q, want %q", got, "€€...")
	}
}
