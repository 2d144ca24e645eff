package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/quillhq/chatd/llm"
)

func testTool(name string, handler Handler) *Tool {
	return &Tool{
		Definition: definition(name, "test tool", map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}),
		Handler: handler,
	}
}

func TestRegistry_RegisterAndDispatch(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	err := registry.Register(testTool("echo", func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	}))
	if err != nil {
		t.Fatalf("Failed to register tool: %v", err)
	}

	result, err := registry.Handle(context.Background(), "echo", map[string]any{"text": "hello"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if result != "hello" {
		t.Errorf("Expected 'hello', got %q", result)
	}
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	if err := registry.Register(&Tool{Definition: llm.ToolDefinition{}}); err == nil {
		t.Error("Expected error for tool without a name")
	}
	if err := registry.Register(&Tool{Definition: definition("broken", "no handler", nil)}); err == nil {
		t.Error("Expected error for tool without a handler")
	}
}

func TestRegistry_HandleRendersNonStringResults(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())

	_ = registry.Register(testTool("count", func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{"count": 2}, nil
	}))

	result, err := registry.Handle(context.Background(), "count", nil)
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if result != `{"count":2}` {
		t.Errorf("Expected JSON-rendered result, got %q", result)
	}
}

func TestRegistry_HandleUnknownTool(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	if _, err := registry.Handle(context.Background(), "missing", nil); err == nil {
		t.Error("Expected error for unknown tool")
	}
}

func TestRegistry_Validate(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	_ = registry.Register(testTool("known", func(ctx context.Context, args map[string]any) (any, error) {
		return "ok", nil
	}))

	if err := registry.Validate("known"); err != nil {
		t.Errorf("Expected known tool to validate, got %v", err)
	}
	if err := registry.Validate("unknown"); err == nil {
		t.Error("Expected error validating unknown tool")
	}
}

func TestRegistry_NamesAndDefinitionsSorted(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_ = registry.Register(testTool(name, func(ctx context.Context, args map[string]any) (any, error) {
			return "ok", nil
		}))
	}

	names := registry.Names()
	if len(names) != 3 || names[0] != "alpha" || names[1] != "mid" || names[2] != "zeta" {
		t.Errorf("Expected sorted names, got %v", names)
	}

	defs := registry.Definitions()
	if len(defs) != 3 || defs[0].Function.Name != "alpha" {
		t.Errorf("Expected definitions in name order, got %v", defs)
	}
}

func TestRegistry_IsEmptyResultOverride(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	_ = registry.Register(&Tool{
		Definition: definition("read_note", "reads", nil),
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return "", nil
		},
		IsEmpty: func(result string) bool { return false },
	})

	// Override says never empty, even for a blank result
	if registry.IsEmptyResult("read_note", "") {
		t.Error("Expected per-tool override to win over the default heuristic")
	}
	// Unregistered tools fall back to the default heuristic
	if !registry.IsEmptyResult("other_tool", "{}") {
		t.Error("Expected default heuristic for tools without an override")
	}
}

func TestRegistry_Guidance(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	if !strings.Contains(registry.Guidance(), "No tools") {
		t.Errorf("Expected empty-registry guidance, got %q", registry.Guidance())
	}

	_ = registry.Register(testTool("search_notes", func(ctx context.Context, args map[string]any) (any, error) {
		return "ok", nil
	}))
	guidance := registry.Guidance()
	if !strings.Contains(guidance, "search_notes") {
		t.Errorf("Expected guidance to list tool names, got %q", guidance)
	}
}

func TestRegistry_HandlePropagatesToolErrors(t *testing.T) {
	registry := NewRegistry(zerolog.Nop())
	_ = registry.Register(testTool("failing", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, fmt.Errorf("backend unavailable")
	}))

	if _, err := registry.Handle(context.Background(), "failing", nil); err == nil {
		t.Error("Expected tool error to propagate")
	}
}
