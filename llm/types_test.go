package llm

import (
	"encoding/json"
	"testing"
)

func TestNewTextMessage(t *testing.T) {
	msg := NewTextMessage(RoleUser, "Hello, world!")
	if msg.Role != RoleUser {
		t.Errorf("Expected role %v, got %v", RoleUser, msg.Role)
	}
	if msg.Content != "Hello, world!" {
		t.Errorf("Expected content 'Hello, world!', got %q", msg.Content)
	}
	if len(msg.ToolCalls) != 0 {
		t.Errorf("Expected no tool calls, got %d", len(msg.ToolCalls))
	}
}

func TestNewToolCallMessage(t *testing.T) {
	calls := []ToolCall{
		{ID: "call-1", Type: "function", Function: FunctionCall{Name: "test_tool", Arguments: `{"arg":"value"}`}},
	}
	msg := NewToolCallMessage("thinking about it", calls)
	if msg.Role != RoleAssistant {
		t.Errorf("Expected role %v, got %v", RoleAssistant, msg.Role)
	}
	if msg.Content != "thinking about it" {
		t.Errorf("Expected content to be preserved, got %q", msg.Content)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("Expected 1 tool call, got %d", len(msg.ToolCalls))
	}
	if msg.ToolCalls[0].ID != "call-1" {
		t.Errorf("Expected call ID 'call-1', got %q", msg.ToolCalls[0].ID)
	}
	if !msg.HasToolCalls() {
		t.Error("Expected HasToolCalls to return true")
	}
}

func TestNewToolResultMessage(t *testing.T) {
	msg := NewToolResultMessage("call-1", "test_tool", `{"result":"success"}`)
	if msg.Role != RoleTool {
		t.Errorf("Expected role %v, got %v", RoleTool, msg.Role)
	}
	if msg.ToolCallID != "call-1" {
		t.Errorf("Expected tool call ID 'call-1', got %q", msg.ToolCallID)
	}
	if msg.Name != "test_tool" {
		t.Errorf("Expected tool name 'test_tool', got %q", msg.Name)
	}
	if msg.Content != `{"result":"success"}` {
		t.Errorf("Unexpected content %q", msg.Content)
	}
}

func TestMessageToJSON(t *testing.T) {
	msg := NewTextMessage(RoleUser, "Test message")
	jsonData, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("Failed to marshal message to JSON: %v", err)
	}
	if len(jsonData) == 0 {
		t.Fatal("Expected non-empty JSON data")
	}
	// Verify it's valid JSON
	var decoded Message
	if err := json.Unmarshal(jsonData, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal JSON: %v", err)
	}
	if decoded.Role != msg.Role {
		t.Errorf("Expected role %v, got %v", msg.Role, decoded.Role)
	}
}

func TestModelRefString(t *testing.T) {
	ref := ModelRef{Provider: ProviderOllama, ModelID: "llama3.1:8b"}
	if ref.String() != "ollama:llama3.1:8b" {
		t.Errorf("Unexpected model ref string %q", ref.String())
	}
}

func TestForceTool(t *testing.T) {
	choice := ForceTool("search_notes")
	if choice.Type != "function" {
		t.Errorf("Expected tool choice type 'function', got %q", choice.Type)
	}
	if choice.Function.Name != "search_notes" {
		t.Errorf("Expected tool name 'search_notes', got %q", choice.Function.Name)
	}
}
