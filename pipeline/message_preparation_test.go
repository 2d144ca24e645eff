package pipeline

import (
	"strings"
	"testing"

	"github.com/quillhq/chatd/llm"
)

func TestPrepareMessages_SystemPromptLeads(t *testing.T) {
	history := []llm.Message{
		llm.NewTextMessage(llm.RoleUser, "hello"),
	}

	prepared := PrepareMessages(history, "You are a note assistant.", "")
	if len(prepared) != 2 {
		t.Fatalf("got %d messages, want 2", len(prepared))
	}
	if prepared[0].Role != llm.RoleSystem || prepared[0].Content != "You are a note assistant." {
		t.Errorf("leading message = %+v, want the system prompt", prepared[0])
	}
	if prepared[1].Role != llm.RoleUser {
		t.Errorf("second message role = %q, want user", prepared[1].Role)
	}
}

func TestPrepareMessages_FoldsHistorySystemMessages(t *testing.T) {
	history := []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "earlier directive"),
		llm.NewTextMessage(llm.RoleUser, "hello"),
		llm.NewTextMessage(llm.RoleSystem, ""),
		llm.NewTextMessage(llm.RoleAssistant, "hi"),
	}

	prepared := PrepareMessages(history, "base prompt", "")
	if len(prepared) != 3 {
		t.Fatalf("got %d messages, want 3 (one system, user, assistant)", len(prepared))
	}
	system := prepared[0]
	if system.Role != llm.RoleSystem {
		t.Fatalf("first role = %q, want system", system.Role)
	}
	if !strings.Contains(system.Content, "base prompt") || !strings.Contains(system.Content, "earlier directive") {
		t.Errorf("system content %q should contain both the prompt and the folded directive", system.Content)
	}
	for _, msg := range prepared[1:] {
		if msg.Role == llm.RoleSystem {
			t.Error("system messages should not remain scattered in the history")
		}
	}
}

func TestPrepareMessages_ContextPreamble(t *testing.T) {
	history := []llm.Message{llm.NewTextMessage(llm.RoleUser, "what did I write about Go?")}

	prepared := PrepareMessages(history, "", "Note: Go generics landed in 1.18.")
	if len(prepared) != 2 {
		t.Fatalf("got %d messages, want 2", len(prepared))
	}
	system := prepared[0]
	if system.Role != llm.RoleSystem {
		t.Fatalf("first role = %q, want system", system.Role)
	}
	if !strings.Contains(system.Content, "Relevant context from the user's notes:") {
		t.Errorf("system content %q missing the context preamble", system.Content)
	}
	if !strings.Contains(system.Content, "Go generics landed in 1.18.") {
		t.Errorf("system content %q missing the context text", system.Content)
	}
	// Context must never become a user turn.
	if prepared[1].Role != llm.RoleUser || prepared[1].Content != "what did I write about Go?" {
		t.Errorf("user message altered: %+v", prepared[1])
	}
}

func TestPrepareMessages_NoSystemMessageWhenNothingToSay(t *testing.T) {
	history := []llm.Message{llm.NewTextMessage(llm.RoleUser, "hello")}

	prepared := PrepareMessages(history, "", "")
	if len(prepared) != 1 {
		t.Fatalf("got %d messages, want just the user message", len(prepared))
	}
	if prepared[0].Role != llm.RoleUser {
		t.Errorf("role = %q, want user", prepared[0].Role)
	}
}

func TestPrepareMessages_DoesNotMutateInput(t *testing.T) {
	history := []llm.Message{
		llm.NewTextMessage(llm.RoleSystem, "directive"),
		llm.NewTextMessage(llm.RoleUser, "hello"),
		{Role: llm.RoleTool, Content: "result", Name: "search_notes"},
	}
	original := make([]llm.Message, len(history))
	copy(original, history)

	PrepareMessages(history, "prompt", "context")

	for i := range history {
		if history[i].Role != original[i].Role || history[i].Content != original[i].Content ||
			history[i].ToolCallID != original[i].ToolCallID {
			t.Errorf("input message %d mutated: %+v", i, history[i])
		}
	}
}

func TestEnsureToolMessageIDs(t *testing.T) {
	messages := []llm.Message{
		llm.NewTextMessage(llm.RoleUser, "hello"),
		{Role: llm.RoleTool, Content: "result", Name: "search_notes"},
		{Role: llm.RoleTool, Content: "result", Name: "read_note", ToolCallID: "call_existing"},
	}

	result := ensureToolMessageIDs(messages)

	if messages[1].ToolCallID != "" {
		t.Error("input slice was mutated")
	}
	if result[1].ToolCallID == "" {
		t.Error("tool message without an id should get one backfilled")
	}
	if !strings.HasPrefix(result[1].ToolCallID, "call_") {
		t.Errorf("backfilled id %q missing call_ prefix", result[1].ToolCallID)
	}
	if result[2].ToolCallID != "call_existing" {
		t.Errorf("existing id overwritten: %q", result[2].ToolCallID)
	}
}

func TestLastUserQuery(t *testing.T) {
	messages := []llm.Message{
		llm.NewTextMessage(llm.RoleUser, "first question"),
		llm.NewTextMessage(llm.RoleAssistant, "answer"),
		llm.NewTextMessage(llm.RoleUser, "second question"),
		llm.NewTextMessage(llm.RoleAssistant, "another answer"),
	}
	if got := lastUserQuery(messages); got != "second question" {
		t.Errorf("lastUserQuery = %q, want the most recent user message", got)
	}

	if got := lastUserQuery(nil); got != "" {
		t.Errorf("lastUserQuery(nil) = %q, want empty", got)
	}

	onlyAssistant := []llm.Message{llm.NewTextMessage(llm.RoleAssistant, "hi")}
	if got := lastUserQuery(onlyAssistant); got != "" {
		t.Errorf("lastUserQuery with no user messages = %q, want empty", got)
	}
}
