package pipeline

import (
	"strings"

	"github.com/google/uuid"

	"github.com/quillhq/chatd/llm"
)

// PrepareMessages assembles the message list sent to the provider. The
// caller's history is never mutated; the result is always a fresh slice.
// The system prompt and any retrieved note context merge into a single
// leading system message. Context rides in the preamble rather than as a
// fabricated user turn, which models otherwise treat as something to
// answer.
func PrepareMessages(history []llm.Message, systemPrompt, contextText string) []llm.Message {
	var systemParts []string
	if systemPrompt != "" {
		systemParts = append(systemParts, systemPrompt)
	}

	rest := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		if msg.Role == llm.RoleSystem {
			// Fold pre-existing system messages into the single preamble
			// instead of scattering them through the history.
			if msg.Content != "" {
				systemParts = append(systemParts, msg.Content)
			}
			continue
		}
		rest = append(rest, msg)
	}

	if contextText != "" {
		systemParts = append(systemParts, "Relevant context from the user's notes:\n\n"+contextText)
	}

	prepared := make([]llm.Message, 0, len(rest)+1)
	if len(systemParts) > 0 {
		prepared = append(prepared, llm.NewTextMessage(llm.RoleSystem, strings.Join(systemParts, "\n\n")))
	}
	prepared = append(prepared, rest...)

	return ensureToolMessageIDs(prepared)
}

// ensureToolMessageIDs backfills tool_call_id on tool messages that lack
// one, keeping the invariant that every tool message is addressable. The
// input slice is copied before modification.
func ensureToolMessageIDs(messages []llm.Message) []llm.Message {
	result := make([]llm.Message, len(messages))
	copy(result, messages)
	for i := range result {
		if result[i].Role == llm.RoleTool && result[i].ToolCallID == "" {
			result[i].ToolCallID = "call_" + uuid.NewString()
		}
	}
	return result
}

// lastUserQuery extracts the most recent user message's content, used for
// complexity estimation and the forced-tool heuristic.
func lastUserQuery(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
