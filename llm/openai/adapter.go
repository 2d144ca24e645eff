package openai

import (
	openai "github.com/sashabaranov/go-openai"
	"github.com/samber/lo"

	"github.com/quillhq/chatd/llm"
)

// toWireMessages converts llm.Messages to OpenAI chat message format.
// The shapes line up almost one to one; only the role constants differ.
func toWireMessages(msgs []llm.Message) []openai.ChatCompletionMessage {
	return lo.Map(msgs, func(msg llm.Message, _ int) openai.ChatCompletionMessage {
		return toWireMessage(msg)
	})
}

func toWireMessage(msg llm.Message) openai.ChatCompletionMessage {
	wire := openai.ChatCompletionMessage{
		Content: msg.Content,
	}

	switch msg.Role {
	case llm.RoleAssistant:
		wire.Role = openai.ChatMessageRoleAssistant
		wire.ToolCalls = toWireToolCalls(msg.ToolCalls)
	case llm.RoleSystem:
		wire.Role = openai.ChatMessageRoleSystem
	case llm.RoleTool:
		wire.Role = openai.ChatMessageRoleTool
		wire.ToolCallID = msg.ToolCallID
		wire.Name = msg.Name
	default:
		wire.Role = openai.ChatMessageRoleUser
	}

	return wire
}

func toWireToolCalls(calls []llm.ToolCall) []openai.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	return lo.Map(calls, func(tc llm.ToolCall, _ int) openai.ToolCall {
		return openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	})
}

// fromWireToolCalls converts OpenAI tool calls back to the neutral shape.
// Arguments stay as the raw JSON string the model produced.
func fromWireToolCalls(calls []openai.ToolCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	return lo.Map(calls, func(tc openai.ToolCall, _ int) llm.ToolCall {
		return llm.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		}
	})
}

// toWireTools converts tool definitions to OpenAI function format.
func toWireTools(defs []llm.ToolDefinition) []openai.Tool {
	return lo.Map(defs, func(def llm.ToolDefinition, _ int) openai.Tool {
		function := openai.FunctionDefinition{
			Name:        def.Function.Name,
			Description: def.Function.Description,
			Parameters:  def.Function.Parameters,
		}
		return openai.Tool{
			Type:     openai.ToolTypeFunction,
			Function: &function,
		}
	})
}
