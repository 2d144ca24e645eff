package anthropic

import (
	"encoding/json"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/samber/lo"

	"github.com/quillhq/chatd/llm"
)

// toMessageParams converts the neutral message history to Anthropic's
// block-structured format. Assistant tool calls become tool_use blocks,
// tool-role messages become tool_result blocks inside a user message, and
// consecutive tool messages fold into a single user message since they all
// answer the same assistant turn.
func toMessageParams(msgs []llm.Message) []anthropic.MessageParam {
	result := make([]anthropic.MessageParam, 0, len(msgs))
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			result = append(result, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range msgs {
		switch msg.Role {
		case llm.RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))

		case llm.RoleAssistant:
			flushResults()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, argumentsToInput(tc.Function.Arguments), tc.Function.Name))
			}
			if len(blocks) > 0 {
				result = append(result, anthropic.NewAssistantMessage(blocks...))
			}

		case llm.RoleSystem:
			// System prompts travel in the params' System field; a stray
			// system message mid-history degrades to a user message.
			flushResults()
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		default:
			flushResults()
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	flushResults()

	return result
}

// argumentsToInput decodes the raw arguments JSON into the object shape
// Anthropic expects. Unparseable arguments degrade to an empty object.
func argumentsToInput(arguments string) map[string]any {
	input := make(map[string]any)
	if arguments == "" {
		return input
	}
	if err := json.Unmarshal([]byte(arguments), &input); err != nil {
		return make(map[string]any)
	}
	return input
}

// toolCallFromUseBlock converts a tool_use block back to the neutral
// shape, re-serializing the input as an arguments JSON string.
func toolCallFromUseBlock(id, name string, input any) llm.ToolCall {
	arguments := "{}"
	if input != nil {
		if raw, err := json.Marshal(input); err == nil {
			arguments = string(raw)
		}
	}
	return llm.ToolCall{
		ID:   id,
		Type: "function",
		Function: llm.FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	}
}

// toToolUnionParams converts tool definitions to Anthropic's tool params.
func toToolUnionParams(defs []llm.ToolDefinition) []anthropic.ToolUnionParam {
	return lo.Map(defs, func(def llm.ToolDefinition, _ int) anthropic.ToolUnionParam {
		params := def.Function.Parameters
		var properties any
		var required []string

		if params != nil {
			properties = params["properties"]
			if req, ok := params["required"].([]string); ok {
				required = req
			} else if reqAny, ok := params["required"].([]any); ok {
				for _, r := range reqAny {
					if s, ok := r.(string); ok {
						required = append(required, s)
					}
				}
			}
		}

		toolParam := anthropic.ToolParam{
			Name:        def.Function.Name,
			Description: anthropic.String(def.Function.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Type:       "object",
				Properties: properties,
				Required:   required,
			},
		}
		return anthropic.ToolUnionParam{OfTool: &toolParam}
	})
}
