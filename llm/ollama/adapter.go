package ollama

import (
	"encoding/json"

	"github.com/ollama/ollama/api"
	"github.com/samber/lo"

	"github.com/quillhq/chatd/llm"
)

// toWireMessages converts the neutral history to Ollama's message format.
// Ollama understands the tool role directly, so the mapping is flat.
func toWireMessages(msgs []llm.Message) []api.Message {
	return lo.Map(msgs, func(msg llm.Message, _ int) api.Message {
		return api.Message{
			Role:      string(msg.Role),
			Content:   msg.Content,
			ToolCalls: toWireToolCalls(msg.ToolCalls),
		}
	})
}

// toWireToolCalls converts assistant tool calls, decoding the raw
// arguments JSON into the map shape the Ollama API wants.
func toWireToolCalls(calls []llm.ToolCall) []api.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	return lo.Map(calls, func(tc llm.ToolCall, _ int) api.ToolCall {
		args := make(api.ToolCallFunctionArguments)
		if tc.Function.Arguments != "" {
			// Unparseable arguments degrade to an empty map rather than
			// failing the whole request.
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		return api.ToolCall{
			Function: api.ToolCallFunction{
				Name:      tc.Function.Name,
				Arguments: args,
			},
		}
	})
}

// fromWireToolCalls converts Ollama tool calls back to the neutral shape.
// Ollama doesn't assign call IDs; NormalizeToolCalls backfills them.
func fromWireToolCalls(calls []api.ToolCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	return lo.Map(calls, func(tc api.ToolCall, _ int) llm.ToolCall {
		arguments := "{}"
		if tc.Function.Arguments != nil {
			if raw, err := json.Marshal(tc.Function.Arguments); err == nil {
				arguments = string(raw)
			}
		}
		return llm.ToolCall{
			Type: "function",
			Function: llm.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: arguments,
			},
		}
	})
}

// toWireTools converts tool definitions to Ollama's schema structs. The
// neutral definitions keep parameters as a free-form JSON schema map, so
// this rebuilds the typed properties Ollama wants.
func toWireTools(defs []llm.ToolDefinition) []api.Tool {
	return lo.Map(defs, func(def llm.ToolDefinition, _ int) api.Tool {
		params := def.Function.Parameters

		properties := make(map[string]api.ToolProperty)
		if props, ok := params["properties"].(map[string]any); ok {
			for k, v := range props {
				prop := api.ToolProperty{Type: []string{"string"}}
				if propMap, ok := v.(map[string]any); ok {
					if propType, ok := propMap["type"].(string); ok {
						prop.Type = []string{propType}
					}
					if desc, ok := propMap["description"].(string); ok {
						prop.Description = desc
					}
				}
				properties[k] = prop
			}
		}

		var required []string
		if req, ok := params["required"].([]string); ok {
			required = req
		} else if reqAny, ok := params["required"].([]any); ok {
			for _, r := range reqAny {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}

		return api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        def.Function.Name,
				Description: def.Function.Description,
				Parameters: api.ToolFunctionParameters{
					Type:       "object",
					Properties: properties,
					Required:   required,
				},
			},
		}
	})
}
