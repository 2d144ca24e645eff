package llm

import (
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// NormalizeToolCalls cleans up the tool calls a provider returned:
// nameless calls are dropped, missing IDs and types are backfilled, and
// arguments default to an empty JSON object. After this pass downstream
// stages can rely on every call being addressable.
func NormalizeToolCalls(calls []ToolCall) []ToolCall {
	return lo.FilterMap(calls, func(tc ToolCall, _ int) (ToolCall, bool) {
		if strings.TrimSpace(tc.Function.Name) == "" {
			return ToolCall{}, false
		}
		if tc.ID == "" {
			tc.ID = "call_" + uuid.NewString()
		}
		if tc.Type == "" {
			tc.Type = "function"
		}
		if strings.TrimSpace(tc.Function.Arguments) == "" {
			tc.Function.Arguments = "{}"
		}
		return tc, true
	})
}

// NormalizeResponse applies NormalizeToolCalls and stamps provider/model
// identification when the adapter left them empty.
func NormalizeResponse(resp *Response, name ProviderName, model string) *Response {
	if resp == nil {
		return nil
	}
	resp.ToolCalls = NormalizeToolCalls(resp.ToolCalls)
	if resp.Provider == "" {
		resp.Provider = name
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return resp
}
