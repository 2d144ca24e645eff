package ollama

import (
	"context"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/quillhq/chatd/llm"
)

// newStreamingResponse wraps the Ollama chat API in a Response whose
// Stream func drains it. Ollama's client is itself callback-driven, so
// this is a straight passthrough with accumulation.
func newStreamingResponse(client *api.Client, chatReq *api.ChatRequest, model string) *llm.Response {
	resp := &llm.Response{
		Provider: llm.ProviderOllama,
		Model:    model,
	}

	resp.Stream = func(ctx context.Context, fn func(llm.StreamChunk) error) error {
		stream := true
		chatReq.Stream = &stream

		var text strings.Builder
		var toolCalls []api.ToolCall

		err := client.Chat(ctx, chatReq, func(chunk api.ChatResponse) error {
			toolCalls = append(toolCalls, chunk.Message.ToolCalls...)
			if chunk.Message.Content != "" {
				text.WriteString(chunk.Message.Content)
				err := fn(llm.StreamChunk{
					Text: chunk.Message.Content,
					Raw:  &llm.ChunkMeta{Provider: llm.ProviderOllama, Model: model},
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return llm.NewProviderError("ollama chat stream failed", err)
		}

		resp.Text = text.String()
		resp.ToolCalls = llm.NormalizeToolCalls(fromWireToolCalls(toolCalls))

		return fn(llm.StreamChunk{
			Done: true,
			Raw:  &llm.ChunkMeta{Provider: llm.ProviderOllama, Model: model},
		})
	}

	return resp
}
