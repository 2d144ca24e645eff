package anthropic

import (
	"context"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/rs/zerolog"

	"github.com/quillhq/chatd/llm"
)

// newStreamingResponse wraps an Anthropic SSE stream in a Response whose
// Stream func drains it. Text deltas are forwarded as they arrive; tool_use
// blocks are assembled from input_json deltas and surface on the Response
// once the drain completes.
func newStreamingResponse(model string, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], logger zerolog.Logger) *llm.Response {
	resp := &llm.Response{
		Provider: llm.ProviderAnthropic,
		Model:    model,
	}

	resp.Stream = func(ctx context.Context, fn func(llm.StreamChunk) error) error {
		defer stream.Close()

		var text strings.Builder
		var toolCalls []llm.ToolCall
		var currentTool *llm.ToolCall
		var toolInput strings.Builder

		finishTool := func() {
			if currentTool == nil {
				return
			}
			currentTool.Function.Arguments = toolInput.String()
			toolCalls = append(toolCalls, *currentTool)
			currentTool = nil
			toolInput.Reset()
		}

		for stream.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			event := stream.Current()
			switch evt := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if block, ok := evt.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					finishTool()
					currentTool = &llm.ToolCall{
						ID:       block.ID,
						Type:     "function",
						Function: llm.FunctionCall{Name: block.Name},
					}
				}

			case anthropic.ContentBlockDeltaEvent:
				switch d := evt.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					if d.Text != "" {
						text.WriteString(d.Text)
						err := fn(llm.StreamChunk{
							Text: d.Text,
							Raw:  &llm.ChunkMeta{Provider: llm.ProviderAnthropic, Model: model},
						})
						if err != nil {
							return err
						}
					}
				case anthropic.ThinkingDelta:
					if d.Thinking != "" {
						err := fn(llm.StreamChunk{
							Raw: &llm.ChunkMeta{
								Provider: llm.ProviderAnthropic,
								Model:    model,
								Thinking: d.Thinking,
							},
						})
						if err != nil {
							return err
						}
					}
				case anthropic.InputJSONDelta:
					if currentTool != nil && d.PartialJSON != "" {
						toolInput.WriteString(d.PartialJSON)
					}
				}

			case anthropic.ContentBlockStopEvent:
				finishTool()

			case anthropic.MessageDeltaEvent:
				usage := evt.Usage
				if usage.CacheCreationInputTokens > 0 || usage.CacheReadInputTokens > 0 {
					logger.Debug().
						Int64("cache_creation_tokens", usage.CacheCreationInputTokens).
						Int64("cache_read_tokens", usage.CacheReadInputTokens).
						Msg("Prompt cache stats (stream)")
				}

			case anthropic.MessageStopEvent:
				finishTool()
			}
		}

		if err := stream.Err(); err != nil {
			return convertError(err)
		}

		finishTool()
		resp.Text = text.String()
		resp.ToolCalls = llm.NormalizeToolCalls(toolCalls)

		return fn(llm.StreamChunk{
			Done: true,
			Raw:  &llm.ChunkMeta{Provider: llm.ProviderAnthropic, Model: model},
		})
	}

	return resp
}
