package openai

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/quillhq/chatd/llm"
)

// newStreamingResponse wraps an SDK stream in a Response whose Stream func
// drains it. Text and ToolCalls on the Response are populated once the
// drain completes, so the caller can read them after Stream returns.
func newStreamingResponse(name llm.ProviderName, model string, stream *openai.ChatCompletionStream) *llm.Response {
	resp := &llm.Response{
		Provider: name,
		Model:    model,
	}

	resp.Stream = func(ctx context.Context, fn func(llm.StreamChunk) error) error {
		defer stream.Close()

		var text strings.Builder
		acc := newToolCallAccumulator()

		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			chunk, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return convertError(name, err)
			}
			if len(chunk.Choices) == 0 {
				continue
			}

			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				text.WriteString(choice.Delta.Content)
				err := fn(llm.StreamChunk{
					Text: choice.Delta.Content,
					Raw:  &llm.ChunkMeta{Provider: name, Model: model},
				})
				if err != nil {
					return err
				}
			}

			for _, delta := range choice.Delta.ToolCalls {
				acc.add(delta)
			}

			if choice.FinishReason != "" {
				break
			}
		}

		resp.Text = text.String()
		resp.ToolCalls = llm.NormalizeToolCalls(acc.calls())

		return fn(llm.StreamChunk{
			Done: true,
			Raw:  &llm.ChunkMeta{Provider: name, Model: model},
		})
	}

	return resp
}

// toolCallAccumulator assembles tool calls from streamed fragments. OpenAI
// sends the call id and name first, then the arguments JSON in pieces,
// all keyed by index.
type toolCallAccumulator struct {
	order []int
	byIdx map[int]*partialCall
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallAccumulator() *toolCallAccumulator {
	return &toolCallAccumulator{byIdx: make(map[int]*partialCall)}
}

func (a *toolCallAccumulator) add(delta openai.ToolCall) {
	idx := 0
	if delta.Index != nil {
		idx = *delta.Index
	}

	pc, ok := a.byIdx[idx]
	if !ok {
		pc = &partialCall{}
		a.byIdx[idx] = pc
		a.order = append(a.order, idx)
	}

	if delta.ID != "" {
		pc.id = delta.ID
	}
	if delta.Function.Name != "" {
		pc.name = delta.Function.Name
	}
	if delta.Function.Arguments != "" {
		pc.args.WriteString(delta.Function.Arguments)
	}
}

func (a *toolCallAccumulator) calls() []llm.ToolCall {
	result := make([]llm.ToolCall, 0, len(a.order))
	for _, idx := range a.order {
		pc := a.byIdx[idx]
		result = append(result, llm.ToolCall{
			ID:   pc.id,
			Type: "function",
			Function: llm.FunctionCall{
				Name:      pc.name,
				Arguments: pc.args.String(),
			},
		})
	}
	return result
}
