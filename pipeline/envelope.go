package pipeline

import (
	"context"
	"strings"

	"github.com/quillhq/chatd/llm"
)

// StreamCallback receives streaming output. text is always an increment,
// never cumulative; done fires exactly once, last.
type StreamCallback func(text string, done bool, chunk *llm.StreamChunk) error

// Envelope is the wire shape a stream transport sends per chunk. The
// pipeline only builds these; delivery, ordering and reconnects belong to
// the transport.
type Envelope struct {
	ConversationID string                  `json:"conversationId"`
	Content        string                  `json:"content,omitempty"`
	Thinking       string                  `json:"thinking,omitempty"`
	ToolExecution  *llm.ToolExecutionEvent `json:"toolExecution,omitempty"`
	Done           bool                    `json:"done"`
}

// BuildEnvelope converts one stream chunk into its transport envelope.
func BuildEnvelope(conversationID string, text string, done bool, chunk *llm.StreamChunk) Envelope {
	env := Envelope{
		ConversationID: conversationID,
		Content:        text,
		Done:           done,
	}
	if chunk != nil && chunk.Raw != nil {
		env.Thinking = chunk.Raw.Thinking
		env.ToolExecution = chunk.Raw.ToolExecution
	}
	return env
}

// streamRelay sits between provider streams and the client callback. It
// tracks exactly what text the client has already seen so the final
// answer can be completed with a suffix diff instead of a duplicated
// replay, and it injects tool lifecycle events between text chunks.
type streamRelay struct {
	callback StreamCallback
	meta     llm.ChunkMeta
	emitted  strings.Builder
}

// forward relays a provider chunk to the client. Provider-level done
// markers are swallowed; the request isn't finished just because one
// completion is, and finish owns the terminal chunk.
func (r *streamRelay) forward(chunk llm.StreamChunk) error {
	if r.callback == nil {
		return nil
	}
	if chunk.Done {
		return nil
	}
	if chunk.Text != "" {
		r.emitted.WriteString(chunk.Text)
	}
	if chunk.Text == "" && (chunk.Raw == nil || chunk.Raw.Thinking == "") {
		return nil
	}
	return r.callback(chunk.Text, false, &chunk)
}

// toolEvent emits a structured tool lifecycle event to the client.
func (r *streamRelay) toolEvent(event llm.ToolExecutionEvent) {
	if r.callback == nil {
		return
	}
	meta := r.meta
	meta.ToolExecution = &event
	chunk := llm.StreamChunk{Raw: &meta}
	// Tool events are advisory; a callback error here doesn't abort the
	// tools that are already running.
	_ = r.callback("", false, &chunk)
}

// finish sends whatever part of the final text the client hasn't seen
// yet, then the terminal done chunk.
func (r *streamRelay) finish(ctx context.Context, finalText string) error {
	if r.callback == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	suffix := finalText
	if already := r.emitted.String(); already != "" && strings.HasPrefix(finalText, already) {
		suffix = finalText[len(already):]
	}
	if suffix != "" {
		meta := r.meta
		chunk := llm.StreamChunk{Text: suffix, Raw: &meta}
		if err := r.callback(suffix, false, &chunk); err != nil {
			return err
		}
		r.emitted.WriteString(suffix)
	}

	meta := r.meta
	done := llm.StreamChunk{Done: true, Raw: &meta}
	return r.callback("", true, &done)
}
