package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillhq/chatd/llm"
	"github.com/quillhq/chatd/tools"
)

// Directive texts injected into the conversation at loop control points.
const (
	emptyResultsDirective = "YOU MUST NOT GIVE UP after a single failed search. The previous tool calls returned no results. Reformulate the query, broaden the parameters, or use a different search tool. Only answer without tool results if repeated attempts found nothing."

	maxIterationsDirective = "You have reached the maximum number of tool call iterations. Do not request any more tools. Answer the user's question now using the information already gathered."

	errorRecoveryDirective = "An internal error interrupted tool execution: %s. Do not request any more tools. Give the user the best answer you can from the information available, and mention that some information could not be retrieved."

	finalTextDirective = "Provide your final answer to the user's question based on the tool results above. Respond with text only."
)

// ToolLoop drives the bounded tool-calling conversation for one request:
// completion, tool execution, follow-up, repeated until the model stops
// calling tools or the iteration budget runs out. It never lets a raw
// failure escape: every degenerate path ends in a best-effort text
// answer.
type ToolLoop struct {
	executor      *ToolExecutor
	registry      *tools.Registry
	logger        zerolog.Logger
	maxIterations int
}

// NewToolLoop creates a ToolLoop.
func NewToolLoop(executor *ToolExecutor, registry *tools.Registry, maxIterations int, logger zerolog.Logger) *ToolLoop {
	if maxIterations <= 0 {
		maxIterations = defaultMaxToolCallIterations
	}
	return &ToolLoop{
		executor:      executor,
		registry:      registry,
		logger:        logger.With().Str("component", "tool_loop").Logger(),
		maxIterations: maxIterations,
	}
}

// loopInput is everything the loop needs for one request.
type loopInput struct {
	provider       llm.Provider
	ref            llm.ModelRef
	quirks         llm.Quirks
	messages       []llm.Message // prepared history, system prompt already split off
	baseOpts       llm.CompletionOptions
	conversationID string
	decision       StreamingDecision
	callback       StreamCallback // nil unless decision.Client
}

// loopResult is the final outcome handed back to the orchestrator.
type loopResult struct {
	text       string
	iterations int
	toolCalls  int
}

// Run executes the loop. The input message slice is treated as immutable;
// the loop works on its own growing copy.
func (l *ToolLoop) Run(ctx context.Context, in loopInput) (*loopResult, error) {
	messages := make([]llm.Message, len(in.messages))
	copy(messages, in.messages)

	emitted := &streamRelay{callback: in.callback, meta: llm.ChunkMeta{Provider: in.ref.Provider, Model: in.ref.ModelID}}

	resp, err := l.complete(ctx, in, messages, completionSpec{stream: in.decision.Provider, tools: in.baseOpts.EnableTools, relay: emitted})
	if err != nil {
		return l.recoverFromError(ctx, in, messages, emitted, err)
	}

	// Providers that under-call tools get one forced retry, then a
	// synthetic call so the loop still has something to execute.
	if !resp.HasToolCalls() && in.baseOpts.EnableTools && in.quirks.RequiresForcedToolCall {
		resp = l.forceToolCall(ctx, in, messages, resp)
	}

	result := &loopResult{}
	for iteration := 0; resp.HasToolCalls(); iteration++ {
		if iteration >= l.maxIterations {
			l.logger.Warn().Int("iterations", iteration).Msg("Tool loop hit iteration budget")
			resp, err = l.terminalCompletion(ctx, in, &messages, maxIterationsDirective)
			if err != nil {
				return l.recoverFromError(ctx, in, messages, emitted, err)
			}
			break
		}
		result.iterations = iteration + 1

		l.logger.Debug().
			Int("iteration", iteration+1).
			Int("tool_calls", len(resp.ToolCalls)).
			Msg("Executing tool calls")

		messages = append(messages, llm.NewToolCallMessage(resp.Text, resp.ToolCalls))
		outcomes := l.executor.Execute(ctx, in.conversationID, resp.ToolCalls, emitted.toolEvent)
		result.toolCalls += len(outcomes)

		anyEmpty := false
		var statuses []llm.ToolStatus
		for _, outcome := range outcomes {
			messages = append(messages, outcome.message)
			statuses = append(statuses, outcome.status)
			if outcome.empty && !outcome.failed {
				anyEmpty = true
			}
		}

		if anyEmpty {
			l.logger.Debug().Msg("Empty tool result; injecting retry directive")
			messages = append(messages, llm.NewTextMessage(llm.RoleSystem, emptyResultsDirective))
		}

		spec := completionSpec{
			stream: ResolveFollowUpStreaming(FollowUpTool),
			tools:  true,
		}
		if in.quirks.WantsToolStatus {
			spec.statuses = statuses
		}

		resp, err = l.complete(ctx, in, messages, spec)
		if err != nil {
			return l.recoverFromError(ctx, in, messages, emitted, err)
		}
	}

	text, err := l.recoverFinalText(ctx, in, messages, resp)
	if err != nil {
		return l.recoverFromError(ctx, in, messages, emitted, err)
	}
	result.text = text

	if err := emitted.finish(ctx, text); err != nil {
		return nil, err
	}
	return result, nil
}

// completionSpec describes one provider call within the loop.
type completionSpec struct {
	stream   bool
	tools    bool
	relay    *streamRelay // forward text to the client live; nil buffers
	statuses []llm.ToolStatus
	choice   *llm.ToolChoice
}

// complete performs one completion. Provider panics are contained here so
// a misbehaving adapter degrades like any other completion error.
func (l *ToolLoop) complete(ctx context.Context, in loopInput, messages []llm.Message, spec completionSpec) (resp *llm.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("Provider call panicked")
			resp, err = nil, fmt.Errorf("provider panicked: %v", r)
		}
	}()

	opts := in.baseOpts
	opts.Model = in.ref.ModelID
	opts.ModelRef = in.ref
	opts.Stream = spec.stream
	opts.EnableTools = spec.tools && in.baseOpts.EnableTools
	if !opts.EnableTools {
		opts.Tools = nil
	}
	opts.ToolChoice = spec.choice
	opts.ToolExecutionStatus = spec.statuses

	resp, err = in.provider.Complete(ctx, messages, opts)
	if err != nil {
		return nil, err
	}

	if resp.Stream != nil {
		drainFn := func(chunk llm.StreamChunk) error { return nil }
		if spec.relay != nil {
			drainFn = spec.relay.forward
		}
		if err := resp.Stream(ctx, drainFn); err != nil {
			return nil, err
		}
	}

	return llm.NormalizeResponse(resp, in.ref.Provider, in.ref.ModelID), nil
}

// forceToolCall handles providers that answer "I'll search for that" in
// prose instead of emitting a tool call. It retries once with an explicit
// tool choice; if the provider still won't call, it synthesizes the call
// itself.
func (l *ToolLoop) forceToolCall(ctx context.Context, in loopInput, messages []llm.Message, resp *llm.Response) *llm.Response {
	query := lastUserQuery(messages)
	toolName := fallbackToolForQuery(query, l.registry)
	if toolName == "" {
		return resp
	}

	l.logger.Debug().Str("tool", toolName).Msg("Provider under-called tools; forcing tool call")

	forced, err := l.complete(ctx, in, messages, completionSpec{
		stream: ResolveFollowUpStreaming(FollowUpTool),
		tools:  true,
		choice: llm.ForceTool(toolName),
	})
	if err == nil && forced.HasToolCalls() {
		return forced
	}
	if err != nil {
		l.logger.Warn().Err(err).Msg("Forced tool completion failed; synthesizing call")
	}

	arguments := "{}"
	if toolName != "list_notes" && query != "" {
		arguments = fmt.Sprintf(`{"query": %q}`, query)
	}
	resp.ToolCalls = []llm.ToolCall{{
		ID:   fmt.Sprintf("forced-%d", time.Now().UnixMilli()),
		Type: "function",
		Function: llm.FunctionCall{
			Name:      toolName,
			Arguments: arguments,
		},
	}}
	return resp
}

// terminalCompletion injects a directive and asks for one tools-disabled
// answer.
func (l *ToolLoop) terminalCompletion(ctx context.Context, in loopInput, messages *[]llm.Message, directive string) (*llm.Response, error) {
	*messages = append(*messages, llm.NewTextMessage(llm.RoleSystem, directive))
	return l.complete(ctx, in, *messages, completionSpec{
		stream: ResolveFollowUpStreaming(FollowUpMaxIterations),
		tools:  false,
	})
}

// recoverFinalText makes sure the request ends with usable text. A blank
// final response gets one tools-disabled retry; if the model still has
// nothing to say the text is synthesized from the gathered tool results.
func (l *ToolLoop) recoverFinalText(ctx context.Context, in loopInput, messages []llm.Message, resp *llm.Response) (string, error) {
	if resp != nil && strings.TrimSpace(resp.Text) != "" {
		return resp.Text, nil
	}

	l.logger.Debug().Msg("Final response empty; attempting recovery completion")
	messages = append(messages, llm.NewTextMessage(llm.RoleSystem, finalTextDirective))
	retry, err := l.complete(ctx, in, messages, completionSpec{
		stream: ResolveFollowUpStreaming(FollowUpFinalText),
		tools:  false,
	})
	if err == nil && strings.TrimSpace(retry.Text) != "" {
		return retry.Text, nil
	}
	if err != nil {
		l.logger.Warn().Err(err).Msg("Final text recovery completion failed; synthesizing from tool results")
	}

	return synthesizeFromToolResults(messages), nil
}

// recoverFromError is the last line of defense: a system message explains
// the failure and one tools-disabled completion produces whatever answer
// is still possible. Only a failure of that recovery completion itself
// reaches the caller as an error.
func (l *ToolLoop) recoverFromError(ctx context.Context, in loopInput, messages []llm.Message, emitted *streamRelay, cause error) (*loopResult, error) {
	l.logger.Error().Err(cause).Msg("Tool loop error; attempting recovery completion")

	messages = append(messages, llm.NewTextMessage(llm.RoleSystem, fmt.Sprintf(errorRecoveryDirective, cause.Error())))
	resp, err := l.complete(ctx, in, messages, completionSpec{
		stream: ResolveFollowUpStreaming(FollowUpError),
		tools:  false,
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		return nil, cause
	}

	if err := emitted.finish(ctx, resp.Text); err != nil {
		return nil, err
	}
	return &loopResult{text: resp.Text}, nil
}

// synthesizeFromToolResults builds a fallback answer from the most recent
// tool results when the model refuses to produce text.
func synthesizeFromToolResults(messages []llm.Message) string {
	var recent []llm.Message
	for i := len(messages) - 1; i >= 0 && len(recent) < 3; i-- {
		if messages[i].Role == llm.RoleTool {
			recent = append([]llm.Message{messages[i]}, recent...)
		}
	}
	if len(recent) == 0 {
		return "I was unable to produce an answer for this request."
	}

	var b strings.Builder
	b.WriteString("I gathered the following information:\n")
	for _, msg := range recent {
		fmt.Fprintf(&b, "\n%s:\n%s\n", msg.Name, preview(msg.Content, 500))
	}
	return b.String()
}

// fallbackToolForQuery picks which tool a forced call should target based
// on the shape of the user's query. Only tools actually registered are
// candidates.
func fallbackToolForQuery(query string, registry *tools.Registry) string {
	lower := strings.ToLower(query)

	has := func(name string) bool {
		_, ok := registry.Get(name)
		return ok
	}

	switch {
	case has("list_notes") && (strings.Contains(lower, "list") || strings.Contains(lower, "show") || strings.Contains(lower, "catalog")):
		return "list_notes"
	case has("keyword_search_notes") && (strings.Contains(query, "#") || strings.Contains(query, "=") ||
		strings.Contains(lower, "attribute") || strings.Contains(lower, "label") || strings.Contains(lower, "relation")):
		return "keyword_search_notes"
	case has("search_notes"):
		return "search_notes"
	default:
		return ""
	}
}
