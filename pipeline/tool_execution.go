package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/quillhq/chatd/llm"
	"github.com/quillhq/chatd/tools"
)

// ToolExecutionRecord is the persistence shape for one executed tool
// call. Storage is opportunistic: the pipeline produces records and moves
// on regardless of whether they could be written.
type ToolExecutionRecord struct {
	ConversationID string
	CallID         string
	Name           string
	Arguments      map[string]any
	Result         string
	Error          string
	CreatedAt      time.Time
}

// ChatStorage records pipeline activity. Implementations must tolerate
// concurrent calls; failures are logged and never fail the request.
type ChatStorage interface {
	RecordToolExecution(ctx context.Context, rec *ToolExecutionRecord) error
}

// toolOutcome is the result of one tool call after execution.
type toolOutcome struct {
	call    llm.ToolCall
	message llm.Message
	status  llm.ToolStatus
	empty   bool
	failed  bool
}

// ToolExecutor validates and runs the tool calls of a single assistant
// turn.
type ToolExecutor struct {
	registry *tools.Registry
	storage  ChatStorage
	metrics  *Metrics
	logger   zerolog.Logger
}

// NewToolExecutor creates a ToolExecutor. storage may be nil.
func NewToolExecutor(registry *tools.Registry, storage ChatStorage, metrics *Metrics, logger zerolog.Logger) *ToolExecutor {
	return &ToolExecutor{
		registry: registry,
		storage:  storage,
		metrics:  metrics,
		logger:   logger.With().Str("component", "tool_executor").Logger(),
	}
}

// eventSink receives structured tool lifecycle events for stream
// consumers. A nil sink drops them.
type eventSink func(llm.ToolExecutionEvent)

// Execute runs every tool call of one turn. All calls are validated and
// their arguments parsed before any handler runs; the valid ones then
// execute concurrently. Every call produces exactly one tool message:
// failures become "Error:" messages with corrective guidance instead of
// propagating.
func (e *ToolExecutor) Execute(ctx context.Context, conversationID string, calls []llm.ToolCall, emit eventSink) []toolOutcome {
	if emit == nil {
		emit = func(llm.ToolExecutionEvent) {}
	}

	outcomes := make([]toolOutcome, len(calls))
	type parsedCall struct {
		args  map[string]any
		valid bool
	}
	parsed := make([]parsedCall, len(calls))

	// Validation phase: every call is checked before any handler runs so
	// a garbage batch fails fast and coherently.
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("tool_%d", i)
		}

		args, warnings := tools.ParseArguments(calls[i].Function.Arguments)
		for _, w := range warnings {
			e.logger.Warn().Str("tool", calls[i].Function.Name).Str("warning", w).Msg("Tool argument parsing degraded")
		}
		parsed[i].args = args

		if err := e.registry.Validate(calls[i].Function.Name); err != nil {
			outcomes[i] = e.failedOutcome(calls[i], args, err)
			continue
		}
		parsed[i].valid = true
	}

	// Execution phase: valid calls run concurrently.
	var wg sync.WaitGroup
	for i := range calls {
		if !parsed[i].valid {
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = e.executeOne(ctx, calls[i], parsed[i].args, emit)
		}(i)
	}
	wg.Wait()

	e.metrics.toolCalls(len(calls))

	for i := range outcomes {
		e.record(ctx, conversationID, &outcomes[i])
		if !parsed[i].valid {
			emit(llm.ToolExecutionEvent{
				Type:     llm.ToolEventError,
				CallID:   calls[i].ID,
				ToolName: calls[i].Function.Name,
				Error:    outcomes[i].status.Error,
			})
		}
	}

	return outcomes
}

// executeOne runs a single validated call, converting panics and errors
// into error outcomes.
func (e *ToolExecutor) executeOne(ctx context.Context, call llm.ToolCall, args map[string]any, emit eventSink) (outcome toolOutcome) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Str("tool", call.Function.Name).Interface("panic", r).Msg("Tool handler panicked")
			outcome = e.failedOutcome(call, args, fmt.Errorf("tool panicked: %v", r))
			outcome.status.Duration = time.Since(start).Milliseconds()
		}
	}()

	emit(llm.ToolExecutionEvent{
		Type:      llm.ToolEventStart,
		CallID:    call.ID,
		ToolName:  call.Function.Name,
		Arguments: args,
	})

	result, err := e.registry.Handle(ctx, call.Function.Name, args)
	duration := time.Since(start)

	if err != nil {
		emit(llm.ToolExecutionEvent{
			Type:     llm.ToolEventError,
			CallID:   call.ID,
			ToolName: call.Function.Name,
			Error:    err.Error(),
		})
		out := e.failedOutcome(call, args, err)
		out.status.Duration = duration.Milliseconds()
		return out
	}

	empty := e.registry.IsEmptyResult(call.Function.Name, result)
	content := result
	if empty {
		content += "\n\nNOTE: This tool returned no results for these parameters. Consider trying different parameters or a different tool."
	}

	emit(llm.ToolExecutionEvent{
		Type:     llm.ToolEventComplete,
		CallID:   call.ID,
		ToolName: call.Function.Name,
		Result:   preview(result, 500),
	})

	msg := llm.NewToolResultMessage(call.ID, call.Function.Name, content)
	return toolOutcome{
		call:    call,
		message: msg,
		status: llm.ToolStatus{
			CallID:   call.ID,
			Name:     call.Function.Name,
			Success:  true,
			Duration: duration.Milliseconds(),
		},
		empty: empty,
	}
}

// failedOutcome builds the error tool message for a call that could not
// run or failed. The guidance suffix tells the model what it can actually
// call so it corrects course instead of retrying blindly.
func (e *ToolExecutor) failedOutcome(call llm.ToolCall, args map[string]any, err error) toolOutcome {
	content := fmt.Sprintf("Error: %s. %s", err.Error(), e.registry.Guidance())
	return toolOutcome{
		call:    call,
		message: llm.NewToolResultMessage(call.ID, call.Function.Name, content),
		status: llm.ToolStatus{
			CallID:  call.ID,
			Name:    call.Function.Name,
			Success: false,
			Error:   err.Error(),
		},
		failed: true,
	}
}

// record persists one outcome, logging and continuing on failure.
func (e *ToolExecutor) record(ctx context.Context, conversationID string, outcome *toolOutcome) {
	if e.storage == nil {
		return
	}
	rec := &ToolExecutionRecord{
		ConversationID: conversationID,
		CallID:         outcome.call.ID,
		Name:           outcome.call.Function.Name,
		Result:         outcome.message.Content,
		Error:          outcome.status.Error,
		CreatedAt:      time.Now().UTC(),
	}
	if args, _ := tools.ParseArguments(outcome.call.Function.Arguments); len(args) > 0 {
		rec.Arguments = args
	}
	if err := e.storage.RecordToolExecution(ctx, rec); err != nil {
		e.logger.Warn().Err(err).Str("tool", rec.Name).Msg("Failed to record tool execution")
	}
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back up to a rune boundary so the cut never splits a multi-byte
	// character.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
