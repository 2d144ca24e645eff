package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/quillhq/chatd/llm"
)

// Handler executes a tool call with already-parsed arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// EmptyResultFunc reports whether a tool result is semantically empty
// (found nothing) even though the call itself succeeded.
type EmptyResultFunc func(result string) bool

// Tool bundles everything the pipeline needs to advertise and run a tool.
type Tool struct {
	Definition llm.ToolDefinition
	Handler    Handler

	// IsEmpty overrides the shared empty-result heuristic for this tool.
	// Nil means use DefaultIsEmptyResult.
	IsEmpty EmptyResultFunc
}

// Registry maps tool names to their definitions and handlers.
type Registry struct {
	tools  map[string]*Tool
	logger zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	logger = logger.With().Str("component", "tool_registry").Logger()
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register registers a tool. The definition's function name is the key;
// re-registering a name replaces the previous entry.
func (r *Registry) Register(tool *Tool) error {
	name := tool.Definition.Function.Name
	if name == "" {
		return fmt.Errorf("tool definition has no name")
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s has no handler", name)
	}
	r.logger.Debug().Str("name", name).Msg("Registering tool")
	r.tools[name] = tool
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted for stable output.
func (r *Registry) Names() []string {
	names := lo.Keys(r.tools)
	sort.Strings(names)
	return names
}

// Definitions returns the definitions of every registered tool in name
// order, ready to attach to a completion request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	return lo.Map(r.Names(), func(name string, _ int) llm.ToolDefinition {
		return r.tools[name].Definition
	})
}

// Validate checks that a call can be dispatched: the tool exists and has
// a handler. Executors run this for every call in a batch before running
// any of them.
func (r *Registry) Validate(name string) error {
	tool, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("unknown tool: %s", name)
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %s has no handler", name)
	}
	return nil
}

// Handle dispatches a tool call and renders the result as a string.
// Non-string results are JSON-marshaled since tool messages carry text.
func (r *Registry) Handle(ctx context.Context, name string, args map[string]any) (string, error) {
	tool, ok := r.tools[name]
	if !ok {
		r.logger.Error().Str("tool", name).Msg("Unknown tool requested")
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	r.logger.Info().Str("tool", name).Msg("Executing tool")
	result, err := tool.Handler(ctx, args)
	if err != nil {
		r.logger.Warn().Str("tool", name).Err(err).Msg("Tool returned error")
		return "", err
	}

	rendered := renderResult(result)
	logResult := rendered
	if len(logResult) > 500 {
		logResult = logResult[:500] + "... (truncated)"
	}
	r.logger.Debug().Str("tool", name).Str("result", logResult).Msg("Tool returned result")

	return rendered, nil
}

// IsEmptyResult applies the tool's empty predicate, falling back to the
// shared heuristic when the tool doesn't define one.
func (r *Registry) IsEmptyResult(name, result string) bool {
	if tool, ok := r.tools[name]; ok && tool.IsEmpty != nil {
		return tool.IsEmpty(result)
	}
	return DefaultIsEmptyResult(result)
}

// Guidance builds the advisory text appended to failed tool calls so the
// model can correct itself instead of retrying the same mistake.
func (r *Registry) Guidance() string {
	names := r.Names()
	if len(names) == 0 {
		return "No tools are currently available."
	}
	return "Available tools: " + strings.Join(names, ", ") + ". Check the tool name and required parameters, then try again."
}

func renderResult(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}
