package pipeline

import (
	"github.com/quillhq/chatd/llm"
)

// StreamingContext carries every input the streaming decision depends on.
// The resolvers are pure functions over this struct so the precedence
// rules stay testable in isolation.
type StreamingContext struct {
	// ConfigEnabled is the global streaming default from configuration.
	ConfigEnabled bool

	// Format is the request's declared response format; "stream" opts in.
	Format string

	// RequestStream is the request's explicit stream option, when set.
	RequestStream *bool

	// HasCallback is true when the caller registered a stream callback.
	HasCallback bool

	// Provider and ToolsEnabled decide whether the provider-side stream
	// can actually be used.
	Provider     llm.ProviderName
	ToolsEnabled bool
}

// StreamingDecision is the two-sided outcome: whether the client sees
// streaming output, and whether the provider call itself streams.
type StreamingDecision struct {
	Client   bool
	Provider bool
}

// FollowUpKind classifies the completion that needs a streaming decision
// after the initial one.
type FollowUpKind string

const (
	FollowUpTool          FollowUpKind = "tool"
	FollowUpError         FollowUpKind = "error"
	FollowUpMaxIterations FollowUpKind = "max_iterations"
	FollowUpFinalText     FollowUpKind = "final_text"
)

// ResolveInitialStreaming decides streaming for the first completion of a
// request. Client streaming precedence, first match wins: a registered
// callback forces it on, an explicit stream option is honored in either
// direction, format "stream" opts in, and otherwise the global config
// default applies. Provider streaming additionally requires that the
// provider streams reliably with tools enabled.
func ResolveInitialStreaming(sc StreamingContext) StreamingDecision {
	client := resolveClientStreaming(sc)

	provider := client
	if provider && sc.ToolsEnabled {
		if !llm.QuirksFor(sc.Provider).SupportsNativeStreaming {
			provider = false
		}
	}

	return StreamingDecision{Client: client, Provider: provider}
}

func resolveClientStreaming(sc StreamingContext) bool {
	if sc.HasCallback {
		return true
	}
	if sc.RequestStream != nil {
		return *sc.RequestStream
	}
	if sc.Format == "stream" {
		return true
	}
	return sc.ConfigEnabled
}

// ResolveFollowUpStreaming decides streaming for follow-up completions.
// Every follow-up kind is non-streaming: tool follow-ups and recovery
// completions produce their text in one piece, and the client stream is
// fed by diffing against what was already sent.
func ResolveFollowUpStreaming(kind FollowUpKind) bool {
	switch kind {
	case FollowUpTool, FollowUpError, FollowUpMaxIterations, FollowUpFinalText:
		return false
	default:
		return false
	}
}
