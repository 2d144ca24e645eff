package llm

// Quirks captures per-provider behavioral differences the pipeline has to
// work around. Adding a provider means adding one row here instead of
// scattering name checks through the stages.
type Quirks struct {
	// RequiresForcedToolCall marks providers that under-call tools: they
	// answer "I'll search for that" in prose instead of emitting a tool
	// call. The loop controller retries these with an explicit tool choice.
	RequiresForcedToolCall bool

	// SupportsNativeStreaming is false for providers whose streaming breaks
	// when tools are enabled. The streaming strategy falls back to a
	// non-streaming provider call and simulates chunks for the client.
	SupportsNativeStreaming bool

	// SupportsTools reports whether the provider accepts tool definitions.
	SupportsTools bool

	// WantsToolStatus marks providers whose follow-up requests should carry
	// per-call outcome summaries alongside the tool messages.
	WantsToolStatus bool
}

var providerQuirks = map[ProviderName]Quirks{
	ProviderOpenAI:    {SupportsNativeStreaming: true, SupportsTools: true},
	ProviderAnthropic: {SupportsNativeStreaming: true, SupportsTools: true},
	ProviderOllama:    {SupportsNativeStreaming: true, SupportsTools: true, WantsToolStatus: true},
	ProviderMiniMax:   {SupportsTools: true, RequiresForcedToolCall: true},
}

// QuirksFor returns the capability row for a provider. Unknown providers
// get a conservative default: no streaming with tools, no forcing.
func QuirksFor(name ProviderName) Quirks {
	if q, ok := providerQuirks[name]; ok {
		return q
	}
	return Quirks{SupportsTools: true}
}
