// Package llm provides a provider-neutral abstraction layer for Large Language Model (LLM) APIs.
//
// This package defines common types, interfaces, and utilities that allow the codebase
// to work with multiple LLM providers (Anthropic, OpenAI, Ollama, MiniMax) without being
// tightly coupled to any specific provider's SDK.
//
// # Core Concepts
//
//  1. Messages: The Message type represents a conversation message with a role (user,
//     assistant, system, tool), plain text content, and optional tool calls or tool
//     results in the flat OpenAI-style shape every adapter converts from.
//
//  2. Tools: The ToolDefinition type describes a tool in the shape providers expect,
//     and ToolCall/ToolChoice carry requested invocations and forced selections.
//
//  3. Provider Interface: the Provider interface exposes Complete() for both streaming
//     and non-streaming calls; a streaming Response carries a Stream func that drains
//     chunks into a callback. Implementations handle provider-specific details.
//
//  4. Registry: the Registry resolves provider configuration into ClientKeys and builds
//     Provider instances through registered factories, so the wiring layer decides which
//     adapters exist in a build.
//
//  5. Quirks: the Quirks table captures per-provider behavioral differences (streaming
//     with tools, under-calling tools) so pipeline stages never check provider names.
//
//  6. Errors: the Error type provides provider-neutral error handling with support for
//     rate limits, retryable errors, configuration problems, and provider-specific detail.
//
// Usage Example
//
//	registry := llm.NewRegistry(providerConfig)
//	registry.RegisterFactory(llm.ProviderAnthropic, anthropic.Factory(logger))
//
//	ref := llm.ModelRef{Provider: llm.ProviderAnthropic, ModelID: "claude-sonnet-4"}
//	provider, err := registry.ProviderFor(ref)
//	if err != nil {
//		return err
//	}
//
//	resp, err := provider.Complete(ctx, []llm.Message{
//		llm.NewTextMessage(llm.RoleUser, "Hello!"),
//	}, llm.CompletionOptions{Model: ref.ModelID})
//
// # Extension Points
//
// To add a new LLM provider:
//  1. Implement the Provider interface
//  2. Translate between provider-specific types and llm package types
//  3. Handle provider-specific errors and translate to llm.Error types
//  4. Add a Quirks row and register a factory at wiring time
package llm
