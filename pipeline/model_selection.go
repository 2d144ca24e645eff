package pipeline

import (
	"strings"

	"github.com/rs/zerolog"

	"github.com/quillhq/chatd/llm"
)

// ModelSelector resolves which provider and model serve a request.
type ModelSelector struct {
	registry *llm.Registry
	logger   zerolog.Logger
}

// NewModelSelector creates a ModelSelector over the provider registry.
func NewModelSelector(registry *llm.Registry, logger zerolog.Logger) *ModelSelector {
	return &ModelSelector{
		registry: registry,
		logger:   logger.With().Str("component", "model_selection").Logger(),
	}
}

// ParseModelIdentifier splits a combined "provider:model" identifier.
// The prefix only counts as a provider when it names one this build knows;
// otherwise the whole string is the model, so model names containing
// colons survive intact. The same holds for colons after a real provider
// prefix: "openai:ft:gpt-4o:org" keeps "ft:gpt-4o:org" as the model.
func ParseModelIdentifier(identifier string) llm.ModelRef {
	prefix, rest, found := strings.Cut(identifier, ":")
	if found && llm.IsKnownProvider(prefix) {
		return llm.ModelRef{Provider: llm.ProviderName(prefix), ModelID: rest}
	}
	return llm.ModelRef{ModelID: identifier}
}

// Select resolves the ModelRef for a request. A model named in the request
// wins and returns early; otherwise the configured provider and its
// default model are used. Missing configuration surfaces as a typed
// configuration error, never as a silent default.
func (s *ModelSelector) Select(requestedModel, query string) (llm.ModelRef, error) {
	if requestedModel != "" {
		ref := ParseModelIdentifier(requestedModel)
		if ref.Provider == "" {
			selected, err := s.registry.SelectedProvider()
			if err != nil {
				return llm.ModelRef{}, err
			}
			ref.Provider = selected
		}
		s.logger.Debug().
			Str("provider", string(ref.Provider)).
			Str("model", ref.ModelID).
			Msg("Using explicitly requested model")
		return ref, nil
	}

	selected, err := s.registry.SelectedProvider()
	if err != nil {
		return llm.ModelRef{}, err
	}

	model, err := s.registry.DefaultModel(selected)
	if err != nil {
		return llm.ModelRef{}, err
	}

	ref := llm.ModelRef{Provider: selected, ModelID: model}

	// Complexity currently informs logging only; the configured default
	// model serves every tier until per-tier models are configurable.
	s.logger.Debug().
		Str("provider", string(ref.Provider)).
		Str("model", ref.ModelID).
		Str("estimated_complexity", estimateQueryComplexity(query)).
		Msg("Selected default model")

	return ref, nil
}

var complexityIndicators = []string{
	"analyze", "compare", "evaluate", "synthesize", "summarize",
	"explain why", "step by step", "reasoning", "prove", "derive",
}

// estimateQueryComplexity buckets a query by surface features. Best
// effort only; its output is never load-bearing.
func estimateQueryComplexity(query string) string {
	if query == "" {
		return "low"
	}

	lower := strings.ToLower(query)
	score := 0

	for _, indicator := range complexityIndicators {
		if strings.Contains(lower, indicator) {
			score++
		}
	}
	if len(query) > 100 {
		score++
	}
	if strings.Count(query, "?") > 1 {
		score++
	}
	if len(query) > 500 {
		score++
	}

	switch {
	case score >= 3:
		return "high"
	case score >= 1:
		return "medium"
	default:
		return "low"
	}
}
