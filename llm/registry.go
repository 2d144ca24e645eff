package llm

import (
	"fmt"
	"os"
	"sync"
)

const (
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOllama    ProviderName = "ollama"
	ProviderOpenAI    ProviderName = "openai"
	ProviderMiniMax   ProviderName = "minimax"
)

// KnownProviders lists every provider name the registry understands.
// Model selection uses this to decide whether a "prefix:" in a model
// identifier is a provider or just part of the model name.
var KnownProviders = []ProviderName{
	ProviderAnthropic,
	ProviderOllama,
	ProviderOpenAI,
	ProviderMiniMax,
}

// IsKnownProvider reports whether s names a provider this build supports.
func IsKnownProvider(s string) bool {
	for _, p := range KnownProviders {
		if string(p) == s {
			return true
		}
	}
	return false
}

// ClientKey uniquely identifies a provider client configuration.
type ClientKey struct {
	Provider     ProviderName
	Model        string
	APIKey       string // For credential-based providers
	Host         string // For Ollama
	BaseURL      string // For OpenAI-compatible providers
	Organization string // For OpenAI
}

// ProviderConfig holds the settings the registry resolves providers from.
// This avoids import cycles by not importing the config package.
type ProviderConfig struct {
	SelectedProvider ProviderName

	AnthropicAPIKey string
	AnthropicModel  string
	OllamaHost      string
	OllamaModel     string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIOrg       string
	MiniMaxAPIKey   string
	MiniMaxBaseURL  string
	MiniMaxModel    string
}

// FactoryFunc builds a Provider instance from a resolved ClientKey.
// Provider packages register themselves at wiring time; the registry never
// imports them.
type FactoryFunc func(key *ClientKey) (Provider, error)

// Registry resolves provider configuration and builds per-request Provider
// instances. Requests get fresh instances from the current settings, so a
// configuration change never needs cache invalidation.
type Registry struct {
	mu         sync.RWMutex
	config     *ProviderConfig
	factories  map[ProviderName]FactoryFunc
	middleware []Middleware
}

// NewRegistry creates a Registry over the given configuration.
func NewRegistry(providerConfig *ProviderConfig) *Registry {
	return &Registry{
		config:    providerConfig,
		factories: make(map[ProviderName]FactoryFunc),
	}
}

// RegisterFactory installs the constructor for one provider.
func (r *Registry) RegisterFactory(name ProviderName, fn FactoryFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = fn
}

// Use appends middleware that every provider built by ProviderFor is
// wrapped with, in registration order.
func (r *Registry) Use(mw ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw...)
}

// UpdateConfig swaps the settings the registry resolves from.
func (r *Registry) UpdateConfig(providerConfig *ProviderConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config = providerConfig
}

// SelectedProvider returns the provider the configuration selects, or a
// configuration error when none is set.
func (r *Registry) SelectedProvider() (ProviderName, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.config.SelectedProvider == "" {
		return "", NewConfigurationError("no AI provider selected; set the provider in configuration before sending chat requests")
	}
	if !IsKnownProvider(string(r.config.SelectedProvider)) {
		return "", NewConfigurationError(fmt.Sprintf("selected provider %q is not supported", r.config.SelectedProvider))
	}
	return r.config.SelectedProvider, nil
}

// DefaultModel returns the configured default model for a provider, or a
// configuration error when none is set. There are deliberately no
// hardcoded model fallbacks here.
func (r *Registry) DefaultModel(name ProviderName) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var model string
	switch name {
	case ProviderAnthropic:
		model = r.config.AnthropicModel
	case ProviderOllama:
		model = r.config.OllamaModel
		if model == "" {
			model = os.Getenv("OLLAMA_MODEL")
		}
	case ProviderOpenAI:
		model = r.config.OpenAIModel
		if model == "" {
			model = os.Getenv("OPENAI_MODEL")
		}
	case ProviderMiniMax:
		model = r.config.MiniMaxModel
	default:
		return "", NewConfigurationError(fmt.Sprintf("unknown provider: %s", name))
	}

	if model == "" {
		return "", NewConfigurationError(fmt.Sprintf("no default model configured for provider %s", name))
	}
	return model, nil
}

// IsConfigured checks if a provider has the required configuration
// (API keys, hosts, etc.), consulting the environment as fallback.
func (r *Registry) IsConfigured(name ProviderName) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, err := r.resolveClientKeyUnlocked(name, "")
	return err == nil
}

// ResolveClientKey resolves provider-specific configuration into a
// ClientKey. modelOverride, when non-empty, wins over the configured
// default model.
func (r *Registry) ResolveClientKey(name ProviderName, modelOverride string) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveClientKeyUnlocked(name, modelOverride)
}

func (r *Registry) resolveClientKeyUnlocked(name ProviderName, modelOverride string) (*ClientKey, error) {
	key := &ClientKey{
		Provider: name,
		Model:    modelOverride,
	}

	switch name {
	case ProviderAnthropic:
		apiKey := r.config.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, NewConfigurationError("anthropic API key not configured")
		}
		key.APIKey = apiKey
		if key.Model == "" {
			key.Model = r.config.AnthropicModel
		}

	case ProviderOllama:
		host := r.config.OllamaHost
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = "http://localhost:11434"
		}
		key.Host = host
		if key.Model == "" {
			key.Model = r.config.OllamaModel
		}
		if key.Model == "" {
			key.Model = os.Getenv("OLLAMA_MODEL")
		}

	case ProviderOpenAI:
		apiKey := r.config.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, NewConfigurationError("openai API key not configured")
		}
		key.APIKey = apiKey

		baseURL := r.config.OpenAIBaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		key.BaseURL = baseURL

		org := r.config.OpenAIOrg
		if org == "" {
			org = os.Getenv("OPENAI_ORG_ID")
		}
		key.Organization = org
		if key.Model == "" {
			key.Model = r.config.OpenAIModel
		}

	case ProviderMiniMax:
		apiKey := r.config.MiniMaxAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("MINIMAX_API_KEY")
		}
		if apiKey == "" {
			return nil, NewConfigurationError("minimax API key not configured")
		}
		key.APIKey = apiKey

		baseURL := r.config.MiniMaxBaseURL
		if baseURL == "" {
			baseURL = "https://api.minimax.io/v1"
		}
		key.BaseURL = baseURL
		if key.Model == "" {
			key.Model = r.config.MiniMaxModel
		}

	default:
		return nil, NewConfigurationError(fmt.Sprintf("unknown provider: %s", name))
	}

	return key, nil
}

// ProviderFor builds a fresh Provider for the given model reference.
// Instances are per-request: callers pass them down explicitly instead of
// reaching for process-wide singletons.
func (r *Registry) ProviderFor(ref ModelRef) (Provider, error) {
	key, err := r.ResolveClientKey(ref.Provider, ref.ModelID)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	factory, ok := r.factories[ref.Provider]
	middleware := r.middleware
	r.mu.RUnlock()
	if !ok {
		return nil, NewConfigurationError(fmt.Sprintf("no factory registered for provider %s", ref.Provider))
	}

	provider, err := factory(key)
	if err != nil {
		return nil, err
	}
	return WrapWithMiddleware(provider, middleware...), nil
}
