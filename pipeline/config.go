package pipeline

import "time"

// Config controls pipeline-wide behavior. Zero values are filled in by
// withDefaults, so an empty Config is usable.
type Config struct {
	// EnableStreaming is the global default for client streaming when a
	// request doesn't decide for itself.
	EnableStreaming bool

	// EnableMetrics turns on per-stage timing collection. Counters are
	// always maintained since they are nearly free.
	EnableMetrics bool

	// MaxToolCallIterations bounds the tool-calling loop per request.
	MaxToolCallIterations int

	// RequestTimeout is the wall-clock budget for one request including
	// every tool iteration. Zero disables the deadline.
	RequestTimeout time.Duration
}

const (
	defaultMaxToolCallIterations = 5
	defaultRequestTimeout        = 5 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.MaxToolCallIterations <= 0 {
		c.MaxToolCallIterations = defaultMaxToolCallIterations
	}
	if c.RequestTimeout < 0 {
		c.RequestTimeout = 0
	}
	return c
}
