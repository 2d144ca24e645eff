package llm

import (
	"context"

	"github.com/rs/zerolog"
)

// NewLoggingMiddleware returns middleware that logs every completion
// request and its outcome. It never modifies options, responses, or
// errors.
func NewLoggingMiddleware(logger zerolog.Logger) Middleware {
	logger = logger.With().Str("component", "llm").Logger()
	return MiddlewareFunc{
		BeforeCompleteFunc: func(ctx context.Context, messages []Message, opts *CompletionOptions) error {
			logger.Debug().
				Str("model", opts.Model).
				Int("messages", len(messages)).
				Int("tools", len(opts.Tools)).
				Bool("stream", opts.Stream).
				Msg("Completion request")
			return nil
		},
		AfterCompleteFunc: func(ctx context.Context, resp *Response) (*Response, error) {
			logger.Debug().
				Str("provider", string(resp.Provider)).
				Str("model", resp.Model).
				Int("tool_calls", len(resp.ToolCalls)).
				Bool("streaming", resp.Stream != nil).
				Msg("Completion response")
			return resp, nil
		},
		OnErrorFunc: func(ctx context.Context, err error) error {
			logger.Warn().Err(err).Msg("Completion failed")
			return err
		},
	}
}
