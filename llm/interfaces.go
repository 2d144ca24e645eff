package llm

import (
	"context"
)

// Provider is the provider-neutral interface for chat completions.
// Implementations handle wire-format conversion internally and return
// responses that are already normalized: tool calls populated, provider
// and model identification filled in.
type Provider interface {
	// Complete sends a chat completion request. When opts.Stream is set the
	// returned Response carries a non-nil Stream func; otherwise Text and
	// ToolCalls are populated directly.
	Complete(ctx context.Context, messages []Message, opts CompletionOptions) (*Response, error)

	// Available reports whether the provider is configured well enough to
	// attempt a request.
	Available() bool

	// Name returns the provider identity.
	Name() ProviderName
}

// Middleware provides hooks for decorating Provider calls.
// This allows adding cross-cutting concerns like logging, retry, rate
// limiting, etc. without the providers knowing about them.
type Middleware interface {
	// BeforeComplete is called before making a completion request.
	// It can modify the options or return an error to abort the request.
	BeforeComplete(ctx context.Context, messages []Message, opts *CompletionOptions) error

	// AfterComplete is called after receiving a response.
	// It can modify the response or return an error.
	AfterComplete(ctx context.Context, resp *Response) (*Response, error)

	// OnError is called when an error occurs.
	// It can return a modified error or nil to swallow the error.
	OnError(ctx context.Context, err error) error
}

// MiddlewareFunc is a function bundle that implements Middleware.
type MiddlewareFunc struct {
	BeforeCompleteFunc func(ctx context.Context, messages []Message, opts *CompletionOptions) error
	AfterCompleteFunc  func(ctx context.Context, resp *Response) (*Response, error)
	OnErrorFunc        func(ctx context.Context, err error) error
}

// BeforeComplete calls the BeforeCompleteFunc if set.
func (f MiddlewareFunc) BeforeComplete(ctx context.Context, messages []Message, opts *CompletionOptions) error {
	if f.BeforeCompleteFunc != nil {
		return f.BeforeCompleteFunc(ctx, messages, opts)
	}
	return nil
}

// AfterComplete calls the AfterCompleteFunc if set.
func (f MiddlewareFunc) AfterComplete(ctx context.Context, resp *Response) (*Response, error) {
	if f.AfterCompleteFunc != nil {
		return f.AfterCompleteFunc(ctx, resp)
	}
	return resp, nil
}

// OnError calls the OnErrorFunc if set.
func (f MiddlewareFunc) OnError(ctx context.Context, err error) error {
	if f.OnErrorFunc != nil {
		return f.OnErrorFunc(ctx, err)
	}
	return err
}

// WrapWithMiddleware wraps a Provider with middleware and returns a new
// Provider. Middleware runs BeforeComplete in registration order and
// AfterComplete in reverse order.
func WrapWithMiddleware(provider Provider, middleware ...Middleware) Provider {
	if len(middleware) == 0 {
		return provider
	}
	return &providerWithMiddleware{
		provider:   provider,
		middleware: middleware,
	}
}

type providerWithMiddleware struct {
	provider   Provider
	middleware []Middleware
}

func (p *providerWithMiddleware) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (*Response, error) {
	for _, mw := range p.middleware {
		if err := mw.BeforeComplete(ctx, messages, &opts); err != nil {
			return nil, err
		}
	}

	resp, err := p.provider.Complete(ctx, messages, opts)
	if err != nil {
		for _, mw := range p.middleware {
			err = mw.OnError(ctx, err)
			if err == nil {
				break // middleware handled the error
			}
		}
		return nil, err
	}

	for i := len(p.middleware) - 1; i >= 0; i-- {
		resp, err = p.middleware[i].AfterComplete(ctx, resp)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

func (p *providerWithMiddleware) Available() bool {
	return p.provider.Available()
}

func (p *providerWithMiddleware) Name() ProviderName {
	return p.provider.Name()
}

// Ensure providerWithMiddleware implements Provider
var _ Provider = (*providerWithMiddleware)(nil)
