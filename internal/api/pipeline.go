package api

import (
	"context"
	"time"
)

// Doer sends a request and returns the response. Implementations return a
// Response for every HTTP status and an error only when no response exists.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// DoerFunc adapts a function to the Doer interface.
type DoerFunc func(ctx context.Context, req *Request) (*Response, error)

// Do calls f(ctx, req).
func (f DoerFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware wraps a Doer with another stage.
type Middleware func(Doer) Doer

// Chain wraps base with mws. The first middleware is the outermost stage.
func Chain(base Doer, mws ...Middleware) Doer {
	d := base
	for i := len(mws) - 1; i >= 0; i-- {
		d = mws[i](d)
	}
	return d
}

// Hooks receives pipeline events. Implementations must be safe for
// concurrent use.
type Hooks interface {
	// OnRequest is called after every network send.
	OnRequest(req *Request, resp *Response, err error, d time.Duration)
	// OnRetry is called when a request is resent after a refresh.
	OnRetry(req *Request)
}

// NopHooks ignores every event.
type NopHooks struct{}

func (NopHooks) OnRequest(*Request, *Response, error, time.Duration) {}
func (NopHooks) OnRetry(*Request)                                    {}

func hooksOrNop(h Hooks) Hooks {
	if h == nil {
		return NopHooks{}
	}
	return h
}
