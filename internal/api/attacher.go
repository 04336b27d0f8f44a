package api

import (
	"context"
	"strings"
)

// TokenSource supplies the current access token. An empty token with a nil
// error means no session exists.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// WithCredentials attaches the stored access token as a bearer credential
// immediately before each send. Without a token the request goes out
// unauthenticated.
func WithCredentials(tokens TokenSource) Middleware {
	return func(next Doer) Doer {
		return DoerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			token, err := tokens.AccessToken(ctx)
			if err != nil {
				return nil, err
			}
			out := req.Clone()
			if token != "" {
				out.Header.Set("Authorization", "Bearer "+token)
			} else {
				out.Header.Del("Authorization")
			}
			return next.Do(ctx, out)
		})
	}
}

// BearerToken returns the bearer token attached to req, if any.
func BearerToken(req *Request) string {
	if req == nil {
		return ""
	}
	const prefix = "Bearer "
	h := req.Header.Get("Authorization")
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}
