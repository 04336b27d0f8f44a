// Package api sends authenticated requests to the marketplace API.
//
// Requests flow through a chain of middleware stages. The production chain
// retries a rejected request once after renewing the session, attaches the
// bearer credential immediately before every send, and traces each network
// round trip:
//
//	Chain(sender, WithRefreshRetry(refresher, hooks), WithCredentials(store), WithTrace(logger, hooks))
package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"slices"
)

// Request is an outbound API request. Path is relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte

	// Retried marks a request that has already been resent after a session
	// refresh. A retried request is never refreshed again.
	Retried bool

	// ID identifies the logical request. The original send and its resend
	// share it.
	ID string
}

// NewRequest returns a request with an empty header set.
func NewRequest(method, path string, body []byte) *Request {
	return &Request{
		Method: method,
		Path:   path,
		Header: make(http.Header),
		Body:   body,
	}
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	if r.Query != nil {
		c.Query = make(url.Values, len(r.Query))
		for k, v := range r.Query {
			c.Query[k] = slices.Clone(v)
		}
	}
	c.Body = slices.Clone(r.Body)
	return &c
}

// Response is a completed HTTP exchange, whatever its status.
type Response struct {
	StatusCode int
	Header     http.Header
	Data       json.RawMessage

	// Request is the request exactly as it went out, credentials included.
	Request *Request
}

// UnmarshalData unmarshals the response data into the given value.
func (r *Response) UnmarshalData(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Success reports whether the status is 2xx.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
