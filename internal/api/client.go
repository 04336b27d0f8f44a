package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/gigmarket/gig/internal/output"
)

// Client is a typed front end over a request pipeline. It encodes bodies,
// stamps request IDs and turns non-2xx responses into *output.Error values.
type Client struct {
	doer  Doer
	newID func() string
}

// Option configures a Client.
type Option func(*Client)

// WithIDFunc overrides how request IDs are generated.
func WithIDFunc(fn func() string) Option {
	return func(c *Client) { c.newID = fn }
}

// NewClient creates a client that sends through doer.
func NewClient(doer Doer, opts ...Option) *Client {
	c := &Client{doer: doer, newID: uuid.NewString}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	req := NewRequest(http.MethodGet, path, nil)
	req.Query = query
	return c.Do(ctx, req)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.doJSON(ctx, http.MethodPost, path, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.doJSON(ctx, http.MethodPut, path, body)
}

// Patch performs a PATCH request with a JSON body.
func (c *Client) Patch(ctx context.Context, path string, body any) (*Response, error) {
	return c.doJSON(ctx, http.MethodPatch, path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, NewRequest(http.MethodDelete, path, nil))
}

// Upload sends form as a multipart body. The encoded body is kept in memory
// so a resend after a refresh carries the same bytes.
func (c *Client) Upload(ctx context.Context, method, path string, form *Form) (*Response, error) {
	body, contentType, err := form.Encode()
	if err != nil {
		return nil, err
	}
	req := NewRequest(method, path, body)
	req.Header.Set("Content-Type", contentType)
	return c.Do(ctx, req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any) (*Response, error) {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
	}
	return c.Do(ctx, NewRequest(method, path, data))
}

// Do sends req through the pipeline and converts a final non-2xx status
// into an error. The returned response is nil whenever err is non-nil.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.ID == "" {
		req = req.Clone()
		req.ID = c.newID()
	}
	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := CheckResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CheckResponse maps a non-2xx response to an *output.Error.
func CheckResponse(resp *Response) error {
	if resp.Success() {
		return nil
	}

	msg := errorMessage(resp.Data)
	status := resp.StatusCode

	var e *output.Error
	switch {
	case status == http.StatusUnauthorized:
		e = output.ErrAuth(orDefault(msg, "Authentication required"))
	case status == http.StatusForbidden:
		e = output.ErrForbidden(orDefault(msg, "Access denied"))
	case status == http.StatusNotFound:
		path := ""
		if resp.Request != nil {
			path = resp.Request.Path
		}
		e = output.ErrNotFound("Resource", path)
	case status == http.StatusTooManyRequests:
		e = output.ErrRateLimit(parseRetryAfter(resp.Header.Get("Retry-After")))
	case status >= 400 && status < 500:
		e = output.ErrValidation(status, orDefault(msg, fmt.Sprintf("Request rejected (HTTP %d)", status)), nil)
	case status >= 500:
		e = output.ErrAPI(status, orDefault(msg, fmt.Sprintf("Server error (%d)", status)))
	default:
		e = output.ErrAPI(status, fmt.Sprintf("Unexpected response (HTTP %d)", status))
	}
	if json.Valid(resp.Data) {
		e.Body = slices.Clone(resp.Data)
	}
	return e
}

// errorMessage extracts a human-readable message from an error body.
// Checks "detail", "message", "error" and "non_field_errors", then falls
// back to the first field error in key order, e.g. "username: already taken".
func errorMessage(data []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		var list []string
		if json.Unmarshal(data, &list) == nil && len(list) > 0 {
			return list[0]
		}
		return ""
	}

	for _, key := range []string{"detail", "message", "error", "non_field_errors"} {
		if s := firstString(obj[key]); s != "" {
			return s
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if s := firstString(obj[k]); s != "" {
			return k + ": " + s
		}
	}
	return ""
}

// firstString returns raw as a string, or the first string in raw when it
// is a list.
func firstString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				return item
			}
		}
	}
	return ""
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// parseRetryAfter parses the Retry-After header value.
func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return seconds
	}
	return 0
}
