package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gigmarket/gig/internal/hostutil"
	"github.com/gigmarket/gig/internal/output"
	"github.com/gigmarket/gig/internal/version"
)

// DefaultTimeout bounds a single round trip, refresh calls included.
const DefaultTimeout = 30 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

// Sender performs the network round trip. It knows nothing about
// credentials and treats every HTTP status as a successful exchange.
type Sender struct {
	base       *url.URL
	httpClient *http.Client
	userAgent  string
}

// NewSender creates a sender for baseURL. A nil httpClient gets a client
// with DefaultTimeout.
func NewSender(baseURL string, httpClient *http.Client) (*Sender, error) {
	normalized, err := hostutil.BaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	base, err := url.Parse(normalized)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &Sender{base: base, httpClient: httpClient, userAgent: version.UserAgent()}, nil
}

// BaseURL returns the normalized base URL, always ending in "/".
func (s *Sender) BaseURL() string {
	return s.base.String()
}

// URL resolves a request path against the base URL.
func (s *Sender) URL(path string, query url.Values) (string, error) {
	ref, err := url.Parse(strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	if ref.IsAbs() || ref.Host != "" {
		return "", fmt.Errorf("request path %q must be relative to the base URL", path)
	}
	u := s.base.ResolveReference(ref)
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Do sends req and returns the response for any HTTP status.
func (s *Sender) Do(ctx context.Context, req *Request) (*Response, error) {
	target, err := s.URL(req.Path, req.Query)
	if err != nil {
		return nil, output.ErrUsage(err.Error())
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, err
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("User-Agent", s.userAgent)
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	httpReq.Header.Set("X-Request-ID", id)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, output.ErrNetwork(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, output.ErrNetwork(fmt.Errorf("failed to read response: %w", err))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Data:       data,
		Request:    req,
	}, nil
}
