package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/gig/internal/output"
)

// memTokens is a TokenSource backed by a string.
type memTokens struct {
	mu    sync.Mutex
	token string
	err   error
}

func (m *memTokens) AccessToken(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.err
}

func (m *memTokens) set(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// recordingHooks counts pipeline events.
type recordingHooks struct {
	requests atomic.Int32
	retries  atomic.Int32
}

func (h *recordingHooks) OnRequest(*Request, *Response, error, time.Duration) { h.requests.Add(1) }
func (h *recordingHooks) OnRetry(*Request)                                    { h.retries.Add(1) }

// tokenServer answers 200 when the bearer token is in valid, 401 otherwise,
// and counts requests.
type tokenServer struct {
	*httptest.Server
	mu    sync.Mutex
	valid map[string]bool
	sends atomic.Int32
	seen  []string
}

func newTokenServer(t *testing.T, valid ...string) *tokenServer {
	t.Helper()
	ts := &tokenServer{valid: map[string]bool{}}
	for _, v := range valid {
		ts.valid[v] = true
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.sends.Add(1)
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		ts.mu.Lock()
		ts.seen = append(ts.seen, tok)
		ok := ts.valid[tok]
		ts.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"detail":"Given token not valid for any token type","code":"token_not_valid"}`))
			return
		}
		_, _ = w.Write([]byte(`[{"id":1,"status":"Active"}]`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) allow(tok string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.valid[tok] = true
}

func newTestSender(t *testing.T, base string) *Sender {
	t.Helper()
	s, err := NewSender(base, nil)
	require.NoError(t, err)
	return s
}

func pipeline(sender Doer, tokens TokenSource, refresher Refresher, hooks Hooks) *Client {
	return NewClient(Chain(sender,
		WithRefreshRetry(refresher, hooks),
		WithCredentials(tokens),
		WithTrace(nil, hooks),
	))
}

func TestSenderBuildsRequest(t *testing.T) {
	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	sender := newTestSender(t, srv.URL+"/api/accounts")
	assert.Equal(t, srv.URL+"/api/accounts/", sender.BaseURL())

	req := NewRequest(http.MethodPost, "projects/", []byte(`{"title":"x"}`))
	req.Query = url.Values{"search": {"go dev"}}
	req.ID = "req-1"

	resp, err := sender.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.JSONEq(t, `{"id":7}`, string(resp.Data))
	assert.Same(t, req, resp.Request)

	assert.Equal(t, "/api/accounts/projects/", got.URL.Path)
	assert.Equal(t, "go dev", got.URL.Query().Get("search"))
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "req-1", got.Header.Get("X-Request-ID"))
	assert.True(t, strings.HasPrefix(got.Header.Get("User-Agent"), "gig/"))
	assert.Empty(t, got.Header.Get("Authorization"))
	assert.JSONEq(t, `{"title":"x"}`, string(body))
}

func TestSenderRejectsAbsolutePaths(t *testing.T) {
	sender := newTestSender(t, "http://127.0.0.1:8000/api/accounts/")

	_, err := sender.URL("https://evil.example.com/projects/", nil)
	assert.Error(t, err)

	u, err := sender.URL("/proposals/3/accept/", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:8000/api/accounts/proposals/3/accept/", u)
}

func TestSenderNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, err := newTestSender(t, base).Do(context.Background(), NewRequest(http.MethodGet, "projects/", nil))
	require.Error(t, err)
	e := output.AsError(err)
	assert.Equal(t, output.CodeNetwork, e.Code)
	assert.True(t, e.Retryable)
}

func TestSenderReturnsErrorStatuses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	resp, err := newTestSender(t, srv.URL).Do(context.Background(), NewRequest(http.MethodGet, "x/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.False(t, resp.Success())
}

func TestCredentialsAttachCurrentToken(t *testing.T) {
	var sent *Request
	base := DoerFunc(func(_ context.Context, req *Request) (*Response, error) {
		sent = req
		return &Response{StatusCode: 200, Request: req}, nil
	})
	tokens := &memTokens{token: "abc"}
	d := Chain(base, WithCredentials(tokens))

	orig := NewRequest(http.MethodGet, "contracts/", nil)
	_, err := d.Do(context.Background(), orig)
	require.NoError(t, err)
	assert.Equal(t, "Bearer abc", sent.Header.Get("Authorization"))
	assert.Equal(t, "abc", BearerToken(sent))
	assert.Empty(t, orig.Header.Get("Authorization"), "caller's request must not be mutated")

	// The token is read again on every send.
	tokens.set("def")
	_, err = d.Do(context.Background(), orig)
	require.NoError(t, err)
	assert.Equal(t, "def", BearerToken(sent))
}

func TestCredentialsWithoutTokenSendsUnauthenticated(t *testing.T) {
	var sent *Request
	base := DoerFunc(func(_ context.Context, req *Request) (*Response, error) {
		sent = req
		return &Response{StatusCode: 200, Request: req}, nil
	})
	d := Chain(base, WithCredentials(&memTokens{}))

	req := NewRequest(http.MethodGet, "projects/", nil)
	req.Header.Set("Authorization", "Bearer leftover")
	_, err := d.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, sent.Header.Get("Authorization"))
	assert.Empty(t, BearerToken(sent))
}

func TestCredentialsStoreErrorIsReturned(t *testing.T) {
	storeErr := errors.New("keyring locked")
	called := false
	base := DoerFunc(func(context.Context, *Request) (*Response, error) {
		called = true
		return nil, nil
	})
	_, err := Chain(base, WithCredentials(&memTokens{err: storeErr})).Do(context.Background(), NewRequest("GET", "x/", nil))
	assert.ErrorIs(t, err, storeErr)
	assert.False(t, called)
}

func TestRetryAfterSuccessfulRefresh(t *testing.T) {
	ts := newTokenServer(t, "fresh")
	tokens := &memTokens{token: "stale"}
	hooks := &recordingHooks{}

	var refreshes atomic.Int32
	var staleSeen string
	refresher := RefresherFunc(func(_ context.Context, stale string) RefreshOutcome {
		refreshes.Add(1)
		staleSeen = stale
		tokens.set("fresh")
		return Renewed("fresh")
	})

	resp, err := pipeline(newTestSender(t, ts.URL), tokens, refresher, hooks).Get(context.Background(), "contracts/", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `[{"id":1,"status":"Active"}]`, string(resp.Data))
	assert.True(t, resp.Request.Retried)
	assert.Equal(t, "fresh", BearerToken(resp.Request))

	assert.EqualValues(t, 2, ts.sends.Load())
	assert.EqualValues(t, 1, refreshes.Load())
	assert.Equal(t, "stale", staleSeen)
	assert.Equal(t, []string{"stale", "fresh"}, ts.seen)
	assert.EqualValues(t, 2, hooks.requests.Load())
	assert.EqualValues(t, 1, hooks.retries.Load())
}

func TestRetryRefreshFailurePropagatesOriginal401(t *testing.T) {
	ts := newTokenServer(t)
	var refreshes atomic.Int32
	refresher := RefresherFunc(func(context.Context, string) RefreshOutcome {
		refreshes.Add(1)
		return RefreshFailed(errors.New("no refresh token"))
	})
	hooks := &recordingHooks{}

	_, err := pipeline(newTestSender(t, ts.URL), &memTokens{token: "expired"}, refresher, hooks).
		Get(context.Background(), "projects/", nil)
	require.Error(t, err)
	e := output.AsError(err)
	assert.Equal(t, output.CodeAuth, e.Code)
	assert.Equal(t, http.StatusUnauthorized, e.HTTPStatus)
	assert.Equal(t, "Given token not valid for any token type", e.Message)

	assert.EqualValues(t, 1, ts.sends.Load())
	assert.EqualValues(t, 1, refreshes.Load())
	assert.Zero(t, hooks.retries.Load())
}

func TestRetryReturnsOriginalResponseOnFailure(t *testing.T) {
	first := &Response{StatusCode: http.StatusUnauthorized}
	base := DoerFunc(func(_ context.Context, req *Request) (*Response, error) {
		first.Request = req
		return first, nil
	})
	d := Chain(base, WithRefreshRetry(RefresherFunc(func(context.Context, string) RefreshOutcome {
		return RefreshFailed(nil)
	}), nil))

	resp, err := d.Do(context.Background(), NewRequest("GET", "projects/", nil))
	require.NoError(t, err)
	assert.Same(t, first, resp)
}

func TestRetryAtMostOnce(t *testing.T) {
	// The server rejects every token, including the renewed one.
	ts := newTokenServer(t)
	tokens := &memTokens{token: "t1"}
	var refreshes atomic.Int32
	refresher := RefresherFunc(func(context.Context, string) RefreshOutcome {
		refreshes.Add(1)
		tokens.set("t2")
		return Renewed("t2")
	})

	_, err := pipeline(newTestSender(t, ts.URL), tokens, refresher, nil).Get(context.Background(), "contracts/", nil)
	require.Error(t, err)
	assert.True(t, output.IsAuth(err))
	assert.EqualValues(t, 2, ts.sends.Load())
	assert.EqualValues(t, 1, refreshes.Load())
}

func TestRetriedRequestIsNotRefreshedAgain(t *testing.T) {
	ts := newTokenServer(t)
	refresher := RefresherFunc(func(context.Context, string) RefreshOutcome {
		t.Fatal("refresh must not be called for a retried request")
		return RefreshFailed(nil)
	})
	d := Chain(newTestSender(t, ts.URL), WithRefreshRetry(refresher, nil), WithCredentials(&memTokens{token: "x"}))

	req := NewRequest("GET", "contracts/", nil)
	req.Retried = true
	resp, err := d.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.EqualValues(t, 1, ts.sends.Load())
}

func TestRetryIgnoresOtherFailures(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusTooManyRequests, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			var sends atomic.Int32
			base := DoerFunc(func(_ context.Context, req *Request) (*Response, error) {
				sends.Add(1)
				return &Response{StatusCode: status, Request: req}, nil
			})
			refresher := RefresherFunc(func(context.Context, string) RefreshOutcome {
				t.Fatal("refresh must not be called")
				return RefreshFailed(nil)
			})
			resp, err := Chain(base, WithRefreshRetry(refresher, nil)).Do(context.Background(), NewRequest("GET", "x/", nil))
			require.NoError(t, err)
			assert.Equal(t, status, resp.StatusCode)
			assert.EqualValues(t, 1, sends.Load())
		})
	}

	t.Run("network", func(t *testing.T) {
		netErr := output.ErrNetwork(errors.New("connection refused"))
		base := DoerFunc(func(context.Context, *Request) (*Response, error) { return nil, netErr })
		refresher := RefresherFunc(func(context.Context, string) RefreshOutcome {
			t.Fatal("refresh must not be called")
			return RefreshFailed(nil)
		})
		_, err := Chain(base, WithRefreshRetry(refresher, nil)).Do(context.Background(), NewRequest("GET", "x/", nil))
		assert.Same(t, netErr, err)
	})
}

func TestRetryWithoutTokenPassesEmptyStale(t *testing.T) {
	ts := newTokenServer(t)
	var stale = "unset"
	refresher := RefresherFunc(func(_ context.Context, s string) RefreshOutcome {
		stale = s
		return RefreshFailed(nil)
	})
	_, err := pipeline(newTestSender(t, ts.URL), &memTokens{}, refresher, nil).Get(context.Background(), "projects/", nil)
	require.Error(t, err)
	assert.Equal(t, "", stale)
}

func TestRetryPreservesBodyAndID(t *testing.T) {
	var bodies []string
	var ids []string
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		ids = append(ids, r.Header.Get("X-Request-ID"))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":3}`))
	}))
	defer srv.Close()

	tokens := &memTokens{token: "a"}
	refresher := RefresherFunc(func(context.Context, string) RefreshOutcome {
		tokens.set("b")
		return Renewed("b")
	})
	client := NewClient(Chain(newTestSender(t, srv.URL),
		WithRefreshRetry(refresher, nil), WithCredentials(tokens)),
		WithIDFunc(func() string { return "fixed-id" }))

	resp, err := client.Post(context.Background(), "messages/", map[string]any{"contract": 3, "receiver": 9, "text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1])
	assert.JSONEq(t, `{"contract":3,"receiver":9,"text":"hi"}`, bodies[1])
	assert.Equal(t, []string{"fixed-id", "fixed-id"}, ids)
}

func TestUploadIsReplayedAfterRefresh(t *testing.T) {
	var calls atomic.Int32
	var skills, image string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		skills = r.FormValue("skills")
		f, hdr, err := r.FormFile("profile_image")
		if !assert.NoError(t, err) {
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		image = hdr.Filename + ":" + string(data)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	tokens := &memTokens{token: "a"}
	refresher := RefresherFunc(func(context.Context, string) RefreshOutcome {
		tokens.set("b")
		return Renewed("b")
	})
	client := pipeline(newTestSender(t, srv.URL), tokens, refresher, nil)

	form := NewForm().Field("skills", "go, sql").File("profile_image", "me.png", []byte("png-bytes"))
	assert.True(t, form.HasFiles())
	_, err := client.Upload(context.Background(), http.MethodPatch, "freelancer-profile/", form)
	require.NoError(t, err)
	assert.Equal(t, "go, sql", skills)
	assert.Equal(t, "me.png:png-bytes", image)
}

func TestFormEncode(t *testing.T) {
	body, contentType, err := NewForm().Field("a", "1").Field("b", "2").Encode()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(contentType, "multipart/form-data; boundary="))

	boundary := strings.TrimPrefix(contentType, "multipart/form-data; boundary=")
	r := multipart.NewReader(bytes.NewReader(body), boundary)
	var names []string
	for {
		p, err := r.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, p.FormName())
	}
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestCheckResponse(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    string
		message string
	}{
		{"unauthorized", 401, `{"detail":"Given token not valid"}`, output.CodeAuth, "Given token not valid"},
		{"unauthorized empty", 401, ``, output.CodeAuth, "Authentication required"},
		{"forbidden", 403, `{"detail":"Only clients can post projects."}`, output.CodeForbidden, "Only clients can post projects."},
		{"not found", 404, `{"detail":"Not found."}`, output.CodeNotFound, "Resource not found: projects/9/"},
		{"rate limited", 429, ``, output.CodeRateLimit, "Rate limited"},
		{"field error", 400, `{"username":["A user with that username already exists."]}`, output.CodeValidation, "username: A user with that username already exists."},
		{"non field error", 400, `{"non_field_errors":["Choose exactly one role."],"password":["x"]}`, output.CodeValidation, "Choose exactly one role."},
		{"message key", 422, `{"message":"bad budget"}`, output.CodeValidation, "bad budget"},
		{"list body", 400, `["Proposal already accepted."]`, output.CodeValidation, "Proposal already accepted."},
		{"validation empty", 400, `not json`, output.CodeValidation, "Request rejected (HTTP 400)"},
		{"server error", 500, `{"error":"boom"}`, output.CodeAPI, "boom"},
		{"server error html", 502, `<html>`, output.CodeAPI, "Server error (502)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := &Response{
				StatusCode: tt.status,
				Header:     http.Header{},
				Data:       []byte(tt.body),
				Request:    NewRequest("GET", "projects/9/", nil),
			}
			err := CheckResponse(resp)
			require.Error(t, err)
			e := output.AsError(err)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, tt.status, e.HTTPStatus)
		})
	}
}

func TestCheckResponseAttachesBody(t *testing.T) {
	body := `{"email":["This email is already registered."],"username":["taken"]}`
	err := CheckResponse(&Response{StatusCode: 400, Data: []byte(body)})
	e := output.AsError(err)
	assert.Equal(t, "email: This email is already registered.", e.Message)
	assert.JSONEq(t, body, string(e.Body))
}

func TestCheckResponseRetryAfter(t *testing.T) {
	err := CheckResponse(&Response{StatusCode: 429, Header: http.Header{"Retry-After": {"30"}}})
	e := output.AsError(err)
	assert.Equal(t, "Try again in 30 seconds", e.Hint)
}

func TestCheckResponseSuccess(t *testing.T) {
	for _, status := range []int{200, 201, 204} {
		assert.NoError(t, CheckResponse(&Response{StatusCode: status}))
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	mw := func(name string) Middleware {
		return func(next Doer) Doer {
			return DoerFunc(func(ctx context.Context, req *Request) (*Response, error) {
				order = append(order, name)
				return next.Do(ctx, req)
			})
		}
	}
	base := DoerFunc(func(context.Context, *Request) (*Response, error) {
		order = append(order, "base")
		return &Response{StatusCode: 200}, nil
	})
	_, err := Chain(base, mw("outer"), mw("inner")).Do(context.Background(), NewRequest("GET", "x/", nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"outer", "inner", "base"}, order)
}

func TestTraceNeverLogsCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base := DoerFunc(func(_ context.Context, req *Request) (*Response, error) {
		return &Response{StatusCode: 200, Request: req}, nil
	})
	d := Chain(base, WithCredentials(&memTokens{token: "super-secret-token"}), WithTrace(logger, nil))

	req := NewRequest("GET", "notifications/", nil)
	req.ID = "trace-1"
	_, err := d.Do(context.Background(), req)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "path=notifications/")
	assert.Contains(t, out, "request_id=trace-1")
	assert.Contains(t, out, "status=200")
	assert.Contains(t, out, "authenticated=true")
	assert.NotContains(t, out, "super-secret-token")
}

func TestRefreshOutcome(t *testing.T) {
	ok := Renewed("tok")
	assert.True(t, ok.Renewed())
	assert.Equal(t, "tok", ok.Token())
	assert.NoError(t, ok.Err())

	cause := errors.New("revoked")
	failed := RefreshFailed(cause)
	assert.False(t, failed.Renewed())
	assert.Empty(t, failed.Token())
	assert.ErrorIs(t, failed.Err(), cause)

	assert.ErrorIs(t, RefreshFailed(nil).Err(), ErrRefreshFailed)
	assert.False(t, Renewed("").Renewed(), "an empty token is not a renewal")
	assert.ErrorIs(t, Renewed("").Err(), ErrRefreshFailed)
	assert.ErrorIs(t, RefreshOutcome{}.Err(), ErrRefreshFailed)
}

func TestRequestClone(t *testing.T) {
	req := NewRequest("POST", "projects/", []byte("abc"))
	req.Query = url.Values{"a": {"1"}}
	req.Header.Set("X-Test", "1")

	c := req.Clone()
	c.Body[0] = 'z'
	c.Query["a"][0] = "2"
	c.Header.Set("X-Test", "2")

	assert.Equal(t, "abc", string(req.Body))
	assert.Equal(t, "1", req.Query.Get("a"))
	assert.Equal(t, "1", req.Header.Get("X-Test"))
}
