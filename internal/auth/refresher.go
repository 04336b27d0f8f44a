package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/gigmarket/gig/internal/api"
	"github.com/gigmarket/gig/internal/session"
)

// RefreshPath is the token refresh endpoint, relative to the base URL.
const RefreshPath = "token/refresh/"

var (
	// ErrNoRefreshToken means the session holds no refresh token.
	ErrNoRefreshToken = errors.New("no refresh token stored")

	// ErrMalformedRefresh means the refresh endpoint answered 2xx without
	// a usable access token.
	ErrMalformedRefresh = errors.New("refresh response carried no access token")
)

// Refresher renews the access token with the stored refresh token.
//
// Concurrent callers share a single in-flight refresh. A caller whose stale
// token has already been replaced in the store gets the current token
// without a network call. Any failure clears both tokens.
type Refresher struct {
	sender  api.Doer
	store   *session.Store
	logger  *slog.Logger
	timeout time.Duration
	observe func(ok bool)

	group singleflight.Group
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithLogger sets the debug logger.
func WithLogger(l *slog.Logger) RefresherOption {
	return func(r *Refresher) { r.logger = l }
}

// WithRefreshTimeout bounds the shared refresh call.
func WithRefreshTimeout(d time.Duration) RefresherOption {
	return func(r *Refresher) { r.timeout = d }
}

// WithRefreshObserver is called after every refresh that reached the network.
func WithRefreshObserver(fn func(ok bool)) RefresherOption {
	return func(r *Refresher) { r.observe = fn }
}

// NewRefresher creates a refresher. sender must be the bare sender, never a
// chain that attaches credentials or retries.
func NewRefresher(sender api.Doer, store *session.Store, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		sender:  sender,
		store:   store,
		logger:  slog.New(slog.DiscardHandler),
		timeout: api.DefaultTimeout,
		observe: func(bool) {},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh implements api.Refresher.
func (r *Refresher) Refresh(ctx context.Context, stale string) api.RefreshOutcome {
	ch := r.group.DoChan("refresh", func() (any, error) {
		// The refresh outlives any one caller: a cancelled caller must not
		// fail it for everyone and wipe the session.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.refresh(rctx, stale), nil
	})

	select {
	case res := <-ch:
		return res.Val.(api.RefreshOutcome)
	case <-ctx.Done():
		return api.RefreshFailed(ctx.Err())
	}
}

func (r *Refresher) refresh(ctx context.Context, stale string) api.RefreshOutcome {
	if stale != "" {
		current, err := r.store.AccessToken(ctx)
		if err == nil && current != "" && current != stale {
			r.logger.DebugContext(ctx, "session already refreshed")
			return api.Renewed(current)
		}
	}

	refreshToken, err := r.store.RefreshToken(ctx)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("read refresh token: %w", err))
	}
	if refreshToken == "" {
		return r.fail(ctx, ErrNoRefreshToken)
	}

	access, err := r.exchange(ctx, refreshToken)
	r.observe(err == nil)
	if err != nil {
		return r.fail(ctx, err)
	}

	if err := r.store.SetAccessToken(ctx, access); err != nil {
		return r.fail(ctx, fmt.Errorf("store access token: %w", err))
	}
	r.logger.DebugContext(ctx, "session refreshed")
	return api.Renewed(access)
}

func (r *Refresher) exchange(ctx context.Context, refreshToken string) (string, error) {
	body, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return "", err
	}
	req := api.NewRequest(http.MethodPost, RefreshPath, body)
	req.ID = uuid.NewString()

	resp, err := r.sender.Do(ctx, req)
	if err != nil {
		return "", err
	}
	if err := api.CheckResponse(resp); err != nil {
		return "", err
	}

	var tokenResp struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(resp.Data, &tokenResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedRefresh, err)
	}
	if tokenResp.Access == "" {
		return "", ErrMalformedRefresh
	}
	return tokenResp.Access, nil
}

// fail clears both tokens and reports err. The role flag survives.
func (r *Refresher) fail(ctx context.Context, err error) api.RefreshOutcome {
	if clearErr := r.store.ClearTokens(ctx); clearErr != nil {
		err = errors.Join(err, fmt.Errorf("clear session: %w", clearErr))
	}
	r.logger.DebugContext(ctx, "session refresh failed", slog.String("error", err.Error()))
	return api.RefreshFailed(err)
}
