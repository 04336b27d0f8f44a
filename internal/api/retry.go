package api

import (
	"context"
	"net/http"
)

// RefreshOutcome is the result of a session refresh: either a renewed
// access token or the reason the session could not be renewed.
type RefreshOutcome struct {
	token string
	err   error
}

// Renewed returns a successful outcome carrying the new access token.
func Renewed(token string) RefreshOutcome {
	return RefreshOutcome{token: token}
}

// RefreshFailed returns a failed outcome. A nil err is replaced with
// ErrRefreshFailed so a failure is never mistaken for success.
func RefreshFailed(err error) RefreshOutcome {
	if err == nil {
		err = ErrRefreshFailed
	}
	return RefreshOutcome{err: err}
}

// Renewed reports whether the refresh produced a new access token.
func (o RefreshOutcome) Renewed() bool { return o.err == nil && o.token != "" }

// Token returns the renewed access token, or "" on failure.
func (o RefreshOutcome) Token() string {
	if !o.Renewed() {
		return ""
	}
	return o.token
}

// Err returns the failure reason, or nil when renewed.
func (o RefreshOutcome) Err() error {
	if o.Renewed() {
		return nil
	}
	if o.err == nil {
		return ErrRefreshFailed
	}
	return o.err
}

// Refresher renews the session. stale is the access token the caller's
// rejected request carried, or "" if it carried none.
type Refresher interface {
	Refresh(ctx context.Context, stale string) RefreshOutcome
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context, stale string) RefreshOutcome

// Refresh calls f(ctx, stale).
func (f RefresherFunc) Refresh(ctx context.Context, stale string) RefreshOutcome {
	return f(ctx, stale)
}

// WithRefreshRetry resends a request rejected with 401 exactly once after a
// successful session refresh. It must sit outside WithCredentials so the
// resend picks up the renewed token.
//
// A request already marked Retried is never refreshed again. When the
// refresh fails the original 401 response is returned unchanged.
func WithRefreshRetry(refresher Refresher, hooks Hooks) Middleware {
	hooks = hooksOrNop(hooks)
	return func(next Doer) Doer {
		return DoerFunc(func(ctx context.Context, req *Request) (*Response, error) {
			resp, err := next.Do(ctx, req)
			if err != nil || resp.StatusCode != http.StatusUnauthorized || req.Retried {
				return resp, err
			}

			retry := req.Clone()
			retry.Retried = true

			outcome := refresher.Refresh(ctx, BearerToken(resp.Request))
			if !outcome.Renewed() {
				return resp, nil
			}

			hooks.OnRetry(retry)
			return next.Do(ctx, retry)
		})
	}
}
