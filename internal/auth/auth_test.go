package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/gig/internal/api"
	"github.com/gigmarket/gig/internal/fakeapi"
	"github.com/gigmarket/gig/internal/marketplace"
	"github.com/gigmarket/gig/internal/output"
	"github.com/gigmarket/gig/internal/session"
)

type harness struct {
	srv       *fakeapi.Server
	store     *session.Store
	sender    *api.Sender
	refresher *Refresher
	client    *api.Client
	manager   *Manager
	market    *marketplace.Service
	refreshes atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{srv: fakeapi.New()}
	t.Cleanup(h.srv.Close)

	sender, err := api.NewSender(h.srv.URL(), h.srv.Client())
	require.NoError(t, err)
	h.sender = sender
	h.store = session.NewStore(session.NewMemoryBackend(), sender.BaseURL())
	h.refresher = NewRefresher(sender, h.store, WithRefreshObserver(func(bool) { h.refreshes.Add(1) }))
	h.client = api.NewClient(api.Chain(sender,
		api.WithRefreshRetry(h.refresher, nil),
		api.WithCredentials(h.store),
		api.WithTrace(nil, nil),
	))
	h.market = marketplace.New(h.client)
	h.manager = NewManager(api.NewClient(sender), h.store, h.refresher, h.market)
	return h
}

// loginAs seeds a user and stores a session for them.
func (h *harness) loginAs(t *testing.T, username string, freelancer bool) (access, refresh string) {
	t.Helper()
	h.srv.AddUser(username, "pw-"+username, freelancer)
	access, refresh = h.srv.IssueTokens(username)
	require.NoError(t, h.store.Save(context.Background(), session.Session{
		AccessToken: access, RefreshToken: refresh, IsFreelancer: freelancer,
	}))
	return access, refresh
}

func TestRefresherRenewsAccessToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	oldAccess, refresh := h.loginAs(t, "ana", false)

	outcome := h.refresher.Refresh(ctx, oldAccess)
	require.True(t, outcome.Renewed(), "refresh failed: %v", outcome.Err())
	assert.NotEqual(t, oldAccess, outcome.Token())

	sess, err := h.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, outcome.Token(), sess.AccessToken)
	assert.Equal(t, refresh, sess.RefreshToken, "refresh token is left untouched")
	assert.Equal(t, 1, h.srv.Calls("POST token/refresh/"))
	assert.True(t, h.srv.AccessValid(outcome.Token()))
}

func TestRefresherWithoutRefreshTokenFailsWithoutNetwork(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Save(ctx, session.Session{AccessToken: "orphan", IsFreelancer: true}))

	for range 3 {
		outcome := h.refresher.Refresh(ctx, "orphan")
		assert.False(t, outcome.Renewed())
		assert.ErrorIs(t, outcome.Err(), ErrNoRefreshToken)
	}
	assert.Zero(t, h.srv.TotalCalls())
	assert.Zero(t, h.refreshes.Load())

	sess, err := h.store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, sess.AccessToken, "failed refresh leaves no tokens")
	assert.True(t, sess.IsFreelancer, "role survives a failed refresh")
}

func TestRefresherRejectedRefreshClearsTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	access, _ := h.loginAs(t, "ana", false)
	h.srv.RevokeRefresh()

	outcome := h.refresher.Refresh(ctx, access)
	assert.False(t, outcome.Renewed())
	assert.True(t, output.IsAuth(outcome.Err()))

	sess, err := h.store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, sess.AccessToken)
	assert.Empty(t, sess.RefreshToken)
	assert.Equal(t, 1, h.srv.Calls("POST token/refresh/"))
}

func TestRefresherServerErrorClearsTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	access, _ := h.loginAs(t, "ana", false)
	h.srv.FailRefreshes(1)

	outcome := h.refresher.Refresh(ctx, access)
	assert.False(t, outcome.Renewed())
	assert.Equal(t, output.CodeAPI, output.AsError(outcome.Err()).Code)

	rt, err := h.store.RefreshToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, rt)
}

func TestRefresherMalformedResponse(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(session.NewMemoryBackend(), "http://127.0.0.1:8000/api/accounts")
	require.NoError(t, store.Save(ctx, session.Session{AccessToken: "a", RefreshToken: "r"}))

	for name, body := range map[string]string{
		"empty access": `{"access":""}`,
		"not json":     `<html>`,
		"missing":      `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(ctx, session.Session{AccessToken: "a", RefreshToken: "r"}))
			sender := api.DoerFunc(func(_ context.Context, req *api.Request) (*api.Response, error) {
				return &api.Response{StatusCode: http.StatusOK, Data: []byte(body), Request: req}, nil
			})
			outcome := NewRefresher(sender, store).Refresh(ctx, "a")
			assert.False(t, outcome.Renewed())
			assert.ErrorIs(t, outcome.Err(), ErrMalformedRefresh)

			sess, err := store.Load(ctx)
			require.NoError(t, err)
			assert.False(t, sess.Authenticated())
		})
	}
}

func TestRefresherSendsRefreshTokenWithoutBearer(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(session.NewMemoryBackend(), "http://127.0.0.1:8000/api/accounts")
	require.NoError(t, store.Save(ctx, session.Session{AccessToken: "a", RefreshToken: "r-123"}))

	var sent *api.Request
	sender := api.DoerFunc(func(_ context.Context, req *api.Request) (*api.Response, error) {
		sent = req
		return &api.Response{StatusCode: http.StatusOK, Data: []byte(`{"access":"b"}`), Request: req}, nil
	})
	outcome := NewRefresher(sender, store).Refresh(ctx, "a")
	require.True(t, outcome.Renewed())

	assert.Equal(t, http.MethodPost, sent.Method)
	assert.Equal(t, RefreshPath, sent.Path)
	assert.JSONEq(t, `{"refresh":"r-123"}`, string(sent.Body))
	assert.Empty(t, sent.Header.Get("Authorization"))
	assert.NotEmpty(t, sent.ID)
}

func TestRefresherConvergesOnAlreadyRefreshedToken(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(session.NewMemoryBackend(), "http://127.0.0.1:8000/api/accounts")
	require.NoError(t, store.Save(ctx, session.Session{AccessToken: "new", RefreshToken: "r"}))

	sender := api.DoerFunc(func(context.Context, *api.Request) (*api.Response, error) {
		t.Fatal("no network call expected")
		return nil, nil
	})
	outcome := NewRefresher(sender, store).Refresh(ctx, "old")
	require.True(t, outcome.Renewed())
	assert.Equal(t, "new", outcome.Token())
}

func TestRefresherSharesInFlightRefresh(t *testing.T) {
	h := newHarness(t)
	access, _ := h.loginAs(t, "ana", false)
	h.srv.SetRefreshDelay(100 * time.Millisecond)

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i] = h.refresher.Refresh(context.Background(), access).Token()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.srv.Calls("POST token/refresh/"))
	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
		assert.NotEmpty(t, tok)
	}
}

func TestRefresherCallerCancellationDoesNotWipeSession(t *testing.T) {
	h := newHarness(t)
	access, _ := h.loginAs(t, "ana", false)
	h.srv.SetRefreshDelay(150 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	outcome := h.refresher.Refresh(ctx, access)
	assert.False(t, outcome.Renewed())
	assert.ErrorIs(t, outcome.Err(), context.DeadlineExceeded)

	// The shared refresh finishes in the background and stores the new token.
	assert.Eventually(t, func() bool {
		tok, err := h.store.AccessToken(context.Background())
		return err == nil && tok != "" && tok != access
	}, 2*time.Second, 10*time.Millisecond)
	rt, err := h.store.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, rt)
}

// Expired access token, valid refresh token: the request succeeds after one
// refresh and one resend.
func TestExpiredAccessTokenIsRenewedTransparently(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.loginAs(t, "cli", false)
	h.srv.AddUser("fre", "pw", true)
	h.srv.AddContract("cli", "fre", "Logo design", "250.00")
	h.srv.ExpireAccess()

	contracts, err := h.market.ListContracts(ctx)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, "Logo design", contracts[0].ProjectTitle)

	assert.Equal(t, 2, h.srv.Calls("GET contracts/"))
	assert.Equal(t, 1, h.srv.Calls("POST token/refresh/"))
}

// Both tokens invalid: the store is cleared and the caller sees the
// original 401.
func TestBothTokensInvalidClearsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.loginAs(t, "cli", true)
	h.srv.ExpireAccess()
	h.srv.RevokeRefresh()

	_, err := h.market.ListProjects(ctx, marketplace.ProjectFilter{})
	require.Error(t, err)
	e := output.AsError(err)
	assert.Equal(t, output.CodeAuth, e.Code)
	assert.Equal(t, "Given token not valid for any token type", e.Message)

	sess, err := h.store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, sess.AccessToken)
	assert.Empty(t, sess.RefreshToken)
	assert.Equal(t, 1, h.srv.Calls("GET projects/"))
	assert.Equal(t, 1, h.srv.Calls("POST token/refresh/"))

	// With no refresh token left, the next 401 triggers no refresh call.
	_, err = h.market.ListProjects(ctx, marketplace.ProjectFilter{})
	require.Error(t, err)
	assert.Equal(t, 2, h.srv.Calls("GET projects/"))
	assert.Equal(t, 1, h.srv.Calls("POST token/refresh/"))
}

// Concurrent requests rejected with 401 share one refresh and both succeed.
func TestConcurrentUnauthorizedRequestsShareOneRefresh(t *testing.T) {
	h := newHarness(t)
	h.loginAs(t, "cli", false)
	h.srv.AddProject("cli", "Website", "web", "1500.00")
	h.srv.Notify("cli", "Welcome")
	h.srv.ExpireAccess()
	h.srv.SetRefreshDelay(50 * time.Millisecond)

	var wg sync.WaitGroup
	var projectsErr, notificationsErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, projectsErr = h.market.ListProjects(context.Background(), marketplace.ProjectFilter{})
	}()
	go func() {
		defer wg.Done()
		_, notificationsErr = h.market.ListNotifications(context.Background())
	}()
	wg.Wait()

	require.NoError(t, projectsErr)
	require.NoError(t, notificationsErr)
	assert.Equal(t, 1, h.srv.Calls("POST token/refresh/"))
	assert.Equal(t, 2, h.srv.Calls("GET projects/"))
	assert.Equal(t, 2, h.srv.Calls("GET notifications/"))
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.srv.AddUser("fre", "secret", true)

	sess, err := h.manager.Login(ctx, Credentials{Username: "fre", Password: "secret"})
	require.NoError(t, err)
	assert.True(t, sess.IsFreelancer)

	stored, err := h.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sess, stored)
	assert.True(t, h.srv.AccessValid(stored.AccessToken))
	assert.Zero(t, h.srv.Calls("GET client-profile/"), "role came from the login response")
}

func TestLoginDetectsRoleWhenNotReported(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.srv.OmitRoleOnLogin()
	h.srv.AddUser("fre", "secret", true)

	sess, err := h.manager.Login(ctx, Credentials{Username: "fre", Password: "secret"})
	require.NoError(t, err)
	assert.True(t, sess.IsFreelancer)
	assert.Equal(t, 1, h.srv.Calls("GET client-profile/"))
	assert.Equal(t, 1, h.srv.Calls("GET freelancer-profile/"))

	freelancer, err := h.store.IsFreelancer(ctx)
	require.NoError(t, err)
	assert.True(t, freelancer)
}

func TestLoginBadCredentials(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("ana", "secret", false)

	_, err := h.manager.Login(context.Background(), Credentials{Username: "ana", Password: "wrong"})
	require.Error(t, err)
	e := output.AsError(err)
	assert.Equal(t, output.CodeAuth, e.Code)
	assert.Equal(t, "No active account found with the given credentials", e.Message)
	assert.Equal(t, "Check your username and password", e.Hint)
	assert.Zero(t, h.srv.Calls("POST token/refresh/"), "login never goes through the refresh pipeline")

	_, err = h.manager.Login(context.Background(), Credentials{Username: "ana"})
	assert.Equal(t, output.CodeUsage, output.AsError(err).Code)
}

func TestRegister(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	acct, err := h.manager.Register(ctx, Registration{
		Username: "newbie", Email: "newbie@example.com",
		Password: "pw12345!", Password2: "pw12345!", Role: RoleFreelancer,
	})
	require.NoError(t, err)
	assert.Equal(t, "newbie", acct.Username)
	assert.True(t, acct.IsFreelancer)
	assert.False(t, acct.IsClient)

	tok, err := h.store.AccessToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok, "registration does not log in")

	_, err = h.manager.Login(ctx, Credentials{Username: "newbie", Password: "pw12345!"})
	require.NoError(t, err)
}

func TestRegisterSurfacesFieldErrors(t *testing.T) {
	h := newHarness(t)
	h.srv.AddUser("taken", "pw", false)

	_, err := h.manager.Register(context.Background(), Registration{
		Username: "taken", Email: "other@example.com",
		Password: "pw", Password2: "pw", Role: RoleClient,
	})
	require.Error(t, err)
	e := output.AsError(err)
	assert.Equal(t, output.CodeValidation, e.Code)
	assert.Equal(t, "username: A user with that username already exists.", e.Message)
	assert.Contains(t, string(e.Body), "A user with that username already exists.")
}

func TestRegistrationValidate(t *testing.T) {
	valid := Registration{Username: "u", Email: "u@example.com", Password: "p", Password2: "p", Role: RoleClient}
	assert.NoError(t, valid.Validate())

	tests := map[string]func(r *Registration){
		"missing username":  func(r *Registration) { r.Username = " " },
		"missing email":     func(r *Registration) { r.Email = "" },
		"bad email":         func(r *Registration) { r.Email = "not-an-email" },
		"missing password":  func(r *Registration) { r.Password, r.Password2 = "", "" },
		"password mismatch": func(r *Registration) { r.Password2 = "q" },
		"unknown role":      func(r *Registration) { r.Role = "admin" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			r := valid
			mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.Equal(t, output.CodeUsage, output.AsError(err).Code)
		})
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.loginAs(t, "fre", true)

	require.NoError(t, h.manager.Logout(ctx))
	sess, err := h.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.Session{}, sess)
}

func TestManagerRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.manager.Refresh(ctx)
	require.Error(t, err)
	assert.Equal(t, "Not logged in", output.AsError(err).Message)

	access, _ := h.loginAs(t, "ana", false)
	require.NoError(t, h.manager.Refresh(ctx))
	tok, err := h.manager.Token(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, access, tok)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	st, err := h.manager.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Authenticated)
	assert.Equal(t, session.BackendMemory, st.Backend)
	assert.Equal(t, strings.TrimSuffix(h.sender.BaseURL(), "/"), st.Origin)

	u := h.srv.AddUser("fre", "pw", true)
	access, refresh := h.srv.IssueTokens("fre")
	require.NoError(t, h.store.Save(ctx, session.Session{AccessToken: access, RefreshToken: refresh, IsFreelancer: true}))

	st, err = h.manager.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.True(t, st.HasRefreshToken)
	assert.Equal(t, "freelancer", st.Role)
	assert.Equal(t, strconv.Itoa(u.ID), st.UserID)
	require.NotNil(t, st.ExpiresAt)
	assert.False(t, st.Expired)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), *st.ExpiresAt, time.Minute)
}

func TestStatusWithOpaqueToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.Save(ctx, session.Session{AccessToken: "opaque"}))

	st, err := h.manager.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Authenticated)
	assert.Nil(t, st.ExpiresAt)
	assert.Empty(t, st.UserID)
}
