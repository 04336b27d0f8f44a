package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/gig/internal/appctx"
	"github.com/gigmarket/gig/internal/cli"
	"github.com/gigmarket/gig/internal/fakeapi"
	"github.com/gigmarket/gig/internal/output"
	"github.com/gigmarket/gig/internal/session"
)

// env runs gig commands against a fake API with a shared in-memory session.
type env struct {
	srv   *fakeapi.Server
	store *session.Store
	stdin string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("GIG_CACHE_DIR", t.TempDir())
	t.Setenv("GIG_BASE_URL", "")
	t.Setenv("GIG_FORMAT", "")
	t.Setenv("GIG_SESSION_BACKEND", "")
	t.Chdir(t.TempDir())

	srv := fakeapi.New()
	t.Cleanup(srv.Close)
	srv.AddUser("carol", "client-pw", false)
	srv.AddUser("fred", "freelancer-pw", true)
	return &env{srv: srv, store: session.NewStore(session.NewMemoryBackend(), srv.URL())}
}

type result struct {
	Code    int            `json:"-"`
	OK      bool           `json:"ok"`
	Data    any            `json:"data"`
	Summary string         `json:"summary"`
	Meta    map[string]any `json:"meta"`
	Error   string         `json:"error"`
	ErrCode string         `json:"code"`
}

func (e *env) run(t *testing.T, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append(args, "--base-url", e.srv.URL(), "--json")
	code := cli.Run(context.Background(), args, &stdout,
		appctx.WithIO(strings.NewReader(e.stdin), &stdout, &stderr),
		appctx.WithSessionStore(e.store),
		appctx.WithHTTPClient(e.srv.Client()),
	)
	e.stdin = ""

	var r result
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &r), stdout.String())
	r.Code = code
	return r
}

func (e *env) login(t *testing.T, user, password string) {
	t.Helper()
	r := e.run(t, "auth", "login", "-u", user, "-p", password)
	require.Equal(t, output.ExitOK, r.Code, r.Error)
}

func dataMap(t *testing.T, r result) map[string]any {
	t.Helper()
	m, ok := r.Data.(map[string]any)
	require.True(t, ok, "data is %T", r.Data)
	return m
}

func idOf(t *testing.T, r result) string {
	t.Helper()
	id, ok := dataMap(t, r)["id"].(float64)
	require.True(t, ok)
	return strconv.Itoa(int(id))
}

func TestAuthStatusAndLogout(t *testing.T) {
	e := newEnv(t)

	r := e.run(t, "auth", "login", "-u", "carol", "-p", "wrong")
	assert.Equal(t, output.ExitAuth, r.Code)

	e.login(t, "carol", "client-pw")
	r = e.run(t, "auth", "status")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	assert.Equal(t, true, dataMap(t, r)["authenticated"])

	r = e.run(t, "auth", "logout")
	require.Equal(t, output.ExitOK, r.Code, r.Error)

	r = e.run(t, "projects", "list")
	assert.Equal(t, output.ExitAuth, r.Code)
}

func TestPasswordFromStdin(t *testing.T) {
	e := newEnv(t)
	e.stdin = "freelancer-pw\n"

	r := e.run(t, "auth", "login", "-u", "fred", "--password-stdin")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	assert.Equal(t, "freelancer", dataMap(t, r)["role"])
}

func TestProjectLifecycle(t *testing.T) {
	e := newEnv(t)
	e.login(t, "carol", "client-pw")

	e.stdin = "Build a landing page\nwith a contact form\n"
	r := e.run(t, "projects", "create", "-t", "Landing page", "-d", "-", "--budget", "750", "--category", "web")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	assert.Contains(t, r.Summary, "Landing page")
	assert.Equal(t, "Build a landing page\nwith a contact form", dataMap(t, r)["description"])
	id := idOf(t, r)

	r = e.run(t, "projects", "list", "--category", "web")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	assert.Len(t, r.Data, 1)

	r = e.run(t, "projects", "delete", id, "-y")
	require.Equal(t, output.ExitOK, r.Code, r.Error)

	r = e.run(t, "projects", "list")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	assert.Empty(t, r.Data)
}

func TestFreelancerCannotPostProjects(t *testing.T) {
	e := newEnv(t)
	e.login(t, "fred", "freelancer-pw")

	r := e.run(t, "projects", "create", "-t", "Nope", "--budget", "10")
	assert.Equal(t, output.ExitForbidden, r.Code)
}

func TestProposalToContractFlow(t *testing.T) {
	e := newEnv(t)
	project := strconv.Itoa(e.srv.AddProject("carol", "API client", "backend", "1200.00"))

	e.login(t, "fred", "freelancer-pw")
	r := e.run(t, "proposals", "send", "--project", project, "-t", "I can do this", "--bid", "1100")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	proposal := idOf(t, r)

	e.login(t, "carol", "client-pw")
	r = e.run(t, "notifications", "count")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	assert.Equal(t, float64(1), dataMap(t, r)["unread"])

	r = e.run(t, "notifications", "list", "--unread")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	list, ok := r.Data.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	notification := strconv.Itoa(int(list[0].(map[string]any)["id"].(float64)))

	r = e.run(t, "notifications", "read", notification)
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	r = e.run(t, "notifications", "count")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	assert.Equal(t, float64(0), dataMap(t, r)["unread"])

	r = e.run(t, "proposals", "accept", proposal)
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	contract := idOf(t, r)
	assert.Equal(t, "Active", dataMap(t, r)["status"])

	r = e.run(t, "proposals", "accept", proposal)
	assert.Equal(t, output.ExitValidation, r.Code)

	r = e.run(t, "messages", "send", contract, "Welcome aboard")
	require.Equal(t, output.ExitOK, r.Code, r.Error)

	e.login(t, "fred", "freelancer-pw")
	r = e.run(t, "messages", "list", contract)
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	msgs, ok := r.Data.([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "carol", msgs[0].(map[string]any)["sender_username"])

	r = e.run(t, "contracts", "complete", contract)
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	assert.Contains(t, r.Meta["next"], "contracts review "+contract)

	r = e.run(t, "contracts", "list", "--status", "Completed")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	assert.Len(t, r.Data, 1)
}

func TestContractReviewValidation(t *testing.T) {
	e := newEnv(t)
	contract := strconv.Itoa(e.srv.AddContract("carol", "fred", "Logo", "300.00"))
	e.login(t, "carol", "client-pw")
	before := e.srv.TotalCalls()

	r := e.run(t, "contracts", "review", contract, "-r", "ok", "--rating", "5")
	assert.Equal(t, output.ExitUsage, r.Code)
	assert.Contains(t, r.Error, "at least 3 characters")

	r = e.run(t, "contracts", "review", contract, "-r", "Great work", "--rating", "9")
	assert.Equal(t, output.ExitUsage, r.Code)
	assert.Equal(t, before, e.srv.TotalCalls(), "invalid reviews are rejected before any request")

	r = e.run(t, "contracts", "review", contract, "-r", "Great work", "--rating", "5")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	c, ok := e.srv.Contract(mustAtoi(t, contract))
	require.True(t, ok)
	require.NotNil(t, c.Rating)
	assert.Equal(t, 5, *c.Rating)
	assert.Equal(t, "Great work", c.Review)
}

func TestProfileUpdate(t *testing.T) {
	e := newEnv(t)

	e.login(t, "fred", "freelancer-pw")
	r := e.run(t, "profile", "update", "--company", "Acme")
	assert.Equal(t, output.ExitUsage, r.Code)

	r = e.run(t, "profile", "update", "--skills", "go,sql", "--hourly-rate", "85")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	p, ok := e.srv.FreelancerProfileOf("fred")
	require.True(t, ok)
	assert.Equal(t, "go,sql", p.Skills)

	r = e.run(t, "profile", "show")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	assert.Equal(t, "Freelancer profile of fred", r.Summary)

	e.login(t, "carol", "client-pw")
	r = e.run(t, "profile", "update")
	assert.Equal(t, output.ExitUsage, r.Code)
	assert.Contains(t, r.Error, "Nothing to update")

	r = e.run(t, "profile", "update", "--company", "Acme")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	assert.Equal(t, "Acme", dataMap(t, r)["company_name"])
	assert.Equal(t, "carol", dataMap(t, r)["username"])
}

func TestConfigSetAndShow(t *testing.T) {
	e := newEnv(t)

	r := e.run(t, "config", "set", "timeout", "45s")
	require.Equal(t, output.ExitOK, r.Code, r.Error)

	r = e.run(t, "config", "set", "session_backend", "floppy")
	assert.Equal(t, output.ExitUsage, r.Code)

	r = e.run(t, "config", "show")
	require.Equal(t, output.ExitOK, r.Code, r.Error)
	entries, ok := r.Data.([]any)
	require.True(t, ok)
	found := false
	for _, raw := range entries {
		entry := raw.(map[string]any)
		if entry["key"] == "timeout" {
			found = true
			assert.Equal(t, "45s", entry["value"])
			assert.Equal(t, "global", entry["source"])
		}
	}
	assert.True(t, found, "timeout entry missing")
}

func mustAtoi(t *testing.T, s string) int {
	t.Helper()
	n, err := strconv.Atoi(s)
	require.NoError(t, err)
	return n
}
