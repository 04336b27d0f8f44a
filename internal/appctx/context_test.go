package appctx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/gig/internal/auth"
	"github.com/gigmarket/gig/internal/config"
	"github.com/gigmarket/gig/internal/fakeapi"
	"github.com/gigmarket/gig/internal/marketplace"
	"github.com/gigmarket/gig/internal/session"
)

func newTestApp(t *testing.T, cfg *config.Config, flags GlobalFlags) (*App, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	store := session.NewStore(session.NewMemoryBackend(), "test")
	app, err := NewApp(cfg, flags, WithIO(strings.NewReader(""), &stdout, &stderr), WithSessionStore(store))
	require.NoError(t, err)
	return app, &stdout, &stderr
}

func TestNewApp(t *testing.T) {
	app, _, _ := newTestApp(t, config.Default(), GlobalFlags{})

	assert.NotNil(t, app.Auth)
	assert.NotNil(t, app.API)
	assert.NotNil(t, app.Marketplace)
	assert.NotNil(t, app.Output)
	assert.NotNil(t, app.Logger)
	assert.Equal(t, 0, app.Hooks.Level())
	assert.False(t, app.IsInteractive())
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.BaseURL = "http://gigs.example.com/api/"

	_, err := NewApp(cfg, GlobalFlags{}, WithIO(nil, &bytes.Buffer{}, &bytes.Buffer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure")
}

func TestNewAppUnknownFormatFlag(t *testing.T) {
	_, err := NewApp(config.Default(), GlobalFlags{Format: "xml"},
		WithSessionStore(session.NewStore(session.NewMemoryBackend(), "test")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown format")
}

func TestWithAppAndFromContext(t *testing.T) {
	app, _, _ := newTestApp(t, config.Default(), GlobalFlags{})

	ctx := WithApp(context.Background(), app)
	assert.Same(t, app, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}

func TestFlagsOverrideConfiguredFormat(t *testing.T) {
	cfg := config.Default()
	cfg.Format = "yaml"

	app, stdout, _ := newTestApp(t, cfg, GlobalFlags{JSON: true})
	require.NoError(t, app.OK(map[string]any{"id": 1}))

	var env map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &env))
	assert.Equal(t, true, env["ok"])
}

func TestVerboseLevel(t *testing.T) {
	app, _, stderr := newTestApp(t, config.Default(), GlobalFlags{Verbose: 5})
	assert.Equal(t, 2, app.Hooks.Level())

	app.Logger.Debug("probe")
	assert.Contains(t, stderr.String(), "probe")

	app, _, stderr = newTestApp(t, config.Default(), GlobalFlags{})
	app.Logger.Debug("probe")
	assert.Empty(t, stderr.String())
}

func TestStatsPrintedToStderr(t *testing.T) {
	srv := fakeapi.New()
	t.Cleanup(srv.Close)
	srv.AddUser("ada", "pw", false)

	cfg := config.Default()
	cfg.BaseURL = srv.URL()
	app, stdout, stderr := newTestApp(t, cfg, GlobalFlags{JSON: true, Stats: true})

	_, err := app.Auth.Login(context.Background(), auth.Credentials{Username: "ada", Password: "pw"})
	require.NoError(t, err)
	require.NoError(t, app.OK("done"))

	assert.NotContains(t, stdout.String(), "Session:")
	assert.Contains(t, stderr.String(), "Session: ")
	assert.Contains(t, stderr.String(), "requests")
}

func TestStatsSuppressedForMachineOutput(t *testing.T) {
	app, _, stderr := newTestApp(t, config.Default(), GlobalFlags{Quiet: true, Stats: true})
	require.NoError(t, app.OK("done"))
	assert.Empty(t, stderr.String())
}

func TestPipelineAttachesStoredToken(t *testing.T) {
	srv := fakeapi.New()
	t.Cleanup(srv.Close)
	srv.AddUser("ada", "pw", false)
	srv.AddProject("ada", "Logo", "design", "100.00")

	cfg := config.Default()
	cfg.BaseURL = srv.URL()
	app, _, _ := newTestApp(t, cfg, GlobalFlags{})

	_, err := app.Marketplace.ListProjects(context.Background(), marketplace.ProjectFilter{})
	require.Error(t, err, "no session yet")

	_, err = app.Auth.Login(context.Background(), auth.Credentials{Username: "ada", Password: "pw"})
	require.NoError(t, err)

	projects, err := app.Marketplace.ListProjects(context.Background(), marketplace.ProjectFilter{})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Logo", projects[0].Title)
}
