// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/charmbracelet/x/term"

	"github.com/gigmarket/gig/internal/api"
	"github.com/gigmarket/gig/internal/auth"
	"github.com/gigmarket/gig/internal/config"
	"github.com/gigmarket/gig/internal/marketplace"
	"github.com/gigmarket/gig/internal/observability"
	"github.com/gigmarket/gig/internal/output"
	"github.com/gigmarket/gig/internal/session"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config      *config.Config
	Store       *session.Store
	Auth        *auth.Manager
	API         *api.Client
	Marketplace *marketplace.Service
	Output      *output.Writer
	Logger      *slog.Logger

	// Observability
	Collector *observability.SessionCollector
	Hooks     *observability.CLIHooks

	// Flags holds the global flag values
	Flags GlobalFlags

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON    bool
	Quiet   bool
	Styled  bool // Force styled output (even when piped)
	IDsOnly bool
	Count   bool
	Format  string
	JQ      string

	// Connection flags
	BaseURL        string
	Environment    string
	SessionBackend string

	// Behavior flags, resolved against the config before NewApp
	Verbose int // 0=off, 1=session events, 2=session events+requests (stacks with -v -v or -vv)
	Stats   bool
	NoStats bool
}

// Option customizes NewApp. Tests use these to inject I/O and a session.
type Option func(*options)

type options struct {
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	httpClient *http.Client
	store      *session.Store
}

// WithIO replaces the process stdin, stdout and stderr.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(o *options) {
		o.stdin, o.stdout, o.stderr = in, out, errOut
	}
}

// WithHTTPClient sets the client used for every network send.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithSessionStore uses store instead of opening the configured backend.
func WithSessionStore(store *session.Store) Option {
	return func(o *options) { o.store = store }
}

// NewApp wires the request pipeline, session store and output writer from
// the resolved configuration.
func NewApp(cfg *config.Config, flags GlobalFlags, opts ...Option) (*App, error) {
	o := options{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	baseURL, err := cfg.ResolveBaseURL()
	if err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		Flags:  flags,
		stdin:  o.stdin,
		stdout: o.stdout,
		stderr: o.stderr,
	}
	if err := app.applyOutput(cfg.Format); err != nil {
		return nil, err
	}

	level := app.verboseLevel()
	app.Logger = slog.New(slog.DiscardHandler)
	if level > 0 {
		app.Logger = slog.New(slog.NewTextHandler(o.stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}

	// Collector always runs to gather stats; hooks control trace verbosity.
	app.Collector = observability.NewSessionCollector()
	app.Hooks = observability.NewCLIHooks(level, app.Collector, observability.NewTraceWriterTo(o.stderr))

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	sender, err := api.NewSender(baseURL, httpClient)
	if err != nil {
		return nil, output.ErrUsage(err.Error())
	}

	store := o.store
	if store == nil {
		store, err = session.Open(session.Options{
			Backend:  cfg.SessionBackend,
			Dir:      config.GlobalConfigDir(),
			RedisURL: cfg.RedisURL,
			Origin:   sender.BaseURL(),
			Warnings: o.stderr,
		})
		if err != nil {
			return nil, output.ErrUsage(err.Error())
		}
	}
	app.Store = store

	refresher := auth.NewRefresher(sender, store,
		auth.WithLogger(app.Logger),
		auth.WithRefreshTimeout(cfg.Timeout),
		auth.WithRefreshObserver(app.Hooks.OnRefresh),
	)
	app.API = api.NewClient(api.Chain(sender,
		api.WithRefreshRetry(refresher, app.Hooks),
		api.WithCredentials(store),
		api.WithTrace(app.Logger, app.Hooks),
	))
	app.Marketplace = marketplace.New(app.API)

	public := api.NewClient(api.Chain(sender, api.WithTrace(app.Logger, app.Hooks)))
	app.Auth = auth.NewManager(public, store, refresher, app.Marketplace)

	return app, nil
}

// NewConfigApp creates an App with output only, for commands that must work
// while the configuration itself is invalid.
func NewConfigApp(cfg *config.Config, flags GlobalFlags, opts ...Option) (*App, error) {
	o := options{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}
	app := &App{
		Config: cfg,
		Flags:  flags,
		Logger: slog.New(slog.DiscardHandler),
		stdin:  o.stdin,
		stdout: o.stdout,
		stderr: o.stderr,
	}
	// A bad configured format must not block "config set format ...".
	if err := app.applyOutput(cfg.Format); err != nil {
		if err := app.applyOutput("auto"); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// applyOutput picks the output format. Flags win over the configured format;
// the specific modes are checked first.
func (a *App) applyOutput(configured string) error {
	format, err := output.ParseFormat(configured)
	if err != nil {
		return err
	}
	if a.Flags.Format != "" {
		if format, err = output.ParseFormat(a.Flags.Format); err != nil {
			return err
		}
	}
	switch {
	case a.Flags.IDsOnly:
		format = output.FormatIDs
	case a.Flags.Count:
		format = output.FormatCount
	case a.Flags.Quiet:
		format = output.FormatQuiet
	case a.Flags.JSON:
		format = output.FormatJSON
	case a.Flags.Styled:
		format = output.FormatStyled
	}
	a.Output = output.New(output.Options{
		Format: format,
		Writer: a.stdout,
		JQ:     a.Flags.JQ,
	})
	return nil
}

// verboseLevel clamps the -v count to the levels the hooks know.
func (a *App) verboseLevel() int {
	return min(max(a.Flags.Verbose, 0), 2)
}

// OK outputs a success response and the session statistics when enabled.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if err := a.Output.OK(data, opts...); err != nil {
		return err
	}
	a.printStats()
	return nil
}

// Err outputs an error response, printing stats to stderr if enabled.
func (a *App) Err(err error) error {
	if outputErr := a.Output.Err(err); outputErr != nil {
		return outputErr
	}
	a.printStats()
	return nil
}

func (a *App) printStats() {
	if a.Collector == nil || !a.Flags.Stats || a.isMachineOutput() {
		return
	}
	observability.WriteSummary(a.stderr, a.Collector.Summary())
}

// isMachineOutput returns true if the output mode is intended for programmatic consumption.
// Checks both flags and config-driven format settings.
func (a *App) isMachineOutput() bool {
	if a.Flags.Quiet || a.Flags.IDsOnly || a.Flags.Count || a.Flags.JQ != "" {
		return true
	}
	switch a.Flags.Format {
	case "quiet", "ids", "count":
		return true
	}
	return a.Config != nil && a.Config.Format == "quiet"
}

// Stdin returns the input stream for prompts and piped content.
func (a *App) Stdin() io.Reader { return a.stdin }

// Stderr returns the stream for notices that must stay out of the data.
func (a *App) Stderr() io.Writer { return a.stderr }

// IsInteractive returns true if prompts can be shown: stdin is a terminal
// and no machine output mode is set.
func (a *App) IsInteractive() bool {
	if a.isMachineOutput() || a.Flags.JSON {
		return false
	}
	f, ok := a.stdin.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(f.Fd())
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	app, _ := ctx.Value(appKey).(*App)
	return app
}
