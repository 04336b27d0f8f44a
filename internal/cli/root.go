// Package cli assembles the gig command tree.
package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gigmarket/gig/internal/appctx"
	"github.com/gigmarket/gig/internal/commands"
	"github.com/gigmarket/gig/internal/config"
	"github.com/gigmarket/gig/internal/output"
	"github.com/gigmarket/gig/internal/version"
)

// NewRootCmd creates the root cobra command with every subcommand
// registered. opts are applied to the App built for each run.
func NewRootCmd(opts ...appctx.Option) *cobra.Command {
	var flags appctx.GlobalFlags
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "gig",
		Short: "Command-line client for the freelance marketplace",
		Long: `gig talks to the marketplace API: clients post projects, freelancers send
proposals, accepted proposals become contracts, and both sides chat and
leave reviews. Sessions are renewed automatically when the access token
expires.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for help and shell completion requests
			if cmd.Name() == "help" || strings.HasPrefix(cmd.Name(), cobra.ShellCompRequestCmd) {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{
				BaseURL:        flags.BaseURL,
				Environment:    flags.Environment,
				SessionBackend: flags.SessionBackend,
				Format:         flags.Format,
				Timeout:        timeout,
			})
			if err != nil {
				return err
			}
			resolved := flags
			resolvePreferences(cmd, cfg, &resolved)

			var app *appctx.App
			if configOnly(cmd) {
				app, err = appctx.NewConfigApp(cfg, resolved, opts...)
			} else {
				app, err = appctx.NewApp(cfg, resolved, opts...)
			}
			if err != nil {
				return err
			}

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVar(&flags.Styled, "styled", false, "Force styled output (ANSI colors)")
	cmd.PersistentFlags().BoolVar(&flags.IDsOnly, "ids-only", false, "Output only IDs")
	cmd.PersistentFlags().BoolVar(&flags.Count, "count", false, "Output only count")
	cmd.PersistentFlags().StringVar(&flags.Format, "format", "", "Output format: auto, json, styled, quiet, yaml, ids, count")
	cmd.PersistentFlags().StringVar(&flags.JQ, "jq", "", "Filter the data with a jq expression")

	// Connection flags
	cmd.PersistentFlags().StringVar(&flags.BaseURL, "base-url", "", "API base URL (e.g. https://gigs.example.com/api/accounts/)")
	cmd.PersistentFlags().StringVarP(&flags.Environment, "env", "e", "", "Named environment from config (local, deploy)")
	cmd.PersistentFlags().StringVar(&flags.SessionBackend, "session-backend", "", "Session storage: keyring, file, redis, memory")
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "HTTP timeout per request (e.g. 30s)")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for session events, -vv for requests)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")
	cmd.PersistentFlags().BoolVar(&flags.NoStats, "no-stats", false, "Hide session statistics")

	_ = cmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions(
		[]string{"auto", "json", "styled", "quiet", "yaml", "ids", "count"}, cobra.ShellCompDirectiveNoFileComp))
	_ = cmd.RegisterFlagCompletionFunc("session-backend", cobra.FixedCompletions(
		[]string{"keyring", "file", "redis", "memory"}, cobra.ShellCompDirectiveNoFileComp))
	_ = cmd.RegisterFlagCompletionFunc("env", cobra.FixedCompletions(
		[]string{config.EnvLocal, config.EnvDeploy}, cobra.ShellCompDirectiveNoFileComp))

	cmd.AddCommand(commands.NewAuthCmd())
	cmd.AddCommand(commands.NewProjectsCmd())
	cmd.AddCommand(commands.NewProposalsCmd())
	cmd.AddCommand(commands.NewContractsCmd())
	cmd.AddCommand(commands.NewMessagesCmd())
	cmd.AddCommand(commands.NewNotificationsCmd())
	cmd.AddCommand(commands.NewProfileCmd())
	cmd.AddCommand(commands.NewConfigCmd())
	cmd.AddCommand(commands.NewCommandsCmd())
	cmd.AddCommand(commands.NewCompletionCmd())
	cmd.AddCommand(commands.NewVersionCmd())

	cmd.SetVersionTemplate(version.Full() + "\n")

	return cmd
}

// configOnly reports whether cmd or one of its parents runs without the
// API pipeline.
func configOnly(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[commands.AnnotationConfigOnly] == "true" {
			return true
		}
	}
	return false
}

// resolvePreferences fills stats and verbosity from the config unless the
// matching flag was given explicitly.
func resolvePreferences(cmd *cobra.Command, cfg *config.Config, flags *appctx.GlobalFlags) {
	pf := cmd.Flags()

	switch {
	case pf.Changed("no-stats") && flags.NoStats:
		flags.Stats = false
	case pf.Changed("stats"):
		// explicit value wins
	case cfg.Stats != nil:
		flags.Stats = *cfg.Stats
	}

	if !pf.Changed("verbose") && cfg.Verbose != nil {
		flags.Verbose = *cfg.Verbose
	}
}

// Execute runs the root command and exits with the mapped exit code.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// Run executes the command line in args and returns the process exit code.
// Errors are rendered to stdout in the selected output format.
func Run(ctx context.Context, args []string, stdout io.Writer, opts ...appctx.Option) int {
	cmd := NewRootCmd(opts...)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)

	executedCmd, err := cmd.ExecuteContextC(ctx)
	if err == nil {
		return output.ExitOK
	}
	if errors.Is(err, context.Canceled) {
		err = output.ErrUsage("Interrupted")
	}

	// Transform Cobra errors into usage errors
	err = transformCobraError(err)
	apiErr := output.AsError(err)

	// Use app.Err() when setup got far enough (for --stats support)
	if executedCmd != nil {
		if app := appctx.FromContext(executedCmd.Context()); app != nil {
			_ = app.Err(err)
			return apiErr.ExitCode()
		}
	}

	// Fallback: output error directly (app not available, e.g., during setup)
	writer := output.New(output.Options{
		Format: fallbackFormat(cmd),
		Writer: stdout,
	})
	_ = writer.Err(err)
	return apiErr.ExitCode()
}

func fallbackFormat(cmd *cobra.Command) output.Format {
	pf := cmd.PersistentFlags()
	quiet, _ := pf.GetBool("quiet")
	idsOnly, _ := pf.GetBool("ids-only")
	count, _ := pf.GetBool("count")
	styled, _ := pf.GetBool("styled")
	jsonFlag, _ := pf.GetBool("json")

	switch {
	case quiet:
		return output.FormatQuiet
	case idsOnly:
		return output.FormatIDs
	case count:
		return output.FormatCount
	case jsonFlag:
		return output.FormatJSON
	case styled:
		return output.FormatStyled
	}
	if s, _ := pf.GetString("format"); s != "" {
		if f, err := output.ParseFormat(s); err == nil {
			return f
		}
	}
	return output.FormatAuto
}

var (
	shorthandRe = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)
	argCountRe  = regexp.MustCompile(`^accepts (\d+) arg\(s\), received (\d+)$`)
)

// transformCobraError turns Cobra's flag and argument errors into usage
// errors so they map to the usage exit code.
func transformCobraError(err error) error {
	var e *output.Error
	if errors.As(err, &e) {
		return err
	}
	msg := err.Error()

	switch {
	case strings.HasPrefix(msg, "flag needs an argument: "):
		flag := strings.TrimPrefix(msg, "flag needs an argument: ")
		return output.ErrUsage(flag + " requires a value")
	case strings.HasPrefix(msg, "unknown flag: "):
		return output.ErrUsage("Unknown option: " + strings.TrimPrefix(msg, "unknown flag: "))
	case strings.HasPrefix(msg, "unknown shorthand flag: "):
		if m := shorthandRe.FindStringSubmatch(msg); len(m) > 1 {
			return output.ErrUsage("Unknown option: " + m[1])
		}
	case strings.HasPrefix(msg, "unknown command "):
		return output.ErrUsageHint(msg, "Run 'gig commands' to list commands")
	case strings.Contains(msg, "invalid argument"), strings.HasPrefix(msg, "requires at least"):
		return output.ErrUsage(msg)
	}
	if m := argCountRe.FindStringSubmatch(msg); len(m) > 2 {
		if m[2] == "0" {
			return output.ErrUsage("ID required")
		}
		return output.ErrUsage(msg)
	}
	if strings.Contains(msg, "arg(s)") {
		return output.ErrUsage(msg)
	}
	return err
}
