package commands

import (
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gigmarket/gig/internal/config"
	"github.com/gigmarket/gig/internal/output"
)

// AnnotationConfigOnly marks commands that run without the API pipeline,
// so they keep working while the configuration is broken.
const AnnotationConfigOnly = "gig/config-only"

// NewConfigCmd creates the config command for managing configuration.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage gig configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > GIG_* env > .env > local > global > defaults

Config locations:
  - Global: ~/.config/gig/config.json (comments allowed)
  - Local:  .gig/config.json in the working directory (cannot change
            base_url, environments, session_backend or redis_url)
  - .env:   GIG_* variables in the working directory; never overrides
            the real environment

The API base URL is base_url when set, otherwise the URL of the selected
environment (GIG_BASE_URL_LOCAL, GIG_BASE_URL_DEPLOY, or "environments"
in the config file).`,
		Annotations: map[string]string{AnnotationConfigOnly: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetCmd(),
		newConfigUnsetCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "show",
		Short:       "Show effective configuration",
		Long:        "Display the current effective configuration with source information.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{AnnotationConfigOnly: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}
}

type configEntry struct {
	Key    string `json:"key"`
	Value  any    `json:"value"`
	Source string `json:"source"`
}

func runConfigShow(cmd *cobra.Command) error {
	app, err := requireApp(cmd)
	if err != nil {
		return err
	}
	cfg := app.Config

	entries := []configEntry{
		{"base_url", cfg.BaseURL, cfg.Sources["base_url"]},
		{"environment", cfg.Environment, cfg.Sources["environment"]},
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.Environments)) {
		entries = append(entries, configEntry{"environments." + name, cfg.Environments[name], cfg.Sources["environments"]})
	}
	entries = append(entries,
		configEntry{"session_backend", orDefault(cfg.SessionBackend, "auto"), cfg.Sources["session_backend"]},
		configEntry{"redis_url", redactURL(cfg.RedisURL), cfg.Sources["redis_url"]},
		configEntry{"format", cfg.Format, cfg.Sources["format"]},
		configEntry{"timeout", cfg.Timeout.String(), cfg.Sources["timeout"]},
	)
	if cfg.Stats != nil {
		entries = append(entries, configEntry{"stats", *cfg.Stats, cfg.Sources["stats"]})
	}
	if cfg.Verbose != nil {
		entries = append(entries, configEntry{"verbose", *cfg.Verbose, cfg.Sources["verbose"]})
	}

	opts := []output.ResponseOption{
		output.WithColumns("key", "value", "source"),
		output.WithContext("config_file", config.GlobalConfigPath()),
	}
	if base, err := cfg.ResolveBaseURL(); err == nil {
		opts = append(opts, output.WithSummary("API: "+base))
	} else {
		opts = append(opts, output.WithSummary("Invalid configuration: "+err.Error()))
	}
	return app.OK(entries, opts...)
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a value in the global config",
		Long: fmt.Sprintf(`Set a value in the global config file.

Keys: %s`, strings.Join(config.Keys, ", ")),
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{AnnotationConfigOnly: "true"},
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return config.Keys, cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			if args[1] == "" {
				return output.ErrUsageHint("Value is empty", "Use 'gig config unset "+args[0]+"' to remove a key")
			}
			if err := config.Set(args[0], args[1]); err != nil {
				return err
			}
			return app.OK(map[string]string{"key": args[0], "value": args[1]},
				output.WithSummary(fmt.Sprintf("Set %s in %s", args[0], config.GlobalConfigPath())))
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "unset <key>",
		Short:       "Remove a value from the global config",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{AnnotationConfigOnly: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			if err := config.Set(args[0], ""); err != nil {
				return err
			}
			return app.OK(map[string]string{"key": args[0]},
				output.WithSummary(fmt.Sprintf("Removed %s from %s", args[0], config.GlobalConfigPath())))
		},
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// redactURL hides the password of a URL with userinfo.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
