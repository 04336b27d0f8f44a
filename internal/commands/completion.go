package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gigmarket/gig/internal/appctx"
	"github.com/gigmarket/gig/internal/completion"
	"github.com/gigmarket/gig/internal/config"
	"github.com/gigmarket/gig/internal/models"
)

// NewCompletionCmd creates the completion command.
func NewCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for gig.

Bash:
  $ source <(gig completion bash)

Zsh:
  $ gig completion zsh > "${fpath[1]}/_gig"

Fish:
  $ gig completion fish > ~/.config/fish/completions/gig.fish

PowerShell:
  PS> gig completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		Annotations:           map[string]string{AnnotationConfigOnly: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompletion(cmd.Root(), cmd.OutOrStdout(), args[0])
		},
	}
}

func runCompletion(rootCmd *cobra.Command, w io.Writer, shell string) error {
	switch shell {
	case "bash":
		return rootCmd.GenBashCompletionV2(w, true)
	case "zsh":
		return rootCmd.GenZshCompletion(w)
	case "fish":
		return rootCmd.GenFishCompletion(w, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(w)
	default:
		return fmt.Errorf("unknown shell: %s", shell)
	}
}

// completer serves id completion from the cache the list commands fill.
var completer = completion.NewCompleter("", completionOrigin)

// completionOrigin resolves the API base URL without the full app, since
// PersistentPreRunE does not run for __complete.
func completionOrigin(cmd *cobra.Command) string {
	if app := appctx.FromContext(cmd.Context()); app != nil {
		base, _ := app.Config.ResolveBaseURL()
		return base
	}
	var overrides config.FlagOverrides
	if root := cmd.Root(); root != nil {
		overrides.BaseURL, _ = root.PersistentFlags().GetString("base-url")
		overrides.Environment, _ = root.PersistentFlags().GetString("env")
	}
	cfg, err := config.Load(overrides)
	if err != nil {
		return ""
	}
	base, _ := cfg.ResolveBaseURL()
	return base
}

func completionStore(app *appctx.App) *completion.Store {
	base, _ := app.Config.ResolveBaseURL()
	return completion.NewStore("", base)
}

// cacheProjects records listed projects for completion. Failures only log.
func cacheProjects(app *appctx.App, projects []models.Project) {
	cached := make([]completion.CachedProject, 0, len(projects))
	for _, p := range projects {
		cached = append(cached, completion.CachedProject{ID: p.ID, Title: p.Title, Category: p.Category})
	}
	if err := completionStore(app).UpdateProjects(cached); err != nil {
		app.Logger.Debug("completion cache not updated", "error", err)
	}
}

// cacheContracts records listed contracts for completion. Failures only log.
func cacheContracts(app *appctx.App, contracts []models.Contract) {
	cached := make([]completion.CachedContract, 0, len(contracts))
	for _, c := range contracts {
		cached = append(cached, completion.CachedContract{ID: c.ID, ProjectTitle: c.ProjectTitle, Status: c.Status})
	}
	if err := completionStore(app).UpdateContracts(cached); err != nil {
		app.Logger.Debug("completion cache not updated", "error", err)
	}
}
