package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gigmarket/gig/internal/output"
	"github.com/gigmarket/gig/internal/version"
)

// CommandInfo describes a CLI command.
type CommandInfo struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Actions     []string `json:"actions,omitempty"`
}

// CommandCategory groups commands by category.
type CommandCategory struct {
	Name     string        `json:"name"`
	Commands []CommandInfo `json:"commands"`
}

// commandCategories returns all command categories for the catalog.
func commandCategories() []CommandCategory {
	return []CommandCategory{
		{
			Name: "Marketplace",
			Commands: []CommandInfo{
				{Name: "projects", Category: "marketplace", Description: "Browse and manage projects", Actions: []string{"list", "create", "delete"}},
				{Name: "proposals", Category: "marketplace", Description: "Send and review proposals", Actions: []string{"list", "send", "accept", "delete"}},
				{Name: "contracts", Category: "marketplace", Description: "Track contracts", Actions: []string{"list", "complete", "review", "update"}},
				{Name: "messages", Category: "marketplace", Description: "Chat on a contract", Actions: []string{"list", "send"}},
				{Name: "notifications", Category: "marketplace", Description: "Read notifications", Actions: []string{"list", "read", "count"}},
				{Name: "profile", Category: "marketplace", Description: "Show or edit your profile", Actions: []string{"show", "update"}},
			},
		},
		{
			Name: "Auth & Config",
			Commands: []CommandInfo{
				{Name: "auth", Category: "auth", Description: "Manage authentication", Actions: []string{"login", "register", "logout", "status", "refresh", "token"}},
				{Name: "config", Category: "auth", Description: "Manage configuration", Actions: []string{"show", "set", "unset"}},
			},
		},
		{
			Name: "Additional Commands",
			Commands: []CommandInfo{
				{Name: "commands", Category: "additional", Description: "List all commands"},
				{Name: "completion", Category: "additional", Description: "Generate shell completions", Actions: []string{"bash", "zsh", "fish", "powershell"}},
				{Name: "version", Category: "additional", Description: "Show version"},
			},
		},
	}
}

// CatalogCommandNames returns all command names from the catalog.
// Used by tests to verify catalog matches registered commands.
func CatalogCommandNames() []string {
	var names []string
	for _, cat := range commandCategories() {
		for _, cmd := range cat.Commands {
			names = append(names, cmd.Name)
		}
	}
	return names
}

// NewCommandsCmd creates the commands listing command.
func NewCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "commands",
		Aliases:     []string{"cmds"},
		Short:       "List all available commands",
		Long:        "List all available gig commands organized by category.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{AnnotationConfigOnly: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			return app.OK(commandCategories(),
				output.WithSummary("All available gig commands"),
				output.WithMeta("help", "gig <command> --help"),
			)
		},
	}
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Show version",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{AnnotationConfigOnly: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Full())
			return err
		},
	}
}
