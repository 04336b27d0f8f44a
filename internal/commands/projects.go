package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gigmarket/gig/internal/marketplace"
	"github.com/gigmarket/gig/internal/output"
)

// NewProjectsCmd creates the projects command and its subcommands.
func NewProjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project", "p"},
		Short:   "Browse and manage projects",
		Long:    "List open projects, post new ones as a client, or delete your own.",
	}

	cmd.AddCommand(newProjectsListCmd())
	cmd.AddCommand(newProjectsCreateCmd())
	cmd.AddCommand(newProjectsDeleteCmd())

	return cmd
}

func newProjectsListCmd() *cobra.Command {
	var filter marketplace.ProjectFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Long: `List projects, optionally filtered:
  --search    matches title and description
  --category  exact category
  --budget    budget bracket understood by the server
  --duration  duration bracket understood by the server`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			projects, err := app.Marketplace.ListProjects(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if filter == (marketplace.ProjectFilter{}) {
				cacheProjects(app, projects)
			}

			return app.OK(projects,
				output.WithSummary(plural(len(projects), "project")),
				output.WithColumns("id", "title", "category", "budget", "duration", "client"),
			)
		},
	}

	cmd.Flags().StringVarP(&filter.Search, "search", "s", "", "Search text")
	cmd.Flags().StringVar(&filter.Category, "category", "", "Category")
	cmd.Flags().StringVar(&filter.Budget, "budget", "", "Budget bracket")
	cmd.Flags().StringVar(&filter.Duration, "duration", "", "Duration bracket")

	return cmd
}

func newProjectsCreateCmd() *cobra.Command {
	var p marketplace.NewProject
	var budget string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Post a new project",
		Long: `Post a project for freelancers to bid on. Only clients can post.

Pass --description - to read the description from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if p.Description, err = readText(app, p.Description); err != nil {
				return err
			}
			p.Budget = json.Number(budget)

			project, err := app.Marketplace.CreateProject(cmd.Context(), p)
			if err != nil {
				return err
			}

			return app.OK(project,
				output.WithSummary(fmt.Sprintf("Created project #%d: %s", project.ID, project.Title)),
			)
		},
	}

	cmd.Flags().StringVarP(&p.Title, "title", "t", "", "Project title (required)")
	cmd.Flags().StringVarP(&p.Description, "description", "d", "", "Description, or - for stdin")
	cmd.Flags().StringVar(&budget, "budget", "", "Budget amount (required)")
	cmd.Flags().StringVar(&p.Duration, "duration", "", "Expected duration")
	cmd.Flags().StringVar(&p.Category, "category", "", "Category")

	return cmd
}

func newProjectsDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:               "delete <id>",
		Short:             "Delete a project",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completer.ProjectCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			if err := confirmDestructive(app, fmt.Sprintf("Delete project #%d?", id), yes); err != nil {
				return err
			}

			if err := app.Marketplace.DeleteProject(cmd.Context(), id); err != nil {
				return err
			}

			return app.OK(map[string]any{"id": id, "deleted": true},
				output.WithSummary(fmt.Sprintf("Deleted project #%d", id)))
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
