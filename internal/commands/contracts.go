package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gigmarket/gig/internal/marketplace"
	"github.com/gigmarket/gig/internal/models"
	"github.com/gigmarket/gig/internal/output"
)

// NewContractsCmd creates the contracts command and its subcommands.
func NewContractsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "contracts",
		Aliases: []string{"contract", "c"},
		Short:   "Track contracts",
		Long:    "List your contracts, mark them completed, and leave reviews.",
	}

	cmd.AddCommand(newContractsListCmd())
	cmd.AddCommand(newContractsCompleteCmd())
	cmd.AddCommand(newContractsReviewCmd())
	cmd.AddCommand(newContractsUpdateCmd())

	return cmd
}

func newContractsListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List contracts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			contracts, err := app.Marketplace.ListContracts(cmd.Context())
			if err != nil {
				return err
			}
			cacheContracts(app, contracts)
			if status != "" {
				filtered := contracts[:0]
				for _, c := range contracts {
					if c.Status == status {
						filtered = append(filtered, c)
					}
				}
				contracts = filtered
			}

			return app.OK(contracts,
				output.WithSummary(plural(len(contracts), "contract")),
				output.WithColumns("id", "project_title", "client", "freelancer", "payment_amount", "status", "rating"),
			)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only contracts with this status (Active, Completed)")

	return cmd
}

func newContractsCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "complete <id>",
		Short:             "Mark a contract completed",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completer.ContractCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "contract")
			if err != nil {
				return err
			}

			if err := app.Marketplace.CompleteContract(cmd.Context(), id); err != nil {
				return err
			}

			return app.OK(map[string]any{"id": id, "status": models.ContractCompleted},
				output.WithSummary(fmt.Sprintf("Contract #%d marked completed", id)),
				output.WithMeta("next", fmt.Sprintf("gig contracts review %d --rating 5 --review \"...\"", id)),
			)
		},
	}
}

func newContractsReviewCmd() *cobra.Command {
	var r marketplace.Review

	cmd := &cobra.Command{
		Use:   "review <id>",
		Short: "Review a contract",
		Long: `Leave a review and a 1-5 rating on a contract.
The review must be at least 3 characters; pass --review - to read it from stdin.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completer.ContractCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "contract")
			if err != nil {
				return err
			}
			if r.Review, err = readText(app, r.Review); err != nil {
				return err
			}

			contract, err := app.Marketplace.ReviewContract(cmd.Context(), id, r)
			if err != nil {
				return err
			}

			return app.OK(contract,
				output.WithSummary(fmt.Sprintf("Reviewed contract #%d (%d/5)", id, r.Rating)))
		},
	}

	cmd.Flags().StringVarP(&r.Review, "review", "r", "", "Review text, or - for stdin")
	cmd.Flags().IntVar(&r.Rating, "rating", 0, "Rating from 1 to 5")

	return cmd
}

func newContractsUpdateCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:               "update <id>",
		Short:             "Change a contract's status",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completer.ContractCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "contract")
			if err != nil {
				return err
			}

			contract, err := app.Marketplace.UpdateContract(cmd.Context(), id, status)
			if err != nil {
				return err
			}

			return app.OK(contract,
				output.WithSummary(fmt.Sprintf("Contract #%d is now %s", id, contract.Status)))
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "New status, e.g. Active or Completed (required)")

	return cmd
}
