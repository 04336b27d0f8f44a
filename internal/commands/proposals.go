package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gigmarket/gig/internal/marketplace"
	"github.com/gigmarket/gig/internal/output"
)

// NewProposalsCmd creates the proposals command and its subcommands.
func NewProposalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "proposals",
		Aliases: []string{"proposal", "bids"},
		Short:   "Send and review proposals",
		Long: `Freelancers send proposals on projects; clients review and accept them.
Accepting a proposal creates a contract.`,
	}

	cmd.AddCommand(newProposalsListCmd())
	cmd.AddCommand(newProposalsSendCmd())
	cmd.AddCommand(newProposalsAcceptCmd())
	cmd.AddCommand(newProposalsDeleteCmd())

	return cmd
}

func newProposalsListCmd() *cobra.Command {
	var project int64
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proposals",
		Long:  "List proposals you sent (freelancer) or received on your projects (client).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			proposals, err := app.Marketplace.ListProposals(cmd.Context())
			if err != nil {
				return err
			}
			if project > 0 || status != "" {
				filtered := proposals[:0]
				for _, p := range proposals {
					if (project == 0 || p.Project == project) && (status == "" || p.Status == status) {
						filtered = append(filtered, p)
					}
				}
				proposals = filtered
			}

			return app.OK(proposals,
				output.WithSummary(plural(len(proposals), "proposal")),
				output.WithColumns("id", "project", "freelancer", "bid_amount", "status"),
			)
		},
	}

	cmd.Flags().Int64Var(&project, "project", 0, "Only proposals on this project")
	cmd.Flags().StringVar(&status, "status", "", "Only proposals with this status (Pending, Accepted)")

	return cmd
}

func newProposalsSendCmd() *cobra.Command {
	var p marketplace.NewProposal
	var bid string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a proposal on a project",
		Long: `Bid on a project. Only freelancers can send proposals.

Pass --text - to read the proposal text from stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if p.ProposalText, err = readText(app, p.ProposalText); err != nil {
				return err
			}
			p.BidAmount = json.Number(bid)

			proposal, err := app.Marketplace.SendProposal(cmd.Context(), p)
			if err != nil {
				return err
			}

			return app.OK(proposal,
				output.WithSummary(fmt.Sprintf("Sent proposal #%d on project #%d (bid %s)",
					proposal.ID, proposal.Project, output.FormatAmount(proposal.BidAmount))),
			)
		},
	}

	cmd.Flags().Int64Var(&p.Project, "project", 0, "Project id (required)")
	_ = cmd.RegisterFlagCompletionFunc("project", completer.ProjectCompletion())
	cmd.Flags().StringVarP(&p.ProposalText, "text", "t", "", "Proposal text, or - for stdin")
	cmd.Flags().StringVar(&bid, "bid", "", "Bid amount (required)")

	return cmd
}

func newProposalsAcceptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accept <id>",
		Short: "Accept a proposal",
		Long:  "Accept a proposal on one of your projects. This creates a contract.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "proposal")
			if err != nil {
				return err
			}

			contract, err := app.Marketplace.AcceptProposal(cmd.Context(), id)
			if err != nil {
				return err
			}

			if contract == nil {
				return app.OK(map[string]any{"id": id, "accepted": true},
					output.WithSummary(fmt.Sprintf("Accepted proposal #%d", id)))
			}
			return app.OK(contract,
				output.WithSummary(fmt.Sprintf("Accepted proposal #%d, contract #%d created", id, contract.ID)))
		},
	}
}

func newProposalsDeleteCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Withdraw a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			id, err := parseID(args[0], "proposal")
			if err != nil {
				return err
			}
			if err := confirmDestructive(app, fmt.Sprintf("Delete proposal #%d?", id), yes); err != nil {
				return err
			}

			if err := app.Marketplace.DeleteProposal(cmd.Context(), id); err != nil {
				return err
			}

			return app.OK(map[string]any{"id": id, "deleted": true},
				output.WithSummary(fmt.Sprintf("Deleted proposal #%d", id)))
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}
