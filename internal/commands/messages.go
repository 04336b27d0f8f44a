package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gigmarket/gig/internal/marketplace"
	"github.com/gigmarket/gig/internal/output"
)

// NewMessagesCmd creates the messages command and its subcommands.
func NewMessagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "messages",
		Aliases: []string{"message", "msg"},
		Short:   "Chat on a contract",
		Long:    "Read and send the messages exchanged on a contract.",
	}

	cmd.AddCommand(newMessagesListCmd())
	cmd.AddCommand(newMessagesSendCmd())

	return cmd
}

func newMessagesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "list <contract-id>",
		Short:             "List the messages on a contract",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completer.ContractCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			contractID, err := parseID(args[0], "contract")
			if err != nil {
				return err
			}

			messages, err := app.Marketplace.ListMessages(cmd.Context(), contractID)
			if err != nil {
				return err
			}

			return app.OK(messages,
				output.WithSummary(fmt.Sprintf("%s on contract #%d", plural(len(messages), "message"), contractID)),
				output.WithColumns("id", "sender_username", "text", "timestamp"),
			)
		},
	}
}

func newMessagesSendCmd() *cobra.Command {
	var m marketplace.NewMessage

	cmd := &cobra.Command{
		Use:   "send <contract-id> <text>",
		Short: "Send a message on a contract",
		Long: `Send a message to the other party on a contract. The receiver is
worked out from the contract unless --to is given. Use - as the text to read
it from stdin.`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completer.ContractCompletion(),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			if m.Contract, err = parseID(args[0], "contract"); err != nil {
				return err
			}
			if m.Text, err = readText(app, args[1]); err != nil {
				return err
			}

			msg, err := app.Marketplace.SendMessage(cmd.Context(), m)
			if err != nil {
				return err
			}

			return app.OK(msg,
				output.WithSummary(fmt.Sprintf("Sent message #%d on contract #%d", msg.ID, m.Contract)))
		},
	}

	cmd.Flags().Int64Var(&m.Receiver, "to", 0, "Receiver user id (defaults to the other party)")

	return cmd
}
