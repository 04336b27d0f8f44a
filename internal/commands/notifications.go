package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gigmarket/gig/internal/output"
)

// NewNotificationsCmd creates the notifications command and its subcommands.
func NewNotificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notification", "n"},
		Short:   "Read notifications",
	}

	cmd.AddCommand(newNotificationsListCmd())
	cmd.AddCommand(newNotificationsReadCmd())
	cmd.AddCommand(newNotificationsCountCmd())

	return cmd
}

func newNotificationsListCmd() *cobra.Command {
	var unread bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			list, err := app.Marketplace.ListNotifications(cmd.Context())
			if err != nil {
				return err
			}
			if unread {
				filtered := list[:0]
				for _, n := range list {
					if !n.IsRead {
						filtered = append(filtered, n)
					}
				}
				list = filtered
			}

			return app.OK(list,
				output.WithSummary(plural(len(list), "notification")),
				output.WithColumns("id", "message", "is_read", "created_at"),
			)
		},
	}

	cmd.Flags().BoolVar(&unread, "unread", false, "Only unread notifications")

	return cmd
}

func newNotificationsReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>...",
		Short: "Mark notifications read",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg, "notification")
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			for _, id := range ids {
				if err := app.Marketplace.MarkNotificationRead(cmd.Context(), id); err != nil {
					return err
				}
			}

			return app.OK(map[string]any{"read": ids},
				output.WithSummary(fmt.Sprintf("Marked %s read", plural(len(ids), "notification"))))
		},
	}
}

func newNotificationsCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count unread notifications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			n, err := app.Marketplace.UnreadCount(cmd.Context())
			if err != nil {
				return err
			}

			return app.OK(map[string]int{"unread": n},
				output.WithSummary(plural(n, "unread notification")))
		},
	}
}
