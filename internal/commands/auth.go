// Package commands implements the CLI commands.
package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gigmarket/gig/internal/auth"
	"github.com/gigmarket/gig/internal/output"
	"github.com/gigmarket/gig/internal/tui"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long:  "Log in, register, and inspect or renew the stored session.",
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthRegisterCmd(),
		newAuthLogoutCmd(),
		newAuthStatusCmd(),
		newAuthRefreshCmd(),
		newAuthTokenCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var username, password string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in with username and password",
		Long: `Log in and store the session for the configured API.

Missing credentials are prompted for on a terminal. Use --password-stdin
to pipe the password in scripts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if passwordStdin {
				if password, err = readLine(app.Stdin()); err != nil {
					return err
				}
			}
			values := map[string]string{"username": username, "password": password}
			if err := fillMissing(app, "Log in", []tui.FormField{
				{Key: "username", Title: "Username", Required: true},
				{Key: "password", Title: "Password", Required: true, Secret: true},
			}, values); err != nil {
				return err
			}

			sess, err := app.Auth.Login(cmd.Context(), auth.Credentials{
				Username: values["username"],
				Password: values["password"],
			})
			if err != nil {
				return err
			}

			role := sess.Role()
			summary := "Logged in as " + values["username"]
			if role != "" {
				summary += fmt.Sprintf(" (%s)", role)
			}
			return app.OK(map[string]any{
				"username": values["username"],
				"role":     role,
				"origin":   app.Store.Origin(),
			}, output.WithSummary(summary))
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")

	return cmd
}

func newAuthRegisterCmd() *cobra.Command {
	var reg auth.Registration
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a new account",
		Long: `Create a client or freelancer account. Registration does not log in;
run 'gig auth login' afterwards.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if passwordStdin {
				if reg.Password, err = readLine(app.Stdin()); err != nil {
					return err
				}
				if reg.Password2 == "" {
					reg.Password2 = reg.Password
				}
			}
			values := map[string]string{
				"username":  reg.Username,
				"email":     reg.Email,
				"password":  reg.Password,
				"password2": reg.Password2,
				"role":      reg.Role,
			}
			if err := fillMissing(app, "Register", []tui.FormField{
				{Key: "username", Title: "Username", Required: true},
				{Key: "email", Title: "Email", Required: true},
				{Key: "password", Title: "Password", Required: true, Secret: true},
				{Key: "password2", Title: "Confirm password", Required: true, Secret: true},
				{Key: "role", Title: "I am a", Options: []tui.SelectOption{
					{Value: auth.RoleClient, Label: "Client (I post projects)"},
					{Value: auth.RoleFreelancer, Label: "Freelancer (I send proposals)"},
				}},
			}, values); err != nil {
				return err
			}

			acct, err := app.Auth.Register(cmd.Context(), auth.Registration{
				Username:  values["username"],
				Email:     values["email"],
				Password:  values["password"],
				Password2: values["password2"],
				Role:      values["role"],
			})
			if err != nil {
				return err
			}

			return app.OK(acct,
				output.WithSummary("Registered "+acct.Username),
				output.WithMeta("next", "gig auth login -u "+acct.Username),
			)
		},
	}

	cmd.Flags().StringVarP(&reg.Username, "username", "u", "", "Username")
	cmd.Flags().StringVar(&reg.Email, "email", "", "Email address")
	cmd.Flags().StringVarP(&reg.Password, "password", "p", "", "Password (prefer --password-stdin)")
	cmd.Flags().StringVar(&reg.Password2, "confirm-password", "", "Password confirmation (defaults to the stdin password)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	cmd.Flags().StringVar(&reg.Role, "role", "", "Account role: client or freelancer")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Long:  "Remove the stored tokens and role for the current API origin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if err := app.Auth.Logout(cmd.Context()); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"status": "logged_out",
			}, output.WithSummary("Successfully logged out"))
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Display the stored session, its role and the access token expiry.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			st, err := app.Auth.Status(cmd.Context())
			if err != nil {
				return err
			}

			summary := "Not authenticated"
			if st.Authenticated {
				summary = "Authenticated"
				if st.Role != "" {
					summary += " as " + st.Role
				}
				switch {
				case st.Expired:
					summary += " (access token expired, renewed on next request)"
				case st.ExpiresAt != nil:
					summary += fmt.Sprintf(" (access token expires in %s)", time.Until(*st.ExpiresAt).Round(time.Second))
				}
			}
			return app.OK(st, output.WithSummary(summary))
		},
	}
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token",
		Long:  "Exchange the stored refresh token for a new access token.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			if err := app.Auth.Refresh(cmd.Context()); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"status": "refreshed",
			}, output.WithSummary("Access token refreshed"))
		},
	}
}

func newAuthTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the access token",
		Long:  "Print the stored access token, for use with other HTTP tools.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			token, err := app.Auth.Token(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
}
