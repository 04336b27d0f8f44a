package commands

import (
	"encoding/json"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gigmarket/gig/internal/appctx"
	"github.com/gigmarket/gig/internal/marketplace"
	"github.com/gigmarket/gig/internal/output"
)

// NewProfileCmd creates the profile command and its subcommands.
func NewProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your profile",
		Long: `Show or edit the profile of the logged-in account. Clients and
freelancers have different profiles; the role stored at login decides which.`,
	}

	cmd.AddCommand(newProfileShowCmd())
	cmd.AddCommand(newProfileUpdateCmd())

	return cmd
}

func newProfileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			freelancer, err := app.Store.IsFreelancer(ctx)
			if err != nil {
				return err
			}
			if freelancer {
				p, err := app.Marketplace.GetFreelancerProfile(ctx)
				if err != nil {
					return err
				}
				return app.OK(p, output.WithSummary("Freelancer profile of "+orUnknown(p.Username)))
			}
			p, err := app.Marketplace.GetClientProfile(ctx)
			if err != nil {
				return err
			}
			return app.OK(p, output.WithSummary("Client profile of "+orUnknown(p.Username)))
		},
	}
}

type profileFlags struct {
	// client
	company, bio, contactEmail string
	// freelancer
	portfolio, skills, hourlyRate string
	available                     bool
	image                         string
}

func newProfileUpdateCmd() *cobra.Command {
	var f profileFlags

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Edit your profile",
		Long: `Edit your profile. Only the flags you pass are changed.

Client flags:      --company --bio --contact-email
Freelancer flags:  --portfolio --skills --hourly-rate --available --image`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := requireApp(cmd)
			if err != nil {
				return err
			}

			freelancer, err := app.Store.IsFreelancer(cmd.Context())
			if err != nil {
				return err
			}
			if freelancer {
				return updateFreelancerProfile(cmd, app, f)
			}
			return updateClientProfile(cmd, app, f)
		},
	}

	cmd.Flags().StringVar(&f.company, "company", "", "Company name")
	cmd.Flags().StringVar(&f.bio, "bio", "", "Bio")
	cmd.Flags().StringVar(&f.contactEmail, "contact-email", "", "Contact email")
	cmd.Flags().StringVar(&f.portfolio, "portfolio", "", "Portfolio URL or text")
	cmd.Flags().StringVar(&f.skills, "skills", "", "Comma-separated skills")
	cmd.Flags().StringVar(&f.hourlyRate, "hourly-rate", "", "Hourly rate")
	cmd.Flags().BoolVar(&f.available, "available", false, "Available for work")
	cmd.Flags().StringVar(&f.image, "image", "", "Path to a profile image to upload")

	return cmd
}

func updateClientProfile(cmd *cobra.Command, app *appctx.App, f profileFlags) error {
	flags := cmd.Flags()
	if err := rejectFlags(flags, freelancerFlags, "freelancer", "Client flags: --company --bio --contact-email"); err != nil {
		return err
	}
	if !flags.Changed("company") && !flags.Changed("bio") && !flags.Changed("contact-email") {
		return output.ErrUsage("Nothing to update")
	}

	// The client profile is replaced as a whole; start from the current one.
	current, err := app.Marketplace.GetClientProfile(cmd.Context())
	if err != nil {
		return err
	}
	u := marketplace.ClientProfileUpdate{
		CompanyName:  current.CompanyName,
		Bio:          current.Bio,
		ContactEmail: current.ContactEmail,
	}
	if flags.Changed("company") {
		u.CompanyName = f.company
	}
	if flags.Changed("bio") {
		u.Bio = f.bio
	}
	if flags.Changed("contact-email") {
		u.ContactEmail = f.contactEmail
	}

	p, err := app.Marketplace.UpdateClientProfile(cmd.Context(), u)
	if err != nil {
		return err
	}
	return app.OK(p, output.WithSummary("Client profile updated"))
}

func updateFreelancerProfile(cmd *cobra.Command, app *appctx.App, f profileFlags) error {
	flags := cmd.Flags()
	if err := rejectFlags(flags, clientFlags, "client", "Freelancer flags: --portfolio --skills --hourly-rate --available --image"); err != nil {
		return err
	}

	u := marketplace.FreelancerProfileUpdate{ImagePath: f.image}
	if flags.Changed("portfolio") {
		u.Portfolio = &f.portfolio
	}
	if flags.Changed("skills") {
		u.Skills = &f.skills
	}
	if flags.Changed("hourly-rate") {
		rate := json.Number(f.hourlyRate)
		u.HourlyRate = &rate
	}
	if flags.Changed("available") {
		u.Availability = &f.available
	}

	p, err := app.Marketplace.UpdateFreelancerProfile(cmd.Context(), u)
	if err != nil {
		return err
	}
	return app.OK(p, output.WithSummary("Freelancer profile updated"))
}

var (
	clientFlags     = []string{"company", "bio", "contact-email"}
	freelancerFlags = []string{"portfolio", "skills", "hourly-rate", "available", "image"}
)

// rejectFlags fails on the first explicitly set flag that belongs to the
// other role's profile.
func rejectFlags(flags *pflag.FlagSet, names []string, role, hint string) error {
	var bad string
	flags.Visit(func(f *pflag.Flag) {
		if bad == "" && slices.Contains(names, f.Name) {
			bad = f.Name
		}
	})
	if bad != "" {
		return output.ErrUsageHint("--"+bad+" applies to "+role+" profiles", hint)
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "current user"
	}
	return s
}
