package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gigmarket/gig/internal/api"
	"github.com/gigmarket/gig/internal/models"
	"github.com/gigmarket/gig/internal/output"
)

const (
	clientProfilePath     = "client-profile/"
	freelancerProfilePath = "freelancer-profile/"
)

// Profile is the current user's profile, whichever role they hold.
// Exactly one of Client and Freelancer is set.
type Profile struct {
	Role       string                    `json:"role"`
	Client     *models.ClientProfile     `json:"client,omitempty"`
	Freelancer *models.FreelancerProfile `json:"freelancer,omitempty"`
}

// UserID returns the account id the profile belongs to.
func (p *Profile) UserID() int64 {
	switch {
	case p.Client != nil:
		return p.Client.User
	case p.Freelancer != nil:
		return p.Freelancer.User
	}
	return 0
}

// GetClientProfile returns the current user's client profile.
func (s *Service) GetClientProfile(ctx context.Context) (*models.ClientProfile, error) {
	resp, err := s.client.Get(ctx, clientProfilePath, nil)
	if err != nil {
		return nil, err
	}
	p, err := decode[models.ClientProfile](resp)
	return &p, err
}

// ClientProfileUpdate replaces the editable client profile fields.
type ClientProfileUpdate struct {
	CompanyName  string `json:"company_name"`
	Bio          string `json:"bio"`
	ContactEmail string `json:"contact_email"`
}

// UpdateClientProfile replaces the client profile.
func (s *Service) UpdateClientProfile(ctx context.Context, u ClientProfileUpdate) (*models.ClientProfile, error) {
	resp, err := s.client.Put(ctx, clientProfilePath, u)
	if err != nil {
		return nil, err
	}
	p, err := decode[models.ClientProfile](resp)
	return &p, err
}

// GetFreelancerProfile returns the current user's freelancer profile.
func (s *Service) GetFreelancerProfile(ctx context.Context) (*models.FreelancerProfile, error) {
	resp, err := s.client.Get(ctx, freelancerProfilePath, nil)
	if err != nil {
		return nil, err
	}
	p, err := decode[models.FreelancerProfile](resp)
	return &p, err
}

// FreelancerProfileUpdate changes the freelancer profile. Nil fields are
// left untouched. A non-empty ImagePath uploads a new profile image, which
// switches the request to a multipart form.
type FreelancerProfileUpdate struct {
	Portfolio    *string
	Skills       *string
	HourlyRate   *json.Number
	Availability *bool
	ImagePath    string
}

// UpdateFreelancerProfile patches the freelancer profile.
func (s *Service) UpdateFreelancerProfile(ctx context.Context, u FreelancerProfileUpdate) (*models.FreelancerProfile, error) {
	if u.HourlyRate != nil {
		if err := requireAmount("hourly rate", *u.HourlyRate); err != nil {
			return nil, err
		}
	}

	var resp *api.Response
	var err error
	if u.ImagePath != "" {
		form := api.NewForm()
		if u.Portfolio != nil {
			form.Field("portfolio", *u.Portfolio)
		}
		if u.Skills != nil {
			form.Field("skills", *u.Skills)
		}
		if u.HourlyRate != nil {
			form.Field("hourly_rate", u.HourlyRate.String())
		}
		if u.Availability != nil {
			form.Field("availability", strconv.FormatBool(*u.Availability))
		}
		if err := form.FileFromPath("profile_image", u.ImagePath); err != nil {
			return nil, output.ErrUsage(err.Error())
		}
		resp, err = s.client.Upload(ctx, http.MethodPatch, freelancerProfilePath, form)
	} else {
		body := map[string]any{}
		if u.Portfolio != nil {
			body["portfolio"] = *u.Portfolio
		}
		if u.Skills != nil {
			body["skills"] = *u.Skills
		}
		if u.HourlyRate != nil {
			body["hourly_rate"] = *u.HourlyRate
		}
		if u.Availability != nil {
			body["availability"] = *u.Availability
		}
		if len(body) == 0 {
			return nil, output.ErrUsage("Nothing to update")
		}
		resp, err = s.client.Patch(ctx, freelancerProfilePath, body)
	}
	if err != nil {
		return nil, err
	}
	p, err := decode[models.FreelancerProfile](resp)
	return &p, err
}

// CurrentProfile probes the client profile, then the freelancer profile,
// and returns whichever exists.
func (s *Service) CurrentProfile(ctx context.Context) (*Profile, error) {
	client, err := s.GetClientProfile(ctx)
	if err == nil {
		return &Profile{Role: "client", Client: client}, nil
	}
	if !missingProfile(err) {
		return nil, err
	}

	freelancer, err := s.GetFreelancerProfile(ctx)
	if err == nil {
		return &Profile{Role: "freelancer", Freelancer: freelancer}, nil
	}
	if missingProfile(err) {
		return nil, output.ErrNotFound("Profile", "current user")
	}
	return nil, err
}

// IsFreelancer reports whether the current user holds a freelancer profile.
func (s *Service) IsFreelancer(ctx context.Context) (bool, error) {
	p, err := s.CurrentProfile(ctx)
	if err != nil {
		return false, err
	}
	return p.Freelancer != nil, nil
}

func missingProfile(err error) bool {
	e := output.AsError(err)
	return e.Code == output.CodeNotFound || e.Code == output.CodeForbidden
}
