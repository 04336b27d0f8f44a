// Package marketplace maps marketplace operations onto API requests.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gigmarket/gig/internal/api"
	"github.com/gigmarket/gig/internal/models"
	"github.com/gigmarket/gig/internal/output"
)

// Service exposes typed marketplace operations over an authenticated client.
type Service struct {
	client *api.Client
}

// New creates a service that sends through client.
func New(client *api.Client) *Service {
	return &Service{client: client}
}

func idPath(resource string, id int64, action ...string) string {
	p := resource + "/" + strconv.FormatInt(id, 10) + "/"
	for _, a := range action {
		p += a + "/"
	}
	return p
}

func decode[T any](resp *api.Response) (T, error) {
	var v T
	if len(resp.Data) == 0 {
		return v, nil
	}
	if err := resp.UnmarshalData(&v); err != nil {
		return v, fmt.Errorf("failed to parse %s response: %w", resp.Request.Path, err)
	}
	return v, nil
}

// ProjectFilter narrows ListProjects. Empty fields are not sent.
type ProjectFilter struct {
	Search   string
	Category string
	Budget   string
	Duration string
}

func (f ProjectFilter) query() url.Values {
	q := url.Values{}
	for k, v := range map[string]string{
		"search":   f.Search,
		"category": f.Category,
		"budget":   f.Budget,
		"duration": f.Duration,
	} {
		if v = strings.TrimSpace(v); v != "" {
			q.Set(k, v)
		}
	}
	return q
}

// ListProjects returns the projects matching filter.
func (s *Service) ListProjects(ctx context.Context, filter ProjectFilter) ([]models.Project, error) {
	resp, err := s.client.Get(ctx, "projects/", filter.query())
	if err != nil {
		return nil, err
	}
	return decode[[]models.Project](resp)
}

// NewProject is the payload for CreateProject.
type NewProject struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Budget      json.Number `json:"budget"`
	Duration    string      `json:"duration"`
	Category    string      `json:"category"`
}

// CreateProject posts a project.
func (s *Service) CreateProject(ctx context.Context, p NewProject) (*models.Project, error) {
	if strings.TrimSpace(p.Title) == "" {
		return nil, output.ErrUsage("Project title is required")
	}
	if err := requireAmount("budget", p.Budget); err != nil {
		return nil, err
	}
	resp, err := s.client.Post(ctx, "projects/", p)
	if err != nil {
		return nil, err
	}
	proj, err := decode[models.Project](resp)
	return &proj, err
}

// DeleteProject removes a project.
func (s *Service) DeleteProject(ctx context.Context, id int64) error {
	_, err := s.client.Delete(ctx, idPath("projects", id))
	return err
}

// ListProposals returns the proposals visible to the user.
func (s *Service) ListProposals(ctx context.Context) ([]models.Proposal, error) {
	resp, err := s.client.Get(ctx, "proposals/", nil)
	if err != nil {
		return nil, err
	}
	return decode[[]models.Proposal](resp)
}

// NewProposal is the payload for SendProposal.
type NewProposal struct {
	Project      int64       `json:"project"`
	ProposalText string      `json:"proposal_text"`
	BidAmount    json.Number `json:"bid_amount"`
}

// SendProposal bids on a project.
func (s *Service) SendProposal(ctx context.Context, p NewProposal) (*models.Proposal, error) {
	if p.Project <= 0 {
		return nil, output.ErrUsage("Project id is required")
	}
	if err := requireAmount("bid amount", p.BidAmount); err != nil {
		return nil, err
	}
	resp, err := s.client.Post(ctx, "proposals/", p)
	if err != nil {
		return nil, err
	}
	prop, err := decode[models.Proposal](resp)
	return &prop, err
}

// AcceptProposal accepts a proposal. The returned contract is nil when the
// server does not echo it.
func (s *Service) AcceptProposal(ctx context.Context, id int64) (*models.Contract, error) {
	resp, err := s.client.Post(ctx, idPath("proposals", id, "accept"), nil)
	if err != nil {
		return nil, err
	}
	body, err := decode[struct {
		Contract *models.Contract `json:"contract"`
	}](resp)
	if err != nil {
		return nil, nil //nolint:nilerr // a non-JSON acknowledgement is still an acceptance
	}
	return body.Contract, nil
}

// DeleteProposal withdraws a proposal.
func (s *Service) DeleteProposal(ctx context.Context, id int64) error {
	_, err := s.client.Delete(ctx, idPath("proposals", id))
	return err
}

// ListContracts returns the user's contracts.
func (s *Service) ListContracts(ctx context.Context) ([]models.Contract, error) {
	resp, err := s.client.Get(ctx, "contracts/", nil)
	if err != nil {
		return nil, err
	}
	return decode[[]models.Contract](resp)
}

// GetContract finds a contract among the user's contracts.
func (s *Service) GetContract(ctx context.Context, id int64) (*models.Contract, error) {
	contracts, err := s.ListContracts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range contracts {
		if contracts[i].ID == id {
			return &contracts[i], nil
		}
	}
	return nil, output.ErrNotFound("Contract", strconv.FormatInt(id, 10))
}

// UpdateContract sets a contract's status.
func (s *Service) UpdateContract(ctx context.Context, id int64, status string) (*models.Contract, error) {
	if strings.TrimSpace(status) == "" {
		return nil, output.ErrUsage("Status is required")
	}
	resp, err := s.client.Put(ctx, idPath("contracts", id), map[string]string{"status": status})
	if err != nil {
		return nil, err
	}
	c, err := decode[models.Contract](resp)
	return &c, err
}

// Review is a rating left on a completed contract.
type Review struct {
	Review string `json:"review"`
	Rating int    `json:"rating"`
}

// Validate enforces a review of at least 3 characters and a 1-5 rating.
func (r Review) Validate() error {
	if len([]rune(strings.TrimSpace(r.Review))) < 3 {
		return output.ErrUsage("Review must be at least 3 characters")
	}
	if r.Rating < 1 || r.Rating > 5 {
		return output.ErrUsage("Rating must be between 1 and 5")
	}
	return nil
}

// ReviewContract rates a contract.
func (s *Service) ReviewContract(ctx context.Context, id int64, r Review) (*models.Contract, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.Review = strings.TrimSpace(r.Review)
	resp, err := s.client.Patch(ctx, idPath("contracts", id), r)
	if err != nil {
		return nil, err
	}
	c, err := decode[models.Contract](resp)
	return &c, err
}

// CompleteContract marks a contract completed.
func (s *Service) CompleteContract(ctx context.Context, id int64) error {
	_, err := s.client.Put(ctx, idPath("contracts", id, "mark_completed"), nil)
	return err
}

// ListMessages returns the messages on a contract.
func (s *Service) ListMessages(ctx context.Context, contractID int64) ([]models.Message, error) {
	q := url.Values{"contract": {strconv.FormatInt(contractID, 10)}}
	resp, err := s.client.Get(ctx, "messages/", q)
	if err != nil {
		return nil, err
	}
	return decode[[]models.Message](resp)
}

// NewMessage is the payload for SendMessage. A zero Receiver is resolved to
// the other party on the contract.
type NewMessage struct {
	Contract int64  `json:"contract"`
	Receiver int64  `json:"receiver"`
	Text     string `json:"text"`
}

// SendMessage posts a message on a contract.
func (s *Service) SendMessage(ctx context.Context, m NewMessage) (*models.Message, error) {
	m.Text = strings.TrimSpace(m.Text)
	if m.Text == "" {
		return nil, output.ErrUsage("Message text is required")
	}
	if m.Receiver == 0 {
		receiver, err := s.counterparty(ctx, m.Contract)
		if err != nil {
			return nil, err
		}
		m.Receiver = receiver
	}
	resp, err := s.client.Post(ctx, "messages/", m)
	if err != nil {
		return nil, err
	}
	msg, err := decode[models.Message](resp)
	return &msg, err
}

func (s *Service) counterparty(ctx context.Context, contractID int64) (int64, error) {
	contract, err := s.GetContract(ctx, contractID)
	if err != nil {
		return 0, err
	}
	me, err := s.CurrentProfile(ctx)
	if err != nil {
		return 0, err
	}
	id, ok := contract.Counterparty(me.UserID())
	if !ok {
		return 0, output.ErrUsageHint("Cannot determine the message receiver", "Pass --to with the receiver's user id")
	}
	return id, nil
}

// ListNotifications returns the user's notifications.
func (s *Service) ListNotifications(ctx context.Context) ([]models.Notification, error) {
	resp, err := s.client.Get(ctx, "notifications/", nil)
	if err != nil {
		return nil, err
	}
	return decode[[]models.Notification](resp)
}

// UnreadCount returns the number of unread notifications.
func (s *Service) UnreadCount(ctx context.Context) (int, error) {
	list, err := s.ListNotifications(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range list {
		if !item.IsRead {
			n++
		}
	}
	return n, nil
}

// MarkNotificationRead marks a notification read. Servers without the
// mark_as_read action get a PATCH of is_read instead.
func (s *Service) MarkNotificationRead(ctx context.Context, id int64) error {
	_, err := s.client.Post(ctx, idPath("notifications", id, "mark_as_read"), nil)
	if err == nil {
		return nil
	}
	if e := output.AsError(err); e.HTTPStatus != http.StatusNotFound && e.HTTPStatus != http.StatusMethodNotAllowed {
		return err
	}
	_, err = s.client.Patch(ctx, idPath("notifications", id), map[string]bool{"is_read": true})
	return err
}

func requireAmount(name string, n json.Number) error {
	if n == "" {
		return output.ErrUsage(strings.ToUpper(name[:1]) + name[1:] + " is required")
	}
	v, err := n.Float64()
	if err != nil || v < 0 {
		return output.ErrUsage(fmt.Sprintf("Invalid %s %q", name, n.String()))
	}
	return nil
}
