package fakeapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

// Project is a posted job.
type Project struct {
	ID          int         `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Budget      string      `json:"budget"`
	Duration    string      `json:"duration"`
	Category    string      `json:"category"`
	Client      string      `json:"client"`
	ClientID    int         `json:"client_id"`
	CreatedAt   time.Time   `json:"created_at"`
	Proposals   []*Proposal `json:"proposals"`
}

// Proposal is a freelancer's bid on a project.
type Proposal struct {
	ID           int       `json:"id"`
	Project      int       `json:"project"`
	Freelancer   string    `json:"freelancer"`
	FreelancerID int       `json:"freelancer_id"`
	ProposalText string    `json:"proposal_text"`
	BidAmount    string    `json:"bid_amount"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Contract is an accepted proposal.
type Contract struct {
	ID            int       `json:"id"`
	Project       int       `json:"project"`
	ProjectTitle  string    `json:"project_title"`
	Proposal      int       `json:"proposal"`
	Client        string    `json:"client"`
	ClientID      int       `json:"client_id"`
	Freelancer    string    `json:"freelancer"`
	FreelancerID  int       `json:"freelancer_id"`
	PaymentAmount string    `json:"payment_amount"`
	Status        string    `json:"status"`
	Review        string    `json:"review"`
	Rating        *int      `json:"rating"`
	CreatedAt     time.Time `json:"created_at"`
}

// Message is a chat message scoped to a contract.
type Message struct {
	ID             int       `json:"id"`
	Contract       int       `json:"contract"`
	Sender         int       `json:"sender"`
	SenderUsername string    `json:"sender_username"`
	Receiver       int       `json:"receiver"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// Notification is a per-user notice.
type Notification struct {
	ID        int       `json:"id"`
	User      int       `json:"-"`
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// ClientProfile is the profile of a client account.
type ClientProfile struct {
	ID           int    `json:"id"`
	User         int    `json:"user"`
	Username     string `json:"username"`
	CompanyName  string `json:"company_name"`
	Bio          string `json:"bio"`
	ContactEmail string `json:"contact_email"`
}

// FreelancerProfile is the profile of a freelancer account.
type FreelancerProfile struct {
	ID           int    `json:"id"`
	User         int    `json:"user"`
	Username     string `json:"username"`
	Portfolio    string `json:"portfolio"`
	Skills       string `json:"skills"`
	HourlyRate   string `json:"hourly_rate"`
	Availability bool   `json:"availability"`
	ProfileImage string `json:"profile_image"`
}

// Notify adds a notification for username and returns its id.
func (s *Server) Notify(username, message string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.mustUserLocked(username)
	n := &Notification{ID: s.id(), User: u.ID, Message: message, CreatedAt: time.Now().UTC()}
	s.notifications[n.ID] = n
	return n.ID
}

// Notification returns a copy of notification id.
func (s *Server) Notification(id int) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return Notification{}, false
	}
	return *n, true
}

// Contract returns a copy of contract id.
func (s *Server) Contract(id int) (Contract, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[id]
	if !ok {
		return Contract{}, false
	}
	return *c, true
}

// Messages returns copies of the messages on a contract.
func (s *Server) Messages(contractID int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.Contract == contractID {
			out = append(out, *m)
		}
	}
	return out
}

// FreelancerProfileOf returns a copy of username's freelancer profile.
func (s *Server) FreelancerProfileOf(username string) (FreelancerProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userByNameLocked(username)
	if u == nil {
		return FreelancerProfile{}, false
	}
	p, ok := s.freelanceProf[u.ID]
	if !ok {
		return FreelancerProfile{}, false
	}
	return *p, true
}

func pathID(r *http.Request) int {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	return id
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func sortedByID[T any](m map[int]*T, keep func(*T) bool) []*T {
	ids := make([]int, 0, len(m))
	for id, v := range m {
		if keep(v) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]*T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	search := strings.ToLower(q.Get("search"))

	s.mu.Lock()
	defer s.mu.Unlock()
	list := sortedByID(s.projects, func(p *Project) bool {
		if search != "" && !strings.Contains(strings.ToLower(p.Title+" "+p.Description), search) {
			return false
		}
		if c := q.Get("category"); c != "" && !strings.EqualFold(p.Category, c) {
			return false
		}
		if b := q.Get("budget"); b != "" && p.Budget != b {
			return false
		}
		if d := q.Get("duration"); d != "" && p.Duration != d {
			return false
		}
		return true
	})
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title       string      `json:"title"`
		Description string      `json:"description"`
		Budget      json.Number `json:"budget"`
		Duration    string      `json:"duration"`
		Category    string      `json:"category"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Title == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"title": {"This field may not be blank."}})
		return
	}
	budget, err := strconv.ParseFloat(body.Budget.String(), 64)
	if err != nil || budget < 0 {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"budget": {"A valid number is required."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID(r)]
	if !u.IsClient {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Only clients can post projects."})
		return
	}
	p := &Project{
		ID:          s.id(),
		Title:       body.Title,
		Description: body.Description,
		Budget:      fmt.Sprintf("%.2f", budget),
		Duration:    body.Duration,
		Category:    body.Category,
		Client:      u.Username,
		ClientID:    u.ID,
		CreatedAt:   time.Now().UTC(),
		Proposals:   []*Proposal{},
	}
	s.projects[p.ID] = p
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[pathID(r)]
	if !ok {
		notFound(w)
		return
	}
	if p.ClientID != userID(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}
	delete(s.projects, p.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListProposals(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	list := sortedByID(s.proposals, func(p *Proposal) bool {
		if p.FreelancerID == uid {
			return true
		}
		proj, ok := s.projects[p.Project]
		return ok && proj.ClientID == uid
	})
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Project      int         `json:"project"`
		ProposalText string      `json:"proposal_text"`
		BidAmount    json.Number `json:"bid_amount"`
	}
	if !decode(w, r, &body) {
		return
	}
	bid, err := strconv.ParseFloat(body.BidAmount.String(), 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"bid_amount": {"A valid number is required."}})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[userID(r)]
	if !u.IsFreelancer {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Only freelancers can send proposals."})
		return
	}
	proj, ok := s.projects[body.Project]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"project": {"Invalid pk - object does not exist."}})
		return
	}
	p := &Proposal{
		ID:           s.id(),
		Project:      proj.ID,
		Freelancer:   u.Username,
		FreelancerID: u.ID,
		ProposalText: body.ProposalText,
		BidAmount:    fmt.Sprintf("%.2f", bid),
		Status:       "Pending",
		CreatedAt:    time.Now().UTC(),
	}
	s.proposals[p.ID] = p
	proj.Proposals = append(proj.Proposals, p)
	s.notifyLocked(proj.ClientID, fmt.Sprintf("New proposal from %s on %q", u.Username, proj.Title))
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleAcceptProposal(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[pathID(r)]
	if !ok {
		notFound(w)
		return
	}
	proj := s.projects[p.Project]
	if proj == nil || proj.ClientID != userID(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}
	if p.Status != "Pending" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Proposal already " + strings.ToLower(p.Status) + "."})
		return
	}
	p.Status = "Accepted"
	c := &Contract{
		ID:            s.id(),
		Project:       proj.ID,
		ProjectTitle:  proj.Title,
		Proposal:      p.ID,
		Client:        proj.Client,
		ClientID:      proj.ClientID,
		Freelancer:    p.Freelancer,
		FreelancerID:  p.FreelancerID,
		PaymentAmount: p.BidAmount,
		Status:        "Active",
		CreatedAt:     time.Now().UTC(),
	}
	s.contracts[c.ID] = c
	s.notifyLocked(p.FreelancerID, fmt.Sprintf("Your proposal for %q was accepted", proj.Title))
	writeJSON(w, http.StatusOK, map[string]any{"detail": "Proposal accepted.", "contract": c})
}

func (s *Server) handleDeleteProposal(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proposals[pathID(r)]
	if !ok {
		notFound(w)
		return
	}
	if p.FreelancerID != userID(r) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "You do not have permission to perform this action."})
		return
	}
	delete(s.proposals, p.ID)
	if proj := s.projects[p.Project]; proj != nil {
		proj.Proposals = slices.DeleteFunc(proj.Proposals, func(x *Proposal) bool { return x.ID == p.ID })
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) contractForUserLocked(w http.ResponseWriter, r *http.Request) *Contract {
	c, ok := s.contracts[pathID(r)]
	uid := userID(r)
	if !ok || (c.ClientID != uid && c.FreelancerID != uid) {
		notFound(w)
		return nil
	}
	return c
}

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, sortedByID(s.contracts, func(c *Contract) bool {
		return c.ClientID == uid || c.FreelancerID == uid
	}))
}

func (s *Server) handleUpdateContract(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status *string `json:"status"`
		Review *string `json:"review"`
		Rating *int    `json:"rating"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.contractForUserLocked(w, r)
	if c == nil {
		return
	}
	if body.Rating != nil && (*body.Rating < 1 || *body.Rating > 5) {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"rating": {"Ensure this value is between 1 and 5."}})
		return
	}
	if body.Status != nil {
		c.Status = *body.Status
	}
	if body.Review != nil {
		c.Review = *body.Review
	}
	if body.Rating != nil {
		rating := *body.Rating
		c.Rating = &rating
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCompleteContract(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.contractForUserLocked(w, r)
	if c == nil {
		return
	}
	c.Status = "Completed"
	other := c.FreelancerID
	if userID(r) == c.FreelancerID {
		other = c.ClientID
	}
	s.notifyLocked(other, fmt.Sprintf("Contract %q marked completed", c.ProjectTitle))
	writeJSON(w, http.StatusOK, map[string]string{"status": "Contract marked as completed"})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	contractID, _ := strconv.Atoi(r.URL.Query().Get("contract"))
	uid := userID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	list := []*Message{}
	for _, m := range s.messages {
		if contractID != 0 && m.Contract != contractID {
			continue
		}
		if m.Sender == uid || m.Receiver == uid {
			list = append(list, m)
		}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Contract int    `json:"contract"`
		Receiver int    `json:"receiver"`
		Text     string `json:"text"`
	}
	if !decode(w, r, &body) {
		return
	}
	uid := userID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[body.Contract]
	if !ok || (c.ClientID != uid && c.FreelancerID != uid) {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"contract": {"Invalid pk - object does not exist."}})
		return
	}
	if body.Receiver != c.ClientID && body.Receiver != c.FreelancerID || body.Receiver == uid {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"receiver": {"Receiver must be the other party on the contract."}})
		return
	}
	if strings.TrimSpace(body.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"text": {"This field may not be blank."}})
		return
	}
	m := &Message{
		ID:             s.id(),
		Contract:       c.ID,
		Sender:         uid,
		SenderUsername: s.users[uid].Username,
		Receiver:       body.Receiver,
		Text:           body.Text,
		Timestamp:      time.Now().UTC(),
	}
	s.messages = append(s.messages, m)
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) notifyLocked(userID int, msg string) {
	n := &Notification{ID: s.id(), User: userID, Message: msg, CreatedAt: time.Now().UTC()}
	s.notifications[n.ID] = n
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, sortedByID(s.notifications, func(n *Notification) bool { return n.User == uid }))
}

func (s *Server) handleMarkAsRead(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.markAsReadRoute {
		notFound(w)
		return
	}
	n, ok := s.notifications[pathID(r)]
	if !ok || n.User != userID(r) {
		notFound(w)
		return
	}
	n.IsRead = true
	writeJSON(w, http.StatusOK, map[string]string{"status": "marked as read"})
}

func (s *Server) handlePatchNotification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IsRead *bool `json:"is_read"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[pathID(r)]
	if !ok || n.User != userID(r) {
		notFound(w)
		return
	}
	if body.IsRead != nil {
		n.IsRead = *body.IsRead
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) handleGetClientProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.clientProf[userID(r)]
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateClientProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CompanyName  string `json:"company_name"`
		Bio          string `json:"bio"`
		ContactEmail string `json:"contact_email"`
	}
	if !decode(w, r, &body) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.clientProf[userID(r)]
	if !ok {
		notFound(w)
		return
	}
	p.CompanyName, p.Bio, p.ContactEmail = body.CompanyName, body.Bio, body.ContactEmail
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetFreelancerProfile(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.freelanceProf[userID(r)]
	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateFreelancerProfile(w http.ResponseWriter, r *http.Request) {
	fields := map[string]string{}
	image := ""
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(8 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Multipart form parse error - " + err.Error()})
			return
		}
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				fields[k] = v[0]
			}
		}
		if files := r.MultipartForm.File["profile_image"]; len(files) > 0 {
			image = "/media/profile_images/" + files[0].Filename
		}
	} else {
		var raw map[string]any
		if !decode(w, r, &raw) {
			return
		}
		for k, v := range raw {
			fields[k] = fmt.Sprint(v)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.freelanceProf[userID(r)]
	if !ok {
		notFound(w)
		return
	}
	if v, ok := fields["portfolio"]; ok {
		p.Portfolio = v
	}
	if v, ok := fields["skills"]; ok {
		p.Skills = v
	}
	if v, ok := fields["hourly_rate"]; ok {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string][]string{"hourly_rate": {"A valid number is required."}})
			return
		}
		p.HourlyRate = fmt.Sprintf("%.2f", rate)
	}
	if v, ok := fields["availability"]; ok {
		p.Availability = v == "true" || v == "True" || v == "1"
	}
	if image != "" {
		p.ProfileImage = image
	}
	writeJSON(w, http.StatusOK, p)
}
