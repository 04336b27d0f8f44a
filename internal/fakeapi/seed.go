package fakeapi

import (
	"time"
)

// AddProject seeds a project owned by client and returns its id.
func (s *Server) AddProject(client, title, category, budget string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.mustUserLocked(client)
	p := &Project{
		ID:        s.id(),
		Title:     title,
		Budget:    budget,
		Duration:  "1 month",
		Category:  category,
		Client:    u.Username,
		ClientID:  u.ID,
		CreatedAt: time.Now().UTC(),
		Proposals: []*Proposal{},
	}
	s.projects[p.ID] = p
	return p.ID
}

// AddProposal seeds a pending proposal and returns its id.
func (s *Server) AddProposal(freelancer string, projectID int, bid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.mustUserLocked(freelancer)
	proj, ok := s.projects[projectID]
	if !ok {
		panic("fakeapi: unknown project")
	}
	p := &Proposal{
		ID:           s.id(),
		Project:      projectID,
		Freelancer:   u.Username,
		FreelancerID: u.ID,
		ProposalText: "I can do this.",
		BidAmount:    bid,
		Status:       "Pending",
		CreatedAt:    time.Now().UTC(),
	}
	s.proposals[p.ID] = p
	proj.Proposals = append(proj.Proposals, p)
	return p.ID
}

// AddContract seeds an active contract between client and freelancer and
// returns its id.
func (s *Server) AddContract(client, freelancer, title, amount string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cu, fu := s.mustUserLocked(client), s.mustUserLocked(freelancer)
	c := &Contract{
		ID:            s.id(),
		ProjectTitle:  title,
		Client:        cu.Username,
		ClientID:      cu.ID,
		Freelancer:    fu.Username,
		FreelancerID:  fu.ID,
		PaymentAmount: amount,
		Status:        "Active",
		CreatedAt:     time.Now().UTC(),
	}
	s.contracts[c.ID] = c
	return c.ID
}

func (s *Server) mustUserLocked(name string) *User {
	u := s.userByNameLocked(name)
	if u == nil {
		panic("fakeapi: unknown user " + name)
	}
	return u
}
