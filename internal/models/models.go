// Package models provides canonical type definitions for marketplace API entities.
// Decimal amounts are json.Number so both 1500.00 and "1500.00" decode
// without losing precision.
package models

import "encoding/json"

// Project represents a job posted by a client.
type Project struct {
	ID          int64       `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Budget      json.Number `json:"budget"`
	Duration    string      `json:"duration,omitempty"`
	Category    string      `json:"category,omitempty"`
	Client      string      `json:"client,omitempty"`
	ClientID    int64       `json:"client_id,omitempty"`
	CreatedAt   string      `json:"created_at,omitempty"`
	Proposals   []Proposal  `json:"proposals,omitempty"`
}

// Proposal represents a freelancer's bid on a project.
type Proposal struct {
	ID           int64       `json:"id"`
	Project      int64       `json:"project"`
	Freelancer   string      `json:"freelancer,omitempty"`
	FreelancerID int64       `json:"freelancer_id,omitempty"`
	ProposalText string      `json:"proposal_text"`
	BidAmount    json.Number `json:"bid_amount"`
	Status       string      `json:"status"`
	CreatedAt    string      `json:"created_at,omitempty"`
}

// Proposal statuses.
const (
	ProposalPending  = "Pending"
	ProposalAccepted = "Accepted"
)

// Contract represents an accepted proposal between a client and a freelancer.
type Contract struct {
	ID            int64       `json:"id"`
	Project       int64       `json:"project,omitempty"`
	ProjectTitle  string      `json:"project_title,omitempty"`
	Proposal      int64       `json:"proposal,omitempty"`
	Client        string      `json:"client,omitempty"`
	ClientID      int64       `json:"client_id,omitempty"`
	Freelancer    string      `json:"freelancer,omitempty"`
	FreelancerID  int64       `json:"freelancer_id,omitempty"`
	PaymentAmount json.Number `json:"payment_amount,omitempty"`
	Status        string      `json:"status"`
	Review        string      `json:"review,omitempty"`
	Rating        *int        `json:"rating,omitempty"`
	CreatedAt     string      `json:"created_at,omitempty"`
}

// Contract statuses.
const (
	ContractActive    = "Active"
	ContractCompleted = "Completed"
)

// Counterparty returns the user id of the other party on the contract.
// ok is false when userID is on neither side.
func (c *Contract) Counterparty(userID int64) (id int64, ok bool) {
	switch userID {
	case c.ClientID:
		return c.FreelancerID, c.FreelancerID != 0
	case c.FreelancerID:
		return c.ClientID, c.ClientID != 0
	}
	return 0, false
}

// Message represents a chat message on a contract.
type Message struct {
	ID             int64  `json:"id"`
	Contract       int64  `json:"contract"`
	Sender         int64  `json:"sender,omitempty"`
	SenderUsername string `json:"sender_username,omitempty"`
	Receiver       int64  `json:"receiver"`
	Text           string `json:"text"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// Notification represents a notice addressed to the current user.
type Notification struct {
	ID        int64  `json:"id"`
	Message   string `json:"message"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ClientProfile is the profile of a client account.
type ClientProfile struct {
	ID           int64  `json:"id"`
	User         int64  `json:"user,omitempty"`
	Username     string `json:"username,omitempty"`
	CompanyName  string `json:"company_name"`
	Bio          string `json:"bio"`
	ContactEmail string `json:"contact_email"`
}

// FreelancerProfile is the profile of a freelancer account.
type FreelancerProfile struct {
	ID           int64       `json:"id"`
	User         int64       `json:"user,omitempty"`
	Username     string      `json:"username,omitempty"`
	Portfolio    string      `json:"portfolio"`
	Skills       string      `json:"skills"`
	HourlyRate   json.Number `json:"hourly_rate"`
	Availability bool        `json:"availability"`
	ProfileImage string      `json:"profile_image,omitempty"`
}
