// Package auth manages the marketplace session: login, registration,
// logout and access token renewal.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gigmarket/gig/internal/api"
	"github.com/gigmarket/gig/internal/output"
	"github.com/gigmarket/gig/internal/session"
)

// Roles a user registers with.
const (
	RoleClient     = "client"
	RoleFreelancer = "freelancer"
)

// Credentials are login credentials.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is a new account request.
type Registration struct {
	Username  string
	Email     string
	Password  string
	Password2 string
	Role      string
}

// Account is the account the server created on registration.
type Account struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	IsClient     bool   `json:"is_client"`
	IsFreelancer bool   `json:"is_freelancer"`
}

// RoleDetector reports whether the logged-in user is a freelancer.
type RoleDetector interface {
	IsFreelancer(ctx context.Context) (bool, error)
}

// Manager owns the session lifecycle.
type Manager struct {
	public    *api.Client
	store     *session.Store
	refresher *Refresher
	roles     RoleDetector
}

// NewManager creates a manager. public must send without credentials or
// refresh retries; login and register never go through the retry pipeline.
// roles may be nil when role detection is unavailable.
func NewManager(public *api.Client, store *session.Store, refresher *Refresher, roles RoleDetector) *Manager {
	return &Manager{public: public, store: store, refresher: refresher, roles: roles}
}

// Store returns the session store.
func (m *Manager) Store() *session.Store {
	return m.store
}

// Login authenticates and persists the session. When the server does not
// report the role, it is detected by probing the profile endpoints.
func (m *Manager) Login(ctx context.Context, creds Credentials) (session.Session, error) {
	if strings.TrimSpace(creds.Username) == "" || creds.Password == "" {
		return session.Session{}, output.ErrUsage("Username and password are required")
	}

	resp, err := m.public.Post(ctx, "login/", creds)
	if err != nil {
		if e := output.AsError(err); e.Code == output.CodeAuth {
			e.Hint = "Check your username and password"
			return session.Session{}, e
		}
		return session.Session{}, err
	}

	var tokens struct {
		Access       string `json:"access"`
		Refresh      string `json:"refresh"`
		IsFreelancer *bool  `json:"is_freelancer"`
	}
	if err := resp.UnmarshalData(&tokens); err != nil {
		return session.Session{}, fmt.Errorf("failed to parse login response: %w", err)
	}
	if tokens.Access == "" {
		return session.Session{}, output.ErrAPI(resp.StatusCode, "Login response carried no access token")
	}

	sess := session.Session{AccessToken: tokens.Access, RefreshToken: tokens.Refresh}
	if tokens.IsFreelancer != nil {
		sess.IsFreelancer = *tokens.IsFreelancer
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return session.Session{}, fmt.Errorf("failed to save session: %w", err)
	}

	if tokens.IsFreelancer == nil && m.roles != nil {
		freelancer, err := m.roles.IsFreelancer(ctx)
		if err != nil {
			return sess, fmt.Errorf("logged in, but could not determine role: %w", err)
		}
		sess.IsFreelancer = freelancer
		if err := m.store.SetIsFreelancer(ctx, freelancer); err != nil {
			return sess, fmt.Errorf("failed to save role: %w", err)
		}
	}
	return sess, nil
}

// Register validates reg locally and creates the account. It does not log in.
func (m *Manager) Register(ctx context.Context, reg Registration) (*Account, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	body := map[string]any{
		"username":      reg.Username,
		"email":         reg.Email,
		"password":      reg.Password,
		"password2":     reg.Password2,
		"is_client":     reg.Role == RoleClient,
		"is_freelancer": reg.Role == RoleFreelancer,
	}
	resp, err := m.public.Post(ctx, "register/", body)
	if err != nil {
		return nil, err
	}

	var acct Account
	if len(resp.Data) > 0 {
		if err := resp.UnmarshalData(&acct); err != nil {
			return nil, fmt.Errorf("failed to parse registration response: %w", err)
		}
	}
	if acct.Username == "" {
		acct.Username = reg.Username
		acct.Email = reg.Email
		acct.IsClient = reg.Role == RoleClient
		acct.IsFreelancer = reg.Role == RoleFreelancer
	}
	return &acct, nil
}

// Validate checks a registration before it is sent.
func (r Registration) Validate() error {
	switch {
	case strings.TrimSpace(r.Username) == "":
		return output.ErrUsage("Username is required")
	case strings.TrimSpace(r.Email) == "":
		return output.ErrUsage("Email is required")
	case r.Password == "":
		return output.ErrUsage("Password is required")
	case r.Password != r.Password2:
		return output.ErrUsage("Passwords do not match")
	case r.Role != RoleClient && r.Role != RoleFreelancer:
		return output.ErrUsageHint(fmt.Sprintf("Unknown role %q", r.Role), "Use --role client or --role freelancer")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return output.ErrUsage(fmt.Sprintf("Invalid email address %q", r.Email))
	}
	return nil
}

// Logout clears the tokens and the role flag.
func (m *Manager) Logout(ctx context.Context) error {
	return m.store.Clear(ctx)
}

// Refresh forces an access token refresh.
func (m *Manager) Refresh(ctx context.Context) error {
	outcome := m.refresher.Refresh(ctx, "")
	if outcome.Renewed() {
		return nil
	}
	e := output.ErrAuth("Session expired")
	e.Cause = outcome.Err()
	if errors.Is(outcome.Err(), ErrNoRefreshToken) {
		e.Message = "Not logged in"
	}
	return e
}

// Token returns the stored access token.
func (m *Manager) Token(ctx context.Context) (string, error) {
	token, err := m.store.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", output.ErrAuth("Not logged in")
	}
	return token, nil
}

// Status describes the stored session.
type Status struct {
	Origin          string     `json:"origin"`
	Backend         string     `json:"backend"`
	Authenticated   bool       `json:"authenticated"`
	Role            string     `json:"role,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"`
	UserID          string     `json:"user_id,omitempty"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	Expired         bool       `json:"expired"`
}

// Status reports the stored session. Expiry comes from the access token's
// claims, decoded without verification; it is informational only.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	sess, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	st := &Status{
		Origin:          m.store.Origin(),
		Backend:         m.store.BackendName(),
		Authenticated:   sess.Authenticated(),
		HasRefreshToken: sess.RefreshToken != "",
	}
	if !sess.Authenticated() {
		return st, nil
	}
	st.Role = sess.Role()

	if claims, ok := decodeClaims(sess.AccessToken); ok {
		st.UserID = claims.userID()
		if claims.ExpiresAt != nil {
			exp := claims.ExpiresAt.UTC()
			st.ExpiresAt = &exp
			st.Expired = time.Now().After(exp)
		}
	}
	return st, nil
}

type accessClaims struct {
	UserID json.RawMessage `json:"user_id"`
	jwt.RegisteredClaims
}

func (c *accessClaims) userID() string {
	if len(c.UserID) == 0 {
		return c.Subject
	}
	var s string
	if json.Unmarshal(c.UserID, &s) == nil {
		return s
	}
	return string(c.UserID)
}

// decodeClaims parses an access token without verifying its signature.
// Opaque tokens are not an error.
func decodeClaims(token string) (*accessClaims, bool) {
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, false
	}
	return claims, true
}
