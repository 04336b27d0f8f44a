// Package session owns the client-side session: the access and refresh
// tokens and the account role, persisted in a durable key-value backend.
package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
)

// Stored entry names.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyIsFreelancer = "is_freelancer"
)

// Session is the persisted login state for one API origin.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IsFreelancer bool   `json:"is_freelancer"`
}

// Authenticated reports whether an access token is present.
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// Role returns "freelancer" or "client".
func (s Session) Role() string {
	if s.IsFreelancer {
		return "freelancer"
	}
	return "client"
}

// Store is the single owner of session state for one origin. All writes
// that touch more than one entry run under the store mutex, so concurrent
// readers see either the old or the new session, never a mix.
type Store struct {
	backend Backend
	origin  string

	mu sync.RWMutex
}

// NewStore creates a store scoped to origin.
func NewStore(backend Backend, origin string) *Store {
	return &Store{backend: backend, origin: strings.TrimSuffix(origin, "/")}
}

// Origin returns the API origin this store is scoped to.
func (s *Store) Origin() string { return s.origin }

// BackendName returns the name of the storage backend.
func (s *Store) BackendName() string { return s.backend.Name() }

func (s *Store) key(name string) string {
	return s.origin + "::" + name
}

func (s *Store) get(ctx context.Context, name string) (string, error) {
	v, err := s.backend.Get(ctx, s.key(name))
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// Load returns the full session. Missing entries are zero values.
func (s *Store) Load(ctx context.Context) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sess Session
	var err error
	if sess.AccessToken, err = s.get(ctx, KeyAccessToken); err != nil {
		return Session{}, err
	}
	if sess.RefreshToken, err = s.get(ctx, KeyRefreshToken); err != nil {
		return Session{}, err
	}
	flag, err := s.get(ctx, KeyIsFreelancer)
	if err != nil {
		return Session{}, err
	}
	sess.IsFreelancer, _ = strconv.ParseBool(flag)
	return sess, nil
}

// AccessToken returns the current access token, or "" when absent.
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, KeyAccessToken)
}

// RefreshToken returns the current refresh token, or "" when absent.
func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.get(ctx, KeyRefreshToken)
}

// IsFreelancer returns the stored role flag.
func (s *Store) IsFreelancer(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, err := s.get(ctx, KeyIsFreelancer)
	if err != nil {
		return false, err
	}
	b, _ := strconv.ParseBool(v)
	return b, nil
}

// Save replaces the whole session. An empty refresh token removes the
// stored one.
func (s *Store) Save(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Set(ctx, s.key(KeyAccessToken), sess.AccessToken); err != nil {
		return err
	}
	if sess.RefreshToken == "" {
		if err := s.backend.Delete(ctx, s.key(KeyRefreshToken)); err != nil {
			return err
		}
	} else if err := s.backend.Set(ctx, s.key(KeyRefreshToken), sess.RefreshToken); err != nil {
		return err
	}
	return s.backend.Set(ctx, s.key(KeyIsFreelancer), strconv.FormatBool(sess.IsFreelancer))
}

// SetAccessToken replaces the access token and leaves the refresh token untouched.
func (s *Store) SetAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Set(ctx, s.key(KeyAccessToken), token)
}

// SetIsFreelancer records the account role.
func (s *Store) SetIsFreelancer(ctx context.Context, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Set(ctx, s.key(KeyIsFreelancer), strconv.FormatBool(v))
}

// ClearTokens removes both tokens. The role flag is kept.
func (s *Store) ClearTokens(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Delete(ctx, s.key(KeyAccessToken), s.key(KeyRefreshToken))
}

// Clear removes every session entry (logout).
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Delete(ctx, s.key(KeyAccessToken), s.key(KeyRefreshToken), s.key(KeyIsFreelancer))
}
