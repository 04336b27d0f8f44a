// Package fakeapi is an in-process stand-in for the marketplace API used by
// tests. It issues signed JWT access tokens, lets tests expire or revoke
// them, and counts calls per route.
package fakeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Prefix is the path under which the API is mounted.
const Prefix = "/api/accounts"

var signingKey = []byte("fakeapi-signing-key-not-a-secret-0123456789")

// Claims are the claims carried by issued tokens.
type Claims struct {
	UserID    int    `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// User is a registered account.
type User struct {
	ID           int
	Username     string
	Email        string
	Password     string
	IsClient     bool
	IsFreelancer bool
}

// Server is a fake marketplace API. All methods are safe for concurrent use.
type Server struct {
	srv    *httptest.Server
	router *mux.Router

	mu      sync.Mutex
	calls   map[string]int
	nextID  int
	users   map[int]*User
	access  map[string]int // live access token -> user id
	refresh map[string]int // live refresh token -> user id

	refreshDelay     time.Duration
	refreshFailures  int
	markAsReadRoute  bool
	accessTTL        time.Duration
	includeRoleLogin bool

	projects      map[int]*Project
	proposals     map[int]*Proposal
	contracts     map[int]*Contract
	messages      []*Message
	notifications map[int]*Notification
	clientProf    map[int]*ClientProfile
	freelanceProf map[int]*FreelancerProfile
}

// New starts a fake server. Call Close when done.
func New() *Server {
	s := &Server{
		calls:            make(map[string]int),
		nextID:           1,
		users:            make(map[int]*User),
		access:           make(map[string]int),
		refresh:          make(map[string]int),
		markAsReadRoute:  true,
		accessTTL:        5 * time.Minute,
		includeRoleLogin: true,
		projects:         make(map[int]*Project),
		proposals:        make(map[int]*Proposal),
		contracts:        make(map[int]*Contract),
		notifications:    make(map[int]*Notification),
		clientProf:       make(map[int]*ClientProfile),
		freelanceProf:    make(map[int]*FreelancerProfile),
	}
	s.router = s.routes()
	s.srv = httptest.NewServer(s.router)
	return s
}

// Close shuts the server down.
func (s *Server) Close() { s.srv.Close() }

// URL returns the API base URL, ending in "/".
func (s *Server) URL() string { return s.srv.URL + Prefix + "/" }

// Client returns an HTTP client for the server.
func (s *Server) Client() *http.Client { return s.srv.Client() }

// Calls returns how many requests hit route, given as "METHOD path" with the
// path relative to the base URL, e.g. "POST token/refresh/" or
// "DELETE projects/{id}/".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

// TotalCalls returns the number of requests served.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// SetRefreshDelay makes token refresh calls take at least d.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// FailRefreshes makes the next n refresh calls fail with 500.
func (s *Server) FailRefreshes(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshFailures = n
}

// DisableMarkAsRead removes the notifications/{id}/mark_as_read/ action,
// as on deployments that only accept a PATCH of is_read.
func (s *Server) DisableMarkAsRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markAsReadRoute = false
}

// OmitRoleOnLogin leaves is_freelancer out of login responses.
func (s *Server) OmitRoleOnLogin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.includeRoleLogin = false
}

// AddUser registers a user directly and returns it.
func (s *Server) AddUser(username, password string, freelancer bool) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(username, username+"@example.com", password, freelancer)
}

func (s *Server) addUserLocked(username, email, password string, freelancer bool) *User {
	u := &User{
		ID:           s.id(),
		Username:     username,
		Email:        email,
		Password:     password,
		IsClient:     !freelancer,
		IsFreelancer: freelancer,
	}
	s.users[u.ID] = u
	if freelancer {
		s.freelanceProf[u.ID] = &FreelancerProfile{ID: s.id(), User: u.ID, Username: username, HourlyRate: "0.00", Availability: true}
	} else {
		s.clientProf[u.ID] = &ClientProfile{ID: s.id(), User: u.ID, Username: username, ContactEmail: email}
	}
	return u
}

// HasUser reports whether username is registered.
func (s *Server) HasUser(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userByNameLocked(username) != nil
}

// IssueTokens returns a fresh access/refresh pair for username.
func (s *Server) IssueTokens(username string) (accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.mustUserLocked(username)
	return s.issueAccessLocked(u.ID), s.issueRefreshLocked(u.ID)
}

// ExpireAccess invalidates every live access token.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.access)
}

// RevokeRefresh invalidates every live refresh token.
func (s *Server) RevokeRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.refresh)
}

// AccessValid reports whether token is a live access token.
func (s *Server) AccessValid(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.access[token]
	return ok
}

func (s *Server) id() int {
	id := s.nextID
	s.nextID++
	return id
}

func (s *Server) userByNameLocked(name string) *User {
	for _, u := range s.users {
		if u.Username == name {
			return u
		}
	}
	return nil
}

func (s *Server) issueAccessLocked(userID int) string {
	return s.signLocked(userID, "access", s.accessTTL, s.access)
}

func (s *Server) issueRefreshLocked(userID int) string {
	return s.signLocked(userID, "refresh", 24*time.Hour, s.refresh)
}

func (s *Server) signLocked(userID int, typ string, ttl time.Duration, live map[string]int) string {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(fmt.Sprintf("fakeapi: sign token: %v", err))
	}
	live[signed] = userID
	return signed
}

type ctxKey struct{}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	api := router.PathPrefix(Prefix).Subrouter()
	api.Use(s.countCalls)

	api.HandleFunc("/login/", s.handleLogin).Methods("POST")
	api.HandleFunc("/register/", s.handleRegister).Methods("POST")
	api.HandleFunc("/token/refresh/", s.handleRefresh).Methods("POST")

	protected := api.PathPrefix("/").Subrouter()
	protected.Use(s.requireAuth)
	protected.HandleFunc("/projects/", s.handleListProjects).Methods("GET")
	protected.HandleFunc("/projects/", s.handleCreateProject).Methods("POST")
	protected.HandleFunc("/projects/{id:[0-9]+}/", s.handleDeleteProject).Methods("DELETE")
	protected.HandleFunc("/proposals/", s.handleListProposals).Methods("GET")
	protected.HandleFunc("/proposals/", s.handleCreateProposal).Methods("POST")
	protected.HandleFunc("/proposals/{id:[0-9]+}/accept/", s.handleAcceptProposal).Methods("POST")
	protected.HandleFunc("/proposals/{id:[0-9]+}/", s.handleDeleteProposal).Methods("DELETE")
	protected.HandleFunc("/contracts/", s.handleListContracts).Methods("GET")
	protected.HandleFunc("/contracts/{id:[0-9]+}/", s.handleUpdateContract).Methods("PUT", "PATCH")
	protected.HandleFunc("/contracts/{id:[0-9]+}/mark_completed/", s.handleCompleteContract).Methods("PUT")
	protected.HandleFunc("/messages/", s.handleListMessages).Methods("GET")
	protected.HandleFunc("/messages/", s.handleCreateMessage).Methods("POST")
	protected.HandleFunc("/notifications/", s.handleListNotifications).Methods("GET")
	protected.HandleFunc("/notifications/{id:[0-9]+}/mark_as_read/", s.handleMarkAsRead).Methods("POST")
	protected.HandleFunc("/notifications/{id:[0-9]+}/", s.handlePatchNotification).Methods("PATCH")
	protected.HandleFunc("/client-profile/", s.handleGetClientProfile).Methods("GET")
	protected.HandleFunc("/client-profile/", s.handleUpdateClientProfile).Methods("PUT")
	protected.HandleFunc("/freelancer-profile/", s.handleGetFreelancerProfile).Methods("GET")
	protected.HandleFunc("/freelancer-profile/", s.handleUpdateFreelancerProfile).Methods("PATCH")

	return router
}

func (s *Server) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tmpl := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if t, err := route.GetPathTemplate(); err == nil {
				tmpl = t
			}
		}
		tmpl = strings.TrimPrefix(tmpl, Prefix+"/")
		tmpl = strings.ReplaceAll(tmpl, "{id:[0-9]+}", "{id}")
		s.mu.Lock()
		s.calls[r.Method+" "+tmpl]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Authentication credentials were not provided.",
			})
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid authorization header."})
			return
		}

		s.mu.Lock()
		userID, ok := s.access[parts[1]]
		s.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"detail": "Given token not valid for any token type",
				"code":   "token_not_valid",
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func userID(r *http.Request) int {
	id, _ := r.Context().Value(ctxKey{}).(int)
	return id
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.userByNameLocked(body.Username)
	if u == nil || u.Password != body.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "No active account found with the given credentials",
		})
		return
	}
	resp := map[string]any{
		"access":  s.issueAccessLocked(u.ID),
		"refresh": s.issueRefreshLocked(u.ID),
	}
	if s.includeRoleLogin {
		resp["is_freelancer"] = u.IsFreelancer
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username     string `json:"username"`
		Email        string `json:"email"`
		Password     string `json:"password"`
		Password2    string `json:"password2"`
		IsClient     bool   `json:"is_client"`
		IsFreelancer bool   `json:"is_freelancer"`
	}
	if !decode(w, r, &body) {
		return
	}

	fieldErrs := map[string][]string{}
	if body.Username == "" {
		fieldErrs["username"] = []string{"This field may not be blank."}
	}
	if body.Password != body.Password2 {
		fieldErrs["password"] = []string{"Password fields didn't match."}
	}
	if body.IsClient == body.IsFreelancer {
		fieldErrs["non_field_errors"] = []string{"Choose exactly one role."}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userByNameLocked(body.Username) != nil {
		fieldErrs["username"] = []string{"A user with that username already exists."}
	}
	for _, u := range s.users {
		if body.Email != "" && u.Email == body.Email {
			fieldErrs["email"] = []string{"This email is already registered."}
		}
	}
	if len(fieldErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrs)
		return
	}

	u := s.addUserLocked(body.Username, body.Email, body.Password, body.IsFreelancer)
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":            u.ID,
		"username":      u.Username,
		"email":         u.Email,
		"is_client":     u.IsClient,
		"is_freelancer": u.IsFreelancer,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	delay := s.refreshDelay
	fail := s.refreshFailures > 0
	if fail {
		s.refreshFailures--
	}
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Internal server error"})
		return
	}
	if r.Header.Get("Authorization") != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "refresh must not carry a bearer token"})
		return
	}

	var body struct {
		Refresh string `json:"refresh"`
	}
	if !decode(w, r, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	uid, ok := s.refresh[body.Refresh]
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": s.issueAccessLocked(uid)})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "JSON parse error - " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
