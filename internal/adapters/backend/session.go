package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/okian/kiosk/pkg/logger"
)

// Roles allowed to operate the kiosk camera.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
)

const defaultRefreshWithin = 30 * time.Second

// CameraRole reports whether role may operate the kiosk camera.
func CameraRole(role string) bool {
	return role == RoleAdmin || role == RoleSupervisor
}

// TokenExpiry reads the exp claim without verifying the signature; the kiosk
// only needs to know when to log in again. ok is false when the token is not
// a JWT or carries no exp.
func TokenExpiry(token string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	t, err := claims.GetExpirationTime()
	if err != nil || t == nil {
		return time.Time{}, false
	}
	return t.Time, true
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginData struct {
	User struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Email      string `json:"email"`
		Role       string `json:"role"`
		Department string `json:"department"`
	} `json:"user"`
	AccessToken string `json:"access_token"`
}

// Session logs in with credentials and keeps the access token fresh.
// It implements TokenSource.
type Session struct {
	client        *Client
	username      string
	password      string
	refreshWithin time.Duration
	now           func() time.Time
	log           logger.Logger

	mu    sync.Mutex
	token string
	role  string
	exp   time.Time
}

// NewSession creates a session that logs in through client.
func NewSession(client *Client, username, password string) *Session {
	return &Session{
		client:        client,
		username:      username,
		password:      password,
		refreshWithin: defaultRefreshWithin,
		now:           time.Now,
		log:           client.log,
	}
}

// Token returns a token valid for at least the refresh margin, logging in
// again when needed. Tokens without an exp claim are reused until a login is forced.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && (s.exp.IsZero() || s.now().Add(s.refreshWithin).Before(s.exp)) {
		return s.token, nil
	}
	if err := s.loginLocked(ctx); err != nil {
		return "", err
	}
	return s.token, nil
}

// Login forces a fresh login and returns the user's role.
func (s *Session) Login(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loginLocked(ctx); err != nil {
		return "", err
	}
	return s.role, nil
}

// Role returns the role of the last successful login.
func (s *Session) Role() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.role
}

func (s *Session) loginLocked(ctx context.Context) error {
	s.token, s.role, s.exp = "", "", time.Time{}

	if s.username == "" {
		return ErrNoToken
	}

	var env envelope[loginData]
	if err := s.client.postJSON(ctx, PathLogin, false, loginRequest{Username: s.username, Password: s.password}, &env); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if env.Data.AccessToken == "" {
		return fmt.Errorf("login: %w", ErrNoToken)
	}
	if !CameraRole(env.Data.User.Role) {
		return fmt.Errorf("login as %q: %w", env.Data.User.Role, ErrForbidden)
	}

	s.token = env.Data.AccessToken
	s.role = env.Data.User.Role
	if exp, ok := TokenExpiry(s.token); ok {
		s.exp = exp
	}
	s.log.Info(ctx, "backend login succeeded",
		logger.String("user", env.Data.User.Name),
		logger.String("role", s.role),
		logger.Any("expires", s.exp))
	return nil
}
