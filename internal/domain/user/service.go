package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/platform/apperr"
	"github.com/bloodlink/bloodlink/internal/platform/auth"
)

const (
	MinPasswordLength = 6
	// bcrypt only hashes the first 72 bytes and rejects longer input.
	MaxPasswordBytes = 72

	MaxUsernameLength = 50
	MaxNameLength     = 100
	MaxEmailLength    = 100
)

var (
	ErrUsernameTaken      = apperr.Conflict("Username already exists")
	ErrInvalidCredentials = apperr.Auth("Invalid credentials")
)

type Service struct {
	repo    Repository
	tokens  *auth.TokenManager
	revoked auth.RevocationStore
	logger  zerolog.Logger

	// dummyHash is compared against when the username is unknown so that
	// both failure paths cost one bcrypt comparison.
	dummyHash string
}

func NewService(repo Repository, tokens *auth.TokenManager, revoked auth.RevocationStore, logger zerolog.Logger) *Service {
	dummy, _ := auth.HashPassword("bloodlink-dummy-password")
	return &Service{
		repo:      repo,
		tokens:    tokens,
		revoked:   revoked,
		logger:    logger.With().Str("component", "user").Logger(),
		dummyHash: dummy,
	}
}

func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, apperr.Validation("Username and password required")
	}

	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if apperr.KindOf(err) != apperr.KindNotFound {
			return nil, err
		}
		_ = auth.CheckPassword(s.dummyHash, req.Password)
		s.logger.Warn().Str("username", username).Msg("login for unknown user")
		return nil, ErrInvalidCredentials
	}
	if err := auth.CheckPassword(u.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Warn().Str("username", username).Msg("login with wrong password")
			return nil, ErrInvalidCredentials
		}
		return nil, apperr.Internal(err)
	}

	token, claims, err := s.tokens.Issue(Principal(u))
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.logger.Info().Int("user_id", u.ID).Str("role", u.Role).Msg("user logged in")
	return &LoginResult{Token: token, ExpiresAt: claims.ExpiresAt.Time, User: u}, nil
}

// Principal is the token identity of u.
func Principal(u *User) auth.Principal {
	return auth.Principal{UserID: u.ID, Username: u.Username, Role: u.Role, Name: u.Name}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	u := &User{
		Username: strings.TrimSpace(req.Username),
		Name:     strings.TrimSpace(req.Name),
		Role:     strings.ToLower(strings.TrimSpace(req.Role)),
	}
	if u.Username == "" || utf8.RuneCountInString(u.Username) > MaxUsernameLength {
		return nil, apperr.Validation("username is required and must be at most %d characters", MaxUsernameLength)
	}
	if len(req.Password) < MinPasswordLength {
		return nil, apperr.Validation("password must be at least %d characters", MinPasswordLength)
	}
	if len(req.Password) > MaxPasswordBytes {
		return nil, apperr.Validation("password must be at most %d bytes", MaxPasswordBytes)
	}
	if u.Name == "" {
		return nil, apperr.Validation("name is required")
	}
	if utf8.RuneCountInString(u.Name) > MaxNameLength {
		return nil, apperr.Validation("name must be at most %d characters", MaxNameLength)
	}
	if u.Role == "" {
		u.Role = auth.RoleStaff
	}
	if !auth.ValidRole(u.Role) {
		return nil, apperr.Validation("invalid role %q", req.Role)
	}
	if email := strings.TrimSpace(req.Email); email != "" {
		if !strings.Contains(email, "@") {
			return nil, apperr.Validation("invalid email %q", email)
		}
		if utf8.RuneCountInString(email) > MaxEmailLength {
			return nil, apperr.Validation("email must be at most %d characters", MaxEmailLength)
		}
		u.Email = &email
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	u.PasswordHash = hash
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Int("user_id", u.ID).Str("username", u.Username).Str("role", u.Role).Msg("user registered")
	return u, nil
}

// Logout revokes the token described by claims until its expiry.
func (s *Service) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return apperr.Auth("access token required")
	}
	if s.revoked == nil {
		return nil
	}
	exp := time.Now()
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	if err := s.revoked.Revoke(ctx, claims.ID, exp); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// SeedDefaultAdmin creates the admin account when the user table is empty.
// It reports whether a user was created.
func (s *Service) SeedDefaultAdmin(ctx context.Context, password string) (bool, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	_, err = s.Register(ctx, RegisterRequest{
		Username: DefaultAdminUsername,
		Password: password,
		Name:     DefaultAdminName,
		Email:    DefaultAdminEmail,
		Role:     auth.RoleAdmin,
	})
	if errors.Is(err, ErrUsernameTaken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.Info().Str("username", DefaultAdminUsername).Msg("default admin user created")
	return true, nil
}
