package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"budgetlist/internal/core"
	"budgetlist/internal/store"
)

const minPasswordLength = 8

var (
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", core.ErrUnauthorized)
	ErrWeakPassword       = fmt.Errorf("%w: password must be at least %d characters", core.ErrInvalidInput, minPasswordLength)
	ErrInvalidEmail       = fmt.Errorf("%w: a valid email is required", core.ErrInvalidInput)
)

// Service registers accounts and exchanges credentials for session tokens.
type Service struct {
	users store.UserStore
	jwt   *JWTManager
	cost  int
}

func NewService(users store.UserStore, jwt *JWTManager) *Service {
	return &Service{users: users, jwt: jwt, cost: bcrypt.DefaultCost}
}

// Register creates an account. The display name defaults to the part of the
// email before the @.
func (s *Service) Register(ctx context.Context, email, password, name string) (*core.User, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	if existing, err := s.users.GetUserByEmail(ctx, email); err == nil && existing != nil {
		return nil, core.ErrEmailTaken
	} else if err != nil && !errors.Is(err, core.ErrUserNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.users.CreateUser(ctx, core.User{
		Email:        email,
		Name:         core.DisplayName(name, email),
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, core.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// Login verifies credentials and returns a signed token for the user.
func (s *Service) Login(ctx context.Context, email, password string) (string, *core.User, error) {
	u, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, core.ErrUserNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.jwt.Generate(u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// Tokens exposes the token manager for request authentication.
func (s *Service) Tokens() *JWTManager { return s.jwt }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
