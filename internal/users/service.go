// Package users implements the identity collaborator: issuer accounts with
// email/password credentials and a ledger wallet address. Verification of
// certificates is open to unauthenticated callers; issuance requires an
// account from this package.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Service implements business logic for issuer account management.
type Service struct {
	repo   Repo
	logger *zap.Logger
}

// NewService creates a new Service.
func NewService(repo Repo, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Signup creates a new issuer account. The wallet address doubles as the
// issuerAddress on every certificate the account issues, so it is required.
func (s *Service) Signup(ctx context.Context, name, email, password, walletAddress string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	walletAddress = strings.TrimSpace(walletAddress)

	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters")
	}
	if walletAddress == "" {
		return nil, fmt.Errorf("wallet_address is required")
	}
	if name == "" {
		if at := strings.Index(email, "@"); at > 0 {
			name = email[:at]
		} else {
			name = email
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{
		Name:          name,
		Email:         email,
		PasswordHash:  string(hash),
		WalletAddress: walletAddress,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("user registered",
		zap.String("user_id", u.ID.String()),
		zap.String("wallet_address", u.WalletAddress),
	)
	return u, nil
}

// Login verifies email/password credentials and returns the user on success.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("invalid credentials")
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("invalid credentials")
	}
	return u, nil
}

// GetByID retrieves a user by ID.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}
