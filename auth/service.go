package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/engineering-enforcatech/idonatio-backend/account"
	"github.com/engineering-enforcatech/idonatio-backend/token"
)

var (
	// ErrInvalidCredentials signals wrong email or password. The two cases
	// are deliberately not distinguished.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrUnverified signals a correct password on an account that has not
	// completed email verification.
	ErrUnverified = errors.New("auth: account not verified")
	// ErrMissingFields signals an absent email or password.
	ErrMissingFields = errors.New("auth: email and password are required")
)

// Service handles login.
type Service struct {
	accounts account.Repository
	tokens   *token.Manager
}

// LoginResult bundles the credential token and domain account returned
// after a successful login.
type LoginResult struct {
	Token   string
	Account account.Account
}

// NewService creates a new login service.
func NewService(accounts account.Repository, tokens *token.Manager) *Service {
	return &Service{accounts: accounts, tokens: tokens}
}

// Login authenticates an account by email and password and issues a
// credential token. Nothing is persisted.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginResult{}, ErrMissingFields
	}

	acct, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if !acct.Verified {
		return LoginResult{}, ErrUnverified
	}

	credential, err := s.tokens.IssueCredential(acct.ID)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: issue credential token: %w", err)
	}

	return LoginResult{Token: credential, Account: acct}, nil
}
