package signup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/engineering-enforcatech/idonatio-backend/account"
	"github.com/engineering-enforcatech/idonatio-backend/notify"
	"github.com/engineering-enforcatech/idonatio-backend/token"
)

var (
	// ErrInvalidKind signals an account kind outside the enumeration.
	ErrInvalidKind = errors.New("signup: invalid account kind")
	// ErrPasswordMismatch signals password and confirmation differ.
	ErrPasswordMismatch = errors.New("signup: passwords do not match")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("signup: password must be at least 6 characters")
	// ErrInvalidEmail signals a syntactically invalid email address.
	ErrInvalidEmail = errors.New("signup: invalid email address")
	// ErrInvalidNationalID signals the national id is not an 11-digit number.
	ErrInvalidNationalID = errors.New("signup: national id must be 11 digits")
	// ErrInvalidPostalCode signals the postal code is not a 5-digit number.
	ErrInvalidPostalCode = errors.New("signup: postal code must be 5 digits")
	// ErrOrganizationRequired signals a missing organization name for an
	// organization registration.
	ErrOrganizationRequired = errors.New("signup: organization name is required")
	// ErrInvalidCode signals a wrong, expired or already consumed
	// verification code.
	ErrInvalidCode = errors.New("signup: invalid verification code")
)

// bcrypt work factor, matching the cost used for existing account hashes.
const hashCost = 12

// Service drives the three-step registration state machine:
// select type -> register -> verify. Steps are independently invocable over
// the wire; ordering is enforced through purpose-scoped step tokens.
type Service struct {
	accounts account.Repository
	codes    *CodeStore
	tokens   *token.Manager
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewService creates a new signup service.
func NewService(accounts account.Repository, tokens *token.Manager, notifier notify.Notifier, logger *slog.Logger) *Service {
	return &Service{
		accounts: accounts,
		codes:    NewCodeStore(),
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
	}
}

// SelectType validates the chosen account kind and issues a step token
// scoped to type selection. Nothing is persisted; a client may restart from
// this step at any time, orphaning any previous token chain.
func (s *Service) SelectType(ctx context.Context, kind account.Kind) (string, error) {
	if !kind.Valid() {
		return "", ErrInvalidKind
	}

	stepToken, err := s.tokens.IssueStep(token.StepPayload{
		Purpose:     token.PurposeTypeSelection,
		AccountKind: kind,
	})
	if err != nil {
		return "", fmt.Errorf("signup: issue selection token: %w", err)
	}

	return stepToken, nil
}

// Register validates the signup form, persists an unverified account with
// the kind carried by the step-1 token, dispatches a verification code to
// the email and issues a verification-purpose step token. The credential
// token is withheld until the account is verified.
func (s *Service) Register(ctx context.Context, stepToken string, req RegisterRequest) (string, error) {
	payload, err := s.tokens.ParseStep(stepToken, token.PurposeTypeSelection)
	if err != nil {
		return "", err
	}
	if !payload.AccountKind.Valid() {
		return "", ErrInvalidKind
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := validateForm(email, payload.AccountKind, req); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), hashCost)
	if err != nil {
		return "", fmt.Errorf("signup: hash password: %w", err)
	}

	var orgName *string
	if payload.AccountKind == account.KindOrganization {
		name := strings.TrimSpace(req.OrganizationName)
		orgName = &name
	}

	acct, err := s.accounts.Create(ctx, account.CreateParams{
		Email:            email,
		FirstName:        strings.TrimSpace(req.FirstName),
		LastName:         strings.TrimSpace(req.LastName),
		Country:          strings.TrimSpace(req.Country),
		PostalCode:       req.PostalCode,
		NationalID:       req.NationalID,
		Kind:             payload.AccountKind,
		OrganizationName: orgName,
		PasswordHash:     string(hash),
		Role:             account.RoleDonee,
	})
	if err != nil {
		return "", err
	}

	code, err := s.codes.Issue(acct.Email)
	if err != nil {
		return "", err
	}

	// No transaction spans persistence and dispatch: a notifier failure
	// leaves the account registered but unverified, which is recoverable.
	if err := s.notifier.Send(ctx, acct.Email, code); err != nil {
		s.logger.Error("signup: verification dispatch failed",
			"email", acct.Email,
			"error", err.Error())
		return "", fmt.Errorf("signup: send verification code: %w", err)
	}

	verifyToken, err := s.tokens.IssueStep(token.StepPayload{
		Purpose: token.PurposeVerification,
		Email:   acct.Email,
	})
	if err != nil {
		return "", fmt.Errorf("signup: issue verification token: %w", err)
	}

	s.logger.Info("signup: account registered, verification pending",
		"email", acct.Email,
		"kind", acct.Kind)

	return verifyToken, nil
}

// Verify consumes the verification code for the email carried by the step
// token, flips the account's verification flag and issues a credential
// token. A wrong code leaves the registration unverified; the client may
// retry until the code expires.
func (s *Service) Verify(ctx context.Context, stepToken, code string) (VerifyResult, error) {
	payload, err := s.tokens.ParseStep(stepToken, token.PurposeVerification)
	if err != nil {
		return VerifyResult{}, err
	}

	if !s.codes.Consume(payload.Email, code) {
		return VerifyResult{}, ErrInvalidCode
	}

	acct, err := s.accounts.MarkVerified(ctx, payload.Email)
	if err != nil {
		return VerifyResult{}, err
	}

	credential, err := s.tokens.IssueCredential(acct.ID)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("signup: issue credential token: %w", err)
	}

	s.logger.Info("signup: account verified", "email", acct.Email)

	return VerifyResult{Token: credential, Account: acct}, nil
}

func validateForm(email string, kind account.Kind, req RegisterRequest) error {
	if req.Password != req.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if len(req.Password) < 6 {
		return ErrWeakPassword
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}
	if !allDigits(req.NationalID) || len(req.NationalID) != 11 {
		return ErrInvalidNationalID
	}
	if !allDigits(req.PostalCode) || len(req.PostalCode) != 5 {
		return ErrInvalidPostalCode
	}
	if kind == account.KindOrganization && strings.TrimSpace(req.OrganizationName) == "" {
		return ErrOrganizationRequired
	}
	return nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
