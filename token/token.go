package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/engineering-enforcatech/idonatio-backend/account"
)

// Purpose scopes a step token to exactly one signup step. A token issued for
// one purpose is never accepted for another, even when signature and expiry
// are valid.
type Purpose string

const (
	// PurposeTypeSelection carries the account kind chosen in step 1.
	PurposeTypeSelection Purpose = "user-type-selection"
	// PurposeVerification carries the email pending confirmation after step 2.
	PurposeVerification Purpose = "verification"
)

var (
	// ErrInvalidToken signals a malformed, tampered or expired token.
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrWrongPurpose signals a well-formed token presented for a step it
	// was not issued for.
	ErrWrongPurpose = errors.New("token: wrong purpose")
)

// Step tokens expire together with the verification code they accompany.
const stepTTL = 15 * time.Minute

// StepPayload is the intermediate signup state carried between steps.
type StepPayload struct {
	Purpose     Purpose
	AccountKind account.Kind
	Email       string
}

type stepClaims struct {
	jwt.RegisteredClaims
	Purpose     Purpose      `json:"purpose"`
	AccountKind account.Kind `json:"accountKind,omitempty"`
	Email       string       `json:"email,omitempty"`
}

type credentialClaims struct {
	jwt.RegisteredClaims
	AccountID uuid.UUID `json:"account_id"`
}

// Manager issues and verifies signup step tokens and long-lived credential
// tokens using symmetric HMAC.
type Manager struct {
	secret        []byte
	credentialTTL time.Duration
}

// NewManager creates a token manager. credentialTTL bounds the lifetime of
// credential tokens; step tokens always expire after 15 minutes.
func NewManager(secret string, credentialTTL time.Duration) *Manager {
	return &Manager{
		secret:        []byte(secret),
		credentialTTL: credentialTTL,
	}
}

// IssueStep signs the payload into a short-lived step token.
func (m *Manager) IssueStep(payload StepPayload) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, stepClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stepTTL)),
		},
		Purpose:     payload.Purpose,
		AccountKind: payload.AccountKind,
		Email:       payload.Email,
	})

	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign step token: %w", err)
	}

	return signed, nil
}

// ParseStep validates signature and expiry, then checks the purpose claim
// against expected. The purpose check is explicit and never inferred from
// payload shape.
func (m *Manager) ParseStep(tokenString string, expected Purpose) (StepPayload, error) {
	claims := &stepClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc)
	if err != nil || !tok.Valid {
		return StepPayload{}, ErrInvalidToken
	}

	if claims.Purpose != expected {
		return StepPayload{}, ErrWrongPurpose
	}

	return StepPayload{
		Purpose:     claims.Purpose,
		AccountKind: claims.AccountKind,
		Email:       claims.Email,
	}, nil
}

// IssueCredential signs a bearer credential for a fully verified account.
func (m *Manager) IssueCredential(accountID uuid.UUID) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, credentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.credentialTTL)),
		},
		AccountID: accountID,
	})

	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign credential token: %w", err)
	}

	return signed, nil
}

// ParseCredential validates a credential token and returns the account id and
// the instant the token was issued. Callers compare the issue time against
// the account's password-changed timestamp.
func (m *Manager) ParseCredential(tokenString string) (uuid.UUID, time.Time, error) {
	claims := &credentialClaims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, m.keyFunc)
	if err != nil || !tok.Valid {
		return uuid.Nil, time.Time{}, ErrInvalidToken
	}
	if claims.AccountID == uuid.Nil || claims.IssuedAt == nil {
		return uuid.Nil, time.Time{}, ErrInvalidToken
	}

	return claims.AccountID, claims.IssuedAt.Time, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return m.secret, nil
}
