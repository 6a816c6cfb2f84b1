package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/engineering-enforcatech/idonatio-backend/account"
)

var (
	// ErrUnauthenticated signals an absent credential or one that no longer
	// maps to an existing account.
	ErrUnauthenticated = errors.New("auth: not authenticated")
	// ErrStaleCredential signals a credential issued before the account's
	// last password change.
	ErrStaleCredential = errors.New("auth: credential issued before password change")
)

// Guard validates bearer credentials on protected requests and re-checks
// account validity on every call.
type Guard struct {
	accounts account.Repository
	tokens   CredentialParser
}

// CredentialParser resolves a credential token into an account id and the
// instant the token was issued.
type CredentialParser interface {
	ParseCredential(tokenString string) (uuid.UUID, time.Time, error)
}

// NewGuard creates a new authentication guard.
func NewGuard(accounts account.Repository, tokens CredentialParser) *Guard {
	return &Guard{accounts: accounts, tokens: tokens}
}

// Authenticate resolves the bearer credential to a live account. Tokens
// issued before the account's last password change are rejected, which
// invalidates all pre-change credentials without a revocation list.
func (g *Guard) Authenticate(ctx context.Context, credential string) (account.Account, error) {
	if credential == "" {
		return account.Account{}, ErrUnauthenticated
	}

	id, issuedAt, err := g.tokens.ParseCredential(credential)
	if err != nil {
		return account.Account{}, err
	}

	acct, err := g.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return account.Account{}, ErrUnauthenticated
		}
		return account.Account{}, err
	}

	// iat carries second precision; truncate before comparing so a change
	// and a token issued within the same second do not flag as stale.
	if acct.PasswordChangedAt.Truncate(time.Second).After(issuedAt) {
		return account.Account{}, ErrStaleCredential
	}

	return acct, nil
}
