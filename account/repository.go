package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that the account does not exist.
	ErrNotFound = errors.New("account: not found")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("account: email already exists")
	// ErrDuplicateNationalID signals that the national id number is already registered.
	ErrDuplicateNationalID = errors.New("account: national id already exists")
	// ErrDuplicatePostalCode signals that the postal code is already registered.
	ErrDuplicatePostalCode = errors.New("account: postal code already exists")
)

// Repository handles data access for accounts.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (Account, error)
	MarkVerified(ctx context.Context, email string) (Account, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) (Account, error)
}

// CreateParams contains write parameters for creating accounts.
type CreateParams struct {
	Email            string
	FirstName        string
	LastName         string
	Country          string
	PostalCode       string
	NationalID       string
	Kind             Kind
	OrganizationName *string
	PasswordHash     string
	Role             Role
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed account repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const accountColumns = `id, email, first_name, last_name, country, postal_code, national_id,
	kind, organization_name, password_hash, verified, role, password_changed_at, created_at, updated_at`

// Create inserts a new unverified account with hashed password.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Account, error) {
	insertSQL := `
		INSERT INTO accounts (id, email, first_name, last_name, country, postal_code, national_id,
			kind, organization_name, password_hash, role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + accountColumns

	acct, err := scanAccount(r.pool.QueryRow(ctx, insertSQL,
		uuid.New(),
		params.Email,
		params.FirstName,
		params.LastName,
		params.Country,
		params.PostalCode,
		params.NationalID,
		params.Kind,
		params.OrganizationName,
		params.PasswordHash,
		params.Role,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, duplicateError(pgErr.ConstraintName)
		}
		return Account{}, fmt.Errorf("account: create: %w", err)
	}

	return acct, nil
}

// GetByEmail retrieves an account by email address.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (Account, error) {
	selectSQL := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	acct, err := scanAccount(r.pool.QueryRow(ctx, selectSQL, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("account: get by email: %w", err)
	}

	return acct, nil
}

// GetByID retrieves an account by primary key.
func (r *PGRepository) GetByID(ctx context.Context, id uuid.UUID) (Account, error) {
	selectSQL := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acct, err := scanAccount(r.pool.QueryRow(ctx, selectSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("account: get by id: %w", err)
	}

	return acct, nil
}

// MarkVerified flips the verification flag for the account with the given email.
func (r *PGRepository) MarkVerified(ctx context.Context, email string) (Account, error) {
	updateSQL := `
		UPDATE accounts
		SET verified = TRUE, updated_at = now()
		WHERE email = $1
		RETURNING ` + accountColumns

	acct, err := scanAccount(r.pool.QueryRow(ctx, updateSQL, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("account: mark verified: %w", err)
	}

	return acct, nil
}

// UpdatePassword replaces the stored hash and advances password_changed_at,
// which invalidates credential tokens issued before the change.
func (r *PGRepository) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) (Account, error) {
	updateSQL := `
		UPDATE accounts
		SET password_hash = $2, password_changed_at = now(), updated_at = now()
		WHERE id = $1
		RETURNING ` + accountColumns

	acct, err := scanAccount(r.pool.QueryRow(ctx, updateSQL, id, passwordHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("account: update password: %w", err)
	}

	return acct, nil
}

func duplicateError(constraint string) error {
	switch {
	case strings.Contains(constraint, "national_id"):
		return ErrDuplicateNationalID
	case strings.Contains(constraint, "postal_code"):
		return ErrDuplicatePostalCode
	default:
		return ErrDuplicateEmail
	}
}

func scanAccount(row pgx.Row) (Account, error) {
	var (
		acct    Account
		orgName *string
	)
	err := row.Scan(
		&acct.ID,
		&acct.Email,
		&acct.FirstName,
		&acct.LastName,
		&acct.Country,
		&acct.PostalCode,
		&acct.NationalID,
		&acct.Kind,
		&orgName,
		&acct.PasswordHash,
		&acct.Verified,
		&acct.Role,
		&acct.PasswordChangedAt,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}

	acct.OrganizationName = orgName
	return acct, nil
}
