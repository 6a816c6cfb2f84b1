package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/engineering-enforcatech/idonatio-backend/account"
	"github.com/engineering-enforcatech/idonatio-backend/auth"
	"github.com/engineering-enforcatech/idonatio-backend/signup"
	"github.com/engineering-enforcatech/idonatio-backend/test/infra"
	"github.com/engineering-enforcatech/idonatio-backend/token"
)

var (
	flDuration    = flag.Duration("duration", 20*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent onboarding workers")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

// TestOnboardingConcurrency runs full signup chains concurrently against a
// real PostgreSQL and checks the invariants most exposed to races: unique
// constraints under contention and single-use verification codes.
func TestOnboardingConcurrency(t *testing.T) {
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("ONBOARDING_TEST_PG_DSN") != "":
		dsn = os.Getenv("ONBOARDING_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if !dockerAvailable(ctx) {
			t.Skip("no docker and no DSN provided; skipping stress test")
		}
		pgC, dsn, err = infra.StartPostgres16(ctx, "")
		if err != nil {
			t.Fatalf("start postgres: %v", err)
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	repo := account.NewRepository(pool)
	tokens := token.NewManager("stress-secret", time.Hour)
	notifier := newCodeCapture()
	logger := slog.New(slog.DiscardHandler)
	signupSvc := signup.NewService(repo, tokens, notifier, logger)
	loginSvc := auth.NewService(repo, tokens)
	guard := auth.NewGuard(repo, tokens)

	var seq atomic.Int64

	t.Run("unique chains", func(t *testing.T) {
		deadline := time.Now().Add(*flDuration)
		g, gctx := errgroup.WithContext(ctx)

		for w := 0; w < *flConcurrency; w++ {
			g.Go(func() error {
				for time.Now().Before(deadline) {
					if err := runChain(gctx, signupSvc, loginSvc, guard, notifier, seq.Add(1)); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("onboarding chain failed: %v", err)
		}
	})

	t.Run("contended email", func(t *testing.T) {
		n := seq.Add(1)
		email := fmt.Sprintf("contended-%d@example.com", n)

		var created atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < *flConcurrency; w++ {
			g.Go(func() error {
				step, err := signupSvc.SelectType(gctx, account.KindIndividual)
				if err != nil {
					return err
				}
				m := seq.Add(1)
				_, err = signupSvc.Register(gctx, step, signup.RegisterRequest{
					FirstName:       "Race",
					LastName:        fmt.Sprintf("Worker%d", w),
					Country:         "Nigeria",
					PostalCode:      fmt.Sprintf("%05d", m%100000),
					NationalID:      fmt.Sprintf("%011d", m),
					Email:           email,
					Password:        "supersafe",
					ConfirmPassword: "supersafe",
				})
				switch {
				case err == nil:
					created.Add(1)
					return nil
				case errors.Is(err, account.ErrDuplicateEmail):
					return nil
				default:
					return err
				}
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("contended register: %v", err)
		}
		if got := created.Load(); got != 1 {
			t.Fatalf("expected exactly one account for contended email, got %d", got)
		}
	})

	t.Run("single-use code", func(t *testing.T) {
		n := seq.Add(1)
		email := fmt.Sprintf("single-use-%d@example.com", n)

		step, err := signupSvc.SelectType(ctx, account.KindIndividual)
		if err != nil {
			t.Fatalf("select type: %v", err)
		}
		verifyToken, err := signupSvc.Register(ctx, step, signup.RegisterRequest{
			FirstName:       "Single",
			LastName:        "Use",
			Country:         "Nigeria",
			PostalCode:      fmt.Sprintf("%05d", n%100000),
			NationalID:      fmt.Sprintf("%011d", n),
			Email:           email,
			Password:        "supersafe",
			ConfirmPassword: "supersafe",
		})
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		code := notifier.code(email)

		var verified atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		for w := 0; w < *flConcurrency; w++ {
			g.Go(func() error {
				_, err := signupSvc.Verify(gctx, verifyToken, code)
				switch {
				case err == nil:
					verified.Add(1)
					return nil
				case errors.Is(err, signup.ErrInvalidCode):
					return nil
				default:
					return err
				}
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("concurrent verify: %v", err)
		}
		if got := verified.Load(); got != 1 {
			t.Fatalf("expected exactly one successful verification, got %d", got)
		}
	})
}

// runChain walks one identity through the full protocol:
// select type -> register -> verify -> login -> guarded lookup.
func runChain(ctx context.Context, signupSvc *signup.Service, loginSvc *auth.Service, guard *auth.Guard, notifier *codeCapture, n int64) error {
	email := fmt.Sprintf("chain-%d@example.com", n)

	step, err := signupSvc.SelectType(ctx, account.KindIndividual)
	if err != nil {
		return fmt.Errorf("select type: %w", err)
	}

	verifyToken, err := signupSvc.Register(ctx, step, signup.RegisterRequest{
		FirstName:       "Chain",
		LastName:        "Worker",
		Country:         "Nigeria",
		PostalCode:      fmt.Sprintf("%05d", n%100000),
		NationalID:      fmt.Sprintf("%011d", n),
		Email:           email,
		Password:        "supersafe",
		ConfirmPassword: "supersafe",
	})
	if err != nil {
		return fmt.Errorf("register %s: %w", email, err)
	}

	result, err := signupSvc.Verify(ctx, verifyToken, notifier.code(email))
	if err != nil {
		return fmt.Errorf("verify %s: %w", email, err)
	}
	if !result.Account.Verified {
		return fmt.Errorf("account %s not verified after verify", email)
	}

	login, err := loginSvc.Login(ctx, email, "supersafe")
	if err != nil {
		return fmt.Errorf("login %s: %w", email, err)
	}

	acct, err := guard.Authenticate(ctx, login.Token)
	if err != nil {
		return fmt.Errorf("authenticate %s: %w", email, err)
	}
	if acct.Email != email {
		return fmt.Errorf("guard resolved %s, want %s", acct.Email, email)
	}

	return nil
}

type codeCapture struct {
	mu    sync.Mutex
	codes map[string]string
}

func newCodeCapture() *codeCapture {
	return &codeCapture{codes: make(map[string]string)}
}

func (c *codeCapture) Send(_ context.Context, email, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[email] = code
	return nil
}

func (c *codeCapture) code(email string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[email]
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
