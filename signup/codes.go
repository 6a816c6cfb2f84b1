package signup

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Codes live exactly as long as the verification step token.
const codeTTL = 15 * time.Minute

type codeRecord struct {
	code      string
	expiresAt time.Time
}

// CodeStore keeps one outstanding verification code per email. Records are
// single-use and expire after 15 minutes. Codes survive only in process
// memory; a restart invalidates all outstanding codes.
type CodeStore struct {
	mu    sync.Mutex
	codes map[string]codeRecord
	now   func() time.Time
}

// NewCodeStore creates an empty in-memory code store.
func NewCodeStore() *CodeStore {
	return &CodeStore{
		codes: make(map[string]codeRecord),
		now:   time.Now,
	}
}

// Issue generates a 6-digit code for the email, overwriting any prior entry.
func (s *CodeStore) Issue(email string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("signup: generate code: %w", err)
	}
	code := fmt.Sprintf("%06d", n.Int64()+100000)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[email] = codeRecord{
		code:      code,
		expiresAt: s.now().Add(codeTTL),
	}

	return code, nil
}

// Consume checks the submitted code against the stored record. The record is
// deleted when it has expired or when the code matches; a mismatch before
// expiry keeps the record so the client may retry. The check-and-delete
// sequence is atomic with respect to concurrent calls for the same email.
func (s *CodeStore) Consume(email, submitted string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.codes[email]
	if !ok {
		return false
	}

	if s.now().After(record.expiresAt) {
		delete(s.codes, email)
		return false
	}

	if record.code != submitted {
		return false
	}

	delete(s.codes, email)
	return true
}
