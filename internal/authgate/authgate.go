// Package authgate verifies a 4-digit transaction PIN before a
// sensitive operation is authorized. Each ceremony is a single-use
// challenge with a 3-attempt budget and a bounded lifetime.
package authgate

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/heritagebank/ledgercore/internal/store"
)

const (
	pinLength   = 4
	maxAttempts = 3
	defaultTTL  = 5 * time.Minute
)

var (
	ErrInvalidFormat      = errors.New("pin must be exactly 4 digits")
	ErrNoSecretConfigured = errors.New("no transaction pin configured")
	ErrChallengeNotFound  = errors.New("challenge not found or expired")
	ErrChallengeConsumed  = errors.New("challenge already used")
	ErrLockedOut          = errors.New("too many failed attempts")
)

type Verdict int

const (
	VerdictAuthorized Verdict = iota
	VerdictRetry
	VerdictLockedOut
)

// Result reports the outcome of a verify call. Remaining is only
// meaningful for VerdictRetry.
type Result struct {
	Verdict   Verdict
	Remaining int
}

type challenge struct {
	accountID string
	pinHash   string
	attempts  int
	consumed  bool
	lockedOut bool
	expiresAt time.Time
}

// Gate tracks in-flight PIN ceremonies. Attempt counters are scoped to
// one challenge, never shared across accounts.
type Gate struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time

	mu         sync.Mutex
	challenges map[string]*challenge
}

func New(s store.Store) *Gate {
	return &Gate{
		store:      s,
		ttl:        defaultTTL,
		now:        time.Now,
		challenges: make(map[string]*challenge),
	}
}

// NewWithTTL is used by tests and by callers with a non-default
// ceremony lifetime.
func NewWithTTL(s store.Store, ttl time.Duration, now func() time.Time) *Gate {
	g := New(s)
	if ttl > 0 {
		g.ttl = ttl
	}
	if now != nil {
		g.now = now
	}
	return g
}

// validPIN rejects malformed input before any hash comparison so a
// typo never burns an attempt.
func validPIN(pin string) bool {
	if len(pin) != pinLength {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// HashPIN validates and hashes a PIN for storage. The raw PIN is never
// persisted or logged.
func HashPIN(pin string) (string, error) {
	if !validPIN(pin) {
		return "", ErrInvalidFormat
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// BeginChallenge opens a ceremony for the account and returns its id.
// Fails with ErrNoSecretConfigured if the account has no PIN set.
func (g *Gate) BeginChallenge(ctx context.Context, accountID string) (string, error) {
	acct, err := g.store.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if !acct.HasPIN() {
		return "", ErrNoSecretConfigured
	}

	id := uuid.New().String()
	g.mu.Lock()
	g.sweepLocked()
	g.challenges[id] = &challenge{
		accountID: accountID,
		pinHash:   acct.PINHash,
		expiresAt: g.now().Add(g.ttl),
	}
	g.mu.Unlock()
	return id, nil
}

// Verify compares the entered PIN against the stored hash. On the
// third consecutive mismatch the ceremony locks out permanently; on a
// match the challenge is consumed and authorizes exactly once.
func (g *Gate) Verify(ctx context.Context, challengeID, pin string) (Result, error) {
	if !validPIN(pin) {
		return Result{}, ErrInvalidFormat
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweepLocked()

	ch, ok := g.challenges[challengeID]
	if !ok {
		return Result{}, ErrChallengeNotFound
	}
	if ch.lockedOut {
		return Result{Verdict: VerdictLockedOut}, ErrLockedOut
	}
	if ch.consumed {
		return Result{}, ErrChallengeConsumed
	}

	// bcrypt comparison is constant-time on the hash input.
	if bcrypt.CompareHashAndPassword([]byte(ch.pinHash), []byte(pin)) == nil {
		ch.consumed = true
		return Result{Verdict: VerdictAuthorized}, nil
	}

	ch.attempts++
	if ch.attempts >= maxAttempts {
		ch.lockedOut = true
		return Result{Verdict: VerdictLockedOut}, ErrLockedOut
	}
	return Result{Verdict: VerdictRetry, Remaining: maxAttempts - ch.attempts}, nil
}

// Discard drops a ceremony, e.g. when the owning workflow is cancelled.
func (g *Gate) Discard(challengeID string) {
	g.mu.Lock()
	delete(g.challenges, challengeID)
	g.mu.Unlock()
}

// sweepLocked expires abandoned ceremonies so they cannot be replayed.
func (g *Gate) sweepLocked() {
	now := g.now()
	for id, ch := range g.challenges {
		if now.After(ch.expiresAt) {
			delete(g.challenges, id)
		}
	}
}
