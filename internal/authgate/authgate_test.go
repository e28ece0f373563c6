package authgate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/heritagebank/ledgercore/internal/domain"
	"github.com/heritagebank/ledgercore/internal/store"
)

func newTestGate(t *testing.T, pin string) (*Gate, string) {
	t.Helper()
	st := store.NewMemoryStore()
	acct, err := st.CreateAccount(context.Background(), domain.Account{
		Number:  "2030000001",
		Balance: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if pin != "" {
		hash, err := HashPIN(pin)
		if err != nil {
			t.Fatalf("hash pin: %v", err)
		}
		if err := st.SetPINHash(context.Background(), acct.ID, hash); err != nil {
			t.Fatalf("set pin hash: %v", err)
		}
	}
	return New(st), acct.ID
}

func TestHashPINFormat(t *testing.T) {
	cases := []struct {
		pin string
		ok  bool
	}{
		{"1234", true},
		{"0000", true},
		{"123", false},
		{"12345", false},
		{"12a4", false},
		{"", false},
		{"12 4", false},
	}
	for _, c := range cases {
		_, err := HashPIN(c.pin)
		if c.ok && err != nil {
			t.Errorf("HashPIN(%q) unexpected error: %v", c.pin, err)
		}
		if !c.ok && !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("HashPIN(%q) want ErrInvalidFormat, got %v", c.pin, err)
		}
	}
}

func TestBeginChallengeNoSecret(t *testing.T) {
	g, accountID := newTestGate(t, "")
	if _, err := g.BeginChallenge(context.Background(), accountID); !errors.Is(err, ErrNoSecretConfigured) {
		t.Fatalf("want ErrNoSecretConfigured, got %v", err)
	}
}

func TestVerifyMalformedInputBurnsNoAttempt(t *testing.T) {
	g, accountID := newTestGate(t, "1234")
	ctx := context.Background()
	id, err := g.BeginChallenge(ctx, accountID)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if _, err := g.Verify(ctx, id, "12ab"); !errors.Is(err, ErrInvalidFormat) {
		t.Fatalf("want ErrInvalidFormat, got %v", err)
	}

	// A correct PIN must still authorize: format failures never count.
	res, err := g.Verify(ctx, id, "1234")
	if err != nil || res.Verdict != VerdictAuthorized {
		t.Fatalf("want authorized, got res=%+v err=%v", res, err)
	}
}

func TestVerifyRetryCountdown(t *testing.T) {
	g, accountID := newTestGate(t, "1234")
	ctx := context.Background()
	id, _ := g.BeginChallenge(ctx, accountID)

	res, err := g.Verify(ctx, id, "9999")
	if err != nil || res.Verdict != VerdictRetry || res.Remaining != 2 {
		t.Fatalf("attempt 1: res=%+v err=%v", res, err)
	}
	res, err = g.Verify(ctx, id, "9999")
	if err != nil || res.Verdict != VerdictRetry || res.Remaining != 1 {
		t.Fatalf("attempt 2: res=%+v err=%v", res, err)
	}
}

func TestLockoutFinality(t *testing.T) {
	g, accountID := newTestGate(t, "1234")
	ctx := context.Background()
	id, _ := g.BeginChallenge(ctx, accountID)

	for i := 0; i < 2; i++ {
		if _, err := g.Verify(ctx, id, "0000"); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	res, err := g.Verify(ctx, id, "0000")
	if !errors.Is(err, ErrLockedOut) || res.Verdict != VerdictLockedOut {
		t.Fatalf("3rd failure: res=%+v err=%v", res, err)
	}

	// Even the correct secret is refused after lockout.
	if _, err := g.Verify(ctx, id, "1234"); !errors.Is(err, ErrLockedOut) {
		t.Fatalf("post-lockout verify: want ErrLockedOut, got %v", err)
	}
}

func TestChallengeSingleUse(t *testing.T) {
	g, accountID := newTestGate(t, "1234")
	ctx := context.Background()
	id, _ := g.BeginChallenge(ctx, accountID)

	if res, err := g.Verify(ctx, id, "1234"); err != nil || res.Verdict != VerdictAuthorized {
		t.Fatalf("first verify: res=%+v err=%v", res, err)
	}
	if _, err := g.Verify(ctx, id, "1234"); !errors.Is(err, ErrChallengeConsumed) {
		t.Fatalf("second verify: want ErrChallengeConsumed, got %v", err)
	}
}

func TestChallengeExpiry(t *testing.T) {
	st := store.NewMemoryStore()
	acct, _ := st.CreateAccount(context.Background(), domain.Account{Number: "2030000002"})
	hash, _ := HashPIN("1234")
	st.SetPINHash(context.Background(), acct.ID, hash)

	clock := time.Now()
	g := NewWithTTL(st, time.Minute, func() time.Time { return clock })

	id, err := g.BeginChallenge(context.Background(), acct.ID)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := g.Verify(context.Background(), id, "1234"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expired verify: want ErrChallengeNotFound, got %v", err)
	}
}
