package gatewayproto

import (
	"testing"
	"time"
)

func TestAttemptSucceedsWithCorrectPassword(t *testing.T) {
	a := NewAuthenticator("correct-horse")
	if !a.Attempt("correct-horse") {
		t.Fatal("expected successful attempt")
	}
}

func TestAttemptFailsAndLocksOutAfterThreshold(t *testing.T) {
	clock := time.Now()
	a := NewAuthenticator("secret")
	a.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if a.Attempt("wrong") {
			t.Fatalf("attempt %d unexpectedly succeeded", i)
		}
	}

	if !a.Locked() {
		t.Fatal("expected lockout after 3 failures")
	}

	// Attempting with the correct password during lockout must still fail.
	if a.Attempt("secret") {
		t.Fatal("expected attempt to be rejected during lockout")
	}

	clock = clock.Add(6 * time.Second)
	if a.Locked() {
		t.Fatal("expected lockout to have expired")
	}
	if !a.Attempt("secret") {
		t.Fatal("expected success once lockout expired")
	}
}

func TestSuccessfulAttemptResetsFailureCount(t *testing.T) {
	a := NewAuthenticator("secret")
	a.Attempt("wrong")
	a.Attempt("wrong")
	if !a.Attempt("secret") {
		t.Fatal("expected success")
	}
	if a.LockoutDuration() != 0 {
		t.Fatal("expected failure count reset after success")
	}
}
