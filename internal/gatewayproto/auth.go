package gatewayproto

import (
	"crypto/subtle"
	"time"
)

// Authenticator gates an operator session behind a shared password with
// brute-force lockout tiering, grounded on the teacher's console.go
// authenticateConsole/getLockoutDuration/checkLockout/recordFailure.
type Authenticator struct {
	password    string
	failures    int
	lastFailure time.Time
	now         func() time.Time
}

// NewAuthenticator builds an Authenticator checking attempts against password.
func NewAuthenticator(password string) *Authenticator {
	return &Authenticator{password: password, now: time.Now}
}

// LockoutDuration returns the current lockout window given accumulated
// failures; zero means no lockout is in effect.
func (a *Authenticator) LockoutDuration() time.Duration {
	switch {
	case a.failures >= 10:
		return 5 * time.Minute
	case a.failures >= 5:
		return 30 * time.Second
	case a.failures >= 3:
		return 5 * time.Second
	default:
		return 0
	}
}

// Locked reports whether a new attempt must be rejected outright.
func (a *Authenticator) Locked() bool {
	lockout := a.LockoutDuration()
	if lockout == 0 {
		return false
	}
	return a.now().Sub(a.lastFailure) < lockout
}

// Attempt verifies candidate in constant time and updates lockout state.
func (a *Authenticator) Attempt(candidate string) bool {
	if a.Locked() {
		return false
	}
	ok := subtle.ConstantTimeCompare([]byte(candidate), []byte(a.password)) == 1
	if ok {
		a.failures = 0
		return true
	}
	a.failures++
	a.lastFailure = a.now()
	return false
}
