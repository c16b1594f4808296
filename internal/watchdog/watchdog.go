// Package watchdog models the two independent hardware watchdogs of
// spec §4.3: a primary one fed by the running user application, and an
// auxiliary one armed once at boot against an abstract hardware
// channel-to-task route (the operator STOP signal), never touched again.
package watchdog

import (
	"sync"
	"time"
)

// ResetReason identifies which watchdog, if any, caused the last reset.
type ResetReason uint8

const (
	ResetNone ResetReason = iota
	ResetPrimary
	ResetAux
)

// Watchdog is a reloadable countdown timer. The zero value is not usable;
// construct with New.
type Watchdog struct {
	reason ResetReason
	period time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	fired   chan ResetReason
	stopped bool
}

// New creates a Watchdog that, once started, fires reason on Fired() if
// not reloaded within period.
func New(reason ResetReason, period time.Duration) *Watchdog {
	return &Watchdog{
		reason: reason,
		period: period,
		fired:  make(chan ResetReason, 1),
	}
}

// Fired delivers reason exactly once, the first time the watchdog expires
// without being reloaded or stopped first.
func (w *Watchdog) Fired() <-chan ResetReason {
	return w.fired
}

// Start arms the watchdog. Safe to call once at boot.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = false
	w.timer = time.AfterFunc(w.period, w.expire)
}

// Reload resets the countdown. Called by the gateway-call surface on
// behalf of the running user application (primary) or never, for the
// auxiliary watchdog, which is only armed via ArmOn.
func (w *Watchdog) Reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.timer == nil {
		return
	}
	w.timer.Reset(w.period)
}

// Stop disarms the watchdog, e.g. when the supervisor regains control.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watchdog) expire() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}
	select {
	case w.fired <- w.reason:
	default:
	}
}

// ArmOn binds the auxiliary watchdog to a hardware-channel-to-task route:
// once ch fires, the watchdog's countdown starts (it is not pre-armed at
// boot — it only begins counting down after the operator's STOP signal
// reaches hardware). Per spec §9, this binding happens once at init and
// is never rebound.
func (w *Watchdog) ArmOn(ch <-chan struct{}) {
	go func() {
		<-ch
		w.Start()
	}()
}

// BootDecision reports whether the boot path should remain in the
// supervisor (true) rather than launch the user application, given the
// reset reason observed at boot (§4.3: either watchdog firing keeps
// control with the supervisor).
func BootDecision(reason ResetReason) bool {
	return reason == ResetPrimary || reason == ResetAux
}
