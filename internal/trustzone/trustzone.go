// Package trustzone configures and enforces the secure/non-secure memory
// partition described in spec §4.2. The concrete register programming is
// an out-of-scope external collaborator, injected as the Platform
// interface; this package owns the ordering of the boot-time sequence and
// the address-range validation every gateway call depends on.
package trustzone

import (
	"errors"
	"fmt"
)

// Layout describes the secure/non-secure split of flash and RAM, and the
// gateway-call veneer region within the secure side (§3 "memory partition
// layout").
type Layout struct {
	FlashSecureEnd uintptr
	FlashEnd       uintptr
	RAMSecureEnd   uintptr
	RAMEnd         uintptr
	VeneerBase     uintptr
	VeneerEnd      uintptr
}

func (l Layout) validate() error {
	switch {
	case l.FlashSecureEnd > l.FlashEnd:
		return errors.New("trustzone: flash secure region exceeds flash end")
	case l.RAMSecureEnd > l.RAMEnd:
		return errors.New("trustzone: RAM secure region exceeds RAM end")
	case l.VeneerBase > l.VeneerEnd || l.VeneerEnd > l.FlashSecureEnd:
		return errors.New("trustzone: veneer region must lie within secure flash")
	}
	return nil
}

// Platform is the MCU-specific out-of-scope collaborator: the actual
// register pokes that configure SAU/IDAU-equivalent hardware. A real
// embedded port implements this against its own peripheral; tests and the
// simulated cmd/device binary use a no-op recorder.
type Platform interface {
	ConfigureFlashSecurity(l Layout) error
	ConfigureRAMSecurity(l Layout) error
	MarkPeripheralNonSecure(id string) error
	RetargetInterrupt(irq int) error
	EnableFaultHandling() error
	Barrier()
}

// NonSecurePeripherals lists the peripherals retargeted to the
// non-secure world during boot (§4.2 step list); a real board supplies
// its own IDs, these are the ones every deployment needs regardless of
// the concrete peripheral numbering.
var NonSecurePeripherals = []string{"gpio", "uart", "timer"}

// RetargetedIRQs lists the interrupt numbers handed to the non-secure
// vector table.
var RetargetedIRQs = []int{0, 1, 2}

// Partition is the result of a completed boot-time configuration pass. It
// exposes the one validated range check every gateway call must use
// (§4.4, §8 property 3).
type Partition struct {
	layout Layout
}

// Configure runs the ordered, idempotent boot-time sequence of §4.2:
// flash security, RAM security, peripheral retargeting, interrupt
// retargeting, fault handling, and a final barrier before any non-secure
// code can run.
func Configure(l Layout, p Platform) (*Partition, error) {
	if err := l.validate(); err != nil {
		return nil, err
	}
	if err := p.ConfigureFlashSecurity(l); err != nil {
		return nil, fmt.Errorf("trustzone: flash security: %w", err)
	}
	if err := p.ConfigureRAMSecurity(l); err != nil {
		return nil, fmt.Errorf("trustzone: RAM security: %w", err)
	}
	for _, id := range NonSecurePeripherals {
		if err := p.MarkPeripheralNonSecure(id); err != nil {
			return nil, fmt.Errorf("trustzone: peripheral %s: %w", id, err)
		}
	}
	for _, irq := range RetargetedIRQs {
		if err := p.RetargetInterrupt(irq); err != nil {
			return nil, fmt.Errorf("trustzone: irq %d: %w", irq, err)
		}
	}
	if err := p.EnableFaultHandling(); err != nil {
		return nil, fmt.Errorf("trustzone: fault handling: %w", err)
	}
	p.Barrier()
	return &Partition{layout: l}, nil
}

// ErrAddressViolation is returned by ValidateLogPointer when the given
// range reaches into the secure partition.
var ErrAddressViolation = errors.New("trustzone: address range crosses into secure partition")

// ValidateLogPointer checks that [ptr, ptr+length) lies entirely within
// the non-secure RAM region. This is the single implementation of the
// security-critical range check gateway calls rely on (§4.4, §8
// property 3) — callers must not re-derive the arithmetic themselves.
func (p *Partition) ValidateLogPointer(ptr, length uintptr) error {
	if length == 0 {
		return nil
	}
	end := ptr + length
	if end < ptr {
		return ErrAddressViolation // overflow
	}
	if ptr < p.layout.RAMSecureEnd || end > p.layout.RAMEnd {
		return ErrAddressViolation
	}
	return nil
}

// NonSecureUserBase and NonSecureUserSize describe the writable region
// the OTA writer (internal/flashota) targets: everything in flash past
// the secure partition.
func (p *Partition) NonSecureUserBase() uintptr {
	return p.layout.FlashSecureEnd
}

func (p *Partition) NonSecureUserSize() uintptr {
	return p.layout.FlashEnd - p.layout.FlashSecureEnd
}

// RecordingPlatform is a Platform that only records calls, for tests and
// the simulated device binary — there is no real hardware to program.
type RecordingPlatform struct {
	Calls []string
}

func (r *RecordingPlatform) ConfigureFlashSecurity(Layout) error {
	r.Calls = append(r.Calls, "flash-security")
	return nil
}

func (r *RecordingPlatform) ConfigureRAMSecurity(Layout) error {
	r.Calls = append(r.Calls, "ram-security")
	return nil
}

func (r *RecordingPlatform) MarkPeripheralNonSecure(id string) error {
	r.Calls = append(r.Calls, "peripheral:"+id)
	return nil
}

func (r *RecordingPlatform) RetargetInterrupt(irq int) error {
	r.Calls = append(r.Calls, fmt.Sprintf("irq:%d", irq))
	return nil
}

func (r *RecordingPlatform) EnableFaultHandling() error {
	r.Calls = append(r.Calls, "fault-handling")
	return nil
}

func (r *RecordingPlatform) Barrier() {
	r.Calls = append(r.Calls, "barrier")
}
