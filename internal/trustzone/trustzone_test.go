package trustzone

import "testing"

func testLayout() Layout {
	return Layout{
		FlashSecureEnd: 0x1000,
		FlashEnd:       0x10000,
		RAMSecureEnd:   0x200,
		RAMEnd:         0x1000,
		VeneerBase:     0x800,
		VeneerEnd:      0x900,
	}
}

func TestConfigureRunsOrderedSequence(t *testing.T) {
	rp := &RecordingPlatform{}
	_, err := Configure(testLayout(), rp)
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	want := []string{"flash-security", "ram-security", "peripheral:gpio", "peripheral:uart", "peripheral:timer", "irq:0", "irq:1", "irq:2", "fault-handling", "barrier"}
	if len(rp.Calls) != len(want) {
		t.Fatalf("Calls = %v, want %v", rp.Calls, want)
	}
	for i := range want {
		if rp.Calls[i] != want[i] {
			t.Fatalf("Calls[%d] = %q, want %q", i, rp.Calls[i], want[i])
		}
	}
}

func TestConfigureRejectsInvalidLayout(t *testing.T) {
	l := testLayout()
	l.RAMSecureEnd = l.RAMEnd + 1
	if _, err := Configure(l, &RecordingPlatform{}); err == nil {
		t.Fatal("expected error for inverted RAM secure range")
	}
}

func TestValidateLogPointer(t *testing.T) {
	p, err := Configure(testLayout(), &RecordingPlatform{})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	cases := []struct {
		name    string
		ptr, n  uintptr
		wantErr bool
	}{
		{"entirely non-secure", 0x300, 0x10, false},
		{"starts in secure region", 0x100, 0x10, true},
		{"spans secure boundary", 0x1f8, 0x10, true},
		{"runs past RAM end", 0xff0, 0x100, true},
		{"zero length always ok", 0x0, 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := p.ValidateLogPointer(c.ptr, c.n)
			if c.wantErr && err == nil {
				t.Fatal("expected ErrAddressViolation, got nil")
			}
			if !c.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNonSecureUserRegion(t *testing.T) {
	p, err := Configure(testLayout(), &RecordingPlatform{})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if p.NonSecureUserBase() != 0x1000 {
		t.Fatalf("NonSecureUserBase = %#x", p.NonSecureUserBase())
	}
	if p.NonSecureUserSize() != 0xf000 {
		t.Fatalf("NonSecureUserSize = %#x", p.NonSecureUserSize())
	}
}
