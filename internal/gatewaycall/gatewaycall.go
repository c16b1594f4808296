// Package gatewaycall implements the gateway-call surface of spec §4.4:
// the only entry points through which non-secure user code may ask the
// secure side to do anything. Every call here either validates its
// arguments against the trust partition before touching shared state, or
// has no security-sensitive argument at all.
package gatewaycall

import (
	"context"
	"errors"

	"swarmit/devicecore/internal/ipc"
	"swarmit/devicecore/internal/trustzone"
	"swarmit/devicecore/internal/watchdog"
)

var (
	ErrAddressViolation = trustzone.ErrAddressViolation
	ErrInvalidLength    = errors.New("gatewaycall: invalid payload length")
	ErrInvalidChannel   = errors.New("gatewaycall: saadc channel out of range")
)

// MaxSAADCChannels bounds the channel argument to SAADCRead, mirroring the
// analog front-end's fixed input count (battery.c: SAADC_CHANNEL).
const MaxSAADCChannels = 8

const (
	// maxSendDataPacketLen leaves room for the 2-byte PACKET_DATA type and
	// length header the teacher firmware prepends before handing a packet
	// to the radio driver (§4.4: "len <= 255 - header").
	maxSendDataPacketLen = 255 - 2
	// maxSendRawDataLen has no such header: the payload goes to the radio
	// unwrapped (§4.4, §6).
	maxSendRawDataLen = 255
)

// SAADCSource is the analog-to-digital peripheral behind saadc_read,
// grounded on battery.c's db_saadc_read(channel, &value_12b) — out of
// scope as a concrete driver (§1 "battery ADC"), reached through this
// interface so Surface stays testable.
type SAADCSource interface {
	Read(channel uint8) (uint16, error)
}

// Surface bundles the collaborators every gateway call needs, and is the
// only way user code reaches the secure side. internal/appcore does not
// construct one; the caller that launches user code builds it.
type Surface struct {
	DeviceID  uint64
	Shared    *ipc.SharedData
	Partition *trustzone.Partition
	Primary   *watchdog.Watchdog
	SAADC     SAADCSource
}

// ReloadWDT feeds the primary watchdog. The only gateway call with no
// validation to perform.
func (s *Surface) ReloadWDT() {
	s.Primary.Reload()
}

// LogData is the security-critical call (§4.4, §8 property 3): it must
// validate the caller-supplied pointer/length against the non-secure
// partition before touching any shared state, and must have no side
// effect at all when validation fails.
func (s *Surface) LogData(ptr, length uintptr, data []byte) error {
	if err := s.Partition.ValidateLogPointer(ptr, length); err != nil {
		return err
	}
	s.Shared.Mu.Lock()
	s.Shared.Log.Set(data)
	s.Shared.Mu.Unlock()
	s.Shared.Raise(ipc.ChanLog)
	return nil
}

// sendRadio hands data to N over ReqRadioSend once it fits within maxLen,
// the shared shape behind SendDataPacket and SendRawData (§4.4).
func (s *Surface) sendRadio(ctx context.Context, data []byte, maxLen int) error {
	if len(data) > maxLen {
		return ErrInvalidLength
	}
	s.Shared.Mu.Lock()
	s.Shared.Radio.Set(data)
	s.Shared.Mu.Unlock()
	return s.Shared.NetworkCall(ctx, ipc.ReqRadioSend)
}

// SendDataPacket asks N to transmit data over the radio link; length is
// bounded to leave room for a PACKET_DATA header (§4.4: "len <= 255 -
// header"). No header is added here or in internal/netcore: the bytes go
// out unframed, exactly as SendRawData sends them.
func (s *Surface) SendDataPacket(ctx context.Context, data []byte) error {
	return s.sendRadio(ctx, data, maxSendDataPacketLen)
}

// SendRawData asks N to transmit data unframed, for callers that build
// their own wire layout (telemetry samples); its bound is the radio's raw
// 255-byte payload ceiling, not PACKET_DATA's header-adjusted one (§4.4).
func (s *Surface) SendRawData(ctx context.Context, data []byte) error {
	return s.sendRadio(ctx, data, maxSendRawDataLen)
}

// NotifyAppStarted raises ChanAppStart, telling the supervisor the user
// application has begun running.
func (s *Surface) NotifyAppStarted() {
	s.Shared.Mu.Lock()
	s.Shared.SetStatus(ipc.StatusRunning)
	s.Shared.Mu.Unlock()
	s.Shared.Raise(ipc.ChanAppStart)
}

// NotifyAppStopped raises ChanAppStop, telling the supervisor the user
// application has exited.
func (s *Surface) NotifyAppStopped() {
	s.Shared.Mu.Lock()
	s.Shared.SetStatus(ipc.StatusReady)
	s.Shared.Mu.Unlock()
	s.Shared.Raise(ipc.ChanAppStop)
}

// ReadDeviceID returns the device's own radio address. No validation to
// perform: it carries no caller-supplied argument (§4.4 C4).
func (s *Surface) ReadDeviceID() uint64 {
	return s.DeviceID
}

// InitRNG asks N to initialize the hardware RNG peripheral, dispatched
// over the REQUEST channel the way any other N-side primitive is (§4.6).
func (s *Surface) InitRNG(ctx context.Context) error {
	return s.Shared.NetworkCall(ctx, ipc.ReqRNGInit)
}

// ReadRNG asks N for one random byte (§3 "rng.value") and returns it.
func (s *Surface) ReadRNG(ctx context.Context) (byte, error) {
	if err := s.Shared.NetworkCall(ctx, ipc.ReqRNGRead); err != nil {
		return 0, err
	}
	s.Shared.Mu.Lock()
	v := s.Shared.RNG.Value
	s.Shared.Mu.Unlock()
	return v, nil
}

// SAADCRead samples the given analog channel, rejecting a channel number
// outside the hardware's fixed input count before ever touching SAADC
// (battery.c: db_saadc_read bounds its channel argument the same way).
func (s *Surface) SAADCRead(channel uint8) (uint16, error) {
	if channel >= MaxSAADCChannels {
		return 0, ErrInvalidChannel
	}
	return s.SAADC.Read(channel)
}

// IPCISR delivers an immutable snapshot of the shared radio PDU buffer
// (Shared.Radio) to fn, bounding the call by ctx so a misbehaving callback
// cannot block the network processor past its RPC budget (§9). That buffer
// holds the PDU most recently staged by SendDataPacket or SendRawData;
// internal/netcore does not copy received frames into it.
func (s *Surface) IPCISR(ctx context.Context, fn func(pdu []byte)) error {
	s.Shared.Mu.Lock()
	snapshot := append([]byte(nil), s.Shared.Radio.Bytes()...)
	s.Shared.Mu.Unlock()

	done := make(chan struct{})
	go func() {
		fn(snapshot)
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
