// Package ipc models the shared-memory substrate between the application
// processor (A) and the network processor (N). The two processors never
// share anything except the data in this package: a mutex-guarded struct
// standing in for a shared-RAM region, and a fixed set of edge-triggered
// channels standing in for single-bit hardware signal latches.
package ipc

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// Channel identifies one edge-triggered signal line between N and A.
// Values match the catalog N and A agree on; order here has no bearing on
// dispatch priority — that is a policy decision made by the consumer
// (see internal/appcore).
type Channel uint8

const (
	ChanRequest Channel = iota
	ChanRadioRX
	ChanAppStart
	ChanAppStop
	ChanLog
	ChanOTAStart
	ChanOTAChunk

	numChannels
)

// ReqType enumerates the requests A can ask N to perform over NetworkCall.
// ReqNone is a pure barrier: NetworkCall(ReqNone) blocks until N has
// observed and acknowledged it without asking N to do anything.
type ReqType uint8

const (
	ReqNone ReqType = iota
	ReqRadioSend
	ReqRadioListenState
	ReqRNGInit
	ReqRNGRead
)

// Status is the device's externally-visible lifecycle state (§3, §4.6, §4.7).
type Status uint8

const (
	StatusReady Status = iota
	StatusRunning
	StatusStopping
	StatusProgramming
	StatusResetting
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusProgramming:
		return "programming"
	case StatusResetting:
		return "resetting"
	default:
		return "unknown"
	}
}

// ErrDeadline is returned by NetworkCall/ReleaseNetwork when the supplied
// context is done before N acknowledges.
var ErrDeadline = errors.New("ipc: deadline exceeded waiting for network processor")

const (
	maxRadioPDU = 255
	maxLogData  = 127
	otaChunkCap = 128
)

// RadioPDU mirrors ipc_radio_pdu_t: a length-prefixed fixed buffer, never
// a slice, so no allocation crosses the IPC boundary.
type RadioPDU struct {
	Length uint8
	Buffer [maxRadioPDU]byte
}

func (p *RadioPDU) Set(b []byte) {
	n := len(b)
	if n > maxRadioPDU {
		n = maxRadioPDU
	}
	p.Length = uint8(n)
	copy(p.Buffer[:], b[:n])
}

func (p *RadioPDU) Bytes() []byte {
	return p.Buffer[:p.Length]
}

// LogData mirrors ipc_log_data_t.
type LogData struct {
	Length uint8
	Data   [maxLogData]byte
}

func (l *LogData) Set(b []byte) {
	n := len(b)
	if n > maxLogData {
		n = maxLogData
	}
	l.Length = uint8(n)
	copy(l.Data[:], b[:n])
}

func (l *LogData) Bytes() []byte {
	return l.Data[:l.Length]
}

// OTAData mirrors ipc_ota_data_t plus the fields SPEC_FULL.md's OTA state
// machine needs beyond the original layout: ChunkCount and DeclaredHash
// (recorded from OTA_START so the last chunk can be recognized and the
// running hash finalized against it), HashesMatch, and LastChunkAcked
// (§4.7, §8 properties 4-6).
type OTAData struct {
	ImageSize      uint32
	ChunkCount     uint32
	ChunkIndex     uint32
	ChunkSize      uint32
	Chunk          [otaChunkCap]byte
	DeclaredHash   [32]byte
	HashesMatch    bool
	LastChunkAcked int64 // -1 means "no chunk acked yet"
}

// RNGData mirrors the single-byte result of an N-side RNG read (§3
// "rng.value"), requested over NetworkCall(ReqRNGRead) and consumed by
// gatewaycall.ReadRNG.
type RNGData struct {
	Value byte
}

// SharedData is the full shared-memory block (§3). All multi-field reads
// and writes must hold Mu; Status is additionally exposed as an atomic for
// single-word lock-free reads by call surfaces that only need to check
// lifecycle state (§5, "word-aligned atomic stores").
type SharedData struct {
	Mu sync.Mutex

	netReady uint32 // atomic bool
	netAck   uint32 // atomic bool
	status   uint32 // atomic Status

	Req   ReqType
	Radio RadioPDU
	Log   LogData
	OTA   OTAData
	RNG   RNGData

	channels [numChannels]chan struct{}
	once     sync.Once
}

func (s *SharedData) init() {
	s.once.Do(func() {
		for i := range s.channels {
			s.channels[i] = make(chan struct{}, 1)
		}
		s.OTA.LastChunkAcked = -1
	})
}

// Status returns the current lifecycle status without taking Mu.
func (s *SharedData) Status() Status {
	return Status(atomic.LoadUint32(&s.status))
}

// SetStatus updates the lifecycle status. Callers that also mutate OTA/Log
// fields in the same step should hold Mu across both operations so readers
// never observe a status/data mismatch.
func (s *SharedData) SetStatus(st Status) {
	atomic.StoreUint32(&s.status, uint32(st))
}

func (s *SharedData) setNetReady(v bool) {
	if v {
		atomic.StoreUint32(&s.netReady, 1)
	} else {
		atomic.StoreUint32(&s.netReady, 0)
	}
}

func (s *SharedData) isNetReady() bool {
	return atomic.LoadUint32(&s.netReady) != 0
}

func (s *SharedData) setNetAck(v bool) {
	if v {
		atomic.StoreUint32(&s.netAck, 1)
	} else {
		atomic.StoreUint32(&s.netAck, 0)
	}
}

func (s *SharedData) isNetAck() bool {
	return atomic.LoadUint32(&s.netAck) != 0
}

// Raise latches ch. Raising an already-latched channel is a no-op — it
// never blocks the raiser, matching an edge-triggered hardware signal.
func (s *SharedData) Raise(ch Channel) {
	s.init()
	select {
	case s.channels[ch] <- struct{}{}:
	default:
	}
}

// Wait blocks until ch is raised or ctx is done.
func (s *SharedData) Wait(ctx context.Context, ch Channel) error {
	s.init()
	select {
	case <-s.channels[ch]:
		return nil
	case <-ctx.Done():
		return ErrDeadline
	}
}

// TryWait drains ch if it is latched, returning true, without blocking.
func (s *SharedData) TryWait(ch Channel) bool {
	s.init()
	select {
	case <-s.channels[ch]:
		return true
	default:
		return false
	}
}

// NetworkCall is A's synchronous RPC to N (§4.1). At most one call may be
// outstanding at a time; callers are responsible for that discipline (A's
// single-threaded event loop guarantees it). ReqNone performs a pure
// barrier: it still raises ChanRequest and busy-waits for the ack, it just
// asks N to do nothing but acknowledge.
func (s *SharedData) NetworkCall(ctx context.Context, req ReqType) error {
	s.init()
	s.Mu.Lock()
	s.Req = req
	s.setNetAck(false)
	s.Mu.Unlock()

	s.Raise(ChanRequest)

	for {
		if s.isNetAck() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrDeadline
		default:
			runtime.Gosched()
		}
	}
}

// ServeRequest is N's half of NetworkCall: wait for ChanRequest, read Req,
// run fn against it, then publish the ack. fn receives the request under
// Mu already held so it may safely read/write shared fields.
func (s *SharedData) ServeRequest(ctx context.Context, fn func(req ReqType)) error {
	s.init()
	if err := s.Wait(ctx, ChanRequest); err != nil {
		return err
	}
	s.Mu.Lock()
	req := s.Req
	fn(req)
	s.Mu.Unlock()
	s.setNetAck(true)
	return nil
}

// ReleaseNetwork is A's boot-time wait for N to signal it is alive and
// ready to serve requests (§4.1). Idempotent: once net_ready is set it
// stays set, so repeated calls return immediately.
func (s *SharedData) ReleaseNetwork(ctx context.Context) error {
	s.init()
	if s.isNetReady() {
		return nil
	}
	for {
		if s.isNetReady() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ErrDeadline
		default:
			runtime.Gosched()
		}
	}
}

// MarkNetworkReady is N's boot-time signal that it has finished its own
// initialization and is ready to serve NetworkCall/ServeRequest.
func (s *SharedData) MarkNetworkReady() {
	s.init()
	s.setNetReady(true)
}
