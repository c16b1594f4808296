// Package otaproto implements the OTA state machine of spec §4.7: a
// running SHA-256 over chunks received in order, replay-tolerant
// (duplicate ACKs for an already-seen chunk never re-hash), with an
// atomic commit decision gated on a declared-vs-computed digest match.
package otaproto

import (
	"crypto/sha256"
	"errors"

	"swarmit/devicecore/internal/ipc"
)

var (
	// ErrNotReady rejects an OTA_START that arrives while the device is
	// not in ipc.StatusReady. The original firmware guarded this branch
	// with an always-true condition (a known bug, see DESIGN.md); this
	// machine does not reproduce it and rejects strictly.
	ErrNotReady = errors.New("otaproto: OTA_START rejected, device not ready")
	// ErrHashMismatch reports that the declared digest does not match
	// the one computed over the received chunks.
	ErrHashMismatch = errors.New("otaproto: computed digest does not match declared digest")
)

const ChunkSize = 128

// Machine drives OTA transitions and owns the running hash. It is not
// safe for concurrent use by more than one goroutine; internal/netcore
// serializes access to it the same way it serializes access to
// ipc.SharedData.
type Machine struct {
	hash   [sha256.Size]byte
	hasher interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
		Reset()
	}
}

// New creates a Machine ready to drive an ipc.SharedData's OTA field.
func New() *Machine {
	return &Machine{hasher: sha256.New()}
}

// Start begins a new OTA session: resets the running hash and the
// descriptor fields, recording chunkCount and the operator's declared
// digest so the last chunk can be recognized and the session finalized
// against it, only if the device is currently Ready (§9 Open Question 1
// resolution, §8 property 2).
func (m *Machine) Start(s *ipc.SharedData, imageSize, chunkCount uint32, declaredHash [sha256.Size]byte) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.Status() != ipc.StatusReady {
		return ErrNotReady
	}

	m.hasher.Reset()
	s.OTA.ImageSize = imageSize
	s.OTA.ChunkCount = chunkCount
	s.OTA.ChunkIndex = 0
	s.OTA.ChunkSize = ChunkSize
	s.OTA.DeclaredHash = declaredHash
	s.OTA.HashesMatch = false
	s.OTA.LastChunkAcked = -1
	s.SetStatus(ipc.StatusProgramming)
	return nil
}

// HandleChunk feeds chunk data into the running hash unless it is a
// replay of the most recently acked index (§4.6, §8 property 5
// idempotence), and records it as the new last-acked index. It returns
// whether this call actually advanced the hash (false on replay), so
// callers can decide whether a flash write is also required.
func (m *Machine) HandleChunk(s *ipc.SharedData, index uint32, data []byte) (advanced bool, err error) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.Status() != ipc.StatusProgramming {
		return false, errors.New("otaproto: OTA_CHUNK received outside PROGRAMMING")
	}

	if s.OTA.LastChunkAcked >= 0 && int64(index) == s.OTA.LastChunkAcked {
		return false, nil // replay: already hashed and written, ack again without re-hashing
	}

	m.hasher.Write(data)
	s.OTA.ChunkIndex = index
	s.OTA.LastChunkAcked = int64(index)
	return true, nil
}

// Finish is called on the last chunk: it finalizes the running hash,
// compares it against declared, records HashesMatch, and transitions
// back to Ready (§4.7: "atomic commit... or back to Ready on mismatch").
// Either way the session ends; a mismatch refuses to let the supervisor
// later launch the user application (enforced by internal/appcore, not
// here).
func (m *Machine) Finish(s *ipc.SharedData, declared [sha256.Size]byte) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	computed := m.hasher.Sum(nil)
	match := true
	for i := range declared {
		if computed[i] != declared[i] {
			match = false
			break
		}
	}
	s.OTA.HashesMatch = match
	s.SetStatus(ipc.StatusReady)

	if !match {
		return ErrHashMismatch
	}
	return nil
}

// Stop aborts an in-progress OTA session (operator STOP during
// PROGRAMMING, §9 Open Question 2 resolution): STOPPING then Ready, the
// same shape used for STOP while Running/Resetting.
func (m *Machine) Stop(s *ipc.SharedData) {
	s.Mu.Lock()
	s.SetStatus(ipc.StatusStopping)
	s.Mu.Unlock()

	s.Mu.Lock()
	s.OTA.HashesMatch = false
	s.SetStatus(ipc.StatusReady)
	s.Mu.Unlock()
}
