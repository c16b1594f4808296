package otaproto

import (
	"crypto/sha256"
	"testing"

	"swarmit/devicecore/internal/ipc"
)

func TestStartRejectsWhenNotReady(t *testing.T) {
	var s ipc.SharedData
	s.SetStatus(ipc.StatusRunning)
	m := New()

	if err := m.Start(&s, 256, 2, [sha256.Size]byte{}); err != ErrNotReady {
		t.Fatalf("Start() = %v, want ErrNotReady", err)
	}
}

func TestFullSessionCommitsOnMatch(t *testing.T) {
	var s ipc.SharedData
	s.SetStatus(ipc.StatusReady)
	m := New()

	image := make([]byte, ChunkSize*3)
	for i := range image {
		image[i] = byte(i)
	}
	want := sha256.Sum256(image)

	if err := m.Start(&s, uint32(len(image)), 3, want); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s.Status() != ipc.StatusProgramming {
		t.Fatalf("status = %v, want Programming", s.Status())
	}
	if s.OTA.ChunkCount != 3 || s.OTA.DeclaredHash != want {
		t.Fatalf("OTA.ChunkCount/DeclaredHash not recorded by Start")
	}

	for i := 0; i < 3; i++ {
		advanced, err := m.HandleChunk(&s, uint32(i), image[i*ChunkSize:(i+1)*ChunkSize])
		if err != nil {
			t.Fatalf("HandleChunk(%d): %v", i, err)
		}
		if !advanced {
			t.Fatalf("HandleChunk(%d) did not advance", i)
		}
	}

	if err := m.Finish(&s, want); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !s.OTA.HashesMatch {
		t.Fatal("expected HashesMatch = true")
	}
	if s.Status() != ipc.StatusReady {
		t.Fatalf("status = %v, want Ready", s.Status())
	}
}

func TestFinishMismatchReportsErrorAndResetsStatus(t *testing.T) {
	var s ipc.SharedData
	s.SetStatus(ipc.StatusReady)
	m := New()

	if err := m.Start(&s, ChunkSize, 1, [sha256.Size]byte{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.HandleChunk(&s, 0, make([]byte, ChunkSize)); err != nil {
		t.Fatalf("HandleChunk: %v", err)
	}

	var wrongDigest [sha256.Size]byte
	wrongDigest[0] = 0xFF

	if err := m.Finish(&s, wrongDigest); err != ErrHashMismatch {
		t.Fatalf("Finish() = %v, want ErrHashMismatch", err)
	}
	if s.OTA.HashesMatch {
		t.Fatal("expected HashesMatch = false")
	}
	if s.Status() != ipc.StatusReady {
		t.Fatalf("status = %v, want Ready", s.Status())
	}
}

func TestHandleChunkReplayDoesNotReHash(t *testing.T) {
	var s ipc.SharedData
	s.SetStatus(ipc.StatusReady)
	m := New()

	if err := m.Start(&s, ChunkSize*2, 2, [sha256.Size]byte{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	data := make([]byte, ChunkSize)
	if _, err := m.HandleChunk(&s, 0, data); err != nil {
		t.Fatalf("HandleChunk: %v", err)
	}

	advanced, err := m.HandleChunk(&s, 0, data)
	if err != nil {
		t.Fatalf("HandleChunk replay: %v", err)
	}
	if advanced {
		t.Fatal("replay of already-acked chunk must not advance the hash")
	}
}

func TestStopDuringProgrammingGoesThroughStopping(t *testing.T) {
	var s ipc.SharedData
	s.SetStatus(ipc.StatusReady)
	m := New()
	if err := m.Start(&s, ChunkSize, 1, [sha256.Size]byte{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	m.Stop(&s)

	if s.Status() != ipc.StatusReady {
		t.Fatalf("status = %v, want Ready after stop", s.Status())
	}
	if s.OTA.HashesMatch {
		t.Fatal("aborted session must not report HashesMatch")
	}
}
