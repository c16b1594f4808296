package flashota

import (
	"bytes"
	"testing"
)

func TestEraseUserRegionRoundsUpToPages(t *testing.T) {
	dev := NewMemFlashDevice(4096, 256)
	w := NewWriter(dev, 0, 4096, 128)

	if err := w.EraseUserRegion(300); err != nil {
		t.Fatalf("EraseUserRegion: %v", err)
	}
	for i := 0; i < 512; i++ { // 2 pages of 256
		if dev.Mem[i] != 0xFF {
			t.Fatalf("byte %d not erased", i)
		}
	}
}

func TestWriteChunkAtOffset(t *testing.T) {
	dev := NewMemFlashDevice(4096, 256)
	w := NewWriter(dev, 0, 4096, 128)
	if err := w.EraseUserRegion(256); err != nil {
		t.Fatalf("EraseUserRegion: %v", err)
	}

	chunk0 := bytes.Repeat([]byte{0x01}, 128)
	chunk1 := bytes.Repeat([]byte{0x02}, 128)

	if err := w.WriteChunk(0, chunk0); err != nil {
		t.Fatalf("WriteChunk(0): %v", err)
	}
	if err := w.WriteChunk(1, chunk1); err != nil {
		t.Fatalf("WriteChunk(1): %v", err)
	}

	if !bytes.Equal(dev.Mem[0:128], chunk0) {
		t.Fatal("chunk 0 not written at expected offset")
	}
	if !bytes.Equal(dev.Mem[128:256], chunk1) {
		t.Fatal("chunk 1 not written at expected offset")
	}
}

func TestWriteChunkReplayIsIdempotent(t *testing.T) {
	dev := NewMemFlashDevice(4096, 256)
	w := NewWriter(dev, 0, 4096, 128)
	if err := w.EraseUserRegion(128); err != nil {
		t.Fatalf("EraseUserRegion: %v", err)
	}

	chunk := bytes.Repeat([]byte{0xAA}, 128)
	if err := w.WriteChunk(0, chunk); err != nil {
		t.Fatalf("first WriteChunk: %v", err)
	}
	if err := w.WriteChunk(0, chunk); err != nil {
		t.Fatalf("replayed WriteChunk: %v", err)
	}
	if !bytes.Equal(dev.Mem[0:128], chunk) {
		t.Fatal("replayed write produced different contents")
	}
}

func TestWriteChunkTooLarge(t *testing.T) {
	dev := NewMemFlashDevice(4096, 256)
	w := NewWriter(dev, 0, 4096, 128)
	if err := w.WriteChunk(0, make([]byte, 129)); err != ErrChunkTooLarge {
		t.Fatalf("err = %v, want ErrChunkTooLarge", err)
	}
}

func TestEraseUserRegionOutOfRange(t *testing.T) {
	dev := NewMemFlashDevice(1024, 256)
	w := NewWriter(dev, 0, 1024, 128)
	if err := w.EraseUserRegion(2048); err != ErrOutOfRange {
		t.Fatalf("err = %v, want ErrOutOfRange", err)
	}
}
