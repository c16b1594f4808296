package radio

import (
	"bytes"
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	var hash [32]byte
	hash[0] = 0xAA
	cases := []Request{
		{Type: ReqStatus, DeviceID: 42},
		{Type: ReqStart, DeviceID: BroadcastAddress},
		NewOTAStartRequest(7, 4096, 32, hash),
		NewOTAChunkRequest(7, 3, bytes.Repeat([]byte{0xAB}, OTAChunkSize)),
	}
	for _, want := range cases {
		encoded := want.Encode()
		got, err := DecodeRequest(encoded)
		if err != nil {
			t.Fatalf("DecodeRequest: %v", err)
		}
		if got.Type != want.Type || got.DeviceID != want.DeviceID || !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestDecodeRequestTruncated(t *testing.T) {
	if _, err := DecodeRequest([]byte{0x80, 0x01}); err != ErrTruncated {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
}

func TestDecodeRequestUnknownType(t *testing.T) {
	buf := Request{Type: 0xEE, DeviceID: 1}.Encode()
	if _, err := DecodeRequest(buf); err != ErrUnknownType {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
}

func TestDecodeRequestPayloadShape(t *testing.T) {
	buf := Request{Type: ReqStatus, DeviceID: 1, Payload: []byte{1}}.Encode()
	if _, err := DecodeRequest(buf); err != ErrPayloadShape {
		t.Fatalf("err = %v, want ErrPayloadShape", err)
	}
}

func TestOTAStartParams(t *testing.T) {
	var hash [32]byte
	hash[31] = 0x7A
	req := NewOTAStartRequest(1, 123456, 965, hash)
	size, chunkCount, gotHash, err := req.OTAStartParams()
	if err != nil {
		t.Fatalf("OTAStartParams: %v", err)
	}
	if size != 123456 {
		t.Fatalf("size = %d, want 123456", size)
	}
	if chunkCount != 965 {
		t.Fatalf("chunkCount = %d, want 965", chunkCount)
	}
	if gotHash != hash {
		t.Fatalf("hash = %x, want %x", gotHash, hash)
	}
}

func TestOTAChunkIndexAndData(t *testing.T) {
	data := []byte("hello chunk")
	req := NewOTAChunkRequest(1, 9, data)
	idx, chunk, err := req.OTAChunkIndexAndData()
	if err != nil {
		t.Fatalf("OTAChunkIndexAndData: %v", err)
	}
	if idx != 9 || !bytes.Equal(chunk, data) {
		t.Fatalf("got idx=%d chunk=%q", idx, chunk)
	}
}

func TestNotificationRoundTrip(t *testing.T) {
	cases := []Notification{
		NewStatusNotification(5, 2, true),
		NewOTAStartAckNotification(5),
		NewOTAChunkAckNotification(5, 10),
		NewLogEventNotification(5, []byte("boot ok")),
	}
	for _, want := range cases {
		got, err := DecodeNotification(want.Encode())
		if err != nil {
			t.Fatalf("DecodeNotification: %v", err)
		}
		if got.Type != want.Type || got.DeviceID != want.DeviceID || !bytes.Equal(got.Tail, want.Tail) {
			t.Fatalf("round trip mismatch: got %+v, want %+v", got, want)
		}
	}
}

func TestNewStatusNotificationEncodesHashesMatch(t *testing.T) {
	notif := NewStatusNotification(5, 1, true)
	if len(notif.Tail) != 2 || notif.Tail[0] != 1 || notif.Tail[1] != 1 {
		t.Fatalf("Tail = %v, want [1 1]", notif.Tail)
	}

	notif = NewStatusNotification(5, 1, false)
	if len(notif.Tail) != 2 || notif.Tail[1] != 0 {
		t.Fatalf("Tail = %v, want trailing 0", notif.Tail)
	}
}

func TestDecodeNotificationUnknownType(t *testing.T) {
	buf := Notification{Type: 0xAA, DeviceID: 1}.Encode()
	if _, err := DecodeNotification(buf); err != ErrUnknownType {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
}
