// Package radio implements the wire format of spec §6: fixed-layout
// request/notification frames exchanged between the operator's gateway
// and a device over the abstract radio link. It has no knowledge of IPC
// or OTA state — pure encode/decode.
package radio

import (
	"encoding/binary"
	"errors"
)

// RequestType enumerates the operator-initiated request frame types.
type RequestType uint8

const (
	ReqStatus   RequestType = 0x80
	ReqStart    RequestType = 0x81
	ReqStop     RequestType = 0x82
	ReqReset    RequestType = 0x83
	ReqOTAStart RequestType = 0x84
	ReqOTAChunk RequestType = 0x85
)

// NotificationType enumerates device-initiated notification frame types.
type NotificationType uint8

const (
	NotifyStatus       NotificationType = 0x90
	NotifyOTAStartAck  NotificationType = 0x93
	NotifyOTAChunkAck  NotificationType = 0x94
	NotifyLogEvent     NotificationType = 0x96
)

// BroadcastAddress targets every device on the swarm.
const BroadcastAddress uint64 = 0xFFFFFFFFFFFFFFFF

// GatewayAddress is the reserved device_id of the gateway itself.
const GatewayAddress uint64 = 0

// OTAChunkSize is the fixed chunk payload size (§4.7, §9).
const OTAChunkSize = 128

var (
	ErrTruncated    = errors.New("radio: frame truncated")
	ErrUnknownType  = errors.New("radio: unknown frame type")
	ErrPayloadShape = errors.New("radio: payload does not match frame type")
)

const headerLen = 1 + 8 // type + device_id

// otaStartPayloadLen is OTA_START's payload: image_size(4) + chunk_count(4)
// + declared sha256 digest(32) (§6).
const otaStartPayloadLen = 4 + 4 + 32

// Request is a request frame: [type:u8][device_id:u64][payload...].
type Request struct {
	Type     RequestType
	DeviceID uint64
	// Payload holds OTA_START's image_size/chunk_count/declared-hash
	// fields, or OTA_CHUNK's 4-byte chunk index followed by up to
	// OTAChunkSize chunk bytes. Other request types carry no payload.
	Payload []byte
}

func (r Request) Encode() []byte {
	buf := make([]byte, headerLen+len(r.Payload))
	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.DeviceID)
	copy(buf[9:], r.Payload)
	return buf
}

func DecodeRequest(b []byte) (Request, error) {
	if len(b) < headerLen {
		return Request{}, ErrTruncated
	}
	req := Request{
		Type:     RequestType(b[0]),
		DeviceID: binary.BigEndian.Uint64(b[1:9]),
	}
	switch req.Type {
	case ReqStatus, ReqStart, ReqStop, ReqReset:
		if len(b) != headerLen {
			return Request{}, ErrPayloadShape
		}
	case ReqOTAStart:
		if len(b) != headerLen+otaStartPayloadLen {
			return Request{}, ErrPayloadShape
		}
	case ReqOTAChunk:
		if len(b) < headerLen+4 || len(b) > headerLen+4+OTAChunkSize {
			return Request{}, ErrPayloadShape
		}
	default:
		return Request{}, ErrUnknownType
	}
	if len(b) > headerLen {
		req.Payload = append([]byte(nil), b[headerLen:]...)
	}
	return req, nil
}

// OTAStartParams decodes an OTA_START request's image size, chunk count,
// and declared SHA-256 digest (§6).
func (r Request) OTAStartParams() (imageSize, chunkCount uint32, hash [32]byte, err error) {
	if r.Type != ReqOTAStart || len(r.Payload) != otaStartPayloadLen {
		return 0, 0, hash, ErrPayloadShape
	}
	imageSize = binary.BigEndian.Uint32(r.Payload[0:4])
	chunkCount = binary.BigEndian.Uint32(r.Payload[4:8])
	copy(hash[:], r.Payload[8:40])
	return imageSize, chunkCount, hash, nil
}

// OTAChunkIndexAndData decodes an OTA_CHUNK request's index and chunk bytes.
func (r Request) OTAChunkIndexAndData() (uint32, []byte, error) {
	if r.Type != ReqOTAChunk || len(r.Payload) < 4 {
		return 0, nil, ErrPayloadShape
	}
	index := binary.BigEndian.Uint32(r.Payload[:4])
	return index, r.Payload[4:], nil
}

// NewOTAStartRequest builds an OTA_START request frame carrying the
// declared image size, chunk count, and SHA-256 digest the device must
// match on the last chunk (§6, §4.7).
func NewOTAStartRequest(deviceID uint64, imageSize, chunkCount uint32, hash [32]byte) Request {
	payload := make([]byte, otaStartPayloadLen)
	binary.BigEndian.PutUint32(payload[0:4], imageSize)
	binary.BigEndian.PutUint32(payload[4:8], chunkCount)
	copy(payload[8:40], hash[:])
	return Request{Type: ReqOTAStart, DeviceID: deviceID, Payload: payload}
}

// NewOTAChunkRequest builds an OTA_CHUNK request frame.
func NewOTAChunkRequest(deviceID uint64, index uint32, chunk []byte) Request {
	payload := make([]byte, 4+len(chunk))
	binary.BigEndian.PutUint32(payload[:4], index)
	copy(payload[4:], chunk)
	return Request{Type: ReqOTAChunk, DeviceID: deviceID, Payload: payload}
}

// Notification is a notification frame: [type:u8][device_id:u64][tail...].
type Notification struct {
	Type     NotificationType
	DeviceID uint64
	Tail     []byte
}

func (n Notification) Encode() []byte {
	buf := make([]byte, headerLen+len(n.Tail))
	buf[0] = byte(n.Type)
	binary.BigEndian.PutUint64(buf[1:9], n.DeviceID)
	copy(buf[9:], n.Tail)
	return buf
}

func DecodeNotification(b []byte) (Notification, error) {
	if len(b) < headerLen {
		return Notification{}, ErrTruncated
	}
	n := Notification{
		Type:     NotificationType(b[0]),
		DeviceID: binary.BigEndian.Uint64(b[1:9]),
	}
	switch n.Type {
	case NotifyStatus, NotifyOTAStartAck, NotifyOTAChunkAck, NotifyLogEvent:
	default:
		return Notification{}, ErrUnknownType
	}
	if len(b) > headerLen {
		n.Tail = append([]byte(nil), b[headerLen:]...)
	}
	return n, nil
}

// NewStatusNotification reports the device's current lifecycle status and
// whether its last OTA session's hash matched (§4.7, §6, S1).
func NewStatusNotification(deviceID uint64, status uint8, hashesMatch bool) Notification {
	var matchByte byte
	if hashesMatch {
		matchByte = 1
	}
	return Notification{Type: NotifyStatus, DeviceID: deviceID, Tail: []byte{status, matchByte}}
}

// NewOTAChunkAckNotification acknowledges receipt of chunk index.
func NewOTAChunkAckNotification(deviceID uint64, index uint32) Notification {
	tail := make([]byte, 4)
	binary.BigEndian.PutUint32(tail, index)
	return Notification{Type: NotifyOTAChunkAck, DeviceID: deviceID, Tail: tail}
}

// NewOTAStartAckNotification acknowledges an OTA_START request.
func NewOTAStartAckNotification(deviceID uint64) Notification {
	return Notification{Type: NotifyOTAStartAck, DeviceID: deviceID}
}

// NewLogEventNotification carries up to 127 bytes of application log data.
func NewLogEventNotification(deviceID uint64, data []byte) Notification {
	return Notification{Type: NotifyLogEvent, DeviceID: deviceID, Tail: append([]byte(nil), data...)}
}
