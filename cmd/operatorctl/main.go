// Command operatorctl is the operator's console client (§4.11): it dials
// a gateway's operator-facing endpoint, frames requests with
// internal/gatewayproto, and drives the four operator actions — status,
// start, stop, and chunked OTA push. Grounded on the teacher's cmd/cli,
// stripped of its UF2 container parsing (this spec has no equivalent
// container format — firmware images here are raw binaries).
package main

import (
	"crypto/sha256"
	"encoding/binary"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"swarmit/devicecore/internal/gatewayproto"
	"swarmit/devicecore/internal/otaproto"
	"swarmit/devicecore/internal/radio"
)

const dialTimeout = 5 * time.Second
const replyTimeout = 10 * time.Second

func main() {
	gatewayAddr := flag.String("gateway", "127.0.0.1:9443", "gateway operator-facing TCP address")
	deviceID := flag.Uint64("device-id", radio.BroadcastAddress, "target device id (defaults to broadcast)")
	passwordFlag := flag.String("password", "", "gateway operator password")
	action := flag.String("action", "status", "status|start|stop|reset|ota-push")
	firmwarePath := flag.String("firmware", "", "firmware file for ota-push")
	flag.Parse()

	password := resolvePassword(*passwordFlag)

	conn, err := net.DialTimeout("tcp", *gatewayAddr, dialTimeout)
	if err != nil {
		fatalf("dial gateway: %v", err)
	}
	defer conn.Close()

	sess := &session{conn: conn, dec: gatewayproto.NewDecoder(conn)}
	if err := sess.connect(password); err != nil {
		fatalf("connect: %v", err)
	}
	defer sess.disconnect()

	switch *action {
	case "status":
		if err := sess.requestSimple(radio.ReqStatus, *deviceID); err != nil {
			fatalf("status: %v", err)
		}
	case "start":
		if err := sess.requestSimple(radio.ReqStart, *deviceID); err != nil {
			fatalf("start: %v", err)
		}
	case "stop":
		if err := sess.requestSimple(radio.ReqStop, *deviceID); err != nil {
			fatalf("stop: %v", err)
		}
	case "reset":
		if err := sess.requestSimple(radio.ReqReset, *deviceID); err != nil {
			fatalf("reset: %v", err)
		}
	case "ota-push":
		if *firmwarePath == "" {
			fatalf("ota-push requires -firmware")
		}
		if err := sess.otaPush(*deviceID, *firmwarePath); err != nil {
			fatalf("ota-push: %v", err)
		}
	default:
		fatalf("unknown action %q", *action)
	}
}

type session struct {
	conn net.Conn
	dec  *gatewayproto.Decoder
}

func (s *session) connect(password string) error {
	record := append([]byte{gatewayproto.CtrlConnect}, []byte(password)...)
	_, err := s.conn.Write(gatewayproto.Encode(record))
	return err
}

func (s *session) disconnect() {
	s.conn.Write(gatewayproto.Encode([]byte{gatewayproto.CtrlDisconnect}))
}

func (s *session) requestSimple(t radio.RequestType, deviceID uint64) error {
	req := radio.Request{Type: t, DeviceID: deviceID}
	s.conn.SetWriteDeadline(time.Now().Add(replyTimeout))
	if _, err := s.conn.Write(gatewayproto.Encode(req.Encode())); err != nil {
		return err
	}
	return s.printNotification()
}

func (s *session) printNotification() error {
	s.conn.SetReadDeadline(time.Now().Add(replyTimeout))
	payload, err := s.dec.Next()
	if err != nil {
		return err
	}
	notif, err := radio.DecodeNotification(payload)
	if err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	switch notif.Type {
	case radio.NotifyStatus:
		if len(notif.Tail) == 2 {
			fmt.Printf("device %d status = %d, hashes_match = %v\n", notif.DeviceID, notif.Tail[0], notif.Tail[1] != 0)
		}
	case radio.NotifyOTAStartAck:
		fmt.Printf("device %d: OTA_START acked\n", notif.DeviceID)
	case radio.NotifyOTAChunkAck:
		if len(notif.Tail) == 4 {
			fmt.Printf("device %d: chunk %d acked\n", notif.DeviceID, binary.BigEndian.Uint32(notif.Tail))
		}
	case radio.NotifyLogEvent:
		fmt.Printf("device %d log: %s\n", notif.DeviceID, string(notif.Tail))
	}
	return nil
}

// otaPush reads fwPath, computes its SHA-256, and drives the full OTA
// handshake: OTA_START with the declared image size, one OTA_CHUNK per
// 128-byte slice, printing an ACK per chunk exactly as the teacher's
// otaPush reports upload progress.
func (s *session) otaPush(deviceID uint64, fwPath string) error {
	data, err := os.ReadFile(fwPath)
	if err != nil {
		return fmt.Errorf("read firmware: %w", err)
	}
	digest := sha256.Sum256(data)
	total := (len(data) + otaproto.ChunkSize - 1) / otaproto.ChunkSize

	startReq := radio.NewOTAStartRequest(deviceID, uint32(len(data)), uint32(total), digest)
	s.conn.SetWriteDeadline(time.Now().Add(replyTimeout))
	if _, err := s.conn.Write(gatewayproto.Encode(startReq.Encode())); err != nil {
		return err
	}
	if err := s.printNotification(); err != nil {
		return fmt.Errorf("ota start ack: %w", err)
	}

	for i := 0; i < total; i++ {
		lo := i * otaproto.ChunkSize
		hi := lo + otaproto.ChunkSize
		if hi > len(data) {
			hi = len(data)
		}
		chunkReq := radio.NewOTAChunkRequest(deviceID, uint32(i), data[lo:hi])
		if _, err := s.conn.Write(gatewayproto.Encode(chunkReq.Encode())); err != nil {
			return err
		}
		if err := s.printNotification(); err != nil {
			return fmt.Errorf("chunk %d ack: %w", i, err)
		}
		fmt.Printf("ota-push: %d/%d chunks\n", i+1, total)
	}

	fmt.Printf("ota-push: complete, sha256=%x\n", digest)
	return nil
}

// resolvePassword mirrors the teacher's getPassword priority chain:
// flag > environment variable > interactive masked prompt.
func resolvePassword(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPass := os.Getenv("SWARMIT_GATEWAY_PASSWORD"); envPass != "" {
		return envPass
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Password: ")
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err == nil && len(pw) > 0 {
			return string(pw)
		}
	}
	return ""
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "operatorctl: "+strings.TrimSuffix(format, "\n")+"\n", args...)
	os.Exit(1)
}
