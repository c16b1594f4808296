// Package radiotransport provides a TCP-backed implementation of
// internal/netcore.Transport, standing in for the abstract radio MAC/PHY
// link between the gateway and a device in this host-portable
// simulation (§1: the real link-layer hardware is an out-of-scope
// external collaborator).
package radiotransport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"time"
)

// TCP implements netcore.Transport over a plain net.Conn with a 2-byte
// big-endian length prefix per frame.
type TCP struct {
	Conn net.Conn
}

// Dial connects to addr and wraps the connection as a Transport.
func Dial(addr string) (*TCP, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &TCP{Conn: conn}, nil
}

func (t *TCP) Send(ctx context.Context, frame []byte) error {
	if dl, ok := ctx.Deadline(); ok {
		t.Conn.SetWriteDeadline(dl)
	}
	var lenPrefix [2]byte
	binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(frame)))
	if _, err := t.Conn.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := t.Conn.Write(frame)
	return err
}

func (t *TCP) Recv(ctx context.Context) ([]byte, error) {
	var lenPrefix [2]byte
	for {
		t.Conn.SetReadDeadline(deadlineOrPoll(ctx))
		_, err := io.ReadFull(t.Conn, lenPrefix[:])
		if err == nil {
			break
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				continue
			}
		}
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenPrefix[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.Conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func deadlineOrPoll(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(200 * time.Millisecond)
}

// Close closes the underlying connection.
func (t *TCP) Close() error {
	return t.Conn.Close()
}
