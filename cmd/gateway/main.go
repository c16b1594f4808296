// Command gateway is the standalone host bridge of spec §4.10/§6: it
// owns a radio-facing TCP listener devices dial into (standing in for
// the physical radio link) and an operator-facing TCP listener framed
// with internal/gatewayproto (standing in for the physical UART). It
// broadcasts operator requests to every connected device and forwards
// every device notification to every connected, connected-and-gated
// operator session.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"swarmit/devicecore/internal/config"
	"swarmit/devicecore/internal/devlog"
	"swarmit/devicecore/internal/gatewayproto"
	"swarmit/devicecore/internal/radiotransport"
	"swarmit/devicecore/version"
)

func main() {
	radioListen := flag.String("radio-listen", "127.0.0.1:9500", "TCP address devices dial into")
	operatorListen := flag.String("operator-listen", "", "TCP address operators dial into (defaults to internal/config.GatewayListen)")
	password := flag.String("password", "", "operator console password (empty disables auth)")
	flag.Parse()

	listenAddr := *operatorListen
	if listenAddr == "" {
		listenAddr = config.GatewayListen()
	}

	logger := slog.New(devlog.New(os.Stderr, nil, nil))
	logger.Info("gateway:starting",
		slog.String("version", version.Version),
		slog.String("build_marker", version.BuildMarker),
		slog.String("radio_listen", *radioListen),
		slog.String("operator_listen", listenAddr),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bridge := newBridge(logger, *password)

	go bridge.serveRadio(ctx, *radioListen)
	bridge.serveOperators(ctx, listenAddr)
}

// bridge owns the set of connected device and operator sessions and
// moves frames between them.
type bridge struct {
	log      *slog.Logger
	password string

	mu        sync.Mutex
	devices   map[net.Conn]struct{}
	operators map[*operatorSession]struct{}
}

func newBridge(log *slog.Logger, password string) *bridge {
	return &bridge{
		log:       log,
		password:  password,
		devices:   make(map[net.Conn]struct{}),
		operators: make(map[*operatorSession]struct{}),
	}
}

func (b *bridge) serveRadio(ctx context.Context, addr string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		b.log.Error("gateway:radio-listen-failed", slog.String("err", err.Error()))
		return
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		b.mu.Lock()
		b.devices[conn] = struct{}{}
		b.mu.Unlock()
		go b.handleDeviceConn(ctx, conn)
	}
}

func (b *bridge) handleDeviceConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("gateway:device-session-panic-recovered")
		}
		b.mu.Lock()
		delete(b.devices, conn)
		b.mu.Unlock()
		conn.Close()
	}()

	t := &radiotransport.TCP{Conn: conn}
	for {
		frame, err := t.Recv(ctx)
		if err != nil {
			return
		}
		b.broadcastToOperators(frame)
	}
}

// broadcastToDevices sends frame to every connected device.
func (b *bridge) broadcastToDevices(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.devices {
		t := &radiotransport.TCP{Conn: conn}
		if err := t.Send(context.Background(), frame); err != nil {
			b.log.Warn("gateway:device-send-failed", slog.String("err", err.Error()))
		}
	}
}

// broadcastToOperators delivers a device notification frame to every
// connected-and-gated operator session.
func (b *bridge) broadcastToOperators(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for op := range b.operators {
		op.deliver(frame)
	}
}

func (b *bridge) serveOperators(ctx context.Context, addr string) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		b.log.Error("gateway:operator-listen-failed", slog.String("err", err.Error()))
		return
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go b.handleOperatorConn(ctx, conn)
	}
}

type operatorSession struct {
	conn      net.Conn
	dec       *gatewayproto.Decoder
	connected bool
	mu        sync.Mutex
}

func (op *operatorSession) deliver(frame []byte) {
	op.mu.Lock()
	connected := op.connected
	op.mu.Unlock()
	if !connected {
		return // drop all device-bound traffic until a connect record is seen (§6)
	}
	op.conn.Write(gatewayproto.Encode(frame))
}

func (b *bridge) handleOperatorConn(ctx context.Context, conn net.Conn) {
	op := &operatorSession{conn: conn, dec: gatewayproto.NewDecoder(conn)}
	auth := gatewayproto.NewAuthenticator(b.password)

	defer func() {
		if r := recover(); r != nil {
			b.log.Error("gateway:operator-session-panic-recovered")
		}
		b.mu.Lock()
		delete(b.operators, op)
		b.mu.Unlock()
		conn.Close()
	}()

	b.mu.Lock()
	b.operators[op] = struct{}{}
	b.mu.Unlock()

	for {
		payload, err := op.dec.Next()
		if err != nil {
			return
		}

		switch {
		case len(payload) >= 1 && payload[0] == gatewayproto.CtrlConnect:
			password := string(payload[1:])
			if b.password != "" && !auth.Attempt(password) {
				b.log.Warn("gateway:operator-auth-failed")
				continue
			}
			op.mu.Lock()
			op.connected = true
			op.mu.Unlock()
		case len(payload) == 1 && payload[0] == gatewayproto.CtrlDisconnect:
			op.mu.Lock()
			op.connected = false
			op.mu.Unlock()
		default:
			op.mu.Lock()
			connected := op.connected
			op.mu.Unlock()
			if !connected {
				continue // drop device-bound traffic until connected (§6)
			}
			b.broadcastToDevices(payload)
		}
	}
}
