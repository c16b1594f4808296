// Package netcore is the network processor's event loop (§4.6): it
// selects over the REQUEST channel from A, inbound radio frames, and the
// LOG channel, dispatching per the operator-request table. It is the only
// caller of internal/otaproto's Machine and also performs the flash write
// for each accepted chunk; internal/appcore only erases the user region
// when it sees OTA_START.
package netcore

import (
	"context"
	"log/slog"

	"swarmit/devicecore/internal/ipc"
	"swarmit/devicecore/internal/otaproto"
	"swarmit/devicecore/internal/radio"
)

// Transport is the abstract duplex radio link (§1: MAC/PHY out of
// scope). Recv blocks until a frame arrives or ctx is done.
type Transport interface {
	Send(ctx context.Context, frame []byte) error
	Recv(ctx context.Context) ([]byte, error)
}

// FlashWriter is the subset of flashota.Writer that netcore needs to
// drive chunk writes as OTA_CHUNK requests arrive.
type FlashWriter interface {
	WriteChunk(index uint32, data []byte) error
}

// RNGSource is N's hardware random-number peripheral (§1, §3 "rng.value":
// out of scope primitive, consumed through this interface). init_rng and
// read_rng are dispatched to it over the REQUEST channel (§4.6).
type RNGSource interface {
	Init()
	ReadByte() byte
}

// Loop is N's state: the device's own address, the shared data block, the
// radio transport, the OTA state machine, the flash writer backing
// incoming chunks, and the RNG peripheral serving gatewaycall.InitRNG /
// ReadRNG requests.
type Loop struct {
	DeviceID uint64
	Shared   *ipc.SharedData
	Radio    Transport
	OTA      *otaproto.Machine
	Flash    FlashWriter
	RNG      RNGSource
	Log      *slog.Logger
}

// Run is N's main loop (§4.6). It returns when ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.Shared.MarkNetworkReady()

	reqDone := make(chan struct{})
	go l.serveRequests(ctx, reqDone)

	rxDone := make(chan struct{})
	go l.serveRadio(ctx, rxDone)

	logDone := make(chan struct{})
	go l.serveLog(ctx, logDone)

	<-ctx.Done()
	<-reqDone
	<-rxDone
	<-logDone
	return ctx.Err()
}

func (l *Loop) serveRequests(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		err := l.Shared.ServeRequest(ctx, func(req ipc.ReqType) {
			l.handleAppRequest(ctx, req)
		})
		if err != nil {
			return
		}
	}
}

func (l *Loop) handleAppRequest(ctx context.Context, req ipc.ReqType) {
	switch req {
	case ipc.ReqNone:
		// pure barrier, nothing to do
	case ipc.ReqRadioSend:
		frame := append([]byte(nil), l.Shared.Radio.Bytes()...)
		if err := l.Radio.Send(ctx, frame); err != nil && l.Log != nil {
			l.Log.Warn("netcore:radio-send-failed", slog.String("err", err.Error()))
		}
	case ipc.ReqRadioListenState:
		// no-op: listen state is implicit in the Transport implementation
	case ipc.ReqRNGInit:
		if l.RNG != nil {
			l.RNG.Init()
		}
	case ipc.ReqRNGRead:
		if l.RNG != nil {
			l.Shared.RNG.Value = l.RNG.ReadByte()
		}
	}
}

func (l *Loop) serveRadio(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		frame, err := l.Radio.Recv(ctx)
		if err != nil {
			return
		}
		l.handleFrame(ctx, frame)
	}
}

func (l *Loop) handleFrame(ctx context.Context, frame []byte) {
	req, err := radio.DecodeRequest(frame)
	if err != nil {
		return // malformed frame, dropped silently per §7
	}
	if req.DeviceID != radio.BroadcastAddress && req.DeviceID != l.DeviceID {
		return // foreign frame, dropped silently per §7
	}

	switch req.Type {
	case radio.ReqStatus:
		l.replyStatus(ctx)
	case radio.ReqStart:
		l.Shared.Mu.Lock()
		ready := l.Shared.Status() == ipc.StatusReady
		if ready {
			l.Shared.SetStatus(ipc.StatusRunning)
		}
		l.Shared.Mu.Unlock()
		if ready {
			l.Shared.Raise(ipc.ChanAppStart)
		}
		// else: START outside READY is ignored, status unchanged (§4.6, §8 property 2, S4)
	case radio.ReqStop:
		if l.Shared.Status() == ipc.StatusProgramming {
			// Abort the OTA session: STOPPING, then back to READY.
			l.OTA.Stop(l.Shared)
		} else {
			l.Shared.Mu.Lock()
			l.Shared.SetStatus(ipc.StatusStopping)
			l.Shared.Mu.Unlock()
		}
		l.Shared.Raise(ipc.ChanAppStop)
	case radio.ReqReset:
		l.Shared.Mu.Lock()
		l.Shared.SetStatus(ipc.StatusResetting)
		l.Shared.Mu.Unlock()
		l.Shared.Raise(ipc.ChanAppStop)
	case radio.ReqOTAStart:
		l.handleOTAStart(ctx, req)
	case radio.ReqOTAChunk:
		l.handleOTAChunk(ctx, req)
	}
}

func (l *Loop) replyStatus(ctx context.Context) {
	l.Shared.Mu.Lock()
	status := uint8(l.Shared.Status())
	hashesMatch := l.Shared.OTA.HashesMatch
	l.Shared.Mu.Unlock()

	notif := radio.NewStatusNotification(l.DeviceID, status, hashesMatch)
	if err := l.Radio.Send(ctx, notif.Encode()); err != nil && l.Log != nil {
		l.Log.Warn("netcore:status-reply-failed", slog.String("err", err.Error()))
	}
}

func (l *Loop) handleOTAStart(ctx context.Context, req radio.Request) {
	size, chunkCount, hash, err := req.OTAStartParams()
	if err != nil {
		return
	}
	if err := l.OTA.Start(l.Shared, size, chunkCount, hash); err != nil {
		if l.Log != nil {
			l.Log.Warn("netcore:ota-start-rejected", slog.String("err", err.Error()))
		}
		return
	}
	l.Shared.Raise(ipc.ChanOTAStart)
	ack := radio.NewOTAStartAckNotification(l.DeviceID)
	l.Radio.Send(ctx, ack.Encode())
}

func (l *Loop) handleOTAChunk(ctx context.Context, req radio.Request) {
	index, data, err := req.OTAChunkIndexAndData()
	if err != nil {
		return
	}
	advanced, err := l.OTA.HandleChunk(l.Shared, index, data)
	if err != nil {
		if l.Log != nil {
			l.Log.Warn("netcore:ota-chunk-rejected", slog.String("err", err.Error()))
		}
		return
	}
	if advanced {
		if err := l.Flash.WriteChunk(index, data); err != nil && l.Log != nil {
			l.Log.Error("netcore:flash-write-failed", slog.String("err", err.Error()))
			return
		}
	}
	l.Shared.Raise(ipc.ChanOTAChunk)
	ack := radio.NewOTAChunkAckNotification(l.DeviceID, index)
	l.Radio.Send(ctx, ack.Encode())

	l.Shared.Mu.Lock()
	isLast := l.Shared.OTA.ChunkCount > 0 && index == l.Shared.OTA.ChunkCount-1
	declared := l.Shared.OTA.DeclaredHash
	l.Shared.Mu.Unlock()
	if !isLast {
		return
	}
	// Last chunk: finalize the running hash against the digest declared
	// at OTA_START and return to READY (§4.7, §8 properties 4 and 6).
	if err := l.OTA.Finish(l.Shared, declared); err != nil && l.Log != nil {
		l.Log.Warn("netcore:ota-finish-hash-mismatch", slog.String("err", err.Error()))
	}
}

func (l *Loop) serveLog(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	for {
		if err := l.Shared.Wait(ctx, ipc.ChanLog); err != nil {
			return
		}
		l.Shared.Mu.Lock()
		data := append([]byte(nil), l.Shared.Log.Bytes()...)
		l.Shared.Mu.Unlock()

		notif := radio.NewLogEventNotification(l.DeviceID, data)
		if err := l.Radio.Send(ctx, notif.Encode()); err != nil && l.Log != nil {
			l.Log.Warn("netcore:log-forward-failed", slog.String("err", err.Error()))
		}
	}
}
