package appcore

import (
	"context"
	"testing"
	"time"

	"swarmit/devicecore/internal/flashota"
	"swarmit/devicecore/internal/ipc"
	"swarmit/devicecore/internal/otaproto"
	"swarmit/devicecore/internal/trustzone"
	"swarmit/devicecore/internal/watchdog"
)

func testLayout() trustzone.Layout {
	return trustzone.Layout{
		FlashSecureEnd: 0x1000, FlashEnd: 0x10000,
		RAMSecureEnd: 0x200, RAMEnd: 0x1000,
		VeneerBase: 0x800, VeneerEnd: 0x900,
	}
}

type recordingApp struct {
	started chan struct{}
}

func (a *recordingApp) Run(ctx context.Context) error {
	close(a.started)
	<-ctx.Done()
	return nil
}

func TestBootSequenceReleasesOnceNetworkReady(t *testing.T) {
	shared := &ipc.SharedData{}
	mem := flashota.NewMemFlashDevice(0xF000, 256)
	app := &recordingApp{started: make(chan struct{})}

	cfg := Config{
		Shared:    shared,
		Platform:  &trustzone.RecordingPlatform{},
		Layout:    testLayout(),
		Primary:   watchdog.New(watchdog.ResetPrimary, time.Second),
		Aux:       watchdog.New(watchdog.ResetAux, time.Second),
		AuxArmCh:  make(chan struct{}),
		Flash:     mem,
		FlashBase: 0,
		FlashSize: 0xF000,
		OTA:       otaproto.New(),
		App:       app,
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- Run(ctx, cfg) }()

	// appcore.Run blocks in ReleaseNetwork until N signals ready.
	select {
	case <-app.started:
		t.Fatal("user app must not start before network processor is ready")
	case <-time.After(30 * time.Millisecond):
	}

	shared.MarkNetworkReady()
	shared.SetStatus(ipc.StatusReady)
	shared.Raise(ipc.ChanAppStart)

	select {
	case <-app.started:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("user app never started after ChanAppStart raised")
	}

	cancel()
	<-runDone
}

func TestRefusesToLaunchOnHashMismatch(t *testing.T) {
	shared := &ipc.SharedData{}
	mem := flashota.NewMemFlashDevice(0xF000, 256)
	app := &recordingApp{started: make(chan struct{})}

	shared.MarkNetworkReady()
	shared.SetStatus(ipc.StatusReady)
	shared.Mu.Lock()
	shared.OTA.LastChunkAcked = 0
	shared.OTA.HashesMatch = false
	shared.Mu.Unlock()

	cfg := Config{
		Shared:    shared,
		Platform:  &trustzone.RecordingPlatform{},
		Layout:    testLayout(),
		Primary:   watchdog.New(watchdog.ResetPrimary, time.Second),
		Aux:       watchdog.New(watchdog.ResetAux, time.Second),
		AuxArmCh:  make(chan struct{}),
		Flash:     mem,
		FlashBase: 0,
		FlashSize: 0xF000,
		OTA:       otaproto.New(),
		App:       app,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	go Run(ctx, cfg)
	shared.Raise(ipc.ChanAppStart)

	select {
	case <-app.started:
		t.Fatal("must not launch user app when HashesMatch is false")
	case <-time.After(150 * time.Millisecond):
	}
}
