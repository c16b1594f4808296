// Command device runs the simulated dual-core device firmware core: A's
// appcore.Run and N's netcore.Run, wired to a single ipc.SharedData and
// communicating with the outside world over a radiotransport.TCP link.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"swarmit/devicecore/internal/appcore"
	"swarmit/devicecore/internal/config"
	"swarmit/devicecore/internal/devlog"
	"swarmit/devicecore/internal/flashota"
	"swarmit/devicecore/internal/ipc"
	"swarmit/devicecore/internal/netcore"
	"swarmit/devicecore/internal/otaproto"
	"swarmit/devicecore/internal/radiotransport"
	"swarmit/devicecore/internal/trustzone"
	"swarmit/devicecore/internal/watchdog"
	"swarmit/devicecore/version"
)

func main() {
	deviceID := flag.Uint64("device-id", 1, "this device's address on the radio link")
	gatewayAddr := flag.String("gateway", "127.0.0.1:9500", "TCP address of the gateway's device-facing radio endpoint")
	flag.Parse()

	logger := slog.New(devlog.New(os.Stderr, nil, nil))
	logger.Info("device:starting",
		slog.Uint64("device_id", *deviceID),
		slog.String("version", version.Version),
		slog.String("build_marker", version.BuildMarker),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, err := dialRadio(ctx, *gatewayAddr)
	if err != nil {
		logger.Error("device:radio-dial-failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	shared := &ipc.SharedData{}
	mem := flashota.NewMemFlashDevice(1<<20, 4096)
	ota := otaproto.New()

	layout := trustzone.Layout{
		FlashSecureEnd: 0x20000, FlashEnd: 1 << 20,
		RAMSecureEnd: 0x4000, RAMEnd: 0x40000,
		VeneerBase: 0x1000, VeneerEnd: 0x1100,
	}

	primary := watchdog.New(watchdog.ResetPrimary, config.PrimaryWDTPeriod())
	aux := watchdog.New(watchdog.ResetAux, config.AuxWDTPeriod())
	auxArm := make(chan struct{})

	netLoop := &netcore.Loop{
		DeviceID: *deviceID,
		Shared:   shared,
		Radio:    transport,
		OTA:      ota,
		Flash:    flashota.NewWriter(mem, uint32(layout.FlashSecureEnd), uint32(layout.FlashEnd-layout.FlashSecureEnd), otaproto.ChunkSize),
		RNG:      cryptoRNG{},
		Log:      logger,
	}

	appCfg := appcore.Config{
		Shared:    shared,
		Platform:  &trustzone.RecordingPlatform{},
		Layout:    layout,
		Primary:   primary,
		Aux:       aux,
		AuxArmCh:  auxArm,
		Flash:     mem,
		FlashBase: uint32(layout.FlashSecureEnd),
		FlashSize: uint32(layout.FlashEnd - layout.FlashSecureEnd),
		OTA:       ota,
		App:       nil, // out of scope: real user application
		Log:       logger,
	}

	go func() {
		if err := netLoop.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("device:netcore-exited", slog.String("err", err.Error()))
		}
	}()

	if err := appcore.Run(ctx, appCfg); err != nil && ctx.Err() == nil {
		logger.Error("device:appcore-exited", slog.String("err", err.Error()))
		os.Exit(1)
	}
}

// cryptoRNG stands in for the hardware RNG peripheral behind init_rng/
// read_rng (§3 "rng.value", §4.4 C4): crypto/rand is this simulation's
// equivalent of the nRF CRYPTOCELL TRNG the original veneer calls.
type cryptoRNG struct{}

func (cryptoRNG) Init() {}

func (cryptoRNG) ReadByte() byte {
	var b [1]byte
	rand.Read(b[:])
	return b[0]
}

// dialRadio connects to the gateway's device-facing radio endpoint,
// retrying briefly since the gateway and device binaries may start in
// either order in a local simulation.
func dialRadio(ctx context.Context, addr string) (*radiotransport.TCP, error) {
	deadline := time.Now().Add(5 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		t, err := radiotransport.Dial(addr)
		if err == nil {
			return t, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil, lastErr
}
