// Package appcore is the application processor's main loop (§4.3, §4.5,
// §5): boot-time trust partition configuration, watchdog arming, the wait
// for N to signal readiness, and the priority-ordered dispatch of
// OTA_START, OTA_CHUNK, APP_START, and RADIO_RX channels every tick.
package appcore

import (
	"context"
	"log/slog"
	"runtime"

	"swarmit/devicecore/internal/flashota"
	"swarmit/devicecore/internal/ipc"
	"swarmit/devicecore/internal/otaproto"
	"swarmit/devicecore/internal/trustzone"
	"swarmit/devicecore/internal/watchdog"
)

// UserApp stands in for the out-of-scope non-secure application (§1):
// whatever actually runs on the robot once the supervisor launches it.
type UserApp interface {
	Run(ctx context.Context) error
}

// Config bundles everything Run needs.
type Config struct {
	Shared    *ipc.SharedData
	Platform  trustzone.Platform
	Layout    trustzone.Layout
	Primary   *watchdog.Watchdog
	Aux       *watchdog.Watchdog
	AuxArmCh  <-chan struct{}
	Flash     flashota.FlashDevice
	FlashBase uint32
	FlashSize uint32
	OTA       *otaproto.Machine
	App       UserApp
	BootFlag  watchdog.ResetReason
	Log       *slog.Logger
}

// Run is A's boot sequence followed by its steady-state dispatch loop. It
// returns when ctx is done.
func Run(ctx context.Context, cfg Config) error {
	partition, err := trustzone.Configure(cfg.Layout, cfg.Platform)
	if err != nil {
		return err
	}

	if watchdog.BootDecision(cfg.BootFlag) {
		// A watchdog fired; stay in supervisor and let the operator
		// decide the next step (status query, OTA, reset) rather than
		// immediately relaunching the user application (§4.3).
		if cfg.Log != nil {
			cfg.Log.Warn("appcore:boot-after-watchdog-reset", slog.Any("reason", cfg.BootFlag))
		}
		cfg.Shared.SetStatus(ipc.StatusReady)
	}

	cfg.Primary.Start()
	cfg.Aux.ArmOn(cfg.AuxArmCh)

	if err := cfg.Shared.ReleaseNetwork(ctx); err != nil {
		return err
	}

	writer := flashota.NewWriter(cfg.Flash, cfg.FlashBase, cfg.FlashSize, otaproto.ChunkSize)

	dispatch := []struct {
		ch Channel
		fn func(ctx context.Context, cfg Config, partition *trustzone.Partition, writer *flashota.Writer)
	}{
		{Channel(ipc.ChanOTAStart), handleOTAStart},
		{Channel(ipc.ChanOTAChunk), handleOTAChunk},
		{Channel(ipc.ChanAppStart), handleAppStart},
		{Channel(ipc.ChanRadioRX), handleRadioRX},
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case reason := <-cfg.Primary.Fired():
			handleWatchdogFire(cfg, reason)
		case reason := <-cfg.Aux.Fired():
			handleWatchdogFire(cfg, reason)
		default:
		}

		fired := false
		for _, d := range dispatch {
			if cfg.Shared.TryWait(ipc.Channel(d.ch)) {
				d.fn(ctx, cfg, partition, writer)
				fired = true
			}
		}
		if !fired {
			runtime.Gosched()
		}
	}
}

// Channel re-exports ipc.Channel so callers composing Config don't need
// to import internal/ipc just to name a channel.
type Channel = ipc.Channel

func handleOTAStart(ctx context.Context, cfg Config, _ *trustzone.Partition, writer *flashota.Writer) {
	cfg.Shared.Mu.Lock()
	size := cfg.Shared.OTA.ImageSize
	cfg.Shared.Mu.Unlock()

	if err := writer.EraseUserRegion(size); err != nil && cfg.Log != nil {
		cfg.Log.Error("appcore:erase-failed", slog.String("err", err.Error()))
	}
}

func handleOTAChunk(ctx context.Context, cfg Config, _ *trustzone.Partition, writer *flashota.Writer) {
	// The flash write itself already happened on N's side
	// (internal/netcore.Loop.handleOTAChunk calls the same Writer); A
	// observes the channel purely to know a chunk was committed, e.g. to
	// feed UI/telemetry. Nothing further to do here.
}

func handleAppStart(ctx context.Context, cfg Config, _ *trustzone.Partition, _ *flashota.Writer) {
	if cfg.Shared.Status() != ipc.StatusReady && cfg.Shared.Status() != ipc.StatusRunning {
		return
	}
	cfg.Shared.Mu.Lock()
	hashesMatch := cfg.Shared.OTA.HashesMatch
	neverProgrammed := cfg.Shared.OTA.LastChunkAcked < 0
	cfg.Shared.Mu.Unlock()

	if !neverProgrammed && !hashesMatch {
		if cfg.Log != nil {
			cfg.Log.Error("appcore:refusing-to-launch-mismatched-image")
		}
		return
	}
	if cfg.App == nil {
		return
	}
	go func() {
		if err := cfg.App.Run(ctx); err != nil && cfg.Log != nil {
			cfg.Log.Warn("appcore:user-app-exited", slog.String("err", err.Error()))
		}
	}()
}

func handleRadioRX(ctx context.Context, cfg Config, _ *trustzone.Partition, _ *flashota.Writer) {
	// Placeholder hook for application-level radio delivery. Nothing in
	// internal/netcore raises ChanRadioRX or copies a received frame into
	// cfg.Shared.Radio, so this handler never has a PDU to deliver.
}

func handleWatchdogFire(cfg Config, reason watchdog.ResetReason) error {
	cfg.Shared.Mu.Lock()
	cfg.Shared.SetStatus(ipc.StatusReady)
	cfg.Shared.Mu.Unlock()
	if cfg.Log != nil {
		cfg.Log.Warn("appcore:watchdog-fired", slog.Any("reason", reason))
	}
	return nil
}
