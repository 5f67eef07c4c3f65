package grabber

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/babelcloud/deskrec/internal/recorder/core"
	"github.com/babelcloud/deskrec/internal/recorder/rerr"
	"github.com/babelcloud/deskrec/internal/recorder/ring"
	"github.com/babelcloud/deskrec/internal/recorder/stats"
)

// LoopbackDevice is the default render endpoint opened in shared loopback
// mode. Platform-specific audio capture is out of scope; FetchPacket
// returns (nil, false) when no packet is currently available rather than
// blocking, so the grabber can own its own poll cadence.
type LoopbackDevice interface {
	Open() (sampleRate int, channels int, blockAlign int, err error)
	FetchPacket() (data []byte, ok bool, err error)
	Close() error
}

// AudioGrabber polls the system loopback mix and publishes timestamped
// PCM packets to the audio ring. Format parameters are captured once in
// Init and held immutable for the session.
type AudioGrabber struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	device      LoopbackDevice
	ring        *ring.SPSC[core.AudioPacket]
	stats       *stats.Counters
	log         *slog.Logger
	initialized bool

	sampleRate int
	channels   int
	blockAlign int
}

// NewAudioGrabber builds an audio grabber bound to device, publishing
// packets onto r.
func NewAudioGrabber(device LoopbackDevice, r *ring.SPSC[core.AudioPacket], st *stats.Counters, log *slog.Logger) *AudioGrabber {
	return &AudioGrabber{
		device: device,
		ring:   r,
		stats:  st,
		log:    log.With("component", "audio_grabber"),
	}
}

// SampleRate, Channels and BlockAlign are captured once during Init and
// never change for the life of the session.
func (a *AudioGrabber) SampleRate() int { return a.sampleRate }
func (a *AudioGrabber) Channels() int   { return a.channels }
func (a *AudioGrabber) BlockAlign() int { return a.blockAlign }

// Init opens the default render endpoint in shared loopback mode and
// records the session's audio format. It must run before Start, and
// before anything that needs the format (such as the AVI writer's
// strf chunk) is constructed.
func (a *AudioGrabber) Init() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}

	sampleRate, channels, blockAlign, err := a.device.Open()
	if err != nil {
		return &rerr.ConfigError{Field: "audio_device", Reason: err.Error()}
	}
	a.sampleRate = sampleRate
	a.channels = channels
	a.blockAlign = blockAlign
	a.initialized = true

	a.log.Info("audio device opened", "sample_rate", sampleRate, "channels", channels, "block_align", blockAlign)
	return nil
}

// Start spawns the polling goroutine. Init must have already succeeded.
func (a *AudioGrabber) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return &rerr.ConfigError{Field: "audio_grabber", Reason: "Start called before Init"}
	}
	if a.cancel != nil {
		return &rerr.ConfigError{Field: "audio_grabber", Reason: "already started"}
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.run(ctx)

	a.log.Info("audio grabber started")
	return nil
}

// Stop cancels the polling goroutine, waits for it to exit, then closes
// the loopback endpoint.
func (a *AudioGrabber) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	a.wg.Wait()
	if err := a.device.Close(); err != nil {
		a.log.Warn("audio device close failed", "error", err)
	}
	a.log.Info("audio grabber stopped")
}

func (a *AudioGrabber) run(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		data, ok, err := a.device.FetchPacket()
		if err != nil {
			a.stats.IncCaptureErrors()
			a.log.Warn("audio capture failed", "error", &rerr.CaptureError{Cause: err})
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		pkt := core.AudioPacket{
			Bytes:     data,
			PTSMillis: uint64(time.Now().UnixMilli()),
		}
		if !a.ring.Push(pkt) {
			a.stats.IncBackpressureDrops("audio")
			a.log.Debug("audio ring full, packet dropped")
		}
	}
}
