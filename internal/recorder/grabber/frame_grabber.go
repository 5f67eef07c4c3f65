// Package grabber holds the two capture-side producers of the recording
// pipeline: the periodic screen snapshotter and the system-audio puller.
// Both follow the same shape — a mutex-guarded Start/Stop pair around a
// single long-lived goroutine, cancelled through a context.CancelFunc.
package grabber

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/babelcloud/deskrec/internal/recorder/pool"
	"github.com/babelcloud/deskrec/internal/recorder/ring"
	"github.com/babelcloud/deskrec/internal/recorder/rerr"
	"github.com/babelcloud/deskrec/internal/recorder/stats"
)

// Display captures one top-down BGRA frame of the configured resolution
// into dst. Platform-specific screen-bitmap acquisition is out of scope;
// this is the seam a real backend plugs into.
type Display interface {
	Capture(dst []byte) error
	Close() error
}

// FrameGrabber snapshots the primary display into a FramePool buffer on a
// ticking schedule and publishes the buffer's index to the capture ring.
type FrameGrabber struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	display Display
	pool    *pool.FramePool
	ring    *ring.SPSC[int]
	stats   *stats.Counters
	log     *slog.Logger

	writeIx  int
	fps      atomic.Int64
	origFPS  int
	counters struct {
		captureErrors atomic.Int64
	}
}

// NewFrameGrabber builds a grabber bound to display, reading frames into
// pool and publishing indices onto r. fps is the initial and original
// target rate; like SetFPS, values below 1 clamp up to 1.
func NewFrameGrabber(display Display, p *pool.FramePool, r *ring.SPSC[int], fps int, st *stats.Counters, log *slog.Logger) *FrameGrabber {
	if fps < 1 {
		fps = 1
	}
	g := &FrameGrabber{
		display: display,
		pool:    p,
		ring:    r,
		stats:   st,
		log:     log.With("component", "frame_grabber"),
		origFPS: fps,
	}
	g.fps.Store(int64(fps))
	return g
}

// OriginalFPS returns the rate the grabber was constructed with, the
// restore target for the adaptive controller.
func (g *FrameGrabber) OriginalFPS() int {
	return g.origFPS
}

// CurrentFPS returns the live target rate.
func (g *FrameGrabber) CurrentFPS() int {
	return int(g.fps.Load())
}

// SetFPS updates the target capture rate. Safe to call from any
// goroutine; takes effect on the next tick. Values below 1 clamp to 1.
func (g *FrameGrabber) SetFPS(f int) {
	if f < 1 {
		f = 1
	}
	g.fps.Store(int64(f))
}

// Start spawns the capture goroutine. Returns an error if already started.
func (g *FrameGrabber) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancel != nil {
		return &rerr.ConfigError{Field: "grabber", Reason: "already started"}
	}

	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	g.wg.Add(1)
	go g.run(ctx)

	g.log.Info("frame grabber started", "fps", g.CurrentFPS())
	return nil
}

// Stop cancels the capture goroutine and waits for it to exit.
func (g *FrameGrabber) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.cancel = nil
	g.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	g.wg.Wait()
	g.log.Info("frame grabber stopped")
}

// run is the capture loop. Target interval is measured from the start of
// the previous capture; if capture+publish overruns the interval, the
// next capture begins immediately with no compensating sleep.
func (g *FrameGrabber) run(ctx context.Context) {
	defer g.wg.Done()

	for {
		start := time.Now()

		if err := g.captureAndPublish(); err != nil {
			g.counters.captureErrors.Add(1)
			g.stats.IncCaptureErrors()
			g.log.Warn("frame capture failed", "error", err)
		}

		interval := time.Duration(1000/g.CurrentFPS()) * time.Millisecond
		elapsed := time.Since(start)
		remaining := interval - elapsed

		select {
		case <-ctx.Done():
			return
		default:
		}

		if remaining > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(remaining):
			}
		}
	}
}

func (g *FrameGrabber) captureAndPublish() error {
	buf := g.pool.Buffer(g.writeIx)
	if err := g.display.Capture(buf); err != nil {
		return &rerr.CaptureError{Cause: err}
	}

	if !g.ring.Push(g.writeIx) {
		g.stats.IncBackpressureDrops("capture")
		g.log.Debug("capture ring full, frame dropped", "index", g.writeIx)
	}

	g.writeIx = (g.writeIx + 1) % g.pool.N()
	return nil
}
