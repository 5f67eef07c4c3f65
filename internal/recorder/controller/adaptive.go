// Package controller implements the adaptive frame-rate controller: a
// background sampler that watches the capture ring's fill level and
// throttles or restores the frame grabber's target FPS. It is purely
// advisory — it never touches a ring directly, only FPSSetter.SetFPS.
package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/babelcloud/deskrec/internal/recorder/stats"
)

const (
	sampleInterval = 100 * time.Millisecond
	highThreshold  = 0.75
	highDwell      = 800 * time.Millisecond
	lowThreshold   = 0.25
	lowDwell       = 5000 * time.Millisecond
	throttledFPS   = 30
)

// FillGauge reports the current fill factor of the ring being observed.
type FillGauge interface {
	FillFactor() float64
}

// FPSSetter is the frame grabber's thread-safe rate control.
type FPSSetter interface {
	SetFPS(f int)
	CurrentFPS() int
	OriginalFPS() int
}

// Adaptive samples a FillGauge every 100ms and raises or lowers an
// FPSSetter's target rate using two latched dwell timers. Throttling only
// fires when the current target FPS exceeds 30; restoring only fires
// while throttled and when the original configured FPS exceeds 30.
type Adaptive struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	gauge   FillGauge
	grabber FPSSetter
	stats   *stats.Counters
	log     *slog.Logger

	throttled    bool
	highSince    time.Time
	lowSince     time.Time
	highDwelling bool
	lowDwelling  bool
}

// New builds a controller watching gauge and driving grabber's rate.
func New(gauge FillGauge, grabber FPSSetter, st *stats.Counters, log *slog.Logger) *Adaptive {
	return &Adaptive{
		gauge:   gauge,
		grabber: grabber,
		stats:   st,
		log:     log.With("component", "adaptive_controller"),
	}
}

// Start spawns the sampling goroutine. The controller is detached in the
// sense that its loop exits purely on context cancellation; Stop cancels
// and joins it like any other worker.
func (a *Adaptive) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.run(ctx)
}

// Stop cancels the sampling goroutine and waits for it to exit.
func (a *Adaptive) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	a.wg.Wait()
}

// IsThrottled reports the controller's current latched state.
func (a *Adaptive) IsThrottled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.throttled
}

func (a *Adaptive) run(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.sample(now)
		}
	}
}

// sample evaluates one fill-factor reading against the two dwell timers.
// Crossing a threshold resets the opposing timer's "dwelling" flag so a
// single noisy sample cannot accumulate dwell time across a gap.
func (a *Adaptive) sample(now time.Time) {
	fill := a.gauge.FillFactor()

	a.mu.Lock()
	defer a.mu.Unlock()

	if fill >= highThreshold {
		if !a.highDwelling {
			a.highDwelling = true
			a.highSince = now
		}
		a.lowDwelling = false
	} else {
		a.highDwelling = false
	}

	if fill <= lowThreshold {
		if !a.lowDwelling {
			a.lowDwelling = true
			a.lowSince = now
		}
		a.highDwelling = false
	} else {
		a.lowDwelling = false
	}

	if !a.throttled && a.highDwelling && now.Sub(a.highSince) >= highDwell && a.grabber.CurrentFPS() > throttledFPS {
		a.grabber.SetFPS(throttledFPS)
		a.throttled = true
		a.highDwelling = false
		a.stats.IncThrottleEvents()
		a.log.Info("throttling capture rate", "fps", throttledFPS, "fill", fill)
		return
	}

	if a.throttled && a.lowDwelling && now.Sub(a.lowSince) >= lowDwell && a.grabber.OriginalFPS() > throttledFPS {
		a.grabber.SetFPS(a.grabber.OriginalFPS())
		a.throttled = false
		a.lowDwelling = false
		a.stats.IncRestoreEvents()
		a.log.Info("restoring capture rate", "fps", a.grabber.OriginalFPS(), "fill", fill)
	}
}
