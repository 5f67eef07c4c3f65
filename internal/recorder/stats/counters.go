// Package stats holds the atomic counters exposed through the --stats
// CLI flag: capture errors, encode errors, backpressure drops per ring,
// and chunk counts written to the container. Every field is an atomic,
// so fields may be updated from several goroutines (capture errors come
// from both grabbers) — no mutex guards the struct.
package stats

import "sync/atomic"

// Counters aggregates the pipeline's telemetry. Safe for concurrent
// reads from any goroutine (e.g. a periodic --stats logger) while the
// pipeline is running.
type Counters struct {
	captureErrors      atomic.Int64
	encodeErrors       atomic.Int64
	videoDrops         atomic.Int64
	audioDrops         atomic.Int64
	videoChunksWritten atomic.Int64
	audioChunksWritten atomic.Int64
	throttleEvents     atomic.Int64
	restoreEvents      atomic.Int64
}

// New returns a zeroed counter set.
func New() *Counters {
	return &Counters{}
}

func (c *Counters) IncCaptureErrors() { c.captureErrors.Add(1) }
func (c *Counters) IncEncodeErrors()  { c.encodeErrors.Add(1) }

// IncBackpressureDrops records a dropped item on the named ring. Only
// "video" and "audio" are meaningful ring names for this counter; any
// other value is folded into the video counter rather than panicking,
// since telemetry must never be able to crash the pipeline.
func (c *Counters) IncBackpressureDrops(ring string) {
	if ring == "audio" {
		c.audioDrops.Add(1)
		return
	}
	c.videoDrops.Add(1)
}

func (c *Counters) IncVideoChunksWritten() { c.videoChunksWritten.Add(1) }
func (c *Counters) IncAudioChunksWritten() { c.audioChunksWritten.Add(1) }
func (c *Counters) IncThrottleEvents()     { c.throttleEvents.Add(1) }
func (c *Counters) IncRestoreEvents()      { c.restoreEvents.Add(1) }

// Snapshot is an immutable point-in-time read of all counters, suitable
// for logging or JSON serialization.
type Snapshot struct {
	CaptureErrors      int64 `json:"capture_errors"`
	EncodeErrors       int64 `json:"encode_errors"`
	VideoDrops         int64 `json:"video_drops"`
	AudioDrops         int64 `json:"audio_drops"`
	VideoChunksWritten int64 `json:"video_chunks_written"`
	AudioChunksWritten int64 `json:"audio_chunks_written"`
	ThrottleEvents     int64 `json:"throttle_events"`
	RestoreEvents      int64 `json:"restore_events"`
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		CaptureErrors:      c.captureErrors.Load(),
		EncodeErrors:       c.encodeErrors.Load(),
		VideoDrops:         c.videoDrops.Load(),
		AudioDrops:         c.audioDrops.Load(),
		VideoChunksWritten: c.videoChunksWritten.Load(),
		AudioChunksWritten: c.audioChunksWritten.Load(),
		ThrottleEvents:     c.throttleEvents.Load(),
		RestoreEvents:      c.restoreEvents.Load(),
	}
}
