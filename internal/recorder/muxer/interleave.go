package muxer

import (
	"context"
	"log/slog"
	"time"

	"github.com/babelcloud/deskrec/internal/recorder/core"
	"github.com/babelcloud/deskrec/internal/recorder/ring"
	"github.com/babelcloud/deskrec/internal/recorder/stats"
)

const otherRingEmptyGrace = 10 * time.Millisecond

// Interleaver is the writer-side goroutine: it pops video and audio
// packets off their respective rings and drives the AVIWriter in
// timestamp order. The source this pipeline replaces re-pushed the
// losing packet back onto the ring it was just popped from; that
// violates single-producer/single-consumer discipline once the writer
// becomes a second producer on someone else's ring. This holds the
// losing side in a local variable instead, which produces the same
// output whenever ring capacity is not exceeded.
type Interleaver struct {
	videoRing *ring.SPSC[core.VideoPacket]
	audioRing *ring.SPSC[core.AudioPacket]
	writer    *AVIWriter
	side      *WebMSideMuxer // optional, nil when --mirror-webm is unset
	stats     *stats.Counters
	log       *slog.Logger
}

// NewInterleaver builds an interleaver draining videoRing/audioRing into
// writer, optionally mirroring chunk timing into side.
func NewInterleaver(videoRing *ring.SPSC[core.VideoPacket], audioRing *ring.SPSC[core.AudioPacket], writer *AVIWriter, side *WebMSideMuxer, st *stats.Counters, log *slog.Logger) *Interleaver {
	return &Interleaver{
		videoRing: videoRing,
		audioRing: audioRing,
		writer:    writer,
		side:      side,
		stats:     st,
		log:       log.With("component", "interleaver"),
	}
}

// Run executes the hold-one-side interleave loop until ctx is cancelled,
// then drains both rings in timestamp order and closes the writer. It is
// meant to run on its own goroutine for the life of the session.
func (x *Interleaver) Run(ctx context.Context) {
	var heldV *core.VideoPacket
	var heldA *core.AudioPacket
	var videoEmptySince, audioEmptySince time.Time

	for {
		if heldV == nil {
			if v, ok := x.videoRing.Pop(); ok {
				heldV = &v
				videoEmptySince = time.Time{}
			} else if videoEmptySince.IsZero() {
				videoEmptySince = time.Now()
			}
		}
		if heldA == nil {
			if a, ok := x.audioRing.Pop(); ok {
				heldA = &a
				audioEmptySince = time.Time{}
			} else if audioEmptySince.IsZero() {
				audioEmptySince = time.Now()
			}
		}

		switch {
		case heldV != nil && heldA != nil:
			if heldA.PTSMillis < heldV.PTSMillis {
				x.writeAudio(*heldA)
				heldA = nil
			} else {
				x.writeVideo(*heldV)
				heldV = nil
			}
		case heldV != nil:
			if !audioEmptySince.IsZero() && time.Since(audioEmptySince) >= otherRingEmptyGrace {
				x.writeVideo(*heldV)
				heldV = nil
			}
		case heldA != nil:
			if !videoEmptySince.IsZero() && time.Since(videoEmptySince) >= otherRingEmptyGrace {
				x.writeAudio(*heldA)
				heldA = nil
			}
		}

		select {
		case <-ctx.Done():
			x.drain(heldV, heldA)
			return
		case <-time.After(time.Millisecond):
		}
	}
}

// drain writes everything left in both rings (plus any already-held
// packets) in timestamp-interleaved order, then closes the writer and
// the optional side muxer.
func (x *Interleaver) drain(heldV *core.VideoPacket, heldA *core.AudioPacket) {
	for {
		if heldV == nil {
			if v, ok := x.videoRing.Pop(); ok {
				heldV = &v
			}
		}
		if heldA == nil {
			if a, ok := x.audioRing.Pop(); ok {
				heldA = &a
			}
		}
		if heldV == nil && heldA == nil {
			break
		}

		switch {
		case heldV != nil && heldA != nil:
			if heldA.PTSMillis < heldV.PTSMillis {
				x.writeAudio(*heldA)
				heldA = nil
			} else {
				x.writeVideo(*heldV)
				heldV = nil
			}
		case heldV != nil:
			x.writeVideo(*heldV)
			heldV = nil
		case heldA != nil:
			x.writeAudio(*heldA)
			heldA = nil
		}
	}

	if err := x.writer.Close(); err != nil {
		x.log.Error("avi writer close failed", "error", err)
	}
	if x.side != nil {
		if err := x.side.Close(); err != nil {
			x.log.Warn("webm side muxer close failed", "error", err)
		}
	}
	x.log.Info("interleaver drained and closed")
}

func (x *Interleaver) writeVideo(p core.VideoPacket) {
	if err := x.writer.WriteVideo(p.Bytes); err != nil {
		x.log.Error("video chunk write failed", "error", err)
		return
	}
	if x.side != nil {
		if err := x.side.WriteVideoEvent(p.PTSMillis, len(p.Bytes)); err != nil {
			x.log.Debug("webm side muxer video event failed", "error", err)
		}
	}
}

func (x *Interleaver) writeAudio(p core.AudioPacket) {
	if err := x.writer.WriteAudio(p.Bytes); err != nil {
		x.log.Error("audio chunk write failed", "error", err)
		return
	}
	if x.side != nil {
		if err := x.side.WriteAudioEvent(p.PTSMillis, len(p.Bytes)); err != nil {
			x.log.Debug("webm side muxer audio event failed", "error", err)
		}
	}
}
