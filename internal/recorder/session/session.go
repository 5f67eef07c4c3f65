// Package session owns construction, wiring and teardown of one
// recording: the frame pool, the three SPSC rings, the five long-lived
// goroutines (frame grabber, audio grabber, encoder, interleaver/writer,
// adaptive controller) and the optional webm-mirror sink. Goroutines
// start and stop in the same A, B, D, E, F order; ownership is a Go
// struct holding values and interfaces instead of raw owning pointers
// deleted by hand.
package session

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/babelcloud/deskrec/internal/recorder/controller"
	"github.com/babelcloud/deskrec/internal/recorder/core"
	"github.com/babelcloud/deskrec/internal/recorder/encoder"
	"github.com/babelcloud/deskrec/internal/recorder/grabber"
	"github.com/babelcloud/deskrec/internal/recorder/muxer"
	"github.com/babelcloud/deskrec/internal/recorder/pool"
	"github.com/babelcloud/deskrec/internal/recorder/rerr"
	"github.com/babelcloud/deskrec/internal/recorder/ring"
	"github.com/babelcloud/deskrec/internal/recorder/stats"
)

const shutdownGrace = 30 * time.Second

// Config collects everything a Session needs to construct its pipeline.
// It is the CLI/config layer's contract with the recorder core.
type Config struct {
	Width, Height int
	FPS           int
	AudioEnabled  bool
	OutputPath    string
	JPEGQuality   int
	RingCapacity  int // power of two, used for all three rings
	FrameBuffers  int // power of two, FramePool size
	WriteBufferMB int
	MirrorWebM    string // path, empty disables
}

// Session wires and owns one recording's full pipeline from open to
// close.
type Session struct {
	cfg     Config
	log     *slog.Logger
	stats   *stats.Counters
	display grabber.Display

	pool      *pool.FramePool
	videoIxR  *ring.SPSC[int]
	videoPktR *ring.SPSC[core.VideoPacket]
	audioPktR *ring.SPSC[core.AudioPacket]

	frameGrabber *grabber.FrameGrabber
	audioGrabber *grabber.AudioGrabber
	adaptive     *controller.Adaptive
	interleaver  *muxer.Interleaver
	writer       *muxer.AVIWriter
	side         *muxer.WebMSideMuxer
	mirrorFile   *os.File

	encCancel context.CancelFunc
	encWG     sync.WaitGroup
	ilCancel  context.CancelFunc
	ilWG      sync.WaitGroup
}

// New constructs a session's pipeline: opens the audio device (if
// enabled) to learn its format, allocates the frame pool and rings,
// opens the AVI writer (and optional WebM side muxer), and builds every
// component, without starting any goroutine yet. display is always
// required; audioDevice may be nil when cfg.AudioEnabled is false.
func New(cfg Config, display grabber.Display, audioDevice grabber.LoopbackDevice, st *stats.Counters, log *slog.Logger) (*Session, error) {
	if cfg.RingCapacity <= 0 || cfg.RingCapacity&(cfg.RingCapacity-1) != 0 {
		return nil, &rerr.ConfigError{Field: "ring_capacity", Reason: "must be a power of two"}
	}
	if cfg.FrameBuffers <= 0 || cfg.FrameBuffers&(cfg.FrameBuffers-1) != 0 {
		return nil, &rerr.ConfigError{Field: "frame_buffers", Reason: "must be a power of two"}
	}

	framePool, err := pool.New(cfg.Width, cfg.Height, cfg.FrameBuffers)
	if err != nil {
		return nil, &rerr.ConfigError{Field: "frame_pool", Reason: err.Error()}
	}

	videoIxR, err := ring.New[int](cfg.RingCapacity)
	if err != nil {
		return nil, &rerr.ConfigError{Field: "ring_capacity", Reason: err.Error()}
	}
	videoPktR, err := ring.New[core.VideoPacket](cfg.RingCapacity)
	if err != nil {
		return nil, &rerr.ConfigError{Field: "ring_capacity", Reason: err.Error()}
	}
	audioPktR, err := ring.New[core.AudioPacket](cfg.RingCapacity)
	if err != nil {
		return nil, &rerr.ConfigError{Field: "ring_capacity", Reason: err.Error()}
	}

	s := &Session{
		cfg:       cfg,
		log:       log,
		stats:     st,
		display:   display,
		pool:      framePool,
		videoIxR:  videoIxR,
		videoPktR: videoPktR,
		audioPktR: audioPktR,
	}

	s.frameGrabber = grabber.NewFrameGrabber(display, framePool, videoIxR, cfg.FPS, st, log)
	s.adaptive = controller.New(videoIxR, s.frameGrabber, st, log)

	var audioParams *muxer.AudioParams
	if cfg.AudioEnabled {
		if audioDevice == nil {
			return nil, &rerr.ConfigError{Field: "audio", Reason: "audio enabled but no loopback device provided"}
		}
		s.audioGrabber = grabber.NewAudioGrabber(audioDevice, audioPktR, st, log)
		if err := s.audioGrabber.Init(); err != nil {
			return nil, err
		}
		audioParams = &muxer.AudioParams{
			SampleRate:    s.audioGrabber.SampleRate(),
			Channels:      s.audioGrabber.Channels(),
			BlockAlign:    s.audioGrabber.BlockAlign(),
			BitsPerSample: 16,
		}
	}

	writer, err := muxer.Open(cfg.OutputPath, muxer.VideoParams{Width: cfg.Width, Height: cfg.Height, FPS: cfg.FPS}, audioParams, cfg.WriteBufferMB*1024*1024, st, log)
	if err != nil {
		return nil, err
	}
	s.writer = writer

	if cfg.MirrorWebM != "" {
		f, err := os.Create(cfg.MirrorWebM)
		if err != nil {
			writer.Close()
			return nil, &rerr.ConfigError{Field: "mirror_webm", Reason: err.Error()}
		}
		s.mirrorFile = f

		side := muxer.NewWebMSideMuxer(f, cfg.AudioEnabled)
		if err := side.WriteHeader(); err != nil {
			writer.Close()
			f.Close()
			return nil, &rerr.ConfigError{Field: "mirror_webm", Reason: err.Error()}
		}
		s.side = side
	}

	s.interleaver = muxer.NewInterleaver(videoPktR, audioPktR, writer, s.side, st, log)

	return s, nil
}

// Start launches the five long-lived goroutines in the order the
// concurrency model names them: frame grabber, audio grabber, encoder,
// writer/interleaver, adaptive controller.
func (s *Session) Start(ctx context.Context) error {
	if err := s.frameGrabber.Start(ctx); err != nil {
		return err
	}

	if s.audioGrabber != nil {
		if err := s.audioGrabber.Start(ctx); err != nil {
			s.frameGrabber.Stop()
			return err
		}
	}

	encCtx, encCancel := context.WithCancel(ctx)
	s.encCancel = encCancel
	s.encWG.Add(1)
	go s.runEncoder(encCtx)

	ilCtx, ilCancel := context.WithCancel(ctx)
	s.ilCancel = ilCancel
	s.ilWG.Add(1)
	go func() {
		defer s.ilWG.Done()
		s.interleaver.Run(ilCtx)
	}()

	s.adaptive.Start(ctx)

	s.log.Info("recording session started", "output", s.cfg.OutputPath, "fps", s.cfg.FPS, "audio", s.cfg.AudioEnabled)
	return nil
}

// runEncoder is stage D's consumer loop: pop a ready buffer index from
// the capture ring, encode it, push the JPEG onto the video packet ring.
// It sleeps 1ms when the capture ring is empty and busy-retries 1ms when
// the downstream ring is full, per the concurrency model's suspension
// points.
func (s *Session) runEncoder(ctx context.Context) {
	defer s.encWG.Done()
	enc := encoder.New()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ix, ok := s.videoIxR.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
			continue
		}

		buf := s.pool.Buffer(ix)
		ptsMillis := uint64(time.Now().UnixMilli())
		jpegBytes, err := enc.Encode(buf, s.cfg.Width, s.cfg.Height, s.cfg.JPEGQuality)
		if err != nil {
			s.stats.IncEncodeErrors()
			s.log.Warn("jpeg encode failed, frame dropped", "error", &rerr.EncodeError{Cause: err})
			continue
		}

		pkt := core.VideoPacket{Bytes: jpegBytes, PTSMillis: ptsMillis}
		for {
			if s.videoPktR.Push(pkt) {
				break
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
			}
		}
	}
}

// Stop cancels and joins the pipeline's goroutines in order A, B, D, E,
// F, matching the concurrency model's shutdown ordering. The writer and
// optional side muxer are closed inside the interleaver's drain once it
// observes cancellation, after any packets still in flight are written.
func (s *Session) Stop() {
	s.frameGrabber.Stop()
	if s.audioGrabber != nil {
		s.audioGrabber.Stop()
	}

	if s.encCancel != nil {
		s.encCancel()
	}
	if !waitWithTimeout(&s.encWG, shutdownGrace) {
		s.log.Error("shutdown grace exceeded", "error", &rerr.ShutdownError{Component: "encoder", Timeout: shutdownGrace.String()})
	}

	if s.ilCancel != nil {
		s.ilCancel()
	}
	if !waitWithTimeout(&s.ilWG, shutdownGrace) {
		s.log.Error("shutdown grace exceeded", "error", &rerr.ShutdownError{Component: "interleaver", Timeout: shutdownGrace.String()})
	}

	s.adaptive.Stop()

	if s.mirrorFile != nil {
		if err := s.mirrorFile.Close(); err != nil {
			s.log.Warn("mirror webm file close failed", "error", err)
		}
	}

	s.log.Info("recording session stopped")
}

func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Stats returns a point-in-time snapshot of the session's counters.
func (s *Session) Stats() stats.Snapshot {
	return s.stats.Snapshot()
}
