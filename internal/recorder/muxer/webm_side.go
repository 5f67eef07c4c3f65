package muxer

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
)

// WebMSideMuxer is an optional secondary sink enabled by --mirror-webm.
// It does not re-encapsulate the MJPEG/PCM bytes into WebM-native codecs
// — that would require a transcode this system never performs — instead
// it records a lightweight diagnostics track per stream: one block per
// chunk carrying the chunk's pts_ms and byte size, so an operator can
// correlate pipeline timing against the primary AVI output without a
// second full copy of the frame data. It mirrors the teacher's WebM
// muxer's WriteHeader/WriteVideoFrame/WriteAudioFrame/Close shape.
type WebMSideMuxer struct {
	mu          sync.Mutex
	writer      io.Writer
	videoWriter webm.BlockWriteCloser
	audioWriter webm.BlockWriteCloser
	initialized bool
	hasAudio    bool
	log         *slog.Logger
}

// NewWebMSideMuxer builds a side muxer writing to w. hasAudio controls
// whether an audio diagnostics track is declared.
func NewWebMSideMuxer(w io.Writer, hasAudio bool) *WebMSideMuxer {
	return &WebMSideMuxer{
		writer:   w,
		hasAudio: hasAudio,
		log:      slog.Default().With("component", "webm_side_muxer"),
	}
}

type errWriteCloser struct {
	w      io.Writer
	closed bool
}

func (e *errWriteCloser) Write(p []byte) (int, error) {
	if e.closed {
		return 0, io.ErrClosedPipe
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.closed = true
	}
	return n, err
}

func (e *errWriteCloser) Close() error {
	e.closed = true
	return nil
}

// WriteHeader declares the diagnostics tracks and must be called before
// any WriteVideoEvent/WriteAudioEvent call.
func (m *WebMSideMuxer) WriteHeader() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		return nil
	}

	tracks := []webm.TrackEntry{
		{
			Name:            "VideoDiagnostics",
			TrackNumber:     1,
			TrackUID:        1,
			CodecID:         "V_UNCOMPRESSED",
			TrackType:       1,
			DefaultDuration: 33333333,
			Video:           &webm.Video{PixelWidth: 1, PixelHeight: 1},
		},
	}
	if m.hasAudio {
		tracks = append(tracks, webm.TrackEntry{
			Name:            "AudioDiagnostics",
			TrackNumber:     2,
			TrackUID:        2,
			CodecID:         "A_PCM/INT/LIT",
			TrackType:       2,
			DefaultDuration: 20000000,
			Audio:           &webm.Audio{SamplingFrequency: 48000.0, Channels: 1},
		})
	}

	writers, err := webm.NewSimpleBlockWriter(&errWriteCloser{w: m.writer}, tracks,
		mkvcore.WithOnFatalHandler(func(err error) {
			m.log.Warn("webm side muxer fatal error, disabling sink", "error", err)
			m.initialized = false
		}))
	if err != nil {
		return fmt.Errorf("webm side muxer: %w", err)
	}

	m.videoWriter = writers[0]
	if m.hasAudio {
		m.audioWriter = writers[1]
	}
	m.initialized = true
	m.log.Info("webm side muxer initialized", "audio", m.hasAudio)
	return nil
}

// diagnosticPayload packs a chunk's timing metadata into 12 bytes:
// pts_ms (8 bytes LE) followed by chunk size (4 bytes LE).
func diagnosticPayload(ptsMillis uint64, size int) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint64(b[0:8], ptsMillis)
	binary.LittleEndian.PutUint32(b[8:12], uint32(size))
	return b
}

// WriteVideoEvent records one video chunk's timing into the diagnostics
// track. It is a no-op, not an error, if the side muxer failed to
// initialize or was disabled by a fatal handler callback.
func (m *WebMSideMuxer) WriteVideoEvent(ptsMillis uint64, size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized || m.videoWriter == nil {
		return nil
	}
	_, err := m.videoWriter.Write(true, int64(time.Duration(ptsMillis)*time.Millisecond/time.Nanosecond), diagnosticPayload(ptsMillis, size))
	return err
}

// WriteAudioEvent records one audio chunk's timing into the diagnostics
// track, if an audio track was declared.
func (m *WebMSideMuxer) WriteAudioEvent(ptsMillis uint64, size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized || m.audioWriter == nil {
		return nil
	}
	_, err := m.audioWriter.Write(true, int64(time.Duration(ptsMillis)*time.Millisecond/time.Nanosecond), diagnosticPayload(ptsMillis, size))
	return err
}

// Close finalizes the diagnostics tracks.
func (m *WebMSideMuxer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.videoWriter != nil {
		if err := m.videoWriter.Close(); err != nil {
			m.log.Warn("video diagnostics track close error", "error", err)
		}
		m.videoWriter = nil
	}
	if m.audioWriter != nil {
		if err := m.audioWriter.Close(); err != nil {
			m.log.Warn("audio diagnostics track close error", "error", err)
		}
		m.audioWriter = nil
	}
	m.initialized = false
	return nil
}
