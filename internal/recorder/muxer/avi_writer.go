// Package muxer streams a single RIFF/AVI container to disk: MJPEG video
// in '00dc' chunks, PCM audio in '01wb' chunks, a deferred 'idx1' index
// written at close, with the three LIST/RIFF sizes backpatched once the
// final file length is known. Its streaming shape is a mutex-guarded
// writer, a closed flag, and a log call at each lifecycle step; the
// container layout itself is grounded on the original AVI muxer this
// system replaces.
package muxer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/babelcloud/deskrec/internal/recorder/rerr"
	"github.com/babelcloud/deskrec/internal/recorder/stats"
)

const (
	defaultWriteBufferBytes = 8 * 1024 * 1024

	ckidVideo = "00dc"
	ckidAudio = "01wb"

	flagKeyFrame = 0x10 // AVIIF_KEYFRAME — every MJPEG frame is independent
)

// indexEntry mirrors the 16-byte idx1 record: FourCC, flags, offset from
// the first byte after the movi FourCC, and unpadded chunk size.
type indexEntry struct {
	ckid   uint32
	flags  uint32
	offset uint32
	size   uint32
}

// VideoParams fixes the video stream's format for the session.
type VideoParams struct {
	Width  int
	Height int
	FPS    int
}

// AudioParams fixes the audio stream's format for the session. Present
// only when the recording has an audio stream.
type AudioParams struct {
	SampleRate    int
	Channels      int
	BlockAlign    int
	BitsPerSample int
}

// AVIWriter streams one AVI file: constructed, opened, written to
// (WriteVideo/WriteAudio any number of times, in any order), then closed
// exactly once. Writing after Close is an error; an I/O failure poisons
// the writer so subsequent writes no-op while Close still attempts to
// backpatch the sizes it already knows.
type AVIWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	pos  int64

	closed   bool
	poisoned bool
	ioErr    error

	video VideoParams
	audio *AudioParams

	riffSizePos      int64
	hdrlListPos      int64
	moviListPos      int64
	moviPayloadStart int64

	index []indexEntry

	stats *stats.Counters
	log   *slog.Logger
}

// Open creates path, writes the header skeleton up to and including the
// movi LIST header, and records the patch offsets needed at Close.
// writeBufferBytes <= 0 selects the 8 MiB default.
func Open(path string, video VideoParams, audio *AudioParams, writeBufferBytes int, st *stats.Counters, log *slog.Logger) (*AVIWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, &rerr.ConfigError{Field: "output", Reason: err.Error()}
	}

	if writeBufferBytes <= 0 {
		writeBufferBytes = defaultWriteBufferBytes
	}

	w := &AVIWriter{
		file:  f,
		buf:   bufio.NewWriterSize(f, writeBufferBytes),
		video: video,
		audio: audio,
		stats: st,
		log:   log.With("component", "avi_writer"),
	}

	if err := w.writeHeaderSkeleton(); err != nil {
		f.Close()
		return nil, err
	}

	w.log.Info("avi container opened", "path", path, "width", video.Width, "height", video.Height, "fps", video.FPS, "audio", audio != nil)
	return w, nil
}

func (w *AVIWriter) writeRaw(p []byte) error {
	n, err := w.buf.Write(p)
	w.pos += int64(n)
	if err != nil {
		return &rerr.IOError{Cause: err}
	}
	return nil
}

func (w *AVIWriter) writeU32(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return w.writeRaw(b[:])
}

// writeChunkHeader writes a chunk's FourCC and unpadded size, returning
// the chunk's start offset (the position of the FourCC).
func (w *AVIWriter) writeChunkHeader(tag string, size uint32) (int64, error) {
	start := w.pos
	if err := w.writeRaw([]byte(tag)); err != nil {
		return start, err
	}
	if err := w.writeU32(size); err != nil {
		return start, err
	}
	return start, nil
}

// writeListHeader writes "LIST" + size placeholder + the 4-byte list
// type, returning the offset of the size placeholder (the "list start"
// used by both the hdrl and movi backpatch formulas).
func (w *AVIWriter) writeListHeader(listType string) (int64, error) {
	if err := w.writeRaw([]byte("LIST")); err != nil {
		return 0, err
	}
	listPos := w.pos
	if err := w.writeU32(0); err != nil {
		return 0, err
	}
	if err := w.writeRaw([]byte(listType)); err != nil {
		return 0, err
	}
	return listPos, nil
}

func (w *AVIWriter) writeChunk(tag string, payload []byte) (int64, error) {
	start, err := w.writeChunkHeader(tag, uint32(len(payload)))
	if err != nil {
		return start, err
	}
	if len(payload) > 0 {
		if err := w.writeRaw(payload); err != nil {
			return start, err
		}
	}
	if len(payload)%2 == 1 {
		if err := w.writeRaw([]byte{0}); err != nil {
			return start, err
		}
	}
	return start, nil
}

func (w *AVIWriter) writeHeaderSkeleton() error {
	if err := w.writeRaw([]byte("RIFF")); err != nil {
		return err
	}
	w.riffSizePos = w.pos
	if err := w.writeU32(0); err != nil {
		return err
	}
	if err := w.writeRaw([]byte("AVI ")); err != nil {
		return err
	}

	hdrlListPos, err := w.writeListHeader("hdrl")
	if err != nil {
		return err
	}
	w.hdrlListPos = hdrlListPos

	streams := 1
	if w.audio != nil {
		streams = 2
	}
	if _, err := w.writeChunk("avih", buildAVIH(w.video.Width, w.video.Height, w.video.FPS, streams)); err != nil {
		return err
	}

	if err := w.writeVideoStrl(); err != nil {
		return err
	}
	if w.audio != nil {
		if err := w.writeAudioStrl(); err != nil {
			return err
		}
	}

	moviListPos, err := w.writeListHeader("movi")
	if err != nil {
		return err
	}
	w.moviListPos = moviListPos
	w.moviPayloadStart = w.pos

	return nil
}

func (w *AVIWriter) writeVideoStrl() error {
	if _, err := w.writeListHeader("strl"); err != nil {
		return err
	}
	if _, err := w.writeChunk("strh", buildStrhVideo(w.video.Width, w.video.Height, w.video.FPS)); err != nil {
		return err
	}
	_, err := w.writeChunk("strf", buildStrfVideo(w.video.Width, w.video.Height))
	return err
}

func (w *AVIWriter) writeAudioStrl() error {
	if _, err := w.writeListHeader("strl"); err != nil {
		return err
	}
	if _, err := w.writeChunk("strh", buildStrhAudio(w.audio.SampleRate, w.audio.BlockAlign)); err != nil {
		return err
	}
	_, err := w.writeChunk("strf", buildStrfAudio(w.audio.SampleRate, w.audio.Channels, w.audio.BlockAlign, w.audio.BitsPerSample))
	return err
}

// WriteVideo appends a '00dc' chunk and its index entry. Every MJPEG
// frame is a complete independent image, so flags is always
// AVIIF_KEYFRAME.
func (w *AVIWriter) WriteVideo(jpegBytes []byte) error {
	return w.writeMediaChunk(ckidVideo, jpegBytes, flagKeyFrame)
}

// WriteAudio appends a '01wb' chunk and its index entry.
func (w *AVIWriter) WriteAudio(pcmBytes []byte) error {
	return w.writeMediaChunk(ckidAudio, pcmBytes, 0)
}

func (w *AVIWriter) writeMediaChunk(tag string, payload []byte, flags uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("muxer: write after close")
	}
	if w.poisoned {
		return nil
	}

	start, err := w.writeChunk(tag, payload)
	if err != nil {
		w.poisoned = true
		w.ioErr = err
		w.log.Error("avi write failed, writer poisoned", "error", err)
		return err
	}

	w.index = append(w.index, indexEntry{
		ckid:   fourCC(tag),
		flags:  flags,
		offset: uint32(start - w.moviPayloadStart),
		size:   uint32(len(payload)),
	})

	if tag == ckidVideo {
		w.stats.IncVideoChunksWritten()
	} else {
		w.stats.IncAudioChunksWritten()
	}
	return nil
}

// Close appends the idx1 index, backpatches the RIFF/hdrl/movi sizes,
// flushes and closes the underlying file. It is safe to call exactly
// once; a poisoned writer still attempts the backpatch of whatever sizes
// it already tracked in memory.
func (w *AVIWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	idx1Start := w.pos
	if !w.poisoned {
		if err := w.writeIndex(); err != nil {
			w.poisoned = true
			w.ioErr = err
		}
	}

	if err := w.buf.Flush(); err != nil {
		w.poisoned = true
		w.ioErr = &rerr.IOError{Cause: err}
	}

	if err := w.backpatch(idx1Start); err != nil {
		w.poisoned = true
		if w.ioErr == nil {
			w.ioErr = err
		}
	}

	closeErr := w.file.Close()
	w.log.Info("avi container closed", "video_chunks", w.countIndex(fourCC(ckidVideo)), "audio_chunks", w.countIndex(fourCC(ckidAudio)), "poisoned", w.poisoned)

	if w.ioErr != nil {
		return w.ioErr
	}
	if closeErr != nil {
		return &rerr.IOError{Cause: closeErr}
	}
	return nil
}

func (w *AVIWriter) countIndex(ckid uint32) int {
	n := 0
	for _, e := range w.index {
		if e.ckid == ckid {
			n++
		}
	}
	return n
}

func (w *AVIWriter) writeIndex() error {
	if _, err := w.writeChunkHeader("idx1", uint32(len(w.index)*16)); err != nil {
		return err
	}
	for _, e := range w.index {
		if err := w.writeU32(e.ckid); err != nil {
			return err
		}
		if err := w.writeU32(e.flags); err != nil {
			return err
		}
		if err := w.writeU32(e.offset); err != nil {
			return err
		}
		if err := w.writeU32(e.size); err != nil {
			return err
		}
	}
	return nil
}

// backpatch flushes the buffer (already done by the caller), seeks back
// to the three placeholder fields recorded during Open, and writes their
// final sizes now that the file length is known.
func (w *AVIWriter) backpatch(idx1Start int64) error {
	fileEnd := w.pos

	// hdrlListPos and moviListPos are the offsets of each list's 4-byte
	// size field, so a list's size is its end offset minus that offset
	// minus 4. hdrl ends at the movi list's "LIST" tag, 4 bytes before
	// moviListPos: -8. movi ends at idx1Start, idx1's own FourCC: -4.
	riffSize := uint32(fileEnd - 8)
	hdrlSize := uint32(w.moviListPos - w.hdrlListPos - 8)
	moviSize := uint32(idx1Start - w.moviListPos - 4)

	if err := w.patchU32At(w.riffSizePos, riffSize); err != nil {
		return err
	}
	if err := w.patchU32At(w.hdrlListPos, hdrlSize); err != nil {
		return err
	}
	if err := w.patchU32At(w.moviListPos, moviSize); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, 2); err != nil {
		return &rerr.IOError{Cause: err}
	}
	return nil
}

func (w *AVIWriter) patchU32At(offset int64, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	if _, err := w.file.Seek(offset, 0); err != nil {
		return &rerr.IOError{Cause: err}
	}
	if _, err := w.file.Write(b[:]); err != nil {
		return &rerr.IOError{Cause: err}
	}
	return nil
}
