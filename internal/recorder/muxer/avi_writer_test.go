package muxer

import (
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/deskrec/internal/recorder/stats"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestWriter(t *testing.T, audio *AudioParams) (*AVIWriter, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "out.avi")
	w, err := Open(path, VideoParams{Width: 32, Height: 16, FPS: 30}, audio, 0, stats.New(), testLogger())
	require.NoError(t, err)
	return w, path
}

func readU32LE(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

func TestAVIWriterProducesWellFormedRIFF(t *testing.T) {
	w, path := openTestWriter(t, nil)

	require.NoError(t, w.WriteVideo([]byte{0xFF, 0xD8, 0xFF, 0xD9}))
	require.NoError(t, w.WriteVideo([]byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	require.Equal(t, "RIFF", string(data[0:4]))
	riffSize := readU32LE(data[4:8])
	assert.Equal(t, uint32(len(data)-8), riffSize)
	assert.Equal(t, "AVI ", string(data[8:12]))
}

func TestAVIWriterIndexCountsMatchChunks(t *testing.T) {
	w, path := openTestWriter(t, &AudioParams{SampleRate: 48000, Channels: 2, BlockAlign: 4, BitsPerSample: 16})

	for i := 0; i < 5; i++ {
		require.NoError(t, w.WriteVideo([]byte{0xFF, 0xD8, 0xFF, 0xD9}))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, w.WriteAudio([]byte{1, 2, 3, 4}))
	}
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	idx1 := findChunk(t, data, "idx1")
	require.NotZero(t, len(idx1))
	entries := len(idx1) / 16
	assert.Equal(t, 8, entries)

	videoCount, audioCount := 0, 0
	for i := 0; i < entries; i++ {
		ckid := readU32LE(idx1[i*16 : i*16+4])
		switch ckid {
		case fourCC("00dc"):
			videoCount++
		case fourCC("01wb"):
			audioCount++
		}
	}
	assert.Equal(t, 5, videoCount)
	assert.Equal(t, 3, audioCount)
}

func TestAVIWriterWriteAfterCloseFails(t *testing.T) {
	w, _ := openTestWriter(t, nil)
	require.NoError(t, w.Close())
	assert.Error(t, w.WriteVideo([]byte{1, 2, 3}))
}

func TestAVIWriterOddSizedChunkIsPadded(t *testing.T) {
	w, path := openTestWriter(t, nil)
	require.NoError(t, w.WriteVideo([]byte{1, 2, 3})) // odd payload size
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	moviStart := findChunkOffset(t, data, "movi") + 4
	chunkFourCC := string(data[moviStart : moviStart+4])
	require.Equal(t, "00dc", chunkFourCC)
	size := readU32LE(data[moviStart+4 : moviStart+8])
	assert.Equal(t, uint32(3), size)
	// payload (3 bytes) + 1 pad byte should follow before idx1/next chunk
	nextByte := data[moviStart+8+3]
	assert.Equal(t, byte(0), nextByte)
}

// findChunk scans the flat byte stream for a top-level chunk/list body by
// FourCC and returns its payload bytes (test helper, not a real RIFF
// parser: it does not recurse into LISTs).
func findChunk(t *testing.T, data []byte, tag string) []byte {
	t.Helper()
	off := findChunkOffset(t, data, tag)
	size := readU32LE(data[off+4 : off+8])
	return data[off+8 : off+8+int(size)]
}

func findChunkOffset(t *testing.T, data []byte, tag string) int {
	t.Helper()
	for i := 0; i+4 <= len(data); i++ {
		if string(data[i:i+4]) == tag {
			return i
		}
	}
	t.Fatalf("chunk %q not found", tag)
	return -1
}
