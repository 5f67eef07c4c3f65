package session

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/deskrec/internal/recorder/stats"
)

type fakeDisplay struct{}

func (fakeDisplay) Capture(dst []byte) error {
	for i := range dst {
		dst[i] = 0x20
	}
	return nil
}
func (fakeDisplay) Close() error { return nil }

type fakeLoopback struct{ n int }

func (f *fakeLoopback) Open() (int, int, int, error) { return 8000, 1, 2, nil }
func (f *fakeLoopback) FetchPacket() ([]byte, bool, error) {
	f.n++
	if f.n%3 != 0 {
		return nil, false, nil
	}
	return []byte{0, 0}, true, nil
}
func (f *fakeLoopback) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSessionRecordsVideoOnlyEndToEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	cfg := Config{
		Width: 8, Height: 8, FPS: 60,
		OutputPath:    path,
		JPEGQuality:   50,
		RingCapacity:  16,
		FrameBuffers:  4,
		WriteBufferMB: 1,
	}

	s, err := New(cfg, fakeDisplay{}, nil, stats.New(), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	time.Sleep(100 * time.Millisecond)
	cancel()
	s.Stop()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Contains(t, string(data), "00dc")

	snap := s.Stats()
	assert.Greater(t, snap.VideoChunksWritten, int64(0))
}

func TestSessionRecordsAudioAndVideo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	cfg := Config{
		Width: 8, Height: 8, FPS: 30,
		AudioEnabled:  true,
		OutputPath:    path,
		JPEGQuality:   50,
		RingCapacity:  16,
		FrameBuffers:  4,
		WriteBufferMB: 1,
	}

	s, err := New(cfg, fakeDisplay{}, &fakeLoopback{}, stats.New(), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	time.Sleep(100 * time.Millisecond)
	cancel()
	s.Stop()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "01wb")
}

func TestSessionRejectsNonPowerOfTwoRingCapacity(t *testing.T) {
	cfg := Config{
		Width: 8, Height: 8, FPS: 30,
		OutputPath:   filepath.Join(t.TempDir(), "out.avi"),
		RingCapacity: 3,
		FrameBuffers: 4,
	}
	_, err := New(cfg, fakeDisplay{}, nil, stats.New(), testLogger())
	require.Error(t, err)
}

func TestSessionRejectsAudioEnabledWithoutDevice(t *testing.T) {
	cfg := Config{
		Width: 8, Height: 8, FPS: 30,
		AudioEnabled: true,
		OutputPath:   filepath.Join(t.TempDir(), "out.avi"),
		RingCapacity: 16,
		FrameBuffers: 4,
	}
	_, err := New(cfg, fakeDisplay{}, nil, stats.New(), testLogger())
	require.Error(t, err)
}
