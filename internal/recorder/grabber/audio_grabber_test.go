package grabber

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/deskrec/internal/recorder/core"
	"github.com/babelcloud/deskrec/internal/recorder/ring"
	"github.com/babelcloud/deskrec/internal/recorder/stats"
)

type fakeLoopback struct {
	opened   atomic.Bool
	packets  atomic.Int64
	failOpen bool
}

func (f *fakeLoopback) Open() (int, int, int, error) {
	if f.failOpen {
		return 0, 0, 0, errors.New("no default render endpoint")
	}
	f.opened.Store(true)
	return 48000, 2, 4, nil
}

func (f *fakeLoopback) FetchPacket() ([]byte, bool, error) {
	if f.packets.Add(1) > 3 {
		return nil, false, nil
	}
	return []byte{1, 2, 3, 4}, true, nil
}

func (f *fakeLoopback) Close() error { return nil }

func TestAudioGrabberCapturesFormatOnInit(t *testing.T) {
	dev := &fakeLoopback{}
	r, err := ring.New[core.AudioPacket](16)
	require.NoError(t, err)

	g := NewAudioGrabber(dev, r, stats.New(), testLogger())
	require.NoError(t, g.Init())

	assert.Equal(t, 48000, g.SampleRate())
	assert.Equal(t, 2, g.Channels())
	assert.Equal(t, 4, g.BlockAlign())
}

func TestAudioGrabberPublishesPackets(t *testing.T) {
	dev := &fakeLoopback{}
	r, err := ring.New[core.AudioPacket](16)
	require.NoError(t, err)

	g := NewAudioGrabber(dev, r, stats.New(), testLogger())
	require.NoError(t, g.Init())
	require.NoError(t, g.Start(context.Background()))
	time.Sleep(30 * time.Millisecond)
	g.Stop()

	pkt, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, pkt.Bytes)
	assert.Greater(t, pkt.PTSMillis, uint64(0))
}

func TestAudioGrabberInitFailsWhenDeviceUnavailable(t *testing.T) {
	dev := &fakeLoopback{failOpen: true}
	r, err := ring.New[core.AudioPacket](16)
	require.NoError(t, err)

	g := NewAudioGrabber(dev, r, stats.New(), testLogger())
	require.Error(t, g.Init())
}

func TestAudioGrabberStartBeforeInitFails(t *testing.T) {
	dev := &fakeLoopback{}
	r, err := ring.New[core.AudioPacket](16)
	require.NoError(t, err)

	g := NewAudioGrabber(dev, r, stats.New(), testLogger())
	require.Error(t, g.Start(context.Background()))
}
