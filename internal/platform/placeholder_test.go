package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolidDisplayFillsFrame(t *testing.T) {
	d := NewSolidDisplay()
	buf := make([]byte, 16)
	require.NoError(t, d.Capture(buf))
	assert.Equal(t, []byte{0x30, 0x30, 0x30, 0xFF}, buf[0:4])
}

func TestSolidDisplayRejectsMisalignedBuffer(t *testing.T) {
	d := NewSolidDisplay()
	require.Error(t, d.Capture(make([]byte, 3)))
}

func TestSilentLoopbackReportsFormatAndNoPackets(t *testing.T) {
	d := NewSilentLoopback()
	sampleRate, channels, blockAlign, err := d.Open()
	require.NoError(t, err)
	assert.Equal(t, 44100, sampleRate)
	assert.Equal(t, 2, channels)
	assert.Equal(t, 4, blockAlign)

	_, ok, err := d.FetchPacket()
	require.NoError(t, err)
	assert.False(t, ok)
}
