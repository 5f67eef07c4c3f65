// Package platform holds placeholder implementations of the two capture
// seams the recorder depends on: grabber.Display (a screen bitmap
// source) and grabber.LoopbackDevice (a system-audio loopback source).
// Platform-specific frame-grab and audio-loopback primitives are
// external collaborators outside this module's scope — on a real build
// these two types are swapped for backends built against the host's
// capture APIs (e.g. DXGI Desktop Duplication plus WASAPI loopback on
// Windows, or ScreenCaptureKit plus Core Audio taps on macOS). What
// lives here exists so cmd/deskrec has something concrete to wire and
// the pipeline is runnable end to end in development and in tests.
package platform

import (
	"fmt"
)

// SolidDisplay fills every captured frame with a fixed BGRA color. It
// satisfies grabber.Display without depending on any platform capture
// API, for local development and for exercising the pipeline without
// real screen access.
type SolidDisplay struct {
	B, G, R, A byte
}

// NewSolidDisplay returns a Display that captures a constant dark-gray
// frame, a visible and obviously synthetic placeholder image.
func NewSolidDisplay() *SolidDisplay {
	return &SolidDisplay{B: 0x30, G: 0x30, R: 0x30, A: 0xFF}
}

func (d *SolidDisplay) Capture(dst []byte) error {
	if len(dst)%4 != 0 {
		return fmt.Errorf("platform: frame buffer length %d is not a multiple of 4", len(dst))
	}
	for i := 0; i < len(dst); i += 4 {
		dst[i+0] = d.B
		dst[i+1] = d.G
		dst[i+2] = d.R
		dst[i+3] = d.A
	}
	return nil
}

func (d *SolidDisplay) Close() error { return nil }

// SilentLoopback satisfies grabber.LoopbackDevice by reporting a fixed
// format and then never producing a packet, standing in for a loopback
// capture backend no host API is wired to yet. Open never fails; a real
// backend is the one that can fail to find a default render endpoint.
type SilentLoopback struct {
	SampleRate int
	Channels   int
}

// NewSilentLoopback returns a LoopbackDevice reporting CD-quality stereo
// PCM framing (16-bit samples, 2 channels) and never producing a packet.
func NewSilentLoopback() *SilentLoopback {
	return &SilentLoopback{SampleRate: 44100, Channels: 2}
}

func (d *SilentLoopback) Open() (sampleRate, channels, blockAlign int, err error) {
	blockAlign = d.Channels * 2
	return d.SampleRate, d.Channels, blockAlign, nil
}

func (d *SilentLoopback) FetchPacket() ([]byte, bool, error) {
	return nil, false, nil
}

func (d *SilentLoopback) Close() error { return nil }
