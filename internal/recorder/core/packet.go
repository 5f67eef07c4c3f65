// Package core holds the value types shared across the capture, encode and
// mux stages of the recording pipeline.
package core

// VideoPacket is a complete JPEG frame (SOI...EOI). PTSMillis is Unix
// wall-clock time in milliseconds, taken when the encoder pops the
// frame's buffer index, not when the frame was captured; it is not
// relative to a session epoch.
type VideoPacket struct {
	Bytes     []byte
	PTSMillis uint64
}

// AudioPacket is a chunk of raw PCM in the loopback device's native format,
// stamped with the Unix wall-clock time in milliseconds at which it was
// drained from the OS buffer.
type AudioPacket struct {
	Bytes     []byte
	PTSMillis uint64
}
