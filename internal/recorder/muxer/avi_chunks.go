package muxer

import "encoding/binary"

// fourCC returns the 32-bit little-endian interpretation of a 4-byte
// ASCII chunk tag, matching how FourCCs are compared and stored as
// binary index fields (ckid) rather than raw strings.
func fourCC(tag string) uint32 {
	if len(tag) != 4 {
		panic("muxer: fourcc tag must be exactly 4 bytes: " + tag)
	}
	return binary.LittleEndian.Uint32([]byte(tag))
}

func putU32(dst []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(dst[off:off+4], v)
}

func putU16(dst []byte, off int, v uint16) {
	binary.LittleEndian.PutUint16(dst[off:off+2], v)
}

func putFourCC(dst []byte, off int, tag string) {
	copy(dst[off:off+4], tag)
}

// buildAVIH constructs the 56-byte AVIMAINHEADER payload. Only the
// fields the container format calls out are populated; every other field
// is left zero, including dwTotalFrames, which is never backpatched.
func buildAVIH(width, height, fps, streams int) []byte {
	b := make([]byte, 56)

	usecPerFrame := uint32(33333)
	if fps > 0 {
		usecPerFrame = uint32(1_000_000 / fps)
	}

	putU32(b, 0, usecPerFrame)          // dwMicroSecPerFrame
	putU32(b, 4, 0)                     // dwMaxBytesPerSec
	putU32(b, 8, 0)                     // dwPaddingGranularity
	putU32(b, 12, 0)                    // dwFlags
	putU32(b, 16, 0)                    // dwTotalFrames
	putU32(b, 20, 0)                    // dwInitialFrames
	putU32(b, 24, uint32(streams))      // dwStreams
	putU32(b, 28, uint32(width*height*3/2)) // dwSuggestedBufferSize
	putU32(b, 32, uint32(width))        // dwWidth
	putU32(b, 36, uint32(height))       // dwHeight
	// dwReserved[4] at offsets 40..55 stay zero
	return b
}

// buildStrhVideo constructs the 56-byte AVISTREAMHEADER for the MJPEG
// video stream.
func buildStrhVideo(width, height, fps int) []byte {
	b := make([]byte, 56)
	putFourCC(b, 0, "vids")
	putFourCC(b, 4, "MJPG")
	putU32(b, 8, 0)             // dwFlags
	putU16(b, 12, 0)            // wPriority
	putU16(b, 14, 0)            // wLanguage
	putU32(b, 16, 0)            // dwInitialFrames
	putU32(b, 20, 1)            // dwScale
	putU32(b, 24, uint32(fps))  // dwRate
	putU32(b, 28, 0)            // dwStart
	putU32(b, 32, 0)            // dwLength
	putU32(b, 36, 0)            // dwSuggestedBufferSize
	putU32(b, 40, 0xFFFFFFFF)   // dwQuality
	putU32(b, 44, 0)            // dwSampleSize
	// rcFrame (left, top, right, bottom)
	putU16(b, 48, 0)
	putU16(b, 50, 0)
	putU16(b, 52, uint16(width))
	putU16(b, 54, uint16(height))
	return b
}

// buildStrfVideo constructs the 40-byte BITMAPINFOHEADER describing the
// MJPEG video frames.
func buildStrfVideo(width, height int) []byte {
	b := make([]byte, 40)
	putU32(b, 0, 40)                        // biSize
	putU32(b, 4, uint32(width))              // biWidth
	putU32(b, 8, uint32(height))             // biHeight
	putU16(b, 12, 1)                         // biPlanes
	putU16(b, 14, 24)                        // biBitCount
	putU32(b, 16, fourCC("MJPG"))            // biCompression
	putU32(b, 20, uint32(width*height*3))    // biSizeImage
	putU32(b, 24, 0)                         // biXPelsPerMeter
	putU32(b, 28, 0)                         // biYPelsPerMeter
	putU32(b, 32, 0)                         // biClrUsed
	putU32(b, 36, 0)                         // biClrImportant
	return b
}

// buildStrhAudio constructs the 56-byte AVISTREAMHEADER for the PCM
// audio stream.
func buildStrhAudio(sampleRate, blockAlign int) []byte {
	b := make([]byte, 56)
	putFourCC(b, 0, "auds")
	// fccHandler left zero: uncompressed PCM has no stream handler FourCC.
	putU32(b, 8, 0)                                   // dwFlags
	putU16(b, 12, 0)                                  // wPriority
	putU16(b, 14, 0)                                  // wLanguage
	putU32(b, 16, 0)                                  // dwInitialFrames
	putU32(b, 20, uint32(blockAlign))                 // dwScale
	putU32(b, 24, uint32(sampleRate*blockAlign))      // dwRate
	putU32(b, 28, 0)                                  // dwStart
	putU32(b, 32, 0)                                  // dwLength
	putU32(b, 36, 0)                                  // dwSuggestedBufferSize
	putU32(b, 40, 0)                                  // dwQuality
	putU32(b, 44, uint32(blockAlign))                 // dwSampleSize
	// rcFrame stays zero for audio streams
	return b
}

// buildStrfAudio constructs the 18-byte WAVEFORMATEX describing the PCM
// audio samples.
func buildStrfAudio(sampleRate, channels, blockAlign, bitsPerSample int) []byte {
	b := make([]byte, 18)
	putU16(b, 0, 1) // wFormatTag = WAVE_FORMAT_PCM
	putU16(b, 2, uint16(channels))
	putU32(b, 4, uint32(sampleRate))
	putU32(b, 8, uint32(sampleRate*blockAlign))
	putU16(b, 12, uint16(blockAlign))
	putU16(b, 14, uint16(bitsPerSample))
	putU16(b, 16, 0) // cbSize
	return b
}
