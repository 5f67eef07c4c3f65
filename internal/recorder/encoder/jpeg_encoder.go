// Package encoder turns captured BGRA frames into JPEG byte streams.
//
// The entropy coder itself is a library-provided function in spec terms;
// this module's own work is the BGRA->image.RGBA bridge feeding it and the
// quality-clamping contract around it. No pack dependency covers JPEG
// encoding (golang.org/x/image, the only imaging library anywhere in the
// corpus, ships decoders and font/draw helpers but no JPEG encoder), so
// this is one of the few places the module reaches for the standard
// library on purpose; see DESIGN.md.
package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
)

const (
	DefaultQuality = 75
	minQuality     = 1
	maxQuality     = 100
)

// JPEGEncoder is stateless across frames; a single instance is invoked
// serially by the consumer goroutine.
type JPEGEncoder struct{}

// New returns a ready-to-use encoder. It carries no per-frame state.
func New() *JPEGEncoder {
	return &JPEGEncoder{}
}

// ClampQuality folds an arbitrary requested quality into the valid JPEG
// range, defaulting out-of-range-on-the-low-side values to DefaultQuality
// only when the caller passed zero (unset); otherwise it clamps.
func ClampQuality(q int) int {
	if q == 0 {
		return DefaultQuality
	}
	if q < minQuality {
		return minQuality
	}
	if q > maxQuality {
		return maxQuality
	}
	return q
}

// Encode converts a top-down BGRA frame of the given dimensions into a
// complete JFIF byte stream at the given quality (clamped to [1,100]).
func (e *JPEGEncoder) Encode(bgra []byte, w, h, quality int) ([]byte, error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("encoder: invalid dimensions %dx%d", w, h)
	}
	if len(bgra) < w*h*4 {
		return nil, fmt.Errorf("encoder: short frame buffer: got %d bytes, want %d", len(bgra), w*h*4)
	}

	img := bgraToRGBA(bgra, w, h)

	var buf bytes.Buffer
	opts := &jpeg.Options{Quality: ClampQuality(quality)}
	if err := jpeg.Encode(&buf, img, opts); err != nil {
		return nil, fmt.Errorf("encoder: jpeg encode: %w", err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("encoder: empty output")
	}
	return buf.Bytes(), nil
}

// bgraToRGBA reinterprets a top-down BGRA buffer as an image.RGBA by
// swapping the B and R channels in place into a freshly allocated image.
func bgraToRGBA(bgra []byte, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	stride := w * 4
	for y := 0; y < h; y++ {
		src := bgra[y*stride : y*stride+stride]
		dst := img.Pix[y*img.Stride : y*img.Stride+stride]
		for x := 0; x < stride; x += 4 {
			dst[x+0] = src[x+2] // R
			dst[x+1] = src[x+1] // G
			dst[x+2] = src[x+0] // B
			dst[x+3] = src[x+3] // A
		}
	}
	return img
}
