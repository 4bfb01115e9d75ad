// Package imaging downsamples photos into bounded-size JPEG artifacts so they
// fit comfortably in device-local storage and webhook payloads.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"

	xdraw "golang.org/x/image/draw"
)

const (
	// DefaultMaxDimension bounds the longer side of a compressed photo.
	DefaultMaxDimension = 600

	// jpegQuality is deliberately aggressive; the photos only need to stay
	// legible enough to read a price board.
	jpegQuality = 50
)

// ErrCompressionFailed reports an image that could not be decoded or
// re-encoded. No partial artifact is ever produced.
var ErrCompressionFailed = errors.New("compression failed")

// Result is a compressed photo artifact.
type Result struct {
	Data   []byte
	Width  int
	Height int
}

// Compress decodes an image (JPEG or PNG), scales it so neither dimension
// exceeds maxDim while preserving the aspect ratio, and re-encodes it as a
// JPEG. A maxDim of zero or less selects DefaultMaxDimension. Images already
// within the bound keep their dimensions (the scale factor is clamped to 1).
func Compress(data []byte, maxDim int) (*Result, error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCompressionFailed, err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	longest := w
	if h > longest {
		longest = h
	}

	scale := 1.0
	if longest > maxDim {
		scale = float64(maxDim) / float64(longest)
	}

	out := src
	dw, dh := w, h
	if scale < 1 {
		dw = int(math.Round(float64(w) * scale))
		dh = int(math.Round(float64(h) * scale))
		if dw < 1 {
			dw = 1
		}
		if dh < 1 {
			dh = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrCompressionFailed, err)
	}

	return &Result{Data: buf.Bytes(), Width: dw, Height: dh}, nil
}
