// Package imaging shrinks raw screenshots into payloads small enough to
// return over a tool transport: decode PNG, downscale to a width cap,
// re-encode as JPEG.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

// Options controls screenshot optimisation.
type Options struct {
	// MaxWidth caps the output width in pixels; taller-than-wide images
	// scale by the same factor. Default: 1280.
	MaxWidth int

	// Quality is the JPEG quality, 1-100. Default: 80.
	Quality int
}

func (o *Options) defaults() {
	if o.MaxWidth <= 0 {
		o.MaxWidth = 1280
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = 80
	}
}

// Result is an optimised screenshot.
type Result struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`

	OriginalBytes  int `json:"original_bytes"`
	OptimizedBytes int `json:"optimized_bytes"`
}

// Optimize decodes a PNG screenshot, scales it down to the width cap when
// needed, and re-encodes it as JPEG.
func Optimize(pngData []byte, opts Options) (*Result, error) {
	opts.defaults()

	src, err := png.Decode(bytes.NewReader(pngData))
	if err != nil {
		return nil, fmt.Errorf("imaging: decode png: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w > opts.MaxWidth {
		scaled := opts.MaxWidth * h / w
		dst := image.NewRGBA(image.Rect(0, 0, opts.MaxWidth, scaled))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
		w, h = opts.MaxWidth, scaled
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("imaging: encode jpeg: %w", err)
	}

	return &Result{
		Data:           buf.Bytes(),
		MimeType:       "image/jpeg",
		Width:          w,
		Height:         h,
		OriginalBytes:  len(pngData),
		OptimizedBytes: buf.Len(),
	}, nil
}
