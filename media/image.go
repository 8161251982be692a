// Package media provides still-frame processing for capture snapshots.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/webp" // Register WebP decoder
	_ "image/gif"               // Register GIF decoder
	_ "image/png"               // Register PNG decoder
)

// Default snapshot encoding values.
const (
	DefaultMaxWidth  = 1024
	DefaultMaxHeight = 1024
	DefaultQuality   = 85
)

// FrameConfig configures snapshot encoding.
type FrameConfig struct {
	// MaxWidth is the maximum width in pixels (0 = no limit).
	MaxWidth int

	// MaxHeight is the maximum height in pixels (0 = no limit).
	MaxHeight int

	// Quality is the JPEG encoding quality (1-100). Default: 85.
	Quality int
}

// DefaultFrameConfig returns the default snapshot encoding configuration.
func DefaultFrameConfig() FrameConfig {
	return FrameConfig{
		MaxWidth:  DefaultMaxWidth,
		MaxHeight: DefaultMaxHeight,
		Quality:   DefaultQuality,
	}
}

// Frame is a decoded, JPEG-encoded still frame.
type Frame struct {
	Data   []byte // JPEG bytes
	Width  int
	Height int
}

// EncodeFrame decodes raw image data (JPEG, PNG, GIF, or WebP), downscales it
// to fit the configured bounds preserving aspect ratio, and re-encodes it as
// JPEG. This is the snapshot path: whatever a capture source produces, the
// inference request always carries a bounded JPEG.
func EncodeFrame(data []byte, config FrameConfig) (*Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty frame data")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}

	bounds := img.Bounds()
	width, height := fitDimensions(bounds.Dx(), bounds.Dy(), config.MaxWidth, config.MaxHeight)

	if width != bounds.Dx() || height != bounds.Dy() {
		img = scale(img, width, height)
	}

	quality := config.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	return &Frame{Data: buf.Bytes(), Width: width, Height: height}, nil
}

// fitDimensions shrinks (never grows) dimensions to fit the given bounds
// while preserving aspect ratio.
func fitDimensions(origWidth, origHeight, maxWidth, maxHeight int) (int, int) {
	width, height := origWidth, origHeight

	if maxWidth > 0 && width > maxWidth {
		ratio := float64(maxWidth) / float64(width)
		width = maxWidth
		height = int(float64(height) * ratio)
	}
	if maxHeight > 0 && height > maxHeight {
		ratio := float64(maxHeight) / float64(height)
		height = maxHeight
		width = int(float64(width) * ratio)
	}

	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return width, height
}

// scale performs high-quality downscaling.
func scale(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
